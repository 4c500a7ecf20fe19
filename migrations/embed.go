// Package migrations embeds goose SQL migrations for both storage dialects.
package migrations

import (
	"embed"
	"io/fs"
)

//go:embed postgres/*.sql sqlite/*.sql
var files embed.FS

// Postgres holds the remote server schema.
var Postgres = mustSub("postgres")

// SQLite holds the local Durable Store schema.
var SQLite = mustSub("sqlite")

func mustSub(dir string) fs.FS {
	sub, err := fs.Sub(files, dir)
	if err != nil {
		panic(err)
	}
	return sub
}
