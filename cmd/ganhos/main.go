// Command ganhos records daily rideshare earnings. Writes always land locally and are
// replayed to the configured backend once it is reachable.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/ganhos-keeper/internal/client"
	"github.com/and161185/ganhos-keeper/internal/config"
	"github.com/and161185/ganhos-keeper/internal/errs"
	"github.com/and161185/ganhos-keeper/internal/logging"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

const flushTimeout = 10 * time.Second

func usage() {
	fmt.Fprintf(os.Stderr, `ganhos CLI
Usage:
  ganhos [-config file] [-offline] <cmd> [args]

Commands:
  version
  add       [-id <id>] [-date YYYY-MM-DD] -earnings <n> -km <n> [-hours <n>] [-costs <n>]
  rm        -id <id>
  list                                   (records and totals)
  status                                 (connectivity and pending operations)
  sync                                   (replay now, including exhausted operations)
  settings  [-cost-per-km <n>]
  info                                   (local storage)
  retry-failed
  clear-pending
  clear-data -yes
`)
	os.Exit(2)
}

func main() {
	cfgPath := flag.String("config", "", "path to YAML config (default $"+config.PathEnv+" or ./ganhos.yaml)")
	offline := flag.Bool("offline", false, "start offline; writes are only queued")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
	}
	cmd := flag.Arg(0)
	if cmd == "version" {
		fmt.Printf("ganhos %s (%s)\n", version, buildDate)
		return
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fail(err)
	}
	if *offline {
		cfg.Sync.StartOffline = true
	}
	if err := cfg.Validate(); err != nil {
		fail(err)
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		fail(err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	c, err := client.Open(ctx, cfg, logger)
	if err != nil {
		fail(err)
	}
	a := &app{c: c, out: os.Stdout, now: time.Now}
	runErr := a.run(ctx, cmd, flag.Args()[1:])

	fctx, fcancel := context.WithTimeout(context.Background(), flushTimeout)
	if err := c.Flush(fctx); err != nil {
		logger.Warn("flush", zap.Error(err))
	}
	fcancel()
	if err := c.Close(); err != nil {
		logger.Warn("close", zap.Error(err))
	}

	if errors.Is(runErr, errUsage) {
		usage()
	}
	if runErr != nil {
		fail(runErr)
	}
}

func printJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func fail(err error) {
	switch {
	case errors.Is(err, errs.ErrValidation):
		fmt.Fprintln(os.Stderr, "invalid input:", err)
	case errors.Is(err, errs.ErrLocalWrite):
		fmt.Fprintln(os.Stderr, "could not save locally:", err)
	default:
		fmt.Fprintln(os.Stderr, err)
	}
	os.Exit(1)
}
