package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var slotRe = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// Validate checks settings used by the client. Server-only settings are checked by
// ValidateServer.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Storage.DataDir) == "" {
		return errors.New("storage.data_dir must not be empty")
	}
	if !slotRe.MatchString(c.Storage.QueueSlot) {
		return fmt.Errorf("storage.queue_slot %q must match %s", c.Storage.QueueSlot, slotRe)
	}
	if err := c.Sync.validate(); err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("log.format must be json or console (got %q)", c.Log.Format)
	}
	return nil
}

func (s *SyncConfig) validate() error {
	if s.BaseDelay <= 0 {
		return fmt.Errorf("base_delay must be > 0 (got %s)", s.BaseDelay)
	}
	if s.MaxDelay < s.BaseDelay {
		return fmt.Errorf("max_delay must be >= base_delay (got %s < %s)", s.MaxDelay, s.BaseDelay)
	}
	if s.MaxRetries <= 0 {
		return fmt.Errorf("max_retries must be > 0 (got %d)", s.MaxRetries)
	}
	if s.RemoteAddr != "" && s.ProbeInterval <= 0 {
		return fmt.Errorf("probe_interval must be > 0 with a remote (got %s)", s.ProbeInterval)
	}
	return nil
}

// ValidateServer checks the settings ganhos-server needs.
func (c *Config) ValidateServer() error {
	if c.Server.DSN == "" {
		return errors.New("server.dsn is required")
	}
	if c.Server.ListenAddr == "" {
		return errors.New("server.listen_addr is required")
	}
	if (c.Server.TLSCertFile == "") != (c.Server.TLSKeyFile == "") {
		return errors.New("server.tls_cert_file and server.tls_key_file must be set together")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be > 0 (got %s)", c.Server.ShutdownTimeout)
	}
	return nil
}
