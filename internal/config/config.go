// Package config loads client and server settings from YAML and the environment.
package config

import "time"

// Config is the root configuration shared by cmd/ganhos and cmd/ganhos-server.
type Config struct {
	Storage StorageConfig `yaml:"storage"`
	Sync    SyncConfig    `yaml:"sync"`
	Server  ServerConfig  `yaml:"server"`
	Log     LogConfig     `yaml:"log"`
}

// StorageConfig locates the local durable data.
type StorageConfig struct {
	DataDir string `yaml:"data_dir" env:"GANHOS_DATA_DIR" env-default:"./data"`
	DBFile  string `yaml:"db_file"  env:"GANHOS_DB_FILE"  env-default:"ganhos.db"`
	// DisableSQLite keeps all data in the flat key-value fallback.
	DisableSQLite bool   `yaml:"disable_sqlite" env:"GANHOS_DISABLE_SQLITE"`
	QueueSlot     string `yaml:"queue_slot"     env:"GANHOS_QUEUE_SLOT"     env-default:"ganhospro_pending_ops"`
}

// SyncConfig controls replay of pending operations.
type SyncConfig struct {
	// RemoteAddr of a ganhos-server. Empty replays into the local store.
	RemoteAddr    string        `yaml:"remote_addr"    env:"GANHOS_REMOTE_ADDR"`
	StartOffline  bool          `yaml:"start_offline"  env:"GANHOS_START_OFFLINE"`
	RemoteCAFile  string        `yaml:"remote_ca_file" env:"GANHOS_REMOTE_CA_FILE"` // PEM; empty dials plaintext
	BaseDelay     time.Duration `yaml:"base_delay"     env:"GANHOS_BASE_DELAY"     env-default:"5s"`
	MaxDelay      time.Duration `yaml:"max_delay"      env:"GANHOS_MAX_DELAY"      env-default:"60s"`
	MaxRetries    int           `yaml:"max_retries"    env:"GANHOS_MAX_RETRIES"    env-default:"3"`
	ProbeInterval time.Duration `yaml:"probe_interval" env:"GANHOS_PROBE_INTERVAL" env-default:"15s"`
	CallTimeout   time.Duration `yaml:"call_timeout"   env:"GANHOS_CALL_TIMEOUT"   env-default:"10s"`
}

// ServerConfig holds ganhos-server settings.
type ServerConfig struct {
	ListenAddr      string        `yaml:"listen_addr"      env:"GANHOS_LISTEN_ADDR"      env-default:":50051"`
	DSN             string        `yaml:"dsn"              env:"GANHOS_DATABASE_DSN"`
	CallTimeout     time.Duration `yaml:"call_timeout"     env:"GANHOS_SERVER_CALL_TIMEOUT" env-default:"15s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"GANHOS_SHUTDOWN_TIMEOUT" env-default:"5s"`
	TLSCertFile     string        `yaml:"tls_cert_file"    env:"GANHOS_TLS_CERT_FILE"`
	TLSKeyFile      string        `yaml:"tls_key_file"     env:"GANHOS_TLS_KEY_FILE"`
}

// TLS reports whether the server should serve TLS.
func (s ServerConfig) TLS() bool { return s.TLSCertFile != "" }

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"  env:"GANHOS_LOG_LEVEL"  env-default:"info"`
	Format string `yaml:"format" env:"GANHOS_LOG_FORMAT" env-default:"json"` // json | console
}
