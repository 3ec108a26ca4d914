package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Settings holds every tunable of the watchdog process. Load builds one
// immutable value at startup and hands it down; nothing reads the
// environment after that.
//
// The envconfig tags carry the historical variable names, so both the bare
// form (FRITZ_HOST) and the prefixed form (FRITZWATCH_FRITZ_HOST) work.
type Settings struct {
	Host     string `envconfig:"FRITZ_HOST" yaml:"host"`
	User     string `envconfig:"FRITZ_USER" yaml:"user"`
	Password string `envconfig:"FRITZ_PASSWORD" yaml:"password"`

	Port           int    `envconfig:"TR064_PORT" yaml:"port"`
	SOAPTimeoutSec int    `envconfig:"TR064_TIMEOUT_SEC" yaml:"soap_timeout_sec"`
	Service        string `envconfig:"TARGET_SVC" yaml:"service"`

	CheckEverySec  int `envconfig:"CHECK_EVERY_SEC" yaml:"check_every_sec"`
	MaxBadCycles   int `envconfig:"MAX_BAD_CYCLES" yaml:"max_bad_cycles"`
	RebootDelaySec int `envconfig:"DEFAULT_REBOOT_DELAY" yaml:"reboot_delay_sec"`
	RetryEverySec  int `envconfig:"CONNECT_RETRY_SEC" yaml:"connect_retry_sec"`

	LogDir        string `envconfig:"LOG_DIR" yaml:"log_dir"`
	LogFile       string `envconfig:"LOG_FILE" yaml:"log_file"`
	LogLevel      string `envconfig:"LOG_LEVEL" yaml:"log_level"`
	LogStdout     bool   `envconfig:"LOG_STDOUT" yaml:"log_stdout"`
	LogJSON       bool   `envconfig:"LOG_JSON" yaml:"log_json"`
	LogOnCycle    int    `envconfig:"LOG_ON_CYCLE" yaml:"log_on_cycle"`
	LogMaxSizeMB  int    `envconfig:"LOG_MAX_SIZE_MB" yaml:"log_max_size_mb"`
	LogMaxAgeDays int    `envconfig:"LOG_MAX_AGE_DAYS" yaml:"log_max_age_days"`
	LogBackups    int    `envconfig:"LOG_BACKUP_COUNT" yaml:"log_backups"`

	HistoryDB   string `envconfig:"HISTORY_DB" yaml:"history_db"`
	HistoryDays int    `envconfig:"HISTORY_RETENTION_DAYS" yaml:"history_days"`

	StatusAddr     string `envconfig:"STATUS_ADDR" yaml:"status_addr"`
	StatusUser     string `envconfig:"STATUS_AUTH_USER" yaml:"status_user"`
	StatusPassHash string `envconfig:"STATUS_AUTH_PASSWORD_HASH" yaml:"status_pass_hash"`

	ReconnectCron string `envconfig:"RECONNECT_CRON" yaml:"reconnect_cron"`
}

func defaults() Settings {
	return Settings{
		Host:           "fritz.box",
		User:           "svc-rebooter",
		Port:           49000,
		SOAPTimeoutSec: 10,
		Service:        "WANPPPConnection1",
		CheckEverySec:  60,
		MaxBadCycles:   5,
		RebootDelaySec: 150,
		RetryEverySec:  30,
		LogDir:         "/logs",
		LogFile:        "watchdog.log",
		LogLevel:       "INFO",
		LogStdout:      true,
		LogOnCycle:     60,
		LogMaxSizeMB:   20,
		LogBackups:     30,
		HistoryDays:    30,
	}
}

// Load builds the process configuration. Precedence, lowest first: code
// defaults, a YAML file named by FRITZWATCH_CONFIG, environment variables.
// A .env file in the working directory is folded into the environment when
// present. The tags deliberately carry no envconfig defaults: a default tag
// would clobber values read from the config file.
func Load() (Settings, error) {
	_ = godotenv.Load()

	cfg := defaults()
	if path := os.Getenv("FRITZWATCH_CONFIG"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Settings{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Settings{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}
	if err := envconfig.Process("FRITZWATCH", &cfg); err != nil {
		return Settings{}, fmt.Errorf("read environment: %w", err)
	}
	if cfg.HistoryDB == "" {
		cfg.HistoryDB = filepath.Join(cfg.LogDir, "history.db")
	}
	if err := cfg.validate(); err != nil {
		return Settings{}, err
	}
	return cfg, nil
}

func (s Settings) validate() error {
	if s.Host == "" {
		return fmt.Errorf("FRITZ_HOST must not be empty")
	}
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("TR064_PORT out of range: %d", s.Port)
	}
	if s.SOAPTimeoutSec < 1 {
		return fmt.Errorf("TR064_TIMEOUT_SEC must be positive, got %d", s.SOAPTimeoutSec)
	}
	if s.Service == "" {
		return fmt.Errorf("TARGET_SVC must not be empty")
	}
	if s.CheckEverySec < 1 {
		return fmt.Errorf("CHECK_EVERY_SEC must be positive, got %d", s.CheckEverySec)
	}
	if s.MaxBadCycles < 1 {
		return fmt.Errorf("MAX_BAD_CYCLES must be at least 1, got %d", s.MaxBadCycles)
	}
	if s.RebootDelaySec < 0 {
		return fmt.Errorf("DEFAULT_REBOOT_DELAY must not be negative, got %d", s.RebootDelaySec)
	}
	if s.RetryEverySec < 1 {
		return fmt.Errorf("CONNECT_RETRY_SEC must be positive, got %d", s.RetryEverySec)
	}
	if s.HistoryDays < 0 {
		return fmt.Errorf("HISTORY_RETENTION_DAYS must not be negative, got %d", s.HistoryDays)
	}
	return nil
}

// PollInterval is the pause between watchdog cycles.
func (s Settings) PollInterval() time.Duration {
	return time.Duration(s.CheckEverySec) * time.Second
}

// SettleDelay is the wait after a successful reboot command before the
// control channel is dialed again.
func (s Settings) SettleDelay() time.Duration {
	return time.Duration(s.RebootDelaySec) * time.Second
}

// RetryInterval is the pause between control-channel connection attempts.
func (s Settings) RetryInterval() time.Duration {
	return time.Duration(s.RetryEverySec) * time.Second
}

// SOAPTimeout bounds a single TR-064 round trip.
func (s Settings) SOAPTimeout() time.Duration {
	return time.Duration(s.SOAPTimeoutSec) * time.Second
}

// LogPath is the rotating log file location.
func (s Settings) LogPath() string {
	return filepath.Join(s.LogDir, s.LogFile)
}

// StatusAuthEnabled reports whether the status API requires basic auth.
func (s Settings) StatusAuthEnabled() bool {
	return s.StatusUser != "" && s.StatusPassHash != ""
}
