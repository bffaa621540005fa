package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Storage backends.
const (
	BackendFile     = "file"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// LogConfig selects zap's level and encoder.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level" json:"level"`
	// Format is "json" (production encoder) or "console".
	Format string `yaml:"format" json:"format"`
}

// RedisConfig holds connection settings for the Redis-backed store.
type RedisConfig struct {
	Addr      string `yaml:"addr" json:"addr"`
	Password  string `yaml:"password" json:"password"`
	DB        int    `yaml:"db" json:"db"`
	KeyPrefix string `yaml:"key_prefix" json:"key_prefix"`
}

// PostgresConfig holds the DSN for the SQL-backed store.
type PostgresConfig struct {
	DSN string `yaml:"dsn" json:"dsn"`
}

// StoreConfig chooses where the latest snapshot and trigger log live.
type StoreConfig struct {
	Backend string `yaml:"backend" json:"backend"`
	// Dir is used by the file backend. Empty means DataDir.
	Dir      string         `yaml:"dir" json:"dir"`
	Redis    RedisConfig    `yaml:"redis" json:"redis"`
	Postgres PostgresConfig `yaml:"postgres" json:"postgres"`
}

// MQTTConfig enables publishing reminders and fired alarms to a broker.
// Broker empty disables it.
type MQTTConfig struct {
	Broker   string `yaml:"broker" json:"broker"`
	ClientID string `yaml:"client_id" json:"client_id"`
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
	Topic    string `yaml:"topic" json:"topic"`
	QoS      byte   `yaml:"qos" json:"qos"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// DataDir holds file-backend state.
	DataDir string `yaml:"data_dir" json:"data_dir"`

	// Tick is a six-field cron spec (with seconds) for the trigger check.
	// It should fire every second. Each check also fires, as missed, alarms
	// that fell between it and the previous check, so a coarser spec only
	// delays alarms.
	Tick string `yaml:"tick" json:"tick"`

	// DayReset is the cron spec that forces a day-boundary check of the
	// trigger log. Ticks also detect date changes on their own.
	DayReset string `yaml:"day_reset" json:"day_reset"`

	// DefaultSound is the sound file used for alarms without an entry in
	// the sound map.
	DefaultSound string `yaml:"default_sound" json:"default_sound"`

	Log   LogConfig   `yaml:"log" json:"log"`
	Store StoreConfig `yaml:"store" json:"store"`
	MQTT  MQTTConfig  `yaml:"mqtt" json:"mqtt"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all
	// endpoints except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:       "127.0.0.1:8080",
		DataDir:      "/var/lib/sleepalarm",
		Tick:         "* * * * * *",
		DayReset:     "0 0 0 * * *",
		DefaultSound: "default.caf",
		Log:          LogConfig{Level: "info", Format: "console"},
		Store: StoreConfig{
			Backend: BackendFile,
			Redis:   RedisConfig{Addr: "localhost:6379", KeyPrefix: "sleepalarm:"},
		},
		MQTT: MQTTConfig{ClientID: "sleepalarm", Topic: "sleepalarm"},
	}
}

// Normalize fills in missing/zero values with defaults so that partially
// filled configs still behave correctly.
func (c *Config) Normalize() {
	d := DefaultConfig()
	if c.Listen == "" {
		c.Listen = d.Listen
	}
	if c.DataDir == "" {
		c.DataDir = d.DataDir
	}
	if c.Tick == "" {
		c.Tick = d.Tick
	}
	if c.DayReset == "" {
		c.DayReset = d.DayReset
	}
	if c.DefaultSound == "" {
		c.DefaultSound = d.DefaultSound
	}
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = d.Log.Format
	}
	if c.Store.Backend == "" {
		c.Store.Backend = BackendFile
	}
	if c.Store.Dir == "" {
		c.Store.Dir = c.DataDir
	}
	if c.Store.Redis.Addr == "" {
		c.Store.Redis.Addr = d.Store.Redis.Addr
	}
	if c.Store.Redis.KeyPrefix == "" {
		c.Store.Redis.KeyPrefix = d.Store.Redis.KeyPrefix
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = d.MQTT.ClientID
	}
	if c.MQTT.Topic == "" {
		c.MQTT.Topic = d.MQTT.Topic
	}
	if c.MQTT.QoS > 2 {
		c.MQTT.QoS = 1
	}
}

// Validate reports settings that cannot work together.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendFile:
		if c.Store.Dir == "" {
			return errors.New("store.dir (or data_dir) is required for the file backend")
		}
	case BackendRedis:
		if c.Store.Redis.Addr == "" {
			return errors.New("store.redis.addr is required for the redis backend")
		}
	case BackendPostgres:
		if c.Store.Postgres.DSN == "" {
			return errors.New("store.postgres.dsn is required for the postgres backend")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("store.backend %q must be one of file, redis, postgres, memory", c.Store.Backend)
	}
	if c.BasicAuth != nil && (c.BasicAuth.Username == "") != (c.BasicAuth.Password == "") {
		return errors.New("basic_auth needs both username and password")
	}
	return nil
}

// ApplyEnv overrides selected fields from the environment.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("SLEEPALARM_LISTEN"); v != "" {
		c.Listen = v
	}
	if v := os.Getenv("SLEEPALARM_STORE"); v != "" {
		c.Store.Backend = v
	}
	if v := os.Getenv("SLEEPALARM_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("SLEEPALARM_REDIS_ADDR"); v != "" {
		c.Store.Redis.Addr = v
	}
	if v := os.Getenv("SLEEPALARM_REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Store.Redis.DB = n
		}
	}
	if v := os.Getenv("SLEEPALARM_POSTGRES_DSN"); v != "" {
		c.Store.Postgres.DSN = v
	}
	if v := os.Getenv("SLEEPALARM_MQTT_BROKER"); v != "" {
		c.MQTT.Broker = v
	}
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
//
// Environment overrides are applied last, then the result is validated.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			cfg.ApplyEnv()
			cfg.Normalize()
			return cfg, cfg.Validate()
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.ApplyEnv()
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return &cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return WriteFileAtomic(path, data)
}

// WriteFileAtomic writes data next to path and renames it into place with
// 0600 permissions. The store's file backend shares it.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	// Atomic write: write to temp file in same directory then rename.
	tmp, err := os.CreateTemp(dir, ".sleepalarm-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Ensure we clean up temp file on error.
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}

	// Flush and close before chmod/rename.
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}
