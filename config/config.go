package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	BackendFile  = "file"
	BackendRedis = "redis"
	BackendTable = "table"

	// DefaultFile is picked up from the working directory when no path is given.
	DefaultFile = "kanban.toml"
)

// Config is the server configuration.
type Config struct {
	ListenAddr string         `toml:"listen_addr"`
	Debug      bool           `toml:"debug"`
	BodyLimit  string         `toml:"body_limit"`
	Storage    StorageConfig  `toml:"storage"`
	Activity   ActivityConfig `toml:"activity"`
}

type StorageConfig struct {
	Backend          string        `toml:"backend"`
	Key              string        `toml:"key"`
	Dir              string        `toml:"dir"`
	RedisConnection  string        `toml:"redis_connection"`
	ConnectionString string        `toml:"connection_string"`
	Table            string        `toml:"table"`
	CacheTTL         time.Duration `toml:"cache_ttl"`
	Timeout          time.Duration `toml:"timeout"`
}

// ActivityConfig controls the activity feed. An empty Queue disables it.
type ActivityConfig struct {
	Queue          string        `toml:"queue"`
	Workers        int           `toml:"workers"`
	Buffer         int           `toml:"buffer"`
	PublishTimeout time.Duration `toml:"publish_timeout"`
	HandoffTimeout time.Duration `toml:"handoff_timeout"`
}

func defaults() *Config {
	return &Config{
		ListenAddr: ":8080",
		BodyLimit:  "2M",
		Storage: StorageConfig{
			Backend: BackendFile,
			Key:     "kanban-tasks",
			Dir:     "data",
			Table:   "KanbanTasks",
			Timeout: 10 * time.Second,
		},
		Activity: ActivityConfig{
			Workers:        2,
			Buffer:         256,
			PublishTimeout: 30 * time.Second,
			HandoffTimeout: 5 * time.Millisecond,
		},
	}
}

// Load builds the configuration from defaults, then the TOML file at path
// (or kanban.toml in the working directory when present), then the
// environment.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path == "" {
		if _, err := os.Stat(DefaultFile); err == nil {
			path = DefaultFile
		}
	}
	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	if err := loadFromEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFromEnv(cfg *Config) error {
	if v, ok := os.LookupEnv("FUNCTIONS_CUSTOMHANDLER_PORT"); ok && v != "" {
		cfg.ListenAddr = ":" + v
	}
	if v := os.Getenv("KANBAN_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	for _, name := range []string{"DEBUG", "KANBAN_DEBUG"} {
		if v := os.Getenv(name); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid %s: %w", name, err)
			}
			cfg.Debug = b
		}
	}
	if v := os.Getenv("KANBAN_BODY_LIMIT"); v != "" {
		cfg.BodyLimit = v
	}

	if v := os.Getenv("KANBAN_STORAGE_BACKEND"); v != "" {
		cfg.Storage.Backend = strings.ToLower(v)
	}
	if v := os.Getenv("KANBAN_STORAGE_KEY"); v != "" {
		cfg.Storage.Key = v
	}
	if v := os.Getenv("KANBAN_DATA_DIR"); v != "" {
		cfg.Storage.Dir = v
	}
	if v := os.Getenv("REDIS_CONNECTION_STRING"); v != "" {
		cfg.Storage.RedisConnection = v
	}
	if v := os.Getenv("STORAGE_CONNECTION_STRING"); v != "" {
		cfg.Storage.ConnectionString = v
	}
	if v := os.Getenv("KANBAN_TABLE"); v != "" {
		cfg.Storage.Table = v
	}
	if err := envDuration("KANBAN_CACHE_TTL", &cfg.Storage.CacheTTL); err != nil {
		return err
	}
	if err := envDuration("KANBAN_STORAGE_TIMEOUT", &cfg.Storage.Timeout); err != nil {
		return err
	}

	if v := os.Getenv("KANBAN_ACTIVITY_QUEUE"); v != "" {
		cfg.Activity.Queue = v
	}
	if err := envInt("KANBAN_ACTIVITY_WORKERS", &cfg.Activity.Workers); err != nil {
		return err
	}
	if err := envInt("KANBAN_ACTIVITY_BUFFER", &cfg.Activity.Buffer); err != nil {
		return err
	}
	if err := envDuration("KANBAN_ACTIVITY_PUBLISH_TIMEOUT", &cfg.Activity.PublishTimeout); err != nil {
		return err
	}
	return envDuration("KANBAN_ACTIVITY_HANDOFF_TIMEOUT", &cfg.Activity.HandoffTimeout)
}

func envInt(name string, dst *int) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	*dst = n
	return nil
}

func envDuration(name string, dst *time.Duration) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	*dst = d
	return nil
}

// Validate checks that the selected backends have what they need.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return errors.New("listen_addr is required")
	}
	if c.Storage.Key == "" {
		return errors.New("storage.key is required")
	}
	switch c.Storage.Backend {
	case BackendFile:
		if c.Storage.Dir == "" {
			return errors.New("storage.dir is required for the file backend")
		}
	case BackendRedis:
		if c.Storage.RedisConnection == "" {
			return errors.New("storage.redis_connection is required for the redis backend")
		}
	case BackendTable:
		if c.Storage.ConnectionString == "" || c.Storage.Table == "" {
			return errors.New("storage.connection_string and storage.table are required for the table backend")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	if c.Storage.CacheTTL < 0 {
		return errors.New("storage.cache_ttl must not be negative")
	}
	if c.Storage.Timeout <= 0 {
		return errors.New("storage.timeout must be greater than zero")
	}
	if c.Activity.Queue != "" {
		if c.Storage.ConnectionString == "" {
			return errors.New("storage.connection_string is required for the activity queue")
		}
		if c.Activity.Workers <= 0 || c.Activity.Buffer <= 0 {
			return errors.New("activity.workers and activity.buffer must be greater than zero")
		}
	}
	return nil
}

// CacheEnabled reports whether a Redis read-through cache sits in front of
// the table backend.
func (c *Config) CacheEnabled() bool {
	return c.Storage.Backend == BackendTable && c.Storage.RedisConnection != "" && c.Storage.CacheTTL > 0
}
