// Package config loads server configuration.
//
// Values are layered in this order, later layers winning:
//
//  1. Defaults
//  2. YAML file named by --config or MEALBOARD_CONFIG
//  3. Environment variables (ADDR, DB_PATH, MONGO_URI, MONGO_DATABASE,
//     LOG_LEVEL, MEALBOARD_BACKEND, STATIC_PATH)
//  4. Command-line flags that were explicitly set
//
// The storage backend is derived once from the result; see Config.Backend.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// PlaceholderMongoURI is the value shipped in example config files. It is
// treated the same as an empty URI.
const PlaceholderMongoURI = "YOUR_MONGO_URI"

// ErrInvalidBackend is returned for an unknown backend override.
var ErrInvalidBackend = errors.New("invalid backend")

// Backend names a persistence strategy.
type Backend string

const (
	// BackendLocal keeps state in a single SQLite snapshot row.
	BackendLocal Backend = "local"
	// BackendRemote writes through to MongoDB and follows it live.
	BackendRemote Backend = "remote"
	// BackendMemory is the remote strategy over an in-process store.
	// Nothing survives a restart.
	BackendMemory Backend = "memory"
)

// Config is the server configuration.
type Config struct {
	// Addr is the HTTP listen address.
	Addr string `yaml:"addr"`

	// DBPath is the SQLite file used by the local backend.
	DBPath string `yaml:"db_path"`

	// MongoURI selects the remote backend when set to a real URI.
	MongoURI string `yaml:"mongo_uri"`

	// MongoDatabase is the database holding the groups collection.
	MongoDatabase string `yaml:"mongo_database"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	// BackendOverride forces a backend regardless of MongoURI.
	// Only "memory" and the empty string are accepted.
	BackendOverride string `yaml:"backend"`

	// StaticPath is a directory of view-layer assets served at "/".
	// Empty disables static serving.
	StaticPath string `yaml:"static_path"`

	// ShutdownTimeout bounds graceful shutdown, e.g. "10s".
	ShutdownTimeout string `yaml:"shutdown_timeout"`
}

// Default returns the configuration used when nothing else is set.
func Default() *Config {
	return &Config{
		Addr:            ":8080",
		DBPath:          "./data/mealboard.db",
		MongoDatabase:   "mealboard",
		LogLevel:        "info",
		ShutdownTimeout: "10s",
	}
}

// Load builds the configuration from args (without the program name) and
// the environment. pflag.ErrHelp is returned as-is when --help is given.
func Load(args []string, getenv func(string) string) (*Config, error) {
	flagSet := pflag.NewFlagSet("mealboard", pflag.ContinueOnError)
	var (
		configPath    = flagSet.String("config", "", "path to a YAML config file (or MEALBOARD_CONFIG)")
		addr          = flagSet.String("addr", "", "HTTP listen address")
		dbPath        = flagSet.String("db-path", "", "SQLite file for the local backend")
		mongoURI      = flagSet.String("mongo-uri", "", "MongoDB URI; selects the remote backend")
		mongoDatabase = flagSet.String("mongo-database", "", "MongoDB database name")
		logLevel      = flagSet.String("log-level", "", "log level: debug, info, warn, error")
		backend       = flagSet.String("backend", "", `backend override ("memory")`)
		staticPath    = flagSet.String("static-path", "", "directory of static assets to serve")
	)
	if err := flagSet.Parse(args); err != nil {
		return nil, err
	}

	cfg := Default()

	path := *configPath
	if path == "" {
		path = getenv("MEALBOARD_CONFIG")
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	cfg.applyEnv(getenv)

	overrides := []struct {
		name     string
		dst, val *string
	}{
		{"addr", &cfg.Addr, addr},
		{"db-path", &cfg.DBPath, dbPath},
		{"mongo-uri", &cfg.MongoURI, mongoURI},
		{"mongo-database", &cfg.MongoDatabase, mongoDatabase},
		{"log-level", &cfg.LogLevel, logLevel},
		{"backend", &cfg.BackendOverride, backend},
		{"static-path", &cfg.StaticPath, staticPath},
	}
	for _, o := range overrides {
		if flagSet.Changed(o.name) {
			*o.dst = *o.val
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFile merges a YAML file into c.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, c)
}

func (c *Config) applyEnv(getenv func(string) string) {
	for key, dst := range map[string]*string{
		"ADDR":              &c.Addr,
		"DB_PATH":           &c.DBPath,
		"MONGO_URI":         &c.MongoURI,
		"MONGO_DATABASE":    &c.MongoDatabase,
		"LOG_LEVEL":         &c.LogLevel,
		"MEALBOARD_BACKEND": &c.BackendOverride,
		"STATIC_PATH":       &c.StaticPath,
	} {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
}

// Validate checks values that cannot be checked by type alone.
func (c *Config) Validate() error {
	if _, err := c.Backend(); err != nil {
		return err
	}
	if _, err := time.ParseDuration(c.ShutdownTimeout); err != nil {
		return fmt.Errorf("invalid shutdown_timeout %q: %w", c.ShutdownTimeout, err)
	}
	if c.Addr == "" {
		return errors.New("addr must not be empty")
	}
	return nil
}

// Backend resolves which persistence strategy to use. An empty or
// placeholder MongoURI selects local; any other value selects remote.
func (c *Config) Backend() (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(c.BackendOverride)) {
	case "":
	case string(BackendMemory):
		return BackendMemory, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidBackend, c.BackendOverride)
	}

	uri := strings.TrimSpace(c.MongoURI)
	if uri == "" || uri == PlaceholderMongoURI {
		return BackendLocal, nil
	}
	return BackendRemote, nil
}

// Shutdown returns the parsed shutdown timeout.
func (c *Config) Shutdown() time.Duration {
	d, err := time.ParseDuration(c.ShutdownTimeout)
	if err != nil {
		return 10 * time.Second
	}
	return d
}
