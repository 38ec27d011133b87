// Package config loads flatdoc settings from YAML, JSON or CUE files.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"

	"github.com/roach88/flatdoc/internal/entry"
	"github.com/roach88/flatdoc/internal/store"
)

//go:embed schema.cue
var schemaCUE string

// Upper bounds applied by validate.
const (
	MaxOpenConnsLimit = 64
	LockShardsLimit   = 1 << 16
	WorkersLimit      = 1024
)

// Config holds the settings of one flatdoc database.
type Config struct {
	// Path is the database file, or ":memory:".
	// Default: "flatdoc.db"
	Path string `yaml:"path" json:"path,omitempty"`

	// Driver is "sqlite3" (cgo) or "sqlite" (pure Go).
	// Default: "sqlite3"
	Driver string `yaml:"driver" json:"driver,omitempty"`

	// MaxOpenConns bounds the connections to the database.
	// Default: 4, Max: 64
	MaxOpenConns int `yaml:"max_open_conns" json:"max_open_conns,omitempty"`

	// BusyTimeoutMS is how long a connection waits on a locked database.
	// Default: 5000
	BusyTimeoutMS int `yaml:"busy_timeout_ms" json:"busy_timeout_ms,omitempty"`

	// Synchronous is the SQLite synchronous level.
	// Default: "NORMAL"
	Synchronous string `yaml:"synchronous" json:"synchronous,omitempty"`

	// LockShards is the size of the per-id lock table.
	// Default: 256, Max: 65536
	LockShards int `yaml:"lock_shards" json:"lock_shards,omitempty"`

	// Workers bounds concurrent creates during import.
	// Default: 4, Max: 1024
	Workers int `yaml:"workers" json:"workers,omitempty"`

	// PageSize is the default search page size. Zero means unlimited.
	// Default: 0
	PageSize int `yaml:"page_size" json:"page_size,omitempty"`

	// LogLevel is one of debug, info, warn, error.
	// Default: "warn"
	LogLevel string `yaml:"log_level" json:"log_level,omitempty"`
}

// Default returns the settings used when no file is given.
func Default() Config {
	so := store.DefaultOptions()
	return Config{
		Path:          "flatdoc.db",
		Driver:        so.Driver,
		MaxOpenConns:  so.MaxOpenConns,
		BusyTimeoutMS: int(so.BusyTimeout / time.Millisecond),
		Synchronous:   so.Synchronous,
		LockShards:    entry.DefaultLockShards,
		Workers:       4,
		PageSize:      0,
		LogLevel:      "warn",
	}
}

// validate fills zero values with defaults, clamps bounds and rejects
// values that cannot be clamped.
func (c *Config) validate() error {
	def := Default()
	if c.Path == "" {
		c.Path = def.Path
	}
	if c.Driver == "" {
		c.Driver = def.Driver
	}
	if c.Driver != store.DriverSQLite3 && c.Driver != store.DriverModernc {
		return fmt.Errorf("driver: unknown driver %q", c.Driver)
	}
	if c.MaxOpenConns < 1 {
		c.MaxOpenConns = def.MaxOpenConns
	}
	if c.MaxOpenConns > MaxOpenConnsLimit {
		c.MaxOpenConns = MaxOpenConnsLimit
	}
	if c.BusyTimeoutMS < 1 {
		c.BusyTimeoutMS = def.BusyTimeoutMS
	}
	if c.Synchronous == "" {
		c.Synchronous = def.Synchronous
	}
	c.Synchronous = strings.ToUpper(c.Synchronous)
	switch c.Synchronous {
	case "OFF", "NORMAL", "FULL", "EXTRA":
	default:
		return fmt.Errorf("synchronous: unknown level %q", c.Synchronous)
	}
	if c.LockShards < 1 {
		c.LockShards = def.LockShards
	}
	if c.LockShards > LockShardsLimit {
		c.LockShards = LockShardsLimit
	}
	if c.Workers < 1 {
		c.Workers = def.Workers
	}
	if c.Workers > WorkersLimit {
		c.Workers = WorkersLimit
	}
	if c.PageSize < 0 {
		c.PageSize = 0
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// Validate applies defaults and bounds in place.
func (c *Config) Validate() error {
	return c.validate()
}

// Load reads the file at path. The format follows the extension:
// .cue files are checked against the #Config schema, anything else is
// read as YAML (which includes JSON). Unset fields keep their defaults.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}

	cfg := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".cue":
		err = decodeCUE(path, data, &cfg)
	default:
		err = decodeYAML(data, &cfg)
	}
	if err != nil {
		return Config{}, fmt.Errorf("load config %s: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, nil
}

func decodeYAML(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// decodeCUE unifies the file with the embedded schema so that unknown
// fields, wrong types and out-of-range values fail with CUE positions.
func decodeCUE(path string, data []byte, cfg *Config) error {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	v := ctx.CompileBytes(data, cue.Filename(path))
	if err := v.Err(); err != nil {
		return err
	}

	unified := def.Unify(v)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return err
	}
	return unified.Decode(cfg)
}

// StoreOptions converts the database settings.
func (c Config) StoreOptions() store.Options {
	return store.Options{
		Driver:       c.Driver,
		MaxOpenConns: c.MaxOpenConns,
		BusyTimeout:  time.Duration(c.BusyTimeoutMS) * time.Millisecond,
		Synchronous:  c.Synchronous,
	}
}

// ManagerOptions converts the settings into entry.Manager options.
func (c Config) ManagerOptions(logger *slog.Logger) []entry.Option {
	return []entry.Option{
		entry.WithStoreOptions(c.StoreOptions()),
		entry.WithLockShards(c.LockShards),
		entry.WithWorkers(c.Workers),
		entry.WithLogger(logger),
	}
}

// Level returns LogLevel as a slog level.
func (c Config) Level() slog.Level {
	l, err := parseLevel(c.LogLevel)
	if err != nil {
		return slog.LevelWarn
	}
	return l
}

func parseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log_level: %w", err)
	}
	return l, nil
}
