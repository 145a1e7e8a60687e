// Package config loads schemasync settings from defaults, schemasync.yaml,
// the environment (including .env) and command line flags.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

const (
	DefaultSchemaFile    = "schema.yaml"
	DefaultMigrationsDir = "migrations"
	DefaultLogLevel      = "info"

	envPrefix = "SCHEMASYNC_"
)

var ErrNoDatabaseURL = errors.New("DATABASE_URL not set (in .env, environment, config file or --database-url)")

// Config holds all settings.
type Config struct {
	DatabaseURL      string `koanf:"database_url"`
	SchemaFile       string `koanf:"schema"`
	MigrationsDir    string `koanf:"migrations_dir"`
	LogLevel         string `koanf:"log_level"`
	DropExtraColumns bool   `koanf:"drop_extra_columns"`
	DropExtraIndexes bool   `koanf:"drop_extra_indexes"`
	TolerateApplied  bool   `koanf:"tolerate_applied"`
	History          bool   `koanf:"history"`
	LegacyOperators  bool   `koanf:"legacy_operators"`

	// File is the config file that was read, if any.
	File string `koanf:"-"`
}

// LoadEnv reads .env files into the process environment. Missing files
// are not an error.
func LoadEnv(filenames ...string) error {
	if err := godotenv.Load(filenames...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading .env: %w", err)
	}
	return nil
}

// findConfigFile finds the config file to use.
// Priority: explicit path > schemasync.yaml > schemasync.yml
func findConfigFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	for _, name := range []string{"schemasync.yaml", "schemasync.yml"} {
		if _, err := os.Stat(name); err == nil {
			return name
		}
	}
	return ""
}

// Load layers the configuration sources.
// Precedence (highest to lowest): flags > env vars > config file > defaults
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	// 1. Defaults
	if err := k.Load(confmap.Provider(map[string]any{
		"schema":             DefaultSchemaFile,
		"migrations_dir":     DefaultMigrationsDir,
		"log_level":          DefaultLogLevel,
		"drop_extra_columns": false,
		"drop_extra_indexes": false,
		"tolerate_applied":   false,
		"history":            false,
		"legacy_operators":   false,
	}, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Config file
	used := findConfigFile(cfgFile)
	if used != "" {
		if err := k.Load(file.Provider(used), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", used, err)
		}
	}

	// 3. Environment: the conventional DATABASE_URL, then SCHEMASYNC_*
	if url := os.Getenv("DATABASE_URL"); url != "" {
		if err := k.Load(confmap.Provider(map[string]any{"database_url": url}, "."), nil); err != nil {
			return nil, fmt.Errorf("failed to load DATABASE_URL: %w", err)
		}
	}
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, envPrefix))
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Flags that were explicitly set
	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			if !f.Changed || f.Name == "config" {
				return "", nil
			}
			return strings.ReplaceAll(f.Name, "-", "_"), posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.File = used
	return &cfg, nil
}

// RequireDatabase reports ErrNoDatabaseURL when no database is configured.
func (c *Config) RequireDatabase() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return ErrNoDatabaseURL
	}
	return nil
}

// Level parses LogLevel, falling back to info.
func (c *Config) Level() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return l
}
