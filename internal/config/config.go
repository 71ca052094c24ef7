// Package config assembles chronicle's settings.
//
// Precedence, lowest first: built-in defaults, the config file
// (chronicle.yaml / chronicle.yml / chronicle.toml, format chosen by
// extension), CHRONICLE_* environment variables, then command-line flags
// applied by the caller. The merged result is validated before use.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "CHRONICLE_"

// FileNames are the config files Discover looks for, in order.
var FileNames = []string{"chronicle.yaml", "chronicle.yml", "chronicle.toml"}

var validate = validator.New()

// Config holds every setting.
type Config struct {
	// DataDir holds the event log (streams/) and the projection database.
	DataDir string `yaml:"data_dir" toml:"data_dir" env:"DATA_DIR" validate:"required"`
	// ProjectionFile is the projection database file name inside DataDir.
	ProjectionFile string `yaml:"projection_file" toml:"projection_file" env:"PROJECTION_FILE" validate:"required,excludesall=/\\"`
	// MaxAttempts bounds command retries on version conflicts.
	MaxAttempts int `yaml:"max_attempts" toml:"max_attempts" env:"MAX_ATTEMPTS" validate:"min=1,max=100"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" toml:"log_level" env:"LOG_LEVEL" validate:"oneof=debug info warn error"`
	// LogFormat is text or json.
	LogFormat string `yaml:"log_format" toml:"log_format" env:"LOG_FORMAT" validate:"oneof=text json"`
	// CatalogFile is an optional CUE file unified with the built-in kinds.
	CatalogFile string `yaml:"catalog_file" toml:"catalog_file" env:"CATALOG_FILE"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		DataDir:        ".chronicle",
		ProjectionFile: "projection.db",
		MaxAttempts:    3,
		LogLevel:       "warn",
		LogFormat:      "text",
	}
}

// Load reads path (if not empty) over the defaults, applies the process
// environment, and validates.
func Load(path string) (Config, error) {
	return LoadWithEnv(path, nil)
}

// LoadWithEnv is Load with an explicit environment. A nil environ means
// the process environment.
func LoadWithEnv(path string, environ map[string]string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.readFile(path); err != nil {
			return Config{}, err
		}
	}

	opts := env.Options{Prefix: EnvPrefix}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) readFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	case ".toml":
		md, err := toml.Decode(string(data), c)
		if err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return fmt.Errorf("parse %s: unknown keys %v", path, undecoded)
		}
	default:
		return fmt.Errorf("config %s: unsupported extension %q (want .yaml, .yml or .toml)", path, ext)
	}

	// A relative catalog file is relative to the config file.
	if c.CatalogFile != "" && !filepath.IsAbs(c.CatalogFile) {
		c.CatalogFile = filepath.Join(filepath.Dir(path), c.CatalogFile)
	}
	return nil
}

// Validate checks field constraints.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Discover returns the first config file present in dir, or "".
func Discover(dir string) string {
	for _, name := range FileNames {
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path
		}
	}
	return ""
}

// StreamsDir is where the event log lives.
func (c Config) StreamsDir() string {
	return filepath.Join(c.DataDir, "streams")
}

// ProjectionPath is the live projection database.
func (c Config) ProjectionPath() string {
	return filepath.Join(c.DataDir, c.ProjectionFile)
}

// SlogLevel maps LogLevel to a slog level.
func (c Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}
