package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ConfigFileName is looked up next to the manifest when --config is not given.
const ConfigFileName = "goodtimes.yaml"

// Config holds run settings. Values come from defaults, then the YAML file,
// then environment fallbacks, then explicitly set flags.
type Config struct {
	ManifestPath string      `yaml:"manifest_path"`
	Profile      string      `yaml:"profile"`
	Features     []string    `yaml:"features"`
	AllFeatures  bool        `yaml:"all_features"`
	IncludeDeps  bool        `yaml:"include_deps"`
	NoOpen       bool        `yaml:"no_open"`
	Top          int         `yaml:"top"`
	OutputDir    string      `yaml:"output_dir"`
	Log          LogConfig   `yaml:"log"`
	Neo4j        Neo4jConfig `yaml:"neo4j"`
}

// LogConfig selects the slog level and handler.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// Neo4jConfig enables exporting the graph when URI is set.
type Neo4jConfig struct {
	URI      string `yaml:"uri"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Clean    bool   `yaml:"clean"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		ManifestPath: ".",
		Profile:      "dev",
		Top:          10,
		Log:          LogConfig{Level: "info", Format: "text"},
		Neo4j:        Neo4jConfig{User: "neo4j"},
	}
}

// LoadConfig overlays the YAML file at path onto the defaults. A missing file
// is only an error when required is set.
func LoadConfig(path string, required bool) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config file %s: %w", path, err)
			}
		case errors.Is(err, fs.ErrNotExist) && !required:
		default:
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

// DefaultConfigPath returns goodtimes.yaml beside the manifest or inside the
// manifest directory.
func DefaultConfigPath(manifestPath string) string {
	info, err := os.Stat(manifestPath)
	if err == nil && info.IsDir() {
		return filepath.Join(manifestPath, ConfigFileName)
	}
	return filepath.Join(filepath.Dir(manifestPath), ConfigFileName)
}

func (c *Config) applyEnv() {
	c.Log.Level = getEnv("GOODTIMES_LOG_LEVEL", c.Log.Level)
	c.Neo4j.Password = getEnv("GOODTIMES_NEO4J_PASS", c.Neo4j.Password)
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// BuildOptions returns the cargo flags selected by the config.
func (c *Config) BuildOptions() BuildOptions {
	return BuildOptions{
		Profile:     c.Profile,
		Features:    c.Features,
		AllFeatures: c.AllFeatures,
	}
}

// newLogger creates a slog.Logger for the given level and format. It does not
// set the global logger.
func newLogger(levelStr, formatStr string, outW io.Writer) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if formatStr == "json" {
		handler = slog.NewJSONHandler(outW, handlerOpts)
	} else {
		handler = slog.NewTextHandler(outW, handlerOpts)
	}
	return slog.New(handler)
}
