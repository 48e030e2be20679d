// Package config loads and validates decomposition settings from YAML files.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// validate is a singleton validator instance.
var validate = validator.New()

// Config holds the settings of a decomposition run.
type Config struct {
	Ratio       float64 `yaml:"ratio" validate:"gte=0,lt=1"`
	RankPolicy  string  `yaml:"rank_policy" validate:"oneof=clamp strict"`
	Workers     int     `yaml:"workers" validate:"gte=1,lte=256"`
	Log         Log     `yaml:"log"`
	MetricsFile string  `yaml:"metrics_file" validate:"omitempty"`
}

// Log configures the slog handler built by NewLogger.
type Log struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=text json"`
}

// Default returns the settings used when no file is given.
func Default() Config {
	return Config{
		Ratio:      0.5,
		RankPolicy: "clamp",
		Workers:    1,
		Log: Log{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a YAML file on top of Default and validates the result.
// Fields missing from the file keep their default values.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}

	if err := Parse(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML into cfg and validates it. Unknown keys are rejected.
func Parse(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse yaml: %w", err)
	}
	return cfg.Validate()
}

// Validate checks every field against its constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return formatValidationError(err)
	}
	return nil
}

// SlogLevel maps Log.Level to a slog level.
func (l Log) SlogLevel() slog.Level {
	switch l.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger builds a slog logger writing to w in the configured format.
func (l Log) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: l.SlogLevel()}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return err
	}

	// Report the first failure only.
	for _, e := range validationErrs {
		field := e.Namespace()
		switch e.Tag() {
		case "oneof":
			return fmt.Errorf("%s: must be one of [%s], got %q", field, e.Param(), fmt.Sprint(e.Value()))
		case "gte":
			return fmt.Errorf("%s: must be at least %s", field, e.Param())
		case "lt":
			return fmt.Errorf("%s: must be less than %s", field, e.Param())
		case "lte":
			return fmt.Errorf("%s: must not exceed %s", field, e.Param())
		default:
			return fmt.Errorf("%s: validation failed (%s)", field, e.Tag())
		}
	}
	return err
}
