package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// Loaded captures resolved config path, parsed values, and non-fatal warnings.
type Loaded struct {
	Path     string
	Config   Config
	Warnings []Warning
	Exists   bool
	// EnvOverrides names the SCRIBE_* variables that replaced file values.
	EnvOverrides []string
}

// envOverrides maps environment variables onto the fields they replace.
var envOverrides = []struct {
	name  string
	apply func(*Config, string)
}{
	{"SCRIBE_RECOGNIZER_GRPC", func(c *Config, v string) { c.Recognizer.GRPC = v }},
	{"SCRIBE_LANGUAGE", func(c *Config, v string) { c.Recognizer.Language = v }},
	{"SCRIBE_AUDIO_INPUT", func(c *Config, v string) { c.Audio.Input = v }},
	{"SCRIBE_LOG_LEVEL", func(c *Config, v string) { c.Log.Level = strings.ToLower(v) }},
}

// Load resolves and reads the config file, applies SCRIBE_* environment
// overrides, and validates the result. A missing file yields defaults.
func Load(explicitPath string) (Loaded, error) {
	resolvedPath, err := ResolvePath(explicitPath)
	if err != nil {
		return Loaded{}, err
	}
	loaded := Loaded{Path: resolvedPath, Config: Default()}

	content, err := os.ReadFile(resolvedPath)
	switch {
	case err == nil:
		cfg, warnings, parseErr := Parse(string(content), loaded.Config)
		if parseErr != nil {
			return Loaded{}, fmt.Errorf("parse config %q: %w", resolvedPath, parseErr)
		}
		loaded.Config, loaded.Warnings, loaded.Exists = cfg, warnings, true
	case errors.Is(err, os.ErrNotExist):
		loaded.Warnings = []Warning{{
			Message: fmt.Sprintf("config file %q not found; using defaults", resolvedPath),
		}}
	default:
		return Loaded{}, fmt.Errorf("read config %q: %w", resolvedPath, err)
	}

	for _, o := range envOverrides {
		if v := strings.TrimSpace(os.Getenv(o.name)); v != "" {
			o.apply(&loaded.Config, v)
			loaded.EnvOverrides = append(loaded.EnvOverrides, o.name)
		}
	}
	if len(loaded.EnvOverrides) > 0 {
		if _, err := Validate(loaded.Config); err != nil {
			return Loaded{}, fmt.Errorf("environment overrides (%s): %w", strings.Join(loaded.EnvOverrides, ", "), err)
		}
	}
	return loaded, nil
}
