// Package engine implements the opaque engine handle table: configuration,
// lifecycle, and the per-engine callback table and default scope that sit
// between the boundary layer and a running evaluation.
package engine

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the plain-data configuration an engine is created with.
// Immutable after creation.
type Config struct {
	MaxOperations   uint64 `yaml:"max_operations"`
	MaxStackDepth   uint64 `yaml:"max_stack_depth"`
	MaxStringLength uint64 `yaml:"max_string_length"`
	TimeoutMS       uint64 `yaml:"timeout_ms"`
	DisableFileIO   bool   `yaml:"disable_file_io"`
	DisableEval     bool   `yaml:"disable_eval"`
	DisableModules  bool   `yaml:"disable_modules"`
}

// SecureDefaults is the preset every sandbox flag is enabled under, with
// the default resource ceilings.
func SecureDefaults() Config {
	return Config{
		MaxOperations:   1_000_000,
		MaxStackDepth:   100,
		MaxStringLength: 10 * 1024 * 1024,
		TimeoutMS:       5_000,
		DisableFileIO:   true,
		DisableEval:     true,
		DisableModules:  true,
	}
}

// Unlimited is the preset that zeroes every limit and disables every
// sandbox flag. Intended only for trusted scripts.
func Unlimited() Config {
	return Config{}
}

// LoadPreset resolves a preset by name.
func LoadPreset(name string) (Config, error) {
	switch name {
	case "secure", "":
		return SecureDefaults(), nil
	case "unlimited":
		return Unlimited(), nil
	default:
		return Config{}, fmt.Errorf("unknown engine config preset %q", name)
	}
}

// LoadConfigYAML parses a Config from YAML text using the yaml struct tags
// above. Fields absent from the document keep their zero value.
func LoadConfigYAML(data []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing engine config: %w", err)
	}
	return cfg, nil
}

// Validate rejects nonsensical configuration. Per the design, no
// contradiction currently exists among the fields; this exists as the
// hook future constraints attach to rather than scattering ad hoc checks
// through the registry.
func (c Config) Validate() error {
	return nil
}

// applyEnvOverrides mutates cfg in place from RHAIBRIDGE_* environment
// variables: an unset variable leaves the field untouched, and an
// unparsable one is ignored rather than failing engine creation outright.
func applyEnvOverrides(cfg *Config) {
	if v, ok := lookupUint("RHAIBRIDGE_MAX_OPERATIONS"); ok {
		cfg.MaxOperations = v
	}
	if v, ok := lookupUint("RHAIBRIDGE_MAX_STACK_DEPTH"); ok {
		cfg.MaxStackDepth = v
	}
	if v, ok := lookupUint("RHAIBRIDGE_MAX_STRING_LENGTH"); ok {
		cfg.MaxStringLength = v
	}
	if v, ok := lookupUint("RHAIBRIDGE_TIMEOUT_MS"); ok {
		cfg.TimeoutMS = v
	}
	if v, ok := lookupBool("RHAIBRIDGE_DISABLE_FILE_IO"); ok {
		cfg.DisableFileIO = v
	}
	if v, ok := lookupBool("RHAIBRIDGE_DISABLE_EVAL"); ok {
		cfg.DisableEval = v
	}
	if v, ok := lookupBool("RHAIBRIDGE_DISABLE_MODULES"); ok {
		cfg.DisableModules = v
	}
}

func lookupUint(name string) (uint64, bool) {
	raw, ok := os.LookupEnv(name)
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func lookupBool(name string) (bool, bool) {
	raw, ok := os.LookupEnv(name)
	if !ok {
		return false, false
	}
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return false, false
	}
	return v, true
}
