// SPDX-License-Identifier: AGPL-3.0-or-later

// Package configloader reads slwrap.yaml and layers SLWRAP_* environment
// variables and command-line flags over it.
package configloader

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/kballard/go-shellquote"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/flowd-org/slicerwrap/internal/schemafetch"
	"github.com/flowd-org/slicerwrap/internal/types"
)

// DefaultFile is looked up in the working directory when no path is given.
const DefaultFile = "slwrap.yaml"

// EnvPrefix namespaces environment overrides: SLWRAP_PLUGINS_DIR,
// SLWRAP_LOG_LEVEL and so on.
const EnvPrefix = "SLWRAP"

// FlagBindings maps config keys to the persistent flags that override them.
var FlagBindings = map[string]string{
	"plugins_dir": "plugins-dir",
	"launcher":    "launcher",
	"schema_flag": "schema-flag",
	"work_dir":    "work-dir",
	"data_dir":    "data-dir",
	"log.level":   "log-level",
	"log.format":  "log-format",
}

// Defaults returns the configuration used when nothing overrides it.
func Defaults() *types.Config {
	return &types.Config{
		SchemaFlag:     schemafetch.DefaultFlag,
		EnvInheritance: true,
		Log:            types.LogConfig{Level: "warn", Format: "text"},
	}
}

// Load reads path (or DefaultFile when path is empty and the file exists),
// then applies environment and flag overrides. flags may be nil.
func Load(path string, flags *pflag.FlagSet) (*types.Config, error) {
	cfg := Defaults()

	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := decode(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := applyOverrides(cfg, flags); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(data []byte, cfg *types.Config) error {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil
	}
	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	dec.KnownFields(true)
	return dec.Decode(cfg)
}

func applyOverrides(cfg *types.Config, flags *pflag.FlagSet) error {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if flags != nil {
		for key, name := range FlagBindings {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	strs := map[string]*string{
		"plugins_dir":       &cfg.PluginsDir,
		"launcher":          &cfg.Launcher,
		"schema_flag":       &cfg.SchemaFlag,
		"work_dir":          &cfg.WorkDir,
		"data_dir":          &cfg.DataDir,
		"log.level":         &cfg.Log.Level,
		"log.format":        &cfg.Log.Format,
		"container.image":   &cfg.Container.Image,
		"container.runtime": &cfg.Container.Runtime,
		"container.network": &cfg.Container.Network,
	}
	for key, dst := range strs {
		if v.IsSet(key) {
			*dst = v.GetString(key)
		}
	}
	bools := map[string]*bool{
		"env_inheritance":  &cfg.EnvInheritance,
		"journal.disabled": &cfg.Journal.Disabled,
		"cache.disabled":   &cfg.Cache.Disabled,
	}
	for key, dst := range bools {
		if v.IsSet(key) {
			*dst = v.GetBool(key)
		}
	}
	if v.IsSet("journal.max_bytes") {
		cfg.Journal.MaxBytes = v.GetInt64("journal.max_bytes")
	}
	if v.IsSet("cache.max_bytes") {
		cfg.Cache.MaxBytes = v.GetInt64("cache.max_bytes")
	}
	return nil
}

// Validate rejects settings that would only fail later.
func Validate(cfg *types.Config) error {
	if _, err := LauncherArgs(cfg); err != nil {
		return err
	}
	switch strings.ToLower(cfg.Log.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("log.level %q: expected debug, info, warn or error", cfg.Log.Level)
	}
	switch strings.ToLower(cfg.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("log.format %q: expected text or json", cfg.Log.Format)
	}
	if strings.TrimSpace(cfg.SchemaFlag) == "" {
		cfg.SchemaFlag = schemafetch.DefaultFlag
	}
	if cfg.Journal.MaxBytes < 0 || cfg.Cache.MaxBytes < 0 {
		return fmt.Errorf("size limits must not be negative")
	}
	return nil
}

// LauncherArgs splits the launcher prefix with shell quoting rules.
func LauncherArgs(cfg *types.Config) ([]string, error) {
	if cfg == nil || strings.TrimSpace(cfg.Launcher) == "" {
		return nil, nil
	}
	words, err := shellquote.Split(cfg.Launcher)
	if err != nil {
		return nil, fmt.Errorf("launcher %q: %w", cfg.Launcher, err)
	}
	return words, nil
}
