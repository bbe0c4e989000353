// SPDX-License-Identifier: AGPL-3.0-or-later
package types

import "sort"

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level,omitempty"`
	Format string `yaml:"format,omitempty"`
}

// JournalConfig bounds the run journal.
type JournalConfig struct {
	MaxBytes int64 `yaml:"max_bytes,omitempty"`
	Disabled bool  `yaml:"disabled,omitempty"`
}

// CacheConfig controls the schema cache.
type CacheConfig struct {
	Disabled bool  `yaml:"disabled,omitempty"`
	MaxBytes int64 `yaml:"max_bytes,omitempty"`
}

// ContainerConfig runs modules inside a container image instead of on the
// host. An empty Image means host execution.
type ContainerConfig struct {
	Image     string   `yaml:"image,omitempty"`
	Runtime   string   `yaml:"runtime,omitempty"`
	Network   string   `yaml:"network,omitempty"`
	ExtraArgs []string `yaml:"extra_args,omitempty"`
}

// Enabled reports whether runs go through a container runtime.
func (c ContainerConfig) Enabled() bool {
	return c.Image != ""
}

// Config is the slwrap.yaml document.
type Config struct {
	PluginsDir string `yaml:"plugins_dir,omitempty"`
	// Launcher prefixes every module invocation, e.g. "Slicer --launch".
	Launcher       string            `yaml:"launcher,omitempty"`
	SchemaFlag     string            `yaml:"schema_flag,omitempty"`
	WorkDir        string            `yaml:"work_dir,omitempty"`
	DataDir        string            `yaml:"data_dir,omitempty"`
	Env            map[string]string `yaml:"env,omitempty"`
	EnvInheritance bool              `yaml:"env_inheritance,omitempty"`
	Log            LogConfig         `yaml:"log,omitempty"`
	Journal        JournalConfig     `yaml:"journal,omitempty"`
	Cache          CacheConfig       `yaml:"cache,omitempty"`
	Container      ContainerConfig   `yaml:"container,omitempty"`
}

// EnvSlice returns Env as sorted KEY=VALUE pairs.
func (c *Config) EnvSlice() []string {
	if c == nil {
		return nil
	}
	out := make([]string, 0, len(c.Env))
	for k, v := range c.Env {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}
