// SPDX-License-Identifier: AGPL-3.0-or-later

// Package wrapper turns a CLI module into a typed, runnable object. The
// module's schema is fetched, compiled and materialised once in New; after
// that only input values change.
package wrapper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/kballard/go-shellquote"

	"github.com/flowd-org/slicerwrap/internal/compiler"
	"github.com/flowd-org/slicerwrap/internal/coredb"
	"github.com/flowd-org/slicerwrap/internal/dyniface"
	"github.com/flowd-org/slicerwrap/internal/engine"
	"github.com/flowd-org/slicerwrap/internal/observability/tracing"
	"github.com/flowd-org/slicerwrap/internal/schemafetch"
	"github.com/flowd-org/slicerwrap/internal/types"
)

// Source produces the schema document of a module command.
type Source interface {
	Fetch(ctx context.Context, command []string) (*schemafetch.Document, error)
}

// Cache keeps raw schema documents between processes.
type Cache interface {
	Get(ctx context.Context, executable, fingerprint string) ([]byte, bool, error)
	Put(ctx context.Context, executable, fingerprint string, doc []byte) error
}

// Options configure New.
type Options struct {
	// PluginsDir resolves bare module names.
	PluginsDir string
	// Launcher words precede the executable for both the schema request and
	// the run.
	Launcher   []string
	SchemaFlag string
	// WorkDir anchors default output filenames and is the run directory.
	WorkDir    string
	Env        map[string]string
	EnvInherit bool
	// Source defaults to a schemafetch.Fetcher.
	Source    Source
	Cache     Cache
	Container *ContainerSettings
	Logger    *slog.Logger
}

// Module is one wrapped CLI module.
type Module struct {
	name       string
	executable string
	command    []string
	workDir    string
	iface      *dyniface.Interface
	opts       Options
	logger     *slog.Logger
}

// New resolves name to an executable, obtains its schema and builds the
// module's interface. Any failure leaves no partially built module.
func New(ctx context.Context, name string, opts Options) (m *Module, err error) {
	if strings.TrimSpace(name) == "" {
		return nil, errors.New("module name required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ctx, span := tracing.Start(tracing.WithLogger(ctx, logger), "wrapper.new", tracing.Module(name))
	defer tracing.End(span, &err)

	workDir, err := absWorkDir(opts.WorkDir)
	if err != nil {
		return nil, err
	}
	exe := Resolve(name, opts.PluginsDir, len(opts.Launcher) > 0)
	command := append(append([]string(nil), opts.Launcher...), exe)

	doc, err := loadSchema(ctx, exe, command, opts, logger)
	if err != nil {
		return nil, err
	}
	schema, err := compiler.Compile(doc, compiler.Options{WorkDir: workDir})
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", name, err)
	}
	logger.Debug("interface compiled",
		slog.String("module", moduleName(name)),
		slog.Int("parameters", len(schema.Parameters)),
		slog.Int("outputs", len(schema.Outputs)))

	m = &Module{
		name:       moduleName(name),
		executable: exe,
		command:    command,
		workDir:    workDir,
		iface:      dyniface.New(schema),
		opts:       opts,
		logger:     logger,
	}
	m.iface.Inputs.OnChange(func(field string, old, next dyniface.Value) {
		logger.Debug("input changed",
			slog.String("module", m.name),
			slog.String("field", field),
			slog.String("old", old.String()),
			slog.String("new", next.String()))
	})
	return m, nil
}

// Resolve maps a module name to the executable path used to invoke it. Paths
// are kept as given. Bare names are joined onto pluginsDir, otherwise looked
// up on PATH. With a launcher an unresolved bare name is passed through for
// the launcher to find.
func Resolve(name, pluginsDir string, launched bool) string {
	if strings.ContainsRune(name, os.PathSeparator) || strings.Contains(name, "/") {
		if abs, err := filepath.Abs(name); err == nil {
			return abs
		}
		return name
	}
	if pluginsDir != "" {
		return filepath.Join(pluginsDir, name)
	}
	if launched {
		return name
	}
	if path, err := exec.LookPath(name); err == nil {
		return path
	}
	return name
}

func moduleName(name string) string {
	return filepath.Base(name)
}

func absWorkDir(dir string) (string, error) {
	if dir == "" {
		return os.Getwd()
	}
	return filepath.Abs(dir)
}

func loadSchema(ctx context.Context, exe string, command []string, opts Options, logger *slog.Logger) (*schemafetch.Document, error) {
	var fingerprint string
	if opts.Cache != nil {
		if fp, err := coredb.Fingerprint(exe); err == nil {
			fingerprint = cacheFingerprint(fp, opts.SchemaFlag, command)
		}
	}
	if fingerprint != "" {
		raw, ok, err := opts.Cache.Get(ctx, exe, fingerprint)
		switch {
		case err != nil:
			logger.Warn("schema cache lookup failed", slog.String("executable", exe), slog.String("error", err.Error()))
		case ok:
			if doc, err := schemafetch.Parse(raw); err == nil {
				logger.Debug("schema cache hit", slog.String("executable", exe))
				return doc, nil
			}
			logger.Warn("discarding unreadable cached schema", slog.String("executable", exe))
		}
	}

	src := opts.Source
	if src == nil {
		src = &schemafetch.Fetcher{Flag: opts.SchemaFlag, Env: envPairs(opts.Env), Dir: opts.WorkDir, Logger: logger}
	}
	doc, err := src.Fetch(ctx, command)
	if err != nil {
		return nil, err
	}
	if fingerprint != "" && len(doc.Raw) > 0 {
		if err := opts.Cache.Put(ctx, exe, fingerprint, doc.Raw); err != nil {
			logger.Warn("schema cache store failed", slog.String("executable", exe), slog.String("error", err.Error()))
		}
	}
	return doc, nil
}

// cacheFingerprint ties a cached document to the executable build and to
// the command line that requested it.
func cacheFingerprint(fileFingerprint, schemaFlag string, command []string) string {
	flag := schemaFlag
	if flag == "" {
		flag = schemafetch.DefaultFlag
	}
	return fileFingerprint + "|" + flag + "|" + shellquote.Join(command...)
}

func envPairs(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}

func (m *Module) Name() string                   { return m.name }
func (m *Module) Executable() string             { return m.executable }
func (m *Module) WorkDir() string                { return m.workDir }
func (m *Module) Interface() *dyniface.Interface { return m.iface }
func (m *Module) Inputs() *dyniface.Container    { return m.iface.Inputs }
func (m *Module) Outputs() *dyniface.Container   { return m.iface.Outputs }
func (m *Module) Info() types.ModuleInfo         { return m.iface.Schema().Info }

// Command returns the launcher words followed by the executable.
func (m *Module) Command() []string {
	return append([]string(nil), m.command...)
}

// Parameters returns the compiled descriptors in declaration order.
func (m *Module) Parameters() []types.ParameterDescriptor {
	return append([]types.ParameterDescriptor(nil), m.iface.Schema().Parameters...)
}

// Set assigns an input value. See dyniface.Container.Set.
func (m *Module) Set(name string, v any) error {
	return m.iface.Inputs.Set(name, v)
}

// Get reads an input value.
func (m *Module) Get(name string) (dyniface.Value, error) {
	return m.iface.Inputs.Get(name)
}

// Argv is the full command for the current inputs.
func (m *Module) Argv() ([]string, error) {
	args, err := engine.Argv(m.iface)
	if err != nil {
		return nil, err
	}
	return append(m.Command(), args...), nil
}

// Cmdline is Argv quoted for a POSIX shell.
func (m *Module) Cmdline() (string, error) {
	argv, err := m.Argv()
	if err != nil {
		return "", err
	}
	return shellquote.Join(argv...), nil
}

// Plan previews the invocation without running it.
func (m *Module) Plan() (types.Plan, error) {
	plan, err := engine.BuildPlan(m.name, m.command, m.iface)
	if err != nil {
		return types.Plan{}, err
	}
	plan.WorkDir = m.workDir
	return plan, nil
}

// ListOutputs resolves every output from the current input toggles.
func (m *Module) ListOutputs() (map[string]dyniface.Value, error) {
	return engine.ResolveOutputs(m.iface)
}

// InterfaceName, InputFields and OutputFields let a Module sit in a workflow.
func (m *Module) InterfaceName() string  { return m.name }
func (m *Module) InputFields() []string  { return m.iface.Inputs.Names() }
func (m *Module) OutputFields() []string { return m.iface.Outputs.Names() }
