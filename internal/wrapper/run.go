// SPDX-License-Identifier: AGPL-3.0-or-later
package wrapper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/kballard/go-shellquote"

	"github.com/flowd-org/slicerwrap/internal/dyniface"
	"github.com/flowd-org/slicerwrap/internal/events"
	"github.com/flowd-org/slicerwrap/internal/executor"
	"github.com/flowd-org/slicerwrap/internal/executor/container"
	"github.com/flowd-org/slicerwrap/internal/metrics"
)

var (
	// ErrMissingInput means a required input path does not exist.
	ErrMissingInput = errors.New("input file does not exist")
	// ErrMissingOutput means a requested output was not produced.
	ErrMissingOutput = errors.New("output file was not produced")
)

// ContainerSettings select container execution for Run.
type ContainerSettings struct {
	Runtime   container.Runtime
	Image     string
	Network   string
	ExtraArgs []string
}

// RunRecorder persists run records. *coredb.Runs satisfies it.
type RunRecorder interface {
	Start(ctx context.Context, id, module, cmdline string) error
	Finish(ctx context.Context, id string, exitCode int, errMsg string, outputs map[string]string) error
}

// ExecFunc executes one invocation. executor.Run is the default.
type ExecFunc func(ctx context.Context, inv executor.Invocation) executor.Result

// RunOptions configure Run.
type RunOptions struct {
	RunID     string
	Sink      events.Sink
	Recorder  RunRecorder
	Stdout    io.Writer
	Stderr    io.Writer
	Verbosity int
	Exec      ExecFunc
}

// Outcome reports a finished run.
type Outcome struct {
	RunID    string                    `json:"run_id"`
	Module   string                    `json:"module"`
	Cmdline  string                    `json:"cmdline"`
	ExitCode int                       `json:"exit_code"`
	Outputs  map[string]dyniface.Value `json:"outputs"`
}

// Run checks inputs, executes the module in its work directory, then
// resolves outputs and verifies that each requested file exists.
func (m *Module) Run(ctx context.Context, opts RunOptions) (out Outcome, err error) {
	if opts.RunID == "" {
		opts.RunID = events.GenerateRunID()
	}
	if opts.Exec == nil {
		opts.Exec = executor.Run
	}
	out = Outcome{RunID: opts.RunID, Module: m.name}

	if err := m.CheckInputs(); err != nil {
		return out, err
	}
	argv, err := m.Argv()
	if err != nil {
		return out, err
	}
	out.Cmdline = shellquote.Join(argv...)
	outputs, err := m.ListOutputs()
	if err != nil {
		return out, err
	}
	if err := ensureOutputDirs(outputs); err != nil {
		return out, err
	}

	if opts.Sink != nil {
		opts.Sink.EmitRunStart(opts.RunID, m.name)
	}
	if opts.Recorder != nil {
		if rerr := opts.Recorder.Start(ctx, opts.RunID, m.name, out.Cmdline); rerr != nil {
			m.logger.Warn("record run start", slog.String("run_id", opts.RunID), slog.String("error", rerr.Error()))
		}
	}
	started := time.Now()
	inContainer := m.opts.Container != nil && m.opts.Container.Image != ""
	defer func() {
		status := events.StatusCompleted
		errMsg := ""
		if err != nil {
			status = events.StatusFailed
			errMsg = err.Error()
		}
		metrics.Default.RecordModuleRun(m.name, status, inContainer, time.Since(started))
		if opts.Sink != nil {
			opts.Sink.EmitRunFinish(opts.RunID, status, err)
		}
		if opts.Recorder != nil {
			if rerr := opts.Recorder.Finish(context.WithoutCancel(ctx), opts.RunID, out.ExitCode, errMsg, pathMap(out.Outputs)); rerr != nil {
				m.logger.Warn("record run finish", slog.String("run_id", opts.RunID), slog.String("error", rerr.Error()))
			}
		}
	}()

	inv := executor.Invocation{
		RunID:      opts.RunID,
		Module:     m.name,
		Argv:       argv,
		Dir:        m.workDir,
		Env:        m.opts.Env,
		EnvInherit: m.opts.EnvInherit,
		Emitter:    opts.Sink,
		Stdout:     opts.Stdout,
		Stderr:     opts.Stderr,
		Verbosity:  opts.Verbosity,
		Logger:     m.logger,
	}
	if c := m.opts.Container; inContainer {
		inv.Container = &executor.ContainerOptions{
			Runtime:   c.Runtime,
			Image:     c.Image,
			Network:   c.Network,
			ExtraArgs: c.ExtraArgs,
			Mounts:    m.mounts(outputs),
		}
	}

	m.logger.Info("running module", slog.String("module", m.name), slog.String("run_id", opts.RunID))
	res := opts.Exec(ctx, inv)
	out.ExitCode = res.ExitCode
	if res.Err != nil {
		return out, fmt.Errorf("%s: %w", m.name, res.Err)
	}

	out.Outputs = outputs
	if err := m.checkOutputs(outputs); err != nil {
		return out, err
	}
	return out, nil
}

// CheckInputs fails for a set file-like input whose path is required to
// exist but does not.
func (m *Module) CheckInputs() error {
	for _, p := range m.iface.Schema().Parameters {
		if !p.ExistsRequired || p.IsOutputToggle() {
			continue
		}
		v, err := m.iface.Inputs.Get(p.Name)
		if err != nil {
			return err
		}
		path, ok := v.Path()
		if !ok {
			continue
		}
		if _, err := os.Stat(m.abs(path)); err != nil {
			return fmt.Errorf("%s %s=%s: %w", m.name, p.Name, path, ErrMissingInput)
		}
	}
	return nil
}

func (m *Module) checkOutputs(outputs map[string]dyniface.Value) error {
	names := make([]string, 0, len(outputs))
	for name := range outputs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		path, ok := outputs[name].Path()
		if !ok {
			continue
		}
		if _, err := os.Stat(m.abs(path)); err != nil {
			return fmt.Errorf("%s %s=%s: %w", m.name, name, path, ErrMissingOutput)
		}
	}
	return nil
}

func (m *Module) abs(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(m.workDir, path)
}

func (m *Module) mounts(outputs map[string]dyniface.Value) []container.Mount {
	var readOnly []string
	for _, p := range m.iface.Schema().Parameters {
		if !p.Kind.Scalar.IsPath() || p.IsOutputToggle() {
			continue
		}
		v, _ := m.iface.Inputs.Get(p.Name)
		for _, path := range v.Paths() {
			readOnly = append(readOnly, m.abs(path))
		}
	}
	writable := []string{m.workDir}
	for _, v := range outputs {
		if path, ok := v.Path(); ok {
			writable = append(writable, filepath.Dir(m.abs(path)))
		}
	}
	return container.MountsFor(readOnly, writable)
}

func ensureOutputDirs(outputs map[string]dyniface.Value) error {
	for name, v := range outputs {
		path, ok := v.Path()
		if !ok || !filepath.IsAbs(path) {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("output %s: %w", name, err)
		}
	}
	return nil
}

func pathMap(outputs map[string]dyniface.Value) map[string]string {
	if len(outputs) == 0 {
		return nil
	}
	out := make(map[string]string, len(outputs))
	for name, v := range outputs {
		if v.IsDefined() {
			out[name] = v.String()
		}
	}
	return out
}
