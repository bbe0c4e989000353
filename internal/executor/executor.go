// SPDX-License-Identifier: AGPL-3.0-or-later

// Package executor runs synthesized module command lines as child processes,
// streaming their output to an event sink.
package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/kballard/go-shellquote"

	"github.com/flowd-org/slicerwrap/internal/events"
	"github.com/flowd-org/slicerwrap/internal/executor/container"
	"github.com/flowd-org/slicerwrap/internal/observability/tracing"
	"github.com/flowd-org/slicerwrap/internal/paths"
)

// Invocation describes one module process.
type Invocation struct {
	RunID  string
	Module string
	// Argv is the complete command: launcher words, executable, arguments.
	Argv       []string
	Dir        string
	Env        map[string]string
	EnvInherit bool
	Container  *ContainerOptions
	Emitter    events.Sink
	Stdout     io.Writer
	Stderr     io.Writer
	Verbosity  int
	Logger     *slog.Logger
}

// ContainerOptions run the invocation inside an image. Mounts are bound at
// their host paths so argv paths stay valid.
type ContainerOptions struct {
	Runtime   container.Runtime
	Image     string
	Network   string
	ExtraArgs []string
	Mounts    []container.Mount
}

// Result is the outcome of one invocation.
type Result struct {
	Module   string
	ExitCode int
	Duration time.Duration
	Err      error
}

// Run executes inv and waits for it to finish. A non-zero exit is reported
// in Result.Err as *exec.ExitError.
func Run(ctx context.Context, inv Invocation) (res Result) {
	res.Module = inv.Module
	if len(inv.Argv) == 0 {
		res.ExitCode = -1
		res.Err = errors.New("empty command")
		return res
	}
	ctx, span := tracing.Start(ctx, "module.run", tracing.Module(inv.Module), tracing.RunID(inv.RunID))
	defer func() {
		span.SetAttributes(tracing.Int("exit_code", res.ExitCode))
		tracing.End(span, &res.Err)
	}()

	if inv.Emitter != nil {
		inv.Emitter.EmitStepStart(inv.RunID, inv.Module)
		defer func() {
			inv.Emitter.EmitStepFinish(inv.RunID, inv.Module, res.ExitCode, res.Err)
		}()
	}

	env := buildSecureEnv(inv.Env, inv.EnvInherit)
	env = upsertEnv(env, "SLWRAP_DATA_DIR", paths.DataDir())
	if inv.RunID != "" {
		env = upsertEnv(env, "SLWRAP_RUN_ID", inv.RunID)
	}

	argv := inv.Argv
	var containerName string
	var runtime container.Runtime
	if inv.Container != nil {
		var err error
		argv, containerName, runtime, err = containerArgv(ctx, inv, env)
		if err != nil {
			res.ExitCode = -1
			res.Err = err
			return res
		}
	}

	stdoutSink := inv.Stdout
	if stdoutSink == nil {
		stdoutSink = os.Stdout
	}
	stderrSink := inv.Stderr
	if stderrSink == nil {
		stderrSink = os.Stderr
	}
	stdoutWriter := events.NewStepWriter(inv.Emitter, inv.RunID, inv.Module, "stdout", stdoutSink)
	stderrWriter := events.NewStepWriter(inv.Emitter, inv.RunID, inv.Module, "stderr", stderrSink)

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = inv.Dir
	cmd.Env = env
	cmd.Stdout = stdoutWriter
	cmd.Stderr = stderrWriter

	if inv.Verbosity >= 1 {
		fmt.Fprintf(stderrSink, "[RUN] %s\n", shellquote.Join(argv...))
	}
	logger := inv.Logger
	if logger == nil {
		logger = tracing.Logger(ctx)
	}

	start := time.Now()
	err := cmd.Run()
	stdoutWriter.Flush()
	stderrWriter.Flush()
	res.Duration = time.Since(start)

	if containerName != "" && ctx.Err() != nil {
		cleanupContainer(runtime, containerName, logger)
	}
	if err == nil {
		if inv.Verbosity >= 1 {
			fmt.Fprintf(stderrSink, "[OK]  %s in %s\n", inv.Module, res.Duration)
		}
		return res
	}

	res.ExitCode = -1
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = fmt.Errorf("%w: %v", ctxErr, err)
	}
	res.Err = err
	logger.Warn("module failed",
		slog.String("module", inv.Module),
		slog.Int("exit_code", res.ExitCode),
		slog.String("error", err.Error()))
	if inv.Verbosity >= 1 {
		fmt.Fprintf(stderrSink, "[ERR] %s exit %d in %s\n", inv.Module, res.ExitCode, res.Duration)
	}
	return res
}

func containerArgv(ctx context.Context, inv Invocation, env []string) ([]string, string, container.Runtime, error) {
	opts := inv.Container
	runtime := opts.Runtime
	if runtime == "" {
		detected, err := container.DetectRuntime(nil)
		if err != nil {
			return nil, "", "", err
		}
		runtime = detected
	}
	name := "slwrap-" + sanitizeName(inv.RunID)
	if inv.RunID == "" {
		name = fmt.Sprintf("slwrap-%d", time.Now().UnixNano())
	}
	if err := container.RemoveContainer(ctx, runtime, name); err != nil {
		return nil, "", "", fmt.Errorf("prepare container %s: %w", name, err)
	}
	envMap := make(map[string]string, len(env))
	for _, kv := range env {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "PATH" {
			continue
		}
		envMap[k] = v
	}
	args, err := container.BuildArgs(container.RunOptions{
		Runtime:     runtime,
		Image:       opts.Image,
		Command:     inv.Argv,
		Env:         envMap,
		WorkDir:     inv.Dir,
		Mounts:      opts.Mounts,
		NetworkMode: opts.Network,
		Name:        name,
		Remove:      true,
		ExtraArgs:   opts.ExtraArgs,
	})
	if err != nil {
		return nil, "", "", err
	}
	return args, name, runtime, nil
}

func cleanupContainer(runtime container.Runtime, name string, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := container.StopContainer(ctx, runtime, name, 10*time.Second); err != nil {
		logger.Warn("container stop failed", slog.String("container", name), slog.String("error", err.Error()))
	}
	if err := container.RemoveContainer(ctx, runtime, name); err != nil {
		logger.Warn("container remove failed", slog.String("container", name), slog.String("error", err.Error()))
	}
}

func sanitizeName(id string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(id) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	out := strings.Trim(b.String(), "-")
	if out == "" {
		out = "run"
	}
	if len(out) > 56 {
		out = out[:56]
	}
	return out
}

func upsertEnv(env []string, key, value string) []string {
	prefix := key + "="
	for i, kv := range env {
		if strings.HasPrefix(kv, prefix) {
			env[i] = prefix + value
			return env
		}
	}
	return append(env, prefix+value)
}

// buildSecureEnv returns vars plus PATH, and the parent environment only when
// inherit is set. Explicit vars win over inherited ones.
func buildSecureEnv(vars map[string]string, inherit bool) []string {
	type entry struct {
		key string
		val string
	}
	var ordered []entry
	envSet := make(map[string]string)
	set := func(k, v string) {
		if _, exists := envSet[k]; !exists {
			ordered = append(ordered, entry{key: k, val: v})
		}
		envSet[k] = v
	}

	for k, v := range vars {
		set(k, v)
	}
	if _, ok := envSet["PATH"]; !ok {
		if path := os.Getenv("PATH"); path != "" {
			set("PATH", path)
		}
	}
	if inherit {
		for _, kv := range os.Environ() {
			k, v, ok := strings.Cut(kv, "=")
			if !ok {
				continue
			}
			if _, exists := envSet[k]; exists {
				continue
			}
			set(k, v)
		}
	}
	env := make([]string, 0, len(ordered))
	for _, e := range ordered {
		env = append(env, e.key+"="+envSet[e.key])
	}
	return env
}
