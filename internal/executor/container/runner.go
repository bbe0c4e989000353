// SPDX-License-Identifier: AGPL-3.0-or-later

// Package container builds podman/docker command lines for running a module
// inside an image.
package container

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Runtime is a container runtime CLI.
type Runtime string

const (
	RuntimePodman Runtime = "podman"
	RuntimeDocker Runtime = "docker"
)

// DetectRuntime returns podman when available, else docker.
func DetectRuntime(lookPath func(string) (string, error)) (Runtime, error) {
	if lookPath == nil {
		lookPath = execLookPath
	}
	for _, rt := range []Runtime{RuntimePodman, RuntimeDocker} {
		if _, err := lookPath(string(rt)); err == nil {
			return rt, nil
		}
	}
	return "", fmt.Errorf("no supported container runtime found (podman or docker)")
}

// ParseRuntime validates a configured runtime name. Empty means detect.
func ParseRuntime(name string) (Runtime, error) {
	switch rt := Runtime(strings.ToLower(strings.TrimSpace(name))); rt {
	case "", RuntimePodman, RuntimeDocker:
		return rt, nil
	default:
		return "", fmt.Errorf("unsupported container runtime %q", name)
	}
}

// RunOptions describe one containerised module invocation.
type RunOptions struct {
	Runtime     Runtime
	Image       string
	Command     []string
	Env         map[string]string
	WorkDir     string
	Mounts      []Mount
	NetworkMode string
	Name        string
	Remove      bool
	ExtraArgs   []string
}

// Mount is a bind mount from host to container.
type Mount struct {
	Source      string
	Destination string
	ReadOnly    bool
}

// MountsFor binds the directories holding the given paths at identical
// container paths. A directory listed as writable is mounted read-write even
// when it also holds a read-only path.
func MountsFor(readOnly, writable []string) []Mount {
	modes := make(map[string]bool)
	add := func(p string, rw bool) {
		if p == "" {
			return
		}
		abs, err := filepath.Abs(p)
		if err != nil {
			return
		}
		modes[abs] = modes[abs] || rw
	}
	for _, p := range readOnly {
		add(filepath.Dir(p), false)
	}
	for _, p := range writable {
		add(p, true)
	}
	dirs := make([]string, 0, len(modes))
	for d := range modes {
		dirs = append(dirs, d)
	}
	sort.Strings(dirs)
	out := make([]Mount, 0, len(dirs))
	for _, d := range dirs {
		out = append(out, Mount{Source: d, Destination: d, ReadOnly: !modes[d]})
	}
	return out
}

// BuildArgs returns the runtime argv with locked-down defaults: all
// capabilities dropped, read-only root filesystem and no network unless
// NetworkMode says otherwise.
func BuildArgs(opts RunOptions) ([]string, error) {
	if opts.Image == "" {
		return nil, fmt.Errorf("image is required")
	}
	if opts.Runtime == "" {
		return nil, fmt.Errorf("runtime is required")
	}
	if len(opts.Command) == 0 {
		return nil, fmt.Errorf("command is required")
	}

	args := []string{string(opts.Runtime), "run"}
	if opts.Remove {
		args = append(args, "--rm")
	}
	if opts.Name != "" {
		args = append(args, "--name", opts.Name)
	}
	args = append(args,
		"--cap-drop=ALL",
		"--security-opt=no-new-privileges",
		"--read-only",
	)
	network := opts.NetworkMode
	if network == "" {
		network = "none"
	}
	args = append(args, "--network", network)
	if opts.WorkDir != "" {
		args = append(args, "--workdir", opts.WorkDir)
	}

	keys := make([]string, 0, len(opts.Env))
	for k := range opts.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, "--env", k+"="+opts.Env[k])
	}

	for _, m := range opts.Mounts {
		if err := validateMount(m); err != nil {
			return nil, err
		}
		mode := "rw"
		if m.ReadOnly {
			mode = "ro"
		}
		args = append(args, "--volume", fmt.Sprintf("%s:%s:%s", m.Source, m.Destination, mode))
	}
	args = append(args, opts.ExtraArgs...)
	args = append(args, opts.Image)
	return append(args, opts.Command...), nil
}

func validateMount(m Mount) error {
	if m.Source == "" || m.Destination == "" {
		return fmt.Errorf("invalid mount: missing source or destination")
	}
	if !filepath.IsAbs(m.Destination) {
		return fmt.Errorf("invalid mount destination %q: must be absolute", m.Destination)
	}
	return nil
}

var execLookPath = exec.LookPath

var runtimeCommand = func(ctx context.Context, runtime Runtime, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, string(runtime), args...).CombinedOutput()
}

// StopContainer stops name, treating a missing container as success.
func StopContainer(ctx context.Context, runtime Runtime, name string, timeout time.Duration) error {
	if runtime == "" || name == "" {
		return nil
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	seconds := max(int(timeout.Seconds()), 1)
	runCtx, cancel := context.WithTimeout(ctx, timeout+5*time.Second)
	defer cancel()
	output, err := runtimeCommand(runCtx, runtime, "stop", "--time", strconv.Itoa(seconds), name)
	if err != nil && !isContainerNotFound(output) {
		return fmt.Errorf("stop container %s: %w", name, err)
	}
	return nil
}

// RemoveContainer force-removes name, treating a missing container as success.
func RemoveContainer(ctx context.Context, runtime Runtime, name string) error {
	if runtime == "" || name == "" {
		return nil
	}
	runCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	args := []string{"rm", "--force"}
	if runtime == RuntimePodman {
		args = append(args, "--ignore")
	}
	output, err := runtimeCommand(runCtx, runtime, append(args, name)...)
	if err != nil && !isContainerNotFound(output) {
		return fmt.Errorf("remove container %s: %w", name, err)
	}
	return nil
}

func isContainerNotFound(output []byte) bool {
	msg := strings.ToLower(strings.TrimSpace(string(output)))
	return msg != "" && (strings.Contains(msg, "no such container") || strings.Contains(msg, "not found"))
}
