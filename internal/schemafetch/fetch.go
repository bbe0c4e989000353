// SPDX-License-Identifier: AGPL-3.0-or-later
package schemafetch

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"github.com/flowd-org/slicerwrap/internal/observability/tracing"
)

// DefaultFlag is the argument that makes a module print its schema.
const DefaultFlag = "--xml"

// Fetcher runs modules to obtain their schema documents.
type Fetcher struct {
	// Flag overrides DefaultFlag.
	Flag string
	// Env is appended to the current process environment.
	Env    []string
	Dir    string
	Logger *slog.Logger
}

// Fetch runs command (launcher words followed by the executable) with the
// schema flag and parses its standard output.
func (f *Fetcher) Fetch(ctx context.Context, command []string) (doc *Document, err error) {
	if len(command) == 0 {
		return nil, &SchemaFetchError{Op: OpStart, Err: errors.New("empty command")}
	}
	exe := command[len(command)-1]
	ctx, span := tracing.Start(ctx, "schema.fetch", tracing.String("executable", exe))
	defer tracing.End(span, &err)

	flag := f.Flag
	if flag == "" {
		flag = DefaultFlag
	}
	args := append(append([]string(nil), command[1:]...), flag)
	cmd := exec.CommandContext(ctx, command[0], args...)
	cmd.Dir = f.Dir
	cmd.Env = append(os.Environ(), f.Env...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	started := time.Now()
	runErr := cmd.Run()
	logger := f.logger()
	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			logger.Warn("schema fetch failed",
				slog.String("executable", exe),
				slog.Int("exit_code", exitErr.ExitCode()))
			return nil, &SchemaFetchError{
				Executable: exe,
				Op:         OpExit,
				ExitCode:   exitErr.ExitCode(),
				Stderr:     truncate(stderr.String()),
				Err:        runErr,
			}
		}
		return nil, &SchemaFetchError{Executable: exe, Op: OpStart, Err: runErr}
	}

	doc, err = Parse(stdout.Bytes())
	if err != nil {
		var sfe *SchemaFetchError
		if errors.As(err, &sfe) {
			sfe.Executable = exe
			sfe.Stderr = truncate(stderr.String())
		}
		return nil, err
	}
	logger.Debug("schema fetched",
		slog.String("executable", exe),
		slog.Int("bytes", stdout.Len()),
		slog.Duration("elapsed", time.Since(started)))
	return doc, nil
}

func (f *Fetcher) logger() *slog.Logger {
	if f.Logger != nil {
		return f.Logger
	}
	return slog.Default()
}
