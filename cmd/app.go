// SPDX-License-Identifier: AGPL-3.0-or-later
package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/flowd-org/slicerwrap/internal/configloader"
	"github.com/flowd-org/slicerwrap/internal/coredb"
	"github.com/flowd-org/slicerwrap/internal/executor/container"
	"github.com/flowd-org/slicerwrap/internal/logging"
	"github.com/flowd-org/slicerwrap/internal/paths"
	"github.com/flowd-org/slicerwrap/internal/types"
	"github.com/flowd-org/slicerwrap/internal/workflow"
	"github.com/flowd-org/slicerwrap/internal/wrapper"
)

// app is the per-invocation state shared by commands: resolved config,
// logger and a lazily opened database.
type app struct {
	cfg       *types.Config
	logger    *slog.Logger
	verbosity int
	launcher  []string
	db        *coredb.DB
}

// loadApp resolves configuration from the config file, SLWRAP_* variables
// and flags. flags defaults to cmd.Flags().
func loadApp(cmd *cobra.Command, flags *pflag.FlagSet) (*app, error) {
	if flags == nil {
		flags = cmd.Flags()
	}
	configPath, _ := flags.GetString("config")
	cfg, err := configloader.Load(configPath, flags)
	if err != nil {
		return nil, err
	}
	verbose, _ := flags.GetCount("verbose")
	logger := logging.New(logging.Verbosity(cfg.Log.Level, verbose), cfg.Log.Format, cmd.ErrOrStderr())
	slog.SetDefault(logger)

	if cfg.DataDir != "" {
		paths.SetDataDirOverride(cfg.DataDir)
	}
	launcher, err := configloader.LauncherArgs(cfg)
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, logger: logger, verbosity: verbose, launcher: launcher}, nil
}

func (a *app) openDB(ctx context.Context) (*coredb.DB, error) {
	if a.db != nil {
		return a.db, nil
	}
	db, err := coredb.Open(ctx, coredb.Options{
		DataDir:         a.cfg.DataDir,
		JournalMaxBytes: a.cfg.Journal.MaxBytes,
	})
	if err != nil {
		return nil, fmt.Errorf("open data store: %w", err)
	}
	a.db = db
	return db, nil
}

func (a *app) close() {
	if a.db == nil {
		return
	}
	if err := a.db.Close(); err != nil {
		a.logger.Warn("close data store", slog.String("error", err.Error()))
	}
	a.db = nil
}

// moduleOptions maps the config onto wrapper.Options. The schema cache is
// best effort: a store that cannot be opened only costs a schema request.
func (a *app) moduleOptions(ctx context.Context, useCache bool) (wrapper.Options, error) {
	opts := wrapper.Options{
		PluginsDir: a.cfg.PluginsDir,
		Launcher:   a.launcher,
		SchemaFlag: a.cfg.SchemaFlag,
		WorkDir:    a.cfg.WorkDir,
		Env:        a.cfg.Env,
		EnvInherit: a.cfg.EnvInheritance,
		Logger:     a.logger,
	}
	if c := a.cfg.Container; c.Enabled() {
		settings := &wrapper.ContainerSettings{
			Image:     c.Image,
			Network:   c.Network,
			ExtraArgs: c.ExtraArgs,
		}
		if c.Runtime != "" {
			rt, err := container.ParseRuntime(c.Runtime)
			if err != nil {
				return opts, err
			}
			settings.Runtime = rt
		}
		opts.Container = settings
	}
	if useCache && !a.cfg.Cache.Disabled {
		db, err := a.openDB(ctx)
		if err != nil {
			a.logger.Warn("schema cache unavailable", slog.String("error", err.Error()))
		} else {
			opts.Cache = coredb.NewSchemaCache(db, a.cfg.Cache.MaxBytes)
		}
	}
	return opts, nil
}

// resolver lets workflow definitions reference the FSL catalog and wrapped
// modules.
func (a *app) resolver(opts wrapper.Options, catalog func(string) (workflow.Interface, bool)) workflow.Resolver {
	return workflow.Resolver{
		Catalog: catalog,
		Module: func(ctx context.Context, name string) (workflow.Interface, error) {
			m, err := wrapper.New(ctx, name, opts)
			if err != nil {
				return nil, err
			}
			return m, nil
		},
	}
}
