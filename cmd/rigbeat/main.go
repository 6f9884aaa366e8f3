// Copyright © 2024 Mutker Telag <witty.text5011@fastmail.com>
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"codeberg.org/mutker/rigbeat/internal/config"
	"codeberg.org/mutker/rigbeat/internal/errors"
	"codeberg.org/mutker/rigbeat/internal/history"
	"codeberg.org/mutker/rigbeat/internal/logger"
	"codeberg.org/mutker/rigbeat/internal/pid"
	"codeberg.org/mutker/rigbeat/internal/poller"
	"codeberg.org/mutker/rigbeat/internal/registry"
	"codeberg.org/mutker/rigbeat/internal/server"
	"codeberg.org/mutker/rigbeat/internal/source"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
)

// overridden at build time with -ldflags
var version = "dev"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	cfg, err := config.Load(args)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			fmt.Fprintf(stdout, "Usage: rigbeat [flags]\n\n%s", config.Usage())
			return 0
		}
		fmt.Fprintf(stderr, "failed to load config: %v\n", err)
		return 1
	}

	// --once owns stdout
	logOut := stdout
	if cfg.Once {
		logOut = stderr
	}
	logger.InitWithWriter(logOut, cfg.Level(), logger.IsService())
	logger.Debug().Str("file", cfg.File).Msg("Config loaded")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Once {
		return once(ctx, cfg, stdout)
	}

	if err := serve(ctx, cfg); err != nil {
		var coded errors.Error
		if errors.As(err, &coded) {
			logger.ErrorWithCode(coded).Msg("Exporter stopped")
		} else {
			logger.Error().Err(err).Msg("Exporter stopped")
		}
		return 1
	}

	return 0
}

func newSelector(cfg *config.Config) *source.Selector {
	var fast, legacy source.Adapter
	if cfg.Fast.Enabled {
		fast = source.NewFast(source.FastConfig{URL: cfg.Fast.URL, Timeout: cfg.Fast.Timeout})
	}
	if cfg.Legacy.Enabled {
		legacy = source.NewLegacy(source.LegacyConfig{Namespace: cfg.Legacy.Namespace, Timeout: cfg.Legacy.Timeout})
	}

	return source.NewSelector(fast, legacy, source.NewDemo(), cfg.RetryEvery)
}

// once polls a single time and prints the published series, for discovering
// which sensors a machine exposes and what they are called.
func once(ctx context.Context, cfg *config.Config, out io.Writer) int {
	reg := registry.New(cfg.StaleGrace)
	p := poller.New(poller.Config{Interval: cfg.Interval, Tier: cfg.TierConfig()}, newSelector(cfg), reg, nil, nil)

	snap := p.Cycle(ctx)
	if _, err := snap.WriteTo(out); err != nil {
		logger.Error().Err(err).Msg("Failed to print snapshot")
		return 1
	}

	return 0
}

func serve(ctx context.Context, cfg *config.Config) error {
	pidPath := pid.DefaultPath()
	if err := pid.Write(pidPath); err != nil {
		return err
	}
	defer func() {
		if err := pid.Remove(pidPath); err != nil {
			logger.Warn().Err(err).Msg("Failed to remove PID file")
		}
	}()

	logger.Info().
		Str("version", version).
		Str("tier", cfg.Tier).
		Dur("interval", cfg.Interval).
		Bool("fast", cfg.Fast.Enabled).
		Bool("legacy", cfg.Legacy.Enabled).
		Bool("history", cfg.History.Enabled).
		Msg("Starting rigbeat")

	rec, err := history.New(history.Config{
		Enabled:         cfg.History.Enabled,
		Path:            cfg.History.Path,
		BatchSize:       cfg.History.BatchSize,
		FlushInterval:   cfg.History.FlushInterval,
		BackupOnMigrate: true,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := rec.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close history")
		}
	}()

	reg := registry.New(cfg.StaleGrace)

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		registry.NewCollector(reg),
	)

	p := poller.New(
		poller.Config{Interval: cfg.Interval, Tier: cfg.TierConfig()},
		newSelector(cfg),
		reg,
		rec,
		poller.NewMetrics(promReg),
	)

	srvCfg := server.DefaultConfig()
	srvCfg.Listen = cfg.Listen
	srv := server.New(srvCfg, promReg, func() bool { return reg.Snapshot().Ready() })

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return p.Run(gctx)
	})
	g.Go(func() error {
		return srv.Start(gctx)
	})

	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info().Msg("Exiting...")

	return nil
}
