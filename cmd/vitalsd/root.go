// Copyright (C) 2026 Flomentum Health
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/flomentum/vitalscore/internal/baseline"
	"github.com/flomentum/vitalscore/internal/catalog"
	"github.com/flomentum/vitalscore/internal/correlation"
	"github.com/flomentum/vitalscore/internal/forecast"
	"github.com/flomentum/vitalscore/internal/httpapi"
)

// rootCmd is vitalsd's cobra entry point. Subcommands share one
// composition root (buildApp) so "serve" and "forecast-worker" can run
// as separate processes against the same badger store, matching the
// teacher's cmd/aleutian split between its daemon and its one-shot
// subcommands.
var rootCmd = &cobra.Command{
	Use:   "vitalsd",
	Short: "vitalsd runs the health-signal processing pipeline",
}

func init() {
	rootCmd.AddCommand(serveCmd, forecastWorkerCmd, reloadCatalogCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "run the HTTP API, forecast worker, and schedulers in one process",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := buildApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.loadCatalog(); err != nil {
			return err
		}

		if a.analyticsQueue != nil {
			worker := a.newForecastWorker()
			go worker.Run(ctx, a.cfg.PollInterval())
		} else {
			a.logger.Warn("analytics queue not configured, forecast worker disabled")
		}

		baselineSched := baseline.NewScheduler(a.baselineCalc, a.users.List, a.cfg.BaselineRefreshLocalHour, time.Minute, a.logger)
		if err := baselineSched.Start(ctx); err != nil {
			return fmt.Errorf("start baseline scheduler: %w", err)
		}
		defer baselineSched.Stop()

		if a.correlationScanner != nil {
			correlationSched := correlation.NewScheduler(
				a.correlationScanner, a.correlationStore, a.samples, a.events.ListSince, a.users.List,
				a.cfg.CorrelationWindowDays, time.Duration(a.cfg.CorrelationMinRescanHours)*time.Hour, time.Hour, a.logger,
			)
			if err := correlationSched.Start(ctx); err != nil {
				return fmt.Errorf("start correlation scheduler: %w", err)
			}
			defer correlationSched.Stop()
		}

		router := httpapi.NewRouter(a.httpDependencies())
		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", a.cfg.HTTPPort),
			Handler: router,
		}

		errCh := make(chan error, 1)
		go func() {
			a.logger.Info("http server listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()

		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		case err := <-errCh:
			return err
		}
	},
}

var forecastWorkerCmd = &cobra.Command{
	Use:   "forecast-worker",
	Short: "run only the forecast recompute worker",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := buildApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if a.analyticsQueue == nil {
			return fmt.Errorf("analytics queue not configured: set analytics_url in vitalscore.yaml")
		}
		worker := a.newForecastWorker()
		worker.Run(ctx, a.cfg.PollInterval())
		return nil
	},
}

var reloadCatalogCmd = &cobra.Command{
	Use:   "reload-catalog",
	Short: "force a one-shot reference-catalog reload from disk and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := buildApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()
		if err := a.loadCatalog(); err != nil {
			return err
		}
		fmt.Println("catalog reloaded")
		return nil
	},
}

// loadCatalog loads the configured catalog file once and installs a
// Watcher so subsequent writes hot-reload it, per §9 "Shared singletons".
func (a *app) loadCatalog() error {
	path := expandHome(a.cfg.CatalogPath)
	w, err := catalog.NewWatcher(path, a.catalog, a.logger)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	a.catalogWatch = w
	return nil
}

// newForecastWorker wires the forecast.Worker's CycleInputsFn against
// this app's daily-aggregate and forecast-goal state.
func (a *app) newForecastWorker() *forecast.Worker {
	w := forecast.NewWorker(a.analyticsQueue, a.forecastStore, a.cfg.HorizonDays, a.cfg.BatchSize, a.cfg.DebounceWindow(), a.logger)
	w.SetCycleInputsFn(a.forecastCycleInputs)
	return w
}

