// Command worker runs an App Worker as described in spec.md §5: it claims
// HttpJobs off its own queue, runs them through registered handlers, and
// advertises its routes to the shared Route Registry.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/devenwen/callme-gate/internal/config"
	"github.com/devenwen/callme-gate/internal/jobrepo"
	"github.com/devenwen/callme-gate/internal/logger"
	"github.com/devenwen/callme-gate/internal/metrics"
	"github.com/devenwen/callme-gate/internal/routing"
	"github.com/devenwen/callme-gate/internal/store"
	"github.com/devenwen/callme-gate/internal/tracing"
	"github.com/devenwen/callme-gate/internal/worker"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var logMode, versionFlag string
	root := &cobra.Command{
		Use:   "worker",
		Short: "callme-gate App Worker",
	}
	root.PersistentFlags().StringVar(&logMode, "log-mode", "dev", "logger mode: dev or prod")
	root.PersistentFlags().StringVar(&versionFlag, "version", "", "worker_version this process advertises (default: WORKER_VERSION env, else hostname)")

	run := &cobra.Command{
		Use:   "run",
		Short: "start claiming and executing jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker(logMode, versionFlag)
		},
	}
	root.AddCommand(run)
	return root
}

func runWorker(logMode, versionFlag string) error {
	log, err := logger.New(logMode)
	if err != nil {
		return fmt.Errorf("worker: logger init: %w", err)
	}
	defer log.Sync()

	storeCfg := config.LoadStore(log)
	workerCfg := config.LoadWorker(log, versionFlag)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	shutdownTracing := tracing.Init(ctx, log, tracing.Config{ServiceName: "callme-worker"})
	defer func() { _ = shutdownTracing(context.Background()) }()

	rdb, err := store.NewRedisStore(log, store.Config{
		Addr:     storeCfg.Addr(),
		Password: storeCfg.Password,
		DB:       storeCfg.DB,
		UseTLS:   storeCfg.UseTLS,
	})
	if err != nil {
		return fmt.Errorf("worker: store init: %w", err)
	}
	defer rdb.Close()

	mc := metrics.New()
	jobTTL := 5 * time.Minute
	jobs := jobrepo.New(rdb, jobTTL)
	routes := routing.NewRegistry(rdb)

	handlers := worker.NewRegistry()
	if err := handlers.Register(echoHandler{}); err != nil {
		return err
	}
	if err := handlers.Register(newCounterHandler(rdb)); err != nil {
		return err
	}
	if err := handlers.Register(newSlowHandler(45 * time.Second)); err != nil {
		return err
	}

	w := worker.New(log, rdb, jobs, handlers, routes, mc,
		workerCfg.Version, workerCfg.PoolSize, workerCfg.PopTimeout, workerCfg.HeartbeatPeriod)

	if err := w.AdvertiseRoutes(ctx); err != nil {
		return fmt.Errorf("worker: advertise routes: %w", err)
	}
	log.Info("worker starting", "version", workerCfg.Version, "pool_size", workerCfg.PoolSize)

	if err := w.Run(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("worker: run: %w", err)
	}

	if err := routes.Deregister(context.Background(), workerCfg.Version); err != nil {
		log.Warn("deregister on shutdown failed", "error", err)
	}
	log.Info("worker stopped")
	return nil
}
