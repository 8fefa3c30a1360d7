// Command gate runs the HTTP gateway described in spec.md §4: it accepts
// inbound HTTP requests, matches them against the shared Route Registry, and
// dispatches them to an App Worker via the shared store.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/devenwen/callme-gate/internal/config"
	"github.com/devenwen/callme-gate/internal/dispatch"
	"github.com/devenwen/callme-gate/internal/httpapi"
	"github.com/devenwen/callme-gate/internal/jobrepo"
	"github.com/devenwen/callme-gate/internal/logger"
	"github.com/devenwen/callme-gate/internal/metrics"
	"github.com/devenwen/callme-gate/internal/routing"
	"github.com/devenwen/callme-gate/internal/store"
	"github.com/devenwen/callme-gate/internal/tracing"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var logMode string
	root := &cobra.Command{
		Use:   "gate",
		Short: "callme-gate HTTP gateway",
	}
	root.PersistentFlags().StringVar(&logMode, "log-mode", "dev", "logger mode: dev or prod")

	root.AddCommand(newRunCommand(&logMode))
	root.AddCommand(newRoutesCommand(&logMode))
	return root
}

func newRunCommand(logMode *string) *cobra.Command {
	var strategyName string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "start the Gate HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGate(*logMode, strategyName)
		},
	}
	cmd.Flags().StringVar(&strategyName, "strategy", "round_robin", "route strategy: round_robin or random")
	return cmd
}

func newRoutesCommand(logMode *string) *cobra.Command {
	return &cobra.Command{
		Use:   "routes",
		Short: "print the current route table and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return printRoutes(*logMode)
		},
	}
}

func runGate(logMode, strategyName string) error {
	log, err := logger.New(logMode)
	if err != nil {
		return fmt.Errorf("gate: logger init: %w", err)
	}
	defer log.Sync()

	storeCfg := config.LoadStore(log)
	gateCfg := config.LoadGate(log)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	shutdownTracing := tracing.Init(ctx, log, tracing.Config{ServiceName: "callme-gate"})
	defer func() { _ = shutdownTracing(context.Background()) }()

	rdb, err := store.NewRedisStore(log, store.Config{
		Addr:     storeCfg.Addr(),
		Password: storeCfg.Password,
		DB:       storeCfg.DB,
		UseTLS:   storeCfg.UseTLS,
	})
	if err != nil {
		return fmt.Errorf("gate: store init: %w", err)
	}
	defer rdb.Close()

	mc := metrics.New()
	registry := routing.NewRegistry(rdb)
	jobs := jobrepo.New(rdb, gateCfg.JobTTL)

	var strategy routing.Strategy
	switch strategyName {
	case "random":
		strategy = routing.NewRandom()
	default:
		strategy = routing.NewRoundRobin(rdb)
	}

	dispatcher := dispatch.New(log, rdb, jobs, registry, strategy, mc, gateCfg.DispatchTimeout, gateCfg.StuckThreshold)
	handlers := httpapi.NewHandlers(log, rdb, dispatcher, jobs, registry)
	server := httpapi.NewServer(handlers, mc)

	log.Info("gate starting", "port", gateCfg.Port, "strategy", strategyName)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Engine.Run(":" + gateCfg.Port)
	}()

	select {
	case <-ctx.Done():
		log.Info("gate shutting down")
		return nil
	case err := <-errCh:
		return err
	}
}

func printRoutes(logMode string) error {
	log, err := logger.New(logMode)
	if err != nil {
		return err
	}
	defer log.Sync()

	storeCfg := config.LoadStore(log)
	rdb, err := store.NewRedisStore(log, store.Config{
		Addr:     storeCfg.Addr(),
		Password: storeCfg.Password,
		DB:       storeCfg.DB,
		UseTLS:   storeCfg.UseTLS,
	})
	if err != nil {
		return err
	}
	defer rdb.Close()

	registry := routing.NewRegistry(rdb)
	routes, err := registry.ListAll(context.Background())
	if err != nil {
		return err
	}
	for _, r := range routes {
		fmt.Printf("%-6s %-30s -> %s\n", r.Method, r.PathPattern, r.WorkerVersion)
	}
	return nil
}
