package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/threatgate/threatgate/internal/config"
	"github.com/threatgate/threatgate/internal/logger"
	"github.com/threatgate/threatgate/internal/policy"
	"github.com/threatgate/threatgate/internal/quarantine"
	"github.com/threatgate/threatgate/internal/store"
)

var (
	buildVersion string
	buildDate    string
	buildCommit  string
)

// threatgated runs the engine headless: it opens the store, seeds the
// builtin templates and keeps the retention sweep ticking until a stop
// signal arrives. Administrative one-shot operations live in threatgatectl.
func main() {
	printBuildInfo()

	log := logger.NewLogger("threatgated")

	cfg, err := config.GetConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("error getting configs")
	}

	log.Debug().Any("config", cfg).Msg("received configs")

	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGTERM,
		syscall.SIGINT,
		syscall.SIGQUIT,
	)
	defer stop()

	stores, err := store.NewStorages(ctx, cfg.Storage, cfg.Breaker, log)
	if err != nil {
		log.Fatal().Err(err).Msg("error creating storages")
	}
	defer stores.Close()

	graph, err := policy.NewGraph(stores, cfg.Cache.Size, log)
	if err != nil {
		log.Fatal().Err(err).Msg("error creating policy graph")
	}

	if err = graph.SeedBuiltinTemplates(ctx); err != nil {
		log.Fatal().Err(err).Msg("error seeding builtin templates")
	}

	manager, err := quarantine.NewManager(ctx, cfg.Quarantine, stores, log)
	if err != nil {
		log.Fatal().Err(err).Msg("error creating quarantine manager")
	}
	defer manager.Close()

	if cfg.Quarantine.CleanupInterval > 0 {
		job := quarantine.NewCleanupJob(manager, log)
		job.Start(ctx, cfg.Quarantine.CleanupInterval)
		defer job.Stop()
	}

	log.Info().
		Str("db", cfg.Storage.DBPath).
		Str("quarantine_dir", cfg.Quarantine.Dir).
		Dur("cleanup_interval", cfg.Quarantine.CleanupInterval).
		Msg("engine running")

	<-ctx.Done()

	log.Info().Msg("stop signal received, shutting down")
}

func printBuildInfo() {
	if buildVersion == "" {
		buildVersion = "N/A"
	}

	if buildDate == "" {
		buildDate = "N/A"
	}

	if buildCommit == "" {
		buildCommit = "N/A"
	}

	fmt.Printf("Build version: %s\n", buildVersion)
	fmt.Printf("Build date: %s\n", buildDate)
	fmt.Printf("Build commit: %s\n", buildCommit)
}
