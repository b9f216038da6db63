package main

import (
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/seantiz/cloudlaunch/internal/api"
	"github.com/seantiz/cloudlaunch/internal/audit"
	"github.com/seantiz/cloudlaunch/internal/config"
	"github.com/seantiz/cloudlaunch/internal/engine"
	"github.com/seantiz/cloudlaunch/internal/expiry"
	"github.com/seantiz/cloudlaunch/internal/guard"
	"github.com/seantiz/cloudlaunch/internal/jobs"
	"github.com/seantiz/cloudlaunch/internal/provider"
	"github.com/seantiz/cloudlaunch/internal/provider/sim"
	"github.com/seantiz/cloudlaunch/internal/state"
)

func main() {
	// Optional .env for local development; real deployments set the
	// environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	logger := config.NewLogger(os.Stdout, cfg.Level())

	logger.Info("cloudlaunch: starting",
		"listen_addr", cfg.ListenAddr,
		"provider", cfg.Provider,
		"audit_db_path", cfg.AuditDBPath,
		"auto_destroy_ttl", cfg.AutoDestroyTTL,
	)

	auditStore, err := audit.NewSQLiteStore(cfg.AuditDBPath)
	if err != nil {
		log.Fatalf("failed to open audit database: %v", err)
	}
	defer auditStore.Close()

	stateStore, err := state.NewStore(cfg.StatePath)
	if err != nil {
		log.Fatalf("failed to open state store: %v", err)
	}

	registry := provider.NewRegistry()
	registry.Register("sim", sim.New(500*time.Millisecond))

	if _, err := registry.Resolve(cfg.Provider); err != nil {
		log.Fatalf("configured provider: %v", err)
	}

	jobStore := jobs.NewStore()
	concurrency := guard.NewConcurrencyGuard(cfg.MaxConcurrentJobs, cfg.MaxJobsPerIP)
	budget := guard.NewBudgetGuard(cfg.MaxActiveVMs)
	keys := guard.NewKeyGuard(cfg.APIKey, cfg.APIKeyMaxUses)
	rate := guard.NewRateLimiter(cfg.RateLimitReadRPM, cfg.RateLimitWriteRPM)
	timer := expiry.NewTimer(budget.Release, logger)

	eng := engine.NewEngine(jobStore, concurrency, logger)
	eng.OnFinish = api.RecordJobOutcome

	srv := api.NewServer(cfg, api.Deps{
		Jobs:        jobStore,
		Engine:      eng,
		Registry:    registry,
		State:       stateStore,
		Audit:       auditStore,
		Rate:        rate,
		Keys:        keys,
		Concurrency: concurrency,
		Budget:      budget,
		Expiry:      timer,
		Logger:      logger,
	})

	if err := srv.Run(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
