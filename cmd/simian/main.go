package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	corecfg "github.com/rohanmalviya/simian/internal/core/config"
	"github.com/rohanmalviya/simian/internal/core/storage"
	"github.com/rohanmalviya/simian/internal/core/storage/memory"
	"github.com/rohanmalviya/simian/internal/core/storage/postgres"
	"github.com/rohanmalviya/simian/internal/ingestion"
	"github.com/rohanmalviya/simian/internal/migrations"
	"github.com/rohanmalviya/simian/internal/reports"
	"github.com/rohanmalviya/simian/internal/scheduler"
	"github.com/rohanmalviya/simian/internal/server"

	"golang.org/x/sync/errgroup"
)

// backends groups the storage capabilities the rest of the wiring needs,
// so postgres and memory can plug in interchangeably.
type backends struct {
	msuSource       storage.MSULogSource
	msuAppender     storage.MSULogAppender
	installSource   storage.InstallLogSource
	installAppender storage.InstallLogAppender
	reports         storage.ReportStore
	kv              storage.KeyValueStore
	locks           storage.LockService
	tasks           storage.TaskQueue
}

func main() {
	configPath := flag.String("config", "simian.yaml", "Path to configuration file")
	flag.Parse()

	// 0. Initialize Logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// 1. Load Configuration
	// A missing default config file is fine; defaults + env apply.
	if *configPath == "simian.yaml" {
		if _, statErr := os.Stat(*configPath); errors.Is(statErr, os.ErrNotExist) {
			*configPath = ""
		}
	}
	cfg, err := corecfg.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	slog.Info("Loaded config",
		"database", cfg.Database.Type,
		"windows", cfg.Reports.SummaryWindows,
		"trending_hours", cfg.Reports.TrendingHours)

	// Intervals were validated by Load.
	cronInterval, _ := time.ParseDuration(cfg.Reports.CronInterval)
	dispatchInterval, _ := time.ParseDuration(cfg.Reports.DispatchInterval)

	// 2. Initialize Storage
	var (
		be         backends
		healthDB   *postgres.Adapter
		windowList = make([]reports.Window, 0, len(cfg.Reports.SummaryWindows))
	)
	for _, days := range cfg.Reports.SummaryWindows {
		windowList = append(windowList, reports.Window{Days: days})
	}

	switch cfg.Database.Type {
	case "postgres":
		adapter, err := postgres.NewAdapter(
			cfg.Database.DSN,
			cfg.Database.MaxOpenConns,
			cfg.Database.MaxIdleConns,
			cfg.Reports.LockTTL(),
		)
		if err != nil {
			slog.Error("Failed to initialize database", "error", err)
			os.Exit(1)
		}
		defer adapter.Close()

		if err := migrations.RunMigrations(adapter.DB(), cfg.Database.AutoMigrate); err != nil {
			slog.Error("Failed to run database migrations", "error", err)
			os.Exit(1)
		}

		msuLog := adapter.MSULog()
		installLog := adapter.InstallLog()
		be = backends{
			msuSource:       msuLog,
			msuAppender:     msuLog,
			installSource:   installLog,
			installAppender: installLog,
			reports:         adapter,
			kv:              adapter,
			locks:           adapter,
			tasks:           adapter,
		}
		healthDB = adapter
	case "memory":
		msuLog := memory.NewMSULog()
		installLog := memory.NewInstallLog()
		clock := storage.SystemClock{}
		be = backends{
			msuSource:       msuLog,
			msuAppender:     msuLog,
			installSource:   installLog,
			installAppender: installLog,
			reports:         memory.NewReportStore(),
			kv:              memory.NewKeyValueStore(),
			locks:           memory.NewLockService(cfg.Reports.LockTTL(), clock),
			tasks:           memory.NewTaskQueue(clock),
		}
	default:
		slog.Error("Unsupported database type", "type", cfg.Database.Type)
		os.Exit(1)
	}

	// 3. Initialize the report runner
	runner := reports.NewRunner(
		be.msuSource,
		be.installSource,
		be.reports,
		be.kv,
		be.locks,
		be.tasks,
		nil, // system clock
		reports.Options{
			Categories:        cfg.Reports.UserEvents,
			FetchLimit:        cfg.Reports.FetchLimit,
			InstallFetchLimit: cfg.Reports.InstallFetchLimit,
			RuntimeBudget:     cfg.Reports.RuntimeBudget(),
			ContinuationDelay: cfg.Reports.ContinuationDelay(),
		},
	)

	// 4. Initialize HTTP services
	ingestionSvc := ingestion.NewService(be.msuAppender, be.installAppender)
	readSvc := reports.NewService(be.reports)

	var sqlDB *sql.DB
	if healthDB != nil {
		sqlDB = healthDB.DB()
	}

	srv := server.New(fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port), sqlDB, cfg.Server.Mode)
	ingestionSvc.RegisterRoutes(srv.Engine)
	readSvc.RegisterRoutes(srv.Engine)

	// 5. Start everything; any fatal service error tears the group down.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		slog.Info("Signal received, shutting down...")
		cancel()
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return scheduler.NewCron(runner, windowList, cfg.Reports.TrendingHours, cronInterval).Start(gctx)
	})
	g.Go(func() error {
		return scheduler.NewDispatcher(runner, be.tasks, dispatchInterval).Start(gctx)
	})
	g.Go(func() error {
		return srv.Run(gctx)
	})

	if err := g.Wait(); err != nil {
		slog.Error("Service stopped with error", "error", err)
		os.Exit(1)
	}

	slog.Info("Shutdown complete")
}
