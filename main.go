package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"scrapml/config"
	"scrapml/dataset"
	"scrapml/db"
	qhttp "scrapml/http"
	"scrapml/logging"
	"scrapml/ml"
	"scrapml/monitoring"
)

func main() {
	// 1. Load config
	cfg, err := config.Load(configPath())
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	// 2. Initialize database
	if cfg.Database.Path != "" {
		if err := db.InitDB(cfg.Database.Path); err != nil {
			sugar.Fatalf("Failed to initialize database: %v", err)
		}
		defer db.Close()
		sugar.Infow("database initialized", "path", cfg.Database.Path)
	}

	// 3. Dataset store and event hub
	store, err := dataset.NewStore(cfg.Dataset, sugar)
	if err != nil {
		sugar.Fatalf("Failed to build dataset store: %v", err)
	}

	hub := monitoring.NewHub(sugar)
	go hub.Start()
	defer hub.Stop()

	// 4. Model manager: load the artifact or train a fresh one
	trainer := ml.NewTrainer(store, cfg.Model.Path, ml.TrainOptions{
		Trees:    cfg.Model.Trees,
		Seed:     cfg.Model.Seed,
		MaxDepth: cfg.Model.MaxDepth,
	}, sugar)
	manager := ml.NewManager(cfg.Model.Path, trainer, sugar)
	manager.SetEventSink(hub)
	manager.SetRunLogger(func(report *ml.TrainReport, source string) {
		if cfg.Database.Path == "" {
			return
		}
		run := db.TrainingRun{
			Source:      source,
			Rows:        report.Rows,
			Trees:       report.Trees,
			DurationMs:  report.DurationMs,
			RMSE:        report.RMSE,
			MAE:         report.MAE,
			FeatureCols: strings.Join(report.Features, ","),
			TrainedAt:   report.TrainedAt,
		}
		if err := db.SaveTrainingRun(run); err != nil {
			sugar.Warnw("training run not recorded", "err", err)
		}
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := manager.Init(ctx); err != nil {
		sugar.Fatalf("Model initialization failed: %v", err)
	}

	go func() {
		if err := manager.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			sugar.Warnw("artifact watcher exited", "err", err)
		}
	}()

	predictor, err := ml.NewPredictor(manager, cfg.Model.CacheSize, sugar)
	if err != nil {
		sugar.Fatalf("Failed to build predictor: %v", err)
	}

	// 5. Start HTTP server
	handlers := &qhttp.Handlers{
		Manager:   manager,
		Predictor: predictor,
		Hub:       hub,
		Logger:    sugar,
	}
	server := qhttp.NewServer(qhttp.ServerConfig{
		Port:           cfg.Http.Port,
		Timeout:        cfg.Http.Timeout(),
		AllowedOrigins: cfg.Http.AllowedOrigins,
	}, handlers, logger)

	go func() {
		if err := server.Start(); err != nil {
			sugar.Fatalf("HTTP server failed: %v", err)
		}
	}()

	// 6. Handle graceful shutdown
	<-ctx.Done()
	sugar.Infow("shutting down")

	if err := server.Stop(); err != nil {
		sugar.Warnw("server forced to shutdown", "err", err)
	}

	sugar.Infow("exiting")
}

func configPath() string {
	if len(os.Args) > 1 {
		return os.Args[1]
	}
	return "config.yaml"
}
