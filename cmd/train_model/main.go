package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"

	"scrapml/config"
	"scrapml/dataset"
	"scrapml/logging"
	"scrapml/ml"
)

func main() {
	configPath := flag.String("config", "config.yaml", "config file path")
	driver := flag.String("driver", "", "dataset driver override (postgrest, postgres, mock)")
	output := flag.String("output", "", "model output path override")
	trees := flag.Int("trees", 0, "forest size override")
	seed := flag.Int64("seed", 0, "bootstrap seed override")
	maxDepth := flag.Int("max_depth", 0, "max tree depth override (0 = unlimited)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *driver != "" {
		cfg.Dataset.Driver = *driver
	}
	if *output != "" {
		cfg.Model.Path = *output
	}
	if *trees > 0 {
		cfg.Model.Trees = *trees
	}
	if *seed != 0 {
		cfg.Model.Seed = *seed
	}
	if *maxDepth > 0 {
		cfg.Model.MaxDepth = *maxDepth
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	store, err := dataset.NewStore(cfg.Dataset, sugar)
	if err != nil {
		sugar.Fatalf("failed to build dataset store: %v", err)
	}

	trainer := ml.NewTrainer(store, cfg.Model.Path, ml.TrainOptions{
		Trees:    cfg.Model.Trees,
		Seed:     cfg.Model.Seed,
		MaxDepth: cfg.Model.MaxDepth,
	}, sugar)

	report, err := trainer.TrainAndSave(context.Background())
	if err != nil {
		sugar.Fatalf("training failed: %v", err)
	}

	log.Printf("rows=%d trees=%d rmse=%.4f mae=%.4f features=%s duration=%dms",
		report.Rows, report.Trees, report.RMSE, report.MAE,
		strings.Join(report.Features, ","), report.DurationMs)
	fmt.Printf("model saved to %s\n", report.Path)
}
