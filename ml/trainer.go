package ml

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"scrapml/dataset"
)

// Trainer fetches the dataset, fits a pipeline and persists it atomically.
type Trainer struct {
	store  dataset.Store
	path   string
	opts   TrainOptions
	logger *zap.SugaredLogger
}

func NewTrainer(store dataset.Store, path string, opts TrainOptions, logger *zap.SugaredLogger) *Trainer {
	return &Trainer{store: store, path: path, opts: opts, logger: logger}
}

// TrainReport summarizes one training run.
type TrainReport struct {
	Rows       int       `json:"rows"`
	Trees      int       `json:"trees"`
	Features   []string  `json:"feature_columns"`
	DurationMs int64     `json:"duration_ms"`
	RMSE       float64   `json:"rmse"`
	MAE        float64   `json:"mae"`
	TrainedAt  time.Time `json:"trained_at"`
	Path       string    `json:"path"`
}

// TrainAndSave runs one full training cycle: fetch, clean, fit, persist.
// Fetch failures keep their original error; fitting failures wrap
// ErrTraining; persistence failures wrap ErrPersist.
func (t *Trainer) TrainAndSave(ctx context.Context) (*TrainReport, error) {
	start := time.Now()

	ds, err := dataset.FetchDataset(ctx, t.store, t.logger)
	if err != nil {
		return nil, err
	}

	pipe, err := fitPipeline(ds, t.opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTraining, err)
	}

	rmse, mae := evaluatePipeline(pipe, ds)

	if err := SaveArtifact(pipe, t.path); err != nil {
		return nil, err
	}

	report := &TrainReport{
		Rows:       len(ds.Rows),
		Trees:      len(pipe.Forest.Trees),
		Features:   pipe.FeatureNames(),
		DurationMs: time.Since(start).Milliseconds(),
		RMSE:       rmse,
		MAE:        mae,
		TrainedAt:  pipe.TrainedAt,
		Path:       t.path,
	}
	t.logger.Infow("model trained",
		"rows", report.Rows,
		"trees", report.Trees,
		"rmse", report.RMSE,
		"mae", report.MAE,
		"duration_ms", report.DurationMs)
	return report, nil
}

// evaluatePipeline computes in-sample RMSE and MAE.
func evaluatePipeline(p *Pipeline, ds *dataset.Dataset) (rmse, mae float64) {
	if len(ds.Rows) == 0 {
		return 0, 0
	}

	var sq, abs float64
	for _, row := range ds.Rows {
		got, err := p.Predict(map[string]string{
			dataset.ColScrapType:      row.ScrapType,
			dataset.ColSubCategory:    row.SubCategory,
			dataset.ColSubSubCategory: row.SubSubCategory,
		})
		if err != nil {
			continue
		}
		d := got - row.BasePrice
		sq += d * d
		abs += math.Abs(d)
	}

	n := float64(len(ds.Rows))
	return math.Sqrt(sq / n), abs / n
}
