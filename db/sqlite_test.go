package db

import (
	"path/filepath"
	"testing"
	"time"
)

func TestOperationsRequireInit(t *testing.T) {
	Close()

	if err := SaveTrainingRun(TrainingRun{Source: "startup"}); err == nil {
		t.Error("expected an error before InitDB")
	}
	if _, err := LoadTrainingRuns(5); err == nil {
		t.Error("expected an error before InitDB")
	}
	if err := SavePrediction(PredictionRecord{ScrapType: "copper"}); err == nil {
		t.Error("expected an error before InitDB")
	}
	if _, err := LoadRecentPredictions(5); err == nil {
		t.Error("expected an error before InitDB")
	}
}

func TestTrainingRunRoundTrip(t *testing.T) {
	if err := InitDB(filepath.Join(t.TempDir(), "test.db")); err != nil {
		t.Fatalf("init db: %v", err)
	}
	defer Close()

	first := TrainingRun{
		Source:      "startup",
		Rows:        19,
		Trees:       300,
		DurationMs:  120,
		RMSE:        0.42,
		MAE:         0.31,
		FeatureCols: "scrap_type,sub_category,sub_sub_category",
		TrainedAt:   time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	second := first
	second.Source = "retrain"
	second.TrainedAt = first.TrainedAt.Add(time.Hour)

	if err := SaveTrainingRun(first); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := SaveTrainingRun(second); err != nil {
		t.Fatalf("save: %v", err)
	}

	runs, err := LoadTrainingRuns(10)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].Source != "retrain" {
		t.Errorf("expected newest run first, got %q", runs[0].Source)
	}
	if runs[0].Rows != 19 || runs[0].Trees != 300 {
		t.Errorf("unexpected run %+v", runs[0])
	}
	if runs[0].RMSE != 0.42 || runs[0].MAE != 0.31 {
		t.Errorf("unexpected metrics %+v", runs[0])
	}
	if runs[0].FeatureCols != first.FeatureCols {
		t.Errorf("unexpected feature cols %q", runs[0].FeatureCols)
	}
	if !runs[1].TrainedAt.Equal(first.TrainedAt) {
		t.Errorf("expected trained_at %v, got %v", first.TrainedAt, runs[1].TrainedAt)
	}

	limited, err := LoadTrainingRuns(1)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("expected the limit to apply, got %d runs", len(limited))
	}
}

func TestPredictionRoundTrip(t *testing.T) {
	if err := InitDB(filepath.Join(t.TempDir(), "test.db")); err != nil {
		t.Fatalf("init db: %v", err)
	}
	defer Close()

	rec := PredictionRecord{
		ScrapType:      "copper",
		SubCategory:    "Wire",
		SubSubCategory: "Bare Bright",
		Weight:         2.5,
		BasePrice:      4.12,
		PredictedPrice: 10.3,
	}
	if err := SavePrediction(rec); err != nil {
		t.Fatalf("save: %v", err)
	}

	records, err := LoadRecentPredictions(5)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	got := records[0]
	if got.ScrapType != rec.ScrapType || got.SubCategory != rec.SubCategory || got.SubSubCategory != rec.SubSubCategory {
		t.Errorf("unexpected categories %+v", got)
	}
	if got.Weight != rec.Weight || got.BasePrice != rec.BasePrice || got.PredictedPrice != rec.PredictedPrice {
		t.Errorf("unexpected prices %+v", got)
	}
	if got.CreatedAt.IsZero() {
		t.Error("expected created_at to be set")
	}
}
