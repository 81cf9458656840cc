package db

import (
	"database/sql"
	"errors"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

var database *sql.DB

// InitDB initializes the SQLite database
func InitDB(path string) error {
	var err error
	database, err = sql.Open("sqlite3", path)
	if err != nil {
		return err
	}

	query := `
    CREATE TABLE IF NOT EXISTS training_runs (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        source TEXT NOT NULL,
        row_count INTEGER NOT NULL,
        trees INTEGER NOT NULL,
        duration_ms INTEGER NOT NULL,
        rmse REAL,
        mae REAL,
        feature_cols TEXT,
        trained_at DATETIME NOT NULL
    );
    CREATE TABLE IF NOT EXISTS predictions (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        scrap_type TEXT NOT NULL,
        sub_category TEXT NOT NULL,
        sub_sub_category TEXT,
        weight REAL NOT NULL,
        base_price REAL NOT NULL,
        predicted_price REAL NOT NULL,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP
    );
    `

	_, err = database.Exec(query)
	return err
}

// Close releases the database handle.
func Close() error {
	if database == nil {
		return nil
	}
	err := database.Close()
	database = nil
	return err
}

// TrainingRun records one completed training cycle.
type TrainingRun struct {
	Source      string    `json:"source"`
	Rows        int       `json:"rows"`
	Trees       int       `json:"trees"`
	DurationMs  int64     `json:"duration_ms"`
	RMSE        float64   `json:"rmse"`
	MAE         float64   `json:"mae"`
	FeatureCols string    `json:"feature_cols"`
	TrainedAt   time.Time `json:"trained_at"`
}

// PredictionRecord is one served prediction, kept for the recent-activity API.
type PredictionRecord struct {
	ScrapType      string    `json:"scrap_type"`
	SubCategory    string    `json:"sub_category"`
	SubSubCategory string    `json:"sub_sub_category,omitempty"`
	Weight         float64   `json:"weight"`
	BasePrice      float64   `json:"base_price"`
	PredictedPrice float64   `json:"predicted_price"`
	CreatedAt      time.Time `json:"created_at"`
}

func SaveTrainingRun(run TrainingRun) error {
	if database == nil {
		return errors.New("database not initialized")
	}
	_, err := database.Exec(`
        INSERT INTO training_runs (
            source, row_count, trees, duration_ms, rmse, mae, feature_cols, trained_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
    `,
		run.Source,
		run.Rows,
		run.Trees,
		run.DurationMs,
		run.RMSE,
		run.MAE,
		run.FeatureCols,
		run.TrainedAt,
	)
	return err
}

func LoadTrainingRuns(limit int) ([]TrainingRun, error) {
	if database == nil {
		return nil, errors.New("database not initialized")
	}
	rows, err := database.Query(`
        SELECT source, row_count, trees, duration_ms, rmse, mae, feature_cols, trained_at
        FROM training_runs
        ORDER BY trained_at DESC
        LIMIT ?
    `, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := make([]TrainingRun, 0)
	for rows.Next() {
		var run TrainingRun
		var rmse, mae sql.NullFloat64
		if err := rows.Scan(&run.Source, &run.Rows, &run.Trees, &run.DurationMs, &rmse, &mae, &run.FeatureCols, &run.TrainedAt); err != nil {
			return nil, err
		}
		if rmse.Valid {
			run.RMSE = rmse.Float64
		}
		if mae.Valid {
			run.MAE = mae.Float64
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func SavePrediction(rec PredictionRecord) error {
	if database == nil {
		return errors.New("database not initialized")
	}
	_, err := database.Exec(`
        INSERT INTO predictions (
            scrap_type, sub_category, sub_sub_category, weight, base_price, predicted_price
        ) VALUES (?, ?, ?, ?, ?, ?)
    `,
		rec.ScrapType,
		rec.SubCategory,
		rec.SubSubCategory,
		rec.Weight,
		rec.BasePrice,
		rec.PredictedPrice,
	)
	return err
}

func LoadRecentPredictions(limit int) ([]PredictionRecord, error) {
	if database == nil {
		return nil, errors.New("database not initialized")
	}
	rows, err := database.Query(`
        SELECT scrap_type, sub_category, sub_sub_category, weight, base_price, predicted_price, created_at
        FROM predictions
        ORDER BY created_at DESC
        LIMIT ?
    `, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]PredictionRecord, 0)
	for rows.Next() {
		var rec PredictionRecord
		var leaf sql.NullString
		if err := rows.Scan(&rec.ScrapType, &rec.SubCategory, &leaf, &rec.Weight, &rec.BasePrice, &rec.PredictedPrice, &rec.CreatedAt); err != nil {
			return nil, err
		}
		if leaf.Valid {
			rec.SubSubCategory = leaf.String
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
