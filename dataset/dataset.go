// Package dataset fetches scrap price rows from a remote store and cleans
// them into the table models train on.
package dataset

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// Column names of the cleaned table.
const (
	ColScrapType      = "scrap_type"
	ColSubCategory    = "sub_category"
	ColSubSubCategory = "sub_sub_category"
	ColBasePrice      = "base_price"
)

var (
	ErrMissingCredentials = errors.New("store credentials not configured")
	ErrEmptyDataset       = errors.New("no usable training rows")
)

// RawRow is one record as a store returns it, before cleaning. Pointer
// fields keep missing values distinct from empty strings; BasePrice stays
// raw because stores deliver it as a number, a numeric string, or null.
type RawRow struct {
	ScrapType      *string         `json:"scrap_type"`
	SubCategory    *string         `json:"sub_category"`
	SubSubCategory *string         `json:"sub_sub_category"`
	BasePrice      json.RawMessage `json:"base_price"`
}

// Row is one cleaned training row.
type Row struct {
	ScrapType      string
	SubCategory    string
	SubSubCategory string
	BasePrice      float64
}

// Dataset is the cleaned training table.
type Dataset struct {
	Rows  []Row
	Stats CleanStats
}

// CleanStats counts what cleaning did to the raw rows.
type CleanStats struct {
	TotalProcessed int            `json:"total_processed"`
	Passed         int            `json:"passed"`
	Dropped        int            `json:"dropped"`
	DropReasons    map[string]int `json:"drop_reasons"`
}

func (s *CleanStats) drop(reason string) {
	s.Dropped++
	s.DropReasons[reason]++
}

// NormalizeScrapType lowercases and hyphenates a scrap type so "Copper Wire"
// and "copper-wire" land on the same category. Only scrap_type gets this
// treatment; the other columns keep their case.
func NormalizeScrapType(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ToLower(s)
	return strings.ReplaceAll(s, " ", "-")
}

// NormalizeCategory trims surrounding whitespace only.
func NormalizeCategory(s string) string {
	return strings.TrimSpace(s)
}

// Clean applies the cleaning rules in order: trim the three category
// columns, normalize scrap_type, coerce base_price to a number, and drop
// every row left with a missing field. An empty string after trimming is a
// value, not a missing field.
func Clean(raw []RawRow) ([]Row, CleanStats) {
	stats := CleanStats{DropReasons: make(map[string]int)}
	rows := make([]Row, 0, len(raw))

	for _, r := range raw {
		stats.TotalProcessed++

		if r.ScrapType == nil || r.SubCategory == nil || r.SubSubCategory == nil {
			stats.drop("missing_category")
			continue
		}
		if len(r.BasePrice) == 0 {
			stats.drop("missing_price")
			continue
		}
		price, ok := coercePrice(r.BasePrice)
		if !ok {
			stats.drop("bad_price")
			continue
		}

		rows = append(rows, Row{
			ScrapType:      NormalizeScrapType(*r.ScrapType),
			SubCategory:    NormalizeCategory(*r.SubCategory),
			SubSubCategory: NormalizeCategory(*r.SubSubCategory),
			BasePrice:      price,
		})
		stats.Passed++
	}

	return rows, stats
}

// coercePrice turns a raw base_price value into a float64. JSON numbers and
// numeric strings both parse; anything else counts as missing.
func coercePrice(raw json.RawMessage) (float64, bool) {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return 0, false
	}
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// FetchDataset pulls raw rows from the store and cleans them. It fails with
// ErrEmptyDataset when nothing arrives or nothing survives cleaning.
func FetchDataset(ctx context.Context, store Store, logger *zap.SugaredLogger) (*Dataset, error) {
	raw, err := store.FetchRows(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch rows from %s: %w", store.Name(), err)
	}
	if len(raw) == 0 {
		return nil, ErrEmptyDataset
	}

	rows, stats := Clean(raw)
	logger.Infow("dataset cleaned",
		"store", store.Name(),
		"total", stats.TotalProcessed,
		"passed", stats.Passed,
		"dropped", stats.Dropped)

	if len(rows) == 0 {
		return nil, ErrEmptyDataset
	}
	return &Dataset{Rows: rows, Stats: stats}, nil
}

func strPtr(s string) *string {
	return &s
}
