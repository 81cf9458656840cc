package dataset

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"go.uber.org/zap"

	"scrapml/config"
)

func postgrestConfig(endpoint string) config.DatasetConfig {
	return config.DatasetConfig{
		Endpoint:       endpoint,
		ServiceKey:     "service-key",
		Table:          "scrap_prices",
		TimeoutSeconds: 5,
		PageSize:       2,
		MaxRetries:     2,
	}
}

func TestPostgRESTStoreMissingCredentials(t *testing.T) {
	cfg := postgrestConfig("")
	cfg.ServiceKey = ""
	store := NewPostgRESTStore(cfg, zap.NewNop().Sugar())

	_, err := store.FetchRows(context.Background())
	if !errors.Is(err, ErrMissingCredentials) {
		t.Fatalf("expected ErrMissingCredentials, got %v", err)
	}
}

func TestPostgRESTStorePaging(t *testing.T) {
	table := []map[string]interface{}{
		{"scrap_type": "Copper", "sub_category": "Wire", "sub_sub_category": "Bare Bright", "base_price": 9.25},
		{"scrap_type": "Brass", "sub_category": "Yellow", "sub_sub_category": "Clean", "base_price": 5.60},
		{"scrap_type": "Steel", "sub_category": "HMS", "sub_sub_category": "Grade 1", "base_price": 0.12},
	}

	var ranges []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rest/v1/scrap_prices" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("apikey") != "service-key" {
			t.Errorf("missing apikey header")
		}
		if r.Header.Get("Authorization") != "Bearer service-key" {
			t.Errorf("missing bearer token")
		}
		if r.Header.Get("Range-Unit") != "items" {
			t.Errorf("missing range unit")
		}
		if got := r.URL.Query().Get("select"); got != selectColumns {
			t.Errorf("unexpected select %q", got)
		}

		rng := r.Header.Get("Range")
		ranges = append(ranges, rng)

		var start, end int
		fmt.Sscanf(rng, "%d-%d", &start, &end)
		if start >= len(table) {
			http.Error(w, "", http.StatusRequestedRangeNotSatisfiable)
			return
		}
		if end >= len(table) {
			end = len(table) - 1
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(table[start : end+1])
	}))
	defer srv.Close()

	store := NewPostgRESTStore(postgrestConfig(srv.URL), zap.NewNop().Sugar())
	rows, err := store.FetchRows(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	if *rows[2].ScrapType != "Steel" {
		t.Errorf("unexpected last row: %+v", rows[2])
	}
	if len(ranges) != 2 || ranges[0] != "0-1" || ranges[1] != "2-3" {
		t.Errorf("unexpected range sequence: %v", ranges)
	}
}

func TestPostgRESTStoreRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "temporarily down", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]map[string]interface{}{
			{"scrap_type": "Zinc", "sub_category": "Die Cast", "sub_sub_category": "Clean", "base_price": 0.45},
		})
	}))
	defer srv.Close()

	store := NewPostgRESTStore(postgrestConfig(srv.URL), zap.NewNop().Sugar())
	rows, err := store.FetchRows(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	if calls.Load() != 2 {
		t.Errorf("expected 2 calls, got %d", calls.Load())
	}
}

func TestPostgRESTStoreClientErrorDoesNotRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"message":"relation does not exist"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	store := NewPostgRESTStore(postgrestConfig(srv.URL), zap.NewNop().Sugar())
	_, err := store.FetchRows(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "status 404") {
		t.Errorf("unexpected error: %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("expected 1 call, got %d", calls.Load())
	}
}
