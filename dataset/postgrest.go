package dataset

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"scrapml/config"
)

const selectColumns = ColScrapType + "," + ColSubCategory + "," + ColSubSubCategory + "," + ColBasePrice

// PostgRESTStore reads the scrap price table through the Supabase REST
// interface.
type PostgRESTStore struct {
	endpoint   string
	serviceKey string
	table      string
	pageSize   int
	maxRetries uint64
	timeout    time.Duration
	client     *http.Client
	logger     *zap.SugaredLogger
}

func NewPostgRESTStore(cfg config.DatasetConfig, logger *zap.SugaredLogger) *PostgRESTStore {
	return &PostgRESTStore{
		endpoint:   strings.TrimRight(cfg.Endpoint, "/"),
		serviceKey: cfg.ServiceKey,
		table:      cfg.Table,
		pageSize:   cfg.PageSize,
		maxRetries: uint64(cfg.MaxRetries),
		timeout:    cfg.Timeout(),
		client:     &http.Client{Timeout: cfg.Timeout()},
		logger:     logger,
	}
}

func (s *PostgRESTStore) Name() string {
	return "postgrest"
}

// FetchRows pages through the table with Range headers until a short page
// arrives. The whole fetch is bounded by the configured timeout. Transient
// failures retry with fibonacci backoff; missing credentials and client
// errors do not.
func (s *PostgRESTStore) FetchRows(ctx context.Context) ([]RawRow, error) {
	if s.endpoint == "" || s.serviceKey == "" {
		return nil, ErrMissingCredentials
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var rows []RawRow
	for offset := 0; ; offset += s.pageSize {
		page, err := s.fetchPage(ctx, offset)
		if err != nil {
			return nil, err
		}
		rows = append(rows, page...)
		s.logger.Debugw("fetched page", "table", s.table, "offset", offset, "rows", len(page))
		if len(page) < s.pageSize {
			break
		}
	}
	return rows, nil
}

func (s *PostgRESTStore) fetchPage(ctx context.Context, offset int) ([]RawRow, error) {
	var page []RawRow
	backoff := retry.NewFibonacci(500 * time.Millisecond)
	err := retry.Do(ctx, retry.WithMaxRetries(s.maxRetries, backoff), func(ctx context.Context) error {
		var err error
		page, err = s.requestPage(ctx, offset)
		return err
	})
	return page, err
}

func (s *PostgRESTStore) requestPage(ctx context.Context, offset int) ([]RawRow, error) {
	u := fmt.Sprintf("%s/rest/v1/%s?select=%s",
		s.endpoint, url.PathEscape(s.table), url.QueryEscape(selectColumns))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("apikey", s.serviceKey)
	req.Header.Set("Authorization", "Bearer "+s.serviceKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Range-Unit", "items")
	req.Header.Set("Range", fmt.Sprintf("%d-%d", offset, offset+s.pageSize-1))

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, retry.RetryableError(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusRequestedRangeNotSatisfiable:
		// past the end of the table
		return nil, nil
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		io.Copy(io.Discard, resp.Body)
		return nil, retry.RetryableError(fmt.Errorf("status %d from %s", resp.StatusCode, s.table))
	case resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("status %d from %s: %s", resp.StatusCode, s.table, strings.TrimSpace(string(body)))
	}

	var page []RawRow
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("decode page at offset %d: %w", offset, err)
	}
	return page, nil
}
