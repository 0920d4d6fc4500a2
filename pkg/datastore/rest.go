package datastore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// RESTConfig holds configuration for the hosted data store's HTTP API.
type RESTConfig struct {
	BaseURL string        `env:"DATASTORE_URL,required"`
	APIKey  string        `env:"DATASTORE_API_KEY,required"`
	Timeout time.Duration `env:"DATASTORE_TIMEOUT" envDefault:"10s"`
}

// RESTStore implements RowStore against a PostgREST-style HTTP API:
// one table per path segment, equality filters as query parameters, JSON
// bodies, and Prefer headers to get mutated rows back.
type RESTStore struct {
	baseURL string
	apiKey  string
	timeout time.Duration
	client  *http.Client
}

// RESTOption configures a RESTStore.
type RESTOption func(*RESTStore)

// WithHTTPClient overrides the default HTTP client, e.g. for tests or proxies.
// Nil clients are ignored.
func WithHTTPClient(client *http.Client) RESTOption {
	return func(s *RESTStore) {
		if client != nil {
			s.client = client
		}
	}
}

// NewRESTStore creates a RowStore speaking to the hosted data store.
// Panics on an empty base URL to fail fast during initialization.
func NewRESTStore(cfg RESTConfig, opts ...RESTOption) *RESTStore {
	if cfg.BaseURL == "" {
		panic("datastore: base URL is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	s := &RESTStore{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		timeout: timeout,
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (s *RESTStore) Insert(ctx context.Context, table string, row Row) (Row, error) {
	rows, err := s.do(ctx, http.MethodPost, table, nil, nil, row)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, &StoreError{Table: table, Op: "insert", Err: fmt.Errorf("no representation returned")}
	}
	return rows[0], nil
}

func (s *RESTStore) Update(ctx context.Context, table string, match Match, changes Row) ([]Row, error) {
	rows, err := s.do(ctx, http.MethodPatch, table, match, nil, changes)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return rows, nil
}

func (s *RESTStore) Delete(ctx context.Context, table string, match Match) ([]Row, error) {
	return s.do(ctx, http.MethodDelete, table, match, nil, nil)
}

// Upsert probes for an existing row first so both store implementations share
// one observable behavior; the probe result also tells the transaction
// manager whether compensation is update-back or delete.
func (s *RESTStore) Upsert(ctx context.Context, table string, match Match, row Row) (Row, error) {
	existing, err := s.Select(ctx, table, match, WithLimit(1))
	if err != nil {
		return nil, err
	}

	if len(existing) == 0 {
		return s.Insert(ctx, table, row)
	}

	rows, err := s.Update(ctx, table, match, row)
	if err != nil {
		return nil, err
	}
	return rows[0], nil
}

func (s *RESTStore) Select(ctx context.Context, table string, match Match, opts ...SelectOption) ([]Row, error) {
	q := buildSelectQuery(opts)

	params := url.Values{}
	if q.orderBy != "" {
		dir := "asc"
		if q.descending {
			dir = "desc"
		}
		params.Set("order", q.orderBy+"."+dir)
	}
	if q.limit > 0 {
		params.Set("limit", strconv.Itoa(q.limit))
	}

	return s.do(ctx, http.MethodGet, table, match, params, nil)
}

// do executes one HTTP round trip and decodes the returned rows.
func (s *RESTStore) do(ctx context.Context, method, table string, match Match, extra url.Values, body any) ([]Row, error) {
	if table == "" {
		return nil, ErrInvalidTable
	}

	params := url.Values{}
	for k, v := range extra {
		params[k] = v
	}
	for col, val := range match {
		params.Set(col, "eq."+fmt.Sprint(val))
	}

	endpoint := s.baseURL + "/" + table
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, &StoreError{Table: table, Op: opName(method), Err: err}
		}
		reqBody = bytes.NewReader(payload)
	}

	reqCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, method, endpoint, reqBody)
	if err != nil {
		return nil, &StoreError{Table: table, Op: opName(method), Err: err}
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}
	if method != http.MethodGet {
		// The mutated rows come back in the response body.
		req.Header.Set("Prefer", "return=representation")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &StoreError{Table: table, Op: opName(method), Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	// 4MB cap prevents memory exhaustion on runaway responses.
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, &StoreError{Table: table, Op: opName(method), Err: err}
	}

	if resp.StatusCode == http.StatusConflict {
		return nil, &StoreError{Table: table, Op: opName(method), StatusCode: resp.StatusCode, Err: ErrConflict}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := strings.ReplaceAll(string(raw), "\n", " ")
		if len(msg) > 200 {
			msg = msg[:200] + "..."
		}
		return nil, &StoreError{
			Table:      table,
			Op:         opName(method),
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%s", msg),
		}
	}

	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}

	var rows []Row
	if err := json.Unmarshal(raw, &rows); err != nil {
		// Single-object responses happen on inserts with some stores.
		var row Row
		if err2 := json.Unmarshal(raw, &row); err2 != nil {
			return nil, &StoreError{Table: table, Op: opName(method), Err: err}
		}
		rows = []Row{row}
	}

	return rows, nil
}

func opName(method string) string {
	switch method {
	case http.MethodPost:
		return "insert"
	case http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	default:
		return "select"
	}
}
