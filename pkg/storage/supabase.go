package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"github.com/illmade-knight/go-streambridge/pkg/record"
	"github.com/rs/zerolog"
)

var wire = sonic.ConfigStd

// SupabaseInserter writes records through the Supabase PostgREST API, one
// POST /rest/v1/<table> per record.
type SupabaseInserter struct {
	client *resty.Client
	table  string
	logger zerolog.Logger
}

// NewSupabaseInserter creates an inserter for the given project URL and service key.
func NewSupabaseInserter(cfg SupabaseConfig, table string, logger zerolog.Logger) (*SupabaseInserter, error) {
	if cfg.URL == "" {
		return nil, errors.New("supabase URL cannot be empty")
	}
	if cfg.Key == "" {
		return nil, errors.New("supabase key cannot be empty")
	}
	if table == "" {
		return nil, errors.New("table cannot be empty")
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.URL, "/")).
		SetHeader("apikey", cfg.Key).
		SetAuthToken(cfg.Key).
		SetHeader("Content-Type", "application/json")

	return &SupabaseInserter{
		client: client,
		table:  table,
		logger: logger.With().Str("component", "SupabaseInserter").Str("table", table).Logger(),
	}, nil
}

func (s *SupabaseInserter) path() string {
	return "/rest/v1/" + s.table
}

// Insert posts one row. Any non-2xx response is returned as an error carrying
// the response body, which PostgREST fills with the database error.
func (s *SupabaseInserter) Insert(ctx context.Context, rec *record.Record) error {
	body, err := wire.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Prefer", "return=minimal").
		SetBody(body).
		Post(s.path())
	if err != nil {
		return fmt.Errorf("supabase request failed: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("supabase insert returned %s: %s", resp.Status(), strings.TrimSpace(resp.String()))
	}

	s.logger.Debug().Str("frame_id", rec.FrameID).Int("status", resp.StatusCode()).Msg("Row inserted.")
	return nil
}

// Verify issues a one-row read against the table so that an unreachable
// endpoint or a rejected key surfaces at startup rather than on the first frame.
func (s *SupabaseInserter) Verify(ctx context.Context) error {
	resp, err := s.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{"select": "stream_id", "limit": "1"}).
		Get(s.path())
	if err != nil {
		return fmt.Errorf("supabase endpoint unreachable: %w", err)
	}
	switch {
	case resp.StatusCode() == http.StatusUnauthorized || resp.StatusCode() == http.StatusForbidden:
		return fmt.Errorf("supabase rejected the service key: %s", resp.Status())
	case resp.IsError():
		return fmt.Errorf("supabase table %q check returned %s: %s", s.table, resp.Status(), strings.TrimSpace(resp.String()))
	}
	s.logger.Info().Msg("Supabase connection verified.")
	return nil
}

// Close is a no-op; the HTTP client holds no resources that need releasing.
func (s *SupabaseInserter) Close() error {
	return nil
}
