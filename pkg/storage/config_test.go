package storage_test

import (
	"context"
	"testing"

	"github.com/illmade-knight/go-streambridge/pkg/storage"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Validate(t *testing.T) {
	testCases := []struct {
		name        string
		cfg         storage.Config
		expectedErr string
	}{
		{
			name: "supabase complete",
			cfg: storage.Config{Backend: "supabase", Table: "stream_data",
				Supabase: storage.SupabaseConfig{URL: "https://x.supabase.co", Key: "secret"}},
		},
		{
			name:        "supabase missing url",
			cfg:         storage.Config{Backend: "supabase", Table: "stream_data", Supabase: storage.SupabaseConfig{Key: "secret"}},
			expectedErr: "SUPABASE_URL",
		},
		{
			name:        "supabase missing key",
			cfg:         storage.Config{Backend: "supabase", Table: "stream_data", Supabase: storage.SupabaseConfig{URL: "https://x.supabase.co"}},
			expectedErr: "SUPABASE_KEY",
		},
		{
			name: "backend name is normalized",
			cfg: storage.Config{Backend: " Postgres ", Table: "stream_data",
				Postgres: storage.PostgresConfig{DSN: "postgres://localhost/db"}},
		},
		{
			name:        "postgres missing dsn",
			cfg:         storage.Config{Backend: "postgres", Table: "stream_data"},
			expectedErr: "POSTGRES_DSN",
		},
		{
			name:        "bigquery missing dataset",
			cfg:         storage.Config{Backend: "bigquery", Table: "stream_data", GCP: storage.GCPConfig{ProjectID: "p"}},
			expectedErr: "BQ_DATASET_ID",
		},
		{
			name:        "firestore missing project",
			cfg:         storage.Config{Backend: "firestore", Table: "stream_data"},
			expectedErr: "GCP_PROJECT_ID",
		},
		{
			name:        "gcs missing bucket",
			cfg:         storage.Config{Backend: "gcs", Table: "stream_data"},
			expectedErr: "GCS_BUCKET",
		},
		{
			name:        "pubsub missing topic",
			cfg:         storage.Config{Backend: "pubsub", Table: "stream_data", GCP: storage.GCPConfig{ProjectID: "p"}},
			expectedErr: "PUBSUB_TOPIC_ID",
		},
		{
			name:        "redis missing addr",
			cfg:         storage.Config{Backend: "redis", Table: "stream_data"},
			expectedErr: "REDIS_ADDR",
		},
		{
			name:        "dynamodb missing region",
			cfg:         storage.Config{Backend: "dynamodb", Table: "stream_data"},
			expectedErr: "AWS_REGION",
		},
		{
			name:        "unknown backend",
			cfg:         storage.Config{Backend: "cassandra", Table: "stream_data"},
			expectedErr: "unknown STORAGE_BACKEND",
		},
		{
			name:        "empty table",
			cfg:         storage.Config{Backend: "redis", Redis: storage.RedisConfig{Addr: "localhost:6379"}},
			expectedErr: "STORAGE_TABLE",
		},
		{
			name: "negative timeout",
			cfg: storage.Config{Backend: "redis", Table: "t", InsertTimeout: -1,
				Redis: storage.RedisConfig{Addr: "localhost:6379"}},
			expectedErr: "STORAGE_INSERT_TIMEOUT",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := tc.cfg
			err := cfg.Validate()
			if tc.expectedErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.expectedErr)
		})
	}
}

func TestOpen_InvalidConfigIsFatal(t *testing.T) {
	_, err := storage.Open(context.Background(), storage.Config{Backend: "supabase", Table: "stream_data"}, zerolog.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SUPABASE_URL")
}
