package storage

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// Verifier is implemented by inserters that can probe their backend at startup.
type Verifier interface {
	Verify(ctx context.Context) error
}

// Open validates cfg, constructs the selected backend and wraps it in a Gateway.
// Any error is a startup failure: the bridge cannot run without storage.
func Open(ctx context.Context, cfg Config, logger zerolog.Logger) (*Gateway, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	inserter, err := newInserter(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s storage client: %w", cfg.Backend, err)
	}

	if v, ok := inserter.(Verifier); ok && cfg.Verify {
		if err := v.Verify(ctx); err != nil {
			_ = inserter.Close()
			return nil, fmt.Errorf("failed to verify %s storage: %w", cfg.Backend, err)
		}
	}

	logger.Info().Str("backend", cfg.Backend).Str("table", cfg.Table).Msg("Storage client initialized.")
	return NewGateway(inserter, cfg.Backend, cfg.InsertTimeout, logger)
}

func newInserter(ctx context.Context, cfg Config, logger zerolog.Logger) (Inserter, error) {
	switch cfg.Backend {
	case BackendSupabase:
		return NewSupabaseInserter(cfg.Supabase, cfg.Table, logger)

	case BackendPostgres:
		pool, err := NewPostgresPool(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		return NewPostgresInserter(pool, cfg.Table, logger)

	case BackendBigQuery:
		client, err := NewProductionBigQueryClient(ctx, cfg.GCP, logger)
		if err != nil {
			return nil, err
		}
		inserter, err := NewBigQueryInserter(ctx, client, cfg.GCP.DatasetID, cfg.Table, logger)
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		return inserter, nil

	case BackendFirestore:
		client, err := NewFirestoreClient(ctx, cfg.GCP, logger)
		if err != nil {
			return nil, err
		}
		return NewFirestoreInserter(client, cfg.Table, logger)

	case BackendGCS:
		client, err := NewProductionGCSClient(ctx, cfg.GCP, logger)
		if err != nil {
			return nil, err
		}
		return NewGCSInserter(NewGCSClientAdapter(client), cfg.GCP.Bucket, cfg.GCP.ObjectPrefix, client.Close, logger)

	case BackendPubSub:
		client, err := NewPubSubClient(ctx, cfg.GCP, logger)
		if err != nil {
			return nil, err
		}
		return NewPubSubInserter(client, cfg.GCP.TopicID, logger)

	case BackendRedis:
		return NewRedisInserter(NewRedisClient(cfg.Redis), cfg.Table, logger)

	case BackendDynamoDB:
		client, err := NewDynamoDBClient(ctx, cfg.DynamoDB)
		if err != nil {
			return nil, err
		}
		return NewDynamoDBInserter(client, cfg.Table, logger)
	}
	return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
}
