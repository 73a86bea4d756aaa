package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/illmade-knight/go-streambridge/pkg/record"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// PostgresPool captures the methods of interest from *pgxpool.Pool.
type PostgresPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Ping(ctx context.Context) error
	Close()
}

// PostgresInserter writes records directly into a Postgres table with the
// stream_data column set.
type PostgresInserter struct {
	pool   PostgresPool
	query  string
	logger zerolog.Logger
}

// NewPostgresPool opens a pgx connection pool for the given DSN.
func NewPostgresPool(ctx context.Context, cfg PostgresConfig) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	return pool, nil
}

// NewPostgresInserter creates an inserter over an existing pool. The table name
// is quoted as an identifier.
func NewPostgresInserter(pool PostgresPool, table string, logger zerolog.Logger) (*PostgresInserter, error) {
	if pool == nil {
		return nil, errors.New("postgres pool cannot be nil")
	}
	if table == "" {
		return nil, errors.New("table cannot be empty")
	}

	query := fmt.Sprintf(
		`INSERT INTO %s (stream_id, frame_id, device_id, "timestamp", timeout, image_data, metadata, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		pgx.Identifier{table}.Sanitize(),
	)
	return &PostgresInserter{
		pool:   pool,
		query:  query,
		logger: logger.With().Str("component", "PostgresInserter").Str("table", table).Logger(),
	}, nil
}

// Insert executes a single-row INSERT. Metadata is sent as JSON for a jsonb column.
func (p *PostgresInserter) Insert(ctx context.Context, rec *record.Record) error {
	metadata, err := wire.Marshal(rec.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	tag, err := p.pool.Exec(ctx, p.query,
		rec.StreamID, rec.FrameID, rec.DeviceID, rec.Timestamp, rec.Timeout, rec.ImageData, string(metadata), rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres insert failed: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("postgres insert affected %d rows, expected 1", tag.RowsAffected())
	}
	return nil
}

// Verify pings the database.
func (p *PostgresInserter) Verify(ctx context.Context) error {
	if err := p.pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres ping failed: %w", err)
	}
	p.logger.Info().Msg("Postgres connection verified.")
	return nil
}

// Close closes the pool.
func (p *PostgresInserter) Close() error {
	p.pool.Close()
	return nil
}
