package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/illmade-knight/go-streambridge/pkg/record"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// StreamAdder captures the methods of interest from *redis.Client.
type StreamAdder interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

// RedisInserter appends each record as an entry of a Redis stream.
type RedisInserter struct {
	client StreamAdder
	stream string
	logger zerolog.Logger
}

// NewRedisClient creates a go-redis client for the configured address.
func NewRedisClient(cfg RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// NewRedisInserter creates an inserter that XADDs to the named stream.
func NewRedisInserter(client StreamAdder, stream string, logger zerolog.Logger) (*RedisInserter, error) {
	if client == nil {
		return nil, errors.New("redis client cannot be nil")
	}
	if stream == "" {
		return nil, errors.New("stream name cannot be empty")
	}
	return &RedisInserter{
		client: client,
		stream: stream,
		logger: logger.With().Str("component", "RedisInserter").Str("stream", stream).Logger(),
	}, nil
}

// RedisStreamValues flattens a record into stream entry fields. Metadata is a
// JSON string.
func RedisStreamValues(rec *record.Record) (map[string]any, error) {
	metadata, err := wire.MarshalToString(rec.Metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}
	return map[string]any{
		"stream_id":  rec.StreamID,
		"frame_id":   rec.FrameID,
		"device_id":  rec.DeviceID,
		"timestamp":  rec.Timestamp,
		"timeout":    strconv.Itoa(rec.Timeout),
		"image_data": rec.ImageData,
		"metadata":   metadata,
		"created_at": rec.CreatedAt.Format(time.RFC3339Nano),
	}, nil
}

// Insert adds one stream entry with a server-assigned id.
func (r *RedisInserter) Insert(ctx context.Context, rec *record.Record) error {
	values, err := RedisStreamValues(rec)
	if err != nil {
		return err
	}
	id, err := r.client.XAdd(ctx, &redis.XAddArgs{Stream: r.stream, Values: values}).Result()
	if err != nil {
		return fmt.Errorf("redis XADD failed: %w", err)
	}
	r.logger.Debug().Str("entry_id", id).Str("frame_id", rec.FrameID).Msg("Stream entry added.")
	return nil
}

// Verify pings the server.
func (r *RedisInserter) Verify(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	r.logger.Info().Msg("Redis connection verified.")
	return nil
}

// Close closes the Redis client connection.
func (r *RedisInserter) Close() error {
	return r.client.Close()
}
