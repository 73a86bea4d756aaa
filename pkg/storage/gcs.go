package storage

import (
	"context"
	"errors"
	"fmt"
	"path"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"github.com/illmade-knight/go-streambridge/pkg/record"
	"github.com/rs/zerolog"
)

// GCSInserter writes each record as its own JSON object named
// <prefix>/<stream_id>/<frame_id>-<uuid>.json.
type GCSInserter struct {
	client GCSClient
	bucket GCSBucketHandle
	prefix string
	closer func() error
	logger zerolog.Logger
}

// NewProductionGCSClient creates a Cloud Storage client.
func NewProductionGCSClient(ctx context.Context, cfg GCPConfig, logger zerolog.Logger) (*storage.Client, error) {
	client, err := storage.NewClient(ctx, clientOptions(cfg, logger)...)
	if err != nil {
		return nil, fmt.Errorf("storage.NewClient: %w", err)
	}
	return client, nil
}

// NewGCSInserter creates an inserter for a bucket. closer, if set, is called by Close.
func NewGCSInserter(client GCSClient, bucketName, prefix string, closer func() error, logger zerolog.Logger) (*GCSInserter, error) {
	if client == nil {
		return nil, errors.New("GCS client cannot be nil")
	}
	if bucketName == "" {
		return nil, errors.New("bucket name cannot be empty")
	}
	return &GCSInserter{
		client: client,
		bucket: client.Bucket(bucketName),
		prefix: prefix,
		closer: closer,
		logger: logger.With().Str("component", "GCSInserter").Str("bucket", bucketName).Logger(),
	}, nil
}

// ObjectName returns the object name a record is written under.
func (g *GCSInserter) ObjectName(rec *record.Record, id string) string {
	return path.Join(g.prefix, rec.StreamID, rec.FrameID+"-"+id+".json")
}

// Insert uploads the record. The object is only committed when the writer
// closes successfully.
func (g *GCSInserter) Insert(ctx context.Context, rec *record.Record) error {
	body, err := wire.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	name := g.ObjectName(rec, uuid.NewString())
	w := g.bucket.Object(name).NewWriter(ctx)
	if _, err := w.Write(body); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to write object %s: %w", name, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finalize object %s: %w", name, err)
	}

	g.logger.Debug().Str("object_name", name).Int("bytes", len(body)).Msg("Object written.")
	return nil
}

// Verify reads the bucket attributes.
func (g *GCSInserter) Verify(ctx context.Context) error {
	if _, err := g.bucket.Attrs(ctx); err != nil {
		return fmt.Errorf("GCS bucket check failed: %w", err)
	}
	g.logger.Info().Msg("GCS bucket verified.")
	return nil
}

// Close releases the client if a closer was supplied.
func (g *GCSInserter) Close() error {
	if g.closer == nil {
		return nil
	}
	return g.closer()
}
