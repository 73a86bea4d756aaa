package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/illmade-knight/go-streambridge/pkg/record"
	"github.com/rs/zerolog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreDocument is the document shape written per record.
type FirestoreDocument struct {
	StreamID  string         `firestore:"stream_id"`
	FrameID   string         `firestore:"frame_id"`
	DeviceID  string         `firestore:"device_id"`
	Timestamp string         `firestore:"timestamp"`
	Timeout   int            `firestore:"timeout"`
	ImageData string         `firestore:"image_data"`
	Metadata  map[string]any `firestore:"metadata"`
	CreatedAt time.Time      `firestore:"created_at"`
}

// NewFirestoreDocument converts a record into its Firestore document.
func NewFirestoreDocument(rec *record.Record) FirestoreDocument {
	return FirestoreDocument{
		StreamID:  rec.StreamID,
		FrameID:   rec.FrameID,
		DeviceID:  rec.DeviceID,
		Timestamp: rec.Timestamp,
		Timeout:   rec.Timeout,
		ImageData: rec.ImageData,
		Metadata:  rec.Metadata,
		CreatedAt: rec.CreatedAt,
	}
}

// FirestoreInserter adds one document per record to a collection. Document IDs
// are generated by Firestore, so re-delivered frames become separate documents.
type FirestoreInserter struct {
	client     *firestore.Client
	collection string
	logger     zerolog.Logger
}

// NewFirestoreClient creates a Firestore client for the configured project.
func NewFirestoreClient(ctx context.Context, cfg GCPConfig, logger zerolog.Logger) (*firestore.Client, error) {
	client, err := firestore.NewClient(ctx, cfg.ProjectID, clientOptions(cfg, logger)...)
	if err != nil {
		return nil, fmt.Errorf("firestore.NewClient: %w", err)
	}
	return client, nil
}

// NewFirestoreInserter creates an inserter over an existing client.
func NewFirestoreInserter(client *firestore.Client, collection string, logger zerolog.Logger) (*FirestoreInserter, error) {
	if client == nil {
		return nil, errors.New("firestore client cannot be nil")
	}
	if collection == "" {
		return nil, errors.New("collection cannot be empty")
	}
	return &FirestoreInserter{
		client:     client,
		collection: collection,
		logger:     logger.With().Str("component", "FirestoreInserter").Str("collection", collection).Logger(),
	}, nil
}

// Insert adds a document.
func (f *FirestoreInserter) Insert(ctx context.Context, rec *record.Record) error {
	ref, _, err := f.client.Collection(f.collection).Add(ctx, NewFirestoreDocument(rec))
	if err != nil {
		return fmt.Errorf("firestore add (%s): %w", status.Code(err), err)
	}
	f.logger.Debug().Str("doc_id", ref.ID).Str("frame_id", rec.FrameID).Msg("Document added.")
	return nil
}

// Verify reads a single document from the collection. An empty collection is fine.
func (f *FirestoreInserter) Verify(ctx context.Context) error {
	_, err := f.client.Collection(f.collection).Limit(1).Documents(ctx).GetAll()
	if err != nil {
		switch status.Code(err) {
		case codes.PermissionDenied, codes.Unauthenticated:
			return fmt.Errorf("firestore rejected the credentials: %w", err)
		default:
			return fmt.Errorf("firestore check failed: %w", err)
		}
	}
	f.logger.Info().Msg("Firestore connection verified.")
	return nil
}

// Close closes the Firestore client.
func (f *FirestoreInserter) Close() error {
	return f.client.Close()
}
