package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/illmade-knight/go-streambridge/pkg/record"
	"github.com/rs/zerolog"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// BigQueryRow is the table shape used for the bigquery backend. Metadata is
// stored as a JSON string column since its keys are open-ended.
type BigQueryRow struct {
	StreamID  string    `bigquery:"stream_id"`
	FrameID   string    `bigquery:"frame_id"`
	DeviceID  string    `bigquery:"device_id"`
	Timestamp string    `bigquery:"timestamp"`
	Timeout   int64     `bigquery:"timeout"`
	ImageData string    `bigquery:"image_data"`
	Metadata  string    `bigquery:"metadata"`
	CreatedAt time.Time `bigquery:"created_at"`
}

// NewBigQueryRow converts a record into its BigQuery row.
func NewBigQueryRow(rec *record.Record) (*BigQueryRow, error) {
	metadata, err := wire.MarshalToString(rec.Metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}
	return &BigQueryRow{
		StreamID:  rec.StreamID,
		FrameID:   rec.FrameID,
		DeviceID:  rec.DeviceID,
		Timestamp: rec.Timestamp,
		Timeout:   int64(rec.Timeout),
		ImageData: rec.ImageData,
		Metadata:  metadata,
		CreatedAt: rec.CreatedAt,
	}, nil
}

// RowPutter abstracts *bigquery.Inserter.
type RowPutter interface {
	Put(ctx context.Context, src interface{}) error
}

// NewProductionBigQueryClient creates a BigQuery client, using a credentials
// file when one is configured and Application Default Credentials otherwise.
func NewProductionBigQueryClient(ctx context.Context, cfg GCPConfig, logger zerolog.Logger) (*bigquery.Client, error) {
	client, err := bigquery.NewClient(ctx, cfg.ProjectID, clientOptions(cfg, logger)...)
	if err != nil {
		return nil, fmt.Errorf("bigquery.NewClient: %w", err)
	}
	logger.Info().Str("project_id", cfg.ProjectID).Msg("BigQuery client created successfully.")
	return client, nil
}

// clientOptions is shared by every Google Cloud backend.
func clientOptions(cfg GCPConfig, logger zerolog.Logger) []option.ClientOption {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
		logger.Info().Str("credentials_file", cfg.CredentialsFile).Msg("Using specified credentials file.")
	} else {
		logger.Info().Msg("Using Application Default Credentials (ADC).")
	}
	return opts
}

// BigQueryInserter streams one row per record into a BigQuery table.
type BigQueryInserter struct {
	client *bigquery.Client
	putter RowPutter
	logger zerolog.Logger
}

// NewBigQueryInserter creates an inserter for dataset.table. If the table does
// not exist it is created with a schema inferred from BigQueryRow.
func NewBigQueryInserter(ctx context.Context, client *bigquery.Client, datasetID, tableID string, logger zerolog.Logger) (*BigQueryInserter, error) {
	if client == nil {
		return nil, errors.New("bigquery client cannot be nil")
	}
	logger = logger.With().Str("component", "BigQueryInserter").Str("dataset_id", datasetID).Str("table_id", tableID).Logger()

	tableRef := client.Dataset(datasetID).Table(tableID)
	if _, err := tableRef.Metadata(ctx); err != nil {
		if !isNotFound(err) {
			return nil, fmt.Errorf("failed to get BigQuery table metadata: %w", err)
		}
		logger.Warn().Msg("BigQuery table not found. Attempting to create with inferred schema.")
		schema, err := bigquery.InferSchema(BigQueryRow{})
		if err != nil {
			return nil, fmt.Errorf("failed to infer schema: %w", err)
		}
		if err := tableRef.Create(ctx, &bigquery.TableMetadata{Schema: schema}); err != nil {
			return nil, fmt.Errorf("failed to create BigQuery table %s.%s: %w", datasetID, tableID, err)
		}
		logger.Info().Msg("BigQuery table created successfully.")
	} else {
		logger.Info().Msg("Successfully connected to existing BigQuery table.")
	}

	return &BigQueryInserter{
		client: client,
		putter: tableRef.Inserter(),
		logger: logger,
	}, nil
}

// NewBigQueryInserterWithPutter builds an inserter over any RowPutter.
func NewBigQueryInserterWithPutter(putter RowPutter, logger zerolog.Logger) *BigQueryInserter {
	return &BigQueryInserter{putter: putter, logger: logger.With().Str("component", "BigQueryInserter").Logger()}
}

// Insert streams a single row.
func (b *BigQueryInserter) Insert(ctx context.Context, rec *record.Record) error {
	row, err := NewBigQueryRow(rec)
	if err != nil {
		return err
	}
	if err := b.putter.Put(ctx, row); err != nil {
		var multiErr bigquery.PutMultiError
		if errors.As(err, &multiErr) {
			for _, rowErr := range multiErr {
				b.logger.Error().Int("row_index", rowErr.RowIndex).Msgf("BigQuery insert error for row: %v", rowErr.Errors)
			}
		}
		return fmt.Errorf("bigquery Inserter.Put failed: %w", err)
	}
	return nil
}

// Close closes the client when this inserter created it.
func (b *BigQueryInserter) Close() error {
	if b.client == nil {
		return nil
	}
	return b.client.Close()
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}
