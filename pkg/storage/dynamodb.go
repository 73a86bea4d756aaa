package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/google/uuid"
	"github.com/illmade-knight/go-streambridge/pkg/record"
	"github.com/rs/zerolog"
)

// DynamoDBClient captures the methods of interest from the DynamoDB API.
type DynamoDBClient interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// DynamoDBItem is the item written per record. ID is generated per insert and
// is the table's partition key.
type DynamoDBItem struct {
	ID        string         `dynamodbav:"id"`
	StreamID  string         `dynamodbav:"stream_id"`
	FrameID   string         `dynamodbav:"frame_id"`
	DeviceID  string         `dynamodbav:"device_id"`
	Timestamp string         `dynamodbav:"timestamp"`
	Timeout   int            `dynamodbav:"timeout"`
	ImageData string         `dynamodbav:"image_data"`
	Metadata  map[string]any `dynamodbav:"metadata"`
	CreatedAt string         `dynamodbav:"created_at"`
}

// DynamoDBInserter puts one item per record.
type DynamoDBInserter struct {
	client DynamoDBClient
	table  string
	newID  func() string
	logger zerolog.Logger
}

// NewDynamoDBClient loads the default AWS configuration for the region and
// applies the optional endpoint override (for DynamoDB Local).
func NewDynamoDBClient(ctx context.Context, cfg DynamoDBConfig) (*dynamodb.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	}), nil
}

// NewDynamoDBInserter creates an inserter for the named table.
func NewDynamoDBInserter(client DynamoDBClient, table string, logger zerolog.Logger) (*DynamoDBInserter, error) {
	if client == nil {
		return nil, errors.New("dynamodb client cannot be nil")
	}
	if table == "" {
		return nil, errors.New("table cannot be empty")
	}
	return &DynamoDBInserter{
		client: client,
		table:  table,
		newID:  uuid.NewString,
		logger: logger.With().Str("component", "DynamoDBInserter").Str("table", table).Logger(),
	}, nil
}

// Insert marshals and puts a single item.
func (d *DynamoDBInserter) Insert(ctx context.Context, rec *record.Record) error {
	item := DynamoDBItem{
		ID:        d.newID(),
		StreamID:  rec.StreamID,
		FrameID:   rec.FrameID,
		DeviceID:  rec.DeviceID,
		Timestamp: rec.Timestamp,
		Timeout:   rec.Timeout,
		ImageData: rec.ImageData,
		Metadata:  rec.Metadata,
		CreatedAt: rec.CreatedAt.Format(time.RFC3339Nano),
	}
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("failed to marshal item: %w", err)
	}

	_, err = d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.table),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("dynamodb PutItem failed: %w", err)
	}
	d.logger.Debug().Str("item_id", item.ID).Str("frame_id", rec.FrameID).Msg("Item put.")
	return nil
}

// Verify describes the table.
func (d *DynamoDBInserter) Verify(ctx context.Context) error {
	if _, err := d.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(d.table)}); err != nil {
		return fmt.Errorf("dynamodb table check failed: %w", err)
	}
	d.logger.Info().Msg("DynamoDB table verified.")
	return nil
}

// Close is a no-op; the AWS client holds no resources that need releasing.
func (d *DynamoDBInserter) Close() error {
	return nil
}
