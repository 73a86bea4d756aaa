package storage

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/pubsub"
	"github.com/illmade-knight/go-streambridge/pkg/record"
	"github.com/rs/zerolog"
)

// PubSubInserter forwards each record as a JSON message on a Pub/Sub topic and
// waits for the server acknowledgement before reporting success. The stream,
// frame and device ids are copied into message attributes.
type PubSubInserter struct {
	client *pubsub.Client
	topic  *pubsub.Topic
	logger zerolog.Logger
}

// NewPubSubClient creates a Pub/Sub client for the configured project.
func NewPubSubClient(ctx context.Context, cfg GCPConfig, logger zerolog.Logger) (*pubsub.Client, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID, clientOptions(cfg, logger)...)
	if err != nil {
		return nil, fmt.Errorf("pubsub.NewClient: %w", err)
	}
	return client, nil
}

// NewPubSubInserter creates an inserter publishing to topicID. Messages are sent
// without publisher batching so each insert is a single round trip.
func NewPubSubInserter(client *pubsub.Client, topicID string, logger zerolog.Logger) (*PubSubInserter, error) {
	if client == nil {
		return nil, errors.New("pubsub client cannot be nil")
	}
	if topicID == "" {
		return nil, errors.New("topic ID cannot be empty")
	}
	topic := client.Topic(topicID)
	topic.PublishSettings.CountThreshold = 1
	topic.PublishSettings.DelayThreshold = 0

	return &PubSubInserter{
		client: client,
		topic:  topic,
		logger: logger.With().Str("component", "PubSubInserter").Str("topic_id", topicID).Logger(),
	}, nil
}

// Insert publishes and blocks until the message is acknowledged by the server.
func (p *PubSubInserter) Insert(ctx context.Context, rec *record.Record) error {
	body, err := wire.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data: body,
		Attributes: map[string]string{
			"stream_id": rec.StreamID,
			"frame_id":  rec.FrameID,
			"device_id": rec.DeviceID,
		},
	})
	id, err := result.Get(ctx)
	if err != nil {
		return fmt.Errorf("pubsub publish failed: %w", err)
	}

	p.logger.Debug().Str("pubsub_msg_id", id).Str("frame_id", rec.FrameID).Msg("Record published.")
	return nil
}

// Verify checks that the topic exists.
func (p *PubSubInserter) Verify(ctx context.Context) error {
	exists, err := p.topic.Exists(ctx)
	if err != nil {
		return fmt.Errorf("pubsub topic check failed: %w", err)
	}
	if !exists {
		return fmt.Errorf("pubsub topic %s does not exist", p.topic.ID())
	}
	p.logger.Info().Msg("Pub/Sub topic verified.")
	return nil
}

// Close flushes the topic and closes the client.
func (p *PubSubInserter) Close() error {
	p.topic.Stop()
	return p.client.Close()
}
