// Package bridge composes the MQTT bridge: each delivered message is
// classified, turned into a Record and persisted. Outcomes are only logged;
// no message can affect the handling of the next one or the session.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/illmade-knight/go-streambridge/pkg/classifier"
	"github.com/illmade-knight/go-streambridge/pkg/messagepipeline"
	"github.com/illmade-knight/go-streambridge/pkg/mqttsession"
	"github.com/illmade-knight/go-streambridge/pkg/record"
	"github.com/illmade-knight/go-streambridge/pkg/storage"
	"github.com/rs/zerolog"
)

// Config holds the dispatch settings of the bridge.
type Config struct {
	// Workers above 1 persists records on a pool partitioned by stream id.
	Workers int `env:"BRIDGE_WORKERS" envDefault:"1"`
	// QueueSize bounds each worker's backlog.
	QueueSize int `env:"BRIDGE_QUEUE_SIZE" envDefault:"64"`
	// MaxPayloadBytes rejects larger payloads before decoding; 0 disables the limit.
	MaxPayloadBytes int `env:"BRIDGE_MAX_PAYLOAD_BYTES" envDefault:"0"`
	// StopTimeout bounds how long queued inserts may drain on shutdown.
	StopTimeout time.Duration `env:"BRIDGE_STOP_TIMEOUT" envDefault:"5s"`
}

// Persister is the storage boundary; *storage.Gateway implements it.
type Persister interface {
	Insert(ctx context.Context, rec record.Record) storage.Outcome
}

// Service is the top-level composition object. It owns the pipeline and the
// connection supervisor for the lifetime of the process.
type Service struct {
	cfg        Config
	classifier *classifier.Classifier
	persister  Persister
	pipeline   *messagepipeline.StreamingService[record.Record]
	supervisor *mqttsession.Supervisor
	logger     zerolog.Logger
}

// Option configures a Service.
type Option func(*options)

type options struct {
	classifier     *classifier.Classifier
	supervisorOpts []mqttsession.SupervisorOption
}

// WithClassifier replaces the default classifier.
func WithClassifier(c *classifier.Classifier) Option {
	return func(o *options) {
		o.classifier = c
	}
}

// WithSupervisorOptions passes options through to the connection supervisor.
func WithSupervisorOptions(opts ...mqttsession.SupervisorOption) Option {
	return func(o *options) {
		o.supervisorOpts = append(o.supervisorOpts, opts...)
	}
}

// New wires the bridge. It does not connect; call Run.
func New(cfg Config, session mqttsession.Session, persister Persister, retryDelay time.Duration, logger zerolog.Logger, opts ...Option) (*Service, error) {
	if session == nil {
		return nil, errors.New("session cannot be nil")
	}
	if persister == nil {
		return nil, errors.New("persister cannot be nil")
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = 5 * time.Second
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.classifier == nil {
		o.classifier = classifier.New()
	}

	s := &Service{
		cfg:        cfg,
		classifier: o.classifier,
		persister:  persister,
		logger:     logger.With().Str("component", "Bridge").Logger(),
	}

	transformer := messagepipeline.WithPayloadLimit[record.Record](s.transform, cfg.MaxPayloadBytes)
	pipeline, err := messagepipeline.NewStreamingService[record.Record](
		messagepipeline.StreamingServiceConfig{NumWorkers: cfg.Workers, QueueSize: cfg.QueueSize},
		transformer, s.process, streamKey, logger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline: %w", err)
	}
	s.pipeline = pipeline

	supervisor, err := mqttsession.NewSupervisor(session, record.Subscriptions(), s.Handle, retryDelay, logger, o.supervisorOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection supervisor: %w", err)
	}
	s.supervisor = supervisor
	return s, nil
}

// Run starts the pipeline and blocks in the connect/serve/retry loop until ctx
// is cancelled. In-flight work is not drained beyond StopTimeout.
func (s *Service) Run(ctx context.Context) error {
	if err := s.pipeline.Start(ctx); err != nil {
		return fmt.Errorf("failed to start pipeline: %w", err)
	}
	s.logger.Info().Strs("topics", record.TopicList()).Int("workers", max(s.cfg.Workers, 1)).Msg("Bridge running.")

	runErr := s.supervisor.Run(ctx)

	stopCtx, cancel := context.WithTimeout(context.Background(), s.cfg.StopTimeout)
	defer cancel()
	if err := s.pipeline.Stop(stopCtx); err != nil {
		s.logger.Warn().Err(err).Msg("Pipeline did not stop cleanly.")
	}
	return runErr
}

// Handle processes one delivered message. It is the supervisor's delivery
// callback and never panics.
func (s *Service) Handle(ctx context.Context, msg messagepipeline.Message) {
	s.pipeline.Handle(ctx, msg)
}

// State exposes the connection state.
func (s *Service) State() mqttsession.State {
	return s.supervisor.State()
}

// transform maps classifier results onto the pipeline's transformer contract:
// Built continues, Ignored skips, Malformed is an error that drops the message.
func (s *Service) transform(_ context.Context, msg *messagepipeline.Message) (*record.Record, bool, error) {
	res := s.classifier.Classify(msg.Topic, msg.Payload)
	switch res.Outcome {
	case classifier.Built:
		return res.Record, false, nil
	case classifier.Ignored:
		if res.Kind == record.KindDebug {
			s.logger.Debug().Str("msg_id", msg.ID).Interface("meta", res.Debug).Msg("Debug data")
		} else {
			s.logger.Debug().Str("msg_id", msg.ID).Str("topic", msg.Topic).Msg("Ignoring message on unrecognised topic.")
		}
		return nil, true, nil
	default:
		s.logger.Debug().Str("msg_id", msg.ID).Str("topic", msg.Topic).Str("raw", string(msg.Payload)).Msg("Raw message")
		return nil, false, res.Err
	}
}

// process hands a built record to storage exactly once.
func (s *Service) process(ctx context.Context, msg messagepipeline.Message, rec *record.Record) error {
	out := s.persister.Insert(ctx, *rec)
	if !out.Stored() {
		return out.Err
	}
	s.logger.Info().
		Str("frame_id", rec.FrameID).
		Str("stream_id", rec.StreamID).
		Dur("elapsed", out.Elapsed).
		Msgf("Successfully processed frame %s", rec.FrameID)
	return nil
}

func streamKey(rec *record.Record) string {
	return rec.StreamID
}
