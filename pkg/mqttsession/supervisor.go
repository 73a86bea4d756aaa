package mqttsession

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/illmade-knight/go-streambridge/pkg/messagepipeline"
	"github.com/rs/zerolog"
)

var errSessionEnded = errors.New("session ended")

// Handler receives every message delivered while the session is connected.
// It runs on the transport's delivery goroutine.
type Handler func(ctx context.Context, msg messagepipeline.Message)

// Session is the message-bus boundary the Supervisor drives.
type Session interface {
	// Connect opens a connection and waits for the broker's acknowledgement.
	Connect(ctx context.Context) error
	// Subscribe registers topic filters, each with its QoS, and the handler.
	Subscribe(ctx context.Context, topics map[string]byte, handler Handler) error
	// Wait blocks until the connection ends or ctx is cancelled.
	Wait(ctx context.Context) error
	// Disconnect releases the current connection. It is safe to call at any time.
	Disconnect()
}

// State is the supervisor's connection state.
type State int32

// Connection states. The initial state is Disconnected.
const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Supervisor owns the bus session. It connects, subscribes, serves until the
// session ends and then reconnects after the retry policy's delay, forever,
// until its context is cancelled.
type Supervisor struct {
	session Session
	topics  map[string]byte
	handler Handler
	address string
	policy  backoff.BackOff
	after   func(time.Duration) <-chan time.Time
	logger  zerolog.Logger

	state    atomic.Int32
	attempts atomic.Int64
}

// SupervisorOption configures a Supervisor.
type SupervisorOption func(*Supervisor)

// WithRetryPolicy replaces the fixed retry delay.
func WithRetryPolicy(policy backoff.BackOff) SupervisorOption {
	return func(s *Supervisor) {
		if policy != nil {
			s.policy = policy
		}
	}
}

// WithAfter replaces time.After, letting tests observe and skip retry delays.
func WithAfter(after func(time.Duration) <-chan time.Time) SupervisorOption {
	return func(s *Supervisor) {
		if after != nil {
			s.after = after
		}
	}
}

// WithAddress sets the broker address used in log lines.
func WithAddress(address string) SupervisorOption {
	return func(s *Supervisor) {
		s.address = address
	}
}

// NewSupervisor creates a Supervisor retrying every retryDelay.
func NewSupervisor(session Session, topics map[string]byte, handler Handler, retryDelay time.Duration, logger zerolog.Logger, opts ...SupervisorOption) (*Supervisor, error) {
	if session == nil {
		return nil, errors.New("session cannot be nil")
	}
	if handler == nil {
		return nil, errors.New("handler cannot be nil")
	}
	if len(topics) == 0 {
		return nil, errors.New("at least one topic is required")
	}
	if retryDelay <= 0 {
		retryDelay = DefaultRetryDelay
	}

	s := &Supervisor{
		session: session,
		topics:  topics,
		handler: handler,
		policy:  backoff.NewConstantBackOff(retryDelay),
		after:   time.After,
		logger:  logger.With().Str("component", "ConnectionSupervisor").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// State returns the current connection state.
func (s *Supervisor) State() State {
	return State(s.state.Load())
}

// Attempts returns the number of connect attempts made so far.
func (s *Supervisor) Attempts() int64 {
	return s.attempts.Load()
}

func (s *Supervisor) setState(state State) {
	prev := State(s.state.Swap(int32(state)))
	if prev != state {
		s.logger.Debug().Stringer("from", prev).Stringer("to", state).Msg("Connection state changed.")
	}
}

// Run blocks until ctx is cancelled. Session failures are logged and retried.
// The only error returned is a retry policy returning backoff.Stop, which the
// default constant policy never does.
func (s *Supervisor) Run(ctx context.Context) error {
	s.policy.Reset()
	for {
		err := s.serve(ctx)
		s.setState(Disconnected)
		if ctx.Err() != nil {
			s.logger.Info().Msg("Connection supervisor stopped.")
			return nil
		}

		if err == nil {
			err = errSessionEnded
		}
		s.logger.Error().Err(err).Msg("MQTT connection error")
		delay := s.policy.NextBackOff()
		if delay == backoff.Stop {
			return fmt.Errorf("retry policy gave up: %w", err)
		}
		s.logger.Info().Dur("delay", delay).Msgf("Retrying connection in %s...", delay)

		select {
		case <-s.after(delay):
		case <-ctx.Done():
			s.logger.Info().Msg("Connection supervisor stopped.")
			return nil
		}
	}
}

// serve runs one connect, subscribe, wait cycle and returns why it ended.
func (s *Supervisor) serve(ctx context.Context) error {
	s.setState(Connecting)
	s.attempts.Add(1)
	s.logger.Info().Str("address", s.address).Msg("Connecting to MQTT broker")

	if err := s.session.Connect(ctx); err != nil {
		var hsErr *HandshakeError
		if errors.As(err, &hsErr) {
			s.logger.Error().Uint8("code", hsErr.Code).Msg("Failed to connect to MQTT broker")
		}
		return err
	}
	defer s.session.Disconnect()

	s.setState(Connected)
	s.policy.Reset()
	s.logger.Info().Msg("Connected to MQTT broker successfully")

	if err := s.session.Subscribe(ctx, s.topics, s.handler); err != nil {
		return err
	}
	s.logger.Info().Strs("topics", topicNames(s.topics)).Msg("Subscribed to topics")

	return s.session.Wait(ctx)
}

func topicNames(topics map[string]byte) []string {
	names := make([]string, 0, len(topics))
	for name := range topics {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
