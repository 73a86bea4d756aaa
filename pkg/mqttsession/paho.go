package mqttsession

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/eclipse/paho.mqtt.golang/packets"
	"github.com/illmade-knight/go-streambridge/pkg/messagepipeline"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
)

// ErrTimeout is returned when the broker does not answer within ConnectTimeout.
var ErrTimeout = errors.New("mqtt operation timed out")

// ErrNotConnected is returned by Subscribe and Wait before a successful Connect.
var ErrNotConnected = errors.New("mqtt session is not connected")

// HandshakeError is returned when the broker answers the connect with a
// non-success CONNACK return code.
type HandshakeError struct {
	Code byte
	Err  error
}

func (e *HandshakeError) Error() string {
	reason, ok := packets.ConnackReturnCodes[e.Code]
	if !ok {
		reason = "unknown return code"
	}
	return fmt.Sprintf("broker rejected connection (code %d: %s)", e.Code, reason)
}

func (e *HandshakeError) Unwrap() error { return e.Err }

// ClientFactory creates a Paho client from options. Tests replace it with a mock.
type ClientFactory func(opts *mqtt.ClientOptions) mqtt.Client

// PahoSession implements Session on top of the Eclipse Paho client. Every
// Connect builds a fresh client with auto-reconnect disabled, so the Supervisor
// alone decides when and how often to reconnect.
type PahoSession struct {
	cfg       Config
	tlsConfig *tls.Config
	newClient ClientFactory
	logger    zerolog.Logger

	mu      sync.Mutex
	client  mqtt.Client
	lost    chan error
	handler Handler
	ctx     context.Context
}

// SessionOption configures a PahoSession.
type SessionOption func(*PahoSession)

// WithClientFactory overrides how Paho clients are created.
func WithClientFactory(f ClientFactory) SessionOption {
	return func(s *PahoSession) {
		if f != nil {
			s.newClient = f
		}
	}
}

// NewPahoSession validates cfg and prepares TLS. It does not connect.
func NewPahoSession(cfg Config, logger zerolog.Logger, opts ...SessionOption) (*PahoSession, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &PahoSession{
		cfg:       cfg,
		newClient: mqtt.NewClient,
		logger:    logger.With().Str("component", "PahoSession").Str("broker", cfg.BrokerURL()).Logger(),
		ctx:       context.Background(),
	}
	if cfg.UsesTLS() {
		tlsConfig, err := newTLSConfig(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create TLS config: %w", err)
		}
		s.tlsConfig = tlsConfig
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Connect opens a new connection and waits for the CONNACK.
func (s *PahoSession) Connect(ctx context.Context) error {
	lost := make(chan error, 1)
	client := s.newClient(s.clientOptions(lost))

	token := client.Connect()
	if err := waitToken(ctx, token, s.cfg.ConnectTimeout); err != nil {
		client.Disconnect(0)
		if ct, ok := token.(*mqtt.ConnectToken); ok && isRefusal(ct.ReturnCode()) {
			return &HandshakeError{Code: ct.ReturnCode(), Err: err}
		}
		return fmt.Errorf("connect to %s: %w", s.cfg.BrokerURL(), err)
	}

	s.mu.Lock()
	s.client = client
	s.lost = lost
	s.mu.Unlock()
	return nil
}

// Subscribe registers every topic filter with its QoS. handler runs on Paho's
// delivery goroutine, once per message, in delivery order.
func (s *PahoSession) Subscribe(ctx context.Context, topics map[string]byte, handler Handler) error {
	s.mu.Lock()
	client := s.client
	s.handler = handler
	s.ctx = ctx
	s.mu.Unlock()
	if client == nil {
		return ErrNotConnected
	}

	token := client.SubscribeMultiple(topics, s.messageHandler())
	if err := waitToken(ctx, token, s.cfg.ConnectTimeout); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	if st, ok := token.(*mqtt.SubscribeToken); ok {
		for topic, code := range st.Result() {
			if code == 0x80 {
				return fmt.Errorf("subscribe: broker refused topic %s", topic)
			}
		}
	}
	return nil
}

// Wait blocks until the connection is lost or ctx is cancelled.
func (s *PahoSession) Wait(ctx context.Context) error {
	s.mu.Lock()
	lost := s.lost
	s.mu.Unlock()
	if lost == nil {
		return ErrNotConnected
	}

	select {
	case err := <-lost:
		return fmt.Errorf("connection lost: %w", err)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Disconnect closes the current client, if any.
func (s *PahoSession) Disconnect() {
	s.mu.Lock()
	client := s.client
	s.client = nil
	s.lost = nil
	s.mu.Unlock()

	if client != nil && client.IsConnectionOpen() {
		client.Disconnect(250)
		s.logger.Info().Msg("Paho MQTT client disconnected.")
	}
}

// messageHandler converts Paho messages to pipeline Messages. The payload is
// copied because Paho may reuse the buffer once the callback returns.
func (s *PahoSession) messageHandler() mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		s.mu.Lock()
		handler, ctx := s.handler, s.ctx
		s.mu.Unlock()
		if handler == nil {
			s.logger.Warn().Str("topic", msg.Topic()).Msg("No handler registered, dropping MQTT message.")
			return
		}

		payloadCopy := make([]byte, len(msg.Payload()))
		copy(payloadCopy, msg.Payload())

		s.logger.Debug().Str("topic", msg.Topic()).Msg("Received MQTT message")
		handler(ctx, messagepipeline.Message{
			ID:         ulid.Make().String(),
			Topic:      msg.Topic(),
			Payload:    payloadCopy,
			ReceivedAt: time.Now().UTC(),
			QoS:        msg.Qos(),
			Duplicate:  msg.Duplicate(),
		})
	}
}

// clientOptions assembles the Paho client options from the config.
func (s *PahoSession) clientOptions(lost chan<- error) *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(s.cfg.BrokerURL())
	opts.SetClientID(s.cfg.ClientIDPrefix + ulid.Make().String())
	opts.SetUsername(s.cfg.Username)
	opts.SetPassword(s.cfg.Password)
	opts.SetKeepAlive(s.cfg.KeepAlive)
	opts.SetConnectTimeout(s.cfg.ConnectTimeout)
	opts.SetCleanSession(s.cfg.CleanSession)
	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(false)
	// Deliver messages one at a time on a single goroutine.
	opts.SetOrderMatters(true)
	// Stored session messages can arrive before SubscribeMultiple returns.
	opts.SetDefaultPublishHandler(s.messageHandler())
	if s.tlsConfig != nil {
		opts.SetTLSConfig(s.tlsConfig)
	}

	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		s.logger.Error().Err(err).Msg("Paho client lost MQTT connection.")
		select {
		case lost <- err:
		default:
		}
	})
	return opts
}

// isRefusal reports whether code is a CONNACK refusal rather than a
// transport failure, which Paho reports with codes above 0x7F.
func isRefusal(code byte) bool {
	return code > packets.Accepted && code <= packets.ErrRefusedNotAuthorised
}

// waitToken waits for a Paho token under a timeout and ctx.
func waitToken(ctx context.Context, token mqtt.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrTimeout
	}
}
