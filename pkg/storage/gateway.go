package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/illmade-knight/go-streambridge/pkg/record"
	"github.com/rs/zerolog"
)

// Inserter is the interface every storage backend implements. It writes exactly
// one record per call; there is no batching and no retry.
type Inserter interface {
	// Insert writes a single record to the backing store.
	Insert(ctx context.Context, rec *record.Record) error
	// Close releases the inserter's resources.
	Close() error
}

// ErrInsertPanicked marks an Outcome whose backend panicked during Insert.
var ErrInsertPanicked = errors.New("storage backend panicked")

// Outcome is the result of a single Gateway.Insert call.
type Outcome struct {
	Backend string
	Elapsed time.Duration
	// Err is nil when the record was stored.
	Err error
}

// Stored reports whether the insert succeeded.
func (o Outcome) Stored() bool {
	return o.Err == nil
}

// Gateway is the synchronous facade the bridge persists records through. It
// converts every backend error, including panics, into a failed Outcome so
// nothing escapes past Insert.
type Gateway struct {
	inserter Inserter
	backend  string
	timeout  time.Duration
	logger   zerolog.Logger
}

// NewGateway wraps an Inserter. A zero timeout leaves the insert unbounded.
func NewGateway(inserter Inserter, backend string, timeout time.Duration, logger zerolog.Logger) (*Gateway, error) {
	if inserter == nil {
		return nil, errors.New("inserter cannot be nil")
	}
	return &Gateway{
		inserter: inserter,
		backend:  backend,
		timeout:  timeout,
		logger:   logger.With().Str("component", "StorageGateway").Str("backend", backend).Logger(),
	}, nil
}

// Insert hands one record to the backend and reports the outcome.
func (g *Gateway) Insert(ctx context.Context, rec record.Record) (out Outcome) {
	start := time.Now()
	out.Backend = g.backend

	defer func() {
		if r := recover(); r != nil {
			out.Err = fmt.Errorf("%w: %v", ErrInsertPanicked, r)
		}
		out.Elapsed = time.Since(start)
		if out.Err != nil {
			g.logger.Debug().Err(out.Err).Str("stream_id", rec.StreamID).Str("frame_id", rec.FrameID).Dur("elapsed", out.Elapsed).Msg("Insert failed.")
		}
	}()

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	if err := g.inserter.Insert(ctx, &rec); err != nil {
		out.Err = fmt.Errorf("%s insert of frame %q: %w", g.backend, rec.FrameID, err)
	}
	return out
}

// Backend names the configured storage backend.
func (g *Gateway) Backend() string {
	return g.backend
}

// Close closes the underlying inserter.
func (g *Gateway) Close() error {
	g.logger.Info().Msg("Closing storage gateway.")
	return g.inserter.Close()
}
