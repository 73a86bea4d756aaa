package messagepipeline

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"

	"github.com/rs/zerolog"
)

// StreamingService runs each delivered message through a transformer and then a
// processor. Every failure is logged and contained to the message that caused it.
//
// With one worker (the default) everything happens synchronously on the caller's
// goroutine, which is the transport's delivery path, so messages are handled
// strictly in delivery order. With more workers the transformer still runs on
// the delivery path, and processing is handed to a bounded queue selected by
// the payload's PartitionKey: order is kept per key, not across keys.
type StreamingService[T any] struct {
	numWorkers  int
	queueSize   int
	transformer MessageTransformer[T]
	processor   StreamProcessor[T]
	partition   PartitionKey[T]
	logger      zerolog.Logger

	mu      sync.RWMutex
	queues  []chan workItem[T]
	stopped bool
	wg      sync.WaitGroup
}

// StreamingServiceConfig holds configuration for a StreamingService.
type StreamingServiceConfig struct {
	// NumWorkers above 1 enables partitioned asynchronous processing.
	NumWorkers int
	// QueueSize bounds each worker's backlog; a full queue blocks delivery.
	QueueSize int
}

type workItem[T any] struct {
	msg     Message
	payload *T
}

// NewStreamingService creates a new StreamingService. partition may be nil when
// NumWorkers is 1 or less.
func NewStreamingService[T any](
	cfg StreamingServiceConfig,
	transformer MessageTransformer[T],
	processor StreamProcessor[T],
	partition PartitionKey[T],
	logger zerolog.Logger,
) (*StreamingService[T], error) {
	if cfg.NumWorkers <= 0 {
		cfg.NumWorkers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if transformer == nil {
		return nil, fmt.Errorf("transformer cannot be nil")
	}
	if processor == nil {
		return nil, fmt.Errorf("processor cannot be nil")
	}
	if cfg.NumWorkers > 1 && partition == nil {
		return nil, fmt.Errorf("partition key is required when running %d workers", cfg.NumWorkers)
	}

	return &StreamingService[T]{
		numWorkers:  cfg.NumWorkers,
		queueSize:   cfg.QueueSize,
		transformer: transformer,
		processor:   processor,
		partition:   partition,
		logger:      logger.With().Str("service", "StreamingService").Logger(),
	}, nil
}

// Start spawns the worker pool when more than one worker is configured.
// It is a no-op in synchronous mode.
func (s *StreamingService[T]) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return errors.New("streaming service already stopped")
	}
	if s.numWorkers <= 1 {
		s.logger.Info().Msg("Streaming service running synchronously on the delivery path.")
		return nil
	}
	if s.queues != nil {
		return nil
	}

	s.logger.Info().Int("worker_count", s.numWorkers).Int("queue_size", s.queueSize).Msg("Starting partitioned processing workers...")
	s.queues = make([]chan workItem[T], s.numWorkers)
	s.wg.Add(s.numWorkers)
	for i := range s.queues {
		s.queues[i] = make(chan workItem[T], s.queueSize)
		go s.worker(ctx, i, s.queues[i])
	}
	return nil
}

// Stop closes the worker queues and waits for queued items to be handled or
// dropped, respecting the context's deadline.
func (s *StreamingService[T]) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	for _, q := range s.queues {
		close(q)
	}
	s.mu.Unlock()

	workerDone := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(workerDone)
	}()

	select {
	case <-workerDone:
		s.logger.Info().Msg("Streaming service stopped.")
		return nil
	case <-ctx.Done():
		s.logger.Error().Err(ctx.Err()).Msg("Timeout waiting for processing workers to finish.")
		return ctx.Err()
	}
}

// Handle processes one delivered message. It never panics and never returns an
// error: the outcome of one message cannot affect the next.
func (s *StreamingService[T]) Handle(ctx context.Context, msg Message) {
	defer s.recoverMessage(msg)

	payload, skip, err := s.transformer(ctx, &msg)
	if err != nil {
		s.logger.Error().Err(err).Str("msg_id", msg.ID).Str("topic", msg.Topic).Msg("Failed to transform message, dropping.")
		return
	}
	if skip || payload == nil {
		s.logger.Debug().Str("msg_id", msg.ID).Str("topic", msg.Topic).Msg("Transformer signaled to skip message.")
		return
	}

	if s.numWorkers <= 1 {
		s.process(ctx, msg, payload)
		return
	}
	s.enqueue(ctx, workItem[T]{msg: msg, payload: payload})
}

func (s *StreamingService[T]) enqueue(ctx context.Context, item workItem[T]) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.stopped || s.queues == nil {
		s.logger.Warn().Str("msg_id", item.msg.ID).Msg("Streaming service is not running, dropping message.")
		return
	}

	q := s.queues[s.partitionIndex(item.payload)]
	select {
	case q <- item:
	case <-ctx.Done():
		s.logger.Warn().Str("msg_id", item.msg.ID).Msg("Shutdown in progress, dropping message.")
	}
}

func (s *StreamingService[T]) worker(ctx context.Context, workerID int, queue <-chan workItem[T]) {
	defer s.wg.Done()
	s.logger.Debug().Int("worker_id", workerID).Msg("Processing worker started.")
	for item := range queue {
		if ctx.Err() != nil {
			s.logger.Warn().Int("worker_id", workerID).Str("msg_id", item.msg.ID).Msg("Shutdown in progress, dropping queued message.")
			continue
		}
		s.processSafely(ctx, item)
	}
	s.logger.Debug().Int("worker_id", workerID).Msg("Processing worker exiting.")
}

func (s *StreamingService[T]) processSafely(ctx context.Context, item workItem[T]) {
	defer s.recoverMessage(item.msg)
	s.process(ctx, item.msg, item.payload)
}

// process contains the logic for handing a single payload to the processor.
func (s *StreamingService[T]) process(ctx context.Context, msg Message, payload *T) {
	if err := s.processor(ctx, msg, payload); err != nil {
		s.logger.Error().Err(err).Str("msg_id", msg.ID).Str("topic", msg.Topic).Msg("Processor failed to handle message, dropping.")
		return
	}
	s.logger.Debug().Str("msg_id", msg.ID).Msg("Message processed successfully.")
}

func (s *StreamingService[T]) recoverMessage(msg Message) {
	if r := recover(); r != nil {
		s.logger.Error().Str("msg_id", msg.ID).Str("topic", msg.Topic).Interface("panic", r).Msg("Recovered from panic while handling message, dropping.")
	}
}

func (s *StreamingService[T]) partitionIndex(payload *T) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s.partition(payload)))
	return int(h.Sum32() % uint32(len(s.queues)))
}
