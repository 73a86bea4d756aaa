package messagepipeline

import (
	"context"
)

// ====================================================================================
// This file defines the function types a pipeline is assembled from: a transformer
// that decides what a message becomes, and a processor that persists the result.
// ====================================================================================

// MessageTransformer turns a Message into a payload of type T.
//
// The 'skip' return value signals that the message is valid but should not be
// processed further. A non-nil error means the message is malformed; it is
// logged and dropped. Neither outcome affects the next message.
type MessageTransformer[T any] func(ctx context.Context, msg *Message) (payload *T, skip bool, err error)

// StreamProcessor handles one transformed payload. A returned error is logged
// and the message is dropped; it is never retried.
type StreamProcessor[T any] func(ctx context.Context, original Message, payload *T) error

// PartitionKey selects the worker a payload is processed on when the service
// runs more than one worker. Payloads with equal keys are processed in order
// on the same worker.
type PartitionKey[T any] func(payload *T) string
