package messagepipeline

import (
	"context"
	"errors"
	"fmt"
)

// ErrPayloadTooLarge is returned by WithPayloadLimit for oversized messages.
var ErrPayloadTooLarge = errors.New("payload exceeds size limit")

// WithPayloadLimit is a decorator function. It takes an existing MessageTransformer
// and returns a new one that rejects payloads larger than maxBytes before the
// inner transformer decodes them. A maxBytes of zero or less disables the check.
func WithPayloadLimit[T any](innerTransformer MessageTransformer[T], maxBytes int) MessageTransformer[T] {
	if maxBytes <= 0 {
		return innerTransformer
	}

	return func(ctx context.Context, msg *Message) (*T, bool, error) {
		if n := len(msg.Payload); n > maxBytes {
			return nil, false, fmt.Errorf("%w: %d bytes > %d", ErrPayloadTooLarge, n, maxBytes)
		}
		return innerTransformer(ctx, msg)
	}
}
