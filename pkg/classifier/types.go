package classifier

import (
	"errors"
	"fmt"

	"github.com/illmade-knight/go-streambridge/pkg/record"
)

// Outcome is the classification verdict for one inbound message.
type Outcome int

const (
	// Built means a Record was produced and should be persisted.
	Built Outcome = iota + 1
	// Ignored means the message is valid but never persisted (debug or unknown topic).
	Ignored
	// Malformed means the payload could not be decoded or lacks a required field.
	Malformed
)

func (o Outcome) String() string {
	switch o {
	case Built:
		return "built"
	case Ignored:
		return "ignored"
	case Malformed:
		return "malformed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Result carries the outcome of Classify. Exactly one of Record (Built) or
// Err (Malformed) is set; Debug holds the diagnostic meta of a debug message.
type Result struct {
	Outcome Outcome
	Kind    record.TopicKind
	Record  *record.Record
	Debug   any
	Err     error
}

// ErrMalformed matches every MalformedError with errors.Is.
var ErrMalformed = errors.New("malformed message")

// MalformedError describes why a payload was rejected. Field is the JSON key
// of the first missing or mistyped field, empty for whole-payload decode errors.
type MalformedError struct {
	Field string
	Err   error
}

func (e *MalformedError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("malformed message: field %q: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("malformed message: %v", e.Err)
}

func (e *MalformedError) Unwrap() error { return e.Err }

// Is lets callers match any MalformedError against ErrMalformed.
func (e *MalformedError) Is(target error) bool { return target == ErrMalformed }

// errMissingField is the cause recorded for an absent required field.
var errMissingField = errors.New("missing required field")

// dataEnvelope is the wire shape of a data-topic message. Pointers separate
// "absent" from "zero": an explicit "" or 0 counts as present.
type dataEnvelope struct {
	StreamID  *string        `json:"stream_id" validate:"required"`
	FrameID   *string        `json:"frame_id" validate:"required"`
	DeviceID  *string        `json:"device_id" validate:"required"`
	Timestamp *string        `json:"timestamp" validate:"required"`
	Timeout   *int           `json:"timeout" validate:"required"`
	Data      *string        `json:"data" validate:"required"`
	Metadata  map[string]any `json:"metadata"`
}

// debugEnvelope is the wire shape of a debug-topic message; every field is optional.
type debugEnvelope struct {
	Meta any `json:"meta"`
}
