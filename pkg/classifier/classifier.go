// Package classifier routes raw bus messages by topic and turns data-topic
// payloads into Records. It never panics on bad input: every failure is
// reported as a Malformed Result.
package classifier

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-playground/validator/v10"
	"github.com/illmade-knight/go-streambridge/pkg/record"
)

var wire = sonic.ConfigStd

// Classifier maps (topic, payload) pairs to Results. It is safe for concurrent use.
type Classifier struct {
	validate *validator.Validate
	now      func() time.Time
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithClock overrides the source of Record creation timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Classifier) {
		if now != nil {
			c.now = now
		}
	}
}

// New creates a Classifier.
func New(opts ...Option) *Classifier {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their wire name so errors match what publishers send.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	c := &Classifier{
		validate: v,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify decodes payload according to the kind of topic.
//
// Unknown topics are Ignored without decoding. Debug messages are Ignored once
// decoded. Data messages become a Record when every required field is present.
func (c *Classifier) Classify(topic string, payload []byte) Result {
	kind := record.KindOf(topic)
	switch kind {
	case record.KindData:
		return c.classifyData(payload)
	case record.KindDebug:
		return c.classifyDebug(payload)
	default:
		return Result{Outcome: Ignored, Kind: record.KindUnknown}
	}
}

func (c *Classifier) classifyData(payload []byte) Result {
	var env dataEnvelope
	if err := decode(payload, &env); err != nil {
		return malformed(record.KindData, err)
	}

	if err := c.validate.Struct(&env); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return malformed(record.KindData, &MalformedError{Field: verrs[0].Field(), Err: errMissingField})
		}
		return malformed(record.KindData, &MalformedError{Err: err})
	}

	rec := record.New(
		*env.StreamID,
		*env.FrameID,
		*env.DeviceID,
		*env.Timestamp,
		*env.Timeout,
		*env.Data,
		env.Metadata,
		c.now(),
	)
	return Result{Outcome: Built, Kind: record.KindData, Record: &rec}
}

func (c *Classifier) classifyDebug(payload []byte) Result {
	var env debugEnvelope
	if err := decode(payload, &env); err != nil {
		return malformed(record.KindDebug, err)
	}
	meta := env.Meta
	if meta == nil {
		meta = map[string]any{}
	}
	return Result{Outcome: Ignored, Kind: record.KindDebug, Debug: meta}
}

// decode unmarshals a JSON object into v, converting every failure into a MalformedError.
func decode(payload []byte, v any) error {
	trimmed := strings.TrimSpace(string(payload))
	if !strings.HasPrefix(trimmed, "{") {
		return &MalformedError{Err: fmt.Errorf("payload is not a JSON object")}
	}
	if err := wire.Unmarshal(payload, v); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			return &MalformedError{Field: typeErr.Field, Err: err}
		}
		return &MalformedError{Err: fmt.Errorf("decode json: %w", err)}
	}
	return nil
}

func malformed(kind record.TopicKind, err error) Result {
	return Result{Outcome: Malformed, Kind: kind, Err: err}
}
