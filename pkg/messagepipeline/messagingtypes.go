package messagepipeline

import (
	"time"
)

// Message is the canonical, internal representation of one message delivered
// by the bus. The payload is owned by the Message; consumers copy it out of
// the transport buffer before building one.
type Message struct {
	// ID is generated by the bridge; the broker's packet id is not unique.
	ID string

	// Topic is the bus topic the message arrived on.
	Topic string

	// Payload is the raw byte content of the message.
	Payload []byte

	// ReceivedAt is when the bridge took the message off the transport.
	ReceivedAt time.Time

	// QoS and Duplicate are reported by the broker and used for logging only.
	QoS       byte
	Duplicate bool
}
