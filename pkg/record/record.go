// Package record defines the persisted unit of the bridge and the closed set
// of bus topics that can produce one.
package record

import (
	"time"
)

// Record is one persisted frame. Field tags match the columns of the
// stream_data table; the publisher's "data" field is stored as image_data.
//
// A Record is built once by the classifier and passed by value to a single
// insert. Nothing in the bridge mutates it after construction.
type Record struct {
	// StreamID groups frames belonging to one capture session.
	StreamID string `json:"stream_id"`
	// FrameID is unique within a stream.
	FrameID  string `json:"frame_id"`
	DeviceID string `json:"device_id"`
	// Timestamp is supplied by the publisher and stored verbatim.
	Timestamp string `json:"timestamp"`
	// Timeout is in seconds; the bridge carries it but does not enforce it.
	Timeout int `json:"timeout"`
	// ImageData is an opaque encoded blob, usually base64.
	ImageData string         `json:"image_data"`
	Metadata  map[string]any `json:"metadata"`
	// CreatedAt is assigned by the bridge when the record is built.
	CreatedAt time.Time `json:"created_at"`
}

// New builds a Record, defaulting metadata to an empty map and copying it so
// later changes to the caller's map are not observed.
func New(streamID, frameID, deviceID, timestamp string, timeout int, imageData string, metadata map[string]any, createdAt time.Time) Record {
	md := make(map[string]any, len(metadata))
	for k, v := range metadata {
		md[k] = v
	}
	return Record{
		StreamID:  streamID,
		FrameID:   frameID,
		DeviceID:  deviceID,
		Timestamp: timestamp,
		Timeout:   timeout,
		ImageData: imageData,
		Metadata:  md,
		CreatedAt: createdAt.UTC(),
	}
}
