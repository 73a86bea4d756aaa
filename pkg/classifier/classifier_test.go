package classifier_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/illmade-knight/go-streambridge/pkg/classifier"
	"github.com/illmade-knight/go-streambridge/pkg/record"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const scenarioA = `{"stream_id":"s1","frame_id":"f1","device_id":"d1","timestamp":"2024-12-03T10:00:00Z","timeout":30,"data":"QUJD"}`

var requiredFields = []string{"stream_id", "frame_id", "device_id", "timestamp", "timeout", "data"}

func fullPayload() map[string]any {
	return map[string]any{
		"stream_id": "s1",
		"frame_id":  "f1",
		"device_id": "d1",
		"timestamp": "2024-12-03T10:00:00Z",
		"timeout":   30,
		"data":      "QUJD",
	}
}

func TestClassify_ScenarioA_BuildsRecord(t *testing.T) {
	c := classifier.New()
	before := time.Now()

	res := c.Classify(record.DataTopic, []byte(scenarioA))

	require.Equal(t, classifier.Built, res.Outcome)
	require.NoError(t, res.Err)
	require.NotNil(t, res.Record)
	assert.Equal(t, record.KindData, res.Kind)

	rec := res.Record
	assert.Equal(t, "s1", rec.StreamID)
	assert.Equal(t, "f1", rec.FrameID)
	assert.Equal(t, "d1", rec.DeviceID)
	assert.Equal(t, "2024-12-03T10:00:00Z", rec.Timestamp)
	assert.Equal(t, 30, rec.Timeout)
	assert.Equal(t, "QUJD", rec.ImageData)
	assert.Equal(t, map[string]any{}, rec.Metadata)
	assert.False(t, rec.CreatedAt.Before(before.UTC().Truncate(time.Microsecond)), "created_at must not precede the call")
}

func TestClassify_MetadataIsCarried(t *testing.T) {
	p := fullPayload()
	p["metadata"] = map[string]any{"resolution": "640x480", "fps": 15}
	raw, err := json.Marshal(p)
	require.NoError(t, err)

	res := classifier.New().Classify(record.DataTopic, raw)

	require.Equal(t, classifier.Built, res.Outcome)
	assert.Equal(t, "640x480", res.Record.Metadata["resolution"])
	assert.EqualValues(t, 15, res.Record.Metadata["fps"])
}

func TestClassify_ZeroValuesCountAsPresent(t *testing.T) {
	p := fullPayload()
	p["timeout"] = 0
	p["data"] = ""
	raw, err := json.Marshal(p)
	require.NoError(t, err)

	res := classifier.New().Classify(record.DataTopic, raw)

	require.Equal(t, classifier.Built, res.Outcome)
	assert.Equal(t, 0, res.Record.Timeout)
	assert.Equal(t, "", res.Record.ImageData)
}

func TestClassify_MissingEachRequiredField(t *testing.T) {
	c := classifier.New()
	for _, field := range requiredFields {
		t.Run(field, func(t *testing.T) {
			p := fullPayload()
			delete(p, field)
			raw, err := json.Marshal(p)
			require.NoError(t, err)

			res := c.Classify(record.DataTopic, raw)

			require.Equal(t, classifier.Malformed, res.Outcome)
			assert.Nil(t, res.Record)
			require.Error(t, res.Err)
			assert.True(t, errors.Is(res.Err, classifier.ErrMalformed))

			var merr *classifier.MalformedError
			require.True(t, errors.As(res.Err, &merr))
			assert.Equal(t, field, merr.Field)
			assert.Contains(t, res.Err.Error(), field)
		})
	}
}

func TestClassify_ScenarioB_NamesAMissingField(t *testing.T) {
	res := classifier.New().Classify(record.DataTopic, []byte(`{"stream_id":"s1","frame_id":"f1"}`))

	require.Equal(t, classifier.Malformed, res.Outcome)
	assert.Nil(t, res.Record)
	var merr *classifier.MalformedError
	require.True(t, errors.As(res.Err, &merr))
	assert.Contains(t, []string{"device_id", "timestamp", "timeout", "data"}, merr.Field)
}

func TestClassify_ScenarioC_NonJSON(t *testing.T) {
	testCases := []struct {
		name    string
		payload []byte
	}{
		{name: "plain text", payload: []byte("not json at all")},
		{name: "truncated object", payload: []byte(`{"stream_id":"s1"`)},
		{name: "array", payload: []byte(`[1,2,3]`)},
		{name: "null", payload: []byte(`null`)},
		{name: "empty", payload: nil},
	}
	c := classifier.New()
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			res := c.Classify(record.DataTopic, tc.payload)
			assert.Equal(t, classifier.Malformed, res.Outcome)
			assert.Nil(t, res.Record)
			assert.ErrorIs(t, res.Err, classifier.ErrMalformed)
		})
	}
}

func TestClassify_WrongFieldTypeIsMalformed(t *testing.T) {
	p := fullPayload()
	p["timeout"] = "thirty"
	raw, err := json.Marshal(p)
	require.NoError(t, err)

	res := classifier.New().Classify(record.DataTopic, raw)

	assert.Equal(t, classifier.Malformed, res.Outcome)
	assert.ErrorIs(t, res.Err, classifier.ErrMalformed)
}

func TestClassify_DebugIsAlwaysIgnored(t *testing.T) {
	testCases := []struct {
		name     string
		payload  string
		wantMeta any
	}{
		{name: "with meta", payload: `{"meta":{"rssi":-61}}`, wantMeta: map[string]any{"rssi": float64(-61)}},
		{name: "without meta", payload: `{}`, wantMeta: map[string]any{}},
		{name: "with data fields", payload: scenarioA, wantMeta: map[string]any{}},
	}
	c := classifier.New()
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			res := c.Classify(record.DebugTopic, []byte(tc.payload))
			assert.Equal(t, classifier.Ignored, res.Outcome)
			assert.Equal(t, record.KindDebug, res.Kind)
			assert.Nil(t, res.Record)
			assert.NoError(t, res.Err)
			assert.Equal(t, tc.wantMeta, res.Debug)
		})
	}
}

func TestClassify_UnknownTopicIsIgnored(t *testing.T) {
	c := classifier.New()
	for _, topic := range []string{"device/other", "", "device/data/extra", "DEVICE/DATA"} {
		res := c.Classify(topic, []byte(scenarioA))
		assert.Equal(t, classifier.Ignored, res.Outcome, "topic %q", topic)
		assert.Equal(t, record.KindUnknown, res.Kind)
		assert.Nil(t, res.Record)
	}
}

func TestClassify_IsIdempotentExceptCreatedAt(t *testing.T) {
	tick := time.Date(2024, 12, 3, 10, 0, 0, 0, time.UTC)
	c := classifier.New(classifier.WithClock(func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}))

	first := c.Classify(record.DataTopic, []byte(scenarioA))
	second := c.Classify(record.DataTopic, []byte(scenarioA))
	require.Equal(t, classifier.Built, first.Outcome)
	require.Equal(t, classifier.Built, second.Outcome)

	assert.True(t, second.Record.CreatedAt.After(first.Record.CreatedAt))

	a, b := *first.Record, *second.Record
	a.CreatedAt, b.CreatedAt = time.Time{}, time.Time{}
	assert.Equal(t, a, b)
}
