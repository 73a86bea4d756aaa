package storage_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/illmade-knight/go-streambridge/pkg/record"
	"github.com/illmade-knight/go-streambridge/pkg/storage"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Test Helpers ---

func testRecord(frameID string) record.Record {
	return record.New("s1", frameID, "d1", "2024-12-03T10:00:00Z", 30, "QUJD",
		map[string]any{"lens": "wide"}, time.Date(2024, 12, 3, 10, 0, 1, 0, time.UTC))
}

// mockInserter is a mock storage.Inserter that records calls.
type mockInserter struct {
	mu        sync.Mutex
	inserted  []record.Record
	failOn    map[string]error
	panicOn   string
	blockOn   string
	closeErr  error
	closeCall int
}

func (m *mockInserter) Insert(ctx context.Context, rec *record.Record) error {
	if rec.FrameID == m.panicOn {
		panic("backend exploded")
	}
	if rec.FrameID == m.blockOn {
		<-ctx.Done()
		return ctx.Err()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failOn[rec.FrameID]; err != nil {
		return err
	}
	m.inserted = append(m.inserted, *rec)
	return nil
}

func (m *mockInserter) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeCall++
	return m.closeErr
}

func (m *mockInserter) Inserted() []record.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]record.Record, len(m.inserted))
	copy(out, m.inserted)
	return out
}

// --- Test Cases ---

func TestNewGateway_NilInserter(t *testing.T) {
	_, err := storage.NewGateway(nil, "mock", 0, zerolog.Nop())
	assert.Error(t, err)
}

func TestGateway_Insert_Success(t *testing.T) {
	inserter := &mockInserter{}
	gw, err := storage.NewGateway(inserter, "mock", 0, zerolog.Nop())
	require.NoError(t, err)

	rec := testRecord("f1")
	out := gw.Insert(context.Background(), rec)

	assert.True(t, out.Stored())
	assert.NoError(t, out.Err)
	assert.Equal(t, "mock", out.Backend)
	require.Len(t, inserter.Inserted(), 1)
	assert.Equal(t, rec, inserter.Inserted()[0])
}

func TestGateway_Insert_FailureIsReturnedNotRaised(t *testing.T) {
	backendErr := errors.New("connection reset")
	inserter := &mockInserter{failOn: map[string]error{"f1": backendErr}}
	gw, err := storage.NewGateway(inserter, "mock", 0, zerolog.Nop())
	require.NoError(t, err)

	out := gw.Insert(context.Background(), testRecord("f1"))
	assert.False(t, out.Stored())
	assert.ErrorIs(t, out.Err, backendErr)
	assert.Contains(t, out.Err.Error(), `"f1"`)

	// The next record is unaffected by the previous failure.
	out = gw.Insert(context.Background(), testRecord("f2"))
	assert.True(t, out.Stored())
}

func TestGateway_Insert_PanicBecomesFailure(t *testing.T) {
	inserter := &mockInserter{panicOn: "boom"}
	gw, err := storage.NewGateway(inserter, "mock", 0, zerolog.Nop())
	require.NoError(t, err)

	var out storage.Outcome
	require.NotPanics(t, func() {
		out = gw.Insert(context.Background(), testRecord("boom"))
	})
	assert.False(t, out.Stored())
	assert.ErrorIs(t, out.Err, storage.ErrInsertPanicked)
}

func TestGateway_Insert_Timeout(t *testing.T) {
	inserter := &mockInserter{blockOn: "slow"}
	gw, err := storage.NewGateway(inserter, "mock", 20*time.Millisecond, zerolog.Nop())
	require.NoError(t, err)

	out := gw.Insert(context.Background(), testRecord("slow"))
	assert.False(t, out.Stored())
	assert.ErrorIs(t, out.Err, context.DeadlineExceeded)
	assert.GreaterOrEqual(t, out.Elapsed, 20*time.Millisecond)
}

func TestGateway_Close(t *testing.T) {
	inserter := &mockInserter{}
	gw, err := storage.NewGateway(inserter, "mock", 0, zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, gw.Close())
	assert.Equal(t, 1, inserter.closeCall)
}
