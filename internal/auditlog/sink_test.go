package auditlog

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pricewise/pricewise/internal/core/store"
)

type recordingWriter struct {
	mu      sync.Mutex
	entries []store.SystemLog
	gate    chan struct{}
	err     error
}

func (w *recordingWriter) InsertSystemLog(ctx context.Context, entry store.SystemLog) error {
	if w.gate != nil {
		select {
		case <-w.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if w.err != nil {
		return w.err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.entries = append(w.entries, entry)
	return nil
}

func (w *recordingWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.entries)
}

func TestRecordPersisted(t *testing.T) {
	assert.True(t, Record{Level: LevelError, Category: CategorySystem}.Persisted())
	assert.True(t, Record{Level: LevelInfo, Category: CategoryPayment}.Persisted())
	assert.True(t, Record{Level: "ERROR", Category: CategoryWebhook}.Persisted())
	assert.False(t, Record{Level: LevelInfo, Category: CategoryWebhook}.Persisted())
	assert.False(t, Record{Level: LevelWarn, Category: CategorySystem}.Persisted())
}

func TestSinkWritesPersistedRecords(t *testing.T) {
	writer := &recordingWriter{}
	sink := NewSink(writer, 8)
	require.NoError(t, sink.Start(context.Background()))

	require.True(t, sink.Log(Record{Level: LevelInfo, Category: CategoryPayment, Message: "credits applied", UserID: "u1"}))
	require.True(t, sink.Log(Record{Level: LevelInfo, Category: CategoryWebhook, Message: "duplicate"}))
	require.True(t, sink.Log(Record{Level: LevelError, Category: CategoryWebhook, Message: "bad signature"}))

	require.NoError(t, sink.Close(context.Background()))
	assert.Equal(t, 2, writer.count())
	assert.Equal(t, int64(2), sink.Written())
	assert.Equal(t, int64(0), sink.Dropped())
	assert.Equal(t, "payment", writer.entries[0].Category)
	assert.False(t, writer.entries[0].CreatedAt.IsZero())
}

func TestSinkDropsWhenFull(t *testing.T) {
	writer := &recordingWriter{gate: make(chan struct{})}
	sink := NewSink(writer, 1)
	require.NoError(t, sink.Start(context.Background()))

	record := Record{Level: LevelError, Category: CategorySystem, Message: "boom"}

	// The worker takes the first record and blocks on the gate; the queue
	// then holds one more.
	require.True(t, sink.Log(record))
	require.Eventually(t, func() bool {
		return sink.Log(record)
	}, time.Second, time.Millisecond)

	done := make(chan bool, 1)
	go func() { done <- sink.Log(record) }()
	select {
	case accepted := <-done:
		assert.False(t, accepted)
	case <-time.After(time.Second):
		t.Fatal("Log blocked on a full queue")
	}
	assert.GreaterOrEqual(t, sink.Dropped(), int64(1))

	close(writer.gate)
	require.NoError(t, sink.Close(context.Background()))
	assert.Equal(t, int64(2), sink.Written())
}

func TestSinkCountsWriterFailures(t *testing.T) {
	writer := &recordingWriter{err: errors.New("db down")}
	sink := NewSink(writer, 4)
	require.NoError(t, sink.Start(context.Background()))

	sink.Log(Record{Level: LevelError, Category: CategorySystem, Message: "x"})
	require.NoError(t, sink.Close(context.Background()))

	assert.Equal(t, int64(1), sink.Failed())
	assert.Equal(t, int64(0), sink.Written())
}

func TestSinkLogAfterClose(t *testing.T) {
	sink := NewSink(&recordingWriter{}, 4)
	require.NoError(t, sink.Start(context.Background()))
	require.NoError(t, sink.Close(context.Background()))
	require.NoError(t, sink.Close(context.Background()))

	assert.False(t, sink.Log(Record{Level: LevelError, Category: CategorySystem}))
	assert.Equal(t, int64(1), sink.Dropped())
	assert.ErrorIs(t, sink.Start(context.Background()), ErrClosed)
}

func TestSinkCloseWithoutStartDrains(t *testing.T) {
	writer := &recordingWriter{}
	sink := NewSink(writer, 4)

	require.True(t, sink.Log(Record{Level: LevelInfo, Category: CategoryPayment}))
	require.NoError(t, sink.Close(context.Background()))
	assert.Equal(t, 1, writer.count())
}

func TestSinkCloseHonorsContext(t *testing.T) {
	writer := &recordingWriter{gate: make(chan struct{})}
	sink := NewSink(writer, 4)
	require.NoError(t, sink.Start(context.Background()))
	sink.Log(Record{Level: LevelError, Category: CategorySystem})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, sink.Close(ctx), context.DeadlineExceeded)

	close(writer.gate)
}
