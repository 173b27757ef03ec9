package audit

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartattendance/internal/model"
	"smartattendance/internal/queue"
)

type memAppender struct {
	mu   sync.Mutex
	seen map[model.AttendanceRecord]bool
	got  chan model.AttendanceRecord
}

func newMemAppender() *memAppender {
	return &memAppender{seen: map[model.AttendanceRecord]bool{}, got: make(chan model.AttendanceRecord, 8)}
}

func (m *memAppender) Append(_ context.Context, rec model.AttendanceRecord) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seen[rec] {
		m.got <- rec
		return false, nil
	}
	m.seen[rec] = true
	m.got <- rec
	return true, nil
}

func TestPublishedRecordReachesAppender(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := queue.NewInMemory(8)
	store := newMemAppender()
	c := NewConsumer(q, store, slog.New(slog.NewTextHandler(io.Discard, nil)), nil)
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	rec := model.AttendanceRecord{
		StudentID: "stu-1",
		PeriodID:  "p-1",
		Date:      model.NewDate(2024, time.March, 4),
		Status:    model.StatusPresent,
		MarkedAt:  time.Date(2024, 3, 4, 9, 5, 0, 0, time.UTC),
		Source:    model.SourceHardware,
	}
	require.NoError(t, q.Publish(ctx, queue.Message{Type: "other"}))
	require.NoError(t, NewPublisher(q).Notify(ctx, rec))

	select {
	case got := <-store.got:
		assert.Equal(t, rec.StudentID, got.StudentID)
		assert.True(t, rec.Date.Equal(got.Date))
		assert.True(t, rec.MarkedAt.Equal(got.MarkedAt))
		assert.Equal(t, rec.Source, got.Source)
	case <-time.After(2 * time.Second):
		t.Fatal("record never appended")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop")
	}
}
