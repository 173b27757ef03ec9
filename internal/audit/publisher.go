// Package audit records applied ledger writes. The API publishes each write
// onto the queue and cmd/worker appends it to attendance_audit.
package audit

import (
	"context"
	"encoding/json"

	"smartattendance/internal/model"
	"smartattendance/internal/queue"
)

// Publisher implements attendance.Notifier on top of a queue.
type Publisher struct {
	q queue.Queue
}

func NewPublisher(q queue.Queue) *Publisher {
	return &Publisher{q: q}
}

// Notify enqueues rec as an attendance.upserted message.
func (p *Publisher) Notify(ctx context.Context, rec model.AttendanceRecord) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return p.q.Publish(ctx, queue.Message{Type: queue.TypeAttendanceUpserted, Body: body})
}
