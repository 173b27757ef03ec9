package audit

import (
	"context"
	"encoding/json"
	"log/slog"

	"smartattendance/internal/metrics"
	"smartattendance/internal/model"
	"smartattendance/internal/queue"
)

// Appender is the write side of the audit log.
type Appender interface {
	Append(ctx context.Context, rec model.AttendanceRecord) (bool, error)
}

// Consumer drains attendance.upserted messages into an Appender.
type Consumer struct {
	q       queue.Queue
	store   Appender
	log     *slog.Logger
	metrics *metrics.Metrics
}

func NewConsumer(q queue.Queue, store Appender, log *slog.Logger, m *metrics.Metrics) *Consumer {
	if log == nil {
		log = slog.Default()
	}
	return &Consumer{q: q, store: store, log: log, metrics: m}
}

// Run blocks until ctx is done or the queue closes.
func (c *Consumer) Run(ctx context.Context) error {
	messages, err := c.q.Consume(ctx)
	if err != nil {
		return err
	}
	c.log.Info("audit consumer started")
	for msg := range messages {
		c.handle(ctx, msg)
	}
	c.log.Info("audit consumer stopped")
	return nil
}

func (c *Consumer) handle(ctx context.Context, msg queue.Message) {
	if msg.Type != queue.TypeAttendanceUpserted {
		c.log.Debug("skipping message", "type", msg.Type)
		return
	}
	var rec model.AttendanceRecord
	if err := json.Unmarshal(msg.Body, &rec); err != nil {
		c.log.Warn("bad audit payload", "err", err)
		return
	}
	inserted, err := c.store.Append(ctx, rec)
	if err != nil {
		c.log.Error("audit append failed", "student_id", rec.StudentID, "period_id", rec.PeriodID, "err", err)
		return
	}
	if inserted {
		c.metrics.AuditEntry()
	}
	c.log.Debug("audit entry", "student_id", rec.StudentID, "period_id", rec.PeriodID, "date", rec.Date.String(), "inserted", inserted)
}
