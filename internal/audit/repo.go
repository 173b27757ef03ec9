package audit

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"smartattendance/internal/model"
)

// Repository is the append-only attendance_audit table.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Append stores rec. A redelivered message for the same write is a no-op,
// reported as false.
func (r *Repository) Append(ctx context.Context, rec model.AttendanceRecord) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO attendance_audit (id, student_id, period_id, date, status, marked_at, source, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (student_id, period_id, date, marked_at, status, source) DO NOTHING
	`, uuid.NewString(), rec.StudentID, rec.PeriodID, rec.Date, rec.Status, rec.MarkedAt, rec.Source, time.Now().UTC())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ListByStudent returns a student's audit trail, oldest write first.
func (r *Repository) ListByStudent(ctx context.Context, studentID string) ([]model.AuditEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, student_id, period_id, date, status, marked_at, source, recorded_at
		FROM attendance_audit
		WHERE student_id = $1
		ORDER BY date, marked_at, recorded_at
	`, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []model.AuditEntry
	for rows.Next() {
		var e model.AuditEntry
		rec := &e.Record
		if err := rows.Scan(&e.ID, &rec.StudentID, &rec.PeriodID, &rec.Date, &rec.Status, &rec.MarkedAt, &rec.Source, &e.RecordedAt); err != nil {
			return nil, err
		}
		rec.MarkedAt = rec.MarkedAt.UTC()
		res = append(res, e)
	}
	return res, rows.Err()
}
