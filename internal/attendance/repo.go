package attendance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"smartattendance/internal/model"
)

// Repository persists the ledger and the scan log in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const recordColumns = `student_id, period_id, date, status, marked_at, source`

// UpsertRecord implements Store. The conditional DO UPDATE runs under the
// row lock Postgres takes on the conflicting key, so concurrent writers to
// one key are serialized and the newest marked_at is what remains.
func (r *Repository) UpsertRecord(ctx context.Context, rec model.AttendanceRecord) (model.AttendanceRecord, bool, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO attendance_records (`+recordColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (student_id, period_id, date) DO UPDATE SET
			status = EXCLUDED.status,
			marked_at = EXCLUDED.marked_at,
			source = EXCLUDED.source
		WHERE attendance_records.marked_at < EXCLUDED.marked_at
		   OR (attendance_records.marked_at = EXCLUDED.marked_at
		       AND (attendance_records.status, attendance_records.source)
		           IS DISTINCT FROM (EXCLUDED.status, EXCLUDED.source))
		RETURNING `+recordColumns,
		rec.StudentID, rec.PeriodID, rec.Date, rec.Status, rec.MarkedAt, rec.Source)
	stored, err := scanRecord(row)
	if err == nil {
		return stored, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return model.AttendanceRecord{}, false, err
	}
	// The stored record was newer or identical; report it unchanged.
	row = r.db.QueryRowContext(ctx, `
		SELECT `+recordColumns+` FROM attendance_records
		WHERE student_id = $1 AND period_id = $2 AND date = $3
	`, rec.StudentID, rec.PeriodID, rec.Date)
	stored, err = scanRecord(row)
	if err != nil {
		return model.AttendanceRecord{}, false, err
	}
	return stored, false, nil
}

// RecordsForPeriod implements Store.
func (r *Repository) RecordsForPeriod(ctx context.Context, periodID string, date model.Date) ([]model.AttendanceRecord, error) {
	return r.queryRecords(ctx, `period_id = $1 AND date = $2`, periodID, date)
}

// RecordsForStudent implements Store.
func (r *Repository) RecordsForStudent(ctx context.Context, studentID string, dr model.DateRange) ([]model.AttendanceRecord, error) {
	clauses, args := rangeClauses(dr, []string{"student_id = $1"}, []any{studentID})
	return r.queryRecords(ctx, strings.Join(clauses, " AND "), args...)
}

// RecordsForDate implements Store.
func (r *Repository) RecordsForDate(ctx context.Context, date model.Date) ([]model.AttendanceRecord, error) {
	return r.queryRecords(ctx, `date = $1`, date)
}

// RecordsForPeriods implements Store.
func (r *Repository) RecordsForPeriods(ctx context.Context, periodIDs []string, dr model.DateRange) ([]model.AttendanceRecord, error) {
	if len(periodIDs) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(periodIDs))
	args := make([]any, len(periodIDs))
	for i, id := range periodIDs {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	clauses, args := rangeClauses(dr, []string{"period_id IN (" + strings.Join(placeholders, ", ") + ")"}, args)
	return r.queryRecords(ctx, strings.Join(clauses, " AND "), args...)
}

func rangeClauses(dr model.DateRange, clauses []string, args []any) ([]string, []any) {
	if !dr.From.IsZero() {
		args = append(args, dr.From)
		clauses = append(clauses, fmt.Sprintf("date >= $%d", len(args)))
	}
	if !dr.To.IsZero() {
		args = append(args, dr.To)
		clauses = append(clauses, fmt.Sprintf("date <= $%d", len(args)))
	}
	return clauses, args
}

func (r *Repository) queryRecords(ctx context.Context, where string, args ...any) ([]model.AttendanceRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+recordColumns+` FROM attendance_records
		WHERE `+where+`
		ORDER BY date, period_id, student_id
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []model.AttendanceRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (model.AttendanceRecord, error) {
	var rec model.AttendanceRecord
	var status, source string
	if err := s.Scan(&rec.StudentID, &rec.PeriodID, &rec.Date, &status, &rec.MarkedAt, &source); err != nil {
		return model.AttendanceRecord{}, err
	}
	rec.Status = model.Status(status)
	rec.Source = model.Source(source)
	rec.MarkedAt = rec.MarkedAt.UTC()
	return rec, nil
}

// AppendHardwareEvent implements Store.
func (r *Repository) AppendHardwareEvent(ctx context.Context, ev model.HardwareEvent) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO hardware_events (badge_id, scanned_at, student_id, date)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (badge_id, scanned_at) DO NOTHING
	`, ev.BadgeID, ev.Timestamp, ev.StudentID, ev.Date)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// HardwareEventsOn implements Store.
func (r *Repository) HardwareEventsOn(ctx context.Context, date model.Date) ([]model.HardwareEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT badge_id, student_id, scanned_at, date
		FROM hardware_events
		WHERE date = $1
		ORDER BY scanned_at
	`, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []model.HardwareEvent
	for rows.Next() {
		var ev model.HardwareEvent
		if err := rows.Scan(&ev.BadgeID, &ev.StudentID, &ev.Timestamp, &ev.Date); err != nil {
			return nil, err
		}
		ev.Timestamp = ev.Timestamp.UTC()
		res = append(res, ev)
	}
	return res, rows.Err()
}
