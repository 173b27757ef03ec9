package timetable

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"smartattendance/internal/model"
	"smartattendance/internal/store"
)

var (
	ErrNotFound       = errors.New("period not found")
	ErrInvalidPeriod  = errors.New("invalid period")
	ErrUnknownFaculty = errors.New("unknown faculty")
)

// Repository stores the weekly timetable.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const periodColumns = `id, day_of_week, start_time, end_time, subject, faculty_id, class_name`

// Validate checks the fields a period must carry before it is stored.
func Validate(p model.Period) error {
	switch {
	case p.DayOfWeek < time.Sunday || p.DayOfWeek > time.Saturday:
		return ErrInvalidPeriod
	case p.EndTime <= p.StartTime:
		return ErrInvalidPeriod
	case strings.TrimSpace(p.Subject) == "" || p.FacultyID == "":
		return ErrInvalidPeriod
	}
	return nil
}

// Create validates and inserts p, assigning its id.
func (r *Repository) Create(ctx context.Context, p *model.Period) error {
	if err := Validate(*p); err != nil {
		return err
	}
	if _, err := uuid.Parse(p.FacultyID); err != nil {
		return ErrUnknownFaculty
	}
	p.ID = uuid.NewString()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO periods (`+periodColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, p.ID, int(p.DayOfWeek), p.StartTime, p.EndTime, p.Subject, p.FacultyID, p.ClassName)
	if store.IsForeignKeyViolation(err) {
		return ErrUnknownFaculty
	}
	return err
}

// List returns all periods, or those of one day when day is non-nil.
func (r *Repository) List(ctx context.Context, day *time.Weekday) ([]model.Period, error) {
	if day != nil {
		return r.PeriodsForDay(ctx, *day)
	}
	return r.query(ctx, `TRUE`)
}

// Delete removes a period. Ledger records that point at it are kept.
func (r *Repository) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM periods WHERE id = $1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// PeriodsForDay implements attendance.Timetable.
func (r *Repository) PeriodsForDay(ctx context.Context, day time.Weekday) ([]model.Period, error) {
	return r.query(ctx, `day_of_week = $1`, int(day))
}

// PeriodsForFaculty implements attendance.Timetable.
func (r *Repository) PeriodsForFaculty(ctx context.Context, facultyID string) ([]model.Period, error) {
	if _, err := uuid.Parse(facultyID); err != nil {
		return nil, nil
	}
	return r.query(ctx, `faculty_id = $1`, facultyID)
}

// PeriodByID implements attendance.Timetable.
func (r *Repository) PeriodByID(ctx context.Context, id string) (*model.Period, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}
	ps, err := r.query(ctx, `id = $1`, id)
	if err != nil || len(ps) == 0 {
		return nil, err
	}
	return &ps[0], nil
}

func (r *Repository) query(ctx context.Context, where string, args ...any) ([]model.Period, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+periodColumns+` FROM periods
		WHERE `+where+`
		ORDER BY day_of_week, start_time, id
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []model.Period
	for rows.Next() {
		var (
			p   model.Period
			day int
		)
		if err := rows.Scan(&p.ID, &day, &p.StartTime, &p.EndTime, &p.Subject, &p.FacultyID, &p.ClassName); err != nil {
			return nil, err
		}
		p.DayOfWeek = time.Weekday(day)
		res = append(res, p)
	}
	return res, rows.Err()
}
