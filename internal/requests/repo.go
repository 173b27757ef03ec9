// Package requests stores student leave permissions and user complaints.
package requests

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

const StatusPending = "pending"

var (
	ErrNotFound      = errors.New("request not found")
	ErrInvalid       = errors.New("invalid request")
	ErrInvalidStatus = errors.New("invalid status")
	ErrUnknownUser   = errors.New("unknown user")
)

var (
	permissionStatuses = map[string]bool{StatusPending: true, "approved": true, "rejected": true}
	complaintStatuses  = map[string]bool{StatusPending: true, "resolved": true, "dismissed": true}
)

// Permissions persists leave requests.
type Permissions struct {
	db *sql.DB
}

func NewPermissions(db *sql.DB) *Permissions {
	return &Permissions{db: db}
}

const permissionColumns = `id, student_id, COALESCE(faculty_id::text, ''), reason, start_date, end_date, status, created_at`

// Create validates and inserts p as pending.
func (r *Permissions) Create(ctx context.Context, p *model.Permission) error {
	p.Reason = strings.TrimSpace(p.Reason)
	if p.Reason == "" || p.StartDate.IsZero() || p.EndDate.IsZero() || p.EndDate.Before(p.StartDate) {
		return ErrInvalid
	}
	var faculty any
	if p.FacultyID != "" {
		if _, err := uuid.Parse(p.FacultyID); err != nil {
			return ErrUnknownUser
		}
		faculty = p.FacultyID
	}
	p.ID = uuid.NewString()
	p.Status = StatusPending
	p.CreatedAt = time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO permissions (id, student_id, faculty_id, reason, start_date, end_date, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, p.ID, p.StudentID, faculty, p.Reason, p.StartDate, p.EndDate, p.Status, p.CreatedAt)
	if store.IsForeignKeyViolation(err) {
		return ErrUnknownUser
	}
	return err
}

// ListByStudent returns a student's requests, newest first.
func (r *Permissions) ListByStudent(ctx context.Context, studentID string) ([]model.Permission, error) {
	return r.list(ctx, `WHERE student_id = $1`, studentID)
}

// ListAll returns every request, newest first.
func (r *Permissions) ListAll(ctx context.Context) ([]model.Permission, error) {
	return r.list(ctx, ``)
}

func (r *Permissions) list(ctx context.Context, where string, args ...any) ([]model.Permission, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+permissionColumns+` FROM permissions `+where+` ORDER BY created_at DESC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []model.Permission
	for rows.Next() {
		var p model.Permission
		if err := rows.Scan(&p.ID, &p.StudentID, &p.FacultyID, &p.Reason, &p.StartDate, &p.EndDate, &p.Status, &p.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

// UpdateStatus moves a request to approved, rejected or back to pending.
func (r *Permissions) UpdateStatus(ctx context.Context, id, status string) error {
	if !permissionStatuses[status] {
		return ErrInvalidStatus
	}
	return updateStatus(ctx, r.db, "permissions", id, status)
}

// CountPending implements attendance.PendingCounter.
func (r *Permissions) CountPending(ctx context.Context) (int, error) {
	return countPending(ctx, r.db, "permissions")
}

// Complaints persists user feedback.
type Complaints struct {
	db *sql.DB
}

func NewComplaints(db *sql.DB) *Complaints {
	return &Complaints{db: db}
}

// Create inserts c as pending.
func (r *Complaints) Create(ctx context.Context, c *model.Complaint) error {
	c.Message = strings.TrimSpace(c.Message)
	if c.Message == "" {
		return ErrInvalid
	}
	c.ID = uuid.NewString()
	c.Status = StatusPending
	c.CreatedAt = time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO complaints (id, user_id, message, status, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, c.ID, c.UserID, c.Message, c.Status, c.CreatedAt)
	if store.IsForeignKeyViolation(err) {
		return ErrUnknownUser
	}
	return err
}

func (r *Complaints) ListByUser(ctx context.Context, userID string) ([]model.Complaint, error) {
	return r.list(ctx, `WHERE user_id = $1`, userID)
}

func (r *Complaints) ListAll(ctx context.Context) ([]model.Complaint, error) {
	return r.list(ctx, ``)
}

func (r *Complaints) list(ctx context.Context, where string, args ...any) ([]model.Complaint, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, user_id, message, status, created_at FROM complaints `+where+` ORDER BY created_at DESC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []model.Complaint
	for rows.Next() {
		var c model.Complaint
		if err := rows.Scan(&c.ID, &c.UserID, &c.Message, &c.Status, &c.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func (r *Complaints) UpdateStatus(ctx context.Context, id, status string) error {
	if !complaintStatuses[status] {
		return ErrInvalidStatus
	}
	return updateStatus(ctx, r.db, "complaints", id, status)
}

// CountPending implements attendance.PendingCounter.
func (r *Complaints) CountPending(ctx context.Context) (int, error) {
	return countPending(ctx, r.db, "complaints")
}

func updateStatus(ctx context.Context, db *sql.DB, table, id, status string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}
	res, err := db.ExecContext(ctx, `UPDATE `+table+` SET status = $2 WHERE id = $1`, id, status)
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

func countPending(ctx context.Context, db *sql.DB, table string) (int, error) {
	var n int
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table+` WHERE status = $1`, StatusPending).Scan(&n)
	return n, err
}
