package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"smartattendance/internal/model"
	"smartattendance/internal/store"
)

var (
	ErrNotFound  = errors.New("user not found")
	ErrDuplicate = errors.New("email or badge already in use")
	ErrInUse     = errors.New("user is still referenced; deactivate instead")
	ErrRole      = errors.New("user does not hold the expected role")
)

// Filter narrows List. Empty fields match everything.
type Filter struct {
	Role       string
	Department string
	ClassName  string
	Search     string
}

// Repository persists users in Postgres and serves as the identity registry.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const userColumns = `id, name, email, password_hash, role, badge_id, reg_no, department, class_name, is_active, created_at`

func scanUser(s interface{ Scan(...any) error }) (model.User, error) {
	var u model.User
	var badge sql.NullString
	if err := s.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &badge, &u.RegNo, &u.Department, &u.ClassName, &u.IsActive, &u.CreatedAt); err != nil {
		return model.User{}, err
	}
	if badge.Valid {
		u.BadgeID = &badge.String
	}
	return u, nil
}

// Create inserts a user, assigning its id and creation time.
func (r *Repository) Create(ctx context.Context, u *model.User) error {
	u.ID = uuid.NewString()
	u.CreatedAt = time.Now().UTC()
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, u.ID, u.Name, u.Email, u.PasswordHash, u.Role, nullable(u.BadgeID), u.RegNo, u.Department, u.ClassName, u.IsActive, u.CreatedAt)
	if store.IsUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

// GetByID returns a user or ErrNotFound.
func (r *Repository) GetByID(ctx context.Context, id string) (model.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return model.User{}, ErrNotFound
	}
	return r.getOne(ctx, `id = $1`, id)
}

// GetByEmail returns a user or ErrNotFound.
func (r *Repository) GetByEmail(ctx context.Context, email string) (model.User, error) {
	return r.getOne(ctx, `email = $1`, strings.ToLower(strings.TrimSpace(email)))
}

func (r *Repository) getOne(ctx context.Context, where string, args ...any) (model.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE `+where, args...)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, ErrNotFound
	}
	return u, err
}

// List returns users matching f, ordered by name.
func (r *Repository) List(ctx context.Context, f Filter) ([]model.User, error) {
	var (
		clauses []string
		args    []any
	)
	add := func(clause string, v any) {
		args = append(args, v)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if f.Role != "" {
		add("role = $%d", f.Role)
	}
	if f.Department != "" {
		add("department = $%d", f.Department)
	}
	if f.ClassName != "" {
		add("class_name = $%d", f.ClassName)
	}
	if f.Search != "" {
		args = append(args, "%"+f.Search+"%")
		n := len(args)
		clauses = append(clauses, fmt.Sprintf("(name ILIKE $%d OR email ILIKE $%d OR reg_no ILIKE $%d)", n, n, n))
	}
	query := `SELECT ` + userColumns + ` FROM users`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY name"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, u)
	}
	return res, rows.Err()
}

// MapBadge assigns a hardware badge to a user; an empty badge clears it.
func (r *Repository) MapBadge(ctx context.Context, id, badgeID string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}
	var badge *string
	if b := strings.TrimSpace(badgeID); b != "" {
		badge = &b
	}
	res, err := r.db.ExecContext(ctx, `UPDATE users SET badge_id = $2 WHERE id = $1`, id, nullable(badge))
	if store.IsUniqueViolation(err) {
		return ErrDuplicate
	}
	return affectedOne(res, err)
}

// ToggleActive flips is_active and returns the new value.
func (r *Repository) ToggleActive(ctx context.Context, id string) (bool, error) {
	if _, err := uuid.Parse(id); err != nil {
		return false, ErrNotFound
	}
	var active bool
	err := r.db.QueryRowContext(ctx, `
		UPDATE users SET is_active = NOT is_active WHERE id = $1 RETURNING is_active
	`, id).Scan(&active)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrNotFound
	}
	return active, err
}

// Update rewrites the profile fields of u. The password, active flag and
// creation time are left alone.
func (r *Repository) Update(ctx context.Context, u *model.User) error {
	if _, err := uuid.Parse(u.ID); err != nil {
		return ErrNotFound
	}
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	res, err := r.db.ExecContext(ctx, `
		UPDATE users
		SET name = $2, email = $3, role = $4, badge_id = $5, reg_no = $6, department = $7, class_name = $8
		WHERE id = $1
	`, u.ID, u.Name, u.Email, u.Role, nullable(u.BadgeID), u.RegNo, u.Department, u.ClassName)
	if store.IsUniqueViolation(err) {
		return ErrDuplicate
	}
	return affectedOne(res, err)
}

// Delete removes a user that no period or request refers to.
func (r *Repository) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if store.IsForeignKeyViolation(err) {
		return ErrInUse
	}
	return affectedOne(res, err)
}

// ChangeRole moves a user from one role to another. It fails with ErrRole
// when the user exists but does not currently hold from.
func (r *Repository) ChangeRole(ctx context.Context, id, from, to string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}
	var (
		current sql.NullString
		changed bool
	)
	err := r.db.QueryRowContext(ctx, `
		WITH target AS (SELECT role FROM users WHERE id = $1),
		     changed AS (UPDATE users SET role = $3 WHERE id = $1 AND role = $2 RETURNING id)
		SELECT (SELECT role FROM target), EXISTS (SELECT 1 FROM changed)
	`, id, from, to).Scan(&current, &changed)
	switch {
	case err != nil:
		return err
	case !current.Valid:
		return ErrNotFound
	case !changed:
		return ErrRole
	}
	return nil
}

// SetPassword replaces the stored hash.
func (r *Repository) SetPassword(ctx context.Context, id, hash string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}
	res, err := r.db.ExecContext(ctx, `UPDATE users SET password_hash = $2 WHERE id = $1`, id, hash)
	return affectedOne(res, err)
}

// CountUsers counts users with role, or all users when role is empty.
func (r *Repository) CountUsers(ctx context.Context, role string) (int, error) {
	var n int
	var err error
	if role == "" {
		err = r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n)
	} else {
		err = r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE role = $1`, role).Scan(&n)
	}
	return n, err
}

// LookupByBadge returns the student holding badgeID, or nil.
func (r *Repository) LookupByBadge(ctx context.Context, badgeID string) (*model.Student, error) {
	u, err := r.getOne(ctx, `badge_id = $1 AND role = 'student'`, badgeID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return studentOf(u), nil
}

// StudentByID returns the student with id, or nil.
func (r *Repository) StudentByID(ctx context.Context, id string) (*model.Student, error) {
	u, err := r.GetByID(ctx, id)
	if errors.Is(err, ErrNotFound) || (err == nil && u.Role != model.RoleStudent) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return studentOf(u), nil
}

func studentOf(u model.User) *model.Student {
	st := &model.Student{ID: u.ID, Name: u.Name, RegNo: u.RegNo, ClassName: u.ClassName, IsActive: u.IsActive}
	if u.BadgeID != nil {
		st.BadgeID = *u.BadgeID
	}
	return st
}

func nullable(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func affectedOne(res sql.Result, err error) error {
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
