package users

import (
	"context"
	"errors"
	"log/slog"

	"smartattendance/internal/auth"
	"smartattendance/internal/model"
)

// Registry is the subset of Repository needed to seed an admin.
type Registry interface {
	CountUsers(ctx context.Context, role string) (int, error)
	Create(ctx context.Context, u *model.User) error
}

// EnsureAdmin creates an admin account when no admin exists yet. It is a
// no-op when email or password is empty.
func EnsureAdmin(ctx context.Context, reg Registry, email, password string, log *slog.Logger) error {
	if email == "" || password == "" {
		return nil
	}
	n, err := reg.CountUsers(ctx, model.RoleAdmin)
	if err != nil || n > 0 {
		return err
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	u := &model.User{Name: "Administrator", Email: email, PasswordHash: hash, Role: model.RoleAdmin, IsActive: true}
	err = reg.Create(ctx, u)
	switch {
	case errors.Is(err, ErrDuplicate):
		log.Warn("bootstrap admin skipped, email belongs to a non-admin user", "email", email)
		return nil
	case err != nil:
		return err
	}
	log.Info("bootstrap admin created", "email", u.Email)
	return nil
}
