package attendance

import (
	"context"
	"fmt"
	"strings"

	"smartattendance/internal/model"
)

// Resolver maps hardware badges to students. It never falls back to a
// default identity: a scan that cannot be attributed is rejected.
type Resolver struct {
	dir Directory
}

// NewResolver creates a resolver over the identity registry.
func NewResolver(dir Directory) *Resolver {
	return &Resolver{dir: dir}
}

// Resolve returns the id of the active student holding badgeID.
func (r *Resolver) Resolve(ctx context.Context, badgeID string) (string, error) {
	st, err := r.Student(ctx, badgeID)
	if err != nil {
		return "", err
	}
	return st.ID, nil
}

// Student is Resolve returning the whole registry entry.
func (r *Resolver) Student(ctx context.Context, badgeID string) (model.Student, error) {
	badgeID = strings.TrimSpace(badgeID)
	st, err := r.dir.LookupByBadge(ctx, badgeID)
	if err != nil {
		return model.Student{}, fmt.Errorf("lookup badge %s: %w", badgeID, err)
	}
	if st == nil {
		return model.Student{}, fmt.Errorf("%w: %s", ErrUnknownBadge, badgeID)
	}
	if !st.IsActive {
		return model.Student{}, fmt.Errorf("%w: badge %s belongs to %s", ErrInactiveStudent, badgeID, st.ID)
	}
	return *st, nil
}
