package attendance

import (
	"context"
	"time"

	"smartattendance/internal/model"
)

// Store persists ledger records and the raw hardware scan log.
type Store interface {
	// UpsertRecord writes rec unless the stored record for the same key has a
	// newer MarkedAt. It returns the record now held for the key and whether
	// rec was applied.
	UpsertRecord(ctx context.Context, rec model.AttendanceRecord) (model.AttendanceRecord, bool, error)
	RecordsForPeriod(ctx context.Context, periodID string, date model.Date) ([]model.AttendanceRecord, error)
	RecordsForStudent(ctx context.Context, studentID string, r model.DateRange) ([]model.AttendanceRecord, error)
	RecordsForDate(ctx context.Context, date model.Date) ([]model.AttendanceRecord, error)
	RecordsForPeriods(ctx context.Context, periodIDs []string, r model.DateRange) ([]model.AttendanceRecord, error)
	// AppendHardwareEvent stores a scan; duplicates of (badge, timestamp) are
	// ignored and reported as not inserted.
	AppendHardwareEvent(ctx context.Context, ev model.HardwareEvent) (bool, error)
	HardwareEventsOn(ctx context.Context, date model.Date) ([]model.HardwareEvent, error)
}

// Directory is the identity registry. Lookups return nil, nil when nothing matches.
type Directory interface {
	LookupByBadge(ctx context.Context, badgeID string) (*model.Student, error)
	StudentByID(ctx context.Context, id string) (*model.Student, error)
}

// Timetable is the scheduling registry. PeriodByID returns nil, nil when missing.
type Timetable interface {
	PeriodsForDay(ctx context.Context, day time.Weekday) ([]model.Period, error)
	PeriodByID(ctx context.Context, id string) (*model.Period, error)
	PeriodsForFaculty(ctx context.Context, facultyID string) ([]model.Period, error)
}

// Notifier is told about every ledger write that took effect.
type Notifier interface {
	Notify(ctx context.Context, rec model.AttendanceRecord) error
}

// UserCounter counts accounts; an empty role counts everyone.
type UserCounter interface {
	CountUsers(ctx context.Context, role string) (int, error)
}

// PendingCounter counts requests still awaiting a decision.
type PendingCounter interface {
	CountPending(ctx context.Context) (int, error)
}
