package attendance

import (
	"context"
	"fmt"
	"log/slog"

	"smartattendance/internal/metrics"
	"smartattendance/internal/model"
)

// Ledger is the authoritative current-state store of one status per
// (student, period, date). Later MarkedAt wins; identical writes are no-ops.
type Ledger struct {
	store   Store
	dir     Directory
	tt      Timetable
	notify  Notifier
	log     *slog.Logger
	metrics *metrics.Metrics
}

// NewLedger wires a ledger. notify may be nil.
func NewLedger(store Store, dir Directory, tt Timetable, notify Notifier, log *slog.Logger, m *metrics.Metrics) *Ledger {
	if log == nil {
		log = slog.Default()
	}
	return &Ledger{store: store, dir: dir, tt: tt, notify: notify, log: log, metrics: m}
}

// Upsert writes rec after checking that its student and period exist. The
// returned record is what the ledger holds for the key afterwards, which is
// an existing newer record when rec arrived late.
func (l *Ledger) Upsert(ctx context.Context, rec model.AttendanceRecord) (model.AttendanceRecord, error) {
	if err := validate(rec); err != nil {
		return model.AttendanceRecord{}, err
	}
	st, err := l.dir.StudentByID(ctx, rec.StudentID)
	if err != nil {
		return model.AttendanceRecord{}, fmt.Errorf("lookup student %s: %w", rec.StudentID, err)
	}
	if st == nil {
		return model.AttendanceRecord{}, fmt.Errorf("%w: %s", ErrUnknownStudent, rec.StudentID)
	}
	p, err := l.tt.PeriodByID(ctx, rec.PeriodID)
	if err != nil {
		return model.AttendanceRecord{}, fmt.Errorf("lookup period %s: %w", rec.PeriodID, err)
	}
	if p == nil {
		return model.AttendanceRecord{}, fmt.Errorf("%w: %s", ErrUnknownPeriod, rec.PeriodID)
	}

	rec.MarkedAt = rec.MarkedAt.UTC()
	stored, applied, err := l.store.UpsertRecord(ctx, rec)
	if err != nil {
		return model.AttendanceRecord{}, fmt.Errorf("upsert record: %w", err)
	}
	l.metrics.LedgerWrite(string(rec.Source), applied)
	if applied && l.notify != nil {
		if err := l.notify.Notify(ctx, stored); err != nil {
			l.log.Warn("ledger notify failed", "student_id", rec.StudentID, "period_id", rec.PeriodID, "err", err)
		}
	}
	return stored, nil
}

// ForPeriod lists the records of one period meeting.
func (l *Ledger) ForPeriod(ctx context.Context, periodID string, date model.Date) ([]model.AttendanceRecord, error) {
	return l.store.RecordsForPeriod(ctx, periodID, date)
}

// ForStudent lists a student's records within r.
func (l *Ledger) ForStudent(ctx context.Context, studentID string, r model.DateRange) ([]model.AttendanceRecord, error) {
	return l.store.RecordsForStudent(ctx, studentID, r)
}

// ForDate lists every record on date.
func (l *Ledger) ForDate(ctx context.Context, date model.Date) ([]model.AttendanceRecord, error) {
	return l.store.RecordsForDate(ctx, date)
}

func validate(rec model.AttendanceRecord) error {
	switch {
	case rec.StudentID == "":
		return fmt.Errorf("%w: student id required", ErrInvalidRecord)
	case rec.PeriodID == "":
		return fmt.Errorf("%w: period id required", ErrInvalidRecord)
	case rec.Date.IsZero():
		return fmt.Errorf("%w: date required", ErrInvalidRecord)
	case rec.MarkedAt.IsZero():
		return fmt.Errorf("%w: marked_at required", ErrInvalidRecord)
	}
	if rec.Status != model.StatusPresent && rec.Status != model.StatusAbsent {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, rec.Status)
	}
	if rec.Source != model.SourceManual && rec.Source != model.SourceHardware {
		return fmt.Errorf("%w: unknown source %q", ErrInvalidRecord, rec.Source)
	}
	return nil
}

// supersedes reports whether incoming should replace current. Newer MarkedAt
// wins. A replay of the stored write changes nothing; a different write with
// the same MarkedAt replaces it.
func supersedes(incoming, current model.AttendanceRecord) bool {
	if incoming.MarkedAt.Equal(current.MarkedAt) {
		return incoming.Status != current.Status || incoming.Source != current.Source
	}
	return incoming.MarkedAt.After(current.MarkedAt)
}
