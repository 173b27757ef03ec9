package attendance

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"smartattendance/internal/auth"
	"smartattendance/internal/model"
)

// 2024-03-04 is a Monday.
var monday = time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

func at(hh, mm int) time.Time {
	return monday.Add(time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var (
	admin    = auth.Identity{UserID: "admin-1", Role: model.RoleAdmin}
	incharge = auth.Identity{UserID: "inc-1", Role: model.RoleIncharge}
	faculty  = auth.Identity{UserID: "fac-1", Role: model.RoleFaculty}
	student  = auth.Identity{UserID: "stu-1", Role: model.RoleStudent}
)

type fakeDirectory struct {
	students map[string]model.Student
}

func newFakeDirectory(students ...model.Student) *fakeDirectory {
	d := &fakeDirectory{students: make(map[string]model.Student)}
	for _, s := range students {
		d.students[s.ID] = s
	}
	return d
}

func (d *fakeDirectory) LookupByBadge(ctx context.Context, badgeID string) (*model.Student, error) {
	for _, s := range d.students {
		if s.BadgeID != "" && s.BadgeID == badgeID {
			st := s
			return &st, nil
		}
	}
	return nil, nil
}

func (d *fakeDirectory) StudentByID(ctx context.Context, id string) (*model.Student, error) {
	s, ok := d.students[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

type fakeTimetable struct {
	periods []model.Period
	// err fails PeriodsForDay when set.
	err error
}

func (t *fakeTimetable) PeriodsForDay(ctx context.Context, day time.Weekday) ([]model.Period, error) {
	if t.err != nil {
		return nil, t.err
	}
	var out []model.Period
	for _, p := range t.periods {
		if p.DayOfWeek == day {
			out = append(out, p)
		}
	}
	return out, nil
}

func (t *fakeTimetable) PeriodByID(ctx context.Context, id string) (*model.Period, error) {
	for _, p := range t.periods {
		if p.ID == id {
			pp := p
			return &pp, nil
		}
	}
	return nil, nil
}

func (t *fakeTimetable) PeriodsForFaculty(ctx context.Context, facultyID string) ([]model.Period, error) {
	var out []model.Period
	for _, p := range t.periods {
		if p.FacultyID == facultyID {
			out = append(out, p)
		}
	}
	return out, nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	seen []model.AttendanceRecord
}

func (n *recordingNotifier) Notify(ctx context.Context, rec model.AttendanceRecord) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.seen = append(n.seen, rec)
	return nil
}

// flakyStore fails ledger writes while down is set.
type flakyStore struct {
	*MemoryStore
	down bool
}

func (f *flakyStore) UpsertRecord(ctx context.Context, rec model.AttendanceRecord) (model.AttendanceRecord, bool, error) {
	if f.down {
		return model.AttendanceRecord{}, false, errors.New("ledger unavailable")
	}
	return f.MemoryStore.UpsertRecord(ctx, rec)
}

type fixedCounter int

func (c fixedCounter) CountPending(ctx context.Context) (int, error) { return int(c), nil }

type roleCounter map[string]int

func (c roleCounter) CountUsers(ctx context.Context, role string) (int, error) {
	if role == "" {
		total := 0
		for _, n := range c {
			total += n
		}
		return total, nil
	}
	return c[role], nil
}

func period(id string, day time.Weekday, start, end, subject, facultyID string) model.Period {
	s, _ := model.ParseClock(start)
	e, _ := model.ParseClock(end)
	return model.Period{ID: id, DayOfWeek: day, StartTime: s, EndTime: e, Subject: subject, FacultyID: facultyID}
}

// testbed wires a Service over the in-memory store with two students and a
// small Monday timetable.
type testbed struct {
	svc      *Service
	store    *MemoryStore
	dir      *fakeDirectory
	tt       *fakeTimetable
	notifier *recordingNotifier
	now      time.Time
}

func newTestbed() *testbed {
	tb := &testbed{
		store: NewMemoryStore(),
		dir: newFakeDirectory(
			model.Student{ID: "stu-1", Name: "Asha", RegNo: "R001", BadgeID: "B1", IsActive: true},
			model.Student{ID: "stu-2", Name: "Bala", RegNo: "R002", BadgeID: "B2", IsActive: true},
			model.Student{ID: "stu-3", Name: "Chen", RegNo: "R003", BadgeID: "B3", IsActive: false},
		),
		tt: &fakeTimetable{periods: []model.Period{
			period("p-maths", time.Monday, "09:00", "09:50", "Maths", "fac-1"),
			period("p-phys", time.Monday, "10:00", "10:50", "Physics", "fac-2"),
			period("p-chem", time.Monday, "14:00", "14:50", "Chemistry", "fac-1"),
		}},
		notifier: &recordingNotifier{},
		now:      at(12, 0),
	}
	tb.svc = NewService(Deps{
		Store:       tb.store,
		Directory:   tb.dir,
		Timetable:   tb.tt,
		Notifier:    tb.notifier,
		Users:       roleCounter{model.RoleStudent: 3, model.RoleIncharge: 1, model.RoleFaculty: 2},
		Permissions: fixedCounter(2),
		Complaints:  fixedCounter(1),
		Location:    time.UTC,
		Logger:      quietLogger(),
		Now:         func() time.Time { return tb.now },
	})
	return tb
}
