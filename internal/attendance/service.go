package attendance

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"smartattendance/internal/auth"
	"smartattendance/internal/metrics"
	"smartattendance/internal/model"
)

// Deps are the collaborators of a Service.
type Deps struct {
	Store       Store
	Directory   Directory
	Timetable   Timetable
	Notifier    Notifier
	Users       UserCounter
	Permissions PendingCounter
	Complaints  PendingCounter
	// Location is the institution's time zone; calendar days and periods are read in it.
	Location *time.Location
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
	Now      func() time.Time
}

// Service is the attendance pipeline: ingestion, identity resolution, period
// matching, the ledger, live stats and reports. Every operation takes the
// caller's identity explicitly.
type Service struct {
	store    Store
	dir      Directory
	ledger   *Ledger
	resolver *Resolver
	matcher  *Matcher
	reports  *Reports
	loc      *time.Location
	now      func() time.Time
	log      *slog.Logger
	metrics  *metrics.Metrics
}

// NewService wires the pipeline.
func NewService(d Deps) *Service {
	if d.Location == nil {
		d.Location = time.Local
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Service{
		store:    d.Store,
		dir:      d.Directory,
		ledger:   NewLedger(d.Store, d.Directory, d.Timetable, d.Notifier, d.Logger, d.Metrics),
		resolver: NewResolver(d.Directory),
		matcher:  NewMatcher(d.Timetable, d.Location, d.Logger, d.Metrics),
		reports:  NewReports(d.Store, d.Timetable, d.Users, d.Permissions, d.Complaints),
		loc:      d.Location,
		now:      d.Now,
		log:      d.Logger,
		metrics:  d.Metrics,
	}
}

// Ledger exposes the underlying ledger.
func (s *Service) Ledger() *Ledger { return s.ledger }

// Today is the current calendar day in the institution's time zone.
func (s *Service) Today() model.Date {
	return model.DateOf(s.now().In(s.loc))
}

// ManualMark is an instructor's explicit mark.
type ManualMark struct {
	StudentID string
	PeriodID  string
	Status    string
	// Date defaults to today.
	Date model.Date
}

// MarkManual records a caller-supplied status. Faculty may only mark their
// own periods; incharges and admins may mark any.
func (s *Service) MarkManual(ctx context.Context, id auth.Identity, m ManualMark) (model.AttendanceRecord, error) {
	if !id.IsStaff() {
		return model.AttendanceRecord{}, fmt.Errorf("%w: only staff can mark attendance", ErrForbidden)
	}
	status, ok := model.ParseStatus(m.Status)
	if !ok {
		return model.AttendanceRecord{}, fmt.Errorf("%w: %q", ErrInvalidStatus, m.Status)
	}
	if id.Role == model.RoleFaculty {
		p, err := s.ledger.tt.PeriodByID(ctx, m.PeriodID)
		if err != nil {
			return model.AttendanceRecord{}, err
		}
		if p == nil {
			return model.AttendanceRecord{}, fmt.Errorf("%w: %s", ErrUnknownPeriod, m.PeriodID)
		}
		if p.FacultyID != id.UserID {
			return model.AttendanceRecord{}, fmt.Errorf("%w: period %s belongs to another faculty", ErrForbidden, m.PeriodID)
		}
	}
	date := m.Date
	if date.IsZero() {
		date = s.Today()
	}
	return s.ledger.Upsert(ctx, model.AttendanceRecord{
		StudentID: m.StudentID,
		PeriodID:  m.PeriodID,
		Date:      date,
		Status:    status,
		MarkedAt:  s.now(),
		Source:    model.SourceManual,
	})
}

// IngestHardwareCSV reads a badge scan export and ingests every row.
func (s *Service) IngestHardwareCSV(ctx context.Context, id auth.Identity, r io.Reader) (BatchResult, error) {
	if err := requireIncharge(id); err != nil {
		return BatchResult{}, err
	}
	rows, rejects, err := ReadCSV(r)
	if err != nil {
		return BatchResult{}, fmt.Errorf("read csv: %w", err)
	}
	res := s.ingest(ctx, rows)
	for range rejects {
		s.metrics.RowIngested("malformed")
	}
	res.Rejected = mergeRejections(rejects, res.Rejected)
	return res, nil
}

// IngestHardwareRows ingests rows submitted as JSON; rows are numbered from 1.
func (s *Service) IngestHardwareRows(ctx context.Context, id auth.Identity, rows []HardwareRow) (BatchResult, error) {
	if err := requireIncharge(id); err != nil {
		return BatchResult{}, err
	}
	for i := range rows {
		rows[i].Line = i + 1
	}
	return s.ingest(ctx, rows), nil
}

// ingest processes rows independently. A failed row is recorded and skipped;
// it never rolls back rows already written.
func (s *Service) ingest(ctx context.Context, rows []HardwareRow) BatchResult {
	res := BatchResult{Rejected: []Rejection{}}
	for _, row := range rows {
		outcome, err := s.ingestRow(ctx, row)
		if err != nil {
			res.reject(row, err)
			s.metrics.RowIngested(rejectionKind(err))
			continue
		}
		res.Accepted++
		switch outcome {
		case rowUnscheduled:
			res.Unscheduled++
		case rowDuplicate:
			res.Duplicates++
		}
		s.metrics.RowIngested(string(outcome))
	}
	if len(res.Rejected) > 0 {
		s.log.Info("hardware batch partially rejected", "accepted", res.Accepted, "rejected", len(res.Rejected))
	}
	return res
}

type rowOutcome string

const (
	rowAccepted    rowOutcome = "accepted"
	rowUnscheduled rowOutcome = "unscheduled"
	rowDuplicate   rowOutcome = "duplicate"
)

// ingestRow matches and records a scan before it enters the scan log, so a
// rejected row leaves nothing behind that live stats could count. The ledger
// write is idempotent, so resubmitting a row rejected by a scan log failure
// converges.
func (s *Service) ingestRow(ctx context.Context, row HardwareRow) (rowOutcome, error) {
	ev, err := ParseRow(row, s.loc)
	if err != nil {
		return "", err
	}
	st, err := s.resolver.Student(ctx, ev.SubjectRef)
	if err != nil {
		return "", err
	}
	studentID := st.ID
	match, err := s.matcher.MatchClass(ctx, ev.Timestamp, st.ClassName)
	if err != nil {
		return "", err
	}
	local := ev.Timestamp.In(s.loc)
	outcome := rowAccepted
	if match.Unscheduled() {
		outcome = rowUnscheduled
	} else {
		status := ev.RawStatus
		if status == "" {
			status = model.StatusPresent
		}
		if _, err := s.ledger.Upsert(ctx, model.AttendanceRecord{
			StudentID: studentID,
			PeriodID:  match.Period.ID,
			Date:      model.DateOf(local),
			Status:    status,
			MarkedAt:  ev.Timestamp,
			Source:    model.SourceHardware,
		}); err != nil {
			return "", err
		}
	}
	inserted, err := s.store.AppendHardwareEvent(ctx, model.HardwareEvent{
		BadgeID:   ev.SubjectRef,
		StudentID: studentID,
		Timestamp: ev.Timestamp.UTC(),
		Date:      model.DateOf(local),
	})
	if err != nil {
		return "", fmt.Errorf("append scan: %w", err)
	}
	if !inserted && outcome == rowAccepted {
		return rowDuplicate, nil
	}
	return outcome, nil
}

func rejectionKind(err error) string {
	switch {
	case errors.Is(err, ErrMalformedRow):
		return "malformed"
	case errors.Is(err, ErrUnknownBadge):
		return "unknown_badge"
	case errors.Is(err, ErrInactiveStudent):
		return "inactive_student"
	}
	return "error"
}

// mergeRejections interleaves reader-level and row-level rejections by row.
func mergeRejections(a, b []Rejection) []Rejection {
	out := make([]Rejection, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if a[i].Row <= b[j].Row {
			out = append(out, a[i])
			i++
		} else {
			out = append(out, b[j])
			j++
		}
	}
	out = append(out, a[i:]...)
	return append(out, b[j:]...)
}

// TodayAttendance lists today's ledger, optionally for one period. Students
// only see their own records.
func (s *Service) TodayAttendance(ctx context.Context, id auth.Identity, periodID string) ([]model.AttendanceRecord, error) {
	today := s.Today()
	var (
		recs []model.AttendanceRecord
		err  error
	)
	if periodID != "" {
		recs, err = s.ledger.ForPeriod(ctx, periodID, today)
	} else {
		recs, err = s.ledger.ForDate(ctx, today)
	}
	if err != nil {
		return nil, err
	}
	if id.IsStaff() {
		return nonNil(recs), nil
	}
	own := make([]model.AttendanceRecord, 0, len(recs))
	for _, r := range recs {
		if r.StudentID == id.UserID {
			own = append(own, r)
		}
	}
	return own, nil
}

// LiveStats derives entry/exit summaries from the raw scans of date (today
// when zero). Callers poll this; nothing is pushed.
func (s *Service) LiveStats(ctx context.Context, id auth.Identity, date model.Date) ([]model.LiveStat, error) {
	if !id.IsStaff() {
		return nil, fmt.Errorf("%w: live stats are for staff", ErrForbidden)
	}
	if date.IsZero() {
		date = s.Today()
	}
	events, err := s.store.HardwareEventsOn(ctx, date)
	if err != nil {
		return nil, err
	}
	stats := Aggregate(events)
	for i := range stats {
		st, err := s.dir.StudentByID(ctx, stats[i].StudentID)
		if err != nil {
			return nil, err
		}
		if st != nil {
			stats[i].Name = st.Name
			stats[i].RegNo = st.RegNo
		}
	}
	sortLiveStats(stats)
	return stats, nil
}

// AttendancePercent reports a student's overall percentage.
func (s *Service) AttendancePercent(ctx context.Context, id auth.Identity, studentID string, dr model.DateRange) (Percent, error) {
	studentID, err := studentScope(id, studentID)
	if err != nil {
		return Percent{}, err
	}
	return s.reports.AttendancePercent(ctx, studentID, dr)
}

// History lists a student's ledger records.
func (s *Service) History(ctx context.Context, id auth.Identity, studentID string, dr model.DateRange) ([]model.AttendanceRecord, error) {
	studentID, err := studentScope(id, studentID)
	if err != nil {
		return nil, err
	}
	recs, err := s.reports.History(ctx, studentID, dr)
	return nonNil(recs), err
}

// SubjectWise reports a student's attendance per subject.
func (s *Service) SubjectWise(ctx context.Context, id auth.Identity, studentID string, dr model.DateRange) ([]SubjectStat, error) {
	studentID, err := studentScope(id, studentID)
	if err != nil {
		return nil, err
	}
	return s.reports.SubjectWise(ctx, studentID, dr)
}

// FacultyStats reports per-period totals. Faculty see their own periods;
// incharges and admins name the faculty member.
func (s *Service) FacultyStats(ctx context.Context, id auth.Identity, facultyID string, dr model.DateRange) ([]FacultyStat, error) {
	switch {
	case id.Role == model.RoleFaculty:
		if facultyID != "" && facultyID != id.UserID {
			return nil, fmt.Errorf("%w: faculty can only view their own stats", ErrForbidden)
		}
		facultyID = id.UserID
	case id.HasRole(model.RoleIncharge, model.RoleAdmin):
		if facultyID == "" {
			return nil, fmt.Errorf("%w: faculty id required", ErrInvalidRecord)
		}
	default:
		return nil, fmt.Errorf("%w: faculty stats are for staff", ErrForbidden)
	}
	return s.reports.FacultyStats(ctx, facultyID, dr)
}

// OverallStats reports institution-wide counts.
func (s *Service) OverallStats(ctx context.Context, id auth.Identity) (OverallStats, error) {
	if err := requireIncharge(id); err != nil {
		return OverallStats{}, err
	}
	return s.reports.Overall(ctx)
}

// studentScope pins students to their own id and requires staff to name one.
func studentScope(id auth.Identity, studentID string) (string, error) {
	if id.Role == model.RoleStudent {
		if studentID != "" && studentID != id.UserID {
			return "", fmt.Errorf("%w: students can only view their own attendance", ErrForbidden)
		}
		return id.UserID, nil
	}
	if !id.IsStaff() {
		return "", fmt.Errorf("%w: unknown role %q", ErrForbidden, id.Role)
	}
	if studentID == "" {
		return "", fmt.Errorf("%w: student id required", ErrInvalidRecord)
	}
	return studentID, nil
}

func requireIncharge(id auth.Identity) error {
	if !id.HasRole(model.RoleIncharge, model.RoleAdmin) {
		return fmt.Errorf("%w: incharge or admin role required", ErrForbidden)
	}
	return nil
}

func nonNil(recs []model.AttendanceRecord) []model.AttendanceRecord {
	if recs == nil {
		return []model.AttendanceRecord{}
	}
	return recs
}
