package attendance

import (
	"context"
	"fmt"
	"math"
	"sort"

	"smartattendance/internal/model"
)

// Percent is a student's overall attendance over a range.
type Percent struct {
	Total   int     `json:"total"`
	Present int     `json:"present"`
	Percent float64 `json:"percent"`
}

// SubjectStat is one row of the subject-wise breakdown.
type SubjectStat struct {
	Subject        string  `json:"subject"`
	TotalClasses   int     `json:"total_classes"`
	PresentClasses int     `json:"present_classes"`
	Percentage     float64 `json:"percentage"`
}

// FacultyStat summarises one of a faculty member's periods.
type FacultyStat struct {
	Subject        string `json:"subject"`
	PeriodID       string `json:"period_id"`
	TotalClasses   int    `json:"total_classes"`
	TotalPresent   int    `json:"total_present"`
	TotalAbsent    int    `json:"total_absent"`
	UniqueStudents int    `json:"unique_students"`
}

// OverallStats are institution-wide counts.
type OverallStats struct {
	TotalUsers         int `json:"totalUsers"`
	TotalStudents      int `json:"totalStudents"`
	TotalIncharges     int `json:"totalIncharges"`
	PendingPermissions int `json:"pendingPermissions"`
	PendingComplaints  int `json:"pendingComplaints"`
}

const unknownSubject = "Unknown"

// Reports computes statistics from ledger state. Every call reads the
// ledger afresh.
type Reports struct {
	store       Store
	tt          Timetable
	users       UserCounter
	permissions PendingCounter
	complaints  PendingCounter
}

// NewReports wires the report engine.
func NewReports(store Store, tt Timetable, users UserCounter, permissions, complaints PendingCounter) *Reports {
	return &Reports{store: store, tt: tt, users: users, permissions: permissions, complaints: complaints}
}

// percentOf returns present/total*100 rounded to two decimals, 0 when total is 0.
func percentOf(present, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(present)/float64(total)*10000) / 100
}

// AttendancePercent counts each ledger record in range as one period meeting.
func (r *Reports) AttendancePercent(ctx context.Context, studentID string, dr model.DateRange) (Percent, error) {
	recs, err := r.store.RecordsForStudent(ctx, studentID, dr)
	if err != nil {
		return Percent{}, err
	}
	var p Percent
	for _, rec := range recs {
		p.Total++
		if rec.Status == model.StatusPresent {
			p.Present++
		}
	}
	p.Percent = percentOf(p.Present, p.Total)
	return p, nil
}

// History lists a student's ledger records in range.
func (r *Reports) History(ctx context.Context, studentID string, dr model.DateRange) ([]model.AttendanceRecord, error) {
	return r.store.RecordsForStudent(ctx, studentID, dr)
}

// SubjectWise groups a student's records by the subject of their period.
// Records whose period has since been deleted are grouped under "Unknown".
func (r *Reports) SubjectWise(ctx context.Context, studentID string, dr model.DateRange) ([]SubjectStat, error) {
	recs, err := r.store.RecordsForStudent(ctx, studentID, dr)
	if err != nil {
		return nil, err
	}
	subjects := make(map[string]string)
	byName := make(map[string]*SubjectStat)
	for _, rec := range recs {
		subject, ok := subjects[rec.PeriodID]
		if !ok {
			p, err := r.tt.PeriodByID(ctx, rec.PeriodID)
			if err != nil {
				return nil, fmt.Errorf("lookup period %s: %w", rec.PeriodID, err)
			}
			subject = unknownSubject
			if p != nil {
				subject = p.Subject
			}
			subjects[rec.PeriodID] = subject
		}
		st, ok := byName[subject]
		if !ok {
			st = &SubjectStat{Subject: subject}
			byName[subject] = st
		}
		st.TotalClasses++
		if rec.Status == model.StatusPresent {
			st.PresentClasses++
		}
	}
	out := make([]SubjectStat, 0, len(byName))
	for _, st := range byName {
		st.Percentage = percentOf(st.PresentClasses, st.TotalClasses)
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Subject < out[j].Subject })
	return out, nil
}

// FacultyStats summarises every period the faculty member teaches, including
// periods with no records yet.
func (r *Reports) FacultyStats(ctx context.Context, facultyID string, dr model.DateRange) ([]FacultyStat, error) {
	periods, err := r.tt.PeriodsForFaculty(ctx, facultyID)
	if err != nil {
		return nil, fmt.Errorf("periods for faculty %s: %w", facultyID, err)
	}
	if len(periods) == 0 {
		return []FacultyStat{}, nil
	}
	ids := make([]string, len(periods))
	for i, p := range periods {
		ids[i] = p.ID
	}
	recs, err := r.store.RecordsForPeriods(ctx, ids, dr)
	if err != nil {
		return nil, err
	}

	type acc struct {
		stat     FacultyStat
		dates    map[string]struct{}
		students map[string]struct{}
	}
	byPeriod := make(map[string]*acc, len(periods))
	for _, p := range periods {
		byPeriod[p.ID] = &acc{
			stat:     FacultyStat{Subject: p.Subject, PeriodID: p.ID},
			dates:    make(map[string]struct{}),
			students: make(map[string]struct{}),
		}
	}
	for _, rec := range recs {
		a, ok := byPeriod[rec.PeriodID]
		if !ok {
			continue
		}
		a.dates[rec.Date.String()] = struct{}{}
		a.students[rec.StudentID] = struct{}{}
		if rec.Status == model.StatusPresent {
			a.stat.TotalPresent++
		} else {
			a.stat.TotalAbsent++
		}
	}
	out := make([]FacultyStat, 0, len(byPeriod))
	for _, a := range byPeriod {
		a.stat.TotalClasses = len(a.dates)
		a.stat.UniqueStudents = len(a.students)
		out = append(out, a.stat)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Subject != out[j].Subject {
			return out[i].Subject < out[j].Subject
		}
		return out[i].PeriodID < out[j].PeriodID
	})
	return out, nil
}

// Overall gathers user and request counts; no ledger math.
func (r *Reports) Overall(ctx context.Context) (OverallStats, error) {
	var (
		s   OverallStats
		err error
	)
	if s.TotalUsers, err = r.users.CountUsers(ctx, ""); err != nil {
		return OverallStats{}, err
	}
	if s.TotalStudents, err = r.users.CountUsers(ctx, model.RoleStudent); err != nil {
		return OverallStats{}, err
	}
	if s.TotalIncharges, err = r.users.CountUsers(ctx, model.RoleIncharge); err != nil {
		return OverallStats{}, err
	}
	if s.PendingPermissions, err = r.permissions.CountPending(ctx); err != nil {
		return OverallStats{}, err
	}
	if s.PendingComplaints, err = r.complaints.CountPending(ctx); err != nil {
		return OverallStats{}, err
	}
	return s, nil
}
