package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Roles recognised by the API.
const (
	RoleStudent  = "student"
	RoleFaculty  = "faculty"
	RoleIncharge = "incharge"
	RoleAdmin    = "admin"
)

// ValidRole reports whether r is one of the known roles.
func ValidRole(r string) bool {
	switch r {
	case RoleStudent, RoleFaculty, RoleIncharge, RoleAdmin:
		return true
	}
	return false
}

// User is a registered account. Students carry an optional hardware badge id.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	BadgeID      *string   `json:"uid,omitempty"`
	RegNo        string    `json:"reg_no,omitempty"`
	Department   string    `json:"department,omitempty"`
	ClassName    string    `json:"class_name,omitempty"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
}

// Student is the slice of a user the attendance core reads.
type Student struct {
	ID        string
	Name      string
	RegNo     string
	BadgeID   string
	ClassName string
	IsActive  bool
}

// Period is a scheduled class meeting.
type Period struct {
	ID        string       `json:"id"`
	DayOfWeek time.Weekday `json:"-"`
	StartTime Clock        `json:"start_time"`
	EndTime   Clock        `json:"end_time"`
	Subject   string       `json:"subject"`
	FacultyID string       `json:"faculty_id"`
	ClassName string       `json:"class_name,omitempty"`
}

// MarshalJSON renders the weekday by name.
func (p Period) MarshalJSON() ([]byte, error) {
	type alias Period
	return json.Marshal(struct {
		alias
		Day string `json:"day_of_week"`
	}{alias(p), p.DayOfWeek.String()})
}

// Contains reports whether the time of day falls within [StartTime, EndTime].
func (p Period) Contains(c Clock) bool {
	return c >= p.StartTime && c <= p.EndTime
}

// ParseWeekday accepts full or three-letter English day names, any case.
func ParseWeekday(s string) (time.Weekday, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		if s == name || s == name[:3] {
			return d, nil
		}
	}
	return 0, fmt.Errorf("unknown day %q", s)
}

// Clock is a time of day in minutes since midnight.
type Clock int

// ClockOf returns the local time of day of t.
func ClockOf(t time.Time) Clock {
	return Clock(t.Hour()*60 + t.Minute())
}

// ParseClock parses "HH:MM" or "HH:MM:SS" (seconds are dropped).
func ParseClock(s string) (Clock, error) {
	var h, m, sec int
	n, _ := fmt.Sscanf(strings.TrimSpace(s), "%d:%d:%d", &h, &m, &sec)
	if n < 2 || h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid time of day %q", s)
	}
	return Clock(h*60 + m), nil
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// MarshalJSON implements json.Marshaler.
func (c Clock) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *Clock) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseClock(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Value stores the clock as "HH:MM" text.
func (c Clock) Value() (driver.Value, error) {
	return c.String(), nil
}

// Scan reads "HH:MM" text.
func (c *Clock) Scan(src any) error {
	switch v := src.(type) {
	case string:
		parsed, err := ParseClock(v)
		if err != nil {
			return err
		}
		*c = parsed
		return nil
	case []byte:
		return c.Scan(string(v))
	}
	return fmt.Errorf("cannot scan %T into Clock", src)
}

// Status of a ledger record.
type Status string

const (
	StatusPresent Status = "Present"
	StatusAbsent  Status = "Absent"
)

// ParseStatus accepts Present/Absent and the P/A short forms.
func ParseStatus(s string) (Status, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "P", "PRESENT":
		return StatusPresent, true
	case "A", "ABSENT":
		return StatusAbsent, true
	}
	return "", false
}

// Source identifies where an attendance event came from.
type Source string

const (
	SourceManual   Source = "manual"
	SourceHardware Source = "hardware"
)

// AttendanceRecord is the ledger's unit: one per (student, period, date).
type AttendanceRecord struct {
	StudentID string    `json:"student_id"`
	PeriodID  string    `json:"period_id"`
	Date      Date      `json:"date"`
	Status    Status    `json:"status"`
	MarkedAt  time.Time `json:"marked_at"`
	Source    Source    `json:"source"`
}

// HardwareEvent is one raw badge scan kept for live stats and audit.
type HardwareEvent struct {
	BadgeID   string    `json:"badge_id"`
	StudentID string    `json:"student_id"`
	Timestamp time.Time `json:"timestamp"`
	Date      Date      `json:"date"`
}

// Presence derived from the scan toggle rule.
type Presence string

const (
	PresenceIn  Presence = "IN"
	PresenceOut Presence = "OUT"
)

// LiveStat summarises a student's scans for one day.
type LiveStat struct {
	StudentID  string    `json:"student_id"`
	Name       string    `json:"name"`
	RegNo      string    `json:"reg_no"`
	EntryTime  time.Time `json:"entry_time"`
	ExitTime   time.Time `json:"exit_time"`
	LastStatus Presence  `json:"last_status"`
	Scans      int       `json:"scans"`
}

// Permission is a student's leave request.
type Permission struct {
	ID        string    `json:"id"`
	StudentID string    `json:"student_id"`
	FacultyID string    `json:"faculty_id,omitempty"`
	Reason    string    `json:"reason"`
	StartDate Date      `json:"start_date"`
	EndDate   Date      `json:"end_date"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// Complaint is free-text feedback from any user.
type Complaint struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Message   string    `json:"message"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// AuditEntry is an applied ledger write as recorded by the worker.
type AuditEntry struct {
	ID         string           `json:"id"`
	Record     AttendanceRecord `json:"record"`
	RecordedAt time.Time        `json:"recorded_at"`
}
