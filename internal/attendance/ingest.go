package attendance

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"smartattendance/internal/model"
)

// Event is the common shape of manual marks and hardware scans.
type Event struct {
	Source model.Source
	// SubjectRef is a student id for manual marks and a badge id for scans.
	SubjectRef string
	Timestamp  time.Time
	// RawStatus is empty for scans that carry no explicit status.
	RawStatus model.Status
}

// HardwareRow is one scan as uploaded, before validation.
type HardwareRow struct {
	Line      int    `json:"-"`
	BadgeID   string `json:"badge_id"`
	Timestamp string `json:"timestamp"`
	Status    string `json:"status,omitempty"`
	Raw       string `json:"-"`
}

// Rejection is the diagnostic for a row that was not accepted.
type Rejection struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
	Raw    string `json:"raw,omitempty"`
}

// BatchResult summarises a hardware upload.
type BatchResult struct {
	Accepted    int         `json:"accepted"`
	Unscheduled int         `json:"unscheduled"`
	Duplicates  int         `json:"duplicates"`
	Rejected    []Rejection `json:"rejected"`
}

func (b *BatchResult) reject(row HardwareRow, err error) {
	b.Rejected = append(b.Rejected, Rejection{Row: row.Line, Reason: err.Error(), Raw: row.raw()})
}

func (r HardwareRow) raw() string {
	if r.Raw != "" {
		return r.Raw
	}
	parts := []string{r.BadgeID, r.Timestamp}
	if r.Status != "" {
		parts = append(parts, r.Status)
	}
	return strings.Join(parts, ",")
}

var timestampLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	"02-01-2006 15:04:05",
}

var headerNames = map[string]bool{"badge_id": true, "badge": true, "uid": true, "card_id": true}

// ParseTimestamp accepts RFC3339 or a zone-less layout read in loc.
func ParseTimestamp(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.In(loc), nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", s)
}

// ParseRow validates a hardware row and converts it to an Event.
func ParseRow(row HardwareRow, loc *time.Location) (Event, error) {
	badge := strings.TrimSpace(row.BadgeID)
	if badge == "" {
		return Event{}, fmt.Errorf("%w: empty badge id", ErrMalformedRow)
	}
	if strings.TrimSpace(row.Timestamp) == "" {
		return Event{}, fmt.Errorf("%w: missing timestamp", ErrMalformedRow)
	}
	ts, err := ParseTimestamp(row.Timestamp, loc)
	if err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedRow, err)
	}
	ev := Event{Source: model.SourceHardware, SubjectRef: badge, Timestamp: ts}
	if s := strings.TrimSpace(row.Status); s != "" {
		status, ok := model.ParseStatus(s)
		if !ok {
			return Event{}, fmt.Errorf("%w: unknown status %q", ErrMalformedRow, s)
		}
		ev.RawStatus = status
	}
	return ev, nil
}

// ReadCSV splits an upload into rows of badge_id,timestamp[,status]. An
// optional header line is skipped and not counted. A leading byte-order mark
// is dropped, and UTF-16 exports that carry one are decoded. Records with too
// many fields or broken quoting come back as rejections; only I/O failures
// abort.
func ReadCSV(r io.Reader) ([]HardwareRow, []Rejection, error) {
	cr := csv.NewReader(transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder())))
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var (
		rows    []HardwareRow
		rejects []Rejection
		line    int
		first   = true
	)
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		var perr *csv.ParseError
		if errors.As(err, &perr) {
			line++
			rejects = append(rejects, Rejection{Row: line, Reason: fmt.Sprintf("%v: %v", ErrMalformedRow, perr.Err)})
			first = false
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		if first {
			first = false
			if len(rec) > 0 && headerNames[strings.ToLower(strings.TrimSpace(rec[0]))] {
				continue
			}
		}
		line++
		raw := strings.Join(rec, ",")
		if len(rec) > 3 {
			rejects = append(rejects, Rejection{Row: line, Reason: fmt.Sprintf("%v: expected at most 3 fields, got %d", ErrMalformedRow, len(rec)), Raw: raw})
			continue
		}
		row := HardwareRow{Line: line, Raw: raw}
		row.BadgeID = rec[0]
		if len(rec) > 1 {
			row.Timestamp = rec[1]
		}
		if len(rec) > 2 {
			row.Status = rec[2]
		}
		rows = append(rows, row)
	}
	return rows, rejects, nil
}
