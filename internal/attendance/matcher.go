package attendance

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"smartattendance/internal/metrics"
	"smartattendance/internal/model"
)

// Match is the outcome of placing a timestamp in the timetable.
type Match struct {
	Period *model.Period
	// Candidates is the number of periods containing the timestamp; more than
	// one means the timetable has overlapping periods.
	Candidates int
}

// Unscheduled reports whether no period contains the timestamp.
func (m Match) Unscheduled() bool { return m.Period == nil }

// Overlap reports an ambiguous match.
func (m Match) Overlap() bool { return m.Candidates > 1 }

// Matcher places event timestamps in the weekly timetable.
type Matcher struct {
	tt      Timetable
	loc     *time.Location
	log     *slog.Logger
	metrics *metrics.Metrics
}

// NewMatcher creates a matcher that reads weekdays and times of day in loc.
func NewMatcher(tt Timetable, loc *time.Location, log *slog.Logger, m *metrics.Metrics) *Matcher {
	if loc == nil {
		loc = time.Local
	}
	if log == nil {
		log = slog.Default()
	}
	return &Matcher{tt: tt, loc: loc, log: log, metrics: m}
}

// Match finds the period ts falls in. Overlapping candidates resolve to the
// earliest start time and are logged as a schedule overlap.
func (m *Matcher) Match(ctx context.Context, ts time.Time) (Match, error) {
	return m.MatchClass(ctx, ts, "")
}

// MatchClass is Match restricted to the periods of className. Periods with
// no class are shared by every class; an empty className considers all
// periods.
func (m *Matcher) MatchClass(ctx context.Context, ts time.Time, className string) (Match, error) {
	local := ts.In(m.loc)
	periods, err := m.tt.PeriodsForDay(ctx, local.Weekday())
	if err != nil {
		return Match{}, fmt.Errorf("periods for %s: %w", local.Weekday(), err)
	}
	at := model.ClockOf(local)
	var hits []model.Period
	for _, p := range periods {
		if className != "" && p.ClassName != "" && p.ClassName != className {
			continue
		}
		if p.DayOfWeek == local.Weekday() && p.Contains(at) {
			hits = append(hits, p)
		}
	}
	if len(hits) == 0 {
		return Match{}, nil
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].StartTime != hits[j].StartTime {
			return hits[i].StartTime < hits[j].StartTime
		}
		return hits[i].ID < hits[j].ID
	})
	if len(hits) > 1 {
		ids := make([]string, len(hits))
		for i, p := range hits {
			ids[i] = p.ID
		}
		m.log.Warn("schedule overlap", "at", local.Format(time.RFC3339), "class", className, "periods", ids, "chosen", hits[0].ID)
		m.metrics.ScheduleOverlap()
	}
	chosen := hits[0]
	return Match{Period: &chosen, Candidates: len(hits)}, nil
}
