package attendance

import (
	"sort"

	"smartattendance/internal/model"
)

// Aggregate folds one day's scans into per-student live stats. The first
// scan is the entry, the last is the exit, and each scan toggles presence:
// an odd number of scans leaves the student IN, an even number OUT. There is
// no debounce, so a bounced double scan flips the state.
func Aggregate(events []model.HardwareEvent) []model.LiveStat {
	groups := make(map[string][]model.HardwareEvent)
	var order []string
	for _, ev := range events {
		if _, ok := groups[ev.StudentID]; !ok {
			order = append(order, ev.StudentID)
		}
		groups[ev.StudentID] = append(groups[ev.StudentID], ev)
	}

	stats := make([]model.LiveStat, 0, len(order))
	for _, id := range order {
		evs := groups[id]
		sort.SliceStable(evs, func(i, j int) bool { return evs[i].Timestamp.Before(evs[j].Timestamp) })
		st := model.LiveStat{
			StudentID:  id,
			EntryTime:  evs[0].Timestamp,
			ExitTime:   evs[len(evs)-1].Timestamp,
			LastStatus: model.PresenceOut,
			Scans:      len(evs),
		}
		if len(evs)%2 == 1 {
			st.LastStatus = model.PresenceIn
		}
		stats = append(stats, st)
	}
	return stats
}

func sortLiveStats(stats []model.LiveStat) {
	sort.SliceStable(stats, func(i, j int) bool {
		if !stats[i].EntryTime.Equal(stats[j].EntryTime) {
			return stats[i].EntryTime.Before(stats[j].EntryTime)
		}
		return stats[i].Name < stats[j].Name
	})
}
