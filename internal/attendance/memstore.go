package attendance

import (
	"context"
	"hash/fnv"
	"sort"
	"sync"

	"smartattendance/internal/model"
)

const memStripes = 64

type recordKey struct {
	studentID string
	periodID  string
	date      string
}

type scanKey struct {
	badgeID string
	unixNs  int64
}

// MemoryStore is an in-process Store. Writes to the same record key are
// serialized by a striped mutex; different keys only contend on the map lock.
type MemoryStore struct {
	stripes [memStripes]sync.Mutex

	mu      sync.RWMutex
	records map[recordKey]model.AttendanceRecord
	scans   map[scanKey]model.HardwareEvent
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[recordKey]model.AttendanceRecord),
		scans:   make(map[scanKey]model.HardwareEvent),
	}
}

func keyOf(rec model.AttendanceRecord) recordKey {
	return recordKey{studentID: rec.StudentID, periodID: rec.PeriodID, date: rec.Date.String()}
}

func (s *MemoryStore) stripe(k recordKey) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(k.studentID))
	h.Write([]byte{0})
	h.Write([]byte(k.periodID))
	h.Write([]byte{0})
	h.Write([]byte(k.date))
	return &s.stripes[h.Sum32()%memStripes]
}

// UpsertRecord implements Store.
func (s *MemoryStore) UpsertRecord(ctx context.Context, rec model.AttendanceRecord) (model.AttendanceRecord, bool, error) {
	k := keyOf(rec)
	lock := s.stripe(k)
	lock.Lock()
	defer lock.Unlock()

	s.mu.RLock()
	cur, ok := s.records[k]
	s.mu.RUnlock()
	if ok && !supersedes(rec, cur) {
		return cur, false, nil
	}
	s.mu.Lock()
	s.records[k] = rec
	s.mu.Unlock()
	return rec, true, nil
}

func (s *MemoryStore) filter(keep func(model.AttendanceRecord) bool) []model.AttendanceRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.AttendanceRecord
	for _, r := range s.records {
		if keep(r) {
			out = append(out, r)
		}
	}
	sortRecords(out)
	return out
}

// RecordsForPeriod implements Store.
func (s *MemoryStore) RecordsForPeriod(ctx context.Context, periodID string, date model.Date) ([]model.AttendanceRecord, error) {
	return s.filter(func(r model.AttendanceRecord) bool {
		return r.PeriodID == periodID && r.Date.Equal(date)
	}), nil
}

// RecordsForStudent implements Store.
func (s *MemoryStore) RecordsForStudent(ctx context.Context, studentID string, dr model.DateRange) ([]model.AttendanceRecord, error) {
	return s.filter(func(r model.AttendanceRecord) bool {
		return r.StudentID == studentID && dr.Contains(r.Date)
	}), nil
}

// RecordsForDate implements Store.
func (s *MemoryStore) RecordsForDate(ctx context.Context, date model.Date) ([]model.AttendanceRecord, error) {
	return s.filter(func(r model.AttendanceRecord) bool { return r.Date.Equal(date) }), nil
}

// RecordsForPeriods implements Store.
func (s *MemoryStore) RecordsForPeriods(ctx context.Context, periodIDs []string, dr model.DateRange) ([]model.AttendanceRecord, error) {
	want := make(map[string]bool, len(periodIDs))
	for _, id := range periodIDs {
		want[id] = true
	}
	return s.filter(func(r model.AttendanceRecord) bool {
		return want[r.PeriodID] && dr.Contains(r.Date)
	}), nil
}

// AppendHardwareEvent implements Store.
func (s *MemoryStore) AppendHardwareEvent(ctx context.Context, ev model.HardwareEvent) (bool, error) {
	k := scanKey{badgeID: ev.BadgeID, unixNs: ev.Timestamp.UnixNano()}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.scans[k]; dup {
		return false, nil
	}
	s.scans[k] = ev
	return true, nil
}

// HardwareEventsOn implements Store.
func (s *MemoryStore) HardwareEventsOn(ctx context.Context, date model.Date) ([]model.HardwareEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.HardwareEvent
	for _, ev := range s.scans {
		if ev.Date.Equal(date) {
			out = append(out, ev)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func sortRecords(recs []model.AttendanceRecord) {
	sort.Slice(recs, func(i, j int) bool {
		a, b := recs[i], recs[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if a.PeriodID != b.PeriodID {
			return a.PeriodID < b.PeriodID
		}
		return a.StudentID < b.StudentID
	})
}
