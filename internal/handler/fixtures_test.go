package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"smartattendance/internal/attendance"
	"smartattendance/internal/auth"
	"smartattendance/internal/model"
	"smartattendance/internal/requests"
	"smartattendance/internal/timetable"
	"smartattendance/internal/users"
)

type memUsers struct {
	mu    sync.Mutex
	byID  map[string]model.User
	order []string
	// referenced users stand in for rows held by periods or requests.
	referenced map[string]bool
}

func newMemUsers() *memUsers {
	return &memUsers{byID: map[string]model.User{}, referenced: map[string]bool{}}
}

func (m *memUsers) add(u model.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[u.ID] = u
	m.order = append(m.order, u.ID)
}

func (m *memUsers) Create(_ context.Context, u *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, other := range m.byID {
		if strings.EqualFold(other.Email, u.Email) {
			return users.ErrDuplicate
		}
	}
	u.ID = "user-" + u.Email
	u.CreatedAt = time.Now().UTC()
	m.byID[u.ID] = *u
	m.order = append(m.order, u.ID)
	return nil
}

func (m *memUsers) GetByID(_ context.Context, id string) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return model.User{}, users.ErrNotFound
	}
	return u, nil
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return model.User{}, users.ErrNotFound
}

func (m *memUsers) List(_ context.Context, f users.Filter) ([]model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.User
	for _, id := range m.order {
		u := m.byID[id]
		if f.Role != "" && u.Role != f.Role {
			continue
		}
		out = append(out, u)
	}
	return out, nil
}

func (m *memUsers) MapBadge(_ context.Context, id, badge string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return users.ErrNotFound
	}
	u.BadgeID = &badge
	m.byID[id] = u
	return nil
}

func (m *memUsers) ToggleActive(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return false, users.ErrNotFound
	}
	u.IsActive = !u.IsActive
	m.byID[id] = u
	return u.IsActive, nil
}

func (m *memUsers) Update(_ context.Context, u *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[u.ID]; !ok {
		return users.ErrNotFound
	}
	for id, other := range m.byID {
		if id != u.ID && strings.EqualFold(other.Email, u.Email) {
			return users.ErrDuplicate
		}
	}
	m.byID[u.ID] = *u
	return nil
}

func (m *memUsers) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[id]; !ok {
		return users.ErrNotFound
	}
	if m.referenced[id] {
		return users.ErrInUse
	}
	delete(m.byID, id)
	for i, o := range m.order {
		if o == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

func (m *memUsers) ChangeRole(_ context.Context, id, from, to string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return users.ErrNotFound
	}
	if u.Role != from {
		return users.ErrRole
	}
	u.Role = to
	m.byID[id] = u
	return nil
}

func (m *memUsers) SetPassword(_ context.Context, id, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return users.ErrNotFound
	}
	u.PasswordHash = hash
	m.byID[id] = u
	return nil
}

func (m *memUsers) CountUsers(_ context.Context, role string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, u := range m.byID {
		if role == "" || u.Role == role {
			n++
		}
	}
	return n, nil
}

func (m *memUsers) LookupByBadge(_ context.Context, badge string) (*model.Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if u.Role == model.RoleStudent && u.BadgeID != nil && *u.BadgeID == badge {
			return studentOf(u), nil
		}
	}
	return nil, nil
}

func (m *memUsers) StudentByID(_ context.Context, id string) (*model.Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok || u.Role != model.RoleStudent {
		return nil, nil
	}
	return studentOf(u), nil
}

func studentOf(u model.User) *model.Student {
	st := &model.Student{ID: u.ID, Name: u.Name, RegNo: u.RegNo, ClassName: u.ClassName, IsActive: u.IsActive}
	if u.BadgeID != nil {
		st.BadgeID = *u.BadgeID
	}
	return st
}

type memTimetable struct {
	mu      sync.Mutex
	periods []model.Period
	seq     int
}

func (m *memTimetable) Create(_ context.Context, p *model.Period) error {
	if err := timetable.Validate(*p); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	p.ID = "p-new-" + string(rune('0'+m.seq))
	m.periods = append(m.periods, *p)
	return nil
}

func (m *memTimetable) where(keep func(model.Period) bool) []model.Period {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Period
	for _, p := range m.periods {
		if keep(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime < out[j].StartTime })
	return out
}

func (m *memTimetable) List(_ context.Context, day *time.Weekday) ([]model.Period, error) {
	return m.where(func(p model.Period) bool { return day == nil || p.DayOfWeek == *day }), nil
}

func (m *memTimetable) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, p := range m.periods {
		if p.ID == id {
			m.periods = append(m.periods[:i], m.periods[i+1:]...)
			return nil
		}
	}
	return timetable.ErrNotFound
}

func (m *memTimetable) PeriodsForDay(_ context.Context, day time.Weekday) ([]model.Period, error) {
	return m.where(func(p model.Period) bool { return p.DayOfWeek == day }), nil
}

func (m *memTimetable) PeriodsForFaculty(_ context.Context, facultyID string) ([]model.Period, error) {
	return m.where(func(p model.Period) bool { return p.FacultyID == facultyID }), nil
}

func (m *memTimetable) PeriodByID(_ context.Context, id string) (*model.Period, error) {
	ps := m.where(func(p model.Period) bool { return p.ID == id })
	if len(ps) == 0 {
		return nil, nil
	}
	return &ps[0], nil
}

type memPermissions struct {
	mu   sync.Mutex
	list []model.Permission
}

func (m *memPermissions) Create(_ context.Context, p *model.Permission) error {
	if strings.TrimSpace(p.Reason) == "" || p.StartDate.IsZero() || p.EndDate.Before(p.StartDate) {
		return requests.ErrInvalid
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p.ID = "perm-" + string(rune('a'+len(m.list)))
	p.Status = requests.StatusPending
	m.list = append(m.list, *p)
	return nil
}

func (m *memPermissions) ListByStudent(_ context.Context, studentID string) ([]model.Permission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Permission
	for _, p := range m.list {
		if p.StudentID == studentID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memPermissions) ListAll(context.Context) ([]model.Permission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Permission(nil), m.list...), nil
}

func (m *memPermissions) UpdateStatus(_ context.Context, id, status string) error {
	if status != "approved" && status != "rejected" && status != requests.StatusPending {
		return requests.ErrInvalidStatus
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.list {
		if m.list[i].ID == id {
			m.list[i].Status = status
			return nil
		}
	}
	return requests.ErrNotFound
}

func (m *memPermissions) CountPending(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, p := range m.list {
		if p.Status == requests.StatusPending {
			n++
		}
	}
	return n, nil
}

type memComplaints struct {
	mu   sync.Mutex
	list []model.Complaint
}

func (m *memComplaints) Create(_ context.Context, c *model.Complaint) error {
	if strings.TrimSpace(c.Message) == "" {
		return requests.ErrInvalid
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c.ID = "comp-" + string(rune('a'+len(m.list)))
	c.Status = requests.StatusPending
	m.list = append(m.list, *c)
	return nil
}

func (m *memComplaints) ListByUser(_ context.Context, userID string) ([]model.Complaint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Complaint
	for _, c := range m.list {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memComplaints) ListAll(context.Context) ([]model.Complaint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Complaint(nil), m.list...), nil
}

func (m *memComplaints) UpdateStatus(_ context.Context, id, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.list {
		if m.list[i].ID == id {
			m.list[i].Status = status
			return nil
		}
	}
	return requests.ErrNotFound
}

func (m *memComplaints) CountPending(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.list {
		if c.Status == requests.StatusPending {
			n++
		}
	}
	return n, nil
}

type memAudit struct {
	entries []model.AuditEntry
}

func (m *memAudit) ListByStudent(_ context.Context, studentID string) ([]model.AuditEntry, error) {
	var out []model.AuditEntry
	for _, e := range m.entries {
		if e.Record.StudentID == studentID {
			out = append(out, e)
		}
	}
	return out, nil
}

const (
	testPassword       = "secret-pass"
	testActivationCode = "FAC-2024"
)

// server is the full router over in-memory stores. The clock is frozen at
// Monday 2024-03-04 12:00 UTC.
type server struct {
	t           *testing.T
	router      *gin.Engine
	issuer      *auth.Issuer
	users       *memUsers
	timetable   *memTimetable
	permissions *memPermissions
	complaints  *memComplaints
	audit       *memAudit
	store       *attendance.MemoryStore
}

func str(s string) *string { return &s }

func newServer(t *testing.T) *server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	require.NoError(t, err)
	s := &server{
		t:           t,
		issuer:      auth.NewIssuer("test", "test-key", time.Hour, 2*time.Hour),
		users:       newMemUsers(),
		timetable:   &memTimetable{},
		permissions: &memPermissions{},
		complaints:  &memComplaints{},
		audit:       &memAudit{},
		store:       attendance.NewMemoryStore(),
	}
	for _, u := range []model.User{
		{ID: "admin-1", Name: "Root", Email: "admin@example.com", Role: model.RoleAdmin, IsActive: true},
		{ID: "inc-1", Name: "Ines", Email: "incharge@example.com", Role: model.RoleIncharge, IsActive: true},
		{ID: "fac-1", Name: "Farah", Email: "fac1@example.com", Role: model.RoleFaculty, IsActive: true},
		{ID: "fac-2", Name: "Femi", Email: "fac2@example.com", Role: model.RoleFaculty, IsActive: true},
		{ID: "stu-1", Name: "Asha", Email: "asha@example.com", Role: model.RoleStudent, BadgeID: str("B1"), RegNo: "R001", IsActive: true},
		{ID: "stu-2", Name: "Bala", Email: "bala@example.com", Role: model.RoleStudent, BadgeID: str("B2"), RegNo: "R002", IsActive: true},
		{ID: "stu-3", Name: "Chen", Email: "chen@example.com", Role: model.RoleStudent, BadgeID: str("B3"), RegNo: "R003", IsActive: false},
	} {
		u.PasswordHash = string(hash)
		s.users.add(u)
	}
	s.timetable.periods = []model.Period{
		testPeriod("p-maths", "09:00", "09:50", "Maths", "fac-1"),
		testPeriod("p-phys", "10:00", "10:50", "Physics", "fac-2"),
	}

	now := time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)
	svc := attendance.NewService(attendance.Deps{
		Store:       s.store,
		Directory:   s.users,
		Timetable:   s.timetable,
		Users:       s.users,
		Permissions: s.permissions,
		Complaints:  s.complaints,
		Location:    time.UTC,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:         func() time.Time { return now },
	})
	h := New(Config{
		Service:     svc,
		Issuer:      s.issuer,
		Users:       s.users,
		Timetable:   s.timetable,
		Permissions: s.permissions,
		Complaints:  s.complaints,
		Audit:       s.audit,
		Signup:      SignupCodes{FacultyActivation: testActivationCode},
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	s.router = gin.New()
	h.Register(s.router)
	return s
}

func testPeriod(id, start, end, subject, facultyID string) model.Period {
	st, _ := model.ParseClock(start)
	en, _ := model.ParseClock(end)
	return model.Period{ID: id, DayOfWeek: time.Monday, StartTime: st, EndTime: en, Subject: subject, FacultyID: facultyID}
}

func (s *server) token(userID string) string {
	u, err := s.users.GetByID(context.Background(), userID)
	require.NoError(s.t, err)
	pair, err := s.issuer.Issue(auth.Identity{UserID: u.ID, Role: u.Role})
	require.NoError(s.t, err)
	return pair.AccessToken
}

// do sends a request as userID ("" for anonymous). body may be nil, a
// string sent verbatim, or a value encoded as JSON.
func (s *server) do(method, path, userID string, body any) *httptest.ResponseRecorder {
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(b)
	default:
		buf, err := json.Marshal(b)
		require.NoError(s.t, err)
		r = bytes.NewReader(buf)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return s.send(req, userID)
}

func (s *server) send(req *http.Request, userID string) *httptest.ResponseRecorder {
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+s.token(userID))
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}
