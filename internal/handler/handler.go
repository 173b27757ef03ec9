// Package handler exposes the attendance API over gin.
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"smartattendance/internal/attendance"
	"smartattendance/internal/auth"
	"smartattendance/internal/model"
	"smartattendance/internal/requests"
	"smartattendance/internal/timetable"
	"smartattendance/internal/users"
)

// UserStore is the account registry.
type UserStore interface {
	Create(ctx context.Context, u *model.User) error
	GetByID(ctx context.Context, id string) (model.User, error)
	GetByEmail(ctx context.Context, email string) (model.User, error)
	List(ctx context.Context, f users.Filter) ([]model.User, error)
	Update(ctx context.Context, u *model.User) error
	Delete(ctx context.Context, id string) error
	MapBadge(ctx context.Context, id, badgeID string) error
	ToggleActive(ctx context.Context, id string) (bool, error)
	ChangeRole(ctx context.Context, id, from, to string) error
	SetPassword(ctx context.Context, id, hash string) error
}

// SignupCodes gate self-registration of staff accounts. An empty code
// disables signup for the roles it guards.
type SignupCodes struct {
	FacultyActivation string
	AdminInvite       string
}

// TimetableStore manages periods.
type TimetableStore interface {
	Create(ctx context.Context, p *model.Period) error
	List(ctx context.Context, day *time.Weekday) ([]model.Period, error)
	Delete(ctx context.Context, id string) error
	PeriodsForFaculty(ctx context.Context, facultyID string) ([]model.Period, error)
}

type PermissionStore interface {
	Create(ctx context.Context, p *model.Permission) error
	ListByStudent(ctx context.Context, studentID string) ([]model.Permission, error)
	ListAll(ctx context.Context) ([]model.Permission, error)
	UpdateStatus(ctx context.Context, id, status string) error
}

type ComplaintStore interface {
	Create(ctx context.Context, c *model.Complaint) error
	ListByUser(ctx context.Context, userID string) ([]model.Complaint, error)
	ListAll(ctx context.Context) ([]model.Complaint, error)
	UpdateStatus(ctx context.Context, id, status string) error
}

// AuditLog is the read side of the audit trail.
type AuditLog interface {
	ListByStudent(ctx context.Context, studentID string) ([]model.AuditEntry, error)
}

// Config bundles the handler's collaborators.
type Config struct {
	Service      *attendance.Service
	Issuer       *auth.Issuer
	Users        UserStore
	Timetable    TimetableStore
	Permissions  PermissionStore
	Complaints   ComplaintStore
	Audit        AuditLog
	Signup       SignupCodes
	PollInterval time.Duration
	Logger       *slog.Logger
}

type Handler struct {
	svc          *attendance.Service
	issuer       *auth.Issuer
	users        UserStore
	timetable    TimetableStore
	permissions  PermissionStore
	complaints   ComplaintStore
	audit        AuditLog
	signup       SignupCodes
	pollInterval time.Duration
	log          *slog.Logger
}

func New(cfg Config) *Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	return &Handler{
		svc:          cfg.Service,
		issuer:       cfg.Issuer,
		users:        cfg.Users,
		timetable:    cfg.Timetable,
		permissions:  cfg.Permissions,
		complaints:   cfg.Complaints,
		audit:        cfg.Audit,
		signup:       cfg.Signup,
		pollInterval: cfg.PollInterval,
		log:          cfg.Logger,
	}
}

// Register mounts every route under /api.
func (h *Handler) Register(r gin.IRouter) {
	api := r.Group("/api")

	api.POST("/auth/login", h.Login)
	api.POST("/auth/signup", h.Signup)
	api.POST("/auth/refresh", h.Refresh)

	authed := api.Group("", auth.Authenticate(h.issuer))
	authed.GET("/auth/me", h.Me)
	authed.GET("/users/me", h.Me)
	authed.PUT("/users/reset-password/:id", h.ResetPassword)

	staff := auth.RequireRole(model.RoleFaculty, model.RoleIncharge, model.RoleAdmin)
	managers := auth.RequireRole(model.RoleIncharge, model.RoleAdmin)

	att := authed.Group("/attendance")
	{
		att.POST("/manual", staff, h.MarkManual)
		att.POST("/hardware", managers, h.IngestHardware)
		att.GET("/today", h.TodayAttendance)
		att.GET("/live", staff, h.LiveStats)
		att.GET("/audit", managers, h.AuditTrail)
	}

	rep := authed.Group("/reports")
	{
		rep.GET("/attendance-percent", h.AttendancePercent)
		rep.GET("/attendance-history", h.AttendanceHistory)
		rep.GET("/subject-wise", h.SubjectWise)
		rep.GET("/faculty-stats", staff, h.FacultyStats)
		rep.GET("/overall-stats", managers, h.OverallStats)
	}

	us := authed.Group("/users", managers)
	{
		us.GET("", h.ListUsers)
		us.POST("", h.CreateUser)
		us.PUT("/:id", h.UpdateUser)
		us.DELETE("/:id", h.DeleteUser)
		us.PUT("/map-uid/:id", h.MapBadge)
		us.POST("/toggle-status/:id", h.ToggleStatus)
		us.POST("/promote/:id", auth.RequireRole(model.RoleAdmin), h.Promote)
		us.POST("/demote/:id", auth.RequireRole(model.RoleAdmin), h.Demote)
	}

	tt := authed.Group("/timetable")
	{
		tt.GET("", h.ListPeriods)
		tt.GET("/my-schedule", auth.RequireRole(model.RoleFaculty), h.MySchedule)
		tt.POST("", managers, h.CreatePeriod)
		tt.DELETE("/:id", managers, h.DeletePeriod)
	}

	perm := authed.Group("/permissions")
	{
		perm.POST("", auth.RequireRole(model.RoleStudent), h.CreatePermission)
		perm.GET("/mine", h.MyPermissions)
		perm.GET("", staff, h.ListPermissions)
		perm.PUT("/:id", staff, h.UpdatePermission)
	}

	comp := authed.Group("/complaints")
	{
		comp.POST("", h.CreateComplaint)
		comp.GET("/mine", h.MyComplaints)
		comp.GET("", managers, h.ListComplaints)
		comp.PUT("/:id", managers, h.UpdateComplaint)
	}
}

// fail maps domain errors onto HTTP statuses.
func (h *Handler) fail(c *gin.Context, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		h.log.Error("request failed", "method", c.Request.Method, "path", c.FullPath(), "err", err)
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, attendance.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, attendance.ErrUnknownStudent),
		errors.Is(err, attendance.ErrUnknownPeriod),
		errors.Is(err, users.ErrNotFound),
		errors.Is(err, timetable.ErrNotFound),
		errors.Is(err, requests.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, users.ErrDuplicate),
		errors.Is(err, users.ErrInUse),
		errors.Is(err, users.ErrRole):
		return http.StatusConflict
	case errors.Is(err, attendance.ErrMalformedRow),
		errors.Is(err, attendance.ErrInvalidStatus),
		errors.Is(err, attendance.ErrInvalidRecord),
		errors.Is(err, attendance.ErrUnknownBadge),
		errors.Is(err, attendance.ErrInactiveStudent),
		errors.Is(err, timetable.ErrInvalidPeriod),
		errors.Is(err, timetable.ErrUnknownFaculty),
		errors.Is(err, requests.ErrInvalid),
		errors.Is(err, requests.ErrInvalidStatus),
		errors.Is(err, requests.ErrUnknownUser):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}

// dateRange reads the optional from/to query parameters.
func dateRange(c *gin.Context) (model.DateRange, bool) {
	var dr model.DateRange
	for _, p := range []struct {
		key string
		dst *model.Date
	}{{"from", &dr.From}, {"to", &dr.To}} {
		v := c.Query(p.key)
		if v == "" {
			continue
		}
		d, err := model.ParseDate(v)
		if err != nil {
			badRequest(c, "invalid "+p.key+" date, want YYYY-MM-DD")
			return model.DateRange{}, false
		}
		*p.dst = d
	}
	if !dr.From.IsZero() && !dr.To.IsZero() && dr.To.Before(dr.From) {
		badRequest(c, "to is before from")
		return model.DateRange{}, false
	}
	return dr, true
}
