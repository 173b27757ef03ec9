package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"smartattendance/internal/auth"
	"smartattendance/internal/model"
	"smartattendance/internal/users"
)

type createPeriodRequest struct {
	DayOfWeek    string      `json:"day_of_week" binding:"required"`
	StartTime    model.Clock `json:"start_time"`
	EndTime      model.Clock `json:"end_time"`
	Subject      string      `json:"subject" binding:"required"`
	FacultyEmail string      `json:"faculty_email" binding:"required,email"`
	ClassName    string      `json:"class_name"`
}

// ListPeriods returns the timetable, optionally for ?day=.
func (h *Handler) ListPeriods(c *gin.Context) {
	var day *time.Weekday
	if v := c.Query("day"); v != "" {
		d, err := model.ParseWeekday(v)
		if err != nil {
			badRequest(c, err.Error())
			return
		}
		day = &d
	}
	periods, err := h.timetable.List(c.Request.Context(), day)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"periods": nonNilPeriods(periods)})
}

func (h *Handler) MySchedule(c *gin.Context) {
	periods, err := h.timetable.PeriodsForFaculty(c.Request.Context(), auth.FromContext(c).UserID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"periods": nonNilPeriods(periods)})
}

// CreatePeriod adds a period; the faculty member is looked up by email.
func (h *Handler) CreatePeriod(c *gin.Context) {
	var req createPeriodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	day, err := model.ParseWeekday(req.DayOfWeek)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	fac, err := h.users.GetByEmail(c.Request.Context(), req.FacultyEmail)
	if errors.Is(err, users.ErrNotFound) || (err == nil && fac.Role != model.RoleFaculty) {
		badRequest(c, "faculty not found: "+req.FacultyEmail)
		return
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	p := &model.Period{
		DayOfWeek: day,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		Subject:   req.Subject,
		FacultyID: fac.ID,
		ClassName: req.ClassName,
	}
	if err := h.timetable.Create(c.Request.Context(), p); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (h *Handler) DeletePeriod(c *gin.Context) {
	if err := h.timetable.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func nonNilPeriods(ps []model.Period) []model.Period {
	if ps == nil {
		return []model.Period{}
	}
	return ps
}
