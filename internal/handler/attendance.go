package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"smartattendance/internal/attendance"
	"smartattendance/internal/auth"
	"smartattendance/internal/model"
)

type manualRequest struct {
	StudentID string     `json:"student_id" binding:"required"`
	PeriodID  string     `json:"period_id" binding:"required"`
	Status    string     `json:"status" binding:"required"`
	Date      model.Date `json:"date"`
}

func (h *Handler) MarkManual(c *gin.Context) {
	var req manualRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	rec, err := h.svc.MarkManual(c.Request.Context(), auth.FromContext(c), attendance.ManualMark{
		StudentID: req.StudentID,
		PeriodID:  req.PeriodID,
		Status:    req.Status,
		Date:      req.Date,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// IngestHardware accepts a multipart CSV under "file" or a JSON body of rows.
// Row failures are reported in the summary; the request itself succeeds.
func (h *Handler) IngestHardware(c *gin.Context) {
	var (
		res attendance.BatchResult
		err error
	)
	id := auth.FromContext(c)
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		file, _, ferr := c.Request.FormFile("file")
		if ferr != nil {
			badRequest(c, "file field required")
			return
		}
		defer file.Close()
		res, err = h.svc.IngestHardwareCSV(c.Request.Context(), id, file)
	} else {
		var body struct {
			Rows []attendance.HardwareRow `json:"rows" binding:"required"`
		}
		if berr := c.ShouldBindJSON(&body); berr != nil {
			badRequest(c, berr.Error())
			return
		}
		res, err = h.svc.IngestHardwareRows(c.Request.Context(), id, body.Rows)
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) TodayAttendance(c *gin.Context) {
	recs, err := h.svc.TodayAttendance(c.Request.Context(), auth.FromContext(c), c.Query("period_id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"date": h.svc.Today(), "records": recs})
}

// LiveStats is polled by dashboards; X-Poll-Interval tells them how often.
func (h *Handler) LiveStats(c *gin.Context) {
	date := h.svc.Today()
	if v := c.Query("date"); v != "" {
		d, err := model.ParseDate(v)
		if err != nil {
			badRequest(c, "invalid date, want YYYY-MM-DD")
			return
		}
		date = d
	}
	stats, err := h.svc.LiveStats(c.Request.Context(), auth.FromContext(c), date)
	if err != nil {
		h.fail(c, err)
		return
	}
	if stats == nil {
		stats = []model.LiveStat{}
	}
	c.Header("X-Poll-Interval", strconv.Itoa(int(h.pollInterval.Seconds())))
	c.JSON(http.StatusOK, gin.H{"date": date, "stats": stats})
}

func (h *Handler) AuditTrail(c *gin.Context) {
	studentID := c.Query("student_id")
	if studentID == "" {
		badRequest(c, "student_id required")
		return
	}
	entries, err := h.audit.ListByStudent(c.Request.Context(), studentID)
	if err != nil {
		h.fail(c, err)
		return
	}
	if entries == nil {
		entries = []model.AuditEntry{}
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}
