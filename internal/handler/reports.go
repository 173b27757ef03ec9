package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"smartattendance/internal/auth"
)

func (h *Handler) AttendancePercent(c *gin.Context) {
	dr, ok := dateRange(c)
	if !ok {
		return
	}
	p, err := h.svc.AttendancePercent(c.Request.Context(), auth.FromContext(c), c.Query("studentId"), dr)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) AttendanceHistory(c *gin.Context) {
	dr, ok := dateRange(c)
	if !ok {
		return
	}
	recs, err := h.svc.History(c.Request.Context(), auth.FromContext(c), c.Query("studentId"), dr)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": recs})
}

func (h *Handler) SubjectWise(c *gin.Context) {
	dr, ok := dateRange(c)
	if !ok {
		return
	}
	stats, err := h.svc.SubjectWise(c.Request.Context(), auth.FromContext(c), c.Query("studentId"), dr)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"subjects": stats})
}

func (h *Handler) FacultyStats(c *gin.Context) {
	dr, ok := dateRange(c)
	if !ok {
		return
	}
	stats, err := h.svc.FacultyStats(c.Request.Context(), auth.FromContext(c), c.Query("facultyId"), dr)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"periods": stats})
}

func (h *Handler) OverallStats(c *gin.Context) {
	stats, err := h.svc.OverallStats(c.Request.Context(), auth.FromContext(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
