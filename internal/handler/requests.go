package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"smartattendance/internal/auth"
	"smartattendance/internal/model"
)

type statusRequest struct {
	Status string `json:"status" binding:"required"`
}

func (h *Handler) CreatePermission(c *gin.Context) {
	var req struct {
		Reason    string     `json:"reason" binding:"required"`
		StartDate model.Date `json:"start_date"`
		EndDate   model.Date `json:"end_date"`
		FacultyID string     `json:"faculty_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	p := &model.Permission{
		StudentID: auth.FromContext(c).UserID,
		FacultyID: req.FacultyID,
		Reason:    req.Reason,
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
	}
	if err := h.permissions.Create(c.Request.Context(), p); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (h *Handler) MyPermissions(c *gin.Context) {
	list, err := h.permissions.ListByStudent(c.Request.Context(), auth.FromContext(c).UserID)
	h.respondPermissions(c, list, err)
}

func (h *Handler) ListPermissions(c *gin.Context) {
	list, err := h.permissions.ListAll(c.Request.Context())
	h.respondPermissions(c, list, err)
}

func (h *Handler) respondPermissions(c *gin.Context, list []model.Permission, err error) {
	if err != nil {
		h.fail(c, err)
		return
	}
	if list == nil {
		list = []model.Permission{}
	}
	c.JSON(http.StatusOK, gin.H{"permissions": list})
}

func (h *Handler) UpdatePermission(c *gin.Context) {
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := h.permissions.UpdateStatus(c.Request.Context(), c.Param("id"), req.Status); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "status": req.Status})
}

func (h *Handler) CreateComplaint(c *gin.Context) {
	var req struct {
		Message string `json:"message" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	cm := &model.Complaint{UserID: auth.FromContext(c).UserID, Message: req.Message}
	if err := h.complaints.Create(c.Request.Context(), cm); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, cm)
}

func (h *Handler) MyComplaints(c *gin.Context) {
	list, err := h.complaints.ListByUser(c.Request.Context(), auth.FromContext(c).UserID)
	h.respondComplaints(c, list, err)
}

func (h *Handler) ListComplaints(c *gin.Context) {
	list, err := h.complaints.ListAll(c.Request.Context())
	h.respondComplaints(c, list, err)
}

func (h *Handler) respondComplaints(c *gin.Context, list []model.Complaint, err error) {
	if err != nil {
		h.fail(c, err)
		return
	}
	if list == nil {
		list = []model.Complaint{}
	}
	c.JSON(http.StatusOK, gin.H{"complaints": list})
}

func (h *Handler) UpdateComplaint(c *gin.Context) {
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := h.complaints.UpdateStatus(c.Request.Context(), c.Param("id"), req.Status); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "status": req.Status})
}
