package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"smartattendance/internal/auth"
	"smartattendance/internal/model"
	"smartattendance/internal/users"
)

type createUserRequest struct {
	Name       string `json:"name" binding:"required"`
	Email      string `json:"email" binding:"required,email"`
	Password   string `json:"password" binding:"required,min=6"`
	Role       string `json:"role" binding:"required"`
	BadgeID    string `json:"uid"`
	RegNo      string `json:"reg_no"`
	Department string `json:"department"`
	ClassName  string `json:"class_name"`
}

func (h *Handler) ListUsers(c *gin.Context) {
	list, err := h.users.List(c.Request.Context(), users.Filter{
		Role:       c.Query("role"),
		Department: c.Query("department"),
		ClassName:  c.Query("class_name"),
		Search:     strings.TrimSpace(c.Query("search")),
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	if list == nil {
		list = []model.User{}
	}
	c.JSON(http.StatusOK, gin.H{"users": list})
}

// CreateUser registers an account. Only admins create staff with elevated roles.
func (h *Handler) CreateUser(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if !model.ValidRole(req.Role) {
		badRequest(c, "unknown role")
		return
	}
	caller := auth.FromContext(c)
	if !mayGrant(caller, req.Role) {
		c.JSON(http.StatusForbidden, gin.H{"error": "only admins can create " + req.Role + " accounts"})
		return
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		h.fail(c, err)
		return
	}
	u := &model.User{
		Name:         strings.TrimSpace(req.Name),
		Email:        req.Email,
		PasswordHash: hash,
		Role:         req.Role,
		RegNo:        req.RegNo,
		Department:   req.Department,
		ClassName:    req.ClassName,
		IsActive:     true,
	}
	if b := strings.TrimSpace(req.BadgeID); b != "" {
		u.BadgeID = &b
	}
	if err := h.users.Create(c.Request.Context(), u); err != nil {
		h.fail(c, err)
		return
	}
	h.log.Info("user created", "user_id", u.ID, "role", u.Role, "by", caller.UserID)
	c.JSON(http.StatusCreated, u)
}

// MapBadge assigns the hardware badge uid to a user.
func (h *Handler) MapBadge(c *gin.Context) {
	var req struct {
		UID string `json:"uid"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := h.users.MapBadge(c.Request.Context(), c.Param("id"), req.UID); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "uid": strings.TrimSpace(req.UID)})
}

func (h *Handler) ToggleStatus(c *gin.Context) {
	active, err := h.users.ToggleActive(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "is_active": active})
}

// elevated roles are granted and managed by admins only.
func elevated(role string) bool {
	return role == model.RoleAdmin || role == model.RoleIncharge
}

func mayGrant(caller auth.Identity, role string) bool {
	return !elevated(role) || caller.Role == model.RoleAdmin
}

// target loads the user named by the :id param and checks the caller may
// manage it. It writes the response and returns false otherwise.
func (h *Handler) target(c *gin.Context) (model.User, bool) {
	u, err := h.users.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return model.User{}, false
	}
	if !mayGrant(auth.FromContext(c), u.Role) {
		c.JSON(http.StatusForbidden, gin.H{"error": "only admins can manage " + u.Role + " accounts"})
		return model.User{}, false
	}
	return u, true
}

type updateUserRequest struct {
	Name       *string `json:"name"`
	Email      *string `json:"email" binding:"omitempty,email"`
	Role       *string `json:"role"`
	BadgeID    *string `json:"uid"`
	RegNo      *string `json:"reg_no"`
	Department *string `json:"department"`
	ClassName  *string `json:"class_name"`
}

// UpdateUser changes profile fields. Absent fields keep their value; an
// empty uid clears the badge.
func (h *Handler) UpdateUser(c *gin.Context) {
	var req updateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	u, ok := h.target(c)
	if !ok {
		return
	}
	caller := auth.FromContext(c)
	if req.Role != nil && *req.Role != u.Role {
		if !model.ValidRole(*req.Role) {
			badRequest(c, "unknown role")
			return
		}
		if !mayGrant(caller, *req.Role) {
			c.JSON(http.StatusForbidden, gin.H{"error": "only admins can grant " + *req.Role})
			return
		}
		u.Role = *req.Role
	}
	if req.Name != nil {
		if name := strings.TrimSpace(*req.Name); name != "" {
			u.Name = name
		}
	}
	if req.Email != nil && *req.Email != "" {
		u.Email = *req.Email
	}
	if req.BadgeID != nil {
		u.BadgeID = nil
		if b := strings.TrimSpace(*req.BadgeID); b != "" {
			u.BadgeID = &b
		}
	}
	for _, f := range []struct {
		src *string
		dst *string
	}{{req.RegNo, &u.RegNo}, {req.Department, &u.Department}, {req.ClassName, &u.ClassName}} {
		if f.src != nil {
			*f.dst = strings.TrimSpace(*f.src)
		}
	}
	if err := h.users.Update(c.Request.Context(), &u); err != nil {
		h.fail(c, err)
		return
	}
	h.log.Info("user updated", "user_id", u.ID, "by", caller.UserID)
	c.JSON(http.StatusOK, u)
}

func (h *Handler) DeleteUser(c *gin.Context) {
	caller := auth.FromContext(c)
	if c.Param("id") == caller.UserID {
		badRequest(c, "cannot delete your own account")
		return
	}
	u, ok := h.target(c)
	if !ok {
		return
	}
	if err := h.users.Delete(c.Request.Context(), u.ID); err != nil {
		h.fail(c, err)
		return
	}
	h.log.Info("user deleted", "user_id", u.ID, "by", caller.UserID)
	c.JSON(http.StatusOK, gin.H{"id": u.ID, "deleted": true})
}

// ResetPassword sets a new password. Users may change their own; incharge
// and admin may reset other accounts they manage.
func (h *Handler) ResetPassword(c *gin.Context) {
	var req struct {
		Password string `json:"password" binding:"required,min=6"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	caller := auth.FromContext(c)
	id := c.Param("id")
	if id != caller.UserID {
		if !elevated(caller.Role) {
			c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		if _, ok := h.target(c); !ok {
			return
		}
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		h.fail(c, err)
		return
	}
	if err := h.users.SetPassword(c.Request.Context(), id, hash); err != nil {
		h.fail(c, err)
		return
	}
	h.log.Info("password reset", "user_id", id, "by", caller.UserID)
	c.JSON(http.StatusOK, gin.H{"id": id, "message": "password updated"})
}

// Promote makes a faculty member a class incharge.
func (h *Handler) Promote(c *gin.Context) {
	h.changeRole(c, model.RoleFaculty, model.RoleIncharge)
}

// Demote returns an incharge to faculty.
func (h *Handler) Demote(c *gin.Context) {
	h.changeRole(c, model.RoleIncharge, model.RoleFaculty)
}

func (h *Handler) changeRole(c *gin.Context, from, to string) {
	id := c.Param("id")
	if err := h.users.ChangeRole(c.Request.Context(), id, from, to); err != nil {
		h.fail(c, err)
		return
	}
	h.log.Info("role changed", "user_id", id, "from", from, "to", to, "by", auth.FromContext(c).UserID)
	c.JSON(http.StatusOK, gin.H{"id": id, "role": to})
}
