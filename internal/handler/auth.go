package handler

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"smartattendance/internal/auth"
	"smartattendance/internal/model"
	"smartattendance/internal/users"
)

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

func (h *Handler) issueTokens(c *gin.Context, u model.User, status int) {
	tokens, err := h.issuer.Issue(auth.Identity{UserID: u.ID, Role: u.Role})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(status, gin.H{
		"access_token":  tokens.AccessToken,
		"refresh_token": tokens.RefreshToken,
		"expires_at":    tokens.AccessExp.Unix(),
		"user":          u,
	})
}

// Login exchanges email and password for a token pair.
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	u, err := h.users.GetByEmail(c.Request.Context(), req.Email)
	if errors.Is(err, users.ErrNotFound) || (err == nil && !auth.CheckPassword(u.PasswordHash, req.Password)) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	if !u.IsActive {
		c.JSON(http.StatusForbidden, gin.H{"error": "account disabled"})
		return
	}
	h.issueTokens(c, u, http.StatusOK)
}

// Refresh trades a refresh token for a new pair.
func (h *Handler) Refresh(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	id, err := h.issuer.ParseRefresh(req.RefreshToken)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	u, err := h.users.GetByID(c.Request.Context(), id.UserID)
	if errors.Is(err, users.ErrNotFound) || (err == nil && !u.IsActive) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	h.issueTokens(c, u, http.StatusOK)
}

func (h *Handler) Me(c *gin.Context) {
	u, err := h.users.GetByID(c.Request.Context(), auth.FromContext(c).UserID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

type signupRequest struct {
	Name           string `json:"name" binding:"required"`
	Email          string `json:"email" binding:"required,email"`
	Password       string `json:"password" binding:"required,min=6"`
	Role           string `json:"role"`
	InviteCode     string `json:"inviteCode"`
	ActivationCode string `json:"activationCode"`
}

// Signup registers a new account and logs it in. Students sign up freely;
// faculty need the activation code and incharge or admin the invite code.
func (h *Handler) Signup(c *gin.Context) {
	var req signupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if req.Role == "" {
		req.Role = model.RoleStudent
	}
	if !model.ValidRole(req.Role) {
		badRequest(c, "unknown role")
		return
	}
	var want, given string
	switch req.Role {
	case model.RoleFaculty:
		want, given = h.signup.FacultyActivation, req.ActivationCode
	case model.RoleIncharge, model.RoleAdmin:
		want, given = h.signup.AdminInvite, req.InviteCode
	}
	if req.Role != model.RoleStudent && (want == "" || subtle.ConstantTimeCompare([]byte(want), []byte(given)) != 1) {
		c.JSON(http.StatusForbidden, gin.H{"error": "invalid code for " + req.Role + " signup"})
		return
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		h.fail(c, err)
		return
	}
	u := model.User{
		Name:         strings.TrimSpace(req.Name),
		Email:        req.Email,
		PasswordHash: hash,
		Role:         req.Role,
		IsActive:     true,
	}
	if err := h.users.Create(c.Request.Context(), &u); err != nil {
		h.fail(c, err)
		return
	}
	h.log.Info("user signed up", "user_id", u.ID, "role", u.Role)
	h.issueTokens(c, u, http.StatusCreated)
}
