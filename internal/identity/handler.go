package identity

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"libris-backend/internal/platform/auth"
)

type IdentityService interface {
	Register(ctx context.Context, role auth.Role, req RegisterRequest) (*IdentityResponse, error)
	Login(ctx context.Context, role auth.Role, req LoginRequest) (string, error)
	List(ctx context.Context, role auth.Role) ([]IdentityResponse, error)
	GetByID(ctx context.Context, role auth.Role, id int64) (*IdentityResponse, error)
	Update(ctx context.Context, role auth.Role, id int64, req UpdateAccountRequest) (*IdentityResponse, error)
	Delete(ctx context.Context, role auth.Role, id int64) error
}

type Handler struct{ svc IdentityService }

func RegisterRoutes(r gin.IRouter, svc IdentityService, signer *auth.Signer) {
	h := &Handler{svc: svc}

	ag := r.Group("/auth")
	ag.POST("/staff/register", h.register(auth.RoleStaff))
	ag.POST("/staff/login", h.login(auth.RoleStaff))
	ag.POST("/borrower/register", h.register(auth.RoleBorrower))
	ag.POST("/borrower/login", h.login(auth.RoleBorrower))

	// アカウント管理はどちらのテーブルも staff のみ
	sg := r.Group("/staff", auth.RequireAuth(signer), auth.RequireRole(auth.RoleStaff))
	sg.GET("", h.list(auth.RoleStaff))
	sg.GET("/:id", h.getByID(auth.RoleStaff))
	sg.PUT("/:id", h.update(auth.RoleStaff))
	sg.DELETE("/:id", h.remove(auth.RoleStaff))

	bg := r.Group("/borrowers", auth.RequireAuth(signer), auth.RequireRole(auth.RoleStaff))
	bg.GET("", h.list(auth.RoleBorrower))
	bg.GET("/:id", h.getByID(auth.RoleBorrower))
	bg.PUT("/:id", h.update(auth.RoleBorrower))
	bg.DELETE("/:id", h.remove(auth.RoleBorrower))
}

// ---------- handlers ----------

// register godoc
// @Summary  Register a staff or borrower account
// @Tags     auth
// @Accept   json
// @Produce  json
// @Param    body body RegisterRequest true "account"
// @Success  201 {object} map[string]any
// @Router   /auth/{role}/register [post]
func (h *Handler) register(role auth.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RegisterRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, "invalid json or missing required fields")
			return
		}

		res, err := h.svc.Register(c.Request.Context(), role, req)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"data": res})
	}
}

// login godoc
// @Summary  Authenticate and obtain a bearer token
// @Tags     auth
// @Accept   json
// @Produce  json
// @Param    body body LoginRequest true "credentials"
// @Success  200 {object} map[string]any
// @Router   /auth/{role}/login [post]
func (h *Handler) login(role auth.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, "invalid json or missing required fields")
			return
		}

		token, err := h.svc.Login(c.Request.Context(), role, req)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"token": token})
	}
}

func (h *Handler) list(role auth.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := h.svc.List(c.Request.Context(), role)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": res})
	}
}

func (h *Handler) getByID(role auth.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c)
		if !ok {
			return
		}
		res, err := h.svc.GetByID(c.Request.Context(), role, id)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": res})
	}
}

func (h *Handler) update(role auth.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c)
		if !ok {
			return
		}
		var req UpdateAccountRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, "invalid json")
			return
		}
		res, err := h.svc.Update(c.Request.Context(), role, id, req)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": res})
	}
}

func (h *Handler) remove(role auth.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c)
		if !ok {
			return
		}
		if err := h.svc.Delete(c.Request.Context(), role, id); err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "deleted"})
	}
}

// ---------- helpers ----------

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		fail(c, http.StatusBadRequest, "id must be a positive number")
		return 0, false
	}
	return id, true
}

func fail(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"success": false, "message": msg})
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrInvalidInput):
		fail(c, http.StatusBadRequest, "name must be 2-100 chars and password at least 8 chars")
	case errors.Is(err, ErrInvalidCredentials):
		fail(c, http.StatusUnauthorized, err.Error())
	case errors.Is(err, ErrNotFound):
		fail(c, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrEmailTaken):
		fail(c, http.StatusConflict, err.Error())
	default:
		// 生のDBエラー等は外に出さない
		log.Printf("[ERROR] identity: %v", err)
		fail(c, http.StatusInternalServerError, "internal error")
	}
}
