package books

import (
	"context"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"libris-backend/internal/platform/auth"
)

type CatalogService interface {
	Create(ctx context.Context, req CreateBookRequest) (*BookResponse, error)
	List(ctx context.Context) ([]BookResponse, error)
	GetByID(ctx context.Context, id int64) (*BookResponse, error)
	Search(ctx context.Context, query string) ([]BookResponse, error)
	Update(ctx context.Context, id int64, req UpdateBookRequest) (*BookResponse, error)
	Delete(ctx context.Context, id int64) error
}

type Handler struct{ svc CatalogService }

func RegisterRoutes(r gin.IRouter, svc CatalogService, signer *auth.Signer) {
	h := &Handler{svc: svc}

	g := r.Group("/books")

	// 参照系は認証不要
	g.GET("", h.List)
	g.GET("/search", h.Search)
	g.GET("/:id", h.GetByID)

	// 更新系は staff のみ
	staffOnly := []gin.HandlerFunc{auth.RequireAuth(signer), auth.RequireRole(auth.RoleStaff)}
	g.POST("", append(staffOnly, h.Create)...)
	g.PUT("/:id", append(staffOnly, h.Update)...)
	g.DELETE("/:id", append(staffOnly, h.Delete)...)
}

// ---------- handlers ----------

// Create godoc
// @Summary  Add a book to the catalog
// @Tags     books
// @Accept   json
// @Produce  json
// @Param    body body CreateBookRequest true "book"
// @Success  201 {object} map[string]any
// @Security BearerAuth
// @Router   /books [post]
func (h *Handler) Create(c *gin.Context) {
	var req CreateBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid json or missing required fields")
		return
	}
	res, err := h.svc.Create(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Header("Location", "/books/"+strconv.FormatInt(res.ID, 10))
	c.JSON(http.StatusCreated, gin.H{"data": res})
}

func (h *Handler) List(c *gin.Context) {
	res, err := h.svc.List(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": res})
}

func (h *Handler) GetByID(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	res, err := h.svc.GetByID(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": res})
}

// Search godoc
// @Summary  Substring search over title, author and ISBN
// @Tags     books
// @Produce  json
// @Param    q query string true "search string"
// @Success  200 {object} map[string]any
// @Router   /books/search [get]
func (h *Handler) Search(c *gin.Context) {
	res, err := h.svc.Search(c.Request.Context(), c.Query("q"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": res})
}

func (h *Handler) Update(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req UpdateBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid json")
		return
	}
	res, err := h.svc.Update(c.Request.Context(), id, req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": res})
}

func (h *Handler) Delete(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.svc.Delete(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "deleted"})
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
	status := toHTTPStatus(err)
	if status == http.StatusInternalServerError {
		log.Printf("[ERROR] books: %v", err)
		fail(c, status, "internal error")
		return
	}
	if api, ok := err.(*APIError); ok {
		fail(c, status, api.Message)
		return
	}
	fail(c, status, err.Error())
}
