package borrowings

import (
	"bytes"
	"context"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"libris-backend/internal/platform/auth"
)

type BorrowingService interface {
	Checkout(ctx context.Context, req CheckoutRequest) (*BorrowingResponse, error)
	Return(ctx context.Context, bookID, borrowerID int64) (*BorrowingResponse, error)
	ListAll(ctx context.Context) ([]BorrowingResponse, error)
	ListOverdue(ctx context.Context) ([]BorrowingResponse, error)
	GetByKey(ctx context.Context, key string) (*BorrowingResponse, error)
	ListByBorrower(ctx context.Context, borrowerID int64) ([]BorrowingResponse, error)
	ListByBook(ctx context.Context, bookID int64) ([]BorrowingResponse, error)
	ExportCSV(ctx context.Context, w io.Writer, overdueOnly bool, encoding string) (string, error)
}

type Handler struct{ svc BorrowingService }

func RegisterRoutes(r gin.IRouter, svc BorrowingService, signer *auth.Signer) {
	h := &Handler{svc: svc}

	authed := auth.RequireAuth(signer)
	staffOnly := auth.RequireRole(auth.RoleStaff)

	g := r.Group("/borrowings")
	g.POST("", authed, auth.RequireRole(auth.RoleStaff, auth.RoleBorrower), h.Checkout)
	g.POST("/return", authed, h.Return)
	g.GET("", authed, staffOnly, h.ListAll)
	g.GET("/overdue", authed, staffOnly, h.ListOverdue)
	g.GET("/export", authed, staffOnly, h.exportCSV(false))
	g.GET("/export/overdue", authed, staffOnly, h.exportCSV(true))
	g.GET("/:id", authed, staffOnly, h.GetByKey)

	// borrower 本人の履歴
	r.GET("/borrowers/borrowings", authed, auth.RequireRole(auth.RoleBorrower), h.OwnHistory)

	// 書籍単位の貸出履歴（カタログ参照系と同じく認証不要）
	r.GET("/books/:id/borrowings", h.ListByBook)
}

// borrowerIDFor: borrower トークンなら常にトークンのIDを使う。
// staff はリクエストボディで対象の借り手を指定する。
func borrowerIDFor(c *gin.Context, bodyBorrowerID int64) (int64, bool) {
	id, ok := auth.IdentityFrom(c)
	if !ok {
		fail(c, http.StatusUnauthorized, "missing identity")
		return 0, false
	}
	if id.Role == auth.RoleBorrower {
		return id.ID, true
	}
	if bodyBorrowerID <= 0 {
		fail(c, http.StatusBadRequest, "borrowerId is required for staff requests")
		return 0, false
	}
	return bodyBorrowerID, true
}

// ---------- handlers ----------

// Checkout godoc
// @Summary  Check out a book to a borrower
// @Tags     borrowings
// @Accept   json
// @Produce  json
// @Param    body body CheckoutRequest true "checkout"
// @Success  201 {object} map[string]any
// @Security BearerAuth
// @Router   /borrowings [post]
func (h *Handler) Checkout(c *gin.Context) {
	var req CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid json or missing required fields")
		return
	}

	borrowerID, ok := borrowerIDFor(c, req.BorrowerID)
	if !ok {
		return
	}
	req.BorrowerID = borrowerID

	res, err := h.svc.Checkout(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Header("Location", "/borrowings/"+res.ULID)
	c.JSON(http.StatusCreated, gin.H{"data": res})
}

// Return godoc
// @Summary  Mark a borrowed book as returned
// @Tags     borrowings
// @Accept   json
// @Produce  json
// @Param    body body ReturnRequest true "return"
// @Success  200 {object} map[string]any
// @Security BearerAuth
// @Router   /borrowings/return [post]
func (h *Handler) Return(c *gin.Context) {
	var req ReturnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid json or missing required fields")
		return
	}

	borrowerID, ok := borrowerIDFor(c, req.BorrowerID)
	if !ok {
		return
	}

	res, err := h.svc.Return(c.Request.Context(), req.BookID, borrowerID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "book marked as returned", "data": res})
}

func (h *Handler) ListAll(c *gin.Context) {
	res, err := h.svc.ListAll(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": res})
}

func (h *Handler) ListOverdue(c *gin.Context) {
	res, err := h.svc.ListOverdue(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": res})
}

// GetByKey: 数値ID・ULIDどちらでも引ける
func (h *Handler) GetByKey(c *gin.Context) {
	res, err := h.svc.GetByKey(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": res})
}

func (h *Handler) OwnHistory(c *gin.Context) {
	id, ok := auth.IdentityFrom(c)
	if !ok {
		fail(c, http.StatusUnauthorized, "missing identity")
		return
	}
	res, err := h.svc.ListByBorrower(c.Request.Context(), id.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": res})
}

func (h *Handler) ListByBook(c *gin.Context) {
	bookID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || bookID <= 0 {
		fail(c, http.StatusBadRequest, "id must be a positive number")
		return
	}
	res, err := h.svc.ListByBook(c.Request.Context(), bookID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": res})
}

func (h *Handler) exportCSV(overdueOnly bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		enc := c.DefaultQuery("encoding", "utf-8")

		// ヘッダ確定前に全部書き切りたいので一旦バッファへ
		var buf bytes.Buffer
		filename, err := h.svc.ExportCSV(c.Request.Context(), &buf, overdueOnly, enc)
		if err != nil {
			writeError(c, err)
			return
		}

		contentType := "text/csv; charset=utf-8"
		if enc != "utf-8" && enc != "utf8" && enc != "" {
			contentType = "text/csv; charset=shift_jis"
		}
		c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
		c.Data(http.StatusOK, contentType, buf.Bytes())
	}
}

// ---------- helpers ----------

func fail(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"success": false, "message": msg})
}

func writeError(c *gin.Context, err error) {
	status := toHTTPStatus(err)
	if status == http.StatusInternalServerError {
		log.Printf("[ERROR] borrowings: %v", err)
		fail(c, status, "internal error")
		return
	}
	if api, ok := err.(*APIError); ok {
		fail(c, status, api.Message)
		return
	}
	fail(c, status, err.Error())
}
