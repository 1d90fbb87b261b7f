package borrowings

import "time"

// ===== Requests =====

// 貸出リクエスト。borrowerId は staff が代理貸出する場合のみ必須で、
// borrower 自身のトークンで呼ばれた場合はトークン側のIDで常に上書きされる。
type CheckoutRequest struct {
	BookID     int64  `json:"bookId" binding:"required"`
	BorrowerID int64  `json:"borrowerId"`
	DueDate    string `json:"dueDate" binding:"required"` // "2006-01-02" 形式
}

// 返却リクエスト。borrowerId の扱いは CheckoutRequest と同じ。
type ReturnRequest struct {
	BookID     int64 `json:"bookId" binding:"required"`
	BorrowerID int64 `json:"borrowerId"`
}

// ===== Responses =====

type BookRefResponse struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
}

type BorrowerRefResponse struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type BorrowingResponse struct {
	ID           int64                `json:"id"`
	ULID         string               `json:"ulid"`
	BookID       int64                `json:"bookId"`
	BorrowerID   int64                `json:"borrowerId"`
	BorrowDate   time.Time            `json:"borrowDate"`
	DueDate      string               `json:"dueDate"` // 日付のみ
	ReturnedDate *time.Time           `json:"returnedDate"`
	Book         *BookRefResponse     `json:"book,omitempty"`
	Borrower     *BorrowerRefResponse `json:"borrower,omitempty"`
}

func toResponse(b *Borrowing) BorrowingResponse {
	resp := BorrowingResponse{
		ID:         b.ID,
		ULID:       b.ULID,
		BookID:     b.BookID,
		BorrowerID: b.BorrowerID,
		BorrowDate: b.BorrowedAt,
		DueDate:    b.DueOn.Format(DateLayout),
	}
	if b.ReturnedAt.Valid {
		t := b.ReturnedAt.Time
		resp.ReturnedDate = &t
	}
	return resp
}

func toDetailResponse(d *BorrowingDetail) BorrowingResponse {
	resp := toResponse(&d.Borrowing)
	resp.Book = &BookRefResponse{ID: d.Book.ID, Title: d.Book.Title}
	resp.Borrower = &BorrowerRefResponse{ID: d.Borrower.ID, Name: d.Borrower.Name, Email: d.Borrower.Email}
	return resp
}
