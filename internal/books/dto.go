package books

import "time"

// ===== Requests =====

type CreateBookRequest struct {
	Title           string `json:"title" binding:"required"`
	Author          string `json:"author" binding:"required"`
	ISBN            string `json:"isbn" binding:"required"`
	AvailableCopies *int   `json:"availableCopies" binding:"required"`
	ShelfLabel      string `json:"shelfLabel" binding:"required"`
}

type UpdateBookRequest struct {
	Title           *string `json:"title,omitempty"`
	Author          *string `json:"author,omitempty"`
	ISBN            *string `json:"isbn,omitempty"`
	AvailableCopies *int    `json:"availableCopies,omitempty"`
	ShelfLabel      *string `json:"shelfLabel,omitempty"`
}

// ===== Responses =====

type BookResponse struct {
	ID              int64     `json:"id"`
	Title           string    `json:"title"`
	Author          string    `json:"author"`
	ISBN            string    `json:"isbn"`
	AvailableCopies int       `json:"availableCopies"`
	ShelfLabel      string    `json:"shelfLabel"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

func toResponse(b *Book) BookResponse {
	return BookResponse{
		ID:              b.ID,
		Title:           b.Title,
		Author:          b.Author,
		ISBN:            b.ISBN,
		AvailableCopies: b.AvailableCopies,
		ShelfLabel:      b.ShelfLabel,
		CreatedAt:       b.CreatedAt,
		UpdatedAt:       b.UpdatedAt,
	}
}
