package books

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"

	mysql "github.com/go-sql-driver/mysql"
)

// ===== Error model（attendance/borrowings と同型） =====

type Code string

const (
	CodeInvalidArgument Code = "INVALID_ARGUMENT"
	CodeNotFound        Code = "NOT_FOUND"
	CodeConflict        Code = "CONFLICT"
	CodeInternal        Code = "INTERNAL"
)

type APIError struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string      { return fmt.Sprintf("%s: %s", e.Code, e.Message) }
func ErrInvalid(msg string) *APIError  { return &APIError{Code: CodeInvalidArgument, Message: msg} }
func ErrNotFound(msg string) *APIError { return &APIError{Code: CodeNotFound, Message: msg} }
func ErrConflict(msg string) *APIError { return &APIError{Code: CodeConflict, Message: msg} }

func toHTTPStatus(err error) int {
	var api *APIError
	if errors.As(err, &api) {
		switch api.Code {
		case CodeInvalidArgument:
			return 400
		case CodeNotFound:
			return 404
		case CodeConflict:
			return 409
		default:
			return 500
		}
	}
	return 500
}

// ISBN-10 / ISBN-13（ハイフン区切りも可）
var isbnPattern = regexp.MustCompile(`^(?:\d{9}[\dXx]|\d{13}|\d{1,5}-\d{1,7}-\d{1,7}-[\dXx])$`)

// ===== Service =====

type Service struct {
	store BookStore
}

func NewService(db *sql.DB) *Service { return &Service{store: NewStore(db)} }

func NewServiceWithStore(store BookStore) *Service { return &Service{store: store} }

func validateFields(title, author, isbn, shelfLabel string, copies int) error {
	if l := len(strings.TrimSpace(title)); l < 2 || l > 150 {
		return ErrInvalid("title must be 2-150 characters")
	}
	if l := len(strings.TrimSpace(author)); l < 2 || l > 100 {
		return ErrInvalid("author must be 2-100 characters")
	}
	if !isbnPattern.MatchString(isbn) {
		return ErrInvalid("isbn must be a valid ISBN-10 or ISBN-13")
	}
	if l := len(strings.TrimSpace(shelfLabel)); l < 1 || l > 20 {
		return ErrInvalid("shelfLabel must be 1-20 characters")
	}
	if copies < 0 {
		return ErrInvalid("availableCopies must be >= 0")
	}
	return nil
}

func (s *Service) Create(ctx context.Context, req CreateBookRequest) (*BookResponse, error) {
	if err := validateFields(req.Title, req.Author, req.ISBN, req.ShelfLabel, *req.AvailableCopies); err != nil {
		return nil, err
	}

	exists, err := s.store.GetByISBN(ctx, req.ISBN)
	if err != nil {
		return nil, err
	}
	if exists != nil {
		return nil, ErrConflict("a book with this ISBN already exists")
	}

	b := &Book{
		Title:           strings.TrimSpace(req.Title),
		Author:          strings.TrimSpace(req.Author),
		ISBN:            req.ISBN,
		AvailableCopies: *req.AvailableCopies,
		ShelfLabel:      strings.TrimSpace(req.ShelfLabel),
	}
	if err := s.store.Insert(ctx, b); err != nil {
		var me *mysql.MySQLError
		if errors.As(err, &me) && me.Number == 1062 {
			return nil, ErrConflict("a book with this ISBN already exists")
		}
		return nil, err
	}

	out, err := s.store.GetByID(ctx, b.ID)
	if err != nil {
		return nil, err
	}
	resp := toResponse(out)
	return &resp, nil
}

func (s *Service) List(ctx context.Context) ([]BookResponse, error) {
	bs, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]BookResponse, 0, len(bs))
	for i := range bs {
		out = append(out, toResponse(&bs[i]))
	}
	return out, nil
}

func (s *Service) GetByID(ctx context.Context, id int64) (*BookResponse, error) {
	b, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, ErrNotFound("book not found")
	}
	resp := toResponse(b)
	return &resp, nil
}

func (s *Service) Search(ctx context.Context, query string) ([]BookResponse, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrInvalid("query parameter q is required")
	}
	bs, err := s.store.Search(ctx, query)
	if err != nil {
		return nil, err
	}
	out := make([]BookResponse, 0, len(bs))
	for i := range bs {
		out = append(out, toResponse(&bs[i]))
	}
	return out, nil
}

// Update: 部分更新。availableCopies の直接上書きは管理者オーバーライド扱い。
func (s *Service) Update(ctx context.Context, id int64, req UpdateBookRequest) (*BookResponse, error) {
	b, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, ErrNotFound("book not found")
	}

	if req.Title != nil {
		b.Title = strings.TrimSpace(*req.Title)
	}
	if req.Author != nil {
		b.Author = strings.TrimSpace(*req.Author)
	}
	if req.ISBN != nil {
		b.ISBN = *req.ISBN
	}
	if req.AvailableCopies != nil {
		b.AvailableCopies = *req.AvailableCopies
	}
	if req.ShelfLabel != nil {
		b.ShelfLabel = strings.TrimSpace(*req.ShelfLabel)
	}
	if err := validateFields(b.Title, b.Author, b.ISBN, b.ShelfLabel, b.AvailableCopies); err != nil {
		return nil, err
	}

	n, err := s.store.Update(ctx, b)
	if err != nil {
		var me *mysql.MySQLError
		if errors.As(err, &me) && me.Number == 1062 {
			return nil, ErrConflict("a book with this ISBN already exists")
		}
		return nil, err
	}
	if n == 0 {
		return nil, ErrNotFound("book not found")
	}

	out, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := toResponse(out)
	return &resp, nil
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	n, err := s.store.Delete(ctx, id)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound("book not found")
	}
	return nil
}
