package borrowings

import (
	"context"
	"crypto/rand"
	"database/sql"
	"strconv"
	"time"

	"github.com/oklog/ulid/v2"
)

// ===== インターフェース群 =====

type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

type IDGen interface {
	New() (string, error)
}

type ulidGen struct{}

func (ulidGen) New() (string, error) {
	t := time.Now().UTC()
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(t), entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// ===== Service本体 =====

type Service struct {
	store BorrowingStore
	clock Clock
	id    IDGen
}

func NewService(db *sql.DB) *Service {
	return &Service{store: NewStore(db), clock: realClock{}, id: ulidGen{}}
}

// NewServiceWith はテスト用の差し替え口。
func NewServiceWith(store BorrowingStore, clock Clock, id IDGen) *Service {
	return &Service{store: store, clock: clock, id: id}
}

// Checkout: 貸出登録。在庫の確認・減算と貸出レコード作成は store 側の
// 単一トランザクションで行われ、同時実行下でも在庫が負にならないことを保証する。
func (s *Service) Checkout(ctx context.Context, req CheckoutRequest) (*BorrowingResponse, error) {
	if req.BookID <= 0 {
		return nil, ErrInvalid("bookId must be > 0")
	}
	if req.BorrowerID <= 0 {
		return nil, ErrInvalid("borrowerId must be > 0")
	}

	dueOn, err := time.ParseInLocation(DateLayout, req.DueDate, time.UTC)
	if err != nil {
		return nil, ErrInvalid("dueDate must be in YYYY-MM-DD format")
	}

	now := s.clock.Now()
	y, m, d := now.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	if !dueOn.After(today) {
		return nil, ErrInvalid("dueDate must be after the borrow date")
	}

	idStr, err := s.id.New()
	if err != nil {
		return nil, err
	}

	rec := &Borrowing{
		ULID:       idStr,
		BookID:     req.BookID,
		BorrowerID: req.BorrowerID,
		BorrowedAt: now,
		DueOn:      dueOn,
	}
	if err := s.store.Checkout(ctx, rec); err != nil {
		return nil, err
	}

	resp := toResponse(rec)
	return &resp, nil
}

// Return: 返却確定。returned_at は一度セットしたら不変で、
// 同じ組に対する二度目の返却は NotFound になる。
func (s *Service) Return(ctx context.Context, bookID, borrowerID int64) (*BorrowingResponse, error) {
	if bookID <= 0 {
		return nil, ErrInvalid("bookId must be > 0")
	}
	if borrowerID <= 0 {
		return nil, ErrInvalid("borrowerId must be > 0")
	}

	rec, err := s.store.Return(ctx, bookID, borrowerID, s.clock.Now())
	if err != nil {
		return nil, err
	}
	resp := toResponse(rec)
	return &resp, nil
}

func (s *Service) ListAll(ctx context.Context) ([]BorrowingResponse, error) {
	ds, err := s.store.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	return toDetailResponses(ds), nil
}

func (s *Service) ListOverdue(ctx context.Context) ([]BorrowingResponse, error) {
	ds, err := s.store.ListOverdue(ctx, s.clock.Now())
	if err != nil {
		return nil, err
	}
	return toDetailResponses(ds), nil
}

// GetByKey: 数値なら borrowing_id、それ以外は borrowing_ulid として検索。
func (s *Service) GetByKey(ctx context.Context, key string) (*BorrowingResponse, error) {
	if key == "" {
		return nil, ErrInvalid("id or ulid is required")
	}

	var (
		d   *BorrowingDetail
		err error
	)
	if id, perr := strconv.ParseInt(key, 10, 64); perr == nil && id > 0 {
		d, err = s.store.GetByID(ctx, id)
	} else {
		d, err = s.store.GetByULID(ctx, key)
	}
	if err != nil {
		return nil, err
	}
	resp := toDetailResponse(d)
	return &resp, nil
}

// 借り手単位の履歴。該当なしはエラーではなく空列。
func (s *Service) ListByBorrower(ctx context.Context, borrowerID int64) ([]BorrowingResponse, error) {
	if borrowerID <= 0 {
		return nil, ErrInvalid("borrowerId must be > 0")
	}
	ds, err := s.store.ListByBorrower(ctx, borrowerID)
	if err != nil {
		return nil, err
	}
	return toDetailResponses(ds), nil
}

func (s *Service) ListByBook(ctx context.Context, bookID int64) ([]BorrowingResponse, error) {
	if bookID <= 0 {
		return nil, ErrInvalid("bookId must be > 0")
	}
	ds, err := s.store.ListByBook(ctx, bookID)
	if err != nil {
		return nil, err
	}
	return toDetailResponses(ds), nil
}

func toDetailResponses(ds []BorrowingDetail) []BorrowingResponse {
	out := make([]BorrowingResponse, 0, len(ds))
	for i := range ds {
		out = append(out, toDetailResponse(&ds[i]))
	}
	return out
}
