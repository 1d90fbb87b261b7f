package borrowings

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ===== テストダブル =====

// fakeStore は BorrowingStore のインメモリ実装。
// 本物のstoreがトランザクション+行ロックで保証する「在庫の読み→減算が他の
// 貸出と交錯しない」という契約を、ここでは単一のmutexで表現している。
type fakeStore struct {
	mu        sync.Mutex
	copies    map[int64]int
	titles    map[int64]string
	borrowers map[int64]BorrowerRef
	records   []*Borrowing
	nextID    int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		copies:    map[int64]int{},
		titles:    map[int64]string{},
		borrowers: map[int64]BorrowerRef{},
		nextID:    1,
	}
}

func (f *fakeStore) addBook(id int64, title string, copies int) {
	f.copies[id] = copies
	f.titles[id] = title
}

func (f *fakeStore) addBorrower(id int64, name, email string) {
	f.borrowers[id] = BorrowerRef{ID: id, Name: name, Email: email}
}

func (f *fakeStore) Checkout(_ context.Context, rec *Borrowing) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	copies, ok := f.copies[rec.BookID]
	if !ok {
		return ErrNotFound("book not found for checkout")
	}
	if _, ok := f.borrowers[rec.BorrowerID]; !ok {
		return ErrNotFound("borrower not found for checkout")
	}
	if copies <= 0 {
		return ErrConflict("no copies available")
	}

	rec.ID = f.nextID
	f.nextID++
	cp := *rec
	f.records = append(f.records, &cp)
	f.copies[rec.BookID] = copies - 1
	return nil
}

func (f *fakeStore) Return(_ context.Context, bookID, borrowerID int64, at time.Time) (*Borrowing, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var open *Borrowing
	for _, r := range f.records {
		if r.BookID == bookID && r.BorrowerID == borrowerID && !r.ReturnedAt.Valid {
			if open == nil || r.BorrowedAt.Before(open.BorrowedAt) {
				open = r
			}
		}
	}
	if open == nil {
		return nil, ErrNotFound("no open borrowing for the given book and borrower")
	}
	open.ReturnedAt = sql.NullTime{Time: at, Valid: true}
	f.copies[bookID]++
	cp := *open
	return &cp, nil
}

func (f *fakeStore) detail(r *Borrowing) BorrowingDetail {
	return BorrowingDetail{
		Borrowing: *r,
		Book:      BookRef{ID: r.BookID, Title: f.titles[r.BookID]},
		Borrower:  f.borrowers[r.BorrowerID],
	}
}

func (f *fakeStore) GetByID(_ context.Context, id int64) (*BorrowingDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.records {
		if r.ID == id {
			d := f.detail(r)
			return &d, nil
		}
	}
	return nil, ErrNotFound("borrowing record not found")
}

func (f *fakeStore) GetByULID(_ context.Context, ulid string) (*BorrowingDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.records {
		if r.ULID == ulid {
			d := f.detail(r)
			return &d, nil
		}
	}
	return nil, ErrNotFound("borrowing record not found")
}

func (f *fakeStore) list(filter func(*Borrowing) bool) []BorrowingDetail {
	var out []BorrowingDetail
	for _, r := range f.records {
		if filter(r) {
			out = append(out, f.detail(r))
		}
	}
	// 貸出中が先、その後は返却日の新しい順
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.ReturnedAt.Valid != b.ReturnedAt.Valid {
			return !a.ReturnedAt.Valid
		}
		return a.ReturnedAt.Time.After(b.ReturnedAt.Time)
	})
	return out
}

func (f *fakeStore) ListAll(_ context.Context) ([]BorrowingDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.list(func(*Borrowing) bool { return true }), nil
}

func (f *fakeStore) ListOverdue(_ context.Context, today time.Time) ([]BorrowingDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.list(func(r *Borrowing) bool { return r.IsOverdue(today) }), nil
}

func (f *fakeStore) ListByBorrower(_ context.Context, borrowerID int64) ([]BorrowingDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.list(func(r *Borrowing) bool { return r.BorrowerID == borrowerID }), nil
}

func (f *fakeStore) ListByBook(_ context.Context, bookID int64) ([]BorrowingDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.list(func(r *Borrowing) bool { return r.BookID == bookID }), nil
}

func (f *fakeStore) ListBetween(_ context.Context, from, to time.Time, overdueOnly bool, today time.Time) ([]BorrowingDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.list(func(r *Borrowing) bool {
		if r.BorrowedAt.Before(from) || !r.BorrowedAt.Before(to) {
			return false
		}
		if overdueOnly && !r.IsOverdue(today) {
			return false
		}
		return true
	}), nil
}

func (f *fakeStore) CountOverdue(_ context.Context, today time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, r := range f.records {
		if r.IsOverdue(today) {
			n++
		}
	}
	return n, nil
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type seqIDGen struct {
	mu sync.Mutex
	n  int
}

func (g *seqIDGen) New() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("FAKEULID%08d", g.n), nil
}

var testNow = time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

func newTestService(store *fakeStore) *Service {
	return NewServiceWith(store, fixedClock{t: testNow}, &seqIDGen{})
}

func dueIn(days int) string {
	return testNow.AddDate(0, 0, days).Format(DateLayout)
}

// ===== Checkout =====

func TestCheckoutValidation(t *testing.T) {
	svc := newTestService(newFakeStore())
	ctx := context.Background()

	testCases := []struct {
		name string
		req  CheckoutRequest
	}{
		{"zero bookId", CheckoutRequest{BookID: 0, BorrowerID: 1, DueDate: dueIn(7)}},
		{"zero borrowerId", CheckoutRequest{BookID: 1, BorrowerID: 0, DueDate: dueIn(7)}},
		{"bad date format", CheckoutRequest{BookID: 1, BorrowerID: 1, DueDate: "15-06-2025"}},
		{"due today", CheckoutRequest{BookID: 1, BorrowerID: 1, DueDate: dueIn(0)}},
		{"due in the past", CheckoutRequest{BookID: 1, BorrowerID: 1, DueDate: dueIn(-1)}},
	}
	for _, tt := range testCases {
		_, err := svc.Checkout(ctx, tt.req)
		var api *APIError
		require.ErrorAs(t, err, &api, tt.name)
		assert.Equal(t, CodeInvalidArgument, api.Code, tt.name)
	}
}

func TestCheckoutDecrementsInventory(t *testing.T) {
	store := newFakeStore()
	store.addBook(1, "Dune", 2)
	store.addBorrower(10, "Alice", "a@x.com")
	svc := newTestService(store)

	res, err := svc.Checkout(context.Background(), CheckoutRequest{BookID: 1, BorrowerID: 10, DueDate: dueIn(7)})
	require.NoError(t, err)

	assert.Equal(t, int64(1), res.BookID)
	assert.Equal(t, int64(10), res.BorrowerID)
	assert.Equal(t, testNow, res.BorrowDate)
	assert.Equal(t, dueIn(7), res.DueDate)
	assert.Nil(t, res.ReturnedDate)
	assert.NotEmpty(t, res.ULID)
	assert.Equal(t, 1, store.copies[1])
}

func TestCheckoutMissingBookOrBorrower(t *testing.T) {
	store := newFakeStore()
	store.addBook(1, "Dune", 1)
	store.addBorrower(10, "Alice", "a@x.com")
	svc := newTestService(store)
	ctx := context.Background()

	_, err := svc.Checkout(ctx, CheckoutRequest{BookID: 99, BorrowerID: 10, DueDate: dueIn(7)})
	var api *APIError
	require.ErrorAs(t, err, &api)
	assert.Equal(t, CodeNotFound, api.Code)

	_, err = svc.Checkout(ctx, CheckoutRequest{BookID: 1, BorrowerID: 99, DueDate: dueIn(7)})
	require.ErrorAs(t, err, &api)
	assert.Equal(t, CodeNotFound, api.Code)

	// どちらも失敗時は在庫が動いていないこと
	assert.Equal(t, 1, store.copies[1])
}

func TestCheckoutLastCopyConflict(t *testing.T) {
	store := newFakeStore()
	store.addBook(1, "Dune", 1)
	store.addBorrower(10, "Alice", "a@x.com")
	store.addBorrower(11, "Bob", "b@x.com")
	svc := newTestService(store)
	ctx := context.Background()

	_, err := svc.Checkout(ctx, CheckoutRequest{BookID: 1, BorrowerID: 10, DueDate: dueIn(7)})
	require.NoError(t, err)
	assert.Equal(t, 0, store.copies[1])

	_, err = svc.Checkout(ctx, CheckoutRequest{BookID: 1, BorrowerID: 11, DueDate: dueIn(7)})
	var api *APIError
	require.ErrorAs(t, err, &api)
	assert.Equal(t, CodeConflict, api.Code)
	assert.Equal(t, 0, store.copies[1])
}

func TestConcurrentCheckoutNeverOversells(t *testing.T) {
	const (
		copies     = 3
		requesters = 20
	)
	store := newFakeStore()
	store.addBook(1, "Dune", copies)
	for i := 1; i <= requesters; i++ {
		store.addBorrower(int64(i), fmt.Sprintf("user%d", i), fmt.Sprintf("u%d@x.com", i))
	}
	svc := newTestService(store)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		conflicts int
	)
	for i := 1; i <= requesters; i++ {
		wg.Add(1)
		go func(borrowerID int64) {
			defer wg.Done()
			_, err := svc.Checkout(context.Background(), CheckoutRequest{BookID: 1, BorrowerID: borrowerID, DueDate: dueIn(7)})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				succeeded++
				return
			}
			var api *APIError
			if assert.ErrorAs(t, err, &api) {
				assert.Equal(t, CodeConflict, api.Code)
				conflicts++
			}
		}(int64(i))
	}
	wg.Wait()

	assert.Equal(t, copies, succeeded)
	assert.Equal(t, requesters-copies, conflicts)
	assert.Equal(t, 0, store.copies[1])
	assert.GreaterOrEqual(t, store.copies[1], 0)
}

// ===== Return =====

func TestReturnRestoresCopyAndIsFinal(t *testing.T) {
	store := newFakeStore()
	store.addBook(1, "Dune", 1)
	store.addBorrower(10, "Alice", "a@x.com")
	svc := newTestService(store)
	ctx := context.Background()

	_, err := svc.Checkout(ctx, CheckoutRequest{BookID: 1, BorrowerID: 10, DueDate: dueIn(7)})
	require.NoError(t, err)
	assert.Equal(t, 0, store.copies[1])

	res, err := svc.Return(ctx, 1, 10)
	require.NoError(t, err)
	require.NotNil(t, res.ReturnedDate)
	assert.Equal(t, testNow, *res.ReturnedDate)
	assert.Equal(t, 1, store.copies[1])

	// 二度目の返却は NotFound
	_, err = svc.Return(ctx, 1, 10)
	var api *APIError
	require.ErrorAs(t, err, &api)
	assert.Equal(t, CodeNotFound, api.Code)
	// 在庫が二重に戻らないこと
	assert.Equal(t, 1, store.copies[1])
}

func TestReturnNeverBorrowed(t *testing.T) {
	store := newFakeStore()
	store.addBook(1, "Dune", 1)
	store.addBorrower(10, "Alice", "a@x.com")
	svc := newTestService(store)

	_, err := svc.Return(context.Background(), 1, 10)
	var api *APIError
	require.ErrorAs(t, err, &api)
	assert.Equal(t, CodeNotFound, api.Code)
}

// ===== Overdue =====

func TestOverdueClassification(t *testing.T) {
	store := newFakeStore()
	store.addBook(1, "Dune", 5)
	store.addBorrower(10, "Alice", "a@x.com")
	store.addBorrower(11, "Bob", "b@x.com")

	yesterday := testNow.AddDate(0, 0, -1)
	nextWeek := testNow.AddDate(0, 0, 7)

	// 期限切れ・未返却
	store.records = append(store.records, &Borrowing{
		ID: 1, ULID: "U1", BookID: 1, BorrowerID: 10,
		BorrowedAt: testNow.AddDate(0, 0, -10),
		DueOn:      time.Date(yesterday.Year(), yesterday.Month(), yesterday.Day(), 0, 0, 0, 0, time.UTC),
	})
	// 期限内・未返却
	store.records = append(store.records, &Borrowing{
		ID: 2, ULID: "U2", BookID: 1, BorrowerID: 11,
		BorrowedAt: testNow,
		DueOn:      time.Date(nextWeek.Year(), nextWeek.Month(), nextWeek.Day(), 0, 0, 0, 0, time.UTC),
	})
	store.nextID = 3
	svc := newTestService(store)
	ctx := context.Background()

	overdue, err := svc.ListOverdue(ctx)
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	assert.Equal(t, int64(1), overdue[0].ID)

	// 返却したら延滞一覧から消える
	_, err = svc.Return(ctx, 1, 10)
	require.NoError(t, err)

	overdue, err = svc.ListOverdue(ctx)
	require.NoError(t, err)
	assert.Empty(t, overdue)
}

func TestIsOverdueDateOnlyComparison(t *testing.T) {
	today := time.Date(2025, 6, 15, 23, 59, 0, 0, time.UTC)

	dueToday := Borrowing{DueOn: time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)}
	// 期限当日は時刻に関係なくまだ延滞ではない
	assert.False(t, dueToday.IsOverdue(today))

	dueYesterday := Borrowing{DueOn: time.Date(2025, 6, 14, 0, 0, 0, 0, time.UTC)}
	assert.True(t, dueYesterday.IsOverdue(today))

	returned := dueYesterday
	returned.ReturnedAt = sql.NullTime{Time: today, Valid: true}
	assert.False(t, returned.IsOverdue(today))
}

// ===== Queries =====

func TestGetByKey(t *testing.T) {
	store := newFakeStore()
	store.addBook(1, "Dune", 1)
	store.addBorrower(10, "Alice", "a@x.com")
	svc := newTestService(store)
	ctx := context.Background()

	created, err := svc.Checkout(ctx, CheckoutRequest{BookID: 1, BorrowerID: 10, DueDate: dueIn(7)})
	require.NoError(t, err)

	byID, err := svc.GetByKey(ctx, fmt.Sprintf("%d", created.ID))
	require.NoError(t, err)
	assert.Equal(t, created.ULID, byID.ULID)
	require.NotNil(t, byID.Book)
	assert.Equal(t, "Dune", byID.Book.Title)
	require.NotNil(t, byID.Borrower)
	assert.Equal(t, "a@x.com", byID.Borrower.Email)

	byULID, err := svc.GetByKey(ctx, created.ULID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, byULID.ID)

	_, err = svc.GetByKey(ctx, "999")
	var api *APIError
	require.ErrorAs(t, err, &api)
	assert.Equal(t, CodeNotFound, api.Code)

	_, err = svc.GetByKey(ctx, "")
	require.ErrorAs(t, err, &api)
	assert.Equal(t, CodeInvalidArgument, api.Code)
}

func TestFilteredListsReturnEmptyNotError(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)
	ctx := context.Background()

	byBorrower, err := svc.ListByBorrower(ctx, 123)
	require.NoError(t, err)
	assert.Empty(t, byBorrower)

	byBook, err := svc.ListByBook(ctx, 456)
	require.NoError(t, err)
	assert.Empty(t, byBook)
}
