package borrowings

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"libris-backend/internal/platform/db"
)

type BorrowingStore interface {
	Checkout(ctx context.Context, rec *Borrowing) error
	Return(ctx context.Context, bookID, borrowerID int64, at time.Time) (*Borrowing, error)
	GetByID(ctx context.Context, id int64) (*BorrowingDetail, error)
	GetByULID(ctx context.Context, ulid string) (*BorrowingDetail, error)
	ListAll(ctx context.Context) ([]BorrowingDetail, error)
	ListOverdue(ctx context.Context, today time.Time) ([]BorrowingDetail, error)
	ListByBorrower(ctx context.Context, borrowerID int64) ([]BorrowingDetail, error)
	ListByBook(ctx context.Context, bookID int64) ([]BorrowingDetail, error)
	ListBetween(ctx context.Context, from, to time.Time, overdueOnly bool, today time.Time) ([]BorrowingDetail, error)
	CountOverdue(ctx context.Context, today time.Time) (int64, error)
}

type Store struct{ db *sql.DB }

func NewStore(sqlDB *sql.DB) BorrowingStore { return &Store{db: sqlDB} }

// ---- Transactional methods ----

// Checkout は貸出トランザクション本体。
// 対象の books 行を FOR UPDATE でロックしてから在庫を確認するので、
// 同一書籍への同時貸出が古い available_copies を読むことはない。
// 途中で失敗したら全体がロールバックされる（部分的なINSERT/減算は残らない）。
func (s *Store) Checkout(ctx context.Context, rec *Borrowing) error {
	return db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		// 1. 在庫行ロック
		var copies int
		err := tx.QueryRowContext(ctx,
			`SELECT available_copies FROM books WHERE book_id = ? FOR UPDATE`,
			rec.BookID,
		).Scan(&copies)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound("book not found for checkout")
		}
		if err != nil {
			return err
		}

		// 2. 借り手の存在確認
		var one int
		err = tx.QueryRowContext(ctx,
			`SELECT 1 FROM borrowers WHERE borrower_id = ? LIMIT 1`,
			rec.BorrowerID,
		).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound("borrower not found for checkout")
		}
		if err != nil {
			return err
		}

		// 3. 在庫チェック。減算前に必ず弾く（available_copies >= 0 の不変条件）
		if copies <= 0 {
			return ErrConflict("no copies available")
		}

		// 4. 貸出レコード作成
		res, err := tx.ExecContext(ctx, `
INSERT INTO borrowed_books (borrowing_ulid, book_id, borrower_id, borrowed_at, due_on)
VALUES (?, ?, ?, ?, ?)`,
			rec.ULID, rec.BookID, rec.BorrowerID, rec.BorrowedAt, rec.DueOn.Format(DateLayout),
		)
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		rec.ID = id

		// 5. 在庫減算
		upd, err := tx.ExecContext(ctx,
			`UPDATE books SET available_copies = available_copies - 1, updated_at = NOW(6) WHERE book_id = ?`,
			rec.BookID,
		)
		if err != nil {
			return err
		}
		if aff, _ := upd.RowsAffected(); aff != 1 {
			return ErrInternal("failed to update books.available_copies")
		}
		return nil
	})
}

// Return は返却トランザクション本体。
// (book, borrower) の未返却行のうち最古の1件をロックして returned_at を確定し、
// 在庫を1つ戻す。対象行が無ければ NotFound（未貸出と返却済みは区別しない）。
func (s *Store) Return(ctx context.Context, bookID, borrowerID int64, at time.Time) (*Borrowing, error) {
	var rec Borrowing
	err := db.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `
SELECT borrowing_id, borrowing_ulid, book_id, borrower_id, borrowed_at, due_on, returned_at
FROM borrowed_books
WHERE book_id = ? AND borrower_id = ? AND returned_at IS NULL
ORDER BY borrowed_at ASC
LIMIT 1
FOR UPDATE`,
			bookID, borrowerID,
		).Scan(&rec.ID, &rec.ULID, &rec.BookID, &rec.BorrowerID, &rec.BorrowedAt, &rec.DueOn, &rec.ReturnedAt)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound("no open borrowing for the given book and borrower")
		}
		if err != nil {
			return err
		}

		upd, err := tx.ExecContext(ctx,
			`UPDATE borrowed_books SET returned_at = ? WHERE borrowing_id = ? AND returned_at IS NULL`,
			at, rec.ID,
		)
		if err != nil {
			return err
		}
		if aff, _ := upd.RowsAffected(); aff != 1 {
			return ErrInternal("failed to mark borrowing returned")
		}

		// 返却で在庫を戻す（貸出の減算と対称にする）
		if _, err := tx.ExecContext(ctx,
			`UPDATE books SET available_copies = available_copies + 1, updated_at = NOW(6) WHERE book_id = ?`,
			bookID,
		); err != nil {
			return err
		}

		rec.ReturnedAt = sql.NullTime{Time: at, Valid: true}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ---- Queries ----

const detailSelect = `
SELECT bb.borrowing_id, bb.borrowing_ulid, bb.book_id, bb.borrower_id,
       bb.borrowed_at, bb.due_on, bb.returned_at,
       b.title, w.name, w.email
FROM borrowed_books bb
JOIN books b ON b.book_id = bb.book_id
JOIN borrowers w ON w.borrower_id = bb.borrower_id`

// 貸出中を先に、その後は返却日の新しい順
const detailOrder = ` ORDER BY (bb.returned_at IS NULL) DESC, bb.returned_at DESC, bb.borrowing_id DESC`

func scanDetail(row interface{ Scan(dest ...any) error }) (*BorrowingDetail, error) {
	var d BorrowingDetail
	err := row.Scan(
		&d.ID, &d.ULID, &d.Borrowing.BookID, &d.Borrowing.BorrowerID,
		&d.BorrowedAt, &d.DueOn, &d.ReturnedAt,
		&d.Book.Title, &d.Borrower.Name, &d.Borrower.Email,
	)
	if err != nil {
		return nil, err
	}
	d.Book.ID = d.Borrowing.BookID
	d.Borrower.ID = d.Borrowing.BorrowerID
	return &d, nil
}

func (s *Store) GetByID(ctx context.Context, id int64) (*BorrowingDetail, error) {
	d, err := scanDetail(s.db.QueryRowContext(ctx, detailSelect+` WHERE bb.borrowing_id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound("borrowing record not found")
	}
	return d, err
}

func (s *Store) GetByULID(ctx context.Context, ulid string) (*BorrowingDetail, error) {
	d, err := scanDetail(s.db.QueryRowContext(ctx, detailSelect+` WHERE bb.borrowing_ulid = ?`, ulid))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound("borrowing record not found")
	}
	return d, err
}

func (s *Store) ListAll(ctx context.Context) ([]BorrowingDetail, error) {
	return s.queryDetails(ctx, detailSelect+detailOrder)
}

func (s *Store) ListOverdue(ctx context.Context, today time.Time) ([]BorrowingDetail, error) {
	q := detailSelect + ` WHERE bb.returned_at IS NULL AND bb.due_on < ?` + detailOrder
	return s.queryDetails(ctx, q, today.Format(DateLayout))
}

func (s *Store) ListByBorrower(ctx context.Context, borrowerID int64) ([]BorrowingDetail, error) {
	q := detailSelect + ` WHERE bb.borrower_id = ?` + detailOrder
	return s.queryDetails(ctx, q, borrowerID)
}

func (s *Store) ListByBook(ctx context.Context, bookID int64) ([]BorrowingDetail, error) {
	q := detailSelect + ` WHERE bb.book_id = ?` + detailOrder
	return s.queryDetails(ctx, q, bookID)
}

// ListBetween: CSVエクスポート用。borrowed_at が [from, to) の行を対象にする。
func (s *Store) ListBetween(ctx context.Context, from, to time.Time, overdueOnly bool, today time.Time) ([]BorrowingDetail, error) {
	q := detailSelect + ` WHERE bb.borrowed_at >= ? AND bb.borrowed_at < ?`
	args := []any{from, to}
	if overdueOnly {
		q += ` AND bb.returned_at IS NULL AND bb.due_on < ?`
		args = append(args, today.Format(DateLayout))
	}
	q += detailOrder
	return s.queryDetails(ctx, q, args...)
}

func (s *Store) CountOverdue(ctx context.Context, today time.Time) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM borrowed_books WHERE returned_at IS NULL AND due_on < ?`,
		today.Format(DateLayout),
	).Scan(&n)
	return n, err
}

func (s *Store) queryDetails(ctx context.Context, q string, args ...any) ([]BorrowingDetail, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []BorrowingDetail
	for rows.Next() {
		d, err := scanDetail(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}
