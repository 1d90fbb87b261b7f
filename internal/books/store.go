package books

import (
	"context"
	"database/sql"
	"errors"

	"libris-backend/internal/platform/db"
)

type BookStore interface {
	Insert(ctx context.Context, b *Book) error
	GetByID(ctx context.Context, id int64) (*Book, error)
	GetByISBN(ctx context.Context, isbn string) (*Book, error)
	List(ctx context.Context) ([]Book, error)
	Search(ctx context.Context, query string) ([]Book, error)
	Update(ctx context.Context, b *Book) (int64, error)
	Delete(ctx context.Context, id int64) (int64, error)
}

// 参照・更新とも単文で完結するので、クエリ面は DBTX で受けておく
// （将来トランザクション内から呼ぶ場合も同じstoreが使える）。
type Store struct{ db db.DBTX }

func NewStore(conn *sql.DB) BookStore { return &Store{db: conn} }

const bookColumns = `book_id, title, author, isbn, available_copies, shelf_label, created_at, updated_at`

func scanBook(row interface{ Scan(dest ...any) error }) (*Book, error) {
	var b Book
	err := row.Scan(&b.ID, &b.Title, &b.Author, &b.ISBN, &b.AvailableCopies, &b.ShelfLabel, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *Store) Insert(ctx context.Context, b *Book) error {
	const q = `
INSERT INTO books (title, author, isbn, available_copies, shelf_label, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, NOW(6), NOW(6))`
	res, err := s.db.ExecContext(ctx, q, b.Title, b.Author, b.ISBN, b.AvailableCopies, b.ShelfLabel)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	b.ID = id
	return nil
}

func (s *Store) GetByID(ctx context.Context, id int64) (*Book, error) {
	const q = `SELECT ` + bookColumns + ` FROM books WHERE book_id = ?`
	b, err := scanBook(s.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return b, err
}

func (s *Store) GetByISBN(ctx context.Context, isbn string) (*Book, error) {
	const q = `SELECT ` + bookColumns + ` FROM books WHERE isbn = ?`
	b, err := scanBook(s.db.QueryRowContext(ctx, q, isbn))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return b, err
}

func (s *Store) List(ctx context.Context) ([]Book, error) {
	const q = `SELECT ` + bookColumns + ` FROM books ORDER BY book_id ASC`
	return s.queryBooks(ctx, q)
}

// Search: title/author/isbn に対する部分一致。大文字小文字はDBのcollationに従う
// （utf8mb4_general_ci 前提で実質ケースインセンシティブ）。
func (s *Store) Search(ctx context.Context, query string) ([]Book, error) {
	const q = `
SELECT ` + bookColumns + `
FROM books
WHERE title LIKE CONCAT('%', ?, '%')
   OR author LIKE CONCAT('%', ?, '%')
   OR isbn LIKE CONCAT('%', ?, '%')
ORDER BY book_id ASC`
	return s.queryBooks(ctx, q, query, query, query)
}

func (s *Store) queryBooks(ctx context.Context, q string, args ...any) ([]Book, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Book
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

func (s *Store) Update(ctx context.Context, b *Book) (int64, error) {
	const q = `
UPDATE books
SET title = ?, author = ?, isbn = ?, available_copies = ?, shelf_label = ?, updated_at = NOW(6)
WHERE book_id = ?`
	res, err := s.db.ExecContext(ctx, q, b.Title, b.Author, b.ISBN, b.AvailableCopies, b.ShelfLabel, b.ID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) Delete(ctx context.Context, id int64) (int64, error) {
	const q = `DELETE FROM books WHERE book_id = ?`
	res, err := s.db.ExecContext(ctx, q, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
