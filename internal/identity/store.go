package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"libris-backend/internal/platform/auth"
)

type AccountStore interface {
	GetByEmail(ctx context.Context, role auth.Role, email string) (*Account, error)
	GetByID(ctx context.Context, role auth.Role, id int64) (*Account, error)
	List(ctx context.Context, role auth.Role) ([]Account, error)
	Create(ctx context.Context, role auth.Role, a *Account) error
	Update(ctx context.Context, role auth.Role, a *Account) (int64, error)
	Delete(ctx context.Context, role auth.Role, id int64) (int64, error)
}

type Store struct{ db *sql.DB }

func NewStore(db *sql.DB) AccountStore { return &Store{db: db} }

// ロールごとのテーブル/PKカラム。SQLに直接埋め込むためここ以外で組み立てない。
func tableFor(role auth.Role) (table, pk string) {
	if role == auth.RoleStaff {
		return "staff", "staff_id"
	}
	return "borrowers", "borrower_id"
}

func (s *Store) GetByEmail(ctx context.Context, role auth.Role, email string) (*Account, error) {
	table, pk := tableFor(role)
	q := fmt.Sprintf(`
SELECT %s, name, email, password_hash, created_at, updated_at
FROM %s
WHERE email = ?
LIMIT 1`, pk, table)

	var a Account
	err := s.db.QueryRowContext(ctx, q, email).Scan(
		&a.ID, &a.Name, &a.Email, &a.PasswordHash, &a.CreatedAt, &a.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *Store) GetByID(ctx context.Context, role auth.Role, id int64) (*Account, error) {
	table, pk := tableFor(role)
	q := fmt.Sprintf(`
SELECT %s, name, email, password_hash, created_at, updated_at
FROM %s
WHERE %s = ?
LIMIT 1`, pk, table, pk)

	var a Account
	err := s.db.QueryRowContext(ctx, q, id).Scan(
		&a.ID, &a.Name, &a.Email, &a.PasswordHash, &a.CreatedAt, &a.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *Store) List(ctx context.Context, role auth.Role) ([]Account, error) {
	table, pk := tableFor(role)
	q := fmt.Sprintf(`
SELECT %s, name, email, password_hash, created_at, updated_at
FROM %s
ORDER BY %s ASC`, pk, table, pk)

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Account
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.ID, &a.Name, &a.Email, &a.PasswordHash, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) Create(ctx context.Context, role auth.Role, a *Account) error {
	table, _ := tableFor(role)
	q := fmt.Sprintf(`
INSERT INTO %s (name, email, password_hash, created_at, updated_at)
VALUES (?, ?, ?, NOW(6), NOW(6))`, table)

	res, err := s.db.ExecContext(ctx, q, a.Name, a.Email, a.PasswordHash)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	a.ID = id
	return nil
}

func (s *Store) Update(ctx context.Context, role auth.Role, a *Account) (int64, error) {
	table, pk := tableFor(role)
	q := fmt.Sprintf(`
UPDATE %s
SET name = ?, email = ?, password_hash = ?, updated_at = NOW(6)
WHERE %s = ?`, table, pk)

	res, err := s.db.ExecContext(ctx, q, a.Name, a.Email, a.PasswordHash, a.ID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) Delete(ctx context.Context, role auth.Role, id int64) (int64, error) {
	table, pk := tableFor(role)
	q := fmt.Sprintf(`DELETE FROM %s WHERE %s = ?`, table, pk)
	res, err := s.db.ExecContext(ctx, q, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
