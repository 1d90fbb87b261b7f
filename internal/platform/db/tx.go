package db

import (
	"context"
	"database/sql"
)

// DBTX は *sql.DB / *sql.Tx 共通のクエリ面。storeのクエリはこれで書く。
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// RunInTx: Txを開始して fn を実行。fn が nil を返せば COMMIT、エラーなら ROLLBACK。
// 貸出・返却のような複数行更新は必ずこれを通すこと。
func RunInTx(ctx context.Context, db *sql.DB, opts *sql.TxOptions, fn func(ctx context.Context, tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return err
	}

	if err := fn(ctx, tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
