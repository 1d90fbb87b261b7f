package identity

import "time"

// Account は staff / borrowers テーブルの1行を表す。
// パスワードはハッシュのみ保持し、平文は構造体にも載せない。
type Account struct {
	ID           int64
	Name         string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
