package borrowings

import (
	"database/sql"
	"time"
)

// 日付のみ比較する箇所（due_on）のレイアウト
const DateLayout = "2006-01-02"

// Borrowing は borrowed_books テーブルの1行を表す。
// ReturnedAt が NULL の行が「貸出中」。一度セットしたら二度と書き換えない。
type Borrowing struct {
	ID         int64
	ULID       string
	BookID     int64
	BorrowerID int64
	BorrowedAt time.Time
	DueOn      time.Time // DATE列。時刻部分は常にゼロ
	ReturnedAt sql.NullTime
}

// IsOverdue: 未返却かつ返却期限（日付単位）を過ぎているか。
func (b *Borrowing) IsOverdue(today time.Time) bool {
	if b.ReturnedAt.Valid {
		return false
	}
	y, m, d := today.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return b.DueOn.Before(day)
}

// 一覧応答に載せる縮約プロジェクション
type BookRef struct {
	ID    int64
	Title string
}

type BorrowerRef struct {
	ID    int64
	Name  string
	Email string
}

// BorrowingDetail は Book / Borrower をJOINした読み出し形。
type BorrowingDetail struct {
	Borrowing
	Book     BookRef
	Borrower BorrowerRef
}
