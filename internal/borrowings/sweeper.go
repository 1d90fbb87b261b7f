package borrowings

import (
	"context"
	"database/sql"
	"log"
	"time"
)

// Sweeper は日次で延滞状況を集計してログに残すジョブ。
// 延滞は due_on から導出されるので状態更新は不要、集計のみ行う。
type Sweeper struct {
	store BorrowingStore
	clock Clock
}

func NewSweeper(db *sql.DB) *Sweeper {
	return &Sweeper{store: NewStore(db), clock: realClock{}}
}

func NewSweeperWith(store BorrowingStore, clock Clock) *Sweeper {
	return &Sweeper{store: store, clock: clock}
}

// Run は cron から呼ばれる。失敗してもプロセスは落とさない。
func (s *Sweeper) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	n, err := s.store.CountOverdue(ctx, s.clock.Now())
	if err != nil {
		log.Printf("[ERROR] overdue sweep failed: %v", err)
		return
	}
	log.Printf("[INFO] overdue sweep: %d open borrowing(s) past due", n)
}
