package borrowings

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/transform"
)

var exportHeader = []string{
	"id", "ulid", "bookId", "bookTitle", "borrowerId", "borrowerName", "borrowerEmail",
	"borrowDate", "dueDate", "returnedDate",
}

// ExportCSV: 先月分（先月1日〜今月1日の手前）の貸出レコードをCSVで書き出す。
// encoding に "sjis" を指定すると cp932 にトランスコードする（Excel向け）。
// 返り値はダウンロードファイル名。
func (s *Service) ExportCSV(ctx context.Context, w io.Writer, overdueOnly bool, encoding string) (string, error) {
	now := s.clock.Now()
	firstOfThisMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	firstOfLastMonth := firstOfThisMonth.AddDate(0, -1, 0)

	ds, err := s.store.ListBetween(ctx, firstOfLastMonth, firstOfThisMonth, overdueOnly, now)
	if err != nil {
		return "", err
	}

	out := w
	var tw *transform.Writer
	switch encoding {
	case "", "utf8", "utf-8":
		// そのまま
	case "sjis", "shift_jis", "cp932":
		tw = transform.NewWriter(w, japanese.ShiftJIS.NewEncoder())
		out = tw
	default:
		return "", ErrInvalid("unsupported encoding: " + encoding)
	}

	cw := csv.NewWriter(out)
	if err := cw.Write(exportHeader); err != nil {
		return "", err
	}
	for i := range ds {
		d := &ds[i]
		returned := ""
		if d.ReturnedAt.Valid {
			returned = d.ReturnedAt.Time.Format(time.RFC3339)
		}
		row := []string{
			fmt.Sprintf("%d", d.ID),
			d.ULID,
			fmt.Sprintf("%d", d.Book.ID),
			d.Book.Title,
			fmt.Sprintf("%d", d.Borrower.ID),
			d.Borrower.Name,
			d.Borrower.Email,
			d.BorrowedAt.Format(time.RFC3339),
			d.DueOn.Format(DateLayout),
			returned,
		}
		if err := cw.Write(row); err != nil {
			return "", err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return "", err
	}
	if tw != nil {
		if err := tw.Close(); err != nil {
			return "", err
		}
	}

	kind := "borrowings"
	if overdueOnly {
		kind = "borrowings-overdue"
	}
	return fmt.Sprintf("%s-%s.csv", kind, firstOfLastMonth.Format("2006-01")), nil
}
