package books

import "time"

// Book は books テーブルの1行を表す。
// AvailableCopies は貸出エンジンだけが減算・加算する。ここ（カタログ編集）からの
// 直接上書きは管理者向けオーバーライドで、貸出と競合し得る点は仕様上許容している。
type Book struct {
	ID              int64
	Title           string
	Author          string
	ISBN            string
	AvailableCopies int
	ShelfLabel      string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
