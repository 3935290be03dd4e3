// Package model はドメインモデルを定義する。
package model

// Sweet はカタログの商品を表す。
// 所有者はバックエンドであり、クライアント側は全件キャッシュと
// 派生のフィルタ済みビューのみを保持する。
type Sweet struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Category    string   `json:"category"`
	Price       float64  `json:"price"`
	Quantity    int      `json:"quantity"`
	Description string   `json:"description,omitempty"`
	ImageURL    string   `json:"image_url,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// InStock は購入可能かどうかを返す。quantity == 0 の商品は購入操作自体を無効にする。
func (s *Sweet) InStock() bool {
	return s.Quantity > 0
}

// CategoryAll はカテゴリフィルタなしを意味する番兵値。
const CategoryAll = "all"

// Categories はカタログの固定カテゴリ一覧。
// 検索クエリのカテゴリバリデーションに使用する。
var Categories = []string{
	"Chocolate",
	"Candy",
	"Pastry",
	"Dessert",
	"Traditional",
	"Special",
}

// SearchQuery はカタログ検索の値オブジェクト。
// 等価性はフィールド比較で判定する。
type SearchQuery struct {
	Name     string
	Category string
	MinPrice *float64
	MaxPrice *float64
}

// IsDefault は全フィールドが既定値（フィルタなし）かどうかを返す。
// 既定クエリの検索はネットワーク呼び出しなしで全件キャッシュを返す。
func (q SearchQuery) IsDefault() bool {
	return q.Name == "" &&
		(q.Category == "" || q.Category == CategoryAll) &&
		q.MinPrice == nil && q.MaxPrice == nil
}

// SweetInput は商品の作成・更新でバックエンドに転送する入力値。
type SweetInput struct {
	Name        string   `json:"name"`
	Category    string   `json:"category"`
	Price       float64  `json:"price"`
	Quantity    int      `json:"quantity"`
	Description string   `json:"description,omitempty"`
	ImageURL    string   `json:"image_url,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// MutationResult は購入・補充操作のバックエンド応答を表す。
type MutationResult struct {
	Message           string `json:"message"`
	SweetID           string `json:"sweet_id,omitempty"`
	RemainingQuantity *int   `json:"remaining_quantity,omitempty"`
	NewQuantity       *int   `json:"new_quantity,omitempty"`
}

// InventoryStats は管理者向け在庫統計を表す。
type InventoryStats struct {
	TotalItems int     `json:"total_items"`
	TotalStock int     `json:"total_stock"`
	TotalValue float64 `json:"total_value"`
	LowStock   []Sweet `json:"low_stock"`
}

// BulkRestockEntry は一括補充の1商品分の指定。
type BulkRestockEntry struct {
	SweetID  string `json:"sweet_id"`
	Quantity int    `json:"quantity"`
}
