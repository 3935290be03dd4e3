// Package catalog はカタログのキャッシュ、検索、在庫操作を提供する。
package catalog

import (
	"strings"

	"github.com/hitoshi/sweetshop/internal/model"
)

// ApplyFilter は商品リストに検索条件をローカル適用する純粋関数。
//
//   - 名前: 大文字小文字を区別しない部分一致
//   - カテゴリ: 完全一致（"all"と空はフィルタなし）
//   - 価格: 両端を含む範囲
//
// 元のリストの相対順序を保持する。既定クエリに対しては恒等関数として振る舞う。
// カテゴリのクイックチップ用の一時的なプリフィルタであり、
// 最終的な結果は常にバックエンドの検索応答が優先される。
func ApplyFilter(items []model.Sweet, query model.SearchQuery) []model.Sweet {
	if query.IsDefault() {
		return items
	}

	name := strings.ToLower(query.Name)
	filterCategory := query.Category != "" && query.Category != model.CategoryAll

	filtered := make([]model.Sweet, 0, len(items))
	for _, item := range items {
		if name != "" && !strings.Contains(strings.ToLower(item.Name), name) {
			continue
		}
		if filterCategory && item.Category != query.Category {
			continue
		}
		if query.MinPrice != nil && item.Price < *query.MinPrice {
			continue
		}
		if query.MaxPrice != nil && item.Price > *query.MaxPrice {
			continue
		}
		filtered = append(filtered, item)
	}
	return filtered
}

// validCategories は固定カテゴリの検証用セット。
var validCategories = func() map[string]bool {
	m := map[string]bool{model.CategoryAll: true, "": true}
	for _, c := range model.Categories {
		m[c] = true
	}
	return m
}()

// ValidateQuery は検索クエリをローカルで検証する。
// 未知のカテゴリ、負の価格、下限超過の上限はバリデーションエラーとして
// ネットワーク層に到達する前に遮断する。
func ValidateQuery(query model.SearchQuery) error {
	if !validCategories[query.Category] {
		return model.NewInvalidCategoryError(query.Category)
	}
	if query.MinPrice != nil && *query.MinPrice < 0 {
		return model.NewValidationError("最低価格は0以上で指定してください")
	}
	if query.MaxPrice != nil && *query.MaxPrice < 0 {
		return model.NewValidationError("最高価格は0以上で指定してください")
	}
	if query.MinPrice != nil && query.MaxPrice != nil && *query.MinPrice > *query.MaxPrice {
		return model.NewValidationError("最低価格が最高価格を上回っています")
	}
	return nil
}
