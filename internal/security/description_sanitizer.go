// Package security はアプリケーションのセキュリティ機能を提供する。
//
// DescriptionSanitizerService は商品説明のHTMLをサニタイズし、
// バックエンドから届いた説明文をそのままUIに渡せる状態にする。
// bluemondayライブラリを使用した許可リストベースのポリシーで、
// 装飾用の最小限のタグのみを通過させる。
package security

import (
	"github.com/microcosm-cc/bluemonday"
)

// DescriptionSanitizerService は商品説明のサニタイズ機能のインターフェースを定義する。
// カタログキャッシュへの取り込み時に使用される。
type DescriptionSanitizerService interface {
	// Sanitize は商品説明をサニタイズして安全なHTMLを返す。
	// 許可タグ（p, br, strong, em, ul, ol, li）のみを通過させ、
	// script, iframe, styleタグおよびon*イベント属性を除去する。
	// 空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(raw string) string
}

// descriptionSanitizer はDescriptionSanitizerServiceの実装。
// bluemondayのポリシーを保持し、スレッドセーフにサニタイズ処理を行う。
type descriptionSanitizer struct {
	policy *bluemonday.Policy
}

// NewDescriptionSanitizer はDescriptionSanitizerServiceの新しいインスタンスを生成する。
// 初期化時にbluemondayのカスタムポリシーを構築する。
// 商品説明は本文記事ではないため、リンクと画像は許可しない。
func NewDescriptionSanitizer() *descriptionSanitizer {
	p := bluemonday.NewPolicy()

	// 許可タグの設定（属性なしの装飾タグのみ）
	// script, iframe, style等は許可リストに含めないことで自動的に除去される
	// on*イベント属性はbluemondayのデフォルトで許可されないため除去される
	p.AllowElements(
		"p", "br", "strong", "em",
		"ul", "ol", "li",
	)

	return &descriptionSanitizer{policy: p}
}

// Sanitize は商品説明をサニタイズして安全なHTMLを返す。
func (s *descriptionSanitizer) Sanitize(raw string) string {
	if raw == "" {
		return ""
	}
	return s.policy.Sanitize(raw)
}

// compile-time interface check
var _ DescriptionSanitizerService = (*descriptionSanitizer)(nil)
