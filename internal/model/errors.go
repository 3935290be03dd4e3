// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, permission, validation, upstream, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"
	ErrCodeSessionExpired     = "SESSION_EXPIRED"
	ErrCodeAdminRequired      = "ADMIN_REQUIRED"
	ErrCodeValidation         = "VALIDATION_FAILED"
	ErrCodeInvalidCategory    = "INVALID_CATEGORY"
	ErrCodeSweetNotFound      = "SWEET_NOT_FOUND"
	ErrCodeOutOfStock         = "OUT_OF_STOCK"
	ErrCodeInvalidImageURL    = "INVALID_IMAGE_URL"
	ErrCodeUpstreamFailed     = "UPSTREAM_FAILED"
)

// NewInvalidCredentialsError は認証失敗エラーを生成する。
// バックエンドが返した詳細メッセージがあればそれを優先する。
func NewInvalidCredentialsError(detail string) *APIError {
	msg := "メールアドレスまたはパスワードが正しくありません。"
	if detail != "" {
		msg = detail
	}
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  msg,
		Category: "auth",
		Action:   "入力内容を確認して再度ログインしてください。",
	}
}

// NewSessionExpiredError はセッション期限切れエラーを生成する。
func NewSessionExpiredError() *APIError {
	return &APIError{
		Code:     ErrCodeSessionExpired,
		Message:  "セッションの有効期限が切れました。",
		Category: "auth",
		Action:   "再度ログインしてください。",
	}
}

// NewAdminRequiredError は管理者権限不足エラーを生成する。
// リダイレクトせず、その場でアクセス拒否として表示される。
func NewAdminRequiredError() *APIError {
	return &APIError{
		Code:     ErrCodeAdminRequired,
		Message:  "このページには管理者権限が必要です。",
		Category: "permission",
		Action:   "権限が必要な場合は管理者に連絡してください。",
	}
}

// NewValidationError は入力バリデーションエラーを生成する。
// バリデーション失敗はネットワーク層に到達する前にローカルで遮断される。
func NewValidationError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  fmt.Sprintf("入力内容に誤りがあります: %s", reason),
		Category: "validation",
		Action:   "入力内容を修正して再度お試しください。",
	}
}

// NewInvalidCategoryError は無効なカテゴリエラーを生成する。
func NewInvalidCategoryError(category string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCategory,
		Message:  fmt.Sprintf("無効なカテゴリです: %s", category),
		Category: "validation",
		Action:   "カテゴリ一覧にあるカテゴリ名、または all を指定してください。",
	}
}

// NewSweetNotFoundError は商品未検出エラーを生成する。
func NewSweetNotFoundError(sweetID string) *APIError {
	return &APIError{
		Code:     ErrCodeSweetNotFound,
		Message:  fmt.Sprintf("指定された商品が見つかりません: %s", sweetID),
		Category: "validation",
		Action:   "商品一覧を再読み込みしてください。",
	}
}

// NewOutOfStockError は在庫切れエラーを生成する。
// 在庫0の商品への購入はバックエンドへのリクエスト送信前に遮断される。
func NewOutOfStockError(name string) *APIError {
	return &APIError{
		Code:     ErrCodeOutOfStock,
		Message:  fmt.Sprintf("%s は在庫切れです。", name),
		Category: "validation",
		Action:   "入荷までお待ちください。",
	}
}

// NewInvalidImageURLError は画像URLが安全性検証を通らなかった場合のエラーを生成する。
func NewInvalidImageURLError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidImageURL,
		Message:  fmt.Sprintf("画像URLが無効です: %s", reason),
		Category: "validation",
		Action:   "公開されているhttps URLを指定してください。",
	}
}

// NewUpstreamError はバックエンド呼び出し失敗エラーを生成する。
// バックエンドのエラーペイロードから得たメッセージがあればそれを使用し、
// なければ一般的なメッセージを返す。
func NewUpstreamError(detail string) *APIError {
	msg := "サーバーとの通信に失敗しました。"
	if detail != "" {
		msg = detail
	}
	return &APIError{
		Code:     ErrCodeUpstreamFailed,
		Message:  msg,
		Category: "upstream",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
