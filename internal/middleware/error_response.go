package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/hitoshi/sweetshop/internal/guard"
	"github.com/hitoshi/sweetshop/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
// 原因カテゴリと対処方法を含む。認証系エラーにはUI側のルーティングが
// 使用するリダイレクト先と復帰先を付与する。
type ErrorResponseBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`

	RedirectTo string `json:"redirect_to,omitempty"`
	ReturnTo   string `json:"return_to,omitempty"`
}

// StatusForAPIError はエラーコードからHTTPステータスコードを導出する。
func StatusForAPIError(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeInvalidCredentials, model.ErrCodeSessionExpired:
		return http.StatusUnauthorized
	case model.ErrCodeAdminRequired:
		return http.StatusForbidden
	case model.ErrCodeSweetNotFound:
		return http.StatusNotFound
	case model.ErrCodeOutOfStock:
		return http.StatusConflict
	case model.ErrCodeValidation, model.ErrCodeInvalidCategory, model.ErrCodeInvalidImageURL:
		return http.StatusBadRequest
	case model.ErrCodeUpstreamFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
// すべてのAPIエンドポイントで一貫したエラーレスポンスを提供する。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponseBody{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// WriteAPIError はエラーコードに応じたステータスでエラーレスポンスを書き込む。
// *model.APIError以外のエラーは詳細を漏らさず内部エラーとして扱う。
func WriteAPIError(w http.ResponseWriter, err error) {
	if apiErr, ok := err.(*model.APIError); ok {
		WriteErrorResponse(w, StatusForAPIError(apiErr), apiErr)
		return
	}
	WriteInternalServerError(w)
}

// WriteRedirectLogin はセッション失効時の401レスポンスを書き込む。
// UI側のルーティングはredirect_toに従ってログインページへ遷移し、
// return_toをログイン後の復帰先として持ち回る。
// returnToがログインページ自身の場合は復帰先を付与しない（リダイレクトループ防止）。
func WriteRedirectLogin(w http.ResponseWriter, returnTo string) {
	apiErr := model.NewSessionExpiredError()
	body := ErrorResponseBody{
		Code:       apiErr.Code,
		Message:    apiErr.Message,
		Category:   apiErr.Category,
		Action:     apiErr.Action,
		RedirectTo: guard.LoginPath,
	}
	if returnTo != "" && returnTo != guard.LoginPath {
		body.ReturnTo = returnTo
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(body)
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}
