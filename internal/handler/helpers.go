// Package handler はHTTP APIハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/sweetshop/internal/middleware"
	"github.com/hitoshi/sweetshop/internal/model"
	"github.com/hitoshi/sweetshop/internal/upstream"
)

// CookieConfig はセッションCookieの設定。
type CookieConfig struct {
	Secure bool
	Domain string
	MaxAge int // 秒
}

// SessionInvalidator はバックエンド401検出時のセッション破棄インターフェース。
// session.Serviceの部分集合として定義する。
type SessionInvalidator interface {
	Invalidate(ctx context.Context, sessionID string) error
}

// SessionMetricsRecorder はセッション関連メトリクスの記録インターフェース。
type SessionMetricsRecorder interface {
	RecordLogin(success bool)
	RecordSessionInvalidated()
}

// ErrorResponder はサービス層エラーのHTTPレスポンスへの変換を担う。
// バックエンドの401（ErrUnauthorized）を検出した場合はセッションを
// 無条件に破棄し、Cookieを削除してログインへのリダイレクトを指示する。
type ErrorResponder struct {
	sessions SessionInvalidator
	metrics  SessionMetricsRecorder
	cookies  CookieConfig
}

// NewErrorResponder はErrorResponderを生成する。metricsがnilの場合は記録をスキップする。
func NewErrorResponder(sessions SessionInvalidator, metrics SessionMetricsRecorder, cookies CookieConfig) *ErrorResponder {
	return &ErrorResponder{
		sessions: sessions,
		metrics:  metrics,
		cookies:  cookies,
	}
}

// HandleServiceError はサービス層のエラーをHTTPレスポンスに変換する。
func (er *ErrorResponder) HandleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, upstream.ErrUnauthorized) {
		sessionID := middleware.SessionIDFromContext(r.Context())
		if sessionID != "" {
			if invErr := er.sessions.Invalidate(r.Context(), sessionID); invErr != nil {
				slog.Error("failed to invalidate session",
					slog.String("error", invErr.Error()),
				)
			}
		}
		clearSessionCookie(w, er.cookies)
		if er.metrics != nil {
			er.metrics.RecordSessionInvalidated()
		}
		middleware.WriteRedirectLogin(w, r.URL.Path)
		return
	}

	middleware.WriteAPIError(w, err)
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// decodeJSON はリクエストボディをJSONデコードする。
// 失敗した場合は400レスポンスを書き込み、falseを返す。
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "リクエストボディの解析に失敗しました。",
			Category: "validation",
			Action:   "正しいJSON形式でリクエストしてください。",
		})
		return false
	}
	return true
}

// setSessionCookie はセッションIDをHTTP Only Cookieに設定する。
// トークン自体は決してブラウザに渡さない。
func setSessionCookie(w http.ResponseWriter, config CookieConfig, sessionID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    sessionID,
		Path:     "/",
		Domain:   config.Domain,
		MaxAge:   config.MaxAge,
		HttpOnly: true,
		Secure:   config.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// clearSessionCookie はセッションCookieを削除する。
func clearSessionCookie(w http.ResponseWriter, config CookieConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   config.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   config.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}
