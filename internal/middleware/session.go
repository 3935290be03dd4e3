// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/sweetshop/internal/model"
)

// SessionCookieName はセッションIDを保持するHTTP Only Cookieの名前。
const SessionCookieName = "session_id"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	// stateContextKey はリクエストコンテキストにセッション状態を格納するためのキー。
	stateContextKey = contextKey("session_state")
	// sessionIDContextKey はリクエストコンテキストにセッションIDを格納するためのキー。
	sessionIDContextKey = contextKey("session_id")
	// accessTokenContextKey はリクエストコンテキストにバックエンドのアクセストークンを
	// 格納するためのキー。トークンがブラウザに渡ることはない。
	accessTokenContextKey = contextKey("access_token")
)

// SessionLoader はセッションの読み込みに必要なインターフェース。
// session.Serviceの部分集合として定義する。
// Loadはネットワーク呼び出しなしで永続化済みセッションから状態と
// アクセストークンを返す。
type SessionLoader interface {
	Load(ctx context.Context, sessionID string) (model.SessionState, string, error)
}

// NewSessionMiddleware はHTTP Only Cookieからセッションを読み込み、
// 確定済みのセッション状態・セッションID・アクセストークンを
// リクエストコンテキストに注入するミドルウェアを返す。
//
// ここでは拒否しない。アクセス可否の判定はルート要件を知っている
// ガードミドルウェア（Require）が行う。読み込み失敗は未認証に倒す。
func NewSessionMiddleware(loader SessionLoader) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// 1. CookieからセッションIDを取得（なければ空）
			sessionID := ""
			if cookie, err := r.Cookie(SessionCookieName); err == nil {
				sessionID = cookie.Value
			}

			// 2. セッション状態とアクセストークンを読み込む
			state, token, err := loader.Load(r.Context(), sessionID)
			if err != nil {
				slog.Error("failed to load session",
					slog.String("error", err.Error()),
				)
				state = model.AnonymousState()
				token = ""
			}

			// 3. コンテキストに注入
			ctx := ContextWithState(r.Context(), state)
			ctx = ContextWithSessionID(ctx, sessionID)
			ctx = ContextWithAccessToken(ctx, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// StateFromContext はリクエストコンテキストからセッション状態を取得する。
// セッションミドルウェアを通過していない場合は未認証として扱う。
func StateFromContext(ctx context.Context) model.SessionState {
	state, ok := ctx.Value(stateContextKey).(model.SessionState)
	if !ok {
		return model.AnonymousState()
	}
	return state
}

// SessionIDFromContext はリクエストコンテキストからセッションIDを取得する。
// セッションがない場合は空文字列を返す。
func SessionIDFromContext(ctx context.Context) string {
	sessionID, _ := ctx.Value(sessionIDContextKey).(string)
	return sessionID
}

// AccessTokenFromContext はリクエストコンテキストからアクセストークンを取得する。
// 未認証の場合は空文字列を返す。
func AccessTokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(accessTokenContextKey).(string)
	return token
}

// ContextWithState はコンテキストにセッション状態を注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithState(ctx context.Context, state model.SessionState) context.Context {
	return context.WithValue(ctx, stateContextKey, state)
}

// ContextWithSessionID はコンテキストにセッションIDを注入する。
func ContextWithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDContextKey, sessionID)
}

// ContextWithAccessToken はコンテキストにアクセストークンを注入する。
func ContextWithAccessToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, accessTokenContextKey, token)
}
