// Package model はドメインモデルを定義する。
package model

import "time"

// User はバックエンドのプロフィールAPIから取得したユーザーのスナップショットを表す。
// 部分更新は行わず、再取得のたびに丸ごと置き換える。
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	IsAdmin  bool   `json:"is_admin"`
}

// Session はブラウザセッションを表す。
// バックエンドのベアラートークンとユーザープロフィールのキャッシュを保持し、
// ブラウザにはセッションIDのCookieのみを渡す。
type Session struct {
	ID           string
	AccessToken  string
	RefreshToken string
	User         *User
	ExpiresAt    time.Time
	CreatedAt    time.Time
}

// SessionStatus はセッション状態マシンの状態を表す。
type SessionStatus string

const (
	// StatusUnchecked は復元処理前の初期状態。
	StatusUnchecked SessionStatus = "unchecked"
	// StatusChecking はトークン検証とプロフィール取得が進行中の状態。
	StatusChecking SessionStatus = "checking"
	// StatusAuthenticated は有効なトークンとユーザープロフィールが揃った状態。
	StatusAuthenticated SessionStatus = "authenticated"
	// StatusAnonymous はトークンなし、期限切れ、またはプロフィール取得失敗の状態。
	StatusAnonymous SessionStatus = "anonymous"
)

// SessionState はセッション状態マシンの出力。
// ガードとUIが参照する導出状態をまとめる。
type SessionState struct {
	Status SessionStatus
	User   *User
}

// IsAdmin はユーザーが管理者かどうかを返す。
// 未認証の場合は常にfalse。
func (s SessionState) IsAdmin() bool {
	return s.User != nil && s.User.IsAdmin
}

// AnonymousState は未認証のSessionStateを返す。
func AnonymousState() SessionState {
	return SessionState{Status: StatusAnonymous}
}
