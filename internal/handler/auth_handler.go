package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/hitoshi/sweetshop/internal/middleware"
	"github.com/hitoshi/sweetshop/internal/model"
)

// SessionServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type SessionServiceInterface interface {
	// Restore は永続化済みセッションから状態を復元する。
	Restore(ctx context.Context, sessionID string) (model.SessionState, error)
	// Login は認証情報でログインし、新しいセッションを発行する。
	Login(ctx context.Context, email, password string) (*model.Session, model.SessionState, error)
	// Register は新規ユーザーを登録し、新しいセッションを発行する。
	Register(ctx context.Context, username, email, password string) (*model.Session, model.SessionState, error)
	// Logout はセッションを無条件に破棄する。
	Logout(ctx context.Context, sessionID string) error
	// MergeProfile はキャッシュ済みプロフィールに非空フィールドをマージする。
	MergeProfile(ctx context.Context, sessionID string, patch model.User) (*model.User, error)
}

// AuthHandler は認証とセッション管理のHTTPハンドラー。
type AuthHandler struct {
	service   SessionServiceInterface
	responder *ErrorResponder
	cookies   CookieConfig
	metrics   SessionMetricsRecorder
}

// NewAuthHandler はAuthHandlerを生成する。metricsがnilの場合は記録をスキップする。
func NewAuthHandler(service SessionServiceInterface, responder *ErrorResponder, cookies CookieConfig, metrics SessionMetricsRecorder) *AuthHandler {
	return &AuthHandler{
		service:   service,
		responder: responder,
		cookies:   cookies,
		metrics:   metrics,
	}
}

// loginRequest はログインリクエストのボディ。
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// registerRequest はユーザー登録リクエストのボディ。
type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// profilePatchRequest はプロフィール更新リクエストのボディ。
type profilePatchRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
}

// userResponse はユーザー情報のAPIレスポンス。
type userResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	IsAdmin  bool   `json:"is_admin"`
}

// sessionResponse はセッション状態のAPIレスポンス。
type sessionResponse struct {
	Status string        `json:"status"`
	User   *userResponse `json:"user,omitempty"`
}

func toUserResponse(u *model.User) *userResponse {
	if u == nil {
		return nil
	}
	return &userResponse{
		ID:       u.ID,
		Username: u.Username,
		Email:    u.Email,
		IsAdmin:  u.IsAdmin,
	}
}

func toSessionResponse(state model.SessionState) sessionResponse {
	return sessionResponse{
		Status: string(state.Status),
		User:   toUserResponse(state.User),
	}
}

// recordLogin はログイン試行の結果をメトリクスに記録する。
func (h *AuthHandler) recordLogin(success bool) {
	if h.metrics != nil {
		h.metrics.RecordLogin(success)
	}
}

// Login はログインを処理する。
// POST /api/auth/login
// 成功時はセッションIDをHTTP Only Cookieに設定する。トークンは返さない。
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if req.Email == "" || req.Password == "" {
		middleware.WriteAPIError(w, model.NewValidationError("メールアドレスとパスワードは必須です"))
		return
	}

	sess, state, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.recordLogin(false)
		h.responder.HandleServiceError(w, r, err)
		return
	}

	h.recordLogin(true)
	setSessionCookie(w, h.cookies, sess.ID)
	writeJSON(w, http.StatusOK, toSessionResponse(state))
}

// Register は新規ユーザー登録を処理する。
// POST /api/auth/register
// 登録成功は即ログインとして扱い、セッションCookieを設定する。
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if req.Username == "" || req.Email == "" || req.Password == "" {
		middleware.WriteAPIError(w, model.NewValidationError("ユーザー名、メールアドレス、パスワードは必須です"))
		return
	}
	if !strings.Contains(req.Email, "@") {
		middleware.WriteAPIError(w, model.NewValidationError("メールアドレスの形式が正しくありません"))
		return
	}

	sess, state, err := h.service.Register(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		h.responder.HandleServiceError(w, r, err)
		return
	}

	setSessionCookie(w, h.cookies, sess.ID)
	writeJSON(w, http.StatusCreated, toSessionResponse(state))
}

// Logout はログアウトを処理する。
// POST /api/auth/logout
// セッションの有無にかかわらず成功し、Cookieを削除する。
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	sessionID := middleware.SessionIDFromContext(r.Context())

	if err := h.service.Logout(r.Context(), sessionID); err != nil {
		middleware.WriteInternalServerError(w)
		return
	}

	clearSessionCookie(w, h.cookies)
	w.WriteHeader(http.StatusNoContent)
}

// Session はセッション復元を処理する。
// GET /api/session
// アプリ起動時に1回呼ばれ、プロフィール取得でトークンの有効性を確認する。
// 復元できない場合も401ではなくanonymous状態を200で返す。
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	sessionID := middleware.SessionIDFromContext(r.Context())

	state, err := h.service.Restore(r.Context(), sessionID)
	if err != nil {
		middleware.WriteInternalServerError(w)
		return
	}

	// 復元に失敗したセッションのCookieは残さない
	if state.Status != model.StatusAuthenticated && sessionID != "" {
		clearSessionCookie(w, h.cookies)
	}

	writeJSON(w, http.StatusOK, toSessionResponse(state))
}

// Me は現在のリクエストのセッション状態を返す。
// GET /api/auth/me
// コンテキストに確定済みの状態をそのまま返すため、ネットワーク呼び出しは発生しない。
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	state := middleware.StateFromContext(r.Context())
	writeJSON(w, http.StatusOK, toSessionResponse(state))
}

// UpdateProfile はプロフィールのローカルマージ更新を処理する。
// PATCH /api/session/profile
// 非空のフィールドのみを上書きする。権限フラグは変更できない。
func (h *AuthHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req profilePatchRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if req.Username == "" && req.Email == "" {
		middleware.WriteAPIError(w, model.NewValidationError("更新するフィールドを1つ以上指定してください"))
		return
	}
	if req.Email != "" && !strings.Contains(req.Email, "@") {
		middleware.WriteAPIError(w, model.NewValidationError("メールアドレスの形式が正しくありません"))
		return
	}

	sessionID := middleware.SessionIDFromContext(r.Context())
	user, err := h.service.MergeProfile(r.Context(), sessionID, model.User{
		Username: req.Username,
		Email:    req.Email,
	})
	if err != nil {
		h.responder.HandleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toUserResponse(user))
}
