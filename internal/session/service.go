// Package session はセッション状態マシンと認証フローを提供する。
//
// 状態遷移は Unchecked → Checking → {Authenticated, Anonymous}。
// 復元時、永続化済みトークンが存在しかつ期限内の場合のみプロフィール取得で
// 有効性を確認する。トークンなし・期限切れはネットワーク呼び出しなしで
// Anonymousに遷移する。ログイン・登録の成功は応答に含まれるユーザーを信頼し、
// 再確認のラウンドトリップなしでAuthenticatedに遷移する。
package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/sweetshop/internal/model"
	"github.com/hitoshi/sweetshop/internal/repository"
	"github.com/hitoshi/sweetshop/internal/token"
	"github.com/hitoshi/sweetshop/internal/upstream"
)

// UpstreamAuthAPI は認証フローが必要とするバックエンド操作のインターフェース。
// upstream.Clientの部分集合として定義する。
type UpstreamAuthAPI interface {
	Login(ctx context.Context, email, password string) (*upstream.LoginResult, error)
	Register(ctx context.Context, username, email, password string) (*upstream.LoginResult, error)
	Profile(ctx context.Context, token string) (*model.User, error)
}

// ServiceConfig はセッションサービスの設定。
type ServiceConfig struct {
	SessionMaxAge int // セッション有効期間（秒）

	// OnTransition は状態遷移ごとに呼ばれるフック。観測用（テスト・メトリクス）。
	// nilの場合は何もしない。
	OnTransition func(model.SessionStatus)
}

// Service はセッションに関するビジネスロジックを提供する。
type Service struct {
	api    UpstreamAuthAPI
	repo   repository.SessionRepository
	config ServiceConfig
}

// NewService はServiceを生成する。
func NewService(api UpstreamAuthAPI, repo repository.SessionRepository, config ServiceConfig) *Service {
	return &Service{
		api:    api,
		repo:   repo,
		config: config,
	}
}

// transition は状態遷移を観測フックに通知する。
func (s *Service) transition(status model.SessionStatus) model.SessionStatus {
	if s.config.OnTransition != nil {
		s.config.OnTransition(status)
	}
	return status
}

// Restore は永続化済みセッションから状態を復元する。
//
//   - セッションIDなし、セッション未発見 → Anonymous（ネットワーク呼び出しなし）
//   - トークン期限切れ → セッション破棄 → Anonymous（ネットワーク呼び出しなし）
//   - 期限内トークン → Checkingに遷移し、プロフィール取得で有効性を確認。
//     成功 → プロフィールキャッシュを丸ごと置き換えてAuthenticated。
//     失敗 → セッション破棄 → Anonymous。
//
// プロフィール取得の失敗は状態として表現し、エラーとしては返さない。
// エラーはリポジトリ障害の場合のみ返す。
func (s *Service) Restore(ctx context.Context, sessionID string) (model.SessionState, error) {
	s.transition(model.StatusUnchecked)

	if sessionID == "" {
		return model.SessionState{Status: s.transition(model.StatusAnonymous)}, nil
	}

	sess, err := s.repo.FindByID(ctx, sessionID)
	if err != nil {
		return model.AnonymousState(), fmt.Errorf("failed to find session: %w", err)
	}
	if sess == nil {
		return model.SessionState{Status: s.transition(model.StatusAnonymous)}, nil
	}

	// 期限切れトークンはAuthorizationに載せてはならない。ネットワーク呼び出しなしで破棄する。
	if token.IsExpired(sess.AccessToken) {
		if err := s.repo.DeleteByID(ctx, sessionID); err != nil {
			slog.Error("failed to delete session with expired token",
				slog.String("error", err.Error()),
			)
		}
		return model.SessionState{Status: s.transition(model.StatusAnonymous)}, nil
	}

	s.transition(model.StatusChecking)

	user, err := s.api.Profile(ctx, sess.AccessToken)
	if err != nil {
		// トークンが無効（401）・バックエンド障害のいずれもAnonymousに倒す
		if !errors.Is(err, upstream.ErrUnauthorized) {
			slog.Warn("profile check failed during session restore",
				slog.String("error", err.Error()),
			)
		}
		if delErr := s.repo.DeleteByID(ctx, sessionID); delErr != nil {
			slog.Error("failed to delete invalid session",
				slog.String("error", delErr.Error()),
			)
		}
		return model.SessionState{Status: s.transition(model.StatusAnonymous)}, nil
	}

	// プロフィールは部分更新せず丸ごと置き換える
	sess.User = user
	if err := s.repo.Save(ctx, sess); err != nil {
		return model.AnonymousState(), fmt.Errorf("failed to save session: %w", err)
	}

	return model.SessionState{
		Status: s.transition(model.StatusAuthenticated),
		User:   user,
	}, nil
}

// Load は永続化済みセッションから状態とアクセストークンを読み込む。
// リクエストごとの軽量な読み込みであり、ネットワーク呼び出しは行わない。
// プロフィール取得による有効性確認はRestoreのみが行う。
// 期限切れトークンのセッションはこの場で破棄する。
func (s *Service) Load(ctx context.Context, sessionID string) (model.SessionState, string, error) {
	if sessionID == "" {
		return model.AnonymousState(), "", nil
	}

	sess, err := s.repo.FindByID(ctx, sessionID)
	if err != nil {
		return model.AnonymousState(), "", fmt.Errorf("failed to find session: %w", err)
	}
	if sess == nil {
		return model.AnonymousState(), "", nil
	}

	if token.IsExpired(sess.AccessToken) {
		if err := s.repo.DeleteByID(ctx, sessionID); err != nil {
			slog.Error("failed to delete session with expired token",
				slog.String("error", err.Error()),
			)
		}
		return model.AnonymousState(), "", nil
	}

	state := model.SessionState{
		Status: model.StatusAuthenticated,
		User:   sess.User,
	}
	return state, sess.AccessToken, nil
}

// Login は認証情報でログインし、新しいセッションを発行する。
// 成功時は応答に含まれるユーザーを信頼し、再確認なしでAuthenticatedに遷移する。
func (s *Service) Login(ctx context.Context, email, password string) (*model.Session, model.SessionState, error) {
	s.transition(model.StatusChecking)

	result, err := s.api.Login(ctx, email, password)
	if err != nil {
		return nil, model.SessionState{Status: s.transition(model.StatusAnonymous)}, err
	}

	sess, err := s.createSession(ctx, result)
	if err != nil {
		return nil, model.SessionState{Status: s.transition(model.StatusAnonymous)}, err
	}

	slog.Info("user logged in",
		slog.String("user_id", result.User.ID),
		slog.Bool("is_admin", result.User.IsAdmin),
	)

	state := model.SessionState{
		Status: s.transition(model.StatusAuthenticated),
		User:   sess.User,
	}
	return sess, state, nil
}

// Register は新規ユーザーを登録し、新しいセッションを発行する。
// ログインと同様に応答のユーザーを信頼する。
func (s *Service) Register(ctx context.Context, username, email, password string) (*model.Session, model.SessionState, error) {
	s.transition(model.StatusChecking)

	result, err := s.api.Register(ctx, username, email, password)
	if err != nil {
		return nil, model.SessionState{Status: s.transition(model.StatusAnonymous)}, err
	}

	sess, err := s.createSession(ctx, result)
	if err != nil {
		return nil, model.SessionState{Status: s.transition(model.StatusAnonymous)}, err
	}

	slog.Info("new user registered",
		slog.String("user_id", result.User.ID),
	)

	state := model.SessionState{
		Status: s.transition(model.StatusAuthenticated),
		User:   sess.User,
	}
	return sess, state, nil
}

// Logout はセッションを無条件に破棄し、Anonymousに遷移する。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		s.transition(model.StatusAnonymous)
		return nil
	}

	if err := s.repo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	s.transition(model.StatusAnonymous)
	slog.Info("user logged out", slog.String("session_id", sessionID))
	return nil
}

// Invalidate はバックエンド401検出時のセッション破棄。
// Logoutと同じ処理だが、ログで区別できるようにする。
func (s *Service) Invalidate(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}

	if err := s.repo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to invalidate session: %w", err)
	}

	s.transition(model.StatusAnonymous)
	slog.Warn("session invalidated by upstream 401", slog.String("session_id", sessionID))
	return nil
}

// MergeProfile はキャッシュ済みプロフィールへの唯一のローカルマージ更新。
// 非空のフィールドのみを上書きする。権限フラグはマージ対象外。
func (s *Service) MergeProfile(ctx context.Context, sessionID string, patch model.User) (*model.User, error) {
	sess, err := s.repo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if sess == nil || sess.User == nil {
		return nil, model.NewSessionExpiredError()
	}

	merged := *sess.User
	if patch.Username != "" {
		merged.Username = patch.Username
	}
	if patch.Email != "" {
		merged.Email = patch.Email
	}

	sess.User = &merged
	if err := s.repo.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return &merged, nil
}

// createSession はログイン・登録結果からセッションを作成し永続化する。
func (s *Service) createSession(ctx context.Context, result *upstream.LoginResult) (*model.Session, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	user := result.User
	sess := &model.Session{
		ID:           sessionID,
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
		User:         &user,
		ExpiresAt:    time.Now().Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt:    time.Now(),
	}

	if err := s.repo.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return sess, nil
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
