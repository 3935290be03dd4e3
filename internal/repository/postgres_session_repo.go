package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/hitoshi/sweetshop/internal/model"
)

// PostgresSessionRepo はPostgreSQLを使用したセッションリポジトリ。
type PostgresSessionRepo struct {
	db *sql.DB
}

// NewPostgresSessionRepo はPostgresSessionRepoを生成する。
func NewPostgresSessionRepo(db *sql.DB) *PostgresSessionRepo {
	return &PostgresSessionRepo{db: db}
}

// Create はセッションを作成する。
func (r *PostgresSessionRepo) Create(ctx context.Context, session *model.Session) error {
	profile, err := marshalProfile(session.User)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO sessions (id, access_token, refresh_token, user_profile, expires_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		session.ID, session.AccessToken, session.RefreshToken, profile,
		session.ExpiresAt, session.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
func (r *PostgresSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	session := &model.Session{}
	var profile []byte

	err := r.db.QueryRowContext(ctx,
		`SELECT id, access_token, refresh_token, user_profile, expires_at, created_at
		 FROM sessions
		 WHERE id = $1 AND expires_at > now()`,
		id,
	).Scan(&session.ID, &session.AccessToken, &session.RefreshToken, &profile,
		&session.ExpiresAt, &session.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}

	user, err := unmarshalProfile(profile)
	if err != nil {
		return nil, err
	}
	session.User = user

	return session, nil
}

// Save はセッションの内容を丸ごと置き換える。
func (r *PostgresSessionRepo) Save(ctx context.Context, session *model.Session) error {
	profile, err := marshalProfile(session.User)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx,
		`UPDATE sessions
		 SET access_token = $2, refresh_token = $3, user_profile = $4, expires_at = $5
		 WHERE id = $1`,
		session.ID, session.AccessToken, session.RefreshToken, profile, session.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// DeleteByID は指定IDのセッションを削除する。
func (r *PostgresSessionRepo) DeleteByID(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteExpired は期限切れセッションを一括削除し、削除件数を返す。
func (r *PostgresSessionRepo) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE expires_at <= now()`,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted sessions: %w", err)
	}
	return count, nil
}

// marshalProfile はユーザープロフィールをJSONにシリアライズする。
// 未認証セッション（プロフィール未取得）は空オブジェクトとして保存する。
func marshalProfile(user *model.User) ([]byte, error) {
	if user == nil {
		return []byte("{}"), nil
	}
	b, err := json.Marshal(user)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal user profile: %w", err)
	}
	return b, nil
}

// unmarshalProfile はJSONからユーザープロフィールを復元する。
// 空オブジェクトはプロフィール未取得としてnilを返す。
func unmarshalProfile(b []byte) (*model.User, error) {
	if len(b) == 0 || string(b) == "{}" {
		return nil, nil
	}
	var user model.User
	if err := json.Unmarshal(b, &user); err != nil {
		return nil, fmt.Errorf("failed to unmarshal user profile: %w", err)
	}
	return &user, nil
}

// compile-time interface check
var _ SessionRepository = (*PostgresSessionRepo)(nil)
