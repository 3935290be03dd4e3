// Package repository はデータ永続化層のインターフェースと実装を提供する。
package repository

import (
	"context"

	"github.com/hitoshi/sweetshop/internal/model"
)

// SessionRepository はブラウザセッションの永続化インターフェース。
// セッションはトークンとユーザープロフィールのキャッシュを丸ごと保持し、
// 部分更新は行わない（常に全フィールドを置き換える）。
type SessionRepository interface {
	// Create はセッションを新規作成する。
	Create(ctx context.Context, session *model.Session) error

	// FindByID は指定IDのセッションを取得する。
	// 期限切れまたは存在しない場合はnilを返す（エラーにしない）。
	FindByID(ctx context.Context, id string) (*model.Session, error)

	// Save はセッションの内容を丸ごと置き換える。
	// プロフィール再取得後のキャッシュ更新に使用する。
	Save(ctx context.Context, session *model.Session) error

	// DeleteByID は指定IDのセッションを削除する。
	// ログアウトおよびバックエンド401検出時に使用する。
	DeleteByID(ctx context.Context, id string) error

	// DeleteExpired は期限切れセッションを一括削除し、削除件数を返す。
	DeleteExpired(ctx context.Context) (int64, error)
}
