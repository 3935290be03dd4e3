// Package poll はカタログの定期ポーリングを提供する。
// 固定間隔のティッカーでバックエンドから全件リストを取得し、
// カタログキャッシュを最新に保つ。在庫変更との競合はカタログ側の
// 世代番号により解決され、古い応答が新しい内容を上書きすることはない。
package poll

import (
	"context"
	"log/slog"
	"time"
)

// CatalogRefresher はカタログキャッシュの更新インターフェース。
// catalog.Serviceが実装する。
type CatalogRefresher interface {
	Refresh(ctx context.Context, token string) error
}

// Poller はカタログの定期ポーリングを行う。
// バックエンドへの認証にはBFF自身のサービストークンを使用する。
type Poller struct {
	catalog      CatalogRefresher
	logger       *slog.Logger
	serviceToken string
}

// NewPoller はPollerの新しいインスタンスを生成する。
func NewPoller(catalog CatalogRefresher, logger *slog.Logger, serviceToken string) *Poller {
	return &Poller{
		catalog:      catalog,
		logger:       logger,
		serviceToken: serviceToken,
	}
}

// Start は固定間隔のティッカーでポーリングを開始する。
// 起動直後に1回実行し、コンテキストがキャンセルされるまで継続する。
// サービストークンが未設定の場合はポーリングを行わず即座に戻る。
func (p *Poller) Start(ctx context.Context, interval time.Duration) {
	if p.serviceToken == "" {
		p.logger.Warn("サービストークンが未設定のためカタログポーリングを無効にします")
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.logger.Info("カタログポーリングを開始しました",
		slog.Duration("interval", interval),
	)

	// 起動直後に1回実行
	p.runOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("カタログポーリングを停止しました")
			return
		case <-ticker.C:
			p.runOnce(ctx)
		}
	}
}

// runOnce はカタログの更新を1回実行する。
// 失敗してもポーリング自体は継続する（キャッシュは最後の内容を維持する）。
func (p *Poller) runOnce(ctx context.Context) {
	start := time.Now()

	if err := p.catalog.Refresh(ctx, p.serviceToken); err != nil {
		p.logger.Error("カタログの定期更新に失敗しました",
			slog.String("error", err.Error()),
		)
		return
	}

	p.logger.Debug("カタログの定期更新が完了しました",
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
}
