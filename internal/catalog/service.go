package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hitoshi/sweetshop/internal/model"
	"github.com/hitoshi/sweetshop/internal/security"
)

// UpstreamCatalogAPI はカタログ機能が必要とするバックエンド操作のインターフェース。
// upstream.Clientの部分集合として定義する。
type UpstreamCatalogAPI interface {
	ListSweets(ctx context.Context, token string) ([]model.Sweet, error)
	SearchSweets(ctx context.Context, token string, query model.SearchQuery) ([]model.Sweet, error)
	GetSweet(ctx context.Context, token, id string) (*model.Sweet, error)
	CreateSweet(ctx context.Context, token string, input model.SweetInput) (*model.Sweet, error)
	UpdateSweet(ctx context.Context, token, id string, input model.SweetInput) (*model.Sweet, error)
	DeleteSweet(ctx context.Context, token, id string) error
	Purchase(ctx context.Context, token, id string, quantity int) (*model.MutationResult, error)
	Restock(ctx context.Context, token, id string, quantity int) (*model.MutationResult, error)
	InventoryStats(ctx context.Context, token string) (*model.InventoryStats, error)
	LowStock(ctx context.Context, token string, threshold int) ([]model.Sweet, error)
	OutOfStock(ctx context.Context, token string) ([]model.Sweet, error)
	BulkRestock(ctx context.Context, token string, entries []model.BulkRestockEntry) (*model.MutationResult, error)
	Categories(ctx context.Context, token string) ([]string, error)
}

// MetricsRecorder はカタログ操作のメトリクス記録インターフェース。
// metricsパッケージのCollectorが実装する。
type MetricsRecorder interface {
	RecordCacheRefresh(success bool)
	RecordBlockedPurchase()
}

// Service はカタログの全件キャッシュと在庫操作を提供する。
//
// キャッシュは全件リストのみを保持し、フィルタ済みビューは保持しない。
// 在庫を変更する操作の成功後は必ずキャッシュを無効化して再取得する。
// 楽観的なローカル更新は行わず、バックエンドの応答を唯一の真実とする。
type Service struct {
	api        UpstreamCatalogAPI
	sanitizer  security.DescriptionSanitizerService
	imageGuard security.ImageGuardService
	metrics    MetricsRecorder
	logger     *slog.Logger

	mu    sync.RWMutex
	items []model.Sweet
	// loaded はitemsが有効なキャッシュかどうか。falseの間、itemsは
	// 最後に取得できた内容（古い可能性あり）を保持する。
	loaded bool
	// generation は無効化のたびに加算される世代番号。
	// 無効化をまたいだ取得結果（定期ポーリング等）の書き込みを破棄するために使う。
	generation uint64
}

// NewService はServiceを生成する。metricsがnilの場合は記録をスキップする。
func NewService(
	api UpstreamCatalogAPI,
	sanitizer security.DescriptionSanitizerService,
	imageGuard security.ImageGuardService,
	metrics MetricsRecorder,
	logger *slog.Logger,
) *Service {
	return &Service{
		api:        api,
		sanitizer:  sanitizer,
		imageGuard: imageGuard,
		metrics:    metrics,
		logger:     logger,
	}
}

// List はカタログの全件リストを返す。
// キャッシュが有効ならネットワーク呼び出しなしでキャッシュを返し、
// 無効ならバックエンドから取得してキャッシュに取り込む。
func (s *Service) List(ctx context.Context, token string) ([]model.Sweet, error) {
	if items, ok := s.snapshot(); ok {
		return items, nil
	}

	if err := s.Refresh(ctx, token); err != nil {
		// 取得失敗時、古いキャッシュが残っていればそれを返す（last-known-good）
		if items, _ := s.snapshot(); len(items) > 0 {
			s.logger.Warn("カタログの再取得に失敗したため古いキャッシュを返します",
				slog.String("error", err.Error()),
			)
			return items, nil
		}
		return nil, err
	}

	items, _ := s.snapshot()
	return items, nil
}

// Refresh はバックエンドから全件リストを取得してキャッシュを置き換える。
// 取得開始時点の世代番号を記録し、取得中に無効化が起きていた場合は
// 応答を破棄する。取得失敗時はキャッシュに触れず、最後の内容を維持する。
func (s *Service) Refresh(ctx context.Context, token string) error {
	s.mu.RLock()
	gen := s.generation
	s.mu.RUnlock()

	sweets, err := s.api.ListSweets(ctx, token)
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordCacheRefresh(false)
		}
		return fmt.Errorf("failed to refresh catalog: %w", err)
	}

	s.sanitizeAll(sweets)

	s.mu.Lock()
	if gen != s.generation {
		// 取得中に無効化された世代の応答は古い。破棄する。
		s.mu.Unlock()
		s.logger.Debug("無効化をまたいだカタログ応答を破棄しました",
			slog.Uint64("generation", gen),
		)
		return nil
	}
	s.items = sweets
	s.loaded = true
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.RecordCacheRefresh(true)
	}
	return nil
}

// Search は検索条件に一致する商品リストを返す。
// 既定クエリはキャッシュ済み全件を返し、それ以外はバックエンドへの
// 検索呼び出しを1回だけ行う。検索結果はキャッシュを置き換えない。
func (s *Service) Search(ctx context.Context, token string, query model.SearchQuery) ([]model.Sweet, error) {
	if err := ValidateQuery(query); err != nil {
		return nil, err
	}

	if query.IsDefault() {
		return s.List(ctx, token)
	}

	sweets, err := s.api.SearchSweets(ctx, token, query)
	if err != nil {
		return nil, err
	}
	s.sanitizeAll(sweets)
	return sweets, nil
}

// QuickFilter はキャッシュ済みリストに検索条件をローカル適用した結果を返す。
// ネットワーク呼び出しは行わない。カテゴリのクイックチップなど、
// バックエンドの応答を待たない一時的な表示に使う。
func (s *Service) QuickFilter(query model.SearchQuery) ([]model.Sweet, error) {
	if err := ValidateQuery(query); err != nil {
		return nil, err
	}

	items, _ := s.snapshot()
	return ApplyFilter(items, query), nil
}

// Get は指定IDの商品をバックエンドから取得する。
func (s *Service) Get(ctx context.Context, token, id string) (*model.Sweet, error) {
	sweet, err := s.api.GetSweet(ctx, token, id)
	if err != nil {
		return nil, err
	}
	sweet.Description = s.sanitizer.Sanitize(sweet.Description)
	return sweet, nil
}

// Purchase は商品を購入する。
// キャッシュ上で在庫切れが確定している商品はバックエンドを呼ばずに拒否する。
// 成功時はキャッシュを無効化して再取得する。
func (s *Service) Purchase(ctx context.Context, token, id string, quantity int) (*model.MutationResult, error) {
	if quantity < 1 {
		return nil, model.NewValidationError("購入数量は1以上で指定してください")
	}

	// ローカルの在庫切れガード。キャッシュ上でquantity == 0の商品は
	// リクエストを送るまでもなく失敗するため、ここで遮断する。
	if cached, ok := s.findCached(id); ok && !cached.InStock() {
		if s.metrics != nil {
			s.metrics.RecordBlockedPurchase()
		}
		return nil, model.NewOutOfStockError(cached.Name)
	}

	result, err := s.api.Purchase(ctx, token, id, quantity)
	if err != nil {
		return nil, err
	}

	s.refreshAfterMutation(ctx, token)
	return result, nil
}

// Restock は商品の在庫を補充する（管理者のみ）。
// 成功時はキャッシュを無効化して再取得する。
func (s *Service) Restock(ctx context.Context, token, id string, quantity int) (*model.MutationResult, error) {
	if quantity < 1 {
		return nil, model.NewValidationError("補充数量は1以上で指定してください")
	}

	result, err := s.api.Restock(ctx, token, id, quantity)
	if err != nil {
		return nil, err
	}

	s.refreshAfterMutation(ctx, token)
	return result, nil
}

// Create は商品を新規作成する（管理者のみ）。
// 入力値と画像URLをローカルで検証してからバックエンドに転送する。
// 成功時はキャッシュを無効化して再取得する。
func (s *Service) Create(ctx context.Context, token string, input model.SweetInput) (*model.Sweet, error) {
	if err := s.validateInput(input); err != nil {
		return nil, err
	}

	sweet, err := s.api.CreateSweet(ctx, token, input)
	if err != nil {
		return nil, err
	}

	s.refreshAfterMutation(ctx, token)
	return sweet, nil
}

// Update は商品情報を更新する（管理者のみ）。
// 成功時はキャッシュを無効化して再取得する。
func (s *Service) Update(ctx context.Context, token, id string, input model.SweetInput) (*model.Sweet, error) {
	if err := s.validateInput(input); err != nil {
		return nil, err
	}

	sweet, err := s.api.UpdateSweet(ctx, token, id, input)
	if err != nil {
		return nil, err
	}

	s.refreshAfterMutation(ctx, token)
	return sweet, nil
}

// Delete は商品を削除する（管理者のみ）。
// 成功時はキャッシュを無効化して再取得する。
func (s *Service) Delete(ctx context.Context, token, id string) error {
	if err := s.api.DeleteSweet(ctx, token, id); err != nil {
		return err
	}

	s.refreshAfterMutation(ctx, token)
	return nil
}

// Stats は在庫統計を取得する（管理者のみ）。
func (s *Service) Stats(ctx context.Context, token string) (*model.InventoryStats, error) {
	return s.api.InventoryStats(ctx, token)
}

// LowStock は在庫が閾値以下の商品リストを取得する（管理者のみ）。
func (s *Service) LowStock(ctx context.Context, token string, threshold int) ([]model.Sweet, error) {
	if threshold < 0 {
		return nil, model.NewValidationError("閾値は0以上で指定してください")
	}
	return s.api.LowStock(ctx, token, threshold)
}

// OutOfStock は在庫切れ商品のリストを取得する（管理者のみ）。
func (s *Service) OutOfStock(ctx context.Context, token string) ([]model.Sweet, error) {
	return s.api.OutOfStock(ctx, token)
}

// BulkRestock は複数商品の在庫を一括補充する（管理者のみ）。
// 成功時はキャッシュを無効化して再取得する。
func (s *Service) BulkRestock(ctx context.Context, token string, entries []model.BulkRestockEntry) (*model.MutationResult, error) {
	if len(entries) == 0 {
		return nil, model.NewValidationError("補充対象の商品を1件以上指定してください")
	}
	for _, e := range entries {
		if e.SweetID == "" {
			return nil, model.NewValidationError("商品IDが指定されていない補充エントリがあります")
		}
		if e.Quantity < 1 {
			return nil, model.NewValidationError("補充数量は1以上で指定してください")
		}
	}

	result, err := s.api.BulkRestock(ctx, token, entries)
	if err != nil {
		return nil, err
	}

	s.refreshAfterMutation(ctx, token)
	return result, nil
}

// ListCategories はカテゴリ一覧を取得する。
func (s *Service) ListCategories(ctx context.Context, token string) ([]string, error) {
	return s.api.Categories(ctx, token)
}

// validateInput は作成・更新の入力値をローカルで検証する。
// バックエンドと同じ制約を適用し、明らかに不正な入力の往復を省く。
func (s *Service) validateInput(input model.SweetInput) error {
	if input.Name == "" {
		return model.NewValidationError("商品名は必須です")
	}
	if len(input.Name) > 100 {
		return model.NewValidationError("商品名は100文字以内で指定してください")
	}
	if input.Category == "" || input.Category == model.CategoryAll {
		return model.NewValidationError("カテゴリは必須です")
	}
	if len(input.Category) > 50 {
		return model.NewValidationError("カテゴリは50文字以内で指定してください")
	}
	if !validCategories[input.Category] {
		return model.NewInvalidCategoryError(input.Category)
	}
	if input.Price <= 0 {
		return model.NewValidationError("価格は0より大きい値で指定してください")
	}
	if input.Quantity < 0 {
		return model.NewValidationError("在庫数は0以上で指定してください")
	}
	if len(input.Description) > 500 {
		return model.NewValidationError("説明は500文字以内で指定してください")
	}
	if input.ImageURL != "" {
		if err := s.imageGuard.ValidateURL(input.ImageURL); err != nil {
			return model.NewInvalidImageURLError(err.Error())
		}
	}
	return nil
}

// refreshAfterMutation は在庫変更成功後のキャッシュ無効化と再取得を行う。
// 再取得の失敗は変更操作自体の失敗にはしない（次の取得・ポーリングで回復する）。
func (s *Service) refreshAfterMutation(ctx context.Context, token string) {
	s.invalidate()
	if err := s.Refresh(ctx, token); err != nil {
		s.logger.Warn("変更後のカタログ再取得に失敗しました",
			slog.String("error", err.Error()),
		)
	}
}

// invalidate はキャッシュを無効化し世代番号を進める。
// 古い世代で開始した取得（定期ポーリング等）の結果はinstall時に破棄される。
// itemsは最後の内容のまま残し、QuickFilterやlast-known-goodの返却に使う。
func (s *Service) invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	s.loaded = false
}

// snapshot はキャッシュのコピーと有効フラグを返す。
func (s *Service) snapshot() ([]model.Sweet, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]model.Sweet, len(s.items))
	copy(items, s.items)
	return items, s.loaded
}

// findCached はキャッシュから指定IDの商品を探す。
func (s *Service) findCached(id string) (model.Sweet, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, item := range s.items {
		if item.ID == id {
			return item, true
		}
	}
	return model.Sweet{}, false
}

// sanitizeAll はリスト内の全商品の説明をサニタイズする。
func (s *Service) sanitizeAll(sweets []model.Sweet) {
	for i := range sweets {
		sweets[i].Description = s.sanitizer.Sanitize(sweets[i].Description)
	}
}
