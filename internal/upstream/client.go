// Package upstream はスイーツショップバックエンドAPIのクライアントを提供する。
// 認証、カタログ取得・検索、在庫操作のすべての送信リクエストをラップし、
// トークンが存在する場合は Authorization: Bearer ヘッダーを付与する。
// バックエンドからの401はErrUnauthorized番兵として呼び出し元に伝搬し、
// セッション破棄とログインへのリダイレクトを引き起こす。
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/hitoshi/sweetshop/internal/model"
)

// ErrUnauthorized はバックエンドが401を返したことを示す番兵エラー。
// ログイン呼び出し自体を除き、検出時にはセッションを無条件に破棄する。
var ErrUnauthorized = errors.New("upstream returned 401 unauthorized")

// MetricsRecorder はバックエンド呼び出しのメトリクス記録インターフェース。
// metricsパッケージのCollectorが実装する。
type MetricsRecorder interface {
	RecordUpstreamStatus(statusCode int)
	RecordUpstreamLatency(duration time.Duration)
	RecordUpstreamFailure()
}

// Client はバックエンドAPIのクライアント。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	metrics    MetricsRecorder
	baseURL    string // 例: "http://localhost:8000/api"
}

// NewClient はClientの新しいインスタンスを生成する。
// metricsがnilの場合は記録をスキップする。
func NewClient(httpClient *http.Client, logger *slog.Logger, metrics MetricsRecorder, baseURL string) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		metrics:    metrics,
		baseURL:    baseURL,
	}
}

// statusError はバックエンドのエラーレスポンスを表す内部エラー。
// detailはバックエンドのエラーペイロードのdetailフィールド（存在する場合）。
type statusError struct {
	status int
	detail string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("upstream returned status %d: %s", e.status, e.detail)
}

// LoginResult はログイン・登録APIの応答を表す。
type LoginResult struct {
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token"`
	User         model.User `json:"user"`
}

// Login は認証情報でログインし、トークンとユーザーを取得する。
// 認証情報が誤っている場合（401/403）は資格情報エラーを返す。
// ログインの401はセッション失効ではないため、ErrUnauthorizedにはしない。
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	body := map[string]string{"email": email, "password": password}

	var result LoginResult
	err := c.do(ctx, http.MethodPost, "/auth/login", "", body, &result)
	if err != nil {
		var se *statusError
		if errors.As(err, &se) && (se.status == http.StatusUnauthorized || se.status == http.StatusForbidden) {
			return nil, model.NewInvalidCredentialsError(se.detail)
		}
		return nil, c.mapError(err)
	}
	return &result, nil
}

// Register は新規ユーザーを登録する。
// バックエンドは登録成功時にもトークンを発行するため、応答はLoginResultと同形。
func (c *Client) Register(ctx context.Context, username, email, password string) (*LoginResult, error) {
	body := map[string]string{"username": username, "email": email, "password": password}

	var result LoginResult
	err := c.do(ctx, http.MethodPost, "/auth/register", "", body, &result)
	if err != nil {
		var se *statusError
		if errors.As(err, &se) && se.status == http.StatusBadRequest {
			return nil, model.NewValidationError(se.detail)
		}
		return nil, c.mapError(err)
	}
	return &result, nil
}

// Profile は現在のユーザープロフィールを取得する。
// セッション復元時のトークン有効性確認を兼ねる。
func (c *Client) Profile(ctx context.Context, token string) (*model.User, error) {
	var user model.User
	if err := c.do(ctx, http.MethodGet, "/auth/profile", token, nil, &user); err != nil {
		return nil, c.mapError(err)
	}
	return &user, nil
}

// ListSweets は商品の全件リストを取得する。
func (c *Client) ListSweets(ctx context.Context, token string) ([]model.Sweet, error) {
	var sweets []model.Sweet
	if err := c.do(ctx, http.MethodGet, "/sweets", token, nil, &sweets); err != nil {
		return nil, c.mapError(err)
	}
	return sweets, nil
}

// SearchSweets は検索条件に一致する商品リストを取得する。
// 既定値のフィールドはクエリパラメータに含めない。
func (c *Client) SearchSweets(ctx context.Context, token string, query model.SearchQuery) ([]model.Sweet, error) {
	params := url.Values{}
	if query.Name != "" {
		params.Set("name", query.Name)
	}
	if query.Category != "" && query.Category != model.CategoryAll {
		params.Set("category", query.Category)
	}
	if query.MinPrice != nil {
		params.Set("min_price", strconv.FormatFloat(*query.MinPrice, 'f', -1, 64))
	}
	if query.MaxPrice != nil {
		params.Set("max_price", strconv.FormatFloat(*query.MaxPrice, 'f', -1, 64))
	}

	path := "/sweets/search"
	if encoded := params.Encode(); encoded != "" {
		path += "?" + encoded
	}

	var sweets []model.Sweet
	if err := c.do(ctx, http.MethodGet, path, token, nil, &sweets); err != nil {
		return nil, c.mapError(err)
	}
	return sweets, nil
}

// GetSweet は指定IDの商品を取得する。
func (c *Client) GetSweet(ctx context.Context, token, id string) (*model.Sweet, error) {
	var sweet model.Sweet
	err := c.do(ctx, http.MethodGet, "/sweets/"+url.PathEscape(id), token, nil, &sweet)
	if err != nil {
		var se *statusError
		if errors.As(err, &se) && se.status == http.StatusNotFound {
			return nil, model.NewSweetNotFoundError(id)
		}
		return nil, c.mapError(err)
	}
	return &sweet, nil
}

// CreateSweet は商品を新規作成する（管理者のみ）。
func (c *Client) CreateSweet(ctx context.Context, token string, input model.SweetInput) (*model.Sweet, error) {
	var sweet model.Sweet
	if err := c.do(ctx, http.MethodPost, "/sweets", token, input, &sweet); err != nil {
		return nil, c.mapError(err)
	}
	return &sweet, nil
}

// UpdateSweet は商品情報を更新する（管理者のみ）。
func (c *Client) UpdateSweet(ctx context.Context, token, id string, input model.SweetInput) (*model.Sweet, error) {
	var sweet model.Sweet
	err := c.do(ctx, http.MethodPut, "/sweets/"+url.PathEscape(id), token, input, &sweet)
	if err != nil {
		var se *statusError
		if errors.As(err, &se) && se.status == http.StatusNotFound {
			return nil, model.NewSweetNotFoundError(id)
		}
		return nil, c.mapError(err)
	}
	return &sweet, nil
}

// DeleteSweet は商品を削除する（管理者のみ）。
func (c *Client) DeleteSweet(ctx context.Context, token, id string) error {
	err := c.do(ctx, http.MethodDelete, "/sweets/"+url.PathEscape(id), token, nil, nil)
	if err != nil {
		var se *statusError
		if errors.As(err, &se) && se.status == http.StatusNotFound {
			return model.NewSweetNotFoundError(id)
		}
		return c.mapError(err)
	}
	return nil
}

// Purchase は商品を購入する。在庫の減算はバックエンドが行う。
func (c *Client) Purchase(ctx context.Context, token, id string, quantity int) (*model.MutationResult, error) {
	body := map[string]int{"quantity": quantity}

	var result model.MutationResult
	err := c.do(ctx, http.MethodPost, "/sweets/"+url.PathEscape(id)+"/purchase", token, body, &result)
	if err != nil {
		return nil, c.mapError(err)
	}
	return &result, nil
}

// Restock は商品の在庫を補充する（管理者のみ）。
func (c *Client) Restock(ctx context.Context, token, id string, quantity int) (*model.MutationResult, error) {
	body := map[string]int{"quantity": quantity}

	var result model.MutationResult
	err := c.do(ctx, http.MethodPost, "/sweets/"+url.PathEscape(id)+"/restock", token, body, &result)
	if err != nil {
		return nil, c.mapError(err)
	}
	return &result, nil
}

// InventoryStats は在庫統計を取得する（管理者のみ）。
func (c *Client) InventoryStats(ctx context.Context, token string) (*model.InventoryStats, error) {
	var stats model.InventoryStats
	if err := c.do(ctx, http.MethodGet, "/inventory/stats", token, nil, &stats); err != nil {
		return nil, c.mapError(err)
	}
	return &stats, nil
}

// LowStock は在庫が閾値以下の商品リストを取得する（管理者のみ）。
func (c *Client) LowStock(ctx context.Context, token string, threshold int) ([]model.Sweet, error) {
	path := fmt.Sprintf("/inventory/low-stock?threshold=%d", threshold)

	var sweets []model.Sweet
	if err := c.do(ctx, http.MethodGet, path, token, nil, &sweets); err != nil {
		return nil, c.mapError(err)
	}
	return sweets, nil
}

// OutOfStock は在庫切れ商品のリストを取得する（管理者のみ）。
func (c *Client) OutOfStock(ctx context.Context, token string) ([]model.Sweet, error) {
	var sweets []model.Sweet
	if err := c.do(ctx, http.MethodGet, "/inventory/out-of-stock", token, nil, &sweets); err != nil {
		return nil, c.mapError(err)
	}
	return sweets, nil
}

// BulkRestock は複数商品の在庫を一括補充する（管理者のみ）。
func (c *Client) BulkRestock(ctx context.Context, token string, entries []model.BulkRestockEntry) (*model.MutationResult, error) {
	var result model.MutationResult
	if err := c.do(ctx, http.MethodPost, "/inventory/bulk-restock", token, entries, &result); err != nil {
		return nil, c.mapError(err)
	}
	return &result, nil
}

// Categories はカテゴリ一覧を取得する。
func (c *Client) Categories(ctx context.Context, token string) ([]string, error) {
	var categories []string
	if err := c.do(ctx, http.MethodGet, "/sweets/categories/list", token, nil, &categories); err != nil {
		return nil, c.mapError(err)
	}
	return categories, nil
}

// do はバックエンドへのHTTPリクエストを1回実行する。
// tokenが非空の場合はAuthorizationヘッダーを付与する。
// 2xx以外のステータスはstatusErrorとして返す。
// outがnilでない場合はレスポンスボディをJSONデコードする。
func (c *Client) do(ctx context.Context, method, path, token string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if c.metrics != nil {
			c.metrics.RecordUpstreamFailure()
		}
		c.logger.Error("バックエンドAPIの呼び出しに失敗しました",
			slog.String("method", method),
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("upstream request failed: %w", err)
	}
	defer resp.Body.Close()

	if c.metrics != nil {
		c.metrics.RecordUpstreamStatus(resp.StatusCode)
		c.metrics.RecordUpstreamLatency(time.Since(start))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail := decodeErrorDetail(resp.Body)
		c.logger.Warn("バックエンドAPIがエラーステータスを返しました",
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("http_status", resp.StatusCode),
		)
		return &statusError{status: resp.StatusCode, detail: detail}
	}

	if out == nil {
		return nil
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		c.logger.Error("バックエンドAPIのレスポンスのパースに失敗しました",
			slog.String("method", method),
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to parse response: %w", err)
	}

	return nil
}

// mapError は内部エラーを呼び出し元向けのエラーに変換する。
//   - 401のstatusError → ErrUnauthorized（セッション破棄のトリガー）
//   - その他のstatusError → バックエンドのdetailを含むupstreamエラー
//   - トランスポート障害・パース失敗 → 一般メッセージのupstreamエラー
func (c *Client) mapError(err error) error {
	var se *statusError
	if errors.As(err, &se) {
		if se.status == http.StatusUnauthorized {
			return ErrUnauthorized
		}
		if se.status == http.StatusForbidden {
			return model.NewAdminRequiredError()
		}
		return model.NewUpstreamError(se.detail)
	}
	return model.NewUpstreamError("")
}

// decodeErrorDetail はバックエンドのエラーペイロードからdetailフィールドを取り出す。
// ペイロードがない、またはパースできない場合は空文字列を返す。
func decodeErrorDetail(r io.Reader) string {
	body, err := io.ReadAll(io.LimitReader(r, 64*1024))
	if err != nil {
		return ""
	}

	var payload struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	return payload.Detail
}
