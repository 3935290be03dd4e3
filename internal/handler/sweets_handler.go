package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/sweetshop/internal/middleware"
	"github.com/hitoshi/sweetshop/internal/model"
)

// CatalogServiceInterface はカタログハンドラーが必要とするサービスインターフェース。
type CatalogServiceInterface interface {
	List(ctx context.Context, token string) ([]model.Sweet, error)
	Search(ctx context.Context, token string, query model.SearchQuery) ([]model.Sweet, error)
	QuickFilter(query model.SearchQuery) ([]model.Sweet, error)
	Get(ctx context.Context, token, id string) (*model.Sweet, error)
	Create(ctx context.Context, token string, input model.SweetInput) (*model.Sweet, error)
	Update(ctx context.Context, token, id string, input model.SweetInput) (*model.Sweet, error)
	Delete(ctx context.Context, token, id string) error
	Purchase(ctx context.Context, token, id string, quantity int) (*model.MutationResult, error)
	Restock(ctx context.Context, token, id string, quantity int) (*model.MutationResult, error)
	ListCategories(ctx context.Context, token string) ([]string, error)
}

// SweetsHandler はカタログと商品管理のHTTPハンドラー。
type SweetsHandler struct {
	service   CatalogServiceInterface
	responder *ErrorResponder
}

// NewSweetsHandler はSweetsHandlerを生成する。
func NewSweetsHandler(service CatalogServiceInterface, responder *ErrorResponder) *SweetsHandler {
	return &SweetsHandler{
		service:   service,
		responder: responder,
	}
}

// quantityRequest は購入・補充リクエストのボディ。
type quantityRequest struct {
	Quantity int `json:"quantity"`
}

// sweetInputRequest は商品の作成・更新リクエストのボディ。
type sweetInputRequest struct {
	Name        string   `json:"name"`
	Category    string   `json:"category"`
	Price       float64  `json:"price"`
	Quantity    int      `json:"quantity"`
	Description string   `json:"description"`
	ImageURL    string   `json:"image_url"`
	Tags        []string `json:"tags"`
}

func (req sweetInputRequest) toInput() model.SweetInput {
	return model.SweetInput{
		Name:        req.Name,
		Category:    req.Category,
		Price:       req.Price,
		Quantity:    req.Quantity,
		Description: req.Description,
		ImageURL:    req.ImageURL,
		Tags:        req.Tags,
	}
}

// parseSearchQuery はクエリパラメータから検索条件を組み立てる。
// 数値パラメータが不正な場合はエラーを返す。
func parseSearchQuery(r *http.Request) (model.SearchQuery, error) {
	q := model.SearchQuery{
		Name:     r.URL.Query().Get("name"),
		Category: r.URL.Query().Get("category"),
	}

	if raw := r.URL.Query().Get("min_price"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return q, model.NewValidationError("min_priceは数値で指定してください")
		}
		q.MinPrice = &v
	}
	if raw := r.URL.Query().Get("max_price"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return q, model.NewValidationError("max_priceは数値で指定してください")
		}
		q.MaxPrice = &v
	}

	return q, nil
}

// List は商品の全件リストを返す。
// GET /api/sweets
func (h *SweetsHandler) List(w http.ResponseWriter, r *http.Request) {
	token := middleware.AccessTokenFromContext(r.Context())

	sweets, err := h.service.List(r.Context(), token)
	if err != nil {
		h.responder.HandleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, sweets)
}

// Search は検索条件に一致する商品リストを返す。
// GET /api/sweets/search?name=&category=&min_price=&max_price=
func (h *SweetsHandler) Search(w http.ResponseWriter, r *http.Request) {
	query, err := parseSearchQuery(r)
	if err != nil {
		middleware.WriteAPIError(w, err)
		return
	}

	token := middleware.AccessTokenFromContext(r.Context())
	sweets, err := h.service.Search(r.Context(), token, query)
	if err != nil {
		h.responder.HandleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, sweets)
}

// QuickFilter はキャッシュに対するローカルフィルタの結果を返す。
// GET /api/sweets/quick-filter?name=&category=&min_price=&max_price=
// バックエンドを呼ばないため、カテゴリチップ等の即時の絞り込みに使う。
func (h *SweetsHandler) QuickFilter(w http.ResponseWriter, r *http.Request) {
	query, err := parseSearchQuery(r)
	if err != nil {
		middleware.WriteAPIError(w, err)
		return
	}

	sweets, err := h.service.QuickFilter(query)
	if err != nil {
		middleware.WriteAPIError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, sweets)
}

// Categories はカテゴリ一覧を返す。
// GET /api/sweets/categories
func (h *SweetsHandler) Categories(w http.ResponseWriter, r *http.Request) {
	token := middleware.AccessTokenFromContext(r.Context())

	categories, err := h.service.ListCategories(r.Context(), token)
	if err != nil {
		h.responder.HandleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, categories)
}

// Get は商品詳細を返す。
// GET /api/sweets/{id}
func (h *SweetsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	token := middleware.AccessTokenFromContext(r.Context())

	sweet, err := h.service.Get(r.Context(), token, id)
	if err != nil {
		h.responder.HandleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, sweet)
}

// Create は商品を新規作成する（管理者のみ）。
// POST /api/sweets
func (h *SweetsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req sweetInputRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	token := middleware.AccessTokenFromContext(r.Context())
	sweet, err := h.service.Create(r.Context(), token, req.toInput())
	if err != nil {
		h.responder.HandleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, sweet)
}

// Update は商品情報を更新する（管理者のみ）。
// PUT /api/sweets/{id}
func (h *SweetsHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req sweetInputRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	token := middleware.AccessTokenFromContext(r.Context())
	sweet, err := h.service.Update(r.Context(), token, id, req.toInput())
	if err != nil {
		h.responder.HandleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, sweet)
}

// Delete は商品を削除する（管理者のみ）。
// DELETE /api/sweets/{id}
func (h *SweetsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	token := middleware.AccessTokenFromContext(r.Context())

	if err := h.service.Delete(r.Context(), token, id); err != nil {
		h.responder.HandleServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Purchase は商品を購入する。
// POST /api/sweets/{id}/purchase
func (h *SweetsHandler) Purchase(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req quantityRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	token := middleware.AccessTokenFromContext(r.Context())
	result, err := h.service.Purchase(r.Context(), token, id, req.Quantity)
	if err != nil {
		h.responder.HandleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// Restock は商品の在庫を補充する（管理者のみ）。
// POST /api/sweets/{id}/restock
func (h *SweetsHandler) Restock(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req quantityRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	token := middleware.AccessTokenFromContext(r.Context())
	result, err := h.service.Restock(r.Context(), token, id, req.Quantity)
	if err != nil {
		h.responder.HandleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}
