package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/hitoshi/sweetshop/internal/middleware"
	"github.com/hitoshi/sweetshop/internal/model"
)

// InventoryServiceInterface は在庫管理ハンドラーが必要とするサービスインターフェース。
type InventoryServiceInterface interface {
	Stats(ctx context.Context, token string) (*model.InventoryStats, error)
	LowStock(ctx context.Context, token string, threshold int) ([]model.Sweet, error)
	OutOfStock(ctx context.Context, token string) ([]model.Sweet, error)
	BulkRestock(ctx context.Context, token string, entries []model.BulkRestockEntry) (*model.MutationResult, error)
}

// InventoryHandler は管理者向け在庫管理のHTTPハンドラー。
type InventoryHandler struct {
	service          InventoryServiceInterface
	responder        *ErrorResponder
	defaultThreshold int
}

// NewInventoryHandler はInventoryHandlerを生成する。
func NewInventoryHandler(service InventoryServiceInterface, responder *ErrorResponder, defaultThreshold int) *InventoryHandler {
	return &InventoryHandler{
		service:          service,
		responder:        responder,
		defaultThreshold: defaultThreshold,
	}
}

// bulkRestockRequest は一括補充リクエストのボディ。
type bulkRestockRequest struct {
	Entries []model.BulkRestockEntry `json:"entries"`
}

// Stats は在庫統計を返す。
// GET /api/inventory/stats
func (h *InventoryHandler) Stats(w http.ResponseWriter, r *http.Request) {
	token := middleware.AccessTokenFromContext(r.Context())

	stats, err := h.service.Stats(r.Context(), token)
	if err != nil {
		h.responder.HandleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

// LowStock は在庫僅少の商品リストを返す。
// GET /api/inventory/low-stock?threshold=
// thresholdの省略時は設定値を使う。
func (h *InventoryHandler) LowStock(w http.ResponseWriter, r *http.Request) {
	threshold := h.defaultThreshold
	if raw := r.URL.Query().Get("threshold"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			middleware.WriteAPIError(w, model.NewValidationError("thresholdは整数で指定してください"))
			return
		}
		threshold = v
	}

	token := middleware.AccessTokenFromContext(r.Context())
	sweets, err := h.service.LowStock(r.Context(), token, threshold)
	if err != nil {
		h.responder.HandleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, sweets)
}

// OutOfStock は在庫切れの商品リストを返す。
// GET /api/inventory/out-of-stock
func (h *InventoryHandler) OutOfStock(w http.ResponseWriter, r *http.Request) {
	token := middleware.AccessTokenFromContext(r.Context())

	sweets, err := h.service.OutOfStock(r.Context(), token)
	if err != nil {
		h.responder.HandleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, sweets)
}

// BulkRestock は複数商品の在庫を一括補充する。
// POST /api/inventory/bulk-restock
func (h *InventoryHandler) BulkRestock(w http.ResponseWriter, r *http.Request) {
	var req bulkRestockRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	token := middleware.AccessTokenFromContext(r.Context())
	result, err := h.service.BulkRestock(r.Context(), token, req.Entries)
	if err != nil {
		h.responder.HandleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}
