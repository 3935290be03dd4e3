package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/sweetshop/internal/model"
)

// thresholdRecordingService はLowStockのしきい値を記録するモック。
type thresholdRecordingService struct {
	mockInventoryService
	lowStockCalls int
	lastThreshold int

	bulkEntries []model.BulkRestockEntry
}

func (m *thresholdRecordingService) LowStock(ctx context.Context, token string, threshold int) ([]model.Sweet, error) {
	m.lowStockCalls++
	m.lastThreshold = threshold
	return nil, nil
}

func (m *thresholdRecordingService) BulkRestock(ctx context.Context, token string, entries []model.BulkRestockEntry) (*model.MutationResult, error) {
	m.bulkEntries = entries
	return &model.MutationResult{Message: "補充しました"}, nil
}

func newInventoryHandler(service InventoryServiceInterface) *InventoryHandler {
	responder := NewErrorResponder(&mockInvalidator{}, &recordingAuthMetrics{}, testCookieConfig())
	return NewInventoryHandler(service, responder, 10)
}

func TestLowStock_DefaultThreshold(t *testing.T) {
	service := &thresholdRecordingService{}
	h := newInventoryHandler(service)

	req := httptest.NewRequest(http.MethodGet, "/api/inventory/low-stock", nil)
	rec := httptest.NewRecorder()
	h.LowStock(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if service.lastThreshold != 10 {
		t.Errorf("threshold = %d, want 10", service.lastThreshold)
	}
}

func TestLowStock_ExplicitThreshold(t *testing.T) {
	service := &thresholdRecordingService{}
	h := newInventoryHandler(service)

	req := httptest.NewRequest(http.MethodGet, "/api/inventory/low-stock?threshold=3", nil)
	rec := httptest.NewRecorder()
	h.LowStock(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if service.lastThreshold != 3 {
		t.Errorf("threshold = %d, want 3", service.lastThreshold)
	}
}

func TestLowStock_InvalidThreshold_RejectedWithoutServiceCall(t *testing.T) {
	service := &thresholdRecordingService{}
	h := newInventoryHandler(service)

	req := httptest.NewRequest(http.MethodGet, "/api/inventory/low-stock?threshold=many", nil)
	rec := httptest.NewRecorder()
	h.LowStock(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if service.lowStockCalls != 0 {
		t.Errorf("lowStockCalls = %d, want 0", service.lowStockCalls)
	}
}

func TestBulkRestock_ForwardsEntries(t *testing.T) {
	service := &thresholdRecordingService{}
	h := newInventoryHandler(service)

	req := httptest.NewRequest(http.MethodPost, "/api/inventory/bulk-restock",
		strings.NewReader(`{"entries":[{"sweet_id":"s-1","quantity":5},{"sweet_id":"s-2","quantity":3}]}`))
	rec := httptest.NewRecorder()
	h.BulkRestock(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if len(service.bulkEntries) != 2 || service.bulkEntries[1].SweetID != "s-2" {
		t.Errorf("entries = %+v", service.bulkEntries)
	}
}
