package handler

import (
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/sweetshop/internal/middleware"
	"github.com/hitoshi/sweetshop/internal/model"
	"github.com/hitoshi/sweetshop/internal/security"
)

// imageProxyMaxBytes は画像プロキシが転送する最大バイト数。
const imageProxyMaxBytes = 10 << 20 // 10MiB

// ImageHandler は商品画像のプロキシ取得を担うHTTPハンドラー。
// 外部画像を直接ブラウザに読み込ませず、SSRF防止付きクライアントで
// サーバー側から取得して転送する。
type ImageHandler struct {
	guard   security.ImageGuardService
	timeout time.Duration
	logger  *slog.Logger
}

// NewImageHandler はImageHandlerを生成する。
func NewImageHandler(guard security.ImageGuardService, timeout time.Duration, logger *slog.Logger) *ImageHandler {
	return &ImageHandler{
		guard:   guard,
		timeout: timeout,
		logger:  logger,
	}
}

// Proxy は指定URLの画像を取得して転送する。
// GET /api/image-proxy?url=
// URLの静的検証に加え、フェッチ時もsafeurlのDialer検証が効く。
func (h *ImageHandler) Proxy(w http.ResponseWriter, r *http.Request) {
	rawURL := r.URL.Query().Get("url")
	if rawURL == "" {
		middleware.WriteAPIError(w, model.NewValidationError("urlパラメータは必須です"))
		return
	}

	if err := h.guard.ValidateURL(rawURL); err != nil {
		middleware.WriteAPIError(w, model.NewInvalidImageURLError(err.Error()))
		return
	}

	client := h.guard.NewSafeClient(h.timeout)
	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, rawURL, nil)
	if err != nil {
		middleware.WriteAPIError(w, model.NewInvalidImageURLError(err.Error()))
		return
	}

	resp, err := client.Do(req)
	if err != nil {
		h.logger.Warn("画像の取得に失敗しました",
			slog.String("url", rawURL),
			slog.String("error", err.Error()),
		)
		middleware.WriteAPIError(w, model.NewUpstreamError("画像の取得に失敗しました"))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		middleware.WriteAPIError(w, model.NewUpstreamError("画像の取得に失敗しました"))
		return
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, io.LimitReader(resp.Body, imageProxyMaxBytes)); err != nil {
		h.logger.Warn("画像の転送に失敗しました",
			slog.String("url", rawURL),
			slog.String("error", err.Error()),
		)
	}
}
