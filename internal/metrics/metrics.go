// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// バックエンドクライアント、カタログサービス、セッション層から利用する。
type MetricsCollector interface {
	RecordUpstreamStatus(statusCode int)
	RecordUpstreamLatency(duration time.Duration)
	RecordUpstreamFailure()
	RecordCacheRefresh(success bool)
	RecordBlockedPurchase()
	RecordLogin(success bool)
	RecordSessionInvalidated()
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	upstreamStatus     *prometheus.CounterVec
	upstreamLatency    prometheus.Histogram
	upstreamFail       prometheus.Counter
	cacheRefresh       *prometheus.CounterVec
	blockedPurchases   prometheus.Counter
	logins             *prometheus.CounterVec
	sessionInvalidated prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		upstreamStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sweetshop_upstream_status_total",
			Help: "バックエンドAPIのHTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		upstreamLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sweetshop_upstream_latency_seconds",
			Help:    "バックエンドAPI呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		upstreamFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sweetshop_upstream_fail_total",
			Help: "バックエンドAPIのトランスポート障害の合計数",
		}),
		cacheRefresh: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sweetshop_cache_refresh_total",
			Help: "カタログキャッシュ更新の結果別の合計数",
		}, []string{"result"}),
		blockedPurchases: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sweetshop_blocked_purchase_total",
			Help: "在庫切れによりローカルで遮断された購入リクエストの合計数",
		}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sweetshop_login_total",
			Help: "ログイン試行の結果別の合計数",
		}, []string{"result"}),
		sessionInvalidated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sweetshop_session_invalidated_total",
			Help: "バックエンド401により破棄されたセッションの合計数",
		}),
	}

	reg.MustRegister(
		c.upstreamStatus,
		c.upstreamLatency,
		c.upstreamFail,
		c.cacheRefresh,
		c.blockedPurchases,
		c.logins,
		c.sessionInvalidated,
	)

	return c
}

// RecordUpstreamStatus はバックエンドのHTTPステータスコードを記録する。
func (c *Collector) RecordUpstreamStatus(statusCode int) {
	c.upstreamStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordUpstreamLatency はバックエンド呼び出しのレイテンシを記録する。
func (c *Collector) RecordUpstreamLatency(duration time.Duration) {
	c.upstreamLatency.Observe(duration.Seconds())
}

// RecordUpstreamFailure はバックエンドのトランスポート障害を記録する。
func (c *Collector) RecordUpstreamFailure() {
	c.upstreamFail.Inc()
}

// RecordCacheRefresh はカタログキャッシュ更新の結果を記録する。
func (c *Collector) RecordCacheRefresh(success bool) {
	c.cacheRefresh.WithLabelValues(resultLabel(success)).Inc()
}

// RecordBlockedPurchase はローカルで遮断された購入リクエストを記録する。
func (c *Collector) RecordBlockedPurchase() {
	c.blockedPurchases.Inc()
}

// RecordLogin はログイン試行の結果を記録する。
func (c *Collector) RecordLogin(success bool) {
	c.logins.WithLabelValues(resultLabel(success)).Inc()
}

// RecordSessionInvalidated はバックエンド401によるセッション破棄を記録する。
func (c *Collector) RecordSessionInvalidated() {
	c.sessionInvalidated.Inc()
}

func resultLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
