// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 外部API呼び出しの結果ラベル。
const (
	OutcomeSuccess     = "success"
	OutcomeFailure     = "failure"
	OutcomeBreakerOpen = "breaker_open"
)

// MetricsCollector はメトリクス収集のインターフェース。
// 外部APIクライアント、サービス層、HTTPミドルウェアから利用する。
type MetricsCollector interface {
	RecordUpstreamRequest(source, outcome string)
	RecordUpstreamLatency(source string, duration time.Duration)
	RecordBreakerState(source string, open bool)
	RecordItemsDropped(source string, count int)
	RecordFavoriteAdded(kind string, created bool)
	RecordFavoritesRemoved(count int)
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	upstreamRequests *prometheus.CounterVec
	upstreamLatency  *prometheus.HistogramVec
	breakerOpen      *prometheus.GaugeVec
	itemsDropped     *prometheus.CounterVec
	favoritesAdded   *prometheus.CounterVec
	favoritesRemoved prometheus.Counter
	httpStatus       *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		upstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mediafav_upstream_requests_total",
			Help: "外部カタログAPI呼び出しの結果別合計数",
		}, []string{"source", "outcome"}),
		upstreamLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mediafav_upstream_latency_seconds",
			Help:    "外部カタログAPI呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"source"}),
		breakerOpen: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mediafav_upstream_breaker_open",
			Help: "サーキットブレーカーが開いている場合は1",
		}, []string{"source"}),
		itemsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mediafav_normalize_dropped_total",
			Help: "正規化で除外された検索結果の合計数",
		}, []string{"source"}),
		favoritesAdded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mediafav_favorites_added_total",
			Help: "お気に入り追加リクエストの合計数",
		}, []string{"kind", "created"}),
		favoritesRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mediafav_favorites_removed_total",
			Help: "削除されたお気に入りの合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mediafav_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.upstreamRequests,
		c.upstreamLatency,
		c.breakerOpen,
		c.itemsDropped,
		c.favoritesAdded,
		c.favoritesRemoved,
		c.httpStatus,
	)

	return c
}

// RecordUpstreamRequest は外部API呼び出しの結果を記録する。
func (c *Collector) RecordUpstreamRequest(source, outcome string) {
	c.upstreamRequests.WithLabelValues(source, outcome).Inc()
}

// RecordUpstreamLatency は外部API呼び出しのレイテンシを記録する。
func (c *Collector) RecordUpstreamLatency(source string, duration time.Duration) {
	c.upstreamLatency.WithLabelValues(source).Observe(duration.Seconds())
}

// RecordBreakerState はサーキットブレーカーの開閉状態を記録する。
func (c *Collector) RecordBreakerState(source string, open bool) {
	v := 0.0
	if open {
		v = 1
	}
	c.breakerOpen.WithLabelValues(source).Set(v)
}

// RecordItemsDropped は正規化で除外された件数を記録する。
func (c *Collector) RecordItemsDropped(source string, count int) {
	c.itemsDropped.WithLabelValues(source).Add(float64(count))
}

// RecordFavoriteAdded はお気に入り追加の結果を記録する。
func (c *Collector) RecordFavoriteAdded(kind string, created bool) {
	c.favoritesAdded.WithLabelValues(kind, strconv.FormatBool(created)).Inc()
}

// RecordFavoritesRemoved は削除されたお気に入り件数を記録する。
func (c *Collector) RecordFavoritesRemoved(count int) {
	c.favoritesRemoved.Add(float64(count))
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}

// compile-time interface check
var _ MetricsCollector = (*Collector)(nil)
