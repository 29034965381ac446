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
// フェッチャーやサービス層から利用する。
type MetricsCollector interface {
	RecordCacheHit()
	RecordCacheMiss()
	RecordFetchSuccess()
	RecordFetchFailure(reason string)
	RecordFetchLatency(duration time.Duration)
	IncInFlight()
	DecInFlight()
	RecordSnapshot(entries int, duration time.Duration)
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	cacheHit         prometheus.Counter
	cacheMiss        prometheus.Counter
	fetchSuccess     prometheus.Counter
	fetchFail        *prometheus.CounterVec
	fetchLatency     prometheus.Histogram
	inFlight         prometheus.Gauge
	snapshotEntries  prometheus.Gauge
	snapshotDuration prometheus.Histogram
	httpStatus       *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		cacheHit: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "eloboard_profile_cache_hit_total",
			Help: "鮮度期間内のキャッシュから返したプロフィール数",
		}),
		cacheMiss: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "eloboard_profile_cache_miss_total",
			Help: "キャッシュ未登録または期限切れで外部取得したプロフィール数",
		}),
		fetchSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "eloboard_remote_fetch_success_total",
			Help: "外部レーティングサービスからの取得成功の合計数",
		}),
		fetchFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eloboard_remote_fetch_fail_total",
			Help: "外部レーティングサービスからの取得失敗の合計数（理由別）",
		}, []string{"reason"}),
		fetchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "eloboard_remote_fetch_latency_seconds",
			Help:    "外部レーティングサービス呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "eloboard_remote_fetch_in_flight",
			Help: "実行中の外部レーティングサービス呼び出し数",
		}),
		snapshotEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "eloboard_snapshot_entries",
			Help: "直近に組み立てたリーダーボードのエントリ数",
		}),
		snapshotDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "eloboard_snapshot_duration_seconds",
			Help:    "リーダーボード組み立ての所要時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eloboard_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.cacheHit,
		c.cacheMiss,
		c.fetchSuccess,
		c.fetchFail,
		c.fetchLatency,
		c.inFlight,
		c.snapshotEntries,
		c.snapshotDuration,
		c.httpStatus,
	)

	return c
}

// RecordCacheHit はキャッシュヒットを記録する。
func (c *Collector) RecordCacheHit() {
	c.cacheHit.Inc()
}

// RecordCacheMiss はキャッシュミスを記録する。
func (c *Collector) RecordCacheMiss() {
	c.cacheMiss.Inc()
}

// RecordFetchSuccess は外部取得成功を記録する。
func (c *Collector) RecordFetchSuccess() {
	c.fetchSuccess.Inc()
}

// RecordFetchFailure は外部取得失敗を理由別に記録する。
// reasonは not_found, remote, unconfigured のいずれか。
func (c *Collector) RecordFetchFailure(reason string) {
	c.fetchFail.WithLabelValues(reason).Inc()
}

// RecordFetchLatency は外部取得のレイテンシを記録する。
func (c *Collector) RecordFetchLatency(duration time.Duration) {
	c.fetchLatency.Observe(duration.Seconds())
}

// IncInFlight は実行中の外部呼び出し数を1増やす。
func (c *Collector) IncInFlight() {
	c.inFlight.Inc()
}

// DecInFlight は実行中の外部呼び出し数を1減らす。
func (c *Collector) DecInFlight() {
	c.inFlight.Dec()
}

// RecordSnapshot はリーダーボード組み立て結果を記録する。
func (c *Collector) RecordSnapshot(entries int, duration time.Duration) {
	c.snapshotEntries.Set(float64(entries))
	c.snapshotDuration.Observe(duration.Seconds())
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Nop は何も記録しないMetricsCollector。
// メトリクスが不要なテストやコマンドで使用する。
type Nop struct{}

func (Nop) RecordCacheHit() {}
func (Nop) RecordCacheMiss() {}
func (Nop) RecordFetchSuccess() {}
func (Nop) RecordFetchFailure(string) {}
func (Nop) RecordFetchLatency(time.Duration) {}
func (Nop) IncInFlight() {}
func (Nop) DecInFlight() {}
func (Nop) RecordSnapshot(int, time.Duration) {}
func (Nop) RecordHTTPStatus(int) {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// NewStatusMiddleware はレスポンスのHTTPステータスコードを記録するミドルウェアを返す。
func NewStatusMiddleware(collector MetricsCollector) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(rec, r)
			collector.RecordHTTPStatus(rec.statusCode)
		})
	}
}

// statusRecorder はhttp.ResponseWriterをラップし、ステータスコードを記録する。
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (sr *statusRecorder) WriteHeader(code int) {
	if !sr.written {
		sr.statusCode = code
		sr.written = true
	}
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if !sr.written {
		sr.written = true
	}
	return sr.ResponseWriter.Write(b)
}
