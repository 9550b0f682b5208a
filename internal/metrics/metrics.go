// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SyncRecorder は説教フィード同期のメトリクス収集インターフェース。
// ワーカーから利用する。
type SyncRecorder interface {
	RecordSyncSuccess(branchID string)
	RecordSyncFailure(branchID string, reason string)
	RecordParseFailure(branchID string)
	RecordHTTPStatus(statusCode int)
	RecordFetchLatency(duration time.Duration)
	RecordSermonsUpserted(count int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	hydration       *prometheus.CounterVec
	scriptureReqs   *prometheus.CounterVec
	scriptureTime   *prometheus.HistogramVec
	noteOps         *prometheus.CounterVec
	syncSuccess     prometheus.Counter
	syncFail        *prometheus.CounterVec
	parseFail       prometheus.Counter
	httpStatus      *prometheus.CounterVec
	fetchLatency    prometheus.Histogram
	sermonsUpserted prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		hydration: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "churchconnect_session_hydration_total",
			Help: "セッションのハイドレーション結果別の回数",
		}, []string{"outcome"}),
		scriptureReqs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "churchconnect_scripture_requests_total",
			Help: "聖書APIの呼び出し回数",
		}, []string{"operation", "outcome"}),
		scriptureTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "churchconnect_scripture_request_seconds",
			Help:    "聖書API呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		noteOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "churchconnect_note_operations_total",
			Help: "聖書ノート操作の回数",
		}, []string{"operation", "outcome"}),
		syncSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "churchconnect_sermon_sync_success_total",
			Help: "説教フィード同期成功の合計数",
		}),
		syncFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "churchconnect_sermon_sync_fail_total",
			Help: "説教フィード同期失敗の合計数",
		}, []string{"reason"}),
		parseFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "churchconnect_sermon_parse_fail_total",
			Help: "説教フィードパース失敗の合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "churchconnect_sermon_http_status_total",
			Help: "説教フィード取得のHTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		fetchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "churchconnect_sermon_fetch_latency_seconds",
			Help:    "説教フィード取得のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		sermonsUpserted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "churchconnect_sermons_upserted_total",
			Help: "アップサートされた説教の合計数",
		}),
	}

	reg.MustRegister(
		c.hydration,
		c.scriptureReqs,
		c.scriptureTime,
		c.noteOps,
		c.syncSuccess,
		c.syncFail,
		c.parseFail,
		c.httpStatus,
		c.fetchLatency,
		c.sermonsUpserted,
	)

	return c
}

// RegisterActiveSessions は保持中のセッション数を返す関数をゲージとして登録する。
func RegisterActiveSessions(reg prometheus.Registerer, count func() int) {
	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "churchconnect_active_sessions",
		Help: "メモリ上に保持しているブラウザセッション数",
	}, func() float64 {
		return float64(count())
	}))
}

// RecordHydration はハイドレーション結果を記録する。
func (c *Collector) RecordHydration(outcome string) {
	c.hydration.WithLabelValues(outcome).Inc()
}

// RecordScriptureRequest は聖書APIの呼び出しを記録する。
func (c *Collector) RecordScriptureRequest(operation, outcome string, duration time.Duration) {
	c.scriptureReqs.WithLabelValues(operation, outcome).Inc()
	c.scriptureTime.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordNoteOperation は聖書ノート操作を記録する。
func (c *Collector) RecordNoteOperation(operation, outcome string) {
	c.noteOps.WithLabelValues(operation, outcome).Inc()
}

// RecordSyncSuccess は説教フィード同期の成功を記録する。
func (c *Collector) RecordSyncSuccess(branchID string) {
	c.syncSuccess.Inc()
}

// RecordSyncFailure は説教フィード同期の失敗を記録する。
func (c *Collector) RecordSyncFailure(branchID string, reason string) {
	c.syncFail.WithLabelValues(reason).Inc()
}

// RecordParseFailure はパース失敗を記録する。
func (c *Collector) RecordParseFailure(branchID string) {
	c.parseFail.Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordFetchLatency はフィード取得のレイテンシを記録する。
func (c *Collector) RecordFetchLatency(duration time.Duration) {
	c.fetchLatency.Observe(duration.Seconds())
}

// RecordSermonsUpserted はアップサートされた説教数を記録する。
func (c *Collector) RecordSermonsUpserted(count int) {
	c.sermonsUpserted.Add(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// ワーカーモードでAPIサーバーとは別ポートで公開する場合に使う。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
