// Package metrics 定义服务的 Prometheus 指标。
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rushteam/creditiq/feature"
)

const namespace = "creditiq"

// Collector 聚合全部指标。实现 feature.Monitor 与 artifact.LoadObserver。
type Collector struct {
	gatherer prometheus.Gatherer

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	predictionsTotal  *prometheus.CounterVec
	inferenceDuration *prometheus.HistogramVec
	cacheLookups      *prometheus.CounterVec
	cacheWrites       *prometheus.CounterVec

	artifactLoads        *prometheus.CounterVec
	artifactLoadDuration prometheus.Histogram

	featuresMissing prometheus.Histogram
	featuresUnknown prometheus.Counter
}

// New 在 reg 上注册指标；reg 为 nil 时使用独立的新 registry。
func New(reg *prometheus.Registry) *Collector {
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	f := promauto.With(reg)

	return &Collector{
		gatherer: reg,

		httpRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "api",
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		httpRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "api",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms to ~4s
			},
			[]string{"method", "route"},
		),

		predictionsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "scoring",
				Name:      "predictions_total",
				Help:      "Total number of predictions by risk level",
			},
			[]string{"risk_level"},
		),
		inferenceDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "scoring",
				Name:      "inference_duration_seconds",
				Help:      "Model inference latency",
				Buckets:   prometheus.ExponentialBuckets(0.00001, 2, 18), // 10μs to ~2.6s
			},
			[]string{"model", "result"},
		),
		cacheLookups: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "scoring",
				Name:      "cache_lookups_total",
				Help:      "Prediction cache lookups",
			},
			[]string{"result"},
		),
		cacheWrites: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "scoring",
				Name:      "cache_writes_total",
				Help:      "Prediction cache writes by result",
			},
			[]string{"result"},
		),

		artifactLoads: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "artifact",
				Name:      "loads_total",
				Help:      "Artifact load attempts",
			},
			[]string{"result"},
		),
		artifactLoadDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "artifact",
				Name:      "load_duration_seconds",
				Help:      "Artifact load duration",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 15),
			},
		),

		featuresMissing: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "feature",
				Name:      "missing_per_request",
				Help:      "Number of schema features defaulted per request",
				Buckets:   []float64{0, 1, 5, 10, 50, 100, 200, 400, 700},
			},
		),
		featuresUnknown: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "feature",
				Name:      "unknown_total",
				Help:      "Client supplied keys not present in the feature schema",
			},
		),
	}
}

// Handler 返回 /metrics handler
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}

// ObserveHTTP 记录一次 HTTP 请求
func (c *Collector) ObserveHTTP(method, route string, status int, d time.Duration) {
	c.httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// ObservePrediction 记录一次成功预测
func (c *Collector) ObservePrediction(riskLevel string) {
	c.predictionsTotal.WithLabelValues(riskLevel).Inc()
}

// ObserveInference 记录一次模型推理
func (c *Collector) ObserveInference(model string, d time.Duration, err error) {
	c.inferenceDuration.WithLabelValues(model, result(err)).Observe(d.Seconds())
}

// ObserveCache 记录一次缓存查询
func (c *Collector) ObserveCache(hit bool) {
	if hit {
		c.cacheLookups.WithLabelValues("hit").Inc()
		return
	}
	c.cacheLookups.WithLabelValues("miss").Inc()
}

// ObserveCacheWrite 记录一次缓存写入
func (c *Collector) ObserveCacheWrite(err error) {
	c.cacheWrites.WithLabelValues(result(err)).Inc()
}

// ObserveArtifactLoad 实现 artifact.LoadObserver
func (c *Collector) ObserveArtifactLoad(d time.Duration, err error) {
	c.artifactLoads.WithLabelValues(result(err)).Inc()
	c.artifactLoadDuration.Observe(d.Seconds())
}

// RecordReconcile 实现 feature.Monitor
func (c *Collector) RecordReconcile(_ context.Context, stats feature.ReconcileStats) {
	c.featuresMissing.Observe(float64(len(stats.Missing)))
	c.featuresUnknown.Add(float64(len(stats.Unknown)))
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

var _ feature.Monitor = (*Collector)(nil)
