package api

import (
	"net/http"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// HTTPObserver 记录每个路由的请求指标，由 metrics.Collector 实现
type HTTPObserver interface {
	ObserveHTTP(method, route string, status int, d time.Duration)
	Handler() http.Handler
}

// Options 路由配置
type Options struct {
	Scorer       Scorer
	Logger       *zap.Logger
	Metrics      HTTPObserver // 可选
	CORSOrigins  []string
	RateLimit    float64 // 每 IP 每秒请求数，<=0 关闭限流
	RateBurst    int
	MaxBodyBytes int64
	Tracer       trace.Tracer // 为空时使用全局 TracerProvider

	// TrustedProxies 受信反向代理的 IP 或 CIDR；
	// 只有来自这些地址的请求才采纳 X-Forwarded-For
	TrustedProxies []string
}

// NewRouter 组装全部路由与中间件
func NewRouter(opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	h := NewHandler(opts.Scorer, logger, opts.MaxBodyBytes)

	mux := http.NewServeMux()
	route := func(pattern, name string, fn http.HandlerFunc) {
		mux.Handle(pattern, instrument(opts.Metrics, name, fn))
	}
	route("POST /api/predict", "/api/predict", h.predict)
	route("GET /api/feature-importance", "/api/feature-importance", h.featureImportance)
	route("GET /api/model-metrics", "/api/model-metrics", h.modelMetrics)
	route("GET /api/shap-values", "/api/shap-values", h.shapValues)
	route("GET /api/features", "/api/features", h.features)

	NewHealthHandler(opts.Scorer.Ready).RegisterRoutes(mux)
	if opts.Metrics != nil {
		mux.Handle("GET /metrics", opts.Metrics.Handler())
	}

	tracer := opts.Tracer
	if tracer == nil {
		tracer = defaultTracer()
	}
	ips, err := newIPResolver(opts.TrustedProxies)
	if err != nil {
		logger.Warn("ignore trusted proxies", zap.Error(err))
	}
	mws := []Middleware{
		requestIDMiddleware,
		tracingMiddleware(tracer),
		loggingMiddleware(logger, ips),
		recoveryMiddleware(logger),
		corsMiddleware(opts.CORSOrigins),
	}
	if opts.RateLimit > 0 {
		mws = append(mws, rateLimitMiddleware(newIPRateLimiter(opts.RateLimit, opts.RateBurst), ips))
	}
	return Chain(mux, mws...)
}

func instrument(obs HTTPObserver, route string, next http.Handler) http.Handler {
	if obs == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		obs.ObserveHTTP(r.Method, route, rec.Status(), time.Since(start))
	})
}
