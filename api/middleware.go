package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/rushteam/creditiq/pkg/tracing"
)

// Middleware 包装 http.Handler
type Middleware func(http.Handler) http.Handler

// Chain 按书写顺序组合中间件，第一个在最外层
func Chain(h http.Handler, mws ...Middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

type ctxKey int

const requestIDKey ctxKey = iota

// HeaderRequestID 请求 ID 头
const HeaderRequestID = "X-Request-ID"

// RequestID 返回 ctx 中的请求 ID
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// statusRecorder 记录响应状态码
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

func (r *statusRecorder) Status() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(HeaderRequestID)
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

// tracingMiddleware 从请求头提取上游 trace 上下文并创建 server span
func tracingMiddleware(tracer trace.Tracer) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
			ctx, span := tracer.Start(ctx, r.Method+" "+r.URL.Path,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					attribute.String("http.request.method", r.Method),
					attribute.String("url.path", r.URL.Path),
					attribute.String("creditiq.request_id", RequestID(r.Context())),
				))
			defer span.End()

			rec := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r.WithContext(ctx))
			span.SetAttributes(attribute.Int("http.response.status_code", rec.Status()))
		})
	}
}

func defaultTracer() trace.Tracer { return tracing.Tracer() }

func loggingMiddleware(logger *zap.Logger, ips ipResolver) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r)
			logger.Info("http request",
				zap.String("request_id", RequestID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rec.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("remote", ips.clientIP(r)))
		})
	}
}

func recoveryMiddleware(logger *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered",
						zap.String("request_id", RequestID(r.Context())),
						zap.Any("panic", rec),
						zap.ByteString("stack", debug.Stack()))
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// corsMiddleware 允许来源为 "*" 或显式列表；预检请求直接返回 204。
func corsMiddleware(origins []string) Middleware {
	allowAll := len(origins) == 0
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		if o == "*" {
			allowAll = true
		}
		allowed[o] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			h := w.Header()
			switch {
			case allowAll:
				h.Set("Access-Control-Allow-Origin", "*")
			case origin != "":
				if _, ok := allowed[origin]; ok {
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type, "+HeaderRequestID)
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// limiterIdleTTL 空闲超过该时长的限流器会被清理
const limiterIdleTTL = 3 * time.Minute

type limiterEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// ipRateLimiter 按客户端 IP 限流，空闲的条目按 idleTTL 惰性清理
type ipRateLimiter struct {
	mu        sync.Mutex
	limiters  map[string]*limiterEntry
	limit     rate.Limit
	burst     int
	idleTTL   time.Duration
	lastSweep time.Time
	now       func() time.Time
}

func newIPRateLimiter(rps float64, burst int) *ipRateLimiter {
	if burst <= 0 {
		burst = int(rps)
		if burst < 1 {
			burst = 1
		}
	}
	return &ipRateLimiter{
		limiters:  make(map[string]*limiterEntry),
		limit:     rate.Limit(rps),
		burst:     burst,
		idleTTL:   limiterIdleTTL,
		lastSweep: time.Now(),
		now:       time.Now,
	}
}

func (l *ipRateLimiter) Allow(ip string) bool {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()
	if now.Sub(l.lastSweep) >= l.idleTTL {
		l.sweep(now)
	}
	e, ok := l.limiters[ip]
	if !ok {
		e = &limiterEntry{lim: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[ip] = e
	}
	e.lastSeen = now
	return e.lim.AllowN(now, 1)
}

func (l *ipRateLimiter) sweep(now time.Time) {
	for ip, e := range l.limiters {
		if now.Sub(e.lastSeen) >= l.idleTTL {
			delete(l.limiters, ip)
		}
	}
	l.lastSweep = now
}

func (l *ipRateLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

// rateLimitExempt 探针与指标抓取不参与限流
var rateLimitExempt = map[string]struct{}{
	"/healthz": {},
	"/readyz":  {},
	"/metrics": {},
}

func rateLimitMiddleware(l *ipRateLimiter, ips ipResolver) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := rateLimitExempt[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}
			if !l.Allow(ips.clientIP(r)) {
				w.Header().Set("Retry-After", "1")
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ipResolver 解析客户端 IP。
// 只有直连对端属于受信代理时才采纳 X-Forwarded-For，取从右往左第一个非受信地址。
type ipResolver struct {
	trusted []netip.Prefix
}

// newIPResolver 解析 IP 或 CIDR 列表，无法解析的条目返回错误
func newIPResolver(proxies []string) (ipResolver, error) {
	var res ipResolver
	for _, p := range proxies {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if strings.Contains(p, "/") {
			prefix, err := netip.ParsePrefix(p)
			if err != nil {
				return ipResolver{}, fmt.Errorf("trusted proxy %q: %w", p, err)
			}
			res.trusted = append(res.trusted, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(p)
		if err != nil {
			return ipResolver{}, fmt.Errorf("trusted proxy %q: %w", p, err)
		}
		addr = addr.Unmap()
		res.trusted = append(res.trusted, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return res, nil
}

func (p ipResolver) isTrusted(ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, prefix := range p.trusted {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

func (p ipResolver) clientIP(r *http.Request) string {
	peer, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		peer = r.RemoteAddr
	}
	if len(p.trusted) == 0 || !p.isTrusted(peer) {
		return peer
	}
	fwd := r.Header.Get("X-Forwarded-For")
	if fwd == "" {
		return peer
	}
	hops := strings.Split(fwd, ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if hop == "" {
			continue
		}
		if !p.isTrusted(hop) {
			return hop
		}
	}
	// 整条链都是受信代理时取最左端
	if first := strings.TrimSpace(hops[0]); first != "" {
		return first
	}
	return peer
}
