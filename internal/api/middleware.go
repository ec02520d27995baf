package api

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	cache "github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/yourusername/stocktester/internal/auth"
	"github.com/yourusername/stocktester/internal/metrics"
)

// RequestIDHeader carries the per-request correlation id
const RequestIDHeader = "X-Request-ID"

type requestIDKey struct{}

// RequestIDFrom returns the request id stored by the request id middleware
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// statusRecorder captures the status code written by a handler
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack lets websocket upgrades through the wrapper
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" || len(id) > 64 {
			id = uuid.New().String()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

// requestLogger returns the access logger enriched with the request id
func (s *Server) requestLogger(r *http.Request) *logrus.Entry {
	return s.logger.WithField("request_id", RequestIDFrom(r.Context()))
}

// observe logs and measures every request. It runs inside the router so the
// matched route template is known.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		elapsed := time.Since(started)

		route := "unmatched"
		if current := mux.CurrentRoute(r); current != nil {
			if tmpl, err := current.GetPathTemplate(); err == nil {
				route = tmpl
			}
		}
		metrics.RecordHTTPRequest(route, r.Method, strconv.Itoa(rec.status), elapsed.Seconds())

		entry := s.requestLogger(r).WithFields(logrus.Fields{
			"method":      r.Method,
			"route":       route,
			"path":        r.URL.Path,
			"status":      rec.status,
			"duration_ms": elapsed.Milliseconds(),
			"remote_addr": s.clients.ip(r),
		})
		switch {
		case rec.status >= 500:
			entry.Error("HTTP request")
		case rec.status >= 400:
			entry.Warn("HTTP request")
		default:
			entry.Debug("HTTP request")
		}
	})
}

// clientLimiter hands out one token bucket per client address. Idle buckets
// expire from the cache.
type clientLimiter struct {
	limit rate.Limit
	burst int
	store *cache.Cache
}

func newClientLimiter(perSecond float64, burst int) *clientLimiter {
	if burst <= 0 {
		burst = int(perSecond)
		if burst < 1 {
			burst = 1
		}
	}
	return &clientLimiter{
		limit: rate.Limit(perSecond),
		burst: burst,
		store: cache.New(10*time.Minute, 20*time.Minute),
	}
}

func (l *clientLimiter) allow(key string) bool {
	if v, ok := l.store.Get(key); ok {
		l.store.SetDefault(key, v)
		return v.(*rate.Limiter).Allow()
	}
	limiter := rate.NewLimiter(l.limit, l.burst)
	if err := l.store.Add(key, limiter, cache.DefaultExpiration); err != nil {
		if v, ok := l.store.Get(key); ok {
			limiter = v.(*rate.Limiter)
		}
	}
	return limiter.Allow()
}

func (l *clientLimiter) middleware(clients *clientResolver, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !l.allow(clients.ip(r)) {
			metrics.RecordRateLimited()
			w.Header().Set("Retry-After", "1")
			writeErrorMessage(w, http.StatusTooManyRequests, "Rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientResolver works out the caller address. X-Forwarded-For is only
// honoured when the connecting peer is a trusted proxy.
type clientResolver struct {
	trusted []netip.Prefix
}

func newClientResolver(proxies []string) *clientResolver {
	c := &clientResolver{}
	for _, entry := range proxies {
		if prefix, err := netip.ParsePrefix(entry); err == nil {
			c.trusted = append(c.trusted, prefix.Masked())
			continue
		}
		if addr, err := netip.ParseAddr(entry); err == nil {
			addr = addr.Unmap()
			c.trusted = append(c.trusted, netip.PrefixFrom(addr, addr.BitLen()))
		}
	}
	return c
}

func (c *clientResolver) isTrusted(host string) bool {
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, prefix := range c.trusted {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// ip returns the right-most untrusted hop, walking back through trusted proxies
func (c *clientResolver) ip(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if !c.isTrusted(host) {
		return host
	}
	hops := strings.Split(strings.Join(r.Header.Values("X-Forwarded-For"), ","), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		hop := strings.TrimSpace(hops[i])
		if hop == "" {
			continue
		}
		if !c.isTrusted(hop) {
			return hop
		}
		host = hop
	}
	return host
}

// requireAuth rejects requests without a valid bearer token or API key
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, err := s.auth.Authenticate(r)
		if err != nil {
			s.requestLogger(r).WithError(err).Debug("Authentication failed")
			writeErrorMessage(w, http.StatusUnauthorized, err.Error())
			return
		}
		next(w, r.WithContext(auth.WithPrincipal(r.Context(), principal)))
	}
}

// callerID returns the authenticated user id, nil for API key callers
func callerID(r *http.Request) *uuid.UUID {
	if p, ok := auth.PrincipalFrom(r.Context()); ok {
		return p.UserID
	}
	return nil
}
