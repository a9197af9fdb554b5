package api

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/pdfdesk/internal/limiter"
	"github.com/local/pdfdesk/internal/metrics"
)

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

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

// observed logs and counts one route. It also turns a panic into a 500.
func observed(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		defer func() {
			if p := recover(); p != nil {
				log.Error().Interface("panic", p).Str("route", route).Msg("handler panic")
				if rec.status == 0 {
					writeJSON(rec, http.StatusInternalServerError, errorBody{Error: "Internal server error."})
				}
			}
			status := rec.status
			if status == 0 {
				status = http.StatusOK
			}
			metrics.ObserveRequest(route, status)
			log.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", status).
				Dur("duration", time.Since(start)).
				Msg("request")
		}()
		next.ServeHTTP(rec, r)
	})
}

// secure sets the security and CORS headers on every response and answers
// preflight requests.
func secure(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Content-Security-Policy", "default-src 'self'")
		h.Set("Access-Control-Allow-Origin", "*")
		if r.Method == http.MethodOptions {
			h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type, X-Session-ID")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// limited rejects clients over any of the windows. Counter failures let the
// request through.
func (s *Server) limited(next http.Handler, windows ...*limiter.FixedWindow) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client := s.clientIP(r)
		for _, fw := range windows {
			if fw == nil {
				continue
			}
			d, err := fw.Allow(r.Context(), client)
			if err != nil {
				log.Warn().Err(err).Str("bucket", fw.Name).Msg("rate limiter unavailable, allowing request")
				continue
			}
			w.Header().Set("RateLimit-Limit", strconv.Itoa(d.Limit))
			w.Header().Set("RateLimit-Remaining", strconv.Itoa(d.Remaining))
			w.Header().Set("RateLimit-Reset", strconv.Itoa(int(d.ResetIn.Seconds())))
			if !d.Allowed {
				metrics.IncRateLimited(fw.Name)
				writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "Too many requests, please try again later."})
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) clientIP(r *http.Request) string {
	if s.deps.TrustProxy {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			return strings.TrimSpace(first)
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
