package framework

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/shaurya/tradeledger/framework/i18n"
	"go.uber.org/zap"
)

// Logger is structured request logging middleware.
func Logger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				log.Info("request",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Float64("duration_ms", float64(time.Since(start).Microseconds())/1000.0),
					zap.String("request_id", middleware.GetReqID(r.Context())),
					zap.String("ip", r.RemoteAddr),
					zap.String("user_agent", r.UserAgent()),
				)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

// Recovery catches panics and renders an error response. Development shows
// the stack trace.
func Recovery(env string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					if err == http.ErrAbortHandler {
						panic(err)
					}
					if env == "development" {
						DevErrorHandler(w, r, err)
					} else {
						ProdErrorHandler(w, r, err)
					}
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// RequestID generates a request ID and adds it to context and response header.
func RequestID() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return middleware.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set(middleware.RequestIDHeader, middleware.GetReqID(r.Context()))
			next.ServeHTTP(w, r)
		}))
	}
}

// SecureHeaders adds security-related HTTP headers.
func SecureHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-XSS-Protection", "1; mode=block")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// CSRFCookie is the double-submit cookie name.
const CSRFCookie = "csrf_token"

// CSRF implements double-submit cookie CSRF protection. JSON requests and
// bearer-token requests are exempt.
func CSRF() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.Contains(r.Header.Get("Content-Type"), "application/json") ||
				strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
				next.ServeHTTP(w, r)
				return
			}

			if r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions {
				if _, err := r.Cookie(CSRFCookie); err != nil {
					http.SetCookie(w, &http.Cookie{
						Name:     CSRFCookie,
						Value:    generateCSRFToken(),
						Path:     "/",
						HttpOnly: false, // read by page scripts
						SameSite: http.SameSiteLaxMode,
					})
				}
				next.ServeHTTP(w, r)
				return
			}

			cookie, err := r.Cookie(CSRFCookie)
			if err != nil {
				_ = WriteJSON(w, http.StatusForbidden, H{"error": "CSRF token missing"})
				return
			}

			token := r.Header.Get("X-CSRF-Token")
			if token == "" {
				token = r.FormValue(CSRFCookie)
			}
			if subtle.ConstantTimeCompare([]byte(token), []byte(cookie.Value)) != 1 {
				_ = WriteJSON(w, http.StatusForbidden, H{"error": "CSRF token invalid"})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func generateCSRFToken() string {
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// RateLimit implements sliding window rate limiting per client IP. Counts
// live in Redis when client is set, in process memory otherwise.
func RateLimit(client *redis.Client, limit int, window time.Duration) func(http.Handler) http.Handler {
	var mu sync.Mutex
	counts := make(map[string][]time.Time)

	reject := func(w http.ResponseWriter) {
		w.Header().Set("Retry-After", fmt.Sprintf("%d", int(window.Seconds())))
		_ = WriteJSON(w, http.StatusTooManyRequests, H{"error": "Rate limit exceeded"})
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limit <= 0 {
				next.ServeHTTP(w, r)
				return
			}
			ip := clientIP(r)

			if client != nil {
				count, err := redisWindowCount(r, client, ip, window)
				if err != nil {
					FromContext(r.Context()).Error("Rate limit error", zap.Error(err))
					next.ServeHTTP(w, r)
					return
				}
				if count > int64(limit) {
					reject(w)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			mu.Lock()
			now := time.Now()
			cutoff := now.Add(-window)
			valid := counts[ip][:0]
			for _, t := range counts[ip] {
				if t.After(cutoff) {
					valid = append(valid, t)
				}
			}
			valid = append(valid, now)
			counts[ip] = valid
			count := len(valid)
			mu.Unlock()

			if count > limit {
				reject(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func redisWindowCount(r *http.Request, client *redis.Client, ip string, window time.Duration) (int64, error) {
	ctx := r.Context()
	key := fmt.Sprintf("ratelimit:%s:%s", r.URL.Path, ip)

	now := time.Now().UnixNano()
	clearBefore := now - window.Nanoseconds()

	pipe := client.Pipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", fmt.Sprintf("%d", clearBefore))
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(now), Member: fmt.Sprintf("%d", now)})
	card := pipe.ZCard(ctx, key)
	pipe.Expire(ctx, key, window)

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return card.Val(), nil
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Locale picks the request locale from ?locale= or Accept-Language and
// stores it in the request context.
func Locale(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lang := r.URL.Query().Get("locale")
		if lang == "" {
			lang = i18n.Negotiate(r.Header.Get("Accept-Language"))
		}
		next.ServeHTTP(w, r.WithContext(i18n.WithLocale(r.Context(), lang)))
	})
}
