package middleware

import (
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/patrickmn/go-cache"

	"github.com/tphakala/iconforge/internal/errors"
)

// Standard rate limit response headers
const (
	HeaderRateLimitLimit     = "RateLimit-Limit"
	HeaderRateLimitRemaining = "RateLimit-Remaining"
	HeaderRateLimitReset     = "RateLimit-Reset"
	HeaderRateLimitPolicy    = "RateLimit-Policy"

	// RateLimitMessage is returned to clients over their limit
	RateLimitMessage = "Too many requests, please try again later"
)

// RateDecision is the outcome of one rate limit check
type RateDecision struct {
	Allowed   bool
	Remaining int
	Reset     time.Duration // until the current window ends
}

// rateWindow counts the hits of one client inside one fixed window
type rateWindow struct {
	start time.Time
	hits  int
}

// RateLimiter counts requests per client key in fixed windows. A window
// opens on a client's first request and allows max requests until it ends.
type RateLimiter struct {
	max      int
	window   time.Duration
	visitors *cache.Cache
	mu       sync.Mutex
}

// NewRateLimiter creates a limiter allowing max requests per window per key
func NewRateLimiter(window time.Duration, maxRequests int) *RateLimiter {
	return &RateLimiter{
		max:      maxRequests,
		window:   window,
		visitors: cache.New(window, window),
	}
}

// Allow counts one request for key at now
func (rl *RateLimiter) Allow(key string, now time.Time) RateDecision {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	var w *rateWindow
	if v, ok := rl.visitors.Get(key); ok {
		w = v.(*rateWindow)
	}
	if w == nil || !now.Before(w.start.Add(rl.window)) {
		w = &rateWindow{start: now}
		rl.visitors.Set(key, w, rl.window)
	}
	w.hits++

	return RateDecision{
		Allowed:   w.hits <= rl.max,
		Remaining: max(rl.max-w.hits, 0),
		Reset:     w.start.Add(rl.window).Sub(now),
	}
}

// Policy returns the RateLimit-Policy header value
func (rl *RateLimiter) Policy() string {
	return fmt.Sprintf("%d;w=%d", rl.max, int(rl.window.Seconds()))
}

// Visitors returns the number of tracked clients
func (rl *RateLimiter) Visitors() int {
	return rl.visitors.ItemCount()
}

// NewRateLimit limits requests per client IP and sets the RateLimit-* headers
// on every response it sees. Requests over the limit fail with a limit error.
func NewRateLimit(rl *RateLimiter, skipper middleware.Skipper) echo.MiddlewareFunc {
	if skipper == nil {
		skipper = middleware.DefaultSkipper
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if skipper(c) {
				return next(c)
			}

			d := rl.Allow(c.RealIP(), time.Now())

			h := c.Response().Header()
			h.Set(HeaderRateLimitPolicy, rl.Policy())
			h.Set(HeaderRateLimitLimit, strconv.Itoa(rl.max))
			h.Set(HeaderRateLimitRemaining, strconv.Itoa(d.Remaining))
			h.Set(HeaderRateLimitReset, strconv.Itoa(ceilSeconds(d.Reset)))

			if !d.Allowed {
				h.Set(echo.HeaderRetryAfter, strconv.Itoa(ceilSeconds(d.Reset)))
				return errors.Newf(RateLimitMessage).
					Component("api").
					Category(errors.CategoryLimit).
					Priority(errors.PriorityLow).
					Context("ip", c.RealIP()).
					Build()
			}
			return next(c)
		}
	}
}

func ceilSeconds(d time.Duration) int {
	return int(math.Ceil(d.Seconds()))
}
