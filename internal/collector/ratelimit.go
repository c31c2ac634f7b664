package collector

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// RateLimitConfig bounds how often one client may post updates. Zero
// disables a limit.
type RateLimitConfig struct {
	Enabled           bool `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute" yaml:"requests_per_minute" json:"requests_per_minute"`
	RequestsPerHour   int  `mapstructure:"requests_per_hour" yaml:"requests_per_hour" json:"requests_per_hour"`
	MaxRequestsPerDay int  `mapstructure:"max_requests_per_day" yaml:"max_requests_per_day" json:"max_requests_per_day"`
}

// RateLimiter tracks per-client update rates in fixed windows.
type RateLimiter struct {
	mu    sync.Mutex
	cfg   RateLimitConfig
	clock clock.Clock
	usage map[string]*clientUsage
}

type clientUsage struct {
	minuteStart time.Time
	hourStart   time.Time
	dayStart    time.Time
	minute      int
	hour        int
	day         int
}

// NewRateLimiter creates a limiter. A nil clock uses the wall clock.
func NewRateLimiter(cfg RateLimitConfig, clk clock.Clock) *RateLimiter {
	if clk == nil {
		clk = clock.New()
	}
	return &RateLimiter{cfg: cfg, clock: clk, usage: make(map[string]*clientUsage)}
}

// RateLimitError reports an exceeded window.
type RateLimitError struct {
	Window     string // "minute", "hour" or "day"
	Limit      int
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s (limit: %d, retry after: %v)", e.Window, e.Limit, e.RetryAfter)
}

// Allow records one request from client, or returns a *RateLimitError
// without recording it.
func (rl *RateLimiter) Allow(client string) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.clock.Now()
	u, ok := rl.usage[client]
	if !ok {
		u = &clientUsage{minuteStart: now, hourStart: now, dayStart: StartOfDay(now)}
		rl.usage[client] = u
	}

	if now.Sub(u.minuteStart) >= time.Minute {
		u.minute, u.minuteStart = 0, now
	}
	if now.Sub(u.hourStart) >= time.Hour {
		u.hour, u.hourStart = 0, now
	}
	if today := StartOfDay(now); !today.Equal(u.dayStart) {
		u.day, u.dayStart = 0, today
	}

	switch {
	case rl.cfg.RequestsPerMinute > 0 && u.minute >= rl.cfg.RequestsPerMinute:
		return &RateLimitError{Window: "minute", Limit: rl.cfg.RequestsPerMinute, RetryAfter: u.minuteStart.Add(time.Minute).Sub(now)}
	case rl.cfg.RequestsPerHour > 0 && u.hour >= rl.cfg.RequestsPerHour:
		return &RateLimitError{Window: "hour", Limit: rl.cfg.RequestsPerHour, RetryAfter: u.hourStart.Add(time.Hour).Sub(now)}
	case rl.cfg.MaxRequestsPerDay > 0 && u.day >= rl.cfg.MaxRequestsPerDay:
		return &RateLimitError{Window: "day", Limit: rl.cfg.MaxRequestsPerDay, RetryAfter: u.dayStart.AddDate(0, 0, 1).Sub(now)}
	}

	u.minute++
	u.hour++
	u.day++
	return nil
}

// Clients returns the number of tracked clients.
func (rl *RateLimiter) Clients() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.usage)
}

// clientIP extracts the client address, preferring proxy headers.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx > 0 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
