// Package collector receives occupancy updates from counters and serves
// summaries of the stored history.
package collector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/MeKo-Tech/doorcount/internal/store"
)

// Repository is the storage the collector needs.
type Repository interface {
	Insert(ctx context.Context, rec store.Record) (store.Record, error)
	Latest(ctx context.Context) (store.Record, error)
	List(ctx context.Context, limit int) ([]store.Record, error)
	Between(ctx context.Context, from, to time.Time) ([]store.Record, error)
	RecentCrossings(ctx context.Context, limit int) ([]store.Record, error)
}

var _ Repository = (*store.Store)(nil)

// Defaults for the collector service.
const (
	DefaultListLimit    = 100
	DefaultRecentLimit  = 10
	MaxRecentLimit      = 100
	DefaultMaxBodyBytes = 64 << 10
)

// Config holds collector configuration.
type Config struct {
	Host            string          `mapstructure:"host" yaml:"host" json:"host"`
	Port            int             `mapstructure:"port" yaml:"port" json:"port"`
	DBPath          string          `mapstructure:"db_path" yaml:"db_path" json:"db_path"`
	CORSOrigin      string          `mapstructure:"cors_origin" yaml:"cors_origin" json:"cors_origin"`
	Timezone        string          `mapstructure:"timezone" yaml:"timezone" json:"timezone"`
	MaxBodyBytes    int64           `mapstructure:"max_body_bytes" yaml:"max_body_bytes" json:"max_body_bytes"`
	ShutdownTimeout time.Duration   `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" json:"shutdown_timeout"`
	RateLimit       RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit" json:"rate_limit"`
}

// DefaultConfig returns the collector defaults.
func DefaultConfig() Config {
	return Config{
		Host:            "0.0.0.0",
		Port:            3000,
		DBPath:          "occupancy.db",
		CORSOrigin:      "*",
		Timezone:        "UTC",
		MaxBodyBytes:    DefaultMaxBodyBytes,
		ShutdownTimeout: 10 * time.Second,
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 600,
			RequestsPerHour:   20000,
		},
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid collector port %d: must be between 1 and 65535", c.Port)
	}
	if c.DBPath == "" {
		return errors.New("collector db_path is required")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid collector timezone %q: %w", c.Timezone, err)
	}
	if c.MaxBodyBytes < 0 {
		return fmt.Errorf("collector max_body_bytes cannot be negative: %d", c.MaxBodyBytes)
	}
	return nil
}

// Service implements the collector endpoints.
type Service struct {
	repo       Repository
	clock      clock.Clock
	loc        *time.Location
	limiter    *RateLimiter
	corsOrigin string
	maxBody    int64
}

// New creates a service. A nil clock uses the wall clock.
func New(cfg Config, repo Repository, clk clock.Clock) (*Service, error) {
	if clk == nil {
		clk = clock.New()
	}
	tz := cfg.Timezone
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", tz, err)
	}
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}

	s := &Service{
		repo:       repo,
		clock:      clk,
		loc:        loc,
		corsOrigin: cfg.CORSOrigin,
		maxBody:    maxBody,
	}
	if cfg.RateLimit.Enabled {
		s.limiter = NewRateLimiter(cfg.RateLimit, clk)
	}
	return s, nil
}

// Store validates and stores one update body.
func (s *Service) Store(ctx context.Context, body []byte) (store.Record, error) {
	rec, err := ParseUpdate(body, s.loc)
	if err != nil {
		return store.Record{}, err
	}
	saved, err := s.repo.Insert(ctx, rec)
	if err != nil {
		return store.Record{}, fmt.Errorf("store update: %w", err)
	}
	latestCount.Set(float64(saved.CurrentCount))
	return saved, nil
}

// Today summarizes the current day.
func (s *Service) Today(ctx context.Context) (TodaySummary, error) {
	day := StartOfDay(s.clock.Now().In(s.loc))
	recs, err := s.repo.Between(ctx, day, day.AddDate(0, 0, 1))
	if err != nil {
		return TodaySummary{}, err
	}
	return Today(day, recs), nil
}

// TodayTrend returns the hourly trend for the current day.
func (s *Service) TodayTrend(ctx context.Context) ([]TrendPoint, error) {
	day := StartOfDay(s.clock.Now().In(s.loc))
	recs, err := s.repo.Between(ctx, day, day.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}
	return Trend(s.loc, recs), nil
}

// Week summarizes the week starting at start, or the current week when start
// is zero.
func (s *Service) Week(ctx context.Context, start time.Time) (WeekSummary, error) {
	if start.IsZero() {
		start = StartOfWeek(s.clock.Now().In(s.loc))
	} else {
		start = StartOfDay(start.In(s.loc))
	}
	recs, err := s.repo.Between(ctx, start, start.AddDate(0, 0, 7))
	if err != nil {
		return WeekSummary{}, err
	}
	return Week(start, recs), nil
}

// Recent returns the latest crossings as activities.
func (s *Service) Recent(ctx context.Context, limit int) ([]Activity, error) {
	recs, err := s.repo.RecentCrossings(ctx, limit)
	if err != nil {
		return nil, err
	}
	return Recent(s.loc, recs), nil
}
