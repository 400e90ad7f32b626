package providers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
	"github.com/uberfix/fixhooks/internal/platform/config"
)

// Breaker guards calls to one provider.
type Breaker struct {
	cb     *gobreaker.CircuitBreaker
	logger *slog.Logger
}

// NewBreaker creates a breaker named after the provider. Permanent errors
// count as successes since they reflect the request, not provider health.
func NewBreaker(name string, cfg config.BreakerConfig, logger *slog.Logger) *Breaker {
	if logger == nil {
		logger = slog.Default()
	}
	minRequests := cfg.MinRequests
	if minRequests == 0 {
		minRequests = 5
	}
	ratio := cfg.FailureRatio
	if ratio <= 0 {
		ratio = 0.6
	}

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    time.Duration(cfg.IntervalSecs) * time.Second,
		Timeout:     time.Duration(cfg.TimeoutSecs) * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < minRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= ratio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "provider", name, "from", from.String(), "to", to.String())
		},
		IsSuccessful: func(err error) bool {
			return err == nil || IsPermanent(err)
		},
	}

	return &Breaker{cb: gobreaker.NewCircuitBreaker(settings), logger: logger}
}

// Execute runs fn through the breaker.
func (b *Breaker) Execute(ctx context.Context, fn func() error) error {
	if b == nil {
		return fn()
	}
	_, err := b.cb.Execute(func() (interface{}, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
			return nil, fn()
		}
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		b.logger.Warn("provider call rejected by circuit breaker", "provider", b.cb.Name())
		return fmt.Errorf("%s: %w", b.cb.Name(), ErrCircuitOpen)
	}
	return err
}
