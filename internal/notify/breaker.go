package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/wolfman30/healsmart/pkg/logging"
)

// ErrProviderUnavailable is returned while the breaker is open.
var ErrProviderUnavailable = errors.New("notify: email provider unavailable")

// BreakerConfig tunes when the breaker opens and how long it stays open.
type BreakerConfig struct {
	Name        string
	MaxFailures int
	OpenTimeout time.Duration
}

// Breaker stops calling a failing provider after MaxFailures consecutive
// errors and lets one probe through after OpenTimeout. Sends are never
// retried.
type Breaker struct {
	next   TemplateSender
	cb     *gobreaker.CircuitBreaker[struct{}]
	logger *logging.Logger
}

func NewBreaker(next TemplateSender, cfg BreakerConfig, logger *logging.Logger) *Breaker {
	if next == nil {
		panic("notify: breaker needs a sender")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.Name == "" {
		cfg.Name = "email"
	}
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}

	maxFailures := uint32(cfg.MaxFailures)
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("notify: breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	}
	return &Breaker{
		next:   next,
		cb:     gobreaker.NewCircuitBreaker[struct{}](settings),
		logger: logger,
	}
}

func (b *Breaker) SendTemplate(ctx context.Context, email TemplateEmail) error {
	_, err := b.cb.Execute(func() (struct{}, error) {
		return struct{}{}, b.next.SendTemplate(ctx, email)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	return err
}

// State reports the breaker state for diagnostics.
func (b *Breaker) State() string {
	return b.cb.State().String()
}

var _ TemplateSender = (*Breaker)(nil)
