package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

const (
	defaultBreakerMaxFailures uint32 = 5
	defaultBreakerTimeout            = 30 * time.Second
	defaultBreakerInterval           = 60 * time.Second
)

type BreakerConfig struct {
	MaxFailures uint32        `envconfig:"MAX_FAILURES" split_words:"true" default:"5"`
	Timeout     time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"30s"`
	Interval    time.Duration `envconfig:"INTERVAL" split_words:"true" default:"60s"`
}

// ErrCircuitOpen is returned while the breaker rejects calls without
// reaching the model.
var ErrCircuitOpen = errors.New("model circuit open")

// breakerModel guards Generate calls with a circuit breaker. Tool-bound
// copies share the breaker of the model they were derived from.
type breakerModel struct {
	name    string
	inner   einomodel.ToolCallingChatModel
	breaker *gobreaker.CircuitBreaker[*schema.Message]
}

var _ einomodel.ToolCallingChatModel = (*breakerModel)(nil)

func WithCircuitBreaker(name string, inner einomodel.ToolCallingChatModel, cfg BreakerConfig, logger zerolog.Logger) einomodel.ToolCallingChatModel {
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = defaultBreakerMaxFailures
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultBreakerTimeout
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultBreakerInterval
	}

	cb := gobreaker.NewCircuitBreaker[*schema.Message](gobreaker.Settings{
		Name:        "llm:" + name,
		MaxRequests: 1,
		Interval:    interval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
		},
		// Cancellation and deadlines are not provider failures.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},
	})

	return &breakerModel{name: name, inner: inner, breaker: cb}
}

func (m *breakerModel) Generate(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.Message, error) {
	msg, err := m.breaker.Execute(func() (*schema.Message, error) {
		return m.inner.Generate(ctx, input, opts...)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: model %s: %w", ErrCircuitOpen, m.name, err)
	}
	return msg, err
}

func (m *breakerModel) Stream(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	return m.inner.Stream(ctx, input, opts...)
}

func (m *breakerModel) WithTools(tools []*schema.ToolInfo) (einomodel.ToolCallingChatModel, error) {
	bound, err := m.inner.WithTools(tools)
	if err != nil {
		return nil, err
	}
	return &breakerModel{name: m.name, inner: bound, breaker: m.breaker}, nil
}

func (m *breakerModel) State() gobreaker.State { return m.breaker.State() }
