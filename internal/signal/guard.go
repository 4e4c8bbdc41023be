package signal

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/quantpulse/stratrun/internal/indicators"
)

const (
	guardTripAfter = 3 // consecutive failures before the breaker opens
	guardCooldown  = 30 * time.Second
)

// GuardOptions tunes breaker behavior. Zero values select the defaults.
type GuardOptions struct {
	TripAfter int           // consecutive failures before the breaker opens
	Cooldown  time.Duration // open-state hold before a probe call is allowed
}

// Guard wraps a provider in a circuit breaker. A provider that keeps erroring
// or panicking trips the breaker; while it is open every Score call fails
// immediately and the run carries on without that provider's vote.
type Guard struct {
	inner   Provider
	breaker *gobreaker.CircuitBreaker
}

// NewGuard wraps provider with a per-provider breaker using default tuning
func NewGuard(provider Provider) *Guard {
	return NewGuardWith(provider, GuardOptions{})
}

// NewGuardWith wraps provider with a per-provider breaker
func NewGuardWith(provider Provider, opts GuardOptions) *Guard {
	if opts.TripAfter < 1 {
		opts.TripAfter = guardTripAfter
	}
	if opts.Cooldown <= 0 {
		opts.Cooldown = guardCooldown
	}

	settings := gobreaker.Settings{
		Name:        provider.ID(),
		MaxRequests: 1,
		Timeout:     opts.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(opts.TripAfter)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("provider", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Provider breaker state change")
		},
	}

	return &Guard{
		inner:   provider,
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

// GuardAll wraps every provider in the slice with default tuning
func GuardAll(providers []Provider) []Provider {
	return GuardAllWith(providers, GuardOptions{})
}

// GuardAllWith wraps every provider in the slice
func GuardAllWith(providers []Provider, opts GuardOptions) []Provider {
	out := make([]Provider, len(providers))
	for i, p := range providers {
		out[i] = NewGuardWith(p, opts)
	}
	return out
}

func (g *Guard) ID() string      { return g.inner.ID() }
func (g *Guard) Weight() float64 { return g.inner.Weight() }

// Score delegates through the breaker, converting panics into errors so a
// single bad provider cannot take the whole run down. Contract violations
// count as failures too.
func (g *Guard) Score(ctx context.Context, row indicators.Row) (Signal, error) {
	result, err := g.breaker.Execute(func() (interface{}, error) {
		sig, err := g.scoreSafe(ctx, row)
		if err != nil {
			return nil, err
		}
		if err := sig.Validate(); err != nil {
			return nil, err
		}
		return sig, nil
	})
	if err != nil {
		return Signal{}, fmt.Errorf("provider %s: %w", g.inner.ID(), err)
	}
	return result.(Signal), nil
}

func (g *Guard) scoreSafe(ctx context.Context, row indicators.Row) (sig Signal, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return g.inner.Score(ctx, row)
}
