package config

import "fmt"

// GuardsConfig tunes the circuit breakers wrapped around signal providers
// and the provider roster itself. Providers listed in Disabled are removed
// from the ensemble before the run; Weights overrides the built-in ensemble
// weight per provider ID. Zero values fall back to the defaults, so partial
// guard sections work.
type GuardsConfig struct {
	TripAfter   int                `yaml:"trip_after"`         // consecutive failures before a breaker opens
	CooldownSec int                `yaml:"cooldown_sec"`       // seconds a tripped breaker stays open before probing
	Disabled    []string           `yaml:"disabled,omitempty"` // provider IDs excluded from the ensemble
	Weights     map[string]float64 `yaml:"weights,omitempty"`  // per-provider weight overrides
}

// DefaultGuards returns the standard breaker tuning
func DefaultGuards() GuardsConfig {
	return GuardsConfig{
		TripAfter:   3,
		CooldownSec: 30,
	}
}

func (g GuardsConfig) validate() []string {
	var errors []string

	if g.TripAfter < 0 {
		errors = append(errors, fmt.Sprintf("guards.trip_after must not be negative, got %d", g.TripAfter))
	}
	if g.CooldownSec < 0 {
		errors = append(errors, fmt.Sprintf("guards.cooldown_sec must not be negative, got %d", g.CooldownSec))
	}
	for id, w := range g.Weights {
		if w <= 0 {
			errors = append(errors, fmt.Sprintf("guards.weights[%s] must be positive, got %.4f", id, w))
		}
	}

	return errors
}
