package signal

// Roster helpers adjust a provider set without touching the providers or the
// fusion logic: drop a provider, or override its ensemble weight.

// Without returns providers minus the listed IDs. Unknown IDs are ignored.
func Without(providers []Provider, disabled []string) []Provider {
	if len(disabled) == 0 {
		return providers
	}
	drop := make(map[string]bool, len(disabled))
	for _, id := range disabled {
		drop[id] = true
	}

	out := make([]Provider, 0, len(providers))
	for _, p := range providers {
		if !drop[p.ID()] {
			out = append(out, p)
		}
	}
	return out
}

// Reweight returns providers with the given weight overrides applied by
// provider ID. Unknown IDs are ignored.
func Reweight(providers []Provider, weights map[string]float64) []Provider {
	if len(weights) == 0 {
		return providers
	}

	out := make([]Provider, len(providers))
	for i, p := range providers {
		if w, ok := weights[p.ID()]; ok {
			out[i] = reweighted{Provider: p, weight: w}
			continue
		}
		out[i] = p
	}
	return out
}

type reweighted struct {
	Provider
	weight float64
}

func (r reweighted) Weight() float64 { return r.weight }
