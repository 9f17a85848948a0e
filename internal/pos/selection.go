package pos

import (
	"fmt"
	"math/rand/v2"

	"github.com/manifest-network/chainview/internal/config"
	"github.com/manifest-network/chainview/internal/models"
)

// Selector picks one validator from a non-empty candidate list.
type Selector interface {
	Select(rng *rand.Rand, candidates []models.Validator) models.Validator
}

// StakeWeighted selects validators with probability proportional to their stake.
// When every stake is zero it degrades to uniform selection.
type StakeWeighted struct{}

func (StakeWeighted) Select(rng *rand.Rand, candidates []models.Validator) models.Validator {
	var total int64
	for _, v := range candidates {
		total += v.Stake
	}
	if total <= 0 {
		return Uniform{}.Select(rng, candidates)
	}

	threshold := rng.Int64N(total)
	var cumulative int64
	for _, v := range candidates {
		cumulative += v.Stake
		if threshold < cumulative {
			return v
		}
	}
	return candidates[len(candidates)-1]
}

// Uniform selects every validator with equal probability.
type Uniform struct{}

func (Uniform) Select(rng *rand.Rand, candidates []models.Validator) models.Validator {
	return candidates[rng.IntN(len(candidates))]
}

// SelectorFor returns the selector configured by name.
func SelectorFor(name string) (Selector, error) {
	switch name {
	case config.SelectionStake, "":
		return StakeWeighted{}, nil
	case config.SelectionUniform:
		return Uniform{}, nil
	default:
		return nil, fmt.Errorf("unknown validator selection policy %q", name)
	}
}
