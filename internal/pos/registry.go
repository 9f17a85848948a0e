// Package pos simulates proof-of-stake block creation over a validator registry.
package pos

import (
	"fmt"
	"math/rand/v2"
	"os"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/manifest-network/chainview/internal/models"
)

var (
	ErrEmptyRegistry      = errors.New("validator registry is empty")
	ErrUnknownValidator   = errors.New("unknown validator")
	ErrDuplicateValidator = errors.New("validator already registered")
)

const defaultValidatorCount = 5

// Registry holds the registered validators. It is safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	validators []models.Validator
	index      map[int]int
}

// NewRegistry returns a registry containing validators.
func NewRegistry(validators ...models.Validator) (*Registry, error) {
	r := &Registry{index: make(map[int]int)}
	for _, v := range validators {
		if err := r.Register(v); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a validator. IDs must be unique and stakes non-negative.
func (r *Registry) Register(v models.Validator) error {
	if v.Stake < 0 {
		return fmt.Errorf("validator %d: stake must not be negative", v.ID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.index[v.ID]; ok {
		return fmt.Errorf("%w: %d", ErrDuplicateValidator, v.ID)
	}
	if v.Name == "" {
		v.Name = fmt.Sprintf("Validator %d", v.ID)
	}
	r.index[v.ID] = len(r.validators)
	r.validators = append(r.validators, v)
	return nil
}

// Validators returns a copy of the registered validators in registration order.
func (r *Registry) Validators() []models.Validator {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Validator, len(r.validators))
	copy(out, r.validators)
	return out
}

// Validator returns the validator with the given ID.
func (r *Registry) Validator(id int) (models.Validator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.index[id]
	if !ok {
		return models.Validator{}, false
	}
	return r.validators[i], true
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.validators)
}

// RecordValidation increments the blocks validated by the validator with the given ID
// and returns its updated record.
func (r *Registry) RecordValidation(id int) (models.Validator, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i, ok := r.index[id]
	if !ok {
		return models.Validator{}, fmt.Errorf("%w: %d", ErrUnknownValidator, id)
	}
	r.validators[i].BlocksValidated++
	return r.validators[i], nil
}

// DefaultValidators generates five validators with increasing stake.
func DefaultValidators(rng *rand.Rand) []models.Validator {
	validators := make([]models.Validator, 0, defaultValidatorCount)
	for i := 1; i <= defaultValidatorCount; i++ {
		stake := int64(5000 + i*2000)
		validators = append(validators, models.Validator{
			ID:              i,
			Name:            fmt.Sprintf("Validator %d", i),
			Stake:           stake,
			TotalStaked:     stake + int64(rng.IntN(3000)),
			BlocksValidated: uint64(rng.IntN(50) + 10),
			Reputation:      80 + rng.IntN(20),
		})
	}
	return validators
}

type validatorsFile struct {
	Validators []models.Validator `yaml:"validators"`
}

// LoadValidators reads validators from a YAML file of the form
//
//	validators:
//	  - id: 1
//	    name: Validator 1
//	    stake: 7000
func LoadValidators(path string) ([]models.Validator, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read validators file")
	}

	var file validatorsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, errors.Wrapf(err, "failed to parse validators file %s", path)
	}
	if len(file.Validators) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrEmptyRegistry)
	}

	sort.SliceStable(file.Validators, func(i, j int) bool {
		return file.Validators[i].ID < file.Validators[j].ID
	})
	for i := range file.Validators {
		if file.Validators[i].TotalStaked < file.Validators[i].Stake {
			file.Validators[i].TotalStaked = file.Validators[i].Stake
		}
	}
	return file.Validators, nil
}
