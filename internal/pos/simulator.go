package pos

import (
	"log/slog"
	"math"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/manifest-network/chainview/internal/config"
	"github.com/manifest-network/chainview/internal/hashoracle"
	"github.com/manifest-network/chainview/internal/metrics"
	"github.com/manifest-network/chainview/internal/models"
)

var (
	ErrValidationInProgress = errors.New("block validation already in progress")
	ErrEmptyChain           = errors.New("cannot create a block on an empty chain")
)

const (
	hashLength          = 64
	genesisPreviousHash = "0000000000000000"
	rewardDivisor       = 1000
)

// Reward returns the block reward earned for a stake.
func Reward(stake int64) int64 {
	return stake / rewardDivisor
}

// Status is a point-in-time view of the simulator.
type Status struct {
	Validating bool              `json:"validating"`
	Current    *models.Validator `json:"currentValidator"`
	Selection  string            `json:"selection"`
	Height     uint64            `json:"height"`
}

// Simulator creates blocks attributed to validators selected from a registry.
type Simulator struct {
	cfg      config.PosConfig
	registry *Registry
	selector Selector
	oracle   hashoracle.Oracle
	metrics  *metrics.Metrics

	validating atomic.Bool

	mu      sync.RWMutex
	rng     *rand.Rand
	blocks  []models.PosBlock
	current *models.Validator
}

// New returns a simulator with an empty chain. Call Seed before creating blocks.
func New(cfg config.PosConfig, registry *Registry, oracle hashoracle.Oracle, rng *rand.Rand, m *metrics.Metrics) (*Simulator, error) {
	selector, err := SelectorFor(cfg.Selection)
	if err != nil {
		return nil, err
	}
	return &Simulator{
		cfg:      cfg,
		registry: registry,
		selector: selector,
		oracle:   oracle,
		metrics:  m,
		rng:      rng,
	}, nil
}

// Registry returns the validator registry backing the simulator.
func (s *Simulator) Registry() *Registry {
	return s.registry
}

// Seed replaces the chain with a genesis block and four validated blocks, each
// attributed to a registered validator. With an empty registry only the genesis
// block is created.
func (s *Simulator) Seed(now time.Time) {
	validators := s.registry.Validators()

	s.mu.Lock()
	defer s.mu.Unlock()

	genesis := models.PosBlock{
		ID:           1,
		Hash:         s.oracle.Digest(hashLength),
		PreviousHash: genesisPreviousHash,
		Timestamp:    now.Add(-150 * time.Minute),
		Transactions: 5,
		EnergyUsed:   0.5,
	}
	if len(validators) > 0 {
		attribute(&genesis, validators[0])
	}
	blocks := []models.PosBlock{genesis}

	for i := 1; i < 5 && len(validators) > 0; i++ {
		prev := blocks[i-1]
		b := models.PosBlock{
			ID:           prev.ID + 1,
			Hash:         s.oracle.Digest(hashLength),
			PreviousHash: prev.Hash,
			Timestamp:    prev.Timestamp.Add(15*time.Second + time.Duration(s.rng.IntN(30000))*time.Millisecond),
			Transactions: s.rng.IntN(15) + 3,
			EnergyUsed:   s.energyLocked(),
		}
		attribute(&b, validators[s.rng.IntN(len(validators))])
		blocks = append(blocks, b)
	}
	s.blocks = blocks
}

func attribute(b *models.PosBlock, v models.Validator) {
	b.ValidatorID = v.ID
	b.ValidatorName = v.Name
	b.StakeAtSelection = v.Stake
	b.RewardAmount = Reward(v.Stake)
}

// SelectValidator picks a registered validator using the configured policy.
func (s *Simulator) SelectValidator() (models.Validator, error) {
	candidates := s.registry.Validators()
	if len(candidates) == 0 {
		return models.Validator{}, ErrEmptyRegistry
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selector.Select(s.rng, candidates), nil
}

// CreateBlock selects a validator, waits out the consensus delay and appends
// a block attributed to it.
func (s *Simulator) CreateBlock() (*models.PosBlock, error) {
	v, err := s.acquire()
	if err != nil {
		return nil, err
	}
	defer s.release()
	return s.create(v)
}

// CreateBlockAsync runs CreateBlock in a new goroutine and calls done with the result.
// Rejections are returned synchronously and done is not called.
func (s *Simulator) CreateBlockAsync(done func(*models.PosBlock, error)) error {
	v, err := s.acquire()
	if err != nil {
		return err
	}
	go func() {
		block, err := s.create(v)
		s.release()
		if done != nil {
			done(block, err)
		}
	}()
	return nil
}

func (s *Simulator) acquire() (models.Validator, error) {
	if s.Height() == 0 {
		s.metrics.ObserveRejected("validate", "empty_chain")
		return models.Validator{}, ErrEmptyChain
	}
	if !s.validating.CompareAndSwap(false, true) {
		s.metrics.ObserveRejected("validate", "busy")
		return models.Validator{}, ErrValidationInProgress
	}

	v, err := s.SelectValidator()
	if err != nil {
		s.validating.Store(false)
		s.metrics.ObserveRejected("validate", "empty_registry")
		return models.Validator{}, err
	}

	s.mu.Lock()
	s.current = &v
	s.mu.Unlock()
	slog.Debug("Validator selected", "validator", v.Name, "stake", v.Stake)
	return v, nil
}

func (s *Simulator) release() {
	s.mu.Lock()
	s.current = nil
	s.mu.Unlock()
	s.validating.Store(false)
}

// create must only be called while holding the validating flag.
func (s *Simulator) create(v models.Validator) (*models.PosBlock, error) {
	if s.cfg.ConsensusDelay > 0 {
		time.Sleep(s.cfg.ConsensusDelay)
	}

	if _, err := s.registry.RecordValidation(v.ID); err != nil {
		return nil, errors.WithMessage(err, "failed to record validation")
	}

	s.mu.Lock()
	prev := s.blocks[len(s.blocks)-1]
	block := models.PosBlock{
		ID:               prev.ID + 1,
		Hash:             s.oracle.Digest(hashLength),
		PreviousHash:     prev.Hash,
		Timestamp:        time.Now(),
		Transactions:     s.rng.IntN(15) + 3,
		ValidatorID:      v.ID,
		ValidatorName:    v.Name,
		StakeAtSelection: v.Stake,
		RewardAmount:     Reward(v.Stake),
		EnergyUsed:       s.energyLocked(),
	}
	s.blocks = append(s.blocks, block)
	s.mu.Unlock()

	s.metrics.ObserveValidated(v.Name)
	slog.Info("Validated block", "id", block.ID, "validator", v.Name, "reward", block.RewardAmount)
	return &block, nil
}

// energyLocked returns a value in [0.30, 0.70] rounded to two decimals.
func (s *Simulator) energyLocked() float64 {
	return math.Round((s.rng.Float64()*0.4+0.3)*100) / 100
}

// Current returns the validator selected for the outstanding cycle, or nil when idle.
func (s *Simulator) Current() *models.Validator {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return nil
	}
	v := *s.current
	return &v
}

// Validating reports whether a block creation cycle is outstanding.
func (s *Simulator) Validating() bool {
	return s.validating.Load()
}

// Height returns the ID of the last block, or 0 for an empty chain.
func (s *Simulator) Height() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.blocks) == 0 {
		return 0
	}
	return s.blocks[len(s.blocks)-1].ID
}

// Blocks returns a copy of the chain, oldest first.
func (s *Simulator) Blocks() []models.PosBlock {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.PosBlock, len(s.blocks))
	copy(out, s.blocks)
	return out
}

func (s *Simulator) Status() Status {
	return Status{
		Validating: s.Validating(),
		Current:    s.Current(),
		Selection:  s.cfg.Selection,
		Height:     s.Height(),
	}
}
