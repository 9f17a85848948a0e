// Package pow simulates proof-of-work mining on a private append-only chain.
package pow

import (
	"fmt"
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
	ErrMiningInProgress  = errors.New("mining already in progress")
	ErrEmptyChain        = errors.New("cannot mine on an empty chain")
	ErrInvalidDifficulty = errors.New("invalid difficulty")
)

const (
	genesisPreviousHash = "0000000000000000"
	genesisNonce        = 4251
	minerCount          = 5
	maxNonce            = 10000
)

// Status is a point-in-time view of the simulator.
type Status struct {
	Mining     bool   `json:"mining"`
	Attempts   int    `json:"attempts"`
	Difficulty int    `json:"difficulty"`
	Height     uint64 `json:"height"`
}

// Simulator mines blocks one at a time on its own chain.
type Simulator struct {
	cfg     config.PowConfig
	oracle  hashoracle.Oracle
	metrics *metrics.Metrics

	mining   atomic.Bool
	attempts atomic.Int64

	mu     sync.RWMutex
	rng    *rand.Rand
	blocks []models.PowBlock
}

// New returns a simulator with an empty chain. Call Seed before mining.
func New(cfg config.PowConfig, oracle hashoracle.Oracle, rng *rand.Rand, m *metrics.Metrics) *Simulator {
	return &Simulator{
		cfg:     cfg,
		oracle:  oracle,
		metrics: m,
		rng:     rng,
	}
}

// Seed replaces the chain with a genesis block and four mined blocks whose
// timestamps end at now.
func (s *Simulator) Seed(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	gaps := make([]time.Duration, 4)
	var total time.Duration
	for i := range gaps {
		gaps[i] = 10*time.Minute + time.Duration(s.rng.IntN(300))*time.Second
		total += gaps[i]
	}

	genesis := models.PowBlock{
		ID:                1,
		Hash:              "000" + s.oracle.Digest(HashLength-3),
		PreviousHash:      genesisPreviousHash,
		Nonce:             genesisNonce,
		Timestamp:         now.Add(-total),
		Transactions:      3,
		Miner:             "Miner 3",
		Difficulty:        s.cfg.Difficulty,
		EnergyUsed:        125,
		TimeToMineSeconds: 12,
		Attempts:          250,
		Solved:            true,
	}
	blocks := []models.PowBlock{genesis}

	for i, gap := range gaps {
		prev := blocks[i]
		energy := int64(s.rng.IntN(100) + 75)
		blocks = append(blocks, models.PowBlock{
			ID:                prev.ID + 1,
			Hash:              "000" + s.oracle.Digest(HashLength-3),
			PreviousHash:      prev.Hash,
			Nonce:             s.rng.IntN(maxNonce),
			Timestamp:         prev.Timestamp.Add(gap),
			Transactions:      s.rng.IntN(10) + 3,
			Miner:             s.minerLocked(),
			Difficulty:        s.cfg.Difficulty,
			EnergyUsed:        energy,
			TimeToMineSeconds: float64(s.rng.IntN(30) + 5),
			Attempts:          int(energy * 2),
			Solved:            true,
		})
	}
	s.blocks = blocks
}

// Mine mines one block on top of the last block.
func (s *Simulator) Mine(difficulty int) (*models.PowBlock, error) {
	return s.MineWithProgress(difficulty, nil)
}

// MineWithProgress is Mine with an additional progress listener.
func (s *Simulator) MineWithProgress(difficulty int, progress ProgressFunc) (*models.PowBlock, error) {
	if err := s.acquire(difficulty); err != nil {
		return nil, err
	}
	defer s.mining.Store(false)
	return s.mine(difficulty, progress), nil
}

// MineAsync starts mining in a new goroutine and calls done with the result.
// Rejections are returned synchronously and done is not called.
func (s *Simulator) MineAsync(difficulty int, progress ProgressFunc, done func(*models.PowBlock)) error {
	if err := s.acquire(difficulty); err != nil {
		return err
	}
	go func() {
		block := s.mine(difficulty, progress)
		s.mining.Store(false)
		if done != nil {
			done(block)
		}
	}()
	return nil
}

func (s *Simulator) acquire(difficulty int) error {
	if difficulty < 0 || difficulty > HashLength {
		s.metrics.ObserveRejected("mine", "difficulty")
		return fmt.Errorf("%w: %d is outside [0, %d]", ErrInvalidDifficulty, difficulty, HashLength)
	}
	if s.Height() == 0 {
		s.metrics.ObserveRejected("mine", "empty_chain")
		return ErrEmptyChain
	}
	if !s.mining.CompareAndSwap(false, true) {
		s.metrics.ObserveRejected("mine", "busy")
		return ErrMiningInProgress
	}
	return nil
}

// mine must only be called while holding the mining flag.
func (s *Simulator) mine(difficulty int, progress ProgressFunc) *models.PowBlock {
	s.attempts.Store(0)
	if s.cfg.MiningDelay > 0 {
		time.Sleep(s.cfg.MiningDelay)
	}

	start := time.Now()
	res := Search(s.oracle, difficulty, s.maxAttempts(), s.cfg.ProgressEvery, func(n int) {
		s.attempts.Store(int64(n))
		if progress != nil {
			progress(n)
		}
	})
	elapsed := time.Since(start)

	s.mu.Lock()
	prev := s.blocks[len(s.blocks)-1]
	block := models.PowBlock{
		ID:                prev.ID + 1,
		Hash:              res.Digest,
		PreviousHash:      prev.Hash,
		Nonce:             s.rng.IntN(maxNonce),
		Timestamp:         time.Now(),
		Transactions:      s.rng.IntN(10) + 3,
		Miner:             s.minerLocked(),
		Difficulty:        difficulty,
		EnergyUsed:        int64(math.Floor(float64(res.Attempts) * 0.5)),
		TimeToMineSeconds: math.Round(elapsed.Seconds()*10) / 10,
		Attempts:          res.Attempts,
		Solved:            res.Solved,
	}
	s.blocks = append(s.blocks, block)
	s.mu.Unlock()

	s.metrics.ObserveMined(res.Attempts, res.Solved)
	if res.Solved {
		slog.Info("Mined block", "id", block.ID, "attempts", res.Attempts, "difficulty", difficulty)
	} else {
		slog.Warn("Attempt ceiling reached before difficulty was met", "id", block.ID, "attempts", res.Attempts, "difficulty", difficulty)
	}
	return &block
}

func (s *Simulator) maxAttempts() int {
	if s.cfg.MaxAttempts > 0 {
		return s.cfg.MaxAttempts
	}
	return 300
}

func (s *Simulator) minerLocked() string {
	return fmt.Sprintf("Miner %d", s.rng.IntN(minerCount)+1)
}

// Mining reports whether a search is outstanding.
func (s *Simulator) Mining() bool {
	return s.mining.Load()
}

// Attempts returns the attempt count last reported by the current or previous search.
func (s *Simulator) Attempts() int {
	return int(s.attempts.Load())
}

// Difficulty returns the configured default difficulty.
func (s *Simulator) Difficulty() int {
	return s.cfg.Difficulty
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
func (s *Simulator) Blocks() []models.PowBlock {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.PowBlock, len(s.blocks))
	copy(out, s.blocks)
	return out
}

func (s *Simulator) Status() Status {
	return Status{
		Mining:     s.Mining(),
		Attempts:   s.Attempts(),
		Difficulty: s.cfg.Difficulty,
		Height:     s.Height(),
	}
}
