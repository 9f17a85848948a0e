package pow

import (
	"math/rand/v2"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manifest-network/chainview/internal/config"
	"github.com/manifest-network/chainview/internal/hashoracle"
	"github.com/manifest-network/chainview/internal/metrics"
	"github.com/manifest-network/chainview/internal/models"
)

func testConfig() config.PowConfig {
	cfg := config.Default().Pow
	cfg.MiningDelay = 0
	return cfg
}

func newSeeded(t *testing.T, oracle hashoracle.Oracle, cfg config.PowConfig) *Simulator {
	t.Helper()
	sim := New(cfg, oracle, rand.New(rand.NewPCG(7, 7)), nil)
	sim.Seed(time.Now())
	return sim
}

func TestSearch(t *testing.T) {
	cases := []struct {
		name         string
		digests      []string
		difficulty   int
		maxAttempts  int
		wantAttempts int
		wantSolved   bool
	}{
		{name: "first digest", digests: []string{"00ab"}, difficulty: 2, maxAttempts: 300, wantAttempts: 1, wantSolved: true},
		{name: "third digest", digests: []string{"1", "01", "000"}, difficulty: 2, maxAttempts: 300, wantAttempts: 3, wantSolved: true},
		{name: "zero difficulty", digests: []string{"f"}, difficulty: 0, maxAttempts: 300, wantAttempts: 1, wantSolved: true},
		{name: "ceiling", digests: []string{"1", "2", "3", "4"}, difficulty: 2, maxAttempts: 4, wantAttempts: 4, wantSolved: false},
		{name: "non-positive ceiling", digests: []string{"1"}, difficulty: 2, maxAttempts: 0, wantAttempts: 1, wantSolved: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := Search(hashoracle.NewScripted(tc.digests...), tc.difficulty, tc.maxAttempts, 5, nil)
			assert.Equal(t, tc.wantAttempts, res.Attempts)
			assert.Equal(t, tc.wantSolved, res.Solved)
			assert.Len(t, res.Digest, HashLength)
		})
	}
}

func TestSearchPredicateOrCeiling(t *testing.T) {
	oracle := hashoracle.NewSeeded(42)
	for difficulty := 0; difficulty <= 4; difficulty++ {
		for i := 0; i < 20; i++ {
			res := Search(oracle, difficulty, 300, 5, nil)
			require.GreaterOrEqual(t, res.Attempts, 1)
			if res.Solved {
				assert.True(t, strings.HasPrefix(res.Digest, strings.Repeat("0", difficulty)))
			} else {
				assert.Equal(t, 300, res.Attempts)
			}
		}
	}
}

func TestSearchProgress(t *testing.T) {
	var reported []int
	res := Search(hashoracle.NewScripted("1", "2", "3", "4", "5", "6", "7", "8", "9", "a", "b", "c"), 1, 12, 5, func(n int) {
		reported = append(reported, n)
	})
	assert.Equal(t, 12, res.Attempts)
	assert.Equal(t, []int{5, 10, 12}, reported)
}

func TestSeed(t *testing.T) {
	now := time.Now()
	sim := New(testConfig(), hashoracle.NewSeeded(3), rand.New(rand.NewPCG(1, 2)), nil)
	assert.Zero(t, sim.Height())

	sim.Seed(now)
	blocks := sim.Blocks()
	require.Len(t, blocks, 5)

	genesis := blocks[0]
	assert.Equal(t, uint64(1), genesis.ID)
	assert.Equal(t, genesisNonce, genesis.Nonce)
	assert.Equal(t, genesisPreviousHash, genesis.PreviousHash)
	assert.Equal(t, int64(125), genesis.EnergyUsed)

	for i, b := range blocks {
		assert.Equal(t, uint64(i+1), b.ID)
		assert.True(t, strings.HasPrefix(b.Hash, "000"))
		assert.Len(t, b.Hash, HashLength)
		if i == 0 {
			continue
		}
		prev := blocks[i-1]
		assert.Equal(t, prev.Hash, b.PreviousHash)
		gap := b.Timestamp.Sub(prev.Timestamp)
		assert.GreaterOrEqual(t, gap, 10*time.Minute)
		assert.Less(t, gap, 15*time.Minute)
		assert.GreaterOrEqual(t, b.EnergyUsed, int64(75))
		assert.Less(t, b.EnergyUsed, int64(175))
	}
	assert.True(t, now.Equal(blocks[4].Timestamp))
}

func TestMineScriptedDigest(t *testing.T) {
	sim := newSeeded(t, hashoracle.NewSeeded(9), testConfig())
	prev := sim.Blocks()[4]

	// Replace the oracle once the seed chain is built so the first search draw is scripted.
	sim.oracle = hashoracle.NewScripted("00ab")

	block, err := sim.Mine(2)
	require.NoError(t, err)

	assert.Equal(t, 1, block.Attempts)
	assert.Equal(t, int64(0), block.EnergyUsed)
	assert.True(t, block.Solved)
	assert.True(t, strings.HasPrefix(block.Hash, "00ab"))
	assert.GreaterOrEqual(t, block.Nonce, 0)
	assert.Less(t, block.Nonce, maxNonce)
	assert.Equal(t, prev.ID+1, block.ID)
	assert.Equal(t, prev.Hash, block.PreviousHash)
	assert.Equal(t, 2, block.Difficulty)
	assert.Equal(t, 1, sim.Attempts())
	assert.False(t, sim.Mining())
	assert.Equal(t, uint64(6), sim.Height())
}

func TestMineCeilingMarksUnsolved(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	cfg := testConfig()
	cfg.MaxAttempts = 3
	sim := New(cfg, hashoracle.NewSeeded(1), rand.New(rand.NewPCG(1, 1)), m)
	sim.Seed(time.Now())
	sim.oracle = hashoracle.NewScripted("1", "2", "3")

	block, err := sim.Mine(2)
	require.NoError(t, err)
	assert.False(t, block.Solved)
	assert.Equal(t, 3, block.Attempts)
	assert.Equal(t, int64(1), block.EnergyUsed)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PowBlocks.WithLabelValues("false")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.PowAttempts))
}

func TestMineRejections(t *testing.T) {
	cases := []struct {
		name       string
		seed       bool
		difficulty int
		want       error
	}{
		{name: "empty chain", seed: false, difficulty: 2, want: ErrEmptyChain},
		{name: "negative difficulty", seed: true, difficulty: -1, want: ErrInvalidDifficulty},
		{name: "difficulty too large", seed: true, difficulty: HashLength + 1, want: ErrInvalidDifficulty},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sim := New(testConfig(), hashoracle.NewSeeded(1), rand.New(rand.NewPCG(1, 1)), nil)
			if tc.seed {
				sim.Seed(time.Now())
			}
			before := len(sim.Blocks())

			block, err := sim.Mine(tc.difficulty)
			assert.ErrorIs(t, err, tc.want)
			assert.Nil(t, block)
			assert.Len(t, sim.Blocks(), before)
			assert.False(t, sim.Mining())
		})
	}
}

func TestMineIsExclusive(t *testing.T) {
	cfg := testConfig()
	cfg.MiningDelay = 50 * time.Millisecond
	sim := newSeeded(t, hashoracle.NewSeeded(5), cfg)

	done := make(chan *models.PowBlock, 1)
	require.NoError(t, sim.MineAsync(1, nil, func(block *models.PowBlock) {
		done <- block
	}))
	assert.True(t, sim.Mining())

	var wg sync.WaitGroup
	errs := make(chan error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := sim.Mine(1)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.ErrorIs(t, err, ErrMiningInProgress)
	}
	assert.ErrorIs(t, sim.MineAsync(1, nil, nil), ErrMiningInProgress)

	select {
	case block := <-done:
		assert.Equal(t, uint64(6), block.ID)
	case <-time.After(5 * time.Second):
		t.Fatal("mining did not finish")
	}
	assert.Len(t, sim.Blocks(), 6)
	assert.False(t, sim.Mining())

	block, err := sim.Mine(0)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), block.ID)
}
