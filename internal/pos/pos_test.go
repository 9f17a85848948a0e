package pos

import (
	"math/rand/v2"
	"os"
	"path/filepath"
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

func newRng() *rand.Rand {
	return rand.New(rand.NewPCG(11, 13))
}

func newSimulator(t *testing.T, selection string, m *metrics.Metrics) *Simulator {
	t.Helper()
	registry, err := NewRegistry(DefaultValidators(newRng())...)
	require.NoError(t, err)

	cfg := config.Default().Pos
	cfg.Selection = selection
	cfg.ConsensusDelay = 0

	sim, err := New(cfg, registry, hashoracle.NewSeeded(2), newRng(), m)
	require.NoError(t, err)
	sim.Seed(time.Now())
	return sim
}

func TestReward(t *testing.T) {
	cases := []struct {
		stake int64
		want  int64
	}{
		{stake: 15000, want: 15},
		{stake: 7000, want: 7},
		{stake: 999, want: 0},
		{stake: 12345, want: 12},
		{stake: 0, want: 0},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Reward(tc.stake), "stake %d", tc.stake)
	}
}

func TestDefaultValidators(t *testing.T) {
	validators := DefaultValidators(newRng())
	require.Len(t, validators, 5)
	for i, v := range validators {
		assert.Equal(t, i+1, v.ID)
		assert.Equal(t, int64(5000+(i+1)*2000), v.Stake)
		assert.GreaterOrEqual(t, v.TotalStaked, v.Stake)
		assert.Less(t, v.TotalStaked, v.Stake+3000)
		assert.GreaterOrEqual(t, v.BlocksValidated, uint64(10))
		assert.Less(t, v.BlocksValidated, uint64(60))
		assert.GreaterOrEqual(t, v.Reputation, 80)
		assert.Less(t, v.Reputation, 100)
	}
}

func TestRegistry(t *testing.T) {
	r, err := NewRegistry()
	require.NoError(t, err)
	assert.Zero(t, r.Len())

	require.NoError(t, r.Register(models.Validator{ID: 1, Stake: 100}))
	assert.ErrorIs(t, r.Register(models.Validator{ID: 1, Stake: 200}), ErrDuplicateValidator)
	assert.Error(t, r.Register(models.Validator{ID: 2, Stake: -1}))
	assert.Equal(t, 1, r.Len())

	v, ok := r.Validator(1)
	require.True(t, ok)
	assert.Equal(t, "Validator 1", v.Name)

	updated, err := r.RecordValidation(1)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), updated.BlocksValidated)

	_, err = r.RecordValidation(9)
	assert.ErrorIs(t, err, ErrUnknownValidator)

	snapshot := r.Validators()
	snapshot[0].Stake = 0
	v, _ = r.Validator(1)
	assert.Equal(t, int64(100), v.Stake)
}

func TestLoadValidators(t *testing.T) {
	dir := t.TempDir()

	valid := filepath.Join(dir, "validators.yaml")
	require.NoError(t, os.WriteFile(valid, []byte(`validators:
  - id: 2
    name: beta
    stake: 9000
    total_staked: 9500
    reputation: 90
  - id: 1
    name: alpha
    stake: 7000
`), 0o600))

	validators, err := LoadValidators(valid)
	require.NoError(t, err)
	require.Len(t, validators, 2)
	assert.Equal(t, "alpha", validators[0].Name)
	assert.Equal(t, int64(7000), validators[0].TotalStaked)
	assert.Equal(t, int64(9500), validators[1].TotalStaked)
	assert.Equal(t, 90, validators[1].Reputation)

	empty := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(empty, []byte("validators: []\n"), 0o600))
	_, err = LoadValidators(empty)
	assert.ErrorIs(t, err, ErrEmptyRegistry)

	broken := filepath.Join(dir, "broken.yaml")
	require.NoError(t, os.WriteFile(broken, []byte("validators: {"), 0o600))
	_, err = LoadValidators(broken)
	assert.ErrorContains(t, err, "failed to parse validators file")

	_, err = LoadValidators(filepath.Join(dir, "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read validators file")
}

func TestSelectors(t *testing.T) {
	candidates := []models.Validator{
		{ID: 1, Stake: 1000},
		{ID: 2, Stake: 0},
		{ID: 3, Stake: 9000},
	}
	rng := newRng()

	counts := map[int]int{}
	for i := 0; i < 10000; i++ {
		counts[StakeWeighted{}.Select(rng, candidates).ID]++
	}
	assert.Zero(t, counts[2], "zero stake is never selected")
	assert.Greater(t, counts[3], counts[1]*5)

	uniform := map[int]int{}
	for i := 0; i < 9000; i++ {
		uniform[Uniform{}.Select(rng, candidates).ID]++
	}
	for _, id := range []int{1, 2, 3} {
		assert.InDelta(t, 3000, uniform[id], 300)
	}

	zero := []models.Validator{{ID: 4}, {ID: 5}}
	for i := 0; i < 10; i++ {
		assert.Contains(t, []int{4, 5}, StakeWeighted{}.Select(rng, zero).ID)
	}
}

func TestSelectorFor(t *testing.T) {
	s, err := SelectorFor(config.SelectionStake)
	require.NoError(t, err)
	assert.IsType(t, StakeWeighted{}, s)

	s, err = SelectorFor(config.SelectionUniform)
	require.NoError(t, err)
	assert.IsType(t, Uniform{}, s)

	_, err = SelectorFor("lottery")
	assert.Error(t, err)
}

func TestSeed(t *testing.T) {
	sim := newSimulator(t, config.SelectionStake, nil)
	blocks := sim.Blocks()
	require.Len(t, blocks, 5)

	first := sim.Registry().Validators()[0]
	assert.Equal(t, first.ID, blocks[0].ValidatorID)
	assert.Equal(t, first.Stake, blocks[0].StakeAtSelection)
	assert.Equal(t, Reward(first.Stake), blocks[0].RewardAmount)
	assert.Equal(t, genesisPreviousHash, blocks[0].PreviousHash)

	for i := 1; i < len(blocks); i++ {
		b, prev := blocks[i], blocks[i-1]
		assert.Equal(t, prev.ID+1, b.ID)
		assert.Equal(t, prev.Hash, b.PreviousHash)
		assert.Equal(t, Reward(b.StakeAtSelection), b.RewardAmount)
		gap := b.Timestamp.Sub(prev.Timestamp)
		assert.GreaterOrEqual(t, gap, 15*time.Second)
		assert.Less(t, gap, 45*time.Second)
	}
}

func TestSeedAttributesRegisteredValidators(t *testing.T) {
	cases := []struct {
		name       string
		validators []models.Validator
		wantBlocks int
	}{
		{
			name: "custom registry",
			validators: []models.Validator{
				{ID: 7, Name: "Alpha", Stake: 40000},
				{ID: 9, Name: "Beta", Stake: 3000},
			},
			wantBlocks: 5,
		},
		{
			name:       "single validator",
			validators: []models.Validator{{ID: 42, Stake: 1000}},
			wantBlocks: 5,
		},
		{
			name:       "empty registry",
			wantBlocks: 1,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			registry, err := NewRegistry(tc.validators...)
			require.NoError(t, err)
			cfg := config.Default().Pos
			sim, err := New(cfg, registry, hashoracle.NewSeeded(3), newRng(), nil)
			require.NoError(t, err)

			sim.Seed(time.Now())
			blocks := sim.Blocks()
			require.Len(t, blocks, tc.wantBlocks)

			if len(tc.validators) == 0 {
				assert.Zero(t, blocks[0].ValidatorID)
				assert.Empty(t, blocks[0].ValidatorName)
				return
			}
			for _, b := range blocks {
				v, ok := registry.Validator(b.ValidatorID)
				require.True(t, ok, "block %d names validator %d", b.ID, b.ValidatorID)
				assert.Equal(t, v.Name, b.ValidatorName)
				assert.Equal(t, v.Stake, b.StakeAtSelection)
				assert.Equal(t, Reward(v.Stake), b.RewardAmount)
			}
		})
	}
}

func TestCreateBlock(t *testing.T) {
	for _, selection := range []string{config.SelectionStake, config.SelectionUniform} {
		t.Run(selection, func(t *testing.T) {
			reg := prometheus.NewRegistry()
			m := metrics.New(reg)
			sim := newSimulator(t, selection, m)
			before := map[int]uint64{}
			for _, v := range sim.Registry().Validators() {
				before[v.ID] = v.BlocksValidated
			}

			for i := 0; i < 20; i++ {
				prev := sim.Blocks()[len(sim.Blocks())-1]
				block, err := sim.CreateBlock()
				require.NoError(t, err)

				v, ok := sim.Registry().Validator(block.ValidatorID)
				require.True(t, ok, "selected validator must be registered")
				assert.Equal(t, before[v.ID]+1, v.BlocksValidated)
				before[v.ID] = v.BlocksValidated

				assert.Equal(t, prev.ID+1, block.ID)
				assert.Equal(t, prev.Hash, block.PreviousHash)
				assert.Equal(t, v.Name, block.ValidatorName)
				assert.Equal(t, v.Stake, block.StakeAtSelection)
				assert.Equal(t, v.Stake/1000, block.RewardAmount)
				assert.GreaterOrEqual(t, block.EnergyUsed, 0.3)
				assert.LessOrEqual(t, block.EnergyUsed, 0.7)
				assert.GreaterOrEqual(t, block.Transactions, 3)
				assert.Less(t, block.Transactions, 18)
				assert.Nil(t, sim.Current())
			}
			assert.Len(t, sim.Blocks(), 25)

			var total float64
			for _, v := range sim.Registry().Validators() {
				total += testutil.ToFloat64(m.PosBlocks.WithLabelValues(v.Name))
			}
			assert.Equal(t, 20.0, total)
		})
	}
}

func TestCreateBlockRejections(t *testing.T) {
	empty, err := NewRegistry()
	require.NoError(t, err)

	cfg := config.Default().Pos
	cfg.ConsensusDelay = 0

	sim, err := New(cfg, empty, hashoracle.NewSeeded(1), newRng(), nil)
	require.NoError(t, err)

	_, err = sim.CreateBlock()
	assert.ErrorIs(t, err, ErrEmptyChain)

	sim.Seed(time.Now())
	_, err = sim.CreateBlock()
	assert.ErrorIs(t, err, ErrEmptyRegistry)
	assert.False(t, sim.Validating())
	assert.Len(t, sim.Blocks(), 5)

	_, err = New(config.PosConfig{Selection: "lottery"}, empty, hashoracle.NewSeeded(1), newRng(), nil)
	assert.Error(t, err)
}

func TestCreateBlockIsExclusive(t *testing.T) {
	sim := newSimulator(t, config.SelectionStake, nil)
	sim.cfg.ConsensusDelay = 50 * time.Millisecond

	done := make(chan *models.PosBlock, 1)
	require.NoError(t, sim.CreateBlockAsync(func(block *models.PosBlock, err error) {
		assert.NoError(t, err)
		done <- block
	}))

	current := sim.Current()
	require.NotNil(t, current)
	assert.True(t, sim.Status().Validating)

	_, err := sim.CreateBlock()
	assert.ErrorIs(t, err, ErrValidationInProgress)
	assert.ErrorIs(t, sim.CreateBlockAsync(nil), ErrValidationInProgress)

	select {
	case block := <-done:
		assert.Equal(t, current.ID, block.ValidatorID)
		assert.Equal(t, uint64(6), block.ID)
	case <-time.After(5 * time.Second):
		t.Fatal("validation did not finish")
	}
	assert.Nil(t, sim.Current())
	assert.Len(t, sim.Blocks(), 6)
}
