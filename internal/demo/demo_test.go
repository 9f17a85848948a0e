package demo

import (
	"math/rand/v2"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manifest-network/chainview/internal/hashoracle"
	"github.com/manifest-network/chainview/internal/models"
	"github.com/manifest-network/chainview/internal/units"
)

func TestID(t *testing.T) {
	id := ID("block-1")
	assert.Len(t, id, 10)
	assert.Equal(t, "0x", id[:2])
	assert.Equal(t, id, ID("block-1"))
	assert.NotEqual(t, id, ID("block-2"))
}

func TestSeed(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	g := NewGenerator(hashoracle.NewSeeded(1), rand.New(rand.NewPCG(1, 1)))

	blocks, txs := g.Seed(now)
	require.Len(t, blocks, 5)

	refs := 0
	for i, b := range blocks {
		assert.Equal(t, uint64(i+1), b.ID)
		assert.Equal(t, now.Add(-time.Duration(4-i)*2*time.Minute), b.Timestamp)
		assert.NotEmpty(t, b.TransactionRefs)
		assert.LessOrEqual(t, len(b.TransactionRefs), 3)
		assert.True(t, b.Local)
		refs += len(b.TransactionRefs)
	}
	assert.Len(t, txs, refs)

	for _, tx := range txs {
		assert.Equal(t, models.TxConfirmed, tx.Status)
		assert.True(t, units.IsAddress(tx.From), tx.From)
		assert.True(t, units.IsAddress(tx.To), tx.To)
		amount, err := strconv.ParseFloat(tx.Amount, 64)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, amount, 0.0)
		assert.Less(t, amount, 2.0001)
	}
}
