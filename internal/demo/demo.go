// Package demo fabricates ledger data used when no chain client is attached.
package demo

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/manifest-network/chainview/internal/hashoracle"
	"github.com/manifest-network/chainview/internal/models"
	"github.com/manifest-network/chainview/internal/utils"
)

const (
	seedBlocks    = 5
	blockInterval = 2 * time.Minute
)

// ID returns the display identifier of the keccak hash of label.
func ID(label string) string {
	return utils.ShortID(crypto.Keccak256Hash([]byte(label)).Hex())
}

// Address returns a random 20-byte hex address.
func Address(oracle hashoracle.Oracle) string {
	return "0x" + oracle.Digest(40)
}

// Generator produces demo blocks and transactions.
type Generator struct {
	oracle hashoracle.Oracle
	rng    *rand.Rand
}

// NewGenerator returns a generator drawing addresses from oracle and amounts from rng.
func NewGenerator(oracle hashoracle.Oracle, rng *rand.Rand) *Generator {
	return &Generator{oracle: oracle, rng: rng}
}

// Seed builds five confirmed blocks, two minutes apart and ending at now,
// each carrying one to three transactions.
func (g *Generator) Seed(now time.Time) ([]models.Block, []models.Transaction) {
	blocks := make([]models.Block, 0, seedBlocks)
	var txs []models.Transaction

	for i := 1; i <= seedBlocks; i++ {
		count := g.rng.IntN(3) + 1
		refs := make([]string, 0, count)
		for j := 0; j < count; j++ {
			id := ID(fmt.Sprintf("tx-%d-%d", i, j))
			txs = append(txs, models.Transaction{
				ID:     id,
				Hash:   id,
				From:   Address(g.oracle),
				To:     Address(g.oracle),
				Amount: fmt.Sprintf("%.4f", g.rng.Float64()*2),
				Status: models.TxConfirmed,
			})
			refs = append(refs, id)
		}

		blocks = append(blocks, models.Block{
			ID:              uint64(i),
			Hash:            ID(fmt.Sprintf("block-%d", i)),
			Timestamp:       now.Add(-time.Duration(seedBlocks-i) * blockInterval),
			TransactionRefs: refs,
			Local:           true,
		})
	}
	return blocks, txs
}

// BlockHash returns the hash for a locally sealed block created at t.
func BlockHash(t time.Time) string {
	return ID(fmt.Sprintf("block-%d", t.UnixMilli()))
}
