package output

import (
	"time"

	"github.com/manifest-network/chainview/internal/models"
)

// OutputHandler is the write side of the chain view. The reconciler only writes through it.
type OutputHandler interface {
	// MergeBlocks merges blocks into the view, ignoring ones already present.
	// Returns how many blocks were retained.
	MergeBlocks(blocks []models.Block) int

	// UpsertTransaction records a transaction without moving its status backward.
	UpsertTransaction(tx models.Transaction) bool

	// AdvanceTransaction moves a transaction forward to the given status.
	AdvanceTransaction(id string, status models.TxStatus) (bool, error)

	// DropLocalBlocks removes locally generated blocks from the view.
	DropLocalBlocks() int

	// SealPending packs pending transactions into a locally generated block.
	SealPending(hash string, at time.Time) (*models.Block, bool)

	// PendingCount returns the number of pending transactions.
	PendingCount() int
}
