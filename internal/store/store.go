// Package store holds the bounded, deduplicated view of recent blocks and transactions.
package store

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/manifest-network/chainview/internal/models"
	"github.com/manifest-network/chainview/internal/output"
)

// DefaultMaxBlocks is the number of blocks retained by the view.
const DefaultMaxBlocks = 10

var (
	ErrUnknownTransaction = errors.New("unknown transaction")
	ErrInvalidStatus      = errors.New("invalid transaction status")
)

// Store is the shared chain view. Blocks are kept most-recent-first and capped;
// transactions are keyed by ID and remembered in insertion order.
// All mutations are serialized; readers receive copies.
type Store struct {
	mu        sync.RWMutex
	maxBlocks int
	blocks    []models.Block
	txs       map[string]*models.Transaction
	txOrder   []string
	bus       *eventBus
}

var _ output.OutputHandler = (*Store)(nil)

// New returns an empty store retaining at most maxBlocks blocks.
func New(maxBlocks int) *Store {
	if maxBlocks <= 0 {
		maxBlocks = DefaultMaxBlocks
	}
	return &Store{
		maxBlocks: maxBlocks,
		txs:       make(map[string]*models.Transaction),
		bus:       newEventBus(),
	}
}

// Seed replaces the store contents.
func (s *Store) Seed(blocks []models.Block, txs []models.Transaction) {
	s.mu.Lock()
	s.blocks = nil
	s.txs = make(map[string]*models.Transaction)
	s.txOrder = nil
	s.mergeBlocksLocked(blocks)
	for _, tx := range txs {
		s.upsertLocked(tx)
	}
	s.mu.Unlock()
}

// MergeBlocks adds blocks whose ID is not already present, re-sorts by ID descending
// and truncates to the bound. A ledger block replaces a local block with the same ID.
// It returns how many of the given blocks were retained.
func (s *Store) MergeBlocks(blocks []models.Block) int {
	s.mu.Lock()
	added := s.mergeBlocksLocked(blocks)
	s.mu.Unlock()

	events := make([]Event, 0, len(added))
	for _, id := range added {
		events = append(events, Event{Kind: BlockAdded, BlockID: id})
	}
	s.bus.publish(events)
	return len(added)
}

func (s *Store) mergeBlocksLocked(blocks []models.Block) []uint64 {
	local := make(map[uint64]bool, len(s.blocks)+len(blocks))
	for _, b := range s.blocks {
		local[b.ID] = b.Local
	}

	accepted := make(map[uint64]models.Block)
	for _, b := range blocks {
		if isLocal, ok := local[b.ID]; ok && (!isLocal || b.Local) {
			continue
		}
		local[b.ID] = b.Local
		accepted[b.ID] = b.Clone()
	}

	merged := make([]models.Block, 0, len(s.blocks)+len(accepted))
	for _, b := range s.blocks {
		if _, ok := accepted[b.ID]; !ok {
			merged = append(merged, b)
		}
	}
	for _, b := range accepted {
		merged = append(merged, b)
	}

	sort.Slice(merged, func(i, j int) bool { return merged[i].ID > merged[j].ID })
	if len(merged) > s.maxBlocks {
		merged = merged[:s.maxBlocks]
	}
	s.blocks = merged

	var added []uint64
	for _, b := range merged {
		if _, ok := accepted[b.ID]; ok {
			added = append(added, b.ID)
		}
	}
	return added
}

// DropLocalBlocks removes every block produced by the demo generator and
// returns how many were removed. Their transactions are kept.
func (s *Store) DropLocalBlocks() int {
	s.mu.Lock()
	kept := s.blocks[:0]
	var removed []uint64
	for _, b := range s.blocks {
		if b.Local {
			removed = append(removed, b.ID)
			continue
		}
		kept = append(kept, b)
	}
	s.blocks = kept
	s.mu.Unlock()

	events := make([]Event, 0, len(removed))
	for _, id := range removed {
		events = append(events, Event{Kind: BlockRemoved, BlockID: id})
	}
	s.bus.publish(events)
	return len(removed)
}

// UpsertTransaction inserts tx or updates the stored copy. A stored status is never
// moved backward. It returns true when tx was not known before.
func (s *Store) UpsertTransaction(tx models.Transaction) bool {
	s.mu.Lock()
	inserted, confirmed := s.upsertLocked(tx)
	s.mu.Unlock()

	var events []Event
	if inserted {
		events = append(events, Event{Kind: TransactionAdded, TransactionID: tx.ID})
	}
	if confirmed {
		events = append(events, Event{Kind: TransactionConfirmed, TransactionID: tx.ID})
	}
	s.bus.publish(events)
	return inserted
}

func (s *Store) upsertLocked(tx models.Transaction) (inserted, confirmed bool) {
	if !tx.Status.Valid() {
		tx.Status = models.TxPending
	}

	current, ok := s.txs[tx.ID]
	if !ok {
		stored := tx
		s.txs[tx.ID] = &stored
		s.txOrder = append(s.txOrder, tx.ID)
		return true, false
	}

	status := current.Status
	if status.Advances(tx.Status) {
		status = tx.Status
		confirmed = status == models.TxConfirmed
	}
	*current = tx
	current.Status = status
	return false, confirmed
}

// AdvanceTransaction moves a transaction forward to next. Backward or repeated
// transitions are ignored and reported as false.
func (s *Store) AdvanceTransaction(id string, next models.TxStatus) (bool, error) {
	if !next.Valid() {
		return false, ErrInvalidStatus
	}

	s.mu.Lock()
	tx, ok := s.txs[id]
	if !ok {
		s.mu.Unlock()
		return false, ErrUnknownTransaction
	}
	if !tx.Status.Advances(next) {
		s.mu.Unlock()
		return false, nil
	}
	tx.Status = next
	s.mu.Unlock()

	if next == models.TxConfirmed {
		s.bus.publish([]Event{{Kind: TransactionConfirmed, TransactionID: id}})
	}
	return true, nil
}

// SealPending packs every pending transaction into a new local block with the next
// ID and confirms them. It reports false when nothing is pending.
func (s *Store) SealPending(hash string, at time.Time) (*models.Block, bool) {
	s.mu.Lock()

	var refs []string
	for _, id := range s.txOrder {
		if s.txs[id].Status == models.TxPending {
			refs = append(refs, id)
		}
	}
	if len(refs) == 0 {
		s.mu.Unlock()
		return nil, false
	}

	var next uint64 = 1
	if len(s.blocks) > 0 {
		next = s.blocks[0].ID + 1
	}
	block := models.Block{
		ID:              next,
		Hash:            hash,
		Timestamp:       at,
		TransactionRefs: refs,
		Local:           true,
	}
	s.mergeBlocksLocked([]models.Block{block})
	for _, id := range refs {
		s.txs[id].Status = models.TxConfirmed
	}
	s.mu.Unlock()

	events := []Event{{Kind: BlockAdded, BlockID: block.ID}}
	for _, id := range refs {
		events = append(events, Event{Kind: TransactionConfirmed, TransactionID: id})
	}
	s.bus.publish(events)

	return &block, true
}

// LatestBlocks returns up to n blocks, most recent first. It returns nil when n is not positive.
func (s *Store) LatestBlocks(n int) []models.Block {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if n <= 0 {
		return nil
	}
	if n > len(s.blocks) {
		n = len(s.blocks)
	}
	out := make([]models.Block, n)
	for i := 0; i < n; i++ {
		out[i] = s.blocks[i].Clone()
	}
	return out
}

// RecentTransactions returns up to n transactions, most recently added first.
// It returns nil when n is not positive.
func (s *Store) RecentTransactions(n int) []models.Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if n <= 0 {
		return nil
	}
	if n > len(s.txOrder) {
		n = len(s.txOrder)
	}
	out := make([]models.Transaction, 0, n)
	for i := len(s.txOrder) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, *s.txs[s.txOrder[i]])
	}
	return out
}

// Transaction returns the stored transaction with the given ID.
func (s *Store) Transaction(id string) (models.Transaction, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.txs[id]
	if !ok {
		return models.Transaction{}, false
	}
	return *tx, true
}

// PendingCount returns the number of pending transactions.
func (s *Store) PendingCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, tx := range s.txs {
		if tx.Status == models.TxPending {
			n++
		}
	}
	return n
}

// Subscribe registers for events published after each committed mutation.
func (s *Store) Subscribe() (SubscriberID, <-chan Event) {
	return s.bus.subscribe()
}

// Unsubscribe closes the subscription's channel.
func (s *Store) Unsubscribe(id SubscriberID) bool {
	return s.bus.unsubscribe(id)
}

// Subscribers returns the number of active subscriptions.
func (s *Store) Subscribers() int {
	return s.bus.count()
}
