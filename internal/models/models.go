package models

import "time"

// TxStatus is the lifecycle state of a transaction.
type TxStatus string

const (
	TxPending   TxStatus = "pending"
	TxConfirmed TxStatus = "confirmed"
)

func (s TxStatus) rank() int {
	switch s {
	case TxPending:
		return 1
	case TxConfirmed:
		return 2
	default:
		return 0
	}
}

// Advances reports whether moving from s to next is a forward transition.
func (s TxStatus) Advances(next TxStatus) bool {
	return next.rank() > s.rank()
}

// Valid reports whether s is a known status.
func (s TxStatus) Valid() bool {
	return s.rank() > 0
}

// Block represents a blockchain block as seen by the local view.
type Block struct {
	ID              uint64    `json:"id"`
	Hash            string    `json:"hash"`
	Timestamp       time.Time `json:"timestamp"`
	TransactionRefs []string  `json:"transactionRefs"`
	// Local marks blocks produced by the demo generator rather than read from a ledger.
	Local           bool      `json:"local,omitempty"`
}

// Clone returns a deep copy of the block.
func (b Block) Clone() Block {
	refs := make([]string, len(b.TransactionRefs))
	copy(refs, b.TransactionRefs)
	b.TransactionRefs = refs
	return b
}

// Transaction represents a value transfer.
// ID is derived from Hash and is the key within the store.
type Transaction struct {
	ID     string   `json:"id"`
	Hash   string   `json:"hash"`
	From   string   `json:"from"`
	To     string   `json:"to"`
	Amount string   `json:"amount"`
	Status TxStatus `json:"status"`
}

// Validator is a proof-of-stake participant.
type Validator struct {
	ID              int    `json:"id" yaml:"id"`
	Name            string `json:"name" yaml:"name"`
	Stake           int64  `json:"stake" yaml:"stake"`
	TotalStaked     int64  `json:"totalStaked" yaml:"total_staked"`
	BlocksValidated uint64 `json:"blocksValidated" yaml:"blocks_validated"`
	Reputation      int    `json:"reputation" yaml:"reputation"`
}

// PowBlock is a block produced by the proof-of-work simulator.
type PowBlock struct {
	ID                uint64    `json:"id"`
	Hash              string    `json:"hash"`
	PreviousHash      string    `json:"previousHash"`
	Nonce             int       `json:"nonce"`
	Timestamp         time.Time `json:"timestamp"`
	Transactions      int       `json:"transactions"`
	Miner             string    `json:"miner"`
	Difficulty        int       `json:"difficulty"`
	EnergyUsed        int64     `json:"energyUsed"`
	TimeToMineSeconds float64   `json:"timeToMineSeconds"`
	Attempts          int       `json:"attempts"`
	// Solved is false when the attempt ceiling was hit before the difficulty predicate held.
	Solved bool `json:"solved"`
}

// PosBlock is a block produced by the proof-of-stake simulator.
type PosBlock struct {
	ID               uint64    `json:"id"`
	Hash             string    `json:"hash"`
	PreviousHash     string    `json:"previousHash"`
	Timestamp        time.Time `json:"timestamp"`
	Transactions     int       `json:"transactions"`
	ValidatorID      int       `json:"validatorId"`
	ValidatorName    string    `json:"validator"`
	StakeAtSelection int64     `json:"stake"`
	RewardAmount     int64     `json:"rewards"`
	EnergyUsed       float64   `json:"energyUsed"`
}
