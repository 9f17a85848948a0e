// Package chain defines the external ledger capability consumed by the reconciler and the wallet session.
package chain

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	// ErrUnrecognizedChain is returned by SwitchChain when the wallet does not know the network.
	ErrUnrecognizedChain = errors.New("unrecognized chain")
	// ErrNotFound is returned when the ledger has no record for the requested item.
	ErrNotFound = errors.New("not found")
	// ErrNoAccount is returned when the client has no account to send from.
	ErrNoAccount = errors.New("no account available")
)

// Block is a block header with its transaction references.
type Block struct {
	Number          uint64
	Hash            string
	Timestamp       time.Time
	TransactionRefs []string
}

// Transaction is a ledger transaction. To is empty for contract creation.
type Transaction struct {
	Hash  string
	From  string
	To    string
	Value *uint256.Int
}

// Receipt reports that a transaction was included in a block.
type Receipt struct {
	TxHash      string
	BlockNumber uint64
	Status      uint64
}

// NetworkParams describes a network for add-network requests.
type NetworkParams struct {
	ChainID        uint64
	ChainName      string
	CurrencyName   string
	CurrencySymbol string
	Decimals       int
	RPCURLs        []string
	ExplorerURLs   []string
}

// PendingTx is a transaction accepted by the ledger but not necessarily mined.
type PendingTx interface {
	Hash() string
	// Receipt returns nil, nil while the transaction is not yet mined.
	Receipt(ctx context.Context) (*Receipt, error)
}

// Client is the capability the service needs from an external ledger.
// Every call is fallible.
type Client interface {
	BlockNumber(ctx context.Context) (uint64, error)
	BlockByNumber(ctx context.Context, number uint64) (*Block, error)
	TransactionByRef(ctx context.Context, ref string) (*Transaction, error)
	BalanceAt(ctx context.Context, addr common.Address) (*uint256.Int, error)
	SendTransaction(ctx context.Context, to common.Address, value *uint256.Int) (PendingTx, error)
	ChainID(ctx context.Context) (uint64, error)
	Account(ctx context.Context) (common.Address, error)
	SwitchChain(ctx context.Context, chainID uint64) error
	AddChain(ctx context.Context, params NetworkParams) error
}

// WaitMined polls tx until a receipt is observed or ctx is done.
func WaitMined(ctx context.Context, tx PendingTx, interval time.Duration) (*Receipt, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		receipt, err := tx.Receipt(ctx)
		if err != nil {
			return nil, err
		}
		if receipt != nil {
			return receipt, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
