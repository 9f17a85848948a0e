// Package chaintest provides an in-memory chain.Client for tests.
package chaintest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"github.com/manifest-network/chainview/internal/chain"
)

// Client is a scriptable in-memory ledger. The zero value is not usable; use New.
type Client struct {
	mu sync.Mutex

	Height   uint64
	Blocks   map[uint64]*chain.Block
	Txs      map[string]*chain.Transaction
	Balances map[common.Address]*uint256.Int
	Receipts map[string]*chain.Receipt

	ID      uint64
	Address common.Address
	Known   map[uint64]bool

	// Errors injected per call. BlockErrs and TxErrs are keyed by number and hash.
	HeightErr  error
	BlockErrs  map[uint64]error
	TxErrs     map[string]error
	BalanceErr error
	SendErr    error
	ReceiptErr error
	SwitchErr  error
	AddErr     error

	Sent     []SentTx
	Switched []uint64
	Added    []chain.NetworkParams
	Closed   bool
	calls    map[string]int
}

// SentTx records a SendTransaction call.
type SentTx struct {
	Hash  string
	To    common.Address
	Value *uint256.Int
}

// New returns an empty ledger on the given chain.
func New(chainID uint64) *Client {
	return &Client{
		Blocks:    make(map[uint64]*chain.Block),
		Txs:       make(map[string]*chain.Transaction),
		Balances:  make(map[common.Address]*uint256.Int),
		Receipts:  make(map[string]*chain.Receipt),
		ID:        chainID,
		Address:   common.HexToAddress("0x00000000000000000000000000000000000000aa"),
		Known:     map[uint64]bool{chainID: true},
		BlockErrs: make(map[uint64]error),
		TxErrs:    make(map[string]error),
		calls:     make(map[string]int),
	}
}

// TxHash returns a deterministic transaction hash for test fixtures.
func TxHash(label string) string {
	return crypto.Keccak256Hash([]byte(label)).Hex()
}

// AddBlock appends a block with numbered transactions and advances the height.
func (c *Client) AddBlock(number uint64, txCount int) *chain.Block {
	c.mu.Lock()
	defer c.mu.Unlock()

	b := &chain.Block{
		Number:    number,
		Hash:      TxHash(fmt.Sprintf("block-%d", number)),
		Timestamp: time.Unix(1700000000+int64(number)*12, 0),
	}
	for i := 0; i < txCount; i++ {
		h := TxHash(fmt.Sprintf("tx-%d-%d", number, i))
		b.TransactionRefs = append(b.TransactionRefs, h)
		c.Txs[h] = &chain.Transaction{
			Hash:  h,
			From:  common.BigToAddress(uint256.NewInt(number).ToBig()).Hex(),
			To:    common.BigToAddress(uint256.NewInt(uint64(i + 1)).ToBig()).Hex(),
			Value: uint256.NewInt(uint64(i+1) * 1e17),
		}
	}
	c.Blocks[number] = b
	if number > c.Height {
		c.Height = number
	}
	return b
}

// Mine records a receipt for a previously sent transaction.
func (c *Client) Mine(hash string, blockNumber uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Receipts[hash] = &chain.Receipt{TxHash: hash, BlockNumber: blockNumber, Status: 1}
}

// SetBalance sets the balance of addr.
func (c *Client) SetBalance(addr common.Address, wei *uint256.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Balances[addr] = wei
}

// Calls returns how many times method was invoked.
func (c *Client) Calls(method string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[method]
}

func (c *Client) record(method string) {
	c.calls[method]++
}

func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("BlockNumber")
	if c.HeightErr != nil {
		return 0, c.HeightErr
	}
	return c.Height, nil
}

func (c *Client) BlockByNumber(ctx context.Context, number uint64) (*chain.Block, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("BlockByNumber")
	if err := c.BlockErrs[number]; err != nil {
		return nil, err
	}
	b, ok := c.Blocks[number]
	if !ok {
		return nil, fmt.Errorf("block %d: %w", number, chain.ErrNotFound)
	}
	cp := *b
	cp.TransactionRefs = append([]string(nil), b.TransactionRefs...)
	return &cp, nil
}

func (c *Client) TransactionByRef(ctx context.Context, ref string) (*chain.Transaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("TransactionByRef")
	if err := c.TxErrs[ref]; err != nil {
		return nil, err
	}
	tx, ok := c.Txs[ref]
	if !ok {
		return nil, fmt.Errorf("transaction %s: %w", ref, chain.ErrNotFound)
	}
	cp := *tx
	return &cp, nil
}

func (c *Client) BalanceAt(ctx context.Context, addr common.Address) (*uint256.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("BalanceAt")
	if c.BalanceErr != nil {
		return nil, c.BalanceErr
	}
	if bal, ok := c.Balances[addr]; ok {
		return new(uint256.Int).Set(bal), nil
	}
	return new(uint256.Int), nil
}

func (c *Client) SendTransaction(ctx context.Context, to common.Address, value *uint256.Int) (chain.PendingTx, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("SendTransaction")
	if c.SendErr != nil {
		return nil, c.SendErr
	}
	hash := TxHash(fmt.Sprintf("sent-%d", len(c.Sent)))
	c.Sent = append(c.Sent, SentTx{Hash: hash, To: to, Value: new(uint256.Int).Set(value)})
	return &pendingTx{client: c, hash: hash}, nil
}

func (c *Client) ChainID(ctx context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("ChainID")
	return c.ID, nil
}

func (c *Client) Account(ctx context.Context) (common.Address, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("Account")
	return c.Address, nil
}

func (c *Client) SwitchChain(ctx context.Context, chainID uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("SwitchChain")
	if c.SwitchErr != nil {
		return c.SwitchErr
	}
	if !c.Known[chainID] {
		return fmt.Errorf("switch to chain %d: %w", chainID, chain.ErrUnrecognizedChain)
	}
	c.ID = chainID
	c.Switched = append(c.Switched, chainID)
	return nil
}

func (c *Client) AddChain(ctx context.Context, params chain.NetworkParams) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record("AddChain")
	if c.AddErr != nil {
		return c.AddErr
	}
	c.Known[params.ChainID] = true
	c.Added = append(c.Added, params)
	return nil
}

// Close marks the client closed.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Closed = true
}

type pendingTx struct {
	client *Client
	hash   string
}

func (p *pendingTx) Hash() string {
	return p.hash
}

func (p *pendingTx) Receipt(ctx context.Context) (*chain.Receipt, error) {
	p.client.mu.Lock()
	defer p.client.mu.Unlock()
	p.client.record("Receipt")
	if p.client.ReceiptErr != nil {
		return nil, p.client.ReceiptErr
	}
	r, ok := p.client.Receipts[p.hash]
	if !ok {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}
