package chain

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
)

// codeUnrecognizedChain is the wallet error code for an unknown network on switch requests.
const codeUnrecognizedChain = 4902

const transferGas = 21000

// RPCConfig configures an RPCClient.
type RPCConfig struct {
	URL string
	// PrivateKey is a hex-encoded secp256k1 key used to sign transfers locally.
	// When empty, transfers are sent with eth_sendTransaction from the node's first account.
	PrivateKey string
	Timeout    time.Duration
}

// RPCClient implements Client over Ethereum JSON-RPC.
type RPCClient struct {
	rpc *rpc.Client
	eth *ethclient.Client
	key *ecdsa.PrivateKey
}

var _ Client = (*RPCClient)(nil)

// NewRPCClient returns a client for the endpoint in cfg.
func NewRPCClient(cfg RPCConfig) (*RPCClient, error) {
	if cfg.URL == "" {
		return nil, errors.New("RPC URL is empty")
	}

	var key *ecdsa.PrivateKey
	if cfg.PrivateKey != "" {
		k, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
		if err != nil {
			return nil, errors.Wrap(err, "invalid private key")
		}
		key = k
	}

	rc, err := rpc.DialOptions(context.Background(), cfg.URL, rpc.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to dial %s", cfg.URL)
	}
	return &RPCClient{rpc: rc, eth: ethclient.NewClient(rc), key: key}, nil
}

// Close releases the underlying connection.
func (c *RPCClient) Close() {
	c.rpc.Close()
}

func (c *RPCClient) BlockNumber(ctx context.Context) (uint64, error) {
	return c.eth.BlockNumber(ctx)
}

// rpcBlockBody holds the parts of a block response not covered by types.Header.
type rpcBlockBody struct {
	Hash         common.Hash   `json:"hash"`
	Transactions []common.Hash `json:"transactions"`
}

// BlockByNumber fetches the header and transaction hashes only. ethclient.BlockByNumber
// always requests full transaction bodies.
func (c *RPCClient) BlockByNumber(ctx context.Context, number uint64) (*Block, error) {
	var raw json.RawMessage
	if err := c.rpc.CallContext(ctx, &raw, "eth_getBlockByNumber", hexutil.EncodeUint64(number), false); err != nil {
		return nil, err
	}

	var head *types.Header
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, errors.Wrapf(err, "failed to decode block %d", number)
	}
	if head == nil {
		return nil, fmt.Errorf("block %d: %w", number, ErrNotFound)
	}
	var body rpcBlockBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, errors.Wrapf(err, "failed to decode block %d", number)
	}

	hash := body.Hash
	if hash == (common.Hash{}) {
		hash = head.Hash()
	}
	refs := make([]string, len(body.Transactions))
	for i, h := range body.Transactions {
		refs[i] = h.Hex()
	}
	return &Block{
		Number:          head.Number.Uint64(),
		Hash:            hash.Hex(),
		Timestamp:       time.Unix(int64(head.Time), 0),
		TransactionRefs: refs,
	}, nil
}

func (c *RPCClient) TransactionByRef(ctx context.Context, ref string) (*Transaction, error) {
	tx, _, err := c.eth.TransactionByHash(ctx, common.HexToHash(ref))
	if errors.Is(err, ethereum.NotFound) {
		return nil, fmt.Errorf("transaction %s: %w", ref, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	from, err := types.Sender(types.LatestSignerForChainID(tx.ChainId()), tx)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to recover sender of %s", ref)
	}
	value, overflow := uint256.FromBig(tx.Value())
	if overflow {
		return nil, fmt.Errorf("transaction %s value overflows 256 bits", ref)
	}

	out := &Transaction{Hash: tx.Hash().Hex(), From: from.Hex(), Value: value}
	if to := tx.To(); to != nil {
		out.To = to.Hex()
	}
	return out, nil
}

func (c *RPCClient) BalanceAt(ctx context.Context, addr common.Address) (*uint256.Int, error) {
	bal, err := c.eth.BalanceAt(ctx, addr, nil)
	if err != nil {
		return nil, err
	}
	v, overflow := uint256.FromBig(bal)
	if overflow {
		return nil, fmt.Errorf("balance of %s overflows 256 bits", addr.Hex())
	}
	return v, nil
}

func (c *RPCClient) ChainID(ctx context.Context) (uint64, error) {
	id, err := c.eth.ChainID(ctx)
	if err != nil {
		return 0, err
	}
	return id.Uint64(), nil
}

func (c *RPCClient) Account(ctx context.Context) (common.Address, error) {
	if c.key != nil {
		return crypto.PubkeyToAddress(c.key.PublicKey), nil
	}

	var accounts []common.Address
	if err := c.rpc.CallContext(ctx, &accounts, "eth_accounts"); err != nil {
		return common.Address{}, err
	}
	if len(accounts) == 0 {
		return common.Address{}, ErrNoAccount
	}
	return accounts[0], nil
}

func (c *RPCClient) SendTransaction(ctx context.Context, to common.Address, value *uint256.Int) (PendingTx, error) {
	if c.key == nil {
		return c.sendFromNodeAccount(ctx, to, value)
	}

	from := crypto.PubkeyToAddress(c.key.PublicKey)
	nonce, err := c.eth.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, errors.WithMessage(err, "failed to get nonce")
	}
	gasPrice, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return nil, errors.WithMessage(err, "failed to get gas price")
	}
	chainID, err := c.eth.ChainID(ctx)
	if err != nil {
		return nil, errors.WithMessage(err, "failed to get chain id")
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      transferGas,
		To:       &to,
		Value:    value.ToBig(),
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), c.key)
	if err != nil {
		return nil, errors.Wrap(err, "failed to sign transaction")
	}
	if err := c.eth.SendTransaction(ctx, signed); err != nil {
		return nil, err
	}
	return &rpcPendingTx{client: c, hash: signed.Hash()}, nil
}

type sendTxArgs struct {
	From  common.Address `json:"from"`
	To    common.Address `json:"to"`
	Value *hexutil.Big   `json:"value"`
}

func (c *RPCClient) sendFromNodeAccount(ctx context.Context, to common.Address, value *uint256.Int) (PendingTx, error) {
	from, err := c.Account(ctx)
	if err != nil {
		return nil, err
	}

	var hash common.Hash
	args := sendTxArgs{From: from, To: to, Value: (*hexutil.Big)(value.ToBig())}
	if err := c.rpc.CallContext(ctx, &hash, "eth_sendTransaction", args); err != nil {
		return nil, err
	}
	if hash == (common.Hash{}) {
		return nil, errors.New("eth_sendTransaction returned no hash")
	}
	return &rpcPendingTx{client: c, hash: hash}, nil
}

type rpcPendingTx struct {
	client *RPCClient
	hash   common.Hash
}

func (p *rpcPendingTx) Hash() string {
	return p.hash.Hex()
}

func (p *rpcPendingTx) Receipt(ctx context.Context) (*Receipt, error) {
	r, err := p.client.eth.TransactionReceipt(ctx, p.hash)
	if errors.Is(err, ethereum.NotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	out := &Receipt{TxHash: r.TxHash.Hex(), Status: r.Status}
	if r.BlockNumber != nil {
		out.BlockNumber = r.BlockNumber.Uint64()
	}
	return out, nil
}

type switchChainParams struct {
	ChainID string `json:"chainId"`
}

func (c *RPCClient) SwitchChain(ctx context.Context, chainID uint64) error {
	err := c.rpc.CallContext(ctx, nil, "wallet_switchEthereumChain", switchChainParams{ChainID: hexutil.EncodeUint64(chainID)})
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) && rpcErr.ErrorCode() == codeUnrecognizedChain {
		return fmt.Errorf("switch to chain %d: %w", chainID, ErrUnrecognizedChain)
	}
	return err
}

type nativeCurrency struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals int    `json:"decimals"`
}

type addChainParams struct {
	ChainID           string         `json:"chainId"`
	ChainName         string         `json:"chainName"`
	NativeCurrency    nativeCurrency `json:"nativeCurrency"`
	RPCURLs           []string       `json:"rpcUrls"`
	BlockExplorerURLs []string       `json:"blockExplorerUrls,omitempty"`
}

func (c *RPCClient) AddChain(ctx context.Context, params NetworkParams) error {
	return c.rpc.CallContext(ctx, nil, "wallet_addEthereumChain", addChainParams{
		ChainID:   hexutil.EncodeUint64(params.ChainID),
		ChainName: params.ChainName,
		NativeCurrency: nativeCurrency{
			Name:     params.CurrencyName,
			Symbol:   params.CurrencySymbol,
			Decimals: params.Decimals,
		},
		RPCURLs:           params.RPCURLs,
		BlockExplorerURLs: params.ExplorerURLs,
	})
}
