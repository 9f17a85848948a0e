// Package wallet tracks the user's connection to a chain client and submits transfers.
package wallet

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"

	"github.com/manifest-network/chainview/internal/chain"
	"github.com/manifest-network/chainview/internal/config"
	"github.com/manifest-network/chainview/internal/metrics"
	"github.com/manifest-network/chainview/internal/models"
	"github.com/manifest-network/chainview/internal/output"
	"github.com/manifest-network/chainview/internal/units"
	"github.com/manifest-network/chainview/internal/utils"
)

var (
	ErrInvalidRecipient = errors.New("invalid recipient address")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrNotConnected     = errors.New("wallet not connected")
	ErrNetworkMismatch  = errors.New("wrong network")
	ErrSendRejected     = errors.New("transaction rejected")
)

const balancePlaces = 4

// Submission is a transfer accepted by the ledger whose receipt has not been observed yet.
type Submission struct {
	ID      string
	Pending chain.PendingTx
}

// State is a point-in-time view of the session.
type State struct {
	Connected       bool     `json:"connected"`
	Address         string   `json:"address,omitempty"`
	Balance         string   `json:"balance,omitempty"`
	ChainID         uint64   `json:"chainId,omitempty"`
	RequiredChainID uint64   `json:"requiredChainId"`
	Warning         string   `json:"warning,omitempty"`
	PendingTxs      []string `json:"pendingTransactions,omitempty"`
}

// Session is the user's connection to a chain client. It is safe for concurrent use.
type Session struct {
	cfg     config.ChainConfig
	out     output.OutputHandler
	metrics *metrics.Metrics

	mu      sync.RWMutex
	client  chain.Client
	account common.Address
	chainID uint64
	balance *uint256.Int
	// submissions are outstanding transfers in submission order.
	submissions []Submission
}

// NewSession returns a disconnected session writing submitted transfers to out.
func NewSession(cfg config.ChainConfig, out output.OutputHandler, m *metrics.Metrics) *Session {
	return &Session{cfg: cfg, out: out, metrics: m}
}

// Connect attaches client and loads the account, network and balance.
func (s *Session) Connect(ctx context.Context, client chain.Client) error {
	account, err := client.Account(ctx)
	if err != nil {
		return errors.WithMessage(err, "failed to get account")
	}
	chainID, err := client.ChainID(ctx)
	if err != nil {
		return errors.WithMessage(err, "failed to get chain id")
	}

	s.mu.Lock()
	s.client = client
	s.account = account
	s.chainID = chainID
	s.balance = nil
	s.mu.Unlock()

	if chainID != s.cfg.ChainID {
		slog.Warn("Connected to unexpected network", "chainId", chainID, "required", s.cfg.ChainID)
	}
	if err := s.RefreshBalance(ctx); err != nil {
		slog.Warn("Failed to load balance", "address", account.Hex(), "error", err)
	}
	slog.Info("Wallet connected", "address", account.Hex(), "chainId", chainID)
	return nil
}

// Disconnect detaches the client and closes it when it holds a connection.
// Outstanding submissions are dropped.
func (s *Session) Disconnect() {
	s.mu.Lock()
	client := s.client
	s.client = nil
	s.account = common.Address{}
	s.chainID = 0
	s.balance = nil
	s.submissions = nil
	s.mu.Unlock()

	if closer, ok := client.(interface{ Close() }); ok {
		closer.Close()
	}
}

// Client returns the attached client or nil.
func (s *Session) Client() chain.Client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.client
}

func (s *Session) Connected() bool {
	return s.Client() != nil
}

// NetworkParams returns the parameters of the required network.
func (s *Session) NetworkParams() chain.NetworkParams {
	params := chain.NetworkParams{
		ChainID:        s.cfg.ChainID,
		ChainName:      s.cfg.ChainName,
		CurrencyName:   s.cfg.CurrencyName,
		CurrencySymbol: s.cfg.CurrencySymbol,
		Decimals:       18,
	}
	if s.cfg.RPCURL != "" {
		params.RPCURLs = []string{s.cfg.RPCURL}
	}
	if s.cfg.ExplorerURL != "" {
		params.ExplorerURLs = []string{s.cfg.ExplorerURL}
	}
	return params
}

// SwitchNetwork asks the client to move to the required network. When the client
// does not know the network it is added first. The session is reloaded afterwards.
func (s *Session) SwitchNetwork(ctx context.Context) error {
	client := s.Client()
	if client == nil {
		return ErrNotConnected
	}

	err := client.SwitchChain(ctx, s.cfg.ChainID)
	if errors.Is(err, chain.ErrUnrecognizedChain) {
		slog.Info("Network unknown to client, adding it", "chainId", s.cfg.ChainID)
		if addErr := client.AddChain(ctx, s.NetworkParams()); addErr != nil {
			return errors.WithMessage(addErr, "failed to add network")
		}
		err = client.SwitchChain(ctx, s.cfg.ChainID)
	}
	if err != nil {
		return errors.WithMessage(err, "failed to switch network")
	}

	return s.Connect(ctx, client)
}

// SubmitTransfer validates and sends a transfer of amount ether to recipient.
// On success the transfer is recorded as pending and becomes the tracked submission.
// On failure nothing is recorded.
func (s *Session) SubmitTransfer(ctx context.Context, recipient, amount string) (models.Transaction, error) {
	tx, err := s.submit(ctx, recipient, amount)
	if err != nil {
		s.metrics.ObserveRejected("transfer", reason(err))
		return models.Transaction{}, err
	}
	return tx, nil
}

func (s *Session) submit(ctx context.Context, recipient, amount string) (models.Transaction, error) {
	recipient = strings.TrimSpace(recipient)
	if !units.IsAddress(recipient) {
		return models.Transaction{}, fmt.Errorf("%w: %q", ErrInvalidRecipient, recipient)
	}
	wei, err := units.ParseEther(amount)
	if err != nil {
		return models.Transaction{}, fmt.Errorf("%w: %s", ErrInvalidAmount, err.Error())
	}

	s.mu.RLock()
	client, account := s.client, s.account
	s.mu.RUnlock()
	if client == nil {
		return models.Transaction{}, ErrNotConnected
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		return models.Transaction{}, errors.WithMessage(err, "failed to get chain id")
	}
	s.mu.Lock()
	s.chainID = chainID
	s.mu.Unlock()
	if chainID != s.cfg.ChainID {
		return models.Transaction{}, fmt.Errorf("%w: connected to chain %d, transfers require %s (%d)",
			ErrNetworkMismatch, chainID, s.cfg.ChainName, s.cfg.ChainID)
	}

	to := common.HexToAddress(recipient)
	pending, err := client.SendTransaction(ctx, to, wei)
	if err != nil {
		return models.Transaction{}, fmt.Errorf("%w: %w", ErrSendRejected, err)
	}

	tx := models.Transaction{
		ID:     utils.ShortID(pending.Hash()),
		Hash:   pending.Hash(),
		From:   account.Hex(),
		To:     to.Hex(),
		Amount: strings.TrimSpace(amount),
		Status: models.TxPending,
	}
	s.out.UpsertTransaction(tx)

	s.mu.Lock()
	s.submissions = append(s.submissions, Submission{ID: tx.ID, Pending: pending})
	s.mu.Unlock()

	slog.Info("Transfer submitted", "hash", tx.Hash, "to", tx.To, "amount", tx.Amount)
	return tx, nil
}

func reason(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRecipient):
		return "invalid_recipient"
	case errors.Is(err, ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, ErrNotConnected):
		return "not_connected"
	case errors.Is(err, ErrNetworkMismatch):
		return "network_mismatch"
	case errors.Is(err, ErrSendRejected):
		return "send_rejected"
	default:
		return "error"
	}
}

// Submissions returns the outstanding submissions, oldest first.
func (s *Session) Submissions() []Submission {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Submission, len(s.submissions))
	copy(out, s.submissions)
	return out
}

// ClearSubmission stops tracking the submission with the given ID.
func (s *Session) ClearSubmission(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, sub := range s.submissions {
		if sub.ID == id {
			s.submissions = append(s.submissions[:i], s.submissions[i+1:]...)
			return
		}
	}
}

// RefreshBalance reloads the balance of the connected account.
func (s *Session) RefreshBalance(ctx context.Context) error {
	s.mu.RLock()
	client, account := s.client, s.account
	s.mu.RUnlock()
	if client == nil {
		return ErrNotConnected
	}

	balance, err := client.BalanceAt(ctx, account)
	if err != nil {
		s.metrics.ObserveFailure(metrics.FailureBalance)
		return errors.WithMessage(err, "failed to get balance")
	}

	s.mu.Lock()
	if s.client == client {
		s.balance = balance
	}
	s.mu.Unlock()
	return nil
}

// State returns a snapshot of the session for display.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state := State{RequiredChainID: s.cfg.ChainID}
	if s.client == nil {
		return state
	}
	state.Connected = true
	state.Address = s.account.Hex()
	state.ChainID = s.chainID
	if s.balance != nil {
		state.Balance = units.FormatEtherFixed(s.balance, balancePlaces)
	}
	if s.chainID != s.cfg.ChainID {
		state.Warning = fmt.Sprintf("Please switch to %s to send transactions", s.cfg.ChainName)
	}
	for _, sub := range s.submissions {
		state.PendingTxs = append(state.PendingTxs, sub.ID)
	}
	return state
}
