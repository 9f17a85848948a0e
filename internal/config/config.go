package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// SepoliaChainID is the network transfers are required to use unless configured otherwise.
const SepoliaChainID = 11155111

// Selection policies understood by the proof-of-stake simulator.
const (
	SelectionStake   = "stake"
	SelectionUniform = "uniform"
)

// Viper keys.
const (
	KeyLogLevel = "logLevel"

	KeyRPCURL         = "chain.rpc_url"
	KeyChainID        = "chain.chain_id"
	KeyChainName      = "chain.chain_name"
	KeyCurrencyName   = "chain.currency_name"
	KeyCurrencySymbol = "chain.currency_symbol"
	KeyExplorerURL    = "chain.explorer_url"
	KeyPrivateKey     = "chain.private_key"
	KeyAutoConnect    = "chain.auto_connect"
	KeyPollInterval   = "chain.poll_interval"
	KeyRecentBlocks   = "chain.recent_blocks"
	KeyTxsPerBlock    = "chain.txs_per_block"
	KeyMaxConcurrency = "chain.max_concurrency"
	KeyMaxRetries     = "chain.max_retries"
	KeyRequestTimeout = "chain.request_timeout"

	KeyMaxBlocks = "store.max_blocks"

	KeyDifficulty    = "pow.difficulty"
	KeyMaxAttempts   = "pow.max_attempts"
	KeyProgressEvery = "pow.progress_every"
	KeyMiningDelay   = "pow.mining_delay"

	KeySelection      = "pos.selection"
	KeyConsensusDelay = "pos.consensus_delay"
	KeyValidatorsFile = "pos.validators_file"

	KeyHTTPAddr = "server.http_addr"
	KeyGRPCAddr = "server.grpc_addr"
)

// ChainConfig describes the external ledger and how it is polled.
type ChainConfig struct {
	RPCURL         string
	ChainID        uint64
	ChainName      string
	CurrencyName   string
	CurrencySymbol string
	ExplorerURL    string
	PrivateKey     string
	AutoConnect    bool
	PollInterval   time.Duration
	RecentBlocks   uint
	TxsPerBlock    uint
	MaxConcurrency uint
	MaxRetries     uint
	RequestTimeout time.Duration
}

// StoreConfig bounds the local chain view.
type StoreConfig struct {
	MaxBlocks int
}

// PowConfig configures the proof-of-work simulator.
type PowConfig struct {
	Difficulty    int
	MaxAttempts   int
	ProgressEvery int
	MiningDelay   time.Duration
}

// PosConfig configures the proof-of-stake simulator.
type PosConfig struct {
	Selection      string
	ConsensusDelay time.Duration
	ValidatorsFile string
}

// ServerConfig holds listen addresses.
type ServerConfig struct {
	HTTPAddr string
	GRPCAddr string
}

// Config is the complete service configuration.
type Config struct {
	Chain  ChainConfig
	Store  StoreConfig
	Pow    PowConfig
	Pos    PosConfig
	Server ServerConfig
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyLogLevel, "info")

	v.SetDefault(KeyRPCURL, "")
	v.SetDefault(KeyChainID, SepoliaChainID)
	v.SetDefault(KeyChainName, "Sepolia Testnet")
	v.SetDefault(KeyCurrencyName, "Sepolia Ether")
	v.SetDefault(KeyCurrencySymbol, "ETH")
	v.SetDefault(KeyExplorerURL, "https://sepolia.etherscan.io")
	v.SetDefault(KeyAutoConnect, false)
	v.SetDefault(KeyPollInterval, 15*time.Second)
	v.SetDefault(KeyRecentBlocks, 5)
	v.SetDefault(KeyTxsPerBlock, 3)
	v.SetDefault(KeyMaxConcurrency, 5)
	v.SetDefault(KeyMaxRetries, 3)
	v.SetDefault(KeyRequestTimeout, 10*time.Second)

	v.SetDefault(KeyMaxBlocks, 10)

	v.SetDefault(KeyDifficulty, 2)
	v.SetDefault(KeyMaxAttempts, 300)
	v.SetDefault(KeyProgressEvery, 5)
	v.SetDefault(KeyMiningDelay, 2*time.Second)

	v.SetDefault(KeySelection, SelectionStake)
	v.SetDefault(KeyConsensusDelay, time.Second)
	v.SetDefault(KeyValidatorsFile, "")

	v.SetDefault(KeyHTTPAddr, ":8080")
	v.SetDefault(KeyGRPCAddr, ":9090")
}

// Load reads a Config from v. Defaults must already be registered.
func Load(v *viper.Viper) (Config, error) {
	cfg := Config{
		Chain: ChainConfig{
			RPCURL:         v.GetString(KeyRPCURL),
			ChainID:        v.GetUint64(KeyChainID),
			ChainName:      v.GetString(KeyChainName),
			CurrencyName:   v.GetString(KeyCurrencyName),
			CurrencySymbol: v.GetString(KeyCurrencySymbol),
			ExplorerURL:    v.GetString(KeyExplorerURL),
			PrivateKey:     v.GetString(KeyPrivateKey),
			AutoConnect:    v.GetBool(KeyAutoConnect),
			PollInterval:   v.GetDuration(KeyPollInterval),
			RecentBlocks:   v.GetUint(KeyRecentBlocks),
			TxsPerBlock:    v.GetUint(KeyTxsPerBlock),
			MaxConcurrency: v.GetUint(KeyMaxConcurrency),
			MaxRetries:     v.GetUint(KeyMaxRetries),
			RequestTimeout: v.GetDuration(KeyRequestTimeout),
		},
		Store: StoreConfig{
			MaxBlocks: v.GetInt(KeyMaxBlocks),
		},
		Pow: PowConfig{
			Difficulty:    v.GetInt(KeyDifficulty),
			MaxAttempts:   v.GetInt(KeyMaxAttempts),
			ProgressEvery: v.GetInt(KeyProgressEvery),
			MiningDelay:   v.GetDuration(KeyMiningDelay),
		},
		Pos: PosConfig{
			Selection:      strings.ToLower(v.GetString(KeySelection)),
			ConsensusDelay: v.GetDuration(KeyConsensusDelay),
			ValidatorsFile: v.GetString(KeyValidatorsFile),
		},
		Server: ServerConfig{
			HTTPAddr: v.GetString(KeyHTTPAddr),
			GRPCAddr: v.GetString(KeyGRPCAddr),
		},
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, errors.WithMessage(err, "invalid configuration")
	}
	return cfg, nil
}

// Default returns the configuration produced by SetDefaults alone.
func Default() Config {
	v := viper.New()
	SetDefaults(v)
	cfg, err := Load(v)
	if err != nil {
		panic(err)
	}
	return cfg
}

func (c Config) Validate() error {
	if err := c.Chain.Validate(); err != nil {
		return err
	}
	if c.Store.MaxBlocks <= 0 {
		return fmt.Errorf("store max blocks must be positive, got %d", c.Store.MaxBlocks)
	}
	if err := c.Pow.Validate(); err != nil {
		return err
	}
	return c.Pos.Validate()
}

func (c ChainConfig) Validate() error {
	if c.ChainID == 0 {
		return errors.New("chain id must be set")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", c.PollInterval)
	}
	if c.RecentBlocks == 0 {
		return errors.New("recent blocks must be at least 1")
	}
	if c.MaxConcurrency == 0 {
		return errors.New("max concurrency must be at least 1")
	}
	if c.MaxRetries == 0 {
		return errors.New("max retries must be at least 1")
	}
	if c.AutoConnect && c.RPCURL == "" {
		return errors.New("auto connect requires an RPC URL")
	}
	return nil
}

func (c PowConfig) Validate() error {
	if c.Difficulty < 0 || c.Difficulty > 64 {
		return fmt.Errorf("difficulty must be within [0, 64], got %d", c.Difficulty)
	}
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("max attempts must be positive, got %d", c.MaxAttempts)
	}
	if c.ProgressEvery <= 0 {
		return fmt.Errorf("progress interval must be positive, got %d", c.ProgressEvery)
	}
	if c.MiningDelay < 0 {
		return fmt.Errorf("mining delay must not be negative, got %s", c.MiningDelay)
	}
	return nil
}

func (c PosConfig) Validate() error {
	switch c.Selection {
	case SelectionStake, SelectionUniform:
	default:
		return fmt.Errorf("unknown validator selection policy %q", c.Selection)
	}
	if c.ConsensusDelay < 0 {
		return fmt.Errorf("consensus delay must not be negative, got %s", c.ConsensusDelay)
	}
	return nil
}
