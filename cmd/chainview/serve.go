package chainview

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/manifest-network/chainview/internal/api"
	"github.com/manifest-network/chainview/internal/chain"
	"github.com/manifest-network/chainview/internal/config"
	"github.com/manifest-network/chainview/internal/demo"
	"github.com/manifest-network/chainview/internal/hashoracle"
	"github.com/manifest-network/chainview/internal/health"
	"github.com/manifest-network/chainview/internal/metrics"
	"github.com/manifest-network/chainview/internal/models"
	"github.com/manifest-network/chainview/internal/pos"
	"github.com/manifest-network/chainview/internal/pow"
	"github.com/manifest-network/chainview/internal/reconciler"
	"github.com/manifest-network/chainview/internal/store"
	"github.com/manifest-network/chainview/internal/wallet"
)

func newServeCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the chain view, simulators and API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}

	flags := cmd.Flags()
	flags.String("rpc-url", "", "Ethereum JSON-RPC endpoint")
	flags.Uint64("chain-id", config.SepoliaChainID, "Chain ID transfers must be sent on")
	flags.String("private-key", "", "Hex-encoded key used to sign transfers locally")
	flags.Bool("auto-connect", false, "Connect the wallet session at startup")
	flags.Duration("poll-interval", 15*time.Second, "Interval between reconciliation passes")
	flags.Uint("recent-blocks", 5, "Number of recent blocks fetched per pass")
	flags.Uint("max-concurrency", 5, "Maximum concurrent block fetches")
	flags.Uint("max-retries", 3, "Maximum retries for chain height queries")
	flags.Int("max-blocks", 10, "Number of blocks retained in the view")
	flags.Int("difficulty", 2, "Default proof-of-work difficulty")
	flags.String("selection", config.SelectionStake, "Validator selection policy (stake|uniform)")
	flags.String("validators-file", "", "YAML file describing the validator set")
	flags.String("http-addr", ":8080", "HTTP listen address")
	flags.String("grpc-addr", ":9090", "gRPC health listen address")

	bindFlag(v, flags, config.KeyRPCURL, "rpc-url")
	bindFlag(v, flags, config.KeyChainID, "chain-id")
	bindFlag(v, flags, config.KeyPrivateKey, "private-key")
	bindFlag(v, flags, config.KeyAutoConnect, "auto-connect")
	bindFlag(v, flags, config.KeyPollInterval, "poll-interval")
	bindFlag(v, flags, config.KeyRecentBlocks, "recent-blocks")
	bindFlag(v, flags, config.KeyMaxConcurrency, "max-concurrency")
	bindFlag(v, flags, config.KeyMaxRetries, "max-retries")
	bindFlag(v, flags, config.KeyMaxBlocks, "max-blocks")
	bindFlag(v, flags, config.KeyDifficulty, "difficulty")
	bindFlag(v, flags, config.KeySelection, "selection")
	bindFlag(v, flags, config.KeyValidatorsFile, "validators-file")
	bindFlag(v, flags, config.KeyHTTPAddr, "http-addr")
	bindFlag(v, flags, config.KeyGRPCAddr, "grpc-addr")

	return cmd
}

func serve(ctx context.Context, cfg config.Config) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	now := time.Now()
	oracle := hashoracle.New()

	st := store.New(cfg.Store.MaxBlocks)
	st.Seed(demo.NewGenerator(oracle, newRand()).Seed(now))

	session := wallet.NewSession(cfg.Chain, st, m)
	rec := reconciler.New(cfg.Chain, st, session, m)

	powSim := pow.New(cfg.Pow, oracle, newRand(), m)
	powSim.Seed(now)

	posSim, err := newPosSimulator(cfg.Pos, oracle, m)
	if err != nil {
		return err
	}
	posSim.Seed(now)

	healthSrv := health.NewServer()
	rec.SetObserver(healthSrv)

	dial := dialer(cfg.Chain)
	apiSrv := api.NewServer(api.Deps{
		Store:      st,
		Session:    session,
		Reconciler: rec,
		Pow:        powSim,
		Pos:        posSim,
		Dial:       dial,
		Gatherer:   reg,
	})

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return rec.Run(ctx)
	})
	eg.Go(func() error {
		return apiSrv.ListenAndServe(ctx, cfg.Server.HTTPAddr)
	})
	eg.Go(func() error {
		return healthSrv.ListenAndServe(ctx, cfg.Server.GRPCAddr)
	})
	if cfg.Chain.AutoConnect && dial != nil {
		eg.Go(func() error {
			autoConnect(ctx, dial, rec)
			return nil
		})
	}

	slog.Info("chainview started",
		"http", cfg.Server.HTTPAddr,
		"grpc", cfg.Server.GRPCAddr,
		"chain_id", cfg.Chain.ChainID,
		"selection", cfg.Pos.Selection)

	if err := eg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	slog.Info("chainview stopped")
	return nil
}

func newPosSimulator(cfg config.PosConfig, oracle hashoracle.Oracle, m *metrics.Metrics) (*pos.Simulator, error) {
	rng := newRand()

	var validators []models.Validator
	if cfg.ValidatorsFile != "" {
		loaded, err := pos.LoadValidators(cfg.ValidatorsFile)
		if err != nil {
			return nil, err
		}
		validators = loaded
	} else {
		validators = pos.DefaultValidators(rng)
	}

	registry, err := pos.NewRegistry(validators...)
	if err != nil {
		return nil, errors.WithMessage(err, "failed to build validator registry")
	}
	return pos.New(cfg, registry, oracle, rng, m)
}

// dialer returns nil when no RPC endpoint is configured.
func dialer(cfg config.ChainConfig) api.Dialer {
	if cfg.RPCURL == "" {
		return nil
	}
	return func(context.Context) (chain.Client, error) {
		return chain.NewRPCClient(chain.RPCConfig{
			URL:        cfg.RPCURL,
			PrivateKey: cfg.PrivateKey,
			Timeout:    cfg.RequestTimeout,
		})
	}
}

func autoConnect(ctx context.Context, dial api.Dialer, rec *reconciler.Reconciler) {
	client, err := dial(ctx)
	if err != nil {
		slog.Warn("Failed to open chain client", "error", err)
		return
	}
	if err := rec.Connect(ctx, client); err != nil {
		slog.Warn("Failed to connect wallet at startup", "error", err)
		return
	}
	slog.Info("Wallet connected at startup")
}

func newRand() *rand.Rand {
	return rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), rand.Uint64()))
}
