package chainview

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/manifest-network/chainview/internal/config"
	"github.com/manifest-network/chainview/internal/hashoracle"
)

func newValidateCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Produce blocks with the local proof-of-stake simulator",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			count, err := cmd.Flags().GetInt("blocks")
			if err != nil {
				return err
			}
			return validateBlocks(cmd.OutOrStdout(), cfg.Pos, count)
		},
	}

	flags := cmd.Flags()
	flags.String("selection", config.SelectionStake, "Validator selection policy (stake|uniform)")
	flags.String("validators-file", "", "YAML file describing the validator set")
	flags.Duration("delay", time.Second, "Consensus delay before each block is appended")
	flags.Int("blocks", 1, "Number of blocks to produce")

	bindFlag(v, flags, config.KeySelection, "selection")
	bindFlag(v, flags, config.KeyValidatorsFile, "validators-file")
	bindFlag(v, flags, config.KeyConsensusDelay, "delay")

	return cmd
}

func validateBlocks(out io.Writer, cfg config.PosConfig, count int) error {
	if count <= 0 {
		return fmt.Errorf("block count must be positive, got %d", count)
	}

	sim, err := newPosSimulator(cfg, hashoracle.New(), nil)
	if err != nil {
		return err
	}
	sim.Seed(time.Now())
	slog.Info("Producing blocks", "count", count, "selection", cfg.Selection)

	for i := 0; i < count; i++ {
		block, err := sim.CreateBlock()
		if err != nil {
			return fmt.Errorf("failed to produce block: %w", err)
		}
		fmt.Fprintf(out, "block %d validated by %s (stake %d, reward %d, energy %.2f, txs %d)\n",
			block.ID, block.ValidatorName, block.StakeAtSelection, block.RewardAmount, block.EnergyUsed, block.Transactions)
	}

	fmt.Fprintln(out, "validators:")
	for _, val := range sim.Registry().Validators() {
		fmt.Fprintf(out, "  %-12s stake %-6d blocks %d\n", val.Name, val.Stake, val.BlocksValidated)
	}
	return nil
}
