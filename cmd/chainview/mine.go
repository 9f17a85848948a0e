package chainview

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/manifest-network/chainview/internal/config"
	"github.com/manifest-network/chainview/internal/hashoracle"
	"github.com/manifest-network/chainview/internal/models"
	"github.com/manifest-network/chainview/internal/pow"
)

func newMineCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mine",
		Short: "Mine blocks with the local proof-of-work simulator",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			count, err := cmd.Flags().GetInt("blocks")
			if err != nil {
				return err
			}
			showProgress, err := cmd.Flags().GetBool("progress")
			if err != nil {
				return err
			}
			return mineBlocks(cmd.OutOrStdout(), cmd.ErrOrStderr(), cfg.Pow, count, showProgress)
		},
	}

	flags := cmd.Flags()
	flags.Int("difficulty", 2, "Number of leading zeros required in the block hash")
	flags.Int("max-attempts", 300, "Attempts before a block is accepted unsolved")
	flags.Duration("delay", 2*time.Second, "Delay before each search starts")
	flags.Int("blocks", 1, "Number of blocks to mine")
	flags.Bool("progress", true, "Display a progress bar")

	bindFlag(v, flags, config.KeyDifficulty, "difficulty")
	bindFlag(v, flags, config.KeyMaxAttempts, "max-attempts")
	bindFlag(v, flags, config.KeyMiningDelay, "delay")

	return cmd
}

func mineBlocks(out, progressOut io.Writer, cfg config.PowConfig, count int, showProgress bool) error {
	if count <= 0 {
		return fmt.Errorf("block count must be positive, got %d", count)
	}

	sim := pow.New(cfg, hashoracle.New(), newRand(), nil)
	sim.Seed(time.Now())
	slog.Info("Mining blocks", "count", count, "difficulty", cfg.Difficulty, "max_attempts", cfg.MaxAttempts)

	for i := 0; i < count; i++ {
		var bar *progressbar.ProgressBar
		var progress pow.ProgressFunc
		if showProgress {
			bar = progressbar.NewOptions(
				cfg.MaxAttempts,
				progressbar.OptionSetWriter(progressOut),
				progressbar.OptionClearOnFinish(),
				progressbar.OptionSetDescription(fmt.Sprintf("Mining block %d...", sim.Height()+1)),
				progressbar.OptionShowCount(),
				progressbar.OptionShowIts(),
				progressbar.OptionSetTheme(progressbar.Theme{
					Saucer:        "=",
					SaucerHead:    ">",
					SaucerPadding: " ",
					BarStart:      "[",
					BarEnd:        "]",
				}),
			)
			if err := bar.RenderBlank(); err != nil {
				return fmt.Errorf("failed to render progress bar: %w", err)
			}
			progress = func(attempts int) {
				if err := bar.Set(attempts); err != nil {
					slog.Warn("Failed to update progress bar", "error", err)
				}
			}
		}

		block, err := sim.MineWithProgress(cfg.Difficulty, progress)
		if err != nil {
			return fmt.Errorf("failed to mine block: %w", err)
		}

		if bar != nil {
			if err := bar.Finish(); err != nil {
				return fmt.Errorf("failed to finish progress bar: %w", err)
			}
		}
		printPowBlock(out, block)
	}
	return nil
}

func printPowBlock(out io.Writer, b *models.PowBlock) {
	state := "solved"
	if !b.Solved {
		state = "unsolved"
	}
	fmt.Fprintf(out, "block %d %s\n", b.ID, state)
	fmt.Fprintf(out, "  hash:     %s\n", b.Hash)
	fmt.Fprintf(out, "  previous: %s\n", b.PreviousHash)
	fmt.Fprintf(out, "  nonce:    %d\n", b.Nonce)
	fmt.Fprintf(out, "  miner:    %s\n", b.Miner)
	fmt.Fprintf(out, "  attempts: %d  energy: %d  time: %.1fs  txs: %d\n",
		b.Attempts, b.EnergyUsed, b.TimeToMineSeconds, b.Transactions)
}
