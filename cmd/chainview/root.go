package chainview

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/manifest-network/chainview/internal/config"
)

const envPrefix = "CHAINVIEW"

// NewRootCmd builds the command tree around a fresh viper instance.
func NewRootCmd() *cobra.Command {
	v := viper.New()
	config.SetDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfgFile string

	rootCmd := &cobra.Command{
		Use:   "chainview",
		Short: "Blockchain explorer and consensus simulator",
		Long: "chainview keeps a bounded view of a live EVM chain, submits transfers through a wallet session " +
			"and runs local proof-of-work and proof-of-stake simulations.",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := readConfigFile(v, cfgFile); err != nil {
				return err
			}
			return setLogLevel(v.GetString(config.KeyLogLevel))
		},
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default is $HOME/.chainview.yaml)")
	rootCmd.PersistentFlags().StringP("logLevel", "l", "info", "Log level (debug|info|warn|error)")
	bindFlag(v, rootCmd.PersistentFlags(), config.KeyLogLevel, "logLevel")

	rootCmd.AddCommand(
		newServeCmd(v),
		newMineCmd(v),
		newValidateCmd(v),
		newTransferCmd(v),
	)
	return rootCmd
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		slog.Error("Command execution failed", "error", err)
		os.Exit(1)
	}
}

func readConfigFile(v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		path, err := homedir.Expand(cfgFile)
		if err != nil {
			return errors.Wrapf(err, "failed to expand config path %s", cfgFile)
		}
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return errors.Wrapf(err, "failed to read config file %s", path)
		}
		slog.Debug("Loaded config file", "path", path)
		return nil
	}

	home, err := homedir.Dir()
	if err != nil {
		slog.Debug("Home directory unavailable, skipping config file", "error", err)
		return nil
	}
	v.AddConfigPath(home)
	v.AddConfigPath(".")
	v.SetConfigName(".chainview")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return errors.Wrap(err, "failed to read config file")
	}
	slog.Debug("Loaded config file", "path", v.ConfigFileUsed())
	return nil
}

func setLogLevel(level string) error {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
	return nil
}

func bindFlag(v *viper.Viper, flags *pflag.FlagSet, key, name string) {
	if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
		panic(fmt.Sprintf("failed to bind flag %s: %v", name, err))
	}
}
