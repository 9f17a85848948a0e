package chainview

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/manifest-network/chainview/internal/models"
)

type apiError struct {
	Message string `json:"message"`
}

func newTransferCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transfer <recipient> <amount>",
		Short: "Submit a transfer through a running chainview server",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			server, err := cmd.Flags().GetString("server")
			if err != nil {
				return err
			}
			return submitTransfer(cmd.Context(), cmd.OutOrStdout(), server, args[0], args[1])
		},
	}

	cmd.Flags().String("server", "http://localhost:8080", "Base URL of the chainview HTTP API")
	return cmd
}

func submitTransfer(ctx context.Context, out io.Writer, server, recipient, amount string) error {
	var (
		tx     models.Transaction
		apiErr apiError
	)

	resp, err := resty.New().
		SetTimeout(30*time.Second).
		R().
		SetContext(ctx).
		SetBody(map[string]string{"recipient": recipient, "amount": amount}).
		SetResult(&tx).
		SetError(&apiErr).
		Post(strings.TrimSuffix(server, "/") + "/api/transfers")
	if err != nil {
		return errors.Wrap(err, "transfer request failed")
	}
	if resp.IsError() {
		if apiErr.Message != "" {
			return fmt.Errorf("transfer rejected (HTTP %d): %s", resp.StatusCode(), apiErr.Message)
		}
		return fmt.Errorf("transfer rejected with HTTP status %d", resp.StatusCode())
	}

	fmt.Fprintf(out, "submitted %s ETH to %s\n", tx.Amount, tx.To)
	fmt.Fprintf(out, "  id:     %s\n", tx.ID)
	fmt.Fprintf(out, "  hash:   %s\n", tx.Hash)
	fmt.Fprintf(out, "  status: %s\n", tx.Status)
	return nil
}
