package reconciler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/manifest-network/chainview/internal/chain"
	"github.com/manifest-network/chainview/internal/metrics"
	"github.com/manifest-network/chainview/internal/models"
	"github.com/manifest-network/chainview/internal/store"
	"github.com/manifest-network/chainview/internal/utils"
)

// Run reconciles once immediately, then on every poll interval and every queued
// trigger until ctx is done.
func (r *Reconciler) Run(ctx context.Context) error {
	interval := r.cfg.PollInterval
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	slog.Info("Starting reconciler", "interval", interval)
	r.Reconcile(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("Reconciler stopped")
			return nil
		case <-ticker.C:
			r.Reconcile(ctx)
		case t := <-r.triggers:
			slog.Debug("Reconciling on trigger", "trigger", t)
			r.Reconcile(ctx)
		}
	}
}

// reconcileLive merges the latest blocks from client and checks outstanding submissions.
func (r *Reconciler) reconcileLive(ctx context.Context, client chain.Client) Result {
	res := Result{Mode: metrics.ModeLive}

	height, err := utils.GetLatestBlockHeightWithRetry(ctx, client, r.cfg.MaxRetries)
	if err != nil {
		slog.Warn("Failed to get latest block height", "error", err)
		r.metrics.ObserveFailure(metrics.FailureHeight)
		res.Err = err
		res.Failures++
	} else {
		res.Height = height
		r.metrics.SetHeight(height)

		if dropped := r.out.DropLocalBlocks(); dropped > 0 {
			slog.Info("Dropped local blocks", "count", dropped)
		}

		window := utils.BlockWindow(height, r.cfg.RecentBlocks)
		fetched := r.fetchWindow(ctx, client, window)
		res.Failures += fetched.failures

		res.Merged = r.out.MergeBlocks(fetched.blocks)
		r.metrics.ObserveMerged(res.Merged)
		for _, tx := range fetched.transactions {
			r.out.UpsertTransaction(tx)
		}
		res.Transactions = len(fetched.transactions)
		slog.Debug("Merged latest blocks", "height", height, "blocks", len(fetched.blocks), "retained", res.Merged, "transactions", res.Transactions)
	}

	confirmed, failures := r.trackSubmissions(ctx)
	res.Confirmed += confirmed
	res.Failures += failures
	return res
}

// trackSubmissions polls the receipt of every outstanding user submission and
// confirms the ones that were mined. The balance is refreshed once per pass
// when anything was mined.
func (r *Reconciler) trackSubmissions(ctx context.Context) (confirmed, failures int) {
	mined := 0
	for _, sub := range r.session.Submissions() {
		receipt, err := sub.Pending.Receipt(ctx)
		if err != nil {
			slog.Warn("Failed to get transaction receipt", "id", sub.ID, "error", err)
			r.metrics.ObserveFailure(metrics.FailureReceipt)
			failures++
			continue
		}
		if receipt == nil {
			continue
		}

		advanced, err := r.out.AdvanceTransaction(sub.ID, models.TxConfirmed)
		if err != nil && !errors.Is(err, store.ErrUnknownTransaction) {
			slog.Error("Failed to confirm transaction", "id", sub.ID, "error", err)
			continue
		}
		r.session.ClearSubmission(sub.ID)
		mined++
		if advanced {
			confirmed++
		}
		slog.Info("Transaction confirmed", "id", sub.ID, "block", receipt.BlockNumber)
	}

	r.metrics.ObserveConfirmed(confirmed)
	if mined > 0 {
		if err := r.session.RefreshBalance(ctx); err != nil {
			slog.Warn("Failed to refresh balance", "error", err)
		}
	}
	return confirmed, failures
}
