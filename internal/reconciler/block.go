package reconciler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/manifest-network/chainview/internal/chain"
	"github.com/manifest-network/chainview/internal/metrics"
	"github.com/manifest-network/chainview/internal/models"
	"github.com/manifest-network/chainview/internal/units"
	"github.com/manifest-network/chainview/internal/utils"
)

type fetchResult struct {
	blocks       []models.Block
	transactions []models.Transaction
	failures     int
}

type fetchedBlock struct {
	block models.Block
	txs   []models.Transaction
	ok    bool
}

// fetchWindow fetches the blocks at heights in parallel, with up to TxsPerBlock
// transactions each. Items that fail are logged and skipped.
func (r *Reconciler) fetchWindow(ctx context.Context, client chain.Client, heights []uint64) fetchResult {
	concurrency := r.cfg.MaxConcurrency
	if concurrency == 0 {
		concurrency = 1
	}

	eg, ctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, concurrency)
	fetched := make([]fetchedBlock, len(heights))
	var failures atomic.Int64

	for i, height := range heights {
		if ctx.Err() != nil {
			slog.Info("Block fetch cancelled")
			break
		}

		sem <- struct{}{}
		eg.Go(func() error {
			defer func() { <-sem }()

			block, txs, failed, err := r.fetchBlock(ctx, client, height)
			failures.Add(int64(failed))
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					slog.Warn("Failed to fetch block, skipping", "height", height, "error", err)
					r.metrics.ObserveFailure(metrics.FailureBlock)
				}
				failures.Add(1)
				return nil
			}
			fetched[i] = fetchedBlock{block: block, txs: txs, ok: true}
			return nil
		})
	}
	_ = eg.Wait()

	res := fetchResult{failures: int(failures.Load())}
	for _, f := range fetched {
		if !f.ok {
			continue
		}
		res.blocks = append(res.blocks, f.block)
		res.transactions = append(res.transactions, f.txs...)
	}
	return res
}

// fetchBlock fetches one block and its first transactions. failed counts
// transactions that could not be fetched.
func (r *Reconciler) fetchBlock(ctx context.Context, client chain.Client, height uint64) (models.Block, []models.Transaction, int, error) {
	b, err := client.BlockByNumber(ctx, height)
	if err != nil {
		return models.Block{}, nil, 0, fmt.Errorf("failed to get block %d: %w", height, err)
	}

	refs := b.TransactionRefs
	if limit := int(r.cfg.TxsPerBlock); len(refs) > limit {
		refs = refs[:limit]
	}

	block := models.Block{
		ID:              b.Number,
		Hash:            b.Hash,
		Timestamp:       b.Timestamp,
		TransactionRefs: make([]string, 0, len(refs)),
	}
	txs := make([]models.Transaction, 0, len(refs))
	failed := 0
	for _, ref := range refs {
		tx, err := client.TransactionByRef(ctx, ref)
		if err != nil {
			slog.Warn("Failed to fetch transaction, skipping", "height", height, "hash", ref, "error", err)
			r.metrics.ObserveFailure(metrics.FailureTransaction)
			failed++
			continue
		}
		record := toTransaction(tx)
		block.TransactionRefs = append(block.TransactionRefs, record.ID)
		txs = append(txs, record)
	}
	return block, txs, failed, nil
}

func toTransaction(tx *chain.Transaction) models.Transaction {
	return models.Transaction{
		ID:     utils.ShortID(tx.Hash),
		Hash:   tx.Hash,
		From:   tx.From,
		To:     tx.To,
		Amount: units.FormatEther(tx.Value),
		Status: models.TxConfirmed,
	}
}
