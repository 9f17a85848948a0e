// Package reconciler keeps the chain view in step with the attached chain client,
// or animates it with locally sealed blocks when no client is attached.
package reconciler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/manifest-network/chainview/internal/chain"
	"github.com/manifest-network/chainview/internal/config"
	"github.com/manifest-network/chainview/internal/demo"
	"github.com/manifest-network/chainview/internal/metrics"
	"github.com/manifest-network/chainview/internal/models"
	"github.com/manifest-network/chainview/internal/output"
	"github.com/manifest-network/chainview/internal/wallet"
)

const triggerQueueSize = 8

// Trigger is a reason to run a reconciliation pass outside the timer.
type Trigger int

const (
	TriggerTick Trigger = iota
	TriggerConnect
	TriggerDisconnect
)

func (t Trigger) String() string {
	switch t {
	case TriggerTick:
		return "tick"
	case TriggerConnect:
		return "connect"
	case TriggerDisconnect:
		return "disconnect"
	default:
		return "unknown"
	}
}

// Result summarizes one reconciliation pass.
type Result struct {
	Mode   string
	Height uint64
	// Merged is the number of blocks newly retained by the view.
	Merged       int
	Transactions int
	Failures     int
	// Confirmed counts transactions moved to confirmed by this pass.
	Confirmed int
	Sealed    *models.Block
	// Err is set when the chain height could not be read.
	Err error
}

// Observer is notified after every pass.
type Observer interface {
	ObservePass(Result)
}

// Reconciler runs reconciliation passes on a timer and on demand.
type Reconciler struct {
	cfg      config.ChainConfig
	out      output.OutputHandler
	session  *wallet.Session
	metrics  *metrics.Metrics
	observer Observer
	now      func() time.Time

	triggers chan Trigger
	passMu   sync.Mutex
}

// New returns a reconciler writing to out. session supplies the attached client
// and the tracked user submission.
func New(cfg config.ChainConfig, out output.OutputHandler, session *wallet.Session, m *metrics.Metrics) *Reconciler {
	return &Reconciler{
		cfg:      cfg,
		out:      out,
		session:  session,
		metrics:  m,
		now:      time.Now,
		triggers: make(chan Trigger, triggerQueueSize),
	}
}

// SetObserver registers o to be notified after every pass. Call before Run.
func (r *Reconciler) SetObserver(o Observer) {
	r.observer = o
}

// Trigger queues a pass. It reports false when the queue is full and the
// trigger was dropped in favor of the ones already queued.
func (r *Reconciler) Trigger(t Trigger) bool {
	select {
	case r.triggers <- t:
		return true
	default:
		slog.Debug("Trigger queue full, dropping trigger", "trigger", t)
		return false
	}
}

// Connect attaches client to the session and queues a pass.
func (r *Reconciler) Connect(ctx context.Context, client chain.Client) error {
	if err := r.session.Connect(ctx, client); err != nil {
		return err
	}
	r.Trigger(TriggerConnect)
	return nil
}

// Disconnect detaches the session client and queues a pass.
func (r *Reconciler) Disconnect() {
	r.session.Disconnect()
	slog.Info("Wallet disconnected")
	r.Trigger(TriggerDisconnect)
}

// Reconcile runs a single pass. Passes never overlap.
func (r *Reconciler) Reconcile(ctx context.Context) Result {
	r.passMu.Lock()
	defer r.passMu.Unlock()

	var res Result
	if client := r.session.Client(); client != nil {
		res = r.reconcileLive(ctx, client)
	} else {
		res = r.reconcileDemo()
	}

	r.metrics.ObservePass(res.Mode)
	r.metrics.SetPending(r.out.PendingCount())
	if r.observer != nil {
		r.observer.ObservePass(res)
	}
	return res
}

// reconcileDemo seals pending transactions into a local block.
func (r *Reconciler) reconcileDemo() Result {
	res := Result{Mode: metrics.ModeDemo}

	now := r.now()
	block, ok := r.out.SealPending(demo.BlockHash(now), now)
	if !ok {
		return res
	}
	res.Sealed = block
	res.Confirmed = len(block.TransactionRefs)
	r.metrics.ObserveMerged(1)
	r.metrics.ObserveConfirmed(res.Confirmed)
	slog.Info("Sealed demo block", "id", block.ID, "transactions", res.Confirmed)
	return res
}
