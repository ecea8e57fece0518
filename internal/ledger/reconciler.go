package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/medaid/consent-trail/pkg/config"
	"github.com/medaid/consent-trail/pkg/logger"
	"github.com/medaid/consent-trail/pkg/types"
)

// MirrorTask is one failed best-effort mirror queued for retry.
// Submit re-issues the ledger write; OnSuccess attaches the proof to
// the already-durable internal row. Both must be safe to call more
// than once since ledger entries are idempotent per handle tuple.
type MirrorTask struct {
	Kind      types.EventKind
	Handle    string
	Submit    func(ctx context.Context) (*types.LedgerProof, error)
	OnSuccess func(ctx context.Context, proof *types.LedgerProof)
}

// Reconciler retries failed ledger mirrors in the background with a
// bounded attempt budget and linear backoff. It never touches the
// primary path: the internal-store write is already durable before a
// task reaches this queue, and exhausting the budget just leaves the
// row without a ledger reference.
type Reconciler struct {
	logger   *logger.Logger
	attempts int
	backoff  time.Duration

	tasks  chan *MirrorTask
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewReconciler creates a reconciler from ledger configuration
func NewReconciler(cfg *config.LedgerConfig, log *logger.Logger) *Reconciler {
	attempts := cfg.RetryAttempts
	if attempts <= 0 {
		attempts = 3
	}
	backoff := time.Duration(cfg.RetryBackoff) * time.Second
	if backoff <= 0 {
		backoff = 2 * time.Second
	}

	return &Reconciler{
		logger:   log,
		attempts: attempts,
		backoff:  backoff,
		tasks:    make(chan *MirrorTask, 256),
	}
}

// Start launches the background worker
func (r *Reconciler) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)
	r.wg.Add(1)
	go r.run(ctx)
	r.logger.WithComponent("reconciler").Info("Ledger reconciler started")
}

// Stop cancels in-flight retries and waits for the worker to exit
func (r *Reconciler) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
	r.logger.WithComponent("reconciler").Info("Ledger reconciler stopped")
}

// Enqueue hands a failed mirror to the retry queue. Returns false if
// the queue is full; the event stays durable internally either way.
func (r *Reconciler) Enqueue(task *MirrorTask) bool {
	select {
	case r.tasks <- task:
		return true
	default:
		r.logger.WithFields(map[string]interface{}{
			"event_kind": string(task.Kind),
			"handle":     task.Handle,
		}).Warn("Reconciler queue full, dropping mirror retry")
		return false
	}
}

func (r *Reconciler) run(ctx context.Context) {
	defer r.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case task := <-r.tasks:
			r.process(ctx, task)
		}
	}
}

// process retries one task until it succeeds, is rejected outright,
// or the attempt budget runs out
func (r *Reconciler) process(ctx context.Context, task *MirrorTask) {
	log := r.logger.WithFields(map[string]interface{}{
		"component":  "reconciler",
		"event_kind": string(task.Kind),
		"handle":     task.Handle,
	})

	for attempt := 1; attempt <= r.attempts; attempt++ {
		proof, err := task.Submit(ctx)
		if err == nil {
			if task.OnSuccess != nil {
				task.OnSuccess(ctx, proof)
			}
			log.WithField("attempt", attempt).Info("Mirror retry succeeded")
			return
		}

		// A rejection is a definitive answer; retrying cannot change it
		if types.HasCode(err, types.ErrCodeLedgerRejected) {
			log.WithError(err).Warn("Mirror retry rejected by ledger, giving up")
			return
		}

		log.WithError(err).WithField("attempt", attempt).Warn("Mirror retry failed")

		if attempt == r.attempts {
			break
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(r.backoff * time.Duration(attempt)):
		}
	}

	log.Warn("Mirror retry budget exhausted, event remains un-notarized")
}
