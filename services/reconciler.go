package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"civicreport-be/apperrors"
	"civicreport-be/store"
)

// Reconciler replays queued XP credits against the ledger.
type Reconciler struct {
	queue  CreditQueue
	ledger store.ScoreLedger
	logger *slog.Logger
}

func NewReconciler(queue CreditQueue, ledger store.ScoreLedger, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{queue: queue, ledger: ledger, logger: logger}
}

// Drain applies queued credits until the queue is empty. Credits for unknown
// users are dropped; a ledger failure puts the credit back and stops the drain.
func (r *Reconciler) Drain(ctx context.Context) (int, error) {
	applied := 0
	for {
		if err := ctx.Err(); err != nil {
			return applied, err
		}
		credit, ok, err := r.queue.Pop(ctx)
		if err != nil {
			return applied, err
		}
		if !ok {
			return applied, nil
		}

		balance, err := r.ledger.ApplyDelta(ctx, credit.UserID, credit.Delta)
		switch {
		case errors.Is(err, apperrors.ErrNotFound):
			r.logger.WarnContext(ctx, "dropping xp credit for unknown user",
				"user_id", credit.UserID.Hex(), "issue_id", credit.IssueID.Hex(), "delta", credit.Delta)
			continue
		case err != nil:
			if perr := r.queue.Push(ctx, credit); perr != nil {
				r.logger.ErrorContext(ctx, "failed to requeue xp credit",
					"user_id", credit.UserID.Hex(), "delta", credit.Delta, "error", perr)
			}
			return applied, err
		}

		applied++
		r.logger.InfoContext(ctx, "reconciled xp credit",
			"user_id", credit.UserID.Hex(), "issue_id", credit.IssueID.Hex(),
			"delta", credit.Delta, "reason", credit.Reason, "balance", balance)
	}
}

// Start drains the queue every interval until done is closed.
func (r *Reconciler) Start(ctx context.Context, interval time.Duration, done chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n, err := r.Drain(ctx); err != nil {
					r.logger.ErrorContext(ctx, "xp reconciliation failed", "applied", n, "error", err)
				} else if n > 0 {
					r.logger.InfoContext(ctx, "xp reconciliation completed", "applied", n)
				}
			case <-done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}
