/*
balance.go - Running balance per application

PURPOSE:
  Keeps, for each application, one Balance row equal to

    sum(active entries) + sum(effect(active repayments))

  where effect(ADD) = -amount and effect(REMOVE) = +amount.

HOW WRITES STAY CONSISTENT:
  Every mutation that touches a balance goes through BalanceLedger.mutate:

    1. take the per-application lock (in-process or Redis)
    2. open a store transaction
    3. read the balance with its version, write the source row, apply the
       delta, and write the balance back only if the version is unchanged
    4. commit

  If step 3 loses the version check the whole transaction is re-run, up to a
  bounded number of times. When retries run out the caller gets a
  ConflictError. A balance is never written with a lost update.

SEE ALSO:
  - entry.go: disbursements, the only path that creates a balance
  - repayment.go: repayments
*/
package loan

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/loan-engine/metrics"
)

type BalanceLedger struct {
	store  TxStore
	locker Locker
	retry  retrypolicy.RetryPolicy[any]
	log    *zap.Logger
	now    func() time.Time
}

// Get returns the live balance of an application.
func (l *BalanceLedger) Get(ctx context.Context, appID ApplicationID) (*Balance, error) {
	b, err := l.store.GetBalance(ctx, appID)
	if err != nil {
		return nil, err
	}
	if b == nil || b.IsDeleted {
		return nil, notFound("balance", int64(appID))
	}
	return b, nil
}

// Delete soft-deletes the balance. Later mutations see it as absent.
func (l *BalanceLedger) Delete(ctx context.Context, appID ApplicationID) error {
	return l.mutate(ctx, "balance.delete", appID, func(s Store) error {
		b, err := liveBalance(ctx, s, appID)
		if err != nil {
			return err
		}
		b.IsDeleted = true
		b.UpdatedAt = l.now()
		return s.UpdateBalance(ctx, b)
	})
}

// =============================================================================
// MUTATION PIPELINE
// =============================================================================

func balanceLockKey(appID ApplicationID) string {
	return fmt.Sprintf("balance:%d", appID)
}

// mutate runs fn in one transaction while holding the application's lock and
// re-runs it when the balance version check fails.
func (l *BalanceLedger) mutate(ctx context.Context, op string, appID ApplicationID, fn func(Store) error) (err error) {
	started := time.Now()
	defer func() { metrics.ObserveLedger(op, err, started) }()

	unlock, err := l.locker.Lock(ctx, balanceLockKey(appID))
	if err != nil {
		return fmt.Errorf("lock application %d: %w", appID, err)
	}
	defer unlock()

	// lastErr is kept because exhausted retries come back wrapped in
	// retrypolicy.ExceededError.
	attempt := 0
	var lastErr error
	_, err = failsafe.With[any](l.retry).WithContext(ctx).Get(func() (any, error) {
		attempt++
		if attempt > 1 {
			l.log.Debug("retrying balance mutation",
				zap.String("operation", op),
				zap.Int64("application_id", int64(appID)),
				zap.Int("attempt", attempt))
		}
		lastErr = l.store.WithTx(ctx, fn)
		return nil, lastErr
	})
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if lastErr == nil {
		return err
	}

	if errors.Is(lastErr, ErrConcurrentModification) {
		metrics.BalanceConflicts.Inc()
		l.log.Warn("balance version conflict not resolved",
			zap.String("operation", op),
			zap.Int64("application_id", int64(appID)),
			zap.Int("attempts", attempt))
		return &ConflictError{
			Code:    CodeBalanceConflict,
			Message: fmt.Sprintf("balance of application %d changed concurrently", appID),
			Err:     ErrConcurrentModification,
		}
	}
	return lastErr
}

// =============================================================================
// IN-TRANSACTION HELPERS
// =============================================================================

func liveBalance(ctx context.Context, s Store, appID ApplicationID) (*Balance, error) {
	b, err := s.GetBalance(ctx, appID)
	if err != nil {
		return nil, err
	}
	if b == nil || b.IsDeleted {
		return nil, notFound("balance", int64(appID))
	}
	return b, nil
}

// creditEntry adds a disbursement, creating the balance row on first use.
func creditEntry(ctx context.Context, s Store, appID ApplicationID, amount decimal.Decimal, now time.Time) (*Balance, error) {
	b, err := s.GetBalance(ctx, appID)
	if err != nil {
		return nil, err
	}
	if b == nil {
		b = &Balance{
			ApplicationID: appID,
			Balance:       amount,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := s.CreateBalance(ctx, b); err != nil {
			return nil, err
		}
		return b, nil
	}
	return applyDelta(ctx, s, appID, BalanceDelta{Before: decimal.Zero, After: amount}, now)
}

func applyDelta(ctx context.Context, s Store, appID ApplicationID, delta BalanceDelta, now time.Time) (*Balance, error) {
	b, err := liveBalance(ctx, s, appID)
	if err != nil {
		return nil, err
	}
	b.Balance = b.Balance.Sub(delta.Before).Add(delta.After)
	b.UpdatedAt = now
	if err := s.UpdateBalance(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

// maxScale is the number of fractional digits both SQL schemas store exactly.
const maxScale = 2

func requirePositive(field string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return invalid(CodeInvalidAmount, "%s must be greater than zero, got %s", field, amount.String())
	}
	return requireScale(field, amount)
}

func requireNonNegative(field string, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return invalid(CodeInvalidAmount, "%s must not be negative, got %s", field, amount.String())
	}
	return requireScale(field, amount)
}

// requireScale rejects amounts a NUMERIC(20,2) column would round.
func requireScale(field string, amount decimal.Decimal) error {
	if !amount.Equal(amount.Truncate(maxScale)) {
		return invalid(CodeInvalidAmount, "%s allows at most %d decimal places, got %s", field, maxScale, amount.String())
	}
	return nil
}
