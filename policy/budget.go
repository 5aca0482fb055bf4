package policy

import (
	"context"
	"sync/atomic"
	"time"
)

// BudgetArbiter bounds a request by a wall-clock budget and records whether
// the budget ran out.
type BudgetArbiter struct {
	ctx    context.Context
	cancel context.CancelFunc
	hit    atomic.Bool
}

// NewBudgetArbiter derives a deadline-bound context from parent. A zero
// budget means no deadline; negative budgets are rejected.
func NewBudgetArbiter(parent context.Context, budgetMS int, metrics *Metrics) (*BudgetArbiter, error) {
	if budgetMS < 0 {
		return nil, ErrInvalidBudget
	}
	if parent == nil {
		parent = context.Background()
	}

	b := &BudgetArbiter{}
	if budgetMS == 0 {
		b.ctx, b.cancel = context.WithCancel(parent)
		return b, nil
	}

	b.ctx, b.cancel = context.WithTimeout(parent, time.Duration(budgetMS)*time.Millisecond)
	go func() {
		<-b.ctx.Done()
		if b.ctx.Err() == context.DeadlineExceeded {
			b.hit.Store(true)
			metrics.IncBudgetHit()
		}
	}()
	return b, nil
}

// Context returns the budget-bound context.
func (b *BudgetArbiter) Context() context.Context {
	return b.ctx
}

// Release frees the budget's resources.
func (b *BudgetArbiter) Release() {
	if b != nil && b.cancel != nil {
		b.cancel()
	}
}

// Hit reports whether the allotted budget was consumed.
func (b *BudgetArbiter) Hit() bool {
	if b == nil {
		return false
	}
	return b.hit.Load() || b.ctx.Err() == context.DeadlineExceeded
}
