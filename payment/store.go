package payment

import (
	"context"
	"time"

	"github.com/xraph/dues/id"
)

// Store persists payments and withdrawals. Both are append-only.
type Store interface {
	CreatePayment(ctx context.Context, p *Payment) error
	ListPayments(ctx context.Context, familyID id.FamilyID, opts ListOpts) ([]*Payment, error)
	CreateWithdrawal(ctx context.Context, w *Withdrawal) error
	ListWithdrawals(ctx context.Context, familyID id.FamilyID, opts ListOpts) ([]*Withdrawal, error)
}

// ListOpts filters listings by date. Until is exclusive; zero means no
// bound. Results are ordered by date.
type ListOpts struct {
	Until time.Time
}
