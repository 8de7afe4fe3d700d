package plan

import (
	"context"

	"github.com/xraph/dues/id"
)

// Store persists payment plans. Listings return every bracket of a tenant
// ordered by AgeStart.
type Store interface {
	CreatePaymentPlan(ctx context.Context, p *PaymentPlan) error
	GetPaymentPlan(ctx context.Context, planID id.PaymentPlanID) (*PaymentPlan, error)
	ListPaymentPlans(ctx context.Context, tenantID id.TenantID) ([]*PaymentPlan, error)
	UpdatePaymentPlan(ctx context.Context, p *PaymentPlan) error
	DeletePaymentPlan(ctx context.Context, planID id.PaymentPlanID) error
}
