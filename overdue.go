package dues

import (
	"context"
	"sort"
	"time"

	"github.com/xraph/dues/family"
	"github.com/xraph/dues/id"
	"github.com/xraph/dues/overdue"
)

// OverdueReport lists a tenant's overdue families, most overdue first.
type OverdueReport struct {
	TenantID id.TenantID              `json:"tenant_id"`
	AsOf     time.Time                `json:"as_of"`
	Families []overdue.Classification `json:"families"`
	Failed   []FamilyFailure          `json:"failed,omitempty"`
}

// ClassifyOverdue recomputes every active family's balance as of today
// and reports those overdue by at least Tier1Days. Nothing is stored, so a
// late payment is reflected on the next call.
func (e *Engine) ClassifyOverdue(ctx context.Context, tenantID id.TenantID) (*OverdueReport, error) {
	t, err := e.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	families, err := e.ListFamilies(ctx, tenantID, family.ListOpts{ActiveOnly: true})
	if err != nil {
		return nil, err
	}

	today := e.Today()
	report := &OverdueReport{TenantID: tenantID, AsOf: today, Families: []overdue.Classification{}}

	for _, f := range families {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		b, err := e.familyBalance(ctx, t, f, id.Nil, today)
		if err != nil {
			report.Failed = append(report.Failed, newFamilyFailure(f.ID, err))
			continue
		}
		if c, ok := overdue.Classify(f.ID, b, today); ok {
			report.Families = append(report.Families, c)
		}
	}

	sort.SliceStable(report.Families, func(i, j int) bool {
		return report.Families[i].DaysOverdue > report.Families[j].DaysOverdue
	})

	return report, nil
}
