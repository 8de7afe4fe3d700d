// Package dues is a multi-tenant ledger and statement engine for
// membership dues.
//
// Each tenant (an organization) bills its member families for age-bracket
// annual dues and lifecycle events such as weddings and coming-of-age
// ceremonies, records their payments and withdrawals, and issues monthly
// statements. dues is a library, not a service: import it into your Go
// application and back it with one of the provided stores.
//
// Balances are never stored. Every balance, statement and overdue
// classification is recomputed from the recorded events, so a correction
// to a past payment is reflected the next time it is read.
//
// # Quick Start
//
//	import (
//	    "github.com/xraph/dues"
//	    "github.com/xraph/dues/store/memory"
//	)
//
//	eng := dues.New(memory.New(), dues.WithLogger(logger))
//	if err := eng.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer eng.Stop()
//
// # Core Concepts
//
// Payment plans map member ages to annual dues. A tenant's plans must
// cover every age exactly once:
//
//	eng.CreatePaymentPlan(ctx, &plan.PaymentPlan{
//	    TenantID:  tenantID,
//	    Name:      "Adult",
//	    AgeStart:  13,
//	    AnnualDue: dues.ILS(120000),
//	})
//
// Families are enrolled with their members; each member's annual due is
// charged on January 1st at the age the member has that day:
//
//	eng.EnrollFamily(ctx, fam, parent, child)
//	bal, err := eng.ComputeBalance(ctx, fam.ID, eng.Today())
//
// Statements snapshot one calendar month per family. Generation is
// idempotent; running it twice for the same month stores nothing new:
//
//	run, err := eng.GenerateStatements(ctx, tenantID, 2024, time.March)
//
// RunMonthlyAutomations drives the whole month-end pipeline for every
// tenant that has opted in: lifecycle trigger detection, statement
// generation, statement dispatch through plugins, and overdue escalation.
//
// # Money
//
// All monetary calculations use integer arithmetic in the smallest unit of
// the tenant's currency (agorot for ILS, cents for USD). Balances are
// signed: negative means the family owes.
//
// # TypeID
//
// All entities use TypeID for globally unique, type-safe identifiers:
//
//	fam_01h2xcejqtf2nbrexx3vqjhp41   // Family ID
//	mbr_01h2xcejqtf2nbrexx3vqjhp41   // Member ID
//	stmt_01h455vb4pex5vsknk084sn02q  // Statement ID
package dues
