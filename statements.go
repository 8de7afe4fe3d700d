package dues

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/xraph/dues/family"
	"github.com/xraph/dues/id"
	"github.com/xraph/dues/ledger"
	"github.com/xraph/dues/plugin"
	"github.com/xraph/dues/statement"
	"github.com/xraph/dues/tenant"
)

// StatementRun is the outcome of one tenant's statement batch.
type StatementRun struct {
	TenantID id.TenantID      `json:"tenant_id"`
	Period   statement.Period `json:"period"`
	// Generated holds statements created by this run.
	Generated []*statement.Statement `json:"generated"`
	// Skipped holds statements that already existed for the period.
	Skipped []*statement.Statement `json:"skipped"`
	Failed  []FamilyFailure        `json:"failed,omitempty"`
	// Incomplete is set when the context ended before every family was
	// scheduled; Pending counts the families never started.
	Incomplete bool          `json:"incomplete"`
	Pending    int           `json:"pending"`
	Elapsed    time.Duration `json:"elapsed"`
}

// GeneratedCount returns the number of statements created by the run.
func (r *StatementRun) GeneratedCount() int { return len(r.Generated) }

// SkippedCount returns the number of families whose statement already
// existed.
func (r *StatementRun) SkippedCount() int { return len(r.Skipped) }

// Statements returns every live statement for the period the run touched,
// ordered by number.
func (r *StatementRun) Statements() []*statement.Statement {
	out := make([]*statement.Statement, 0, len(r.Generated)+len(r.Skipped))
	out = append(out, r.Generated...)
	out = append(out, r.Skipped...)
	sortStatements(out)
	return out
}

// GenerateStatements produces one statement per eligible family of the
// tenant for the calendar month. Families that already have a live
// statement for the month are skipped. A family that fails is recorded in
// Failed and the batch continues.
//
// When ctx ends, no further families are started; families already in
// flight finish and are committed, and the partial run is returned with
// Incomplete set.
func (e *Engine) GenerateStatements(ctx context.Context, tenantID id.TenantID, year int, month time.Month) (*StatementRun, error) {
	period := statement.Period{Year: year, Month: month}
	if err := period.Validate(); err != nil {
		return nil, ValidationError{Field: "period", Message: err.Error()}
	}

	t, err := e.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	return e.generateStatements(ctx, t, period)
}

func (e *Engine) generateStatements(ctx context.Context, t *tenant.Tenant, period statement.Period) (*StatementRun, error) {
	start := time.Now()
	run := &StatementRun{
		TenantID:  t.ID,
		Period:    period,
		Generated: []*statement.Statement{},
		Skipped:   []*statement.Statement{},
	}

	families, err := e.ListFamilies(ctx, t.ID, family.ListOpts{ActiveOnly: true})
	if err != nil {
		return nil, err
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(e.workers)

	// In-flight families run detached from ctx so that a committed
	// statement is never half-reported.
	work := context.WithoutCancel(ctx)

	for i, f := range families {
		if !eligible(f, period) {
			continue
		}
		if ctx.Err() != nil {
			run.Incomplete = true
			run.Pending = countEligible(families[i:], period)
			break
		}

		g.Go(func() error {
			s, created, err := e.statementFor(work, t, f, period)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				run.Failed = append(run.Failed, newFamilyFailure(f.ID, err))
				e.logger.Warn("statement generation failed",
					"tenant_id", t.ID.String(),
					"family_id", f.ID.String(),
					"period", period.String(),
					"error", err,
				)
			case created:
				run.Generated = append(run.Generated, s)
			default:
				run.Skipped = append(run.Skipped, s)
			}
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // workers record failures on the run

	sortStatements(run.Generated)
	sortStatements(run.Skipped)
	sort.Slice(run.Failed, func(i, j int) bool {
		return run.Failed[i].FamilyID.String() < run.Failed[j].FamilyID.String()
	})
	run.Elapsed = time.Since(start)

	for _, s := range run.Generated {
		e.plugins.EmitStatementGenerated(work, s)
	}
	e.plugins.EmitStatementRunCompleted(work, plugin.RunSummary{
		TenantID:   t.ID,
		Period:     period,
		Generated:  len(run.Generated),
		Skipped:    len(run.Skipped),
		Failed:     len(run.Failed),
		Incomplete: run.Incomplete,
		Elapsed:    run.Elapsed,
	})

	e.logger.Info("statement run completed",
		"tenant_id", t.ID.String(),
		"period", period.String(),
		"generated", len(run.Generated),
		"skipped", len(run.Skipped),
		"failed", len(run.Failed),
		"pending", run.Pending,
		"elapsed_ms", run.Elapsed.Milliseconds(),
	)

	return run, nil
}

// eligible reports whether f should receive a statement for period: it
// must be enrolled on or before the period's last day.
func eligible(f *family.Family, period statement.Period) bool {
	return f.Active && !f.EnrolledAt.After(period.LastDay())
}

func countEligible(fs []*family.Family, period statement.Period) int {
	n := 0
	for _, f := range fs {
		if eligible(f, period) {
			n++
		}
	}
	return n
}

// statementFor returns the live statement for (f, period), building and
// storing it when none exists. created reports whether this call stored
// it.
func (e *Engine) statementFor(ctx context.Context, t *tenant.Tenant, f *family.Family, period statement.Period) (s *statement.Statement, created bool, err error) {
	start, end := period.Bounds()

	existing, err := e.store.GetStatementByPeriod(ctx, f.ID, start, end)
	switch {
	case err == nil:
		return existing, false, nil
	case !errors.Is(err, ErrStatementNotFound):
		return nil, false, storeErr("get statement", err)
	}

	s, err = e.buildStatement(ctx, t, f, period)
	if err != nil {
		return nil, false, err
	}

	err = e.store.InsertStatement(ctx, s)
	if errors.Is(err, ErrDuplicateStatement) {
		// Another run committed first.
		existing, gerr := e.store.GetStatementByPeriod(ctx, f.ID, start, end)
		if gerr != nil {
			return nil, false, storeErr("get statement", gerr)
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, storeErr("insert statement", err)
	}

	return s, true, nil
}

// buildStatement computes the snapshot for one family and period. The
// opening balance covers everything before the period; the lines are the
// period's transactions.
func (e *Engine) buildStatement(ctx context.Context, t *tenant.Tenant, f *family.Family, period statement.Period) (*statement.Statement, error) {
	start, end := period.Bounds()

	opening, err := e.familyBalance(ctx, t, f, id.Nil, start.AddDate(0, 0, -1))
	if err != nil {
		return nil, err
	}
	closing, err := e.familyBalance(ctx, t, f, id.Nil, period.LastDay())
	if err != nil {
		return nil, err
	}

	txns := closing.Between(start, end)
	totals := ledger.Summarize(t.Currency, txns)
	running := ledger.RunningBalances(opening.Amount, txns)

	lines := make([]statement.Line, len(txns))
	for i, tx := range txns {
		lines[i] = statement.Line{
			Date:           tx.Date,
			Kind:           statement.LineKind(tx.Kind),
			Description:    tx.Description,
			Amount:         tx.Amount,
			SignedAmount:   tx.SignedAmount,
			RunningBalance: running[i],
		}
	}

	revision, err := e.store.LatestStatementRevision(ctx, f.ID, start, end)
	if err != nil {
		return nil, storeErr("latest statement revision", err)
	}
	revision++

	return &statement.Statement{
		Entity:         e.entity(),
		ID:             id.NewStatementID(),
		TenantID:       t.ID,
		FamilyID:       f.ID,
		Number:         statement.FormatNumber(t.Code, period, f.Number, revision),
		Revision:       revision,
		PeriodStart:    start,
		PeriodEnd:      end,
		OpeningBalance: opening.Amount,
		Income:         totals.Payments,
		Withdrawals:    totals.Withdrawals,
		Events:         totals.Events,
		Dues:           totals.Charges,
		ClosingBalance: opening.Amount.Add(totals.Net),
		Lines:          lines,
		Status:         statement.StatusIssued,
	}, nil
}

// GetStatement retrieves a statement by ID.
func (e *Engine) GetStatement(ctx context.Context, statementID id.StatementID) (*statement.Statement, error) {
	s, err := e.store.GetStatement(ctx, statementID)
	return s, storeErr("get statement", err)
}

// ListStatements lists a tenant's statements.
func (e *Engine) ListStatements(ctx context.Context, tenantID id.TenantID, opts statement.ListOpts) ([]*statement.Statement, error) {
	ss, err := e.store.ListStatements(ctx, tenantID, opts)
	return ss, storeErr("list statements", err)
}

// VoidStatement marks a statement void, freeing its period for
// regeneration.
func (e *Engine) VoidStatement(ctx context.Context, statementID id.StatementID, reason string) (*statement.Statement, error) {
	if reason == "" {
		return nil, ValidationError{Field: "reason", Message: "required"}
	}
	if err := e.store.VoidStatement(ctx, statementID, reason, e.now()); err != nil {
		return nil, storeErr("void statement", err)
	}

	s, err := e.GetStatement(ctx, statementID)
	if err != nil {
		return nil, err
	}

	e.plugins.EmitStatementVoided(ctx, s, reason)
	e.logger.Info("statement voided",
		"tenant_id", s.TenantID.String(),
		"statement", s.Number,
		"reason", reason,
	)
	return s, nil
}

// RegenerateStatement replaces a family's statement for the month: the
// live statement, if any, is voided with reason and a new revision is
// generated from the current records.
func (e *Engine) RegenerateStatement(ctx context.Context, familyID id.FamilyID, year int, month time.Month, reason string) (*statement.Statement, error) {
	period := statement.Period{Year: year, Month: month}
	if err := period.Validate(); err != nil {
		return nil, ValidationError{Field: "period", Message: err.Error()}
	}
	if reason == "" {
		return nil, ValidationError{Field: "reason", Message: "required"}
	}

	f, t, err := e.familyAndTenant(ctx, familyID)
	if err != nil {
		return nil, err
	}

	start, end := period.Bounds()
	existing, err := e.store.GetStatementByPeriod(ctx, f.ID, start, end)
	switch {
	case err == nil:
		if _, err := e.VoidStatement(ctx, existing.ID, reason); err != nil {
			return nil, err
		}
	case !errors.Is(err, ErrStatementNotFound):
		return nil, storeErr("get statement", err)
	}

	s, created, err := e.statementFor(ctx, t, f, period)
	if err != nil {
		return nil, err
	}
	if created {
		e.plugins.EmitStatementGenerated(ctx, s)
	}
	return s, nil
}

func sortStatements(ss []*statement.Statement) {
	sort.Slice(ss, func(i, j int) bool { return ss[i].Number < ss[j].Number })
}

