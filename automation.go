package dues

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/xraph/dues/id"
	"github.com/xraph/dues/overdue"
	"github.com/xraph/dues/plugin"
	"github.com/xraph/dues/statement"
	"github.com/xraph/dues/temporal"
	"github.com/xraph/dues/tenant"
)

// RunStatus is the outcome of one tenant pipeline.
type RunStatus string

// Tenant pipeline outcomes.
const (
	RunSucceeded RunStatus = "succeeded"
	RunSkipped   RunStatus = "skipped"
	RunFailed    RunStatus = "failed"
)

// AutomationRequest scopes one invocation of RunMonthlyAutomations.
type AutomationRequest struct {
	// TenantIDs selects tenants explicitly. When empty, every tenant with
	// automations enabled is processed.
	TenantIDs []id.TenantID
	// Period defaults to the month before today.
	Period statement.Period
	// Settings overrides each tenant's stored automation settings.
	Settings *tenant.AutomationSettings
	// Manual marks an admin-triggered run, which ignores the tenant's
	// automations-enabled flag.
	Manual bool
}

// TenantRun is one tenant's pipeline result.
type TenantRun struct {
	TenantID       id.TenantID               `json:"tenant_id"`
	Code           string                    `json:"code"`
	Status         RunStatus                 `json:"status"`
	Settings       tenant.AutomationSettings `json:"settings"`
	Triggers       *TriggerRun               `json:"triggers,omitempty"`
	Statements     *StatementRun             `json:"statements,omitempty"`
	Dispatched     int                       `json:"dispatched"`
	DispatchFailed int                       `json:"dispatch_failed"`
	Overdue        *OverdueReport            `json:"overdue,omitempty"`
	Err            error                     `json:"-"`
	Message        string                    `json:"error,omitempty"`
	Elapsed        time.Duration             `json:"elapsed"`
}

// AutomationReport collects every tenant pipeline of one invocation.
type AutomationReport struct {
	Period    statement.Period `json:"period"`
	Succeeded []*TenantRun     `json:"succeeded"`
	Skipped   []*TenantRun     `json:"skipped"`
	Failed    []*TenantRun     `json:"failed"`
	Elapsed   time.Duration    `json:"elapsed"`
}

// Runs returns every tenant run ordered by tenant code.
func (r *AutomationReport) Runs() []*TenantRun {
	out := make([]*TenantRun, 0, len(r.Succeeded)+len(r.Skipped)+len(r.Failed))
	out = append(out, r.Succeeded...)
	out = append(out, r.Skipped...)
	out = append(out, r.Failed...)
	sortRuns(out)
	return out
}

// RunMonthlyAutomations runs the monthly pipeline for each selected
// tenant: lifecycle trigger detection, statement generation, statement
// dispatch, and overdue escalation, each gated by the tenant's settings.
//
// Tenants run independently and in parallel; one tenant's failure is
// recorded in the report and never stops the others. Only an unknown
// tenant ID in req.TenantIDs fails the whole call. Every step is
// idempotent, so the call is safe to repeat.
func (e *Engine) RunMonthlyAutomations(ctx context.Context, req AutomationRequest) (*AutomationReport, error) {
	start := time.Now()

	period := req.Period
	if period.Year == 0 {
		period.Year, period.Month = temporal.PreviousMonth(e.Today())
	}
	if err := period.Validate(); err != nil {
		return nil, ValidationError{Field: "period", Message: err.Error()}
	}

	tenants, err := e.automationTenants(ctx, req)
	if err != nil {
		return nil, err
	}

	report := &AutomationReport{
		Period:    period,
		Succeeded: []*TenantRun{},
		Skipped:   []*TenantRun{},
		Failed:    []*TenantRun{},
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(e.tenantParallelism)

	for _, t := range tenants {
		settings := t.Settings
		if req.Settings != nil {
			settings = *req.Settings
		}

		if !req.Manual && !t.AutomationsEnabled {
			report.Skipped = append(report.Skipped, &TenantRun{
				TenantID: t.ID, Code: t.Code, Status: RunSkipped, Settings: settings,
			})
			continue
		}

		g.Go(func() error {
			run := e.runTenant(ctx, t, period, settings)

			mu.Lock()
			defer mu.Unlock()
			if run.Status == RunFailed {
				report.Failed = append(report.Failed, run)
			} else {
				report.Succeeded = append(report.Succeeded, run)
			}
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // tenant pipelines record their own failures

	sortRuns(report.Succeeded)
	sortRuns(report.Skipped)
	sortRuns(report.Failed)
	report.Elapsed = time.Since(start)

	e.logger.Info("monthly automations completed",
		"period", period.String(),
		"succeeded", len(report.Succeeded),
		"skipped", len(report.Skipped),
		"failed", len(report.Failed),
		"elapsed_ms", report.Elapsed.Milliseconds(),
	)

	return report, nil
}

// RunTenantAutomations is the admin-triggered form of the monthly run,
// scoped to exactly one tenant. A zero period means the previous month.
func (e *Engine) RunTenantAutomations(ctx context.Context, tenantID id.TenantID, period statement.Period) (*TenantRun, error) {
	report, err := e.RunMonthlyAutomations(ctx, AutomationRequest{
		TenantIDs: []id.TenantID{tenantID},
		Period:    period,
		Manual:    true,
	})
	if err != nil {
		return nil, err
	}
	runs := report.Runs()
	if len(runs) != 1 {
		return nil, fmt.Errorf("dues: expected one tenant run, got %d", len(runs))
	}
	return runs[0], nil
}

func (e *Engine) automationTenants(ctx context.Context, req AutomationRequest) ([]*tenant.Tenant, error) {
	if len(req.TenantIDs) == 0 {
		ts, err := e.store.ListTenants(ctx, tenant.ListOpts{AutomationsOnly: true})
		return ts, storeErr("list tenants", err)
	}

	seen := make(map[string]bool, len(req.TenantIDs))
	tenants := make([]*tenant.Tenant, 0, len(req.TenantIDs))
	for _, tid := range req.TenantIDs {
		if seen[tid.String()] {
			continue
		}
		seen[tid.String()] = true

		t, err := e.GetTenant(ctx, tid)
		if err != nil {
			return nil, err
		}
		tenants = append(tenants, t)
	}
	return tenants, nil
}

// runTenant executes one tenant's pipeline. It never panics and never
// returns an error; the outcome is carried on the TenantRun.
func (e *Engine) runTenant(ctx context.Context, t *tenant.Tenant, period statement.Period, settings tenant.AutomationSettings) (run *TenantRun) {
	start := time.Now()
	run = &TenantRun{TenantID: t.ID, Code: t.Code, Status: RunSucceeded, Settings: settings}

	defer func() {
		if r := recover(); r != nil {
			run.Err = fmt.Errorf("dues: tenant pipeline panic: %v", r)
		}
		if run.Err != nil {
			run.Status = RunFailed
			run.Message = run.Err.Error()
			e.logger.Error("tenant automation failed",
				"tenant_id", t.ID.String(),
				"period", period.String(),
				"error", run.Err,
			)
		}
		run.Elapsed = time.Since(start)
		e.plugins.EmitAutomationCompleted(context.WithoutCancel(ctx), summarize(run, period))
	}()

	run.Err = e.tenantPipeline(ctx, t, period, settings, run)
	return run
}

func (e *Engine) tenantPipeline(ctx context.Context, t *tenant.Tenant, period statement.Period, settings tenant.AutomationSettings, run *TenantRun) error {
	var errs MultiError

	if settings.LifecycleTriggers {
		triggers, err := e.DetectLifecycleTriggers(ctx, t.ID, e.Today())
		run.Triggers = triggers
		if err != nil {
			errs.Add(fmt.Errorf("lifecycle triggers: %w", err))
		}
	}

	if settings.Statements {
		stmts, err := e.generateStatements(ctx, t, period)
		run.Statements = stmts
		if err != nil {
			errs.Add(fmt.Errorf("statements: %w", err))
		}

		if err == nil && settings.Dispatch && e.plugins.HasDispatchers() {
			run.Dispatched, run.DispatchFailed = e.dispatchStatements(ctx, t, stmts.Generated)
		}
	}

	if settings.Overdue {
		report, err := e.ClassifyOverdue(ctx, t.ID)
		run.Overdue = report
		if err != nil {
			errs.Add(fmt.Errorf("overdue: %w", err))
		} else {
			for _, c := range report.Families {
				e.plugins.EmitOverdueEscalated(ctx, t.ID, c)
			}
		}
	}

	if errs.HasErrors() {
		if len(errs.Errors) == 1 {
			return errs.First()
		}
		return errs
	}
	return nil
}

// dispatchStatements delivers newly generated statements. Failures are
// counted, not returned.
func (e *Engine) dispatchStatements(ctx context.Context, t *tenant.Tenant, stmts []*statement.Statement) (delivered, failed int) {
	for _, s := range stmts {
		f, err := e.GetFamily(ctx, s.FamilyID)
		if err != nil {
			failed++
			continue
		}
		ok, bad := e.plugins.Dispatch(ctx, plugin.Delivery{Tenant: t, Family: f, Statement: s})
		delivered += ok
		failed += bad
	}
	return delivered, failed
}

func summarize(run *TenantRun, period statement.Period) plugin.AutomationSummary {
	s := plugin.AutomationSummary{
		TenantID:       run.TenantID,
		Period:         period,
		Dispatched:     run.Dispatched,
		DispatchFailed: run.DispatchFailed,
		Err:            run.Err,
		Elapsed:        run.Elapsed,
	}
	if run.Triggers != nil {
		s.Triggers = len(run.Triggers.Applied)
	}
	if run.Statements != nil {
		s.Generated = run.Statements.GeneratedCount()
		s.Skipped = run.Statements.SkippedCount()
		s.Failed = len(run.Statements.Failed)
	}
	if run.Overdue != nil {
		s.Overdue = len(run.Overdue.Families)
	}
	return s
}

func sortRuns(runs []*TenantRun) {
	sort.Slice(runs, func(i, j int) bool { return runs[i].Code < runs[j].Code })
}

// OverdueCount returns the number of families escalated by the run.
func (r *TenantRun) OverdueCount() int {
	if r.Overdue == nil {
		return 0
	}
	return len(r.Overdue.Families)
}

// TierCounts tallies the run's overdue families per tier.
func (r *TenantRun) TierCounts() map[overdue.Tier]int {
	counts := make(map[overdue.Tier]int)
	if r.Overdue == nil {
		return counts
	}
	for _, c := range r.Overdue.Families {
		counts[c.Tier]++
	}
	return counts
}
