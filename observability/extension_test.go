package observability

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/xraph/dues/family"
	"github.com/xraph/dues/id"
	"github.com/xraph/dues/lifecycle"
	"github.com/xraph/dues/overdue"
	"github.com/xraph/dues/plugin"
)

type fakeCounter struct{ v float64 }

func (c *fakeCounter) Inc()          { c.v++ }
func (c *fakeCounter) Add(n float64) { c.v += n }

type fakeHistogram struct{ obs []float64 }

func (h *fakeHistogram) Observe(v float64) { h.obs = append(h.obs, v) }

type fakeFactory struct {
	mu         sync.Mutex
	counters   map[string]*fakeCounter
	histograms map[string]*fakeHistogram
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{
		counters:   make(map[string]*fakeCounter),
		histograms: make(map[string]*fakeHistogram),
	}
}

func (f *fakeFactory) Counter(name string) Counter {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := &fakeCounter{}
	f.counters[name] = c
	return c
}

func (f *fakeFactory) Histogram(name string) Histogram {
	f.mu.Lock()
	defer f.mu.Unlock()
	h := &fakeHistogram{}
	f.histograms[name] = h
	return h
}

func (f *fakeFactory) count(name string) float64 {
	if c, ok := f.counters[name]; ok {
		return c.v
	}
	return -1
}

func TestMetricsRecordHooks(t *testing.T) {
	f := newFakeFactory()
	m := NewMetricsExtension(f)
	ctx := context.Background()

	_ = m.OnFamilyEnrolled(ctx, &family.Family{ID: id.NewFamilyID()})
	_ = m.OnFamilyEnrolled(ctx, &family.Family{ID: id.NewFamilyID(), ParentFamilyID: id.NewFamilyID()})
	_ = m.OnLifecycleCharged(ctx, &lifecycle.Charge{}, false)
	_ = m.OnLifecycleCharged(ctx, &lifecycle.Charge{}, true)

	tests := []struct {
		name string
		want float64
	}{
		{"dues.family.enrolled", 2},
		{"dues.family.sub_family_formed", 1},
		{"dues.lifecycle.charged", 2},
		{"dues.lifecycle.triggers_applied", 1},
	}
	for _, tt := range tests {
		if got := f.count(tt.name); got != tt.want {
			t.Errorf("%s: got %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestMetricsOverdueTiers(t *testing.T) {
	f := newFakeFactory()
	m := NewMetricsExtension(f)
	ctx := context.Background()
	tenantID := id.NewTenantID()

	for _, tier := range []overdue.Tier{overdue.Tier1, overdue.Tier3, overdue.Tier3} {
		_ = m.OnOverdueEscalated(ctx, tenantID, overdue.Classification{Tier: tier, DaysOverdue: 40})
	}

	if got := f.count("dues.overdue.tier1"); got != 1 {
		t.Errorf("tier1: got %v", got)
	}
	if got := f.count("dues.overdue.tier2"); got != 0 {
		t.Errorf("tier2: got %v", got)
	}
	if got := f.count("dues.overdue.tier3"); got != 2 {
		t.Errorf("tier3: got %v", got)
	}
	if got := len(f.histograms["dues.overdue.days"].obs); got != 3 {
		t.Errorf("days observations: got %d", got)
	}
}

func TestMetricsAutomation(t *testing.T) {
	f := newFakeFactory()
	m := NewMetricsExtension(f)
	ctx := context.Background()

	_ = m.OnStatementRunCompleted(ctx, plugin.RunSummary{Skipped: 4, Failed: 1, Incomplete: true, Elapsed: 20 * time.Millisecond})
	_ = m.OnAutomationCompleted(ctx, plugin.AutomationSummary{Dispatched: 3, DispatchFailed: 1})
	_ = m.OnAutomationCompleted(ctx, plugin.AutomationSummary{Err: errors.New("boom")})

	tests := []struct {
		name string
		want float64
	}{
		{"dues.statement.skipped", 4},
		{"dues.statement.failed", 1},
		{"dues.statement.run.incomplete", 1},
		{"dues.automation.runs", 2},
		{"dues.automation.failures", 1},
		{"dues.dispatch.sent", 3},
		{"dues.dispatch.failed", 1},
	}
	for _, tt := range tests {
		if got := f.count(tt.name); got != tt.want {
			t.Errorf("%s: got %v, want %v", tt.name, got, tt.want)
		}
	}
}
