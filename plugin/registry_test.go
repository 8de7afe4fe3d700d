package plugin

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xraph/dues/id"
	"github.com/xraph/dues/overdue"
	"github.com/xraph/dues/statement"
)

type recorder struct {
	name      string
	generated atomic.Int32
	escalated atomic.Int32
}

func (r *recorder) Name() string { return r.name }

func (r *recorder) OnStatementGenerated(_ context.Context, _ *statement.Statement) error {
	r.generated.Add(1)
	return nil
}

func (r *recorder) OnOverdueEscalated(_ context.Context, _ id.TenantID, _ overdue.Classification) error {
	r.escalated.Add(1)
	return nil
}

type dispatcher struct {
	name string
	err  error
	wait time.Duration
}

func (d *dispatcher) Name() string { return d.name }

func (d *dispatcher) Dispatch(ctx context.Context, _ Delivery) error {
	if d.wait > 0 {
		select {
		case <-time.After(d.wait):
		case <-ctx.Done():
		}
	}
	return d.err
}

type panicker struct{}

func (panicker) Name() string { return "panicker" }

func (panicker) OnStatementGenerated(context.Context, *statement.Statement) error {
	panic("boom")
}

func quietRegistry() *Registry {
	return NewRegistry().WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRegisterCachesHooks(t *testing.T) {
	r := quietRegistry()
	rec := &recorder{name: "rec"}

	if err := r.Register(rec); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register(&recorder{name: "rec"}); err == nil {
		t.Error("expected duplicate registration error")
	}
	if r.Count() != 1 || r.Get("rec") == nil {
		t.Errorf("Count/Get: got %d, %v", r.Count(), r.Get("rec"))
	}

	ctx := context.Background()
	r.EmitStatementGenerated(ctx, &statement.Statement{})
	r.EmitStatementGenerated(ctx, &statement.Statement{})
	r.EmitOverdueEscalated(ctx, id.NewTenantID(), overdue.Classification{Tier: overdue.Tier2})
	r.EmitPaymentRecorded(ctx, nil) // no implementers

	if got := rec.generated.Load(); got != 2 {
		t.Errorf("generated: got %d, want 2", got)
	}
	if got := rec.escalated.Load(); got != 1 {
		t.Errorf("escalated: got %d, want 1", got)
	}
}

func TestDispatchCountsFailures(t *testing.T) {
	r := quietRegistry().WithTimeout(50 * time.Millisecond)
	for _, p := range []Plugin{
		&dispatcher{name: "ok"},
		&dispatcher{name: "broken", err: errors.New("smtp down")},
		&dispatcher{name: "slow", wait: time.Second},
	} {
		if err := r.Register(p); err != nil {
			t.Fatal(err)
		}
	}

	if !r.HasDispatchers() {
		t.Fatal("expected dispatchers")
	}

	delivered, failed := r.Dispatch(context.Background(), Delivery{Statement: &statement.Statement{Number: "T-2024-01-00001"}})
	if delivered != 1 || failed != 2 {
		t.Errorf("got delivered=%d failed=%d, want 1/2", delivered, failed)
	}
}

func TestPanickingHookIsContained(t *testing.T) {
	r := quietRegistry()
	rec := &recorder{name: "rec"}
	if err := r.Register(panicker{}); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(rec); err != nil {
		t.Fatal(err)
	}

	r.EmitStatementGenerated(context.Background(), &statement.Statement{})

	if rec.generated.Load() != 1 {
		t.Error("hook after a panicking plugin did not run")
	}
}
