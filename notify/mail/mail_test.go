package mail

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"gopkg.in/gomail.v2"

	"github.com/xraph/dues/family"
	"github.com/xraph/dues/plugin"
	"github.com/xraph/dues/statement"
	"github.com/xraph/dues/tenant"
	"github.com/xraph/dues/types"
)

type fakeSender struct {
	sent []*gomail.Message
	err  error
}

func (f *fakeSender) DialAndSend(m ...*gomail.Message) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, m...)
	return nil
}

func delivery(email string) plugin.Delivery {
	march := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	return plugin.Delivery{
		Tenant: &tenant.Tenant{Name: "Acme Shul", Email: "office@acme.example", Currency: "usd"},
		Family: &family.Family{Name: "Levi", Number: 1, Email: email},
		Statement: &statement.Statement{
			Number:         "ACME-2024-03-00001",
			PeriodStart:    march,
			PeriodEnd:      march.AddDate(0, 1, 0),
			ClosingBalance: types.USD(-2500),
			Status:         statement.StatusIssued,
		},
	}
}

func TestDispatch(t *testing.T) {
	s := &fakeSender{}
	d := New(s)

	if err := d.Dispatch(context.Background(), delivery("levi@example.com")); err != nil {
		t.Fatal(err)
	}
	if len(s.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(s.sent))
	}

	msg := s.sent[0]
	if got := msg.GetHeader("To"); len(got) != 1 || got[0] != "levi@example.com" {
		t.Errorf("To: got %v", got)
	}
	if got := msg.GetHeader("From"); len(got) != 1 || got[0] != "office@acme.example" {
		t.Errorf("From: got %v", got)
	}

	if got := msg.GetHeader("Subject"); len(got) != 1 || !strings.Contains(got[0], "ACME-2024-03-00001") {
		t.Errorf("Subject: got %v", got)
	}

	var buf bytes.Buffer
	if _, err := msg.WriteTo(&buf); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "text/html") {
		t.Error("expected an HTML body")
	}
}

func TestDispatchFromOverride(t *testing.T) {
	s := &fakeSender{}
	d := New(s, WithFrom("billing@acme.example"))

	if err := d.Dispatch(context.Background(), delivery("levi@example.com")); err != nil {
		t.Fatal(err)
	}
	if got := s.sent[0].GetHeader("From"); got[0] != "billing@acme.example" {
		t.Errorf("From: got %v", got)
	}
}

func TestDispatchErrors(t *testing.T) {
	t.Run("NoRecipient", func(t *testing.T) {
		d := New(&fakeSender{})
		if err := d.Dispatch(context.Background(), delivery("")); !errors.Is(err, ErrNoRecipient) {
			t.Errorf("got %v, want ErrNoRecipient", err)
		}
	})

	t.Run("SendFailure", func(t *testing.T) {
		smtpErr := errors.New("connection refused")
		d := New(&fakeSender{err: smtpErr})
		if err := d.Dispatch(context.Background(), delivery("levi@example.com")); !errors.Is(err, smtpErr) {
			t.Errorf("got %v, want wrapped send error", err)
		}
	})
}
