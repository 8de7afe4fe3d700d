// Package mail delivers generated statements by email.
package mail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gopkg.in/gomail.v2"

	"github.com/xraph/dues/plugin"
	"github.com/xraph/dues/render"
)

// ErrNoRecipient is returned for families without an email address.
var ErrNoRecipient = errors.New("mail: family has no email address")

// Compile-time interface check.
var _ plugin.StatementDispatcher = (*Dispatcher)(nil)

// Sender is the part of *gomail.Dialer the dispatcher uses.
type Sender interface {
	DialAndSend(m ...*gomail.Message) error
}

// Dispatcher emails each generated statement as an HTML document.
type Dispatcher struct {
	sender Sender
	from   string
	logger *slog.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithFrom overrides the sender address. By default the tenant's email is
// used.
func WithFrom(addr string) Option {
	return func(d *Dispatcher) { d.from = addr }
}

// WithLogger sets the logger for the dispatcher.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// New creates a Dispatcher that sends through s.
func New(s Sender, opts ...Option) *Dispatcher {
	d := &Dispatcher{sender: s, logger: slog.Default()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// NewSMTP creates a Dispatcher backed by a gomail SMTP dialer.
func NewSMTP(host string, port int, user, pass string, opts ...Option) *Dispatcher {
	return New(gomail.NewDialer(host, port, user, pass), opts...)
}

// Name implements plugin.Plugin.
func (d *Dispatcher) Name() string { return "mail-dispatcher" }

// Dispatch implements plugin.StatementDispatcher.
func (d *Dispatcher) Dispatch(ctx context.Context, del plugin.Delivery) error {
	if del.Family.Email == "" {
		return ErrNoRecipient
	}

	from := d.from
	if from == "" {
		from = del.Tenant.Email
	}

	view := render.StatementView{Tenant: del.Tenant, Family: del.Family, Statement: del.Statement}
	body, err := render.HTML(ctx, render.Statement(view))
	if err != nil {
		return fmt.Errorf("mail: render statement: %w", err)
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", from)
	msg.SetHeader("To", del.Family.Email)
	msg.SetHeader("Subject", render.Subject(view))
	msg.SetBody("text/html", body)

	if err := d.sender.DialAndSend(msg); err != nil {
		return fmt.Errorf("mail: send statement %s: %w", del.Statement.Number, err)
	}

	d.logger.DebugContext(ctx, "statement emailed",
		"statement", del.Statement.Number,
		"family_id", del.Family.ID.String(),
	)
	return nil
}
