// Package render turns statements into HTML documents.
//
// The document is a templ component (statement.templ; regenerate
// statement_templ.go with `templ generate`), so callers can compose it into
// larger templ layouts or render it standalone with HTML.
package render

//go:generate templ generate

import (
	"bytes"
	"context"
	"fmt"

	"github.com/a-h/templ"

	"github.com/xraph/dues/family"
	"github.com/xraph/dues/statement"
	"github.com/xraph/dues/tenant"
)

const dateLayout = "02 Jan 2006"

// StatementView is everything the statement document shows.
type StatementView struct {
	Tenant    *tenant.Tenant
	Family    *family.Family
	Statement *statement.Statement
}

// Subject is the one-line title used for emails and message headers.
func Subject(v StatementView) string {
	return fmt.Sprintf("%s statement %s for %s",
		v.Tenant.Name, v.Statement.Number, periodLabel(v.Statement))
}

// HTML renders c into a string.
func HTML(ctx context.Context, c templ.Component) (string, error) {
	var buf bytes.Buffer
	if err := c.Render(ctx, &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func periodLabel(s *statement.Statement) string {
	return s.PeriodStart.Format("January 2006")
}
