package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/xraph/dues"
	"github.com/xraph/dues/id"
	"github.com/xraph/dues/render"
	"github.com/xraph/dues/statement"
)

// ==================== balance ====================

func newBalanceCmd(a *app) *cobra.Command {
	var (
		asOf   string
		member string
	)
	cmd := &cobra.Command{
		Use:   "balance TENANT FAMILY",
		Short: "Show a family's (or one member's) balance and transactions",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			number, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("family number: %w", err)
			}
			f, err := a.ix.Family(args[0], number)
			if err != nil {
				return err
			}

			day := a.eng.Today()
			if asOf != "" {
				if day, err = parseDay(asOf); err != nil {
					return fmt.Errorf("--as-of: %w", err)
				}
			}

			scope := f.ID
			if member != "" {
				members, err := a.eng.ListMembers(ctx, f.ID)
				if err != nil {
					return err
				}
				scope = id.Nil
				for _, m := range members {
					if m.FirstName == member {
						scope = m.ID
					}
				}
				if scope.IsNil() {
					return fmt.Errorf("family %d has no member %q: %w", f.Number, member, dues.ErrMemberNotFound)
				}
			}

			b, err := a.eng.ComputeBalance(ctx, scope, day)
			if err != nil {
				return err
			}
			return a.print(b, func(w io.Writer) {
				fmt.Fprintf(w, "%s #%d as of %s\t%s\n", f.Name, f.Number, b.AsOf.Format(dayLayout), b.Amount)
				fmt.Fprintln(w, "DATE\tKIND\tAMOUNT\tDESCRIPTION")
				for _, t := range b.Transactions {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", t.Date.Format(dayLayout), t.Kind, t.SignedAmount, t.Description)
				}
			})
		},
	}
	cmd.Flags().StringVar(&asOf, "as-of", "", "balance date (YYYY-MM-DD), defaults to today")
	cmd.Flags().StringVar(&member, "member", "", "restrict to the member with this first name")
	return cmd
}

// ==================== overdue ====================

func newOverdueCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "overdue TENANT",
		Short: "List overdue families by escalation tier",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := a.ix.Tenant(args[0])
			if err != nil {
				return err
			}
			report, err := a.eng.ClassifyOverdue(cmd.Context(), t.ID)
			if err != nil {
				return err
			}
			return a.print(report, func(w io.Writer) {
				fmt.Fprintln(w, "FAMILY\tTIER\tDAYS\tOWED\tSINCE")
				for _, c := range report.Families {
					fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
						c.FamilyID, c.Tier, c.DaysOverdue, c.Amount, c.Since.Format(dayLayout))
				}
				printFailures(w, report.Failed)
			})
		},
	}
}

// ==================== triggers ====================

func newTriggersCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "triggers",
		Short: "Lifecycle trigger commands",
	}

	var asOf string
	detect := &cobra.Command{
		Use:   "detect TENANT",
		Short: "Charge members who reached a coming-of-age milestone",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := a.ix.Tenant(args[0])
			if err != nil {
				return err
			}
			day := a.eng.Today()
			if asOf != "" {
				if day, err = parseDay(asOf); err != nil {
					return fmt.Errorf("--as-of: %w", err)
				}
			}
			run, err := a.eng.DetectLifecycleTriggers(cmd.Context(), t.ID, day)
			if err != nil {
				return err
			}
			return a.print(run, func(w io.Writer) {
				fmt.Fprintln(w, "MEMBER\tKIND\tAMOUNT\tDESCRIPTION")
				for _, c := range run.Applied {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", c.MemberID, c.Kind, c.Amount, c.Description)
				}
				for _, f := range run.Failed {
					fmt.Fprintf(w, "%s\tfailed\t\t%s\n", f.MemberID, f.Message)
				}
			})
		},
	}
	detect.Flags().StringVar(&asOf, "as-of", "", "detection date (YYYY-MM-DD), defaults to today")

	cmd.AddCommand(detect)
	return cmd
}

// ==================== statements ====================

func newStatementsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "statements",
		Short: "Monthly statement commands",
	}

	var htmlDir string
	generate := &cobra.Command{
		Use:   "generate TENANT YYYY-MM",
		Short: "Generate the month's statement for every eligible family",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			t, err := a.ix.Tenant(args[0])
			if err != nil {
				return err
			}
			period, err := parsePeriod(args[1])
			if err != nil {
				return err
			}

			run, err := a.eng.GenerateStatements(ctx, t.ID, period.Year, period.Month)
			if err != nil {
				return err
			}

			if htmlDir != "" {
				if err := os.MkdirAll(htmlDir, 0o755); err != nil {
					return err
				}
				for _, s := range run.Statements() {
					f, err := a.eng.GetFamily(ctx, s.FamilyID)
					if err != nil {
						return err
					}
					html, err := render.HTML(ctx, render.Statement(render.StatementView{Tenant: t, Family: f, Statement: s}))
					if err != nil {
						return fmt.Errorf("rendering %s: %w", s.Number, err)
					}
					path := filepath.Join(htmlDir, s.Number+".html")
					if err := os.WriteFile(path, []byte(html), 0o644); err != nil {
						return err
					}
				}
			}

			return a.print(run, func(w io.Writer) {
				printStatements(w, run.Statements())
				printFailures(w, run.Failed)
				fmt.Fprintf(w, "generated %d, skipped %d, failed %d\n",
					run.GeneratedCount(), run.SkippedCount(), len(run.Failed))
			})
		},
	}
	generate.Flags().StringVar(&htmlDir, "html", "", "write each statement as HTML into this directory")

	cmd.AddCommand(generate)
	return cmd
}

// ==================== automations ====================

func newAutomationsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "automations",
		Short: "Monthly automation pipeline commands",
	}

	var (
		tenants []string
		period  string
		manual  bool
	)
	run := &cobra.Command{
		Use:   "run",
		Short: "Run triggers, statements, dispatch and overdue escalation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := parsePeriod(period)
			if err != nil {
				return fmt.Errorf("--period: %w", err)
			}
			req := dues.AutomationRequest{Period: p, Manual: manual}
			for _, code := range tenants {
				t, err := a.ix.Tenant(code)
				if err != nil {
					return err
				}
				req.TenantIDs = append(req.TenantIDs, t.ID)
			}

			report, err := a.eng.RunMonthlyAutomations(cmd.Context(), req)
			if err != nil {
				return err
			}
			return a.print(report, func(w io.Writer) {
				fmt.Fprintf(w, "period %s\n", report.Period)
				fmt.Fprintln(w, "TENANT\tSTATUS\tTRIGGERS\tGENERATED\tSKIPPED\tDISPATCHED\tOVERDUE\tERROR")
				for _, r := range report.Runs() {
					var triggers, generated, skipped, overdue int
					if r.Triggers != nil {
						triggers = len(r.Triggers.Applied)
					}
					if r.Statements != nil {
						generated, skipped = r.Statements.GeneratedCount(), r.Statements.SkippedCount()
					}
					if r.Overdue != nil {
						overdue = len(r.Overdue.Families)
					}
					fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d\t%d\t%s\n",
						r.Code, r.Status, triggers, generated, skipped, r.Dispatched, overdue, r.Message)
				}
			})
		},
	}
	run.Flags().StringSliceVar(&tenants, "tenant", nil, "tenant codes to run (default: every tenant with automations enabled)")
	run.Flags().StringVar(&period, "period", "", "statement month (YYYY-MM), defaults to last month")
	run.Flags().BoolVar(&manual, "manual", false, "run even for tenants with automations disabled")

	cmd.AddCommand(run)
	return cmd
}

func printStatements(w io.Writer, stmts []*statement.Statement) {
	fmt.Fprintln(w, "NUMBER\tOPENING\tPAYMENTS\tDUES\tEVENTS\tWITHDRAWALS\tCLOSING")
	for _, s := range stmts {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			s.Number, s.OpeningBalance, s.Income, s.Dues, s.Events, s.Withdrawals, s.ClosingBalance)
	}
}

func printFailures(w io.Writer, failed []dues.FamilyFailure) {
	for _, f := range failed {
		fmt.Fprintf(w, "failed\t%s\t%s\n", f.FamilyID, f.Message)
	}
}
