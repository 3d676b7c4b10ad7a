package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/MrJamesThe3rd/lipa/internal/app"
	"github.com/MrJamesThe3rd/lipa/internal/auth"
	"github.com/MrJamesThe3rd/lipa/internal/config"
	"github.com/MrJamesThe3rd/lipa/internal/database"
	"github.com/MrJamesThe3rd/lipa/internal/payment"
)

var headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				if err := database.Migrate(cmd.Context(), a.DB); err != nil {
					return err
				}

				fmt.Fprintln(cmd.OutOrStdout(), "schema applied")

				return nil
			})
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status [payment-id]",
		Short: "Show what a polling client would see for a payment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid payment id: %w", err)
			}

			return withApp(cmd.Context(), func(a *app.App) error {
				res, err := a.Payments.CheckStatus(cmd.Context(), id)
				if err != nil {
					return err
				}

				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", res.Status, res.Message)

				return nil
			})
		},
	}
}

func paymentsCmd() *cobra.Command {
	var (
		state string
		limit int
	)

	cmd := &cobra.Command{
		Use:   "payments",
		Short: "List payments",
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter := payment.ListFilter{Limit: limit}

			if state != "" {
				s := payment.State(state)
				if !s.Valid() {
					return fmt.Errorf("invalid state %q", state)
				}

				filter.State = new(s)
			}

			return withApp(cmd.Context(), func(a *app.App) error {
				txs, err := a.Payments.List(cmd.Context(), filter)
				if err != nil {
					return err
				}

				fmt.Fprintln(cmd.OutOrStdout(), paymentsTable(txs))

				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&state, "state", "s", "", "filter by state (PENDING, SUCCEEDED, FAILED, CANCELLED)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "maximum rows")

	return cmd
}

func paymentsTable(txs []*payment.Transaction) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("ID", "STATE", "AMOUNT", "PHONE", "RECEIPT", "CREATED").
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}

			return lipgloss.NewStyle().Padding(0, 1)
		})

	for _, tx := range txs {
		receipt := "-"
		if tx.ReceiptID != nil {
			receipt = *tx.ReceiptID
		}

		t.Row(tx.ID.String(), string(tx.State), tx.Amount.StringFixed(2), tx.PayerPhone, receipt,
			tx.CreatedAt.Local().Format(time.DateTime))
	}

	return t.String()
}

func reconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile [payment-id]",
		Short: "Resolve stale PENDING payments, or one payment by id",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				out := cmd.OutOrStdout()

				if len(args) == 1 {
					id, err := uuid.Parse(args[0])
					if err != nil {
						return fmt.Errorf("invalid payment id: %w", err)
					}

					outcome, err := a.Sweeper.ReconcileOne(cmd.Context(), id)
					if err != nil {
						return err
					}

					fmt.Fprintf(out, "%s\t%s\n", id, outcome)

					return nil
				}

				report, err := a.Sweeper.Sweep(cmd.Context())
				if err != nil {
					return err
				}

				fmt.Fprintf(out, "checked %d\n", report.Checked)

				outcomes := make([]string, 0, len(report.Outcomes))
				for k := range report.Outcomes {
					outcomes = append(outcomes, k)
				}

				sort.Strings(outcomes)

				for _, k := range outcomes {
					fmt.Fprintf(out, "  %-18s %d\n", k, report.Outcomes[k])
				}

				return nil
			})
		},
	}
}

func tokenCmd() *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an operator token for the admin API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			if subject == "" {
				return fmt.Errorf("--subject is required")
			}

			tok, err := auth.Issue([]byte(cfg.Auth.JWTSecret), cfg.Auth.Issuer, subject, auth.RoleOperator, ttl, time.Now())
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), tok)

			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "", "who the token is for")
	cmd.Flags().DurationVar(&ttl, "ttl", 12*time.Hour, "token lifetime")

	return cmd
}
