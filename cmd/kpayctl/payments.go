package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"kinesis-pay/internal/app"
	"kinesis-pay/internal/repository"
	"kinesis-pay/pkg/database"
)

func pollCmd() *cobra.Command {
	var seq int

	cmd := &cobra.Command{
		Use:   "poll [invoice-id]",
		Short: "Reconcile an invoice's latest payment session once",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				result, err := a.Reconciler.Poll(cmd.Context(), args[0], seq)
				if err != nil {
					return err
				}
				return printJSON(result)
			})
		},
	}

	cmd.Flags().IntVar(&seq, "seq", 0, "poll sequence number (multiples of 10 are audit logged)")

	return cmd
}

func sessionCmd() *cobra.Command {
	var paymentID string

	cmd := &cobra.Command{
		Use:   "session [invoice-id]",
		Short: "Show an invoice's latest payment session, or one by gateway payment id",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if (paymentID == "") == (len(args) == 0) {
				return errors.New("pass either an invoice id or --payment")
			}
			return withApp(cmd.Context(), func(a *app.App) error {
				if paymentID == "" {
					session, err := a.Reconciler.Session(cmd.Context(), args[0])
					if err != nil {
						return err
					}
					return printJSON(session)
				}

				session, err := a.Sessions.GetByPaymentID(cmd.Context(), paymentID)
				if err != nil {
					return err
				}
				if session == nil {
					return fmt.Errorf("no payment session %s", paymentID)
				}
				return printJSON(session)
			})
		},
	}

	cmd.Flags().StringVar(&paymentID, "payment", "", "gateway payment id")
	return cmd
}

func confirmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "confirm [invoice-id]",
		Short: "Retry gateway confirmation for a recorded but unconfirmed payment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				session, err := a.Reconciler.Reconfirm(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSON(session)
			})
		},
	}
}

func auditCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "audit [invoice-id]",
		Short: "List the audit log of an invoice",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				entries, err := a.AuditStore.ListByInvoice(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				for _, e := range entries {
					state := "open"
					if e.ProcessedAt != nil {
						state = "processed"
					}
					fmt.Printf("== %s [%s] %s (%s)\n%s\n", e.CreatedAt.Format(time.RFC3339), e.Type, e.Title, state, e.Details)
				}
				return nil
			})
		},
	}
}

func statsCmd() *cobra.Command {
	var since time.Duration

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Count transactions recorded recently",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				n, err := a.Ledger.CountTransactionsSince(cmd.Context(), time.Now().Add(-since))
				if err != nil {
					return err
				}
				fmt.Printf("%d transactions in the last %s\n", n, since)
				return nil
			})
		},
	}

	cmd.Flags().DurationVar(&since, "since", 24*time.Hour, "look-back window")

	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			db, err := database.NewPostgresDB(cmd.Context(), cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := repository.Migrate(db.DB, "postgres"); err != nil {
				return err
			}
			fmt.Println("migrations applied")
			return nil
		},
	}
}
