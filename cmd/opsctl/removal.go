package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hackgods/clinical-ops-console/internal/app"
	"github.com/hackgods/clinical-ops-console/internal/appointment"
	"github.com/hackgods/clinical-ops-console/internal/db"
	"github.com/hackgods/clinical-ops-console/internal/removal"
)

func removeAccountCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remove-account <account-id>",
		Short: "Cancel future appointments of a provider or patient, then deactivate the account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "account id")
			if err != nil {
				return err
			}
			role, _ := cmd.Flags().GetString("role")
			yes, _ := cmd.Flags().GetBool("yes")

			confirm := promptConfirm(cmd.InOrStdin(), cmd.OutOrStdout())
			if yes {
				confirm = func(context.Context, removal.ConfirmationRequest) (bool, error) { return true, nil }
			}

			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				out := a.Removal.RemoveAccount(ctx, id, appointment.Role(role), confirm)
				return reportOutcome(cmd.OutOrStdout(), out)
			})
		},
	}
	cmd.Flags().String("role", "", "Role of the account: provider or patient")
	cmd.Flags().Bool("yes", false, "Confirm without prompting")
	_ = cmd.MarkFlagRequired("role")
	return cmd
}

func retryDeactivationCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "retry-deactivation <account-id>",
		Short: "Deactivate an account whose removal cancelled everything but failed to deactivate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "account id")
			if err != nil {
				return err
			}
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				return reportOutcome(cmd.OutOrStdout(), a.Removal.RetryDeactivation(ctx, id))
			})
		},
	}
}

// promptConfirm lists the affected appointments and waits for y/N.
func promptConfirm(in io.Reader, out io.Writer) removal.ConfirmFunc {
	return func(ctx context.Context, req removal.ConfirmationRequest) (bool, error) {
		fmt.Fprintf(out, "%s %q has %d future appointment(s) that will be cancelled:\n",
			req.Role, req.Account.DisplayName, req.Count())
		for _, a := range req.Affected {
			fmt.Fprintf(out, "  %s  %s %s  %s\n", a.ID, a.ScheduledDate, a.ScheduledTime, a.Status)
		}
		if len(req.Undated) > 0 {
			fmt.Fprintf(out, "%d active appointment(s) have no readable date and will be left as they are.\n", len(req.Undated))
		}
		fmt.Fprint(out, "Proceed? [y/N] ")

		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && err != io.EOF {
			return false, err
		}
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		answer := strings.ToLower(strings.TrimSpace(line))
		return answer == "y" || answer == "yes", nil
	}
}

func reportOutcome(w io.Writer, out removal.Outcome) error {
	fmt.Fprintln(w, out.Summary())
	for _, f := range out.Failed {
		fmt.Fprintf(w, "  failed %s: %v\n", f.AppointmentID, f.Err)
	}
	if len(out.Undated) > 0 {
		fmt.Fprintf(w, "  %d undated appointment(s) left untouched\n", len(out.Undated))
	}

	if out.Kind == removal.Success {
		return nil
	}
	if out.Retryable() {
		return fmt.Errorf("removal %s, safe to retry", out.Kind)
	}
	return fmt.Errorf("removal %s", out.Kind)
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the console tables if they do not exist",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				if a.Pool == nil {
					return fmt.Errorf("migrate needs STORE_BACKEND=postgres")
				}
				applied, err := db.Migrate(ctx, a.Pool)
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s).\n", len(applied))
				for _, name := range applied {
					fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", name)
				}
				return nil
			})
		},
	}
}
