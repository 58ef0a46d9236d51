package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/hackgods/clinical-ops-console/internal/app"
	"github.com/hackgods/clinical-ops-console/internal/appointment"
	"github.com/hackgods/clinical-ops-console/internal/directory"
)

func bucketsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "buckets",
		Short: "Show today, upcoming, past and cancelled appointments",
		RunE: func(cmd *cobra.Command, args []string) error {
			providerRaw, _ := cmd.Flags().GetString("provider")
			patientRaw, _ := cmd.Flags().GetString("patient")
			view, _ := cmd.Flags().GetString("view")

			var filter appointment.AppointmentFilter
			if providerRaw != "" {
				id, err := parseID(providerRaw, "--provider")
				if err != nil {
					return err
				}
				filter.ProviderID = id
			}
			if patientRaw != "" {
				id, err := parseID(patientRaw, "--patient")
				if err != nil {
					return err
				}
				filter.PatientID = id
			}
			if view != "" {
				if _, ok := (appointment.Buckets{}).View(appointment.View(view)); !ok {
					return fmt.Errorf("unknown view %q", view)
				}
			}

			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				b, err := a.Service.Buckets(ctx, filter)
				if err != nil {
					return err
				}
				return printBuckets(ctx, cmd.OutOrStdout(), a.Directory, b, appointment.View(view))
			})
		},
	}
	cmd.Flags().String("provider", "", "Only appointments of this provider")
	cmd.Flags().String("patient", "", "Only appointments of this patient")
	cmd.Flags().String("view", "", "Print a single view: today, upcoming, past, cancelled, undated")
	return cmd
}

type section struct {
	view  appointment.View
	items []appointment.Appointment
}

// printBuckets writes the overview. Past already ends with the undated
// appointments; asking for the undated view prints only those.
func printBuckets(ctx context.Context, out io.Writer, dir *directory.Directory, b appointment.Buckets, only appointment.View) error {
	fmt.Fprintf(out, "Reference date: %s\n", b.Reference.Format(appointment.DateLayout))

	sections := []section{
		{appointment.ViewToday, b.Today},
		{appointment.ViewUpcoming, b.Upcoming},
		{appointment.ViewPast, b.PastView()},
		{appointment.ViewCancelled, b.Cancelled},
	}
	if only == appointment.ViewUndated {
		sections = []section{{appointment.ViewUndated, b.Undated}}
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, s := range sections {
		if only != "" && only != s.view {
			continue
		}
		fmt.Fprintf(tw, "\n%s (%d)\n", s.view, len(s.items))
		for _, a := range s.items {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
				a.ID, a.ScheduledDate, a.ScheduledTime, a.Status,
				dir.Label(ctx, a.ProviderID, appointment.RoleProvider),
				dir.Label(ctx, a.PatientID, appointment.RolePatient))
		}
	}
	return tw.Flush()
}

func confirmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "confirm <appointment-id>",
		Short: "Confirm a scheduled appointment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return transition(cmd, args[0], func(ctx context.Context, a *app.App, id uuid.UUID) (*appointment.Appointment, error) {
				return a.Service.Confirm(ctx, id)
			})
		},
	}
}

func cancelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cancel <appointment-id>",
		Short: "Cancel a scheduled or confirmed appointment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reason, _ := cmd.Flags().GetString("reason")
			return transition(cmd, args[0], func(ctx context.Context, a *app.App, id uuid.UUID) (*appointment.Appointment, error) {
				return a.Service.Cancel(ctx, id, reason)
			})
		},
	}
	cmd.Flags().String("reason", "", "Cancellation reason (default \""+appointment.DefaultCancellationReason+"\")")
	return cmd
}

func completeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "complete <appointment-id>",
		Short: "Mark a confirmed appointment as completed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return transition(cmd, args[0], func(ctx context.Context, a *app.App, id uuid.UUID) (*appointment.Appointment, error) {
				return a.Service.Complete(ctx, id)
			})
		},
	}
}

func rescheduleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reschedule <appointment-id>",
		Short: "Move an appointment to a new date and time",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			date, _ := cmd.Flags().GetString("date")
			clock, _ := cmd.Flags().GetString("time")
			return transition(cmd, args[0], func(ctx context.Context, a *app.App, id uuid.UUID) (*appointment.Appointment, error) {
				return a.Service.Reschedule(ctx, id, date, clock)
			})
		},
	}
	cmd.Flags().String("date", "", "New date, YYYY-MM-DD")
	cmd.Flags().String("time", "", "New time, e.g. 14:30")
	_ = cmd.MarkFlagRequired("date")
	_ = cmd.MarkFlagRequired("time")
	return cmd
}

func transition(cmd *cobra.Command, rawID string, apply func(ctx context.Context, a *app.App, id uuid.UUID) (*appointment.Appointment, error)) error {
	id, err := parseID(rawID, "appointment id")
	if err != nil {
		return err
	}

	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		updated, err := apply(ctx, a, id)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s on %s %s", updated.ID, updated.Status, updated.ScheduledDate, updated.ScheduledTime)
		if updated.CancellationReason != "" {
			fmt.Fprintf(cmd.OutOrStdout(), " (%s)", updated.CancellationReason)
		}
		fmt.Fprintln(cmd.OutOrStdout())
		return nil
	})
}
