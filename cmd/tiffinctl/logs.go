package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"tiffin/internal/backend"
	"tiffin/internal/export"
	"tiffin/internal/services"
	"tiffin/internal/storage"
)

// userLogService opens a log session as uid. The account must be approved.
func userLogService(ctx context.Context, res *backend.BackendResult, uid string) (*services.LogService, error) {
	sess, err := services.NewAccountService(res.Store, res.Store).Session(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("load account %q: %w", uid, err)
	}
	return services.NewLogService(sess, res.Store, services.NewPricingService(res.Store, nil), res.Publisher)
}

var leaveCmd = &cobra.Command{
	Use:   "leave <uid> <start> <end> [category]",
	Short: "Mark every day of a date range as leave",
	Long:  "Mark every day from start to end (inclusive, YYYY-MM-DD) as a no-tiffin leave day. Existing logs in the range are replaced.",
	Args:  cobra.RangeArgs(3, 4),
	RunE: func(cmd *cobra.Command, args []string) error {
		start, err := parseDateArg("start", args[1])
		if err != nil {
			return err
		}
		end, err := parseDateArg("end", args[2])
		if err != nil {
			return err
		}
		category := ""
		if len(args) == 4 {
			category = args[3]
		}
		return withBackend(cmd, func(ctx context.Context, res *backend.BackendResult) error {
			svc, err := userLogService(ctx, res, args[0])
			if err != nil {
				return err
			}
			if err := svc.SetBulkLeave(ctx, start, end, category); err != nil {
				return err
			}
			days := int(end.Sub(start.Time).Hours()/24) + 1
			fmt.Fprintf(cmd.OutOrStdout(), "Marked %d day(s) %s..%s as leave for %s\n", days, start, end, args[0])
			return nil
		})
	},
}

var summaryCmd = &cobra.Command{
	Use:   "summary <uid> <year> <month>",
	Short: "Print a user's monthly summary",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		year, month, err := parseMonthArgs(args[1], args[2])
		if err != nil {
			return err
		}
		return withBackend(cmd, func(ctx context.Context, res *backend.BackendResult) error {
			svc, err := userLogService(ctx, res, args[0])
			if err != nil {
				return err
			}
			s, err := svc.MonthlySummary(ctx, month, year)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %04d-%02d\n", args[0], year, int(month))
			fmt.Fprintf(out, "Total:      %s\n", s.TotalCost.Fixed())
			fmt.Fprintf(out, "Days:       %d\n", s.DaysLogged)
			fmt.Fprintf(out, "Per day:    %s (~%d)\n", s.AveragePerDay().Fixed(), s.AveragePerDay().Rounded())
			fmt.Fprintf(out, "Projected:  %s (~%d)\n", s.EstimatedMonth().Fixed(), s.EstimatedMonth().Rounded())

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "CATEGORY\tAMOUNT")
			for _, c := range s.ByCategory() {
				fmt.Fprintf(tw, "%s\t%s\n", c.Name, c.Amount.Fixed())
			}
			return tw.Flush()
		})
	},
}

var exportCmd = &cobra.Command{
	Use:   "export <uid> <year> <month>",
	Short: "Write a user's month as CSV to stdout",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		year, month, err := parseMonthArgs(args[1], args[2])
		if err != nil {
			return err
		}
		return withBackend(cmd, func(ctx context.Context, res *backend.BackendResult) error {
			svc, err := userLogService(ctx, res, args[0])
			if err != nil {
				return err
			}
			s, err := svc.MonthlySummary(ctx, month, year)
			if err != nil {
				return err
			}
			return export.WriteCSV(cmd.OutOrStdout(), s.Logs)
		})
	},
}

var dbVersionCmd = &cobra.Command{
	Use:   "db-version",
	Short: "Print the applied schema version",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withBackend(cmd, func(ctx context.Context, res *backend.BackendResult) error {
			version, dirty, err := storage.SchemaVersion(resolvedDBPath())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema version %d (dirty=%t)\n", version, dirty)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(leaveCmd, summaryCmd, exportCmd, dbVersionCmd)
}
