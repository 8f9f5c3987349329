package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"tiffin/internal/backend"
	"tiffin/internal/core"
	"tiffin/internal/services"
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage accounts",
}

var usersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List accounts, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withBackend(cmd, func(ctx context.Context, res *backend.BackendResult) error {
			users, err := services.NewAccountService(res.Store, res.Store).ListUsers(ctx, operator)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "UID\tEMAIL\tROLE\tAPPROVED\tCREATED")
			for _, u := range users {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\n", u.UID, u.Email, u.Role, u.IsApproved, u.CreatedAt.Format("2006-01-02"))
			}
			return tw.Flush()
		})
	},
}

func approvalCmd(use, short string, approved bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <uid>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd, func(ctx context.Context, res *backend.BackendResult) error {
				if err := services.NewAccountService(res.Store, res.Store).SetApproval(ctx, operator, args[0], approved); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s approved=%t\n", args[0], approved)
				return nil
			})
		},
	}
}

var usersRoleCmd = &cobra.Command{
	Use:   "role <uid> <admin|user>",
	Short: "Change an account's role",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withBackend(cmd, func(ctx context.Context, res *backend.BackendResult) error {
			role := core.Role(args[1])
			if err := services.NewAccountService(res.Store, res.Store).SetRole(ctx, operator, args[0], role); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s role=%s\n", args[0], role)
			return nil
		})
	},
}

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "List admin alerts",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withBackend(cmd, func(ctx context.Context, res *backend.BackendResult) error {
			alerts, err := services.NewAccountService(res.Store, res.Store).Alerts(ctx, operator)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tTYPE\tUID\tEMAIL\tREAD\tCREATED")
			for _, a := range alerts {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\t%s\n", a.ID, a.Type, a.UserID, a.Email, a.Read, a.CreatedAt.Format("2006-01-02 15:04"))
			}
			return tw.Flush()
		})
	},
}

var pricingCmd = &cobra.Command{
	Use:   "pricing",
	Short: "Manage price tables",
}

var pricingShowCmd = &cobra.Command{
	Use:   "show <uid>",
	Short: "Print a user's price table",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withBackend(cmd, func(ctx context.Context, res *backend.BackendResult) error {
			prices, err := services.NewPricingService(res.Store, nil).Get(ctx, args[0])
			if err != nil {
				return err
			}
			printPrices(cmd, prices)
			return nil
		})
	},
}

var pricingResetCmd = &cobra.Command{
	Use:   "reset <uid>",
	Short: "Reset a user's price table to the defaults",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withBackend(cmd, func(ctx context.Context, res *backend.BackendResult) error {
			prices, err := services.NewPricingService(res.Store, nil).ResetFor(ctx, operator, args[0])
			if err != nil {
				return err
			}
			printPrices(cmd, prices)
			return nil
		})
	},
}

func printPrices(cmd *cobra.Command, p core.PriceTable) {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ITEM\tPRICE")
	for _, row := range []struct {
		name  string
		price core.Money
	}{
		{"fullTiffin", p.FullTiffin},
		{"halfTiffin", p.HalfTiffin},
		{"extraTiffin", p.ExtraTiffin},
		{"chapati", p.Chapati},
		{"extraChapati", p.ExtraChapati},
		{"rice", p.Rice},
		{"sabzi", p.Sabzi},
		{"curd", p.Curd},
		{"sweet", p.Sweet},
		{"breakfast", p.Breakfast},
		{"dinner", p.Dinner},
	} {
		fmt.Fprintf(tw, "%s\t%s\n", row.name, row.price.Fixed())
	}
	_ = tw.Flush()
}

func init() {
	usersCmd.AddCommand(usersListCmd)
	usersCmd.AddCommand(approvalCmd("approve", "Approve a pending account", true))
	usersCmd.AddCommand(approvalCmd("revoke", "Revoke an account's approval", false))
	usersCmd.AddCommand(usersRoleCmd)
	pricingCmd.AddCommand(pricingShowCmd)
	pricingCmd.AddCommand(pricingResetCmd)
	rootCmd.AddCommand(usersCmd, alertsCmd, pricingCmd)
}
