package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"tiffin/internal/backend"
	"tiffin/internal/cli"
	"tiffin/internal/config"
	"tiffin/internal/core"
	applog "tiffin/internal/log"
	"tiffin/internal/session"
)

var (
	dbPath    string
	publish   bool
	logLevel  string
	logFormat string
)

// operator is the session tiffinctl acts under for admin operations.
var operator = session.Session{UserID: "tiffinctl", Role: core.RoleAdmin, Approved: true}

var rootCmd = &cobra.Command{
	Use:           "tiffinctl",
	Short:         "tiffinctl administers a tiffin database",
	Long:          "tiffinctl manages accounts, leave ranges, prices and exports directly against the tiffin SQLite database.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cli.LoadEnvFile()
		cli.SetupLogger(logLevel, logFormat, applog.ComponentCLI)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Path to SQLite database (default SQLITE_DB_PATH)")
	rootCmd.PersistentFlags().BoolVar(&publish, "publish", false, "Announce changed months to the sync worker over AMQP_URL")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format (text, json)")
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// withBackend opens the database, and the broker when --publish is set, for
// the duration of run.
func withBackend(cmd *cobra.Command, run func(context.Context, *backend.BackendResult) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := config.Load()
	bcfg := backend.Config{Type: backend.SQLiteBackend, SQLiteDBPath: resolvedDBPath()}
	if publish {
		if cfg.AMQPURL == "" {
			return fmt.Errorf("--publish needs AMQP_URL")
		}
		bcfg.AMQPURL, bcfg.AMQPExchange, bcfg.AMQPQueue = cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue
	}
	res, err := backend.NewFactory(slog.Default()).CreateBackend(ctx, bcfg)
	if err != nil {
		return err
	}
	defer res.Cleanup()
	return run(ctx, res)
}

// resolvedDBPath is --db, falling back to SQLITE_DB_PATH.
func resolvedDBPath() string {
	if path := strings.TrimSpace(dbPath); path != "" {
		return path
	}
	return config.Load().SQLiteDBPath
}

func parseMonthArgs(yearArg, monthArg string) (int, time.Month, error) {
	year, err := strconv.Atoi(strings.TrimSpace(yearArg))
	if err != nil || year < 1 || year > 9999 {
		return 0, 0, fmt.Errorf("invalid year %q", yearArg)
	}
	month, err := strconv.Atoi(strings.TrimSpace(monthArg))
	if err != nil || month < 1 || month > 12 {
		return 0, 0, fmt.Errorf("invalid month %q (expected 1-12)", monthArg)
	}
	return year, time.Month(month), nil
}

func parseDateArg(name, value string) (core.Date, error) {
	d, err := core.ParseDate(value)
	if err != nil {
		return core.Date{}, fmt.Errorf("invalid %s %q (expected YYYY-MM-DD)", name, value)
	}
	return d, nil
}
