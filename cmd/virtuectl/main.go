// Command virtuectl runs operator tasks against the virtuepath database:
// schema migrations, data fixups and one-shot outbox relays.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/smallbiznis/virtuepath/internal/assignment"
	"github.com/smallbiznis/virtuepath/internal/audit"
	"github.com/smallbiznis/virtuepath/internal/clock"
	"github.com/smallbiznis/virtuepath/internal/config"
	"github.com/smallbiznis/virtuepath/internal/idgen"
	"github.com/smallbiznis/virtuepath/internal/migration"
	"github.com/smallbiznis/virtuepath/internal/observability"
	"github.com/smallbiznis/virtuepath/internal/organization"
	organizationdomain "github.com/smallbiznis/virtuepath/internal/organization/domain"
	"github.com/smallbiznis/virtuepath/internal/outbox"
	"github.com/smallbiznis/virtuepath/internal/profile"
	profiledomain "github.com/smallbiznis/virtuepath/internal/profile/domain"
	"github.com/smallbiznis/virtuepath/pkg/db"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var version = "dev"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "virtuectl",
		Short: "Operate a virtuepath deployment",
		Long: `Operator tasks for virtuepath. Configuration is read from the same
environment (and .env file) as the server.

Examples:
  virtuectl migrate up
  virtuectl migrate down --steps 1
  virtuectl roles normalize --dry-run
  virtuectl orgs recount
  virtuectl outbox relay --once
  virtuectl outbox requeue
`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().DurationVar(&timeout, "timeout", 5*time.Minute, "Overall timeout for the command")

	runCtx := func() (context.Context, context.CancelFunc) {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		return ctx, func() {
			stop()
			cancel()
		}
	}

	cmd.AddCommand(migrateCmd(runCtx))
	cmd.AddCommand(rolesCmd(runCtx))
	cmd.AddCommand(orgsCmd(runCtx))
	cmd.AddCommand(outboxCmd(runCtx))
	cmd.AddCommand(versionCmd())
	return cmd
}

type contextFactory func() (context.Context, context.CancelFunc)

func migrateCmd(runCtx contextFactory) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back schema migrations",
	}

	withSQL := func(fn func(conn *gorm.DB) error) error {
		ctx, cancel := runCtx()
		defer cancel()

		var conn *gorm.DB
		return withApp(ctx, []fx.Option{fx.Populate(&conn)}, func() error {
			return fn(conn)
		})
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSQL(func(conn *gorm.DB) error {
				sqlDB, err := conn.DB()
				if err != nil {
					return err
				}
				if err := migration.RunMigrations(sqlDB); err != nil {
					return err
				}
				status, err := migration.Version(sqlDB)
				if err != nil {
					return err
				}
				return printJSON(cmd, status)
			})
		},
	})

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSQL(func(conn *gorm.DB) error {
				sqlDB, err := conn.DB()
				if err != nil {
					return err
				}
				if err := migration.Down(sqlDB, steps); err != nil {
					return err
				}
				status, err := migration.Version(sqlDB)
				if err != nil {
					return err
				}
				return printJSON(cmd, status)
			})
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "Number of migrations to roll back (0 rolls back everything)")
	cmd.AddCommand(down)

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSQL(func(conn *gorm.DB) error {
				sqlDB, err := conn.DB()
				if err != nil {
					return err
				}
				status, err := migration.Version(sqlDB)
				if err != nil {
					return err
				}
				return printJSON(cmd, status)
			})
		},
	})

	return cmd
}

func rolesCmd(runCtx contextFactory) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "roles",
		Short: "Role maintenance",
	}

	var dryRun bool
	normalize := &cobra.Command{
		Use:   "normalize",
		Short: "Rewrite legacy role names to canonical roles and clear the legacy column",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := runCtx()
			defer cancel()

			var profiles profiledomain.Service
			opts := []fx.Option{
				audit.Module,
				profile.Module,
				fx.Populate(&profiles),
			}
			return withApp(ctx, opts, func() error {
				report, err := profiles.NormalizeLegacyRoles(ctx, dryRun)
				if err != nil {
					return err
				}
				return printJSON(cmd, report)
			})
		},
	}
	normalize.Flags().BoolVar(&dryRun, "dry-run", false, "Report changes without writing them")
	cmd.AddCommand(normalize)
	return cmd
}

func orgsCmd(runCtx contextFactory) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "orgs",
		Short: "Organization maintenance",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "recount",
		Short: "Recompute active_user_count for every organization from its active members",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := runCtx()
			defer cancel()

			var organizations organizationdomain.Service
			opts := []fx.Option{
				audit.Module,
				outbox.Module,
				profile.Module,
				assignment.Module,
				organization.Module,
				fx.Populate(&organizations),
			}
			return withApp(ctx, opts, func() error {
				results, err := organizations.RecountAll(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd, results)
			})
		},
	})
	return cmd
}

func outboxCmd(runCtx contextFactory) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "outbox",
		Short: "Outbox maintenance",
	}

	var once bool
	relayCmd := &cobra.Command{
		Use:   "relay",
		Short: "Publish pending outbox events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := runCtx()
			defer cancel()

			var (
				relay *outbox.Relay
				cfg   config.Config
			)
			opts := []fx.Option{
				outbox.RelayProviders,
				fx.Populate(&relay, &cfg),
			}
			return withApp(ctx, opts, func() error {
				if !once {
					relay.Run(ctx, cfg.Outbox.PollInterval)
					return nil
				}
				total := 0
				for {
					n, err := relay.ProcessPending(ctx)
					total += n
					if err != nil {
						return err
					}
					if n == 0 {
						break
					}
				}
				return printJSON(cmd, map[string]int{"published": total})
			})
		},
	}
	relayCmd.Flags().BoolVar(&once, "once", false, "Drain pending events and exit instead of polling")
	cmd.AddCommand(relayCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "requeue",
		Short: "Return parked outbox events to the pending queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := runCtx()
			defer cancel()

			var relay *outbox.Relay
			opts := []fx.Option{
				outbox.RelayProviders,
				fx.Populate(&relay),
			}
			return withApp(ctx, opts, func() error {
				n, err := relay.RequeueParked(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd, map[string]int64{"requeued": n})
			})
		},
	})
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the virtuectl version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}

// withApp starts an fx app with the shared infrastructure plus opts, runs fn
// and stops the app.
func withApp(ctx context.Context, opts []fx.Option, fn func() error) error {
	base := []fx.Option{
		fx.NopLogger,
		config.Module,
		observability.Module,
		idgen.Module,
		db.Module,
		clock.Module,
	}
	app := fx.New(append(base, opts...)...)
	if err := app.Err(); err != nil {
		return err
	}
	if err := app.Start(ctx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = app.Stop(stopCtx)
	}()
	return fn()
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
