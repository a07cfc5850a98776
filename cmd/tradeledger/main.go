package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/shaurya/tradeledger/db"
	"github.com/shaurya/tradeledger/events"
	"github.com/shaurya/tradeledger/framework"
	"github.com/shaurya/tradeledger/portal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var rootCmd = &cobra.Command{
	Use:          "tradeledger",
	Short:        "TradeLedger letter of credit portal",
	Long:         `TradeLedger runs the letter of credit portal: importer and exporter banks, exporters and customs working one LC ledger.`,
	SilenceUsage: true,
}

func main() {
	// Runtime
	rootCmd.AddCommand(serverCmd())
	rootCmd.AddCommand(workerCmd())

	// Database
	rootCmd.AddCommand(dbCmd())

	// Introspection
	rootCmd.AddCommand(routesCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// --- Server ---

func serverCmd() *cobra.Command {
	var port int
	var env string
	var withWorker bool
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Start the portal HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if env != "" {
				os.Setenv("APP_ENV", env)
			}
			app := framework.New()
			if port != 0 {
				app.Config.App.Port = port
			}
			p, err := portal.Build(app)
			if err != nil {
				return err
			}

			if withWorker {
				w := p.EventWorker()
				if w == nil {
					return errors.New("--with-worker needs redis.url")
				}
				if err := w.Start(); err != nil {
					return fmt.Errorf("start event worker: %w", err)
				}
				app.OnShutdown(func(context.Context) error {
					w.Shutdown()
					return nil
				})
			}
			return app.Run()
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 0, "Port to listen on")
	cmd.Flags().StringVarP(&env, "env", "e", "", "Environment (development, production, test)")
	cmd.Flags().BoolVar(&withWorker, "with-worker", false, "Also process ledger events in this process")
	return cmd
}

// --- Worker ---

func workerCmd() *cobra.Command {
	var concurrency int
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Process ledger events from the event queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := framework.New()
			if concurrency > 0 {
				app.Config.Queue.EventConcurrency = concurrency
			}
			if err := app.Boot(); err != nil {
				return err
			}
			defer shutdown(app)
			if app.Redis == nil {
				return errors.New("worker needs redis.url")
			}

			w := events.NewWorker(app.Redis, app.Config.Queue, app.Log.Named("worker"))
			w.Handle(events.TaskType, events.HandleEvent(events.NewProcessor(app.DB, app.Cache, app.Log.Named("events"))))
			app.Log.Info("Event worker ready",
				zap.String("queue", app.Config.Queue.EventQueue),
				zap.Int("concurrency", app.Config.Queue.EventConcurrency),
			)
			return w.Run()
		},
	}
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "Number of events handled at once")
	return cmd
}

// --- Database ---

func openDB() (*gorm.DB, error) {
	cfg, err := framework.LoadConfig()
	if err != nil {
		return nil, err
	}
	database, err := db.Open(cfg.Database)
	if err != nil {
		return nil, err
	}
	if database == nil {
		return nil, errors.New("database.driver is not configured")
	}
	return database, nil
}

func dbCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database management commands",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Run pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			database, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close(database)
			if err := db.Migrate(database); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Println("[TradeLedger] Migrations complete")
			return nil
		},
	})

	var steps int
	rollbackCmd := &cobra.Command{
		Use:   "rollback",
		Short: "Rollback migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			database, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close(database)
			if err := db.Rollback(database, steps); err != nil {
				return fmt.Errorf("rollback failed: %w", err)
			}
			fmt.Printf("[TradeLedger] Rolled back %d migration(s)\n", steps)
			return nil
		},
	}
	rollbackCmd.Flags().IntVar(&steps, "steps", 1, "Number of migrations to roll back")
	cmd.AddCommand(rollbackCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Print migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			database, err := openDB()
			if err != nil {
				return err
			}
			defer db.Close(database)
			if err := db.MigrationStatus(database); err != nil {
				return err
			}
			version, err := db.CurrentVersion(database)
			if err != nil {
				return err
			}
			fmt.Printf("[TradeLedger] Current version: %d\n", version)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "new [name]",
		Short: "Create an empty migration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := framework.LoadConfig()
			if err != nil {
				return err
			}
			dialect := "postgres"
			if cfg.Database.Driver == "sqlite" {
				dialect = "sqlite3"
			}
			file, err := db.NewMigration("db/migrations/"+dialect, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("[TradeLedger] Created %s\n", file)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "create",
		Short: "Create the PostgreSQL database",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := framework.LoadConfig()
			if err != nil {
				return err
			}
			d := cfg.Database
			return db.CreateDB(d.Name, d.Host, d.Port, d.User, d.Password, d.SSLMode)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "drop",
		Short: "Drop the PostgreSQL database",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := framework.LoadConfig()
			if err != nil {
				return err
			}
			d := cfg.Database
			return db.DropDB(d.Name, d.Host, d.Port, d.User, d.Password, d.SSLMode)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "seed",
		Short: "Create the demo LCs (development only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return db.OnlyIn("development", func() error {
				app := framework.New()
				p, err := portal.Build(app)
				if err != nil {
					return err
				}
				defer shutdown(app)

				ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
				defer cancel()
				seed := func() error {
					n, err := p.SeedDemo(ctx)
					if err == nil {
						fmt.Printf("[TradeLedger] Seeded %d LC(s)\n", n)
					}
					return err
				}
				if app.DB == nil {
					return seed()
				}
				ran, err := db.Once(app.DB, "demo_lcs", seed)
				if err == nil && !ran {
					fmt.Println("[TradeLedger] Demo LCs already seeded")
				}
				return err
			})
		},
	})

	return cmd
}

// --- Routes ---

func routesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "routes",
		Short: "Print all registered routes",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := framework.New()
			if _, err := portal.Build(app); err != nil {
				return err
			}
			defer shutdown(app)
			fmt.Println(app.Router.Inspect())
			return nil
		},
	}
}

// --- Version ---

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the TradeLedger version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("TradeLedger " + framework.Version)
		},
	}
}

func shutdown(app *framework.App) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.Shutdown(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "shutdown: %v\n", err)
	}
}
