// main.go - admin control tool for exportsite
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"exportsite/internal"
	"exportsite/internal/analytics"
	"exportsite/internal/jobs"
	"exportsite/internal/pageviews"
	"exportsite/internal/seeder"
)

const (
	defaultShutdownTimeout = 30 * time.Second
)

// Command defines the interface for all command implementations
type Command interface {
	Name() string
	Description() string
	Execute(ctx context.Context, app *internal.Application, args []string) error
}

var commands = []Command{
	&MigrateCommand{},
	&SeedCommand{},
	&PruneCommand{},
	&SummaryCommand{out: os.Stdout},
	&StatusCommand{},
	&HelpCommand{out: os.Stdout},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer stop()

	cmdName, args := parseArgs(os.Args[1:])
	cmd := findCommand(cmdName)
	if cmd == nil {
		printUsage(os.Stdout)
		os.Exit(1)
	}

	var app *internal.Application
	if _, isHelp := cmd.(*HelpCommand); !isHelp {
		var err error
		app, err = internal.NewApp()
		if err != nil {
			log.Fatalf("Failed to initialize app: %v", err)
		}
	}

	err := cmd.Execute(ctx, app, args)

	if app != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
		if shutdownErr := app.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Printf("Warning: Cleanup error: %v", shutdownErr)
		}
		cancel()
	}

	if err != nil {
		log.Fatalf("Command %s failed: %v", cmd.Name(), err)
	}
	log.Printf("Command %s completed successfully", cmd.Name())
}

// MigrateCommand runs database migrations
type MigrateCommand struct{}

func (c *MigrateCommand) Name() string        { return "migrate" }
func (c *MigrateCommand) Description() string { return "Runs database migrations" }

func (c *MigrateCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	log.Println("Running database migrations...")
	if err := app.DBManager.MigrateDatabase(); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	log.Println("Migrations completed successfully")
	return nil
}

// SeedCommand populates the DB with sample page views
type SeedCommand struct{}

func (c *SeedCommand) Name() string        { return "seed" }
func (c *SeedCommand) Description() string { return "Seeds the database with sample page views" }

func (c *SeedCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	fs := flag.NewFlagSet("seed", flag.ContinueOnError)
	count := fs.Int("count", 10000, "number of page views to generate")
	months := fs.Int("months", 6, "spread page views over this many months")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if err := app.DBManager.MigrateDatabase(); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	written, err := seeder.NewSeeder(app.DBManager, app.Logger, *count, *months).Run(ctx)
	log.Printf("Seeded %d page views", written)
	return err
}

// PruneCommand deletes old page views once, regardless of the configured
// retention.
type PruneCommand struct{}

func (c *PruneCommand) Name() string        { return "prune" }
func (c *PruneCommand) Description() string { return "Deletes page views older than -days" }

func (c *PruneCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	fs := flag.NewFlagSet("prune", flag.ContinueOnError)
	days := fs.Int("days", app.Config.RetentionDays, "delete page views older than this many days")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *days <= 0 {
		return fmt.Errorf("days must be positive")
	}

	return jobs.NewRetentionJob(app.DBManager, app.Logger, *days).Run(ctx)
}

// SummaryCommand prints the dashboard summary as JSON
type SummaryCommand struct {
	out io.Writer
}

func (c *SummaryCommand) Name() string        { return "summary" }
func (c *SummaryCommand) Description() string { return "Prints the analytics summary as JSON" }

func (c *SummaryCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	fs := flag.NewFlagSet("summary", flag.ContinueOnError)
	days := fs.Int("days", analytics.DefaultDays, "window size in days")
	months := fs.Int("months", analytics.DefaultMonths, "months in the monthly trend")
	limit := fs.Int("limit", analytics.DefaultLimit, "rows per top-N list")
	resource := fs.String("resource", "product", "resource type for top resources")
	includeLocal := fs.Bool("include-local", false, "count Local visits in the country breakdown")
	if err := fs.Parse(args); err != nil {
		return err
	}

	params := analytics.NewQueryParams(time.Now(), *days)
	params.Months = *months
	params.Limit = *limit
	params.ResourceType = *resource
	params.IncludeLocal = *includeLocal

	db := app.DBManager.GetConnection()
	namer := analytics.NewTableResourceNamer(db, app.Config.ResourceTables)
	summary, err := analytics.GetSummary(ctx, db, params, namer)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(summary)
}

// StatusCommand reports storage statistics
type StatusCommand struct{}

func (c *StatusCommand) Name() string        { return "status" }
func (c *StatusCommand) Description() string { return "Shows the current system status" }

func (c *StatusCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	db := app.DBManager.GetConnection().WithContext(ctx)

	var count int64
	if err := db.Model(&pageviews.PageView{}).Count(&count).Error; err != nil {
		return fmt.Errorf("database error: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get SQL DB: %w", err)
	}
	stats := sqlDB.Stats()

	log.Println("System Status:")
	log.Printf("- Database: %s (connected)", app.Config.DatabaseType)
	log.Printf("- Page views: %d", count)
	log.Printf("- Geo provider: %s", app.Config.GeoProvider)
	log.Printf("- Retention days: %d", app.Config.RetentionDays)
	log.Printf("- Max Open Connections: %d", stats.MaxOpenConnections)
	log.Printf("- Open Connections: %d", stats.OpenConnections)
	return nil
}

// HelpCommand implements a command to show usage information
type HelpCommand struct {
	out io.Writer
}

func (c *HelpCommand) Name() string        { return "help" }
func (c *HelpCommand) Description() string { return "Shows usage information" }

func (c *HelpCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	printUsage(c.out)
	return nil
}

func parseArgs(args []string) (string, []string) {
	if len(args) == 0 {
		return "help", nil
	}
	return args[0], args[1:]
}

func findCommand(name string) Command {
	for _, cmd := range commands {
		if cmd.Name() == name {
			return cmd
		}
	}
	return nil
}

func printUsage(out io.Writer) {
	fmt.Fprintln(out, "Usage: exportctl [command] [args...]")
	fmt.Fprintln(out, "Available commands:")
	for _, cmd := range commands {
		fmt.Fprintf(out, "  %s: %s\n", cmd.Name(), cmd.Description())
	}
}
