// main.go - Admin control tool for Vitrine
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"
	"gorm.io/gorm"

	"vitrine/internal"
	"vitrine/internal/auth"
	"vitrine/internal/collector"
	"vitrine/internal/config"
	"vitrine/internal/database"
	"vitrine/internal/pkg/geolocation"
	"vitrine/internal/profiles"
	"vitrine/internal/seeder"
	"vitrine/internal/validation"
)

const (
	defaultShutdownTimeout = 30 * time.Second
	minPasswordLength      = 8
)

// Command defines the interface for all command implementations
type Command interface {
	// Name returns the command name
	Name() string
	// Description returns the command description
	Description() string
	// Execute runs the command with the given app and args
	Execute(ctx context.Context, app *internal.Application, args []string) error
}

// The set of available commands
var commands = []Command{
	&CreateAdminProfileCommand{},
	&IssueTokenCommand{},
	&MigrateCommand{},
	&SeedCommand{},
	&StatusCommand{},
	&TrackCommand{},
	&HelpCommand{},
}

func main() {
	flag.Parse()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sig := <-sigChan
		log.Printf("Received signal: %v, initiating cleanup...", sig)
		cancel()
	}()

	cmdName, args := parseArgs(os.Args[1:])

	cmd := findCommand(cmdName)
	if cmd == nil {
		showUsageAndExit()
	}

	app, err := internal.NewApp()
	if err != nil {
		log.Printf("Warning: Failed to initialize app: %v", err)
		log.Println("Proceeding with limited functionality...")
	}

	err = cmd.Execute(ctx, app, args)

	if app != nil {
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), defaultShutdownTimeout)
		if shutdownErr := app.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Printf("Warning: Cleanup error: %v", shutdownErr)
		}
		cancelShutdown()
	}

	if err != nil {
		log.Fatalf("Command failed: %v", err)
	}
	log.Printf("Command %s completed successfully", cmd.Name())
}

// CreateAdminProfileCommand creates a profile allowed to read analytics.
type CreateAdminProfileCommand struct{}

func (c *CreateAdminProfileCommand) Name() string { return "create-admin-profile" }

func (c *CreateAdminProfileCommand) Description() string {
	return "Creates an admin profile (password is prompted)"
}

func (c *CreateAdminProfileCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	fs := flag.NewFlagSet(c.Name(), flag.ContinueOnError)
	role := fs.String("role", profiles.RoleAdmin, "profile role: admin, editor or viewer")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("usage: %s [-role admin] <email>", c.Name())
	}
	email := strings.TrimSpace(fs.Arg(0))
	if err := validateEmail(email); err != nil {
		return err
	}

	if app == nil {
		return fmt.Errorf("app initialization failed, cannot connect to database")
	}

	password, err := promptPassword()
	if err != nil {
		return err
	}

	db := app.DBManager.GetConnection()
	profile, err := profiles.Create(ctx, db, slog.Default(), email, password, *role)
	if errors.Is(err, profiles.ErrProfileExists) {
		log.Printf("Profile %s already exists", email)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to create profile: %w", err)
	}

	fmt.Printf("Created %s profile %s (id %d)\n", profile.Role, profile.Email, profile.ID)
	return nil
}

// promptPassword reads a password and its confirmation. Without a terminal
// on stdin the first line is taken as the password.
func promptPassword() (string, error) {
	fd := int(syscall.Stdin)
	if !term.IsTerminal(fd) {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		password := strings.TrimSpace(line)
		return password, validatePassword(password)
	}

	for {
		fmt.Printf("Enter password (minimum %d characters): ", minPasswordLength)
		passBytes, err := term.ReadPassword(fd)
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Println()

		password := strings.TrimSpace(string(passBytes))
		if err := validatePassword(password); err != nil {
			fmt.Printf("Error: %v\n", err)
			continue
		}

		fmt.Print("Confirm password: ")
		confirmBytes, err := term.ReadPassword(fd)
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Println()

		if password != strings.TrimSpace(string(confirmBytes)) {
			fmt.Println("Error: Passwords do not match. Please try again.")
			continue
		}
		return password, nil
	}
}

// IssueTokenCommand prints a bearer token for an existing profile.
type IssueTokenCommand struct{}

func (c *IssueTokenCommand) Name() string        { return "issue-token" }
func (c *IssueTokenCommand) Description() string { return "Prints a bearer token for a profile" }

func (c *IssueTokenCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: %s <email>", c.Name())
	}
	if app == nil {
		return fmt.Errorf("app initialization failed, cannot connect to database")
	}

	profile, err := profiles.FindByEmail(ctx, app.DBManager.GetConnection(), args[0])
	if err != nil {
		return fmt.Errorf("profile lookup failed: %w", err)
	}

	cfg := config.GetConfig()
	token, expiresAt, err := auth.NewTokenManager(cfg.JWTSecret, cfg.TokenTTL(), cfg.TokenIssuer).Issue(profile.ID, profile.Email)
	if err != nil {
		return fmt.Errorf("failed to issue token: %w", err)
	}

	if !profile.IsAdmin() {
		log.Printf("Warning: %s has role %s and cannot read analytics", profile.Email, profile.Role)
	}
	fmt.Println(token)
	log.Printf("Token expires at %s", expiresAt.Format(time.RFC3339))
	return nil
}

// MigrateCommand runs database migrations
type MigrateCommand struct{}

func (c *MigrateCommand) Name() string        { return "migrate" }
func (c *MigrateCommand) Description() string { return "Runs database migrations" }

func (c *MigrateCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	if app == nil {
		return fmt.Errorf("app initialization failed, cannot run migrations")
	}

	log.Println("Running database migrations...")
	if err := app.DBManager.MigrateDatabase(); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	log.Println("Migrations completed successfully")
	return nil
}

// SeedCommand populates the DB with synthetic visits and leads
type SeedCommand struct{}

func (c *SeedCommand) Name() string        { return "seed" }
func (c *SeedCommand) Description() string { return "Seeds the database with sample visits and leads" }

func (c *SeedCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	fs := flag.NewFlagSet(c.Name(), flag.ContinueOnError)
	visits := fs.Int("visits", 500, "number of visits to simulate")
	days := fs.Int("days", 30, "spread visits over this many days")
	seed := fs.Uint64("seed", 0, "random seed (0 picks one)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if app == nil {
		return fmt.Errorf("unable to initialise app")
	}

	cfg := config.GetConfig()
	se := seeder.NewSeeder(app.DBManager, slog.Default(), *visits)
	se.Days = *days
	se.BounceMode = cfg.BounceMode
	if *seed != 0 {
		se.WithSeed(*seed)
	}
	return se.Run(ctx)
}

// StatusCommand implements a command to check the system status
type StatusCommand struct{}

func (c *StatusCommand) Name() string        { return "status" }
func (c *StatusCommand) Description() string { return "Shows row counts and connection stats" }

func (c *StatusCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	if app == nil {
		return fmt.Errorf("cannot check status: app initialization failed")
	}

	db := app.DBManager.GetConnection().WithContext(ctx)

	log.Println("System Status:")
	log.Println("- Database: Connected")
	for _, model := range database.Models() {
		table, err := tableName(db, model)
		if err != nil {
			return err
		}
		var count int64
		if err := db.Model(model).Count(&count).Error; err != nil {
			return fmt.Errorf("database error on %s: %w", table, err)
		}
		log.Printf("- %s: %d", table, count)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get SQL DB: %w", err)
	}

	stats := sqlDB.Stats()
	log.Printf("- Max Open Connections: %d", stats.MaxOpenConnections)
	log.Printf("- Open Connections: %d", stats.OpenConnections)
	log.Printf("- In Use: %d", stats.InUse)
	log.Printf("- Idle: %d", stats.Idle)

	return nil
}

func tableName(db *gorm.DB, model any) (string, error) {
	stmt := &gorm.Statement{DB: db}
	if err := stmt.Parse(model); err != nil {
		return "", fmt.Errorf("failed to parse model: %w", err)
	}
	return stmt.Schema.Table, nil
}

// TrackCommand sends one page view to a running server the way a browser
// would, keeping visitor and session state in a file between runs.
type TrackCommand struct{}

func (c *TrackCommand) Name() string { return "track" }

func (c *TrackCommand) Description() string {
	return "Sends a simulated page view to a running server"
}

func (c *TrackCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	cfg := config.GetConfig()

	fs := flag.NewFlagSet(c.Name(), flag.ContinueOnError)
	server := fs.String("server", "http://localhost:"+cfg.GetPort(), "server base URL")
	pageURL := fs.String("url", "https://www.example.nl/", "page URL")
	title := fs.String("title", "", "page title")
	referrer := fs.String("referrer", "", "document referrer")
	userAgent := fs.String("ua", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36", "user agent")
	ip := fs.String("ip", "", "visitor IP (empty lets the server use the request address)")
	state := fs.String("state", ".vitrine-tracker.json", "file keeping visitor and session state")
	exit := fs.Bool("exit", false, "also record the page exit")
	timeout := fs.Duration("timeout", 10*time.Second, "request timeout")
	if err := fs.Parse(args); err != nil {
		return err
	}

	storage, err := collector.NewFileStorage(*state)
	if err != nil {
		return err
	}
	_, seen := storage.Get(collector.Session, collector.KeySessionPageViews)

	logger := slog.Default()
	tracker, err := collector.New(collector.Options{
		Storage: storage,
		Sink:    collector.NewHTTPSink(*server, *userAgent, *timeout),
		Locator: geolocation.NewChainFromConfig(cfg, logger),
		Logger:  logger,
		Environment: collector.Environment{
			URL:       *pageURL,
			Title:     *title,
			Referrer:  *referrer,
			UserAgent: *userAgent,
			IP:        *ip,
		},
	})
	if err != nil {
		return err
	}

	tracker.TrackPageView(ctx, !seen)
	if *exit {
		tracker.TrackExit(ctx)
	}
	tracker.Close()

	fmt.Printf("visitor %s session %s\n", tracker.VisitorID(), tracker.SessionID())
	return nil
}

// HelpCommand implements a command to show usage information
type HelpCommand struct{}

func (c *HelpCommand) Name() string        { return "help" }
func (c *HelpCommand) Description() string { return "Shows usage information" }

func (c *HelpCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	printUsage()
	return nil
}

func validateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("email cannot be empty")
	}
	if err := validation.GetValidator().Var(email, "email,max=254"); err != nil {
		return fmt.Errorf("invalid email format")
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < minPasswordLength {
		return fmt.Errorf("password must be at least %d characters", minPasswordLength)
	}
	return nil
}

// parseArgs splits the command name from its arguments
func parseArgs(args []string) (string, []string) {
	if len(args) == 0 {
		return "help", []string{}
	}
	return args[0], args[1:]
}

// findCommand finds a command by name
func findCommand(name string) Command {
	for _, cmd := range commands {
		if cmd.Name() == name {
			return cmd
		}
	}
	return nil
}

func printUsage() {
	fmt.Println("Usage: vitrinectl [command] [args...]")
	fmt.Println("Available commands:")

	for _, cmd := range commands {
		fmt.Printf("  %s: %s\n", cmd.Name(), cmd.Description())
	}
}

// showUsageAndExit shows usage information and exits
func showUsageAndExit() {
	printUsage()
	os.Exit(1)
}
