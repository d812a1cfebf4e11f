package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"syscall"
	"time"

	"golang.org/x/term"

	cfnats "github.com/Strob0t/CareForge/internal/adapter/nats"
	"github.com/Strob0t/CareForge/internal/adapter/postgres"
	"github.com/Strob0t/CareForge/internal/config"
	"github.com/Strob0t/CareForge/internal/domain/role"
	"github.com/Strob0t/CareForge/internal/domain/user"
	"github.com/Strob0t/CareForge/internal/service"
)

const adminTimeout = 30 * time.Second

// runAdmin dispatches admin subcommands.
func runAdmin(args []string) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "--help" {
		printAdminHelp()
		return nil
	}

	switch args[0] {
	case "migrate":
		return runAdminMigrate(args[1:])
	case "rollback":
		return runAdminRollback(args[1:])
	case "version":
		return runAdminVersion(args[1:])
	case "create-user":
		return runAdminCreateUser(args[1:])
	case "check":
		return runAdminCheck(args[1:])
	default:
		printAdminHelp()
		return fmt.Errorf("unknown admin command: %s", args[0])
	}
}

func printAdminHelp() {
	fmt.Fprintf(os.Stderr, `Usage: careforge admin <command> [options]

Commands:
  migrate       Apply pending database migrations
  rollback      Roll back database migrations
  version       Print the current migration version
  create-user   Create a new user
  check         Validate the configuration and reach PostgreSQL and NATS
  help          Show this help message

Every command accepts --config <path> (default careforge.yaml).

Examples:
  careforge admin migrate
  careforge admin rollback --steps 2
  careforge admin create-user --email pharm@example.com --name "Pat Doe" --role pharmacist
  careforge admin check --config /etc/careforge.yaml
`)
}

// adminFlags returns a flag set carrying the shared --config flag.
func adminFlags(name string) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	path := fs.String("config", config.DefaultConfigFile, "path to YAML config file")
	return fs, path
}

func runAdminMigrate(args []string) error {
	fs, path := adminFlags("migrate")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := config.LoadFrom(*path)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), adminTimeout)
	defer cancel()
	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	v, err := postgres.MigrationVersion(ctx, cfg.Postgres.DSN)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Migrations applied, version %d\n", v)
	return nil
}

func runAdminRollback(args []string) error {
	fs, path := adminFlags("rollback")
	steps := fs.Int("steps", 1, "number of migrations to roll back")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *steps < 1 {
		return errors.New("--steps must be at least 1")
	}
	cfg, err := config.LoadFrom(*path)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), adminTimeout)
	defer cancel()
	if err := postgres.RollbackMigrations(ctx, cfg.Postgres.DSN, *steps); err != nil {
		return fmt.Errorf("rollback: %w", err)
	}
	v, err := postgres.MigrationVersion(ctx, cfg.Postgres.DSN)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Rolled back %d migration(s), version %d\n", *steps, v)
	return nil
}

func runAdminVersion(args []string) error {
	fs, path := adminFlags("version")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := config.LoadFrom(*path)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), adminTimeout)
	defer cancel()
	v, err := postgres.MigrationVersion(ctx, cfg.Postgres.DSN)
	if err != nil {
		return err
	}
	fmt.Printf("careforge %s, schema version %d\n", version, v)
	return nil
}

func runAdminCreateUser(args []string) error {
	fs, path := adminFlags("create-user")
	email := fs.String("email", "", "user email address (required)")
	name := fs.String("name", "", "user display name (required)")
	password := fs.String("password", "", "password (prompted if not provided)") //nolint:gosec // CLI flag
	roleName := fs.String("role", role.Viewer, "role to assign")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *email == "" {
		return errors.New("--email is required")
	}
	if *name == "" {
		return errors.New("--name is required")
	}

	pass := *password
	if pass == "" {
		var err error
		pass, err = promptPassword("Password: ")
		if err != nil {
			return fmt.Errorf("read password: %w", err)
		}
		confirm, err := promptPassword("Confirm password: ")
		if err != nil {
			return fmt.Errorf("read password: %w", err)
		}
		if pass != confirm {
			return errors.New("passwords do not match")
		}
	}

	cfg, err := config.LoadFrom(*path)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), adminTimeout)
	defer cancel()

	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()

	identity, err := service.NewIdentityService(postgres.NewStore(pool), cfg.Auth.BcryptCost, nil)
	if err != nil {
		return err
	}
	res := identity.CreateUser(ctx, user.CreateRequest{
		Email:    *email,
		Name:     *name,
		Password: pass,
		Role:     *roleName,
	})
	if res.IsFailure() {
		return fmt.Errorf("create user: %w", res.Err())
	}

	u := res.Value()
	fmt.Fprintf(os.Stderr, "User created: %s (id=%s, role=%s)\n", u.Email, u.ID, u.Role)
	return nil
}

func runAdminCheck(args []string) error {
	fs, path := adminFlags("check")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := config.LoadFrom(*path)
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stderr, "config: ok")

	ctx, cancel := context.WithTimeout(context.Background(), adminTimeout)
	defer cancel()

	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	v, err := postgres.MigrationVersion(ctx, cfg.Postgres.DSN)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	fmt.Fprintf(os.Stderr, "postgres: ok (schema version %d)\n", v)

	queue, err := cfnats.Connect(ctx, cfg.NATS.URL, cfg.NATS.Stream)
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	defer func() { _ = queue.Close() }()
	fmt.Fprintf(os.Stderr, "nats: ok (stream %s)\n", cfg.NATS.Stream)
	return nil
}

// promptPassword reads a password from the terminal without echoing.
func promptPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(int(syscall.Stdin)) //nolint:unconvert // int conversion needed on some platforms
	fmt.Fprintln(os.Stderr)                         // newline after password input
	if err != nil {
		return "", err
	}
	return string(b), nil
}
