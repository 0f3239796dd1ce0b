package db

import (
	"errors"
	"fmt"
	"io"
	"log"
	"strconv"
)

// ErrUsage is returned by RunMigrateCommand for malformed arguments; the
// help text has already been written.
var ErrUsage = errors.New("invalid migrate command")

// RunMigrateCommand handles the 'migrate' subcommand against the database
// at dbPath, writing status output to out.
func RunMigrateCommand(args []string, dbPath string, out io.Writer) error {
	if len(args) < 1 {
		PrintMigrateHelp(out)
		return ErrUsage
	}
	action := args[0]
	if action == "help" {
		PrintMigrateHelp(out)
		return nil
	}

	needsVersion := action == "goto" || action == "force"
	if needsVersion && len(args) < 2 {
		fmt.Fprintf(out, "Usage: migrate %s <version>\n", action)
		return ErrUsage
	}

	// Open without migrating: the schema is what we are here to manage.
	database, err := OpenDB(dbPath)
	if err != nil {
		return err
	}
	defer database.Close()

	switch action {
	case "up":
		log.Printf("Running migrations...")
		if err := database.MigrateUp(); err != nil {
			return err
		}
		return printStatus(database, out)

	case "down":
		log.Printf("Rolling back one migration...")
		if err := database.MigrateDown(); err != nil {
			return err
		}
		return printStatus(database, out)

	case "status":
		return printStatus(database, out)

	case "goto":
		target, err := strconv.ParseUint(args[1], 10, 0)
		if err != nil {
			return fmt.Errorf("invalid version number %q", args[1])
		}
		if err := database.MigrateTo(uint(target)); err != nil {
			return err
		}
		return printStatus(database, out)

	case "force":
		target, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid version number %q", args[1])
		}
		log.Printf("Forcing migration version to %d without running migrations", target)
		if err := database.MigrateForce(target); err != nil {
			return err
		}
		return printStatus(database, out)

	default:
		fmt.Fprintf(out, "Unknown migrate action: %s\n\n", action)
		PrintMigrateHelp(out)
		return ErrUsage
	}
}

func printStatus(database *DB, out io.Writer) error {
	version, dirty, err := database.MigrateVersion()
	if err != nil {
		return fmt.Errorf("failed to get migration status: %w", err)
	}
	latest, err := LatestMigration()
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Current version: %d\n", version)
	fmt.Fprintf(out, "Latest available: %d\n", latest)
	fmt.Fprintf(out, "Dirty: %v\n", dirty)
	switch {
	case dirty:
		fmt.Fprintf(out, "A migration failed part way. Inspect the database, then run: migrate force <version>\n")
	case version < latest:
		fmt.Fprintf(out, "Database is %d version(s) behind. Run: migrate up\n", latest-version)
	default:
		fmt.Fprintf(out, "Database is up to date.\n")
	}
	return nil
}

// PrintMigrateHelp writes the help message for the migrate command.
func PrintMigrateHelp(out io.Writer) {
	fmt.Fprintln(out, "Database Migration Commands")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Usage: eye-server [-db path] migrate <command>")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Commands:")
	fmt.Fprintln(out, "  up              Apply all pending migrations")
	fmt.Fprintln(out, "  down            Roll back one migration")
	fmt.Fprintln(out, "  status          Show the current and latest versions")
	fmt.Fprintln(out, "  goto <N>        Migrate up or down to version N")
	fmt.Fprintln(out, "  force <N>       Mark version N as applied (recovery only)")
	fmt.Fprintln(out, "  help            Show this help message")
}
