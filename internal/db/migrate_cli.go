package db

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strconv"
)

// ErrUsage is returned by RunMigrateCommand for malformed arguments. The
// help text has already been written when it is returned.
var ErrUsage = errors.New("migrate: usage")

// RunMigrateCommand handles the 'migrate' subcommand. It opens dbPath
// without applying migrations so a broken schema can be inspected and
// repaired.
func RunMigrateCommand(args []string, dbPath string, out io.Writer) error {
	if len(args) < 1 {
		PrintMigrateHelp(out)
		return ErrUsage
	}

	database, err := OpenDB(dbPath)
	if err != nil {
		return err
	}
	defer database.Close()

	migrations := Migrations()
	switch action := args[0]; action {
	case "up":
		if err := database.MigrateUp(migrations); err != nil {
			return err
		}
		fmt.Fprintln(out, "All migrations applied")
		return printVersion(out, database, migrations)

	case "down":
		if err := database.MigrateDown(migrations); err != nil {
			return err
		}
		fmt.Fprintln(out, "Rolled back one migration")
		return printVersion(out, database, migrations)

	case "status":
		return printVersion(out, database, migrations)

	case "force":
		if len(args) < 2 {
			fmt.Fprintln(out, "Usage: packetlink migrate force <version>")
			return ErrUsage
		}
		v, err := strconv.Atoi(args[1])
		if err != nil || v < -1 {
			return fmt.Errorf("invalid version %q", args[1])
		}
		if err := database.MigrateForce(migrations, v); err != nil {
			return err
		}
		fmt.Fprintf(out, "Forced version %d\n", v)
		return nil

	case "help":
		PrintMigrateHelp(out)
		return nil

	default:
		fmt.Fprintf(out, "Unknown migrate action: %s\n\n", action)
		PrintMigrateHelp(out)
		return ErrUsage
	}
}

func printVersion(out io.Writer, database *DB, migrations fs.FS) error {
	version, dirty, err := database.MigrateVersion(migrations)
	if err != nil {
		return fmt.Errorf("failed to get migration status: %w", err)
	}
	fmt.Fprintf(out, "Current version: %d (dirty: %v)\n", version, dirty)
	if dirty {
		fmt.Fprintln(out, "WARNING: a migration failed mid-execution; inspect the database, then run 'migrate force <version>'")
	}
	return nil
}

// PrintMigrateHelp writes the migrate subcommand usage.
func PrintMigrateHelp(out io.Writer) {
	fmt.Fprint(out, `Usage: packetlink [-db path] migrate <action>

Actions:
  up               apply all pending migrations
  down             roll back the most recent migration
  status           show the current schema version
  force <version>  set the schema version without running migrations
  help             show this help
`)
}
