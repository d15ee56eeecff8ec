// Command migrate manages the database schema and bootstraps the first
// master admin account.
//
// Usage:
//
//	migrate [-seeds dir] <up|down|status|seed|seed-admin>
//
// The connection string comes from CIVITEC_PG_DSN. seed-admin reads
// CIVITEC_SEED_ADMIN_EMAIL and CIVITEC_SEED_ADMIN_PASSWORD so credentials
// never land in SQL files.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"civitec.org/internal/identity"
	"civitec.org/internal/migrate"
	"civitec.org/migrations"
)

func main() {
	seedsDir := flag.String("seeds", "", "directory with idempotent seed SQL files")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: migrate [-seeds dir] <up|down|status|seed|seed-admin>")
		os.Exit(2)
	}
	cmd := flag.Arg(0)

	dsn := os.Getenv("CIVITEC_PG_DSN")
	if dsn == "" {
		fmt.Fprintln(os.Stderr, "CIVITEC_PG_DSN is required")
		os.Exit(2)
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		fatal(err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		fatal(fmt.Errorf("database unreachable: %w", err))
	}

	var files fs.FS = migrations.FS
	migrationsDir := migrations.Dir
	opts := []migrate.Option{}
	if *seedsDir != "" {
		// Seeds are operator-supplied, read from disk rather than the binary.
		files = layeredFS{embedded: migrations.FS, seeds: os.DirFS(*seedsDir)}
		opts = append(opts, migrate.WithSeedsDir(seedsLabel))
	}
	mgr := migrate.NewManager(db, files, migrationsDir, opts...)

	switch cmd {
	case "up":
		err = mgr.Up(ctx)
	case "down":
		err = mgr.Down(ctx)
	case "status":
		var applied []string
		applied, err = mgr.Status(ctx)
		if err == nil {
			if len(applied) == 0 {
				fmt.Println("no migrations applied")
			}
			for _, name := range applied {
				fmt.Println(name)
			}
		}
	case "seed":
		if *seedsDir == "" {
			err = errors.New("seed requires -seeds")
		} else {
			err = mgr.Seed(ctx)
		}
	case "seed-admin":
		err = seedAdmin(ctx, db)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", cmd)
		os.Exit(2)
	}
	if err != nil {
		fatal(err)
	}
}

// seedsLabel is the virtual directory layeredFS serves operator seeds under.
const seedsLabel = "_seeds"

// layeredFS joins the embedded migrations with an on-disk seeds directory.
type layeredFS struct {
	embedded fs.FS
	seeds    fs.FS
}

func (l layeredFS) Open(name string) (fs.File, error) {
	if rest, ok := strings.CutPrefix(name, seedsLabel+"/"); ok {
		return l.seeds.Open(rest)
	}
	if name == seedsLabel {
		return l.seeds.Open(".")
	}
	return l.embedded.Open(name)
}

func (l layeredFS) ReadDir(name string) ([]fs.DirEntry, error) {
	if name == seedsLabel {
		return fs.ReadDir(l.seeds, ".")
	}
	if rest, ok := strings.CutPrefix(name, seedsLabel+"/"); ok {
		return fs.ReadDir(l.seeds, rest)
	}
	return fs.ReadDir(l.embedded, name)
}

// seedAdmin creates or reactivates the master admin account. It is
// idempotent; rerunning resets the password to the configured value.
func seedAdmin(ctx context.Context, db *sql.DB) error {
	email := strings.ToLower(strings.TrimSpace(os.Getenv("CIVITEC_SEED_ADMIN_EMAIL")))
	password := os.Getenv("CIVITEC_SEED_ADMIN_PASSWORD")
	if email == "" || password == "" {
		return errors.New("CIVITEC_SEED_ADMIN_EMAIL and CIVITEC_SEED_ADMIN_PASSWORD are required")
	}
	if violations := (identity.DefaultPasswordPolicy{}).Validate(password); len(violations) > 0 {
		return fmt.Errorf("weak admin password: %s", strings.Join(violations, "; "))
	}

	hash, err := identity.HashPassword(password)
	if err != nil {
		return err
	}

	store := identity.NewPGStore(db)
	user, err := store.FindByEmail(ctx, email)
	switch {
	case err == nil:
		user.Role = identity.RoleMasterAdmin
		user.IsActive = true
		if err := store.Update(ctx, user); err != nil {
			return err
		}
	case errors.Is(err, identity.ErrNotFound):
		user = &identity.User{
			Email:     email,
			Username:  email,
			FirstName: "Master",
			LastName:  "Admin",
			Role:      identity.RoleMasterAdmin,
			IsActive:  true,
		}
		if err := store.Create(ctx, user); err != nil {
			return err
		}
	default:
		return err
	}

	if err := store.UpdatePassword(ctx, user.ID, hash); err != nil {
		return err
	}
	fmt.Printf("master admin ready: %s\n", email)
	return nil
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}
