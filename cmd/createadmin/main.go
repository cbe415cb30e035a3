// Command createadmin creates a SUPERADMIN account, or promotes an existing
// one, directly against the database.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"golang.org/x/term"

	"github.com/hongminglow/expense-be/internal/apperr"
	"github.com/hongminglow/expense-be/internal/auth"
	"github.com/hongminglow/expense-be/internal/models"
	"github.com/hongminglow/expense-be/internal/storage"
	"github.com/hongminglow/expense-be/internal/storage/postgres"
)

type adminStore interface {
	storage.UserStore
	storage.RoleStore
}

// openStore is swapped out by tests.
var openStore = func(ctx context.Context, url string) (adminStore, func(), error) {
	s, err := postgres.NewStore(ctx, url)
	if err != nil {
		return nil, nil, err
	}
	return s, s.Close, nil
}

func main() {
	_ = godotenv.Load()
	if err := run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("createadmin", flag.ContinueOnError)
	fs.SetOutput(stderr)

	username := fs.String("username", "", "Username")
	email := fs.String("email", "", "Email (required when creating)")
	first := fs.String("first", "Super", "First name")
	last := fs.String("last", "Admin", "Last name")
	passwordFlag := fs.String("password", "", "Password (optional, will prompt if omitted)")
	dbURL := fs.String("db", os.Getenv("DATABASE_URL"), "Postgres connection URL")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if *username == "" {
		fmt.Fprintln(stdout, "Usage: createadmin -username <name> [-email <email>] [-password <password>] [-db <url>]")
		fs.PrintDefaults()
		return fmt.Errorf("missing required flags: username")
	}
	if *dbURL == "" {
		return fmt.Errorf("missing database url: set -db or DATABASE_URL")
	}

	ctx := context.Background()
	store, closeStore, err := openStore(ctx, *dbURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer closeStore()

	role, err := superAdminRole(ctx, store)
	if err != nil {
		return err
	}

	existing, err := store.FindAuthByIdentifier(ctx, *username)
	switch {
	case err == nil:
		if _, err := store.AssignRole(ctx, existing.User.ID, role.ID); err != nil {
			return fmt.Errorf("failed to promote user: %w", err)
		}
		fmt.Fprintf(stdout, "User %s promoted to %s\n", existing.User.Username, role.Name)
		return nil
	case !errors.Is(err, storage.ErrNotFound):
		return fmt.Errorf("failed to look up user: %w", err)
	}

	if *email == "" {
		return fmt.Errorf("missing required flags: email")
	}
	password := *passwordFlag
	if password == "" {
		fmt.Fprint(stdout, "Password: ")
		password, err = readPassword(stdin)
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(stdout)
	}
	if strings.TrimSpace(password) == "" {
		return fmt.Errorf("password cannot be empty")
	}

	svc := auth.NewService(auth.Deps{Users: store, Roles: store, Hasher: auth.NewHasher(auth.DefaultCost)})
	user, err := svc.CreateAccount(ctx, auth.AccountInput{
		FirstName: *first,
		LastName:  *last,
		Username:  *username,
		Email:     *email,
		Password:  password,
		RoleID:    &role.ID,
	})
	if err != nil {
		if appErr, ok := apperr.As(err); ok {
			return errors.New(appErr.Message)
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	fmt.Fprintf(stdout, "User %s created successfully with ID %d\n", user.Username, user.ID)
	return nil
}

func superAdminRole(ctx context.Context, store adminStore) (models.Role, error) {
	role, err := store.FindRoleByName(ctx, models.SuperAdmin)
	if errors.Is(err, storage.ErrNotFound) {
		role, err = store.CreateRole(ctx, models.Role{Name: models.SuperAdmin, Type: models.RoleTypeAdminPanel})
	}
	if err != nil {
		return models.Role{}, fmt.Errorf("failed to resolve %s role: %w", models.SuperAdmin, err)
	}
	return role, nil
}

func readPassword(stdin io.Reader) (string, error) {
	if f, ok := stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		raw, err := term.ReadPassword(int(f.Fd()))
		if err != nil {
			return "", err
		}
		return string(raw), nil
	}

	scanner := bufio.NewScanner(stdin)
	if scanner.Scan() {
		return scanner.Text(), nil
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}
