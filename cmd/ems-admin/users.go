package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/peoplestack/ems-api/internal/data"
	domainauth "github.com/peoplestack/ems-api/internal/domain/auth"
)

type userAddOptions struct {
	Email      string
	Role       string
	EmployeeID int64
}

type userToggleOptions struct {
	ID int64
}

type userListOptions struct {
	Limit  int
	Offset int
}

func runUserAdd(cmdCtx *commandContext, args []string) error {
	opts, err := parseUserAddFlags(args)
	if err != nil {
		return err
	}

	return withDatabase(cmdCtx, defaultCommandTimeout, func(ctx context.Context, db *sql.DB) error {
		account := domainauth.UserAccount{
			Email:  opts.Email,
			Role:   domainauth.Role(opts.Role),
			Active: true,
		}
		if opts.EmployeeID > 0 {
			id := opts.EmployeeID
			account.EmployeeID = &id
		}

		created, createErr := data.NewUserRepo(db).Create(ctx, account)
		if createErr != nil {
			if errors.Is(createErr, data.ErrUserEmailExists) {
				return fmt.Errorf("user with email %q already exists", opts.Email)
			}
			return fmt.Errorf("create user: %w", createErr)
		}

		cmdCtx.Logger.Info("user created",
			"id", created.ID,
			"email", created.Email,
			"role", created.Role)
		return nil
	})
}

func runUserRevoke(cmdCtx *commandContext, args []string) error {
	opts, err := parseUserToggleFlags("user-revoke", args)
	if err != nil {
		return err
	}

	return withDatabase(cmdCtx, defaultCommandTimeout, func(ctx context.Context, db *sql.DB) error {
		if setErr := data.NewUserRepo(db).SetActive(ctx, opts.ID, false); setErr != nil {
			if errors.Is(setErr, data.ErrUserNotFound) {
				return fmt.Errorf("user %d not found", opts.ID)
			}
			return fmt.Errorf("revoke user: %w", setErr)
		}

		cmdCtx.Logger.Info("user revoked", "id", opts.ID)
		return nil
	})
}

func runUserRestore(cmdCtx *commandContext, args []string) error {
	opts, err := parseUserToggleFlags("user-restore", args)
	if err != nil {
		return err
	}

	return withDatabase(cmdCtx, defaultCommandTimeout, func(ctx context.Context, db *sql.DB) error {
		if setErr := data.NewUserRepo(db).SetActive(ctx, opts.ID, true); setErr != nil {
			if errors.Is(setErr, data.ErrUserNotFound) {
				return fmt.Errorf("user %d not found", opts.ID)
			}
			return fmt.Errorf("restore user: %w", setErr)
		}

		cmdCtx.Logger.Info("user restored", "id", opts.ID)
		return nil
	})
}

func runUserList(cmdCtx *commandContext, args []string) error {
	opts, err := parseUserListFlags(args)
	if err != nil {
		return err
	}

	return withDatabase(cmdCtx, defaultCommandTimeout, func(ctx context.Context, db *sql.DB) error {
		users, listErr := data.NewUserRepo(db).List(ctx, opts.Limit, opts.Offset)
		if listErr != nil {
			return fmt.Errorf("list users: %w", listErr)
		}

		if len(users) == 0 {
			return writef(os.Stdout, "(no users found)\n")
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		if writeErr := writef(w, "ID\tEmail\tRole\tEmployee\tActive\n"); writeErr != nil {
			return writeErr
		}
		for i := range users {
			u := &users[i]
			employee := "-"
			if u.EmployeeID != nil {
				employee = fmt.Sprintf("%d", *u.EmployeeID)
			}
			if writeErr := writef(w, "%d\t%s\t%s\t%s\t%t\n",
				u.ID, u.Email, u.Role, employee, u.Active); writeErr != nil {
				return writeErr
			}
		}
		if flushErr := w.Flush(); flushErr != nil {
			return fmt.Errorf("flush user table: %w", flushErr)
		}
		return nil
	})
}

func parseUserAddFlags(args []string) (userAddOptions, error) {
	fs := flag.NewFlagSet("user-add", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts userAddOptions
	fs.StringVar(&opts.Email, "email", "", "Email of the identity-provider account (required)")
	fs.StringVar(&opts.Role, "role", "", "Role to assign: admin, manager, or employee (required)")
	fs.Int64Var(&opts.EmployeeID, "employee-id", 0, "Optional employee record to link")

	if err := fs.Parse(args); err != nil {
		return userAddOptions{}, err
	}

	opts.Email = strings.TrimSpace(opts.Email)
	opts.Role = strings.ToLower(strings.TrimSpace(opts.Role))

	if opts.Email == "" {
		return userAddOptions{}, errors.New("--email is required")
	}
	if !validRole(opts.Role) {
		return userAddOptions{}, fmt.Errorf("invalid role %q: must be admin, manager, or employee", opts.Role)
	}

	return opts, nil
}

func parseUserToggleFlags(name string, args []string) (userToggleOptions, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts userToggleOptions
	fs.Int64Var(&opts.ID, "id", 0, "User ID (required)")

	if err := fs.Parse(args); err != nil {
		return userToggleOptions{}, err
	}

	if opts.ID <= 0 {
		return userToggleOptions{}, errors.New("--id is required")
	}

	return opts, nil
}

func parseUserListFlags(args []string) (userListOptions, error) {
	fs := flag.NewFlagSet("user-list", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts userListOptions
	fs.IntVar(&opts.Limit, "limit", 50, "Maximum rows to display")
	fs.IntVar(&opts.Offset, "offset", 0, "Offset into the result set")

	if err := fs.Parse(args); err != nil {
		return userListOptions{}, err
	}

	if opts.Limit <= 0 {
		return userListOptions{}, errors.New("--limit must be greater than zero")
	}

	return opts, nil
}

func validRole(role string) bool {
	switch domainauth.Role(role) {
	case domainauth.RoleAdmin, domainauth.RoleManager, domainauth.RoleEmployee:
		return true
	default:
		return false
	}
}
