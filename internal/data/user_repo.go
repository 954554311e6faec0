package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/peoplestack/ems-api/internal/data/pgxutil"
	domainauth "github.com/peoplestack/ems-api/internal/domain/auth"
	"github.com/peoplestack/ems-api/internal/ports"
)

// UserRepo provides database operations for user role mappings.
type UserRepo struct {
	DB *sql.DB
}

// NewUserRepo creates a new UserRepo.
func NewUserRepo(db *sql.DB) *UserRepo {
	return &UserRepo{DB: db}
}

const userColumns = `id, role, employee_id, email, provider_user_id, refresh_token, active`

const (
	userGetByIDQuery = `
		SELECT ` + userColumns + `
		FROM user_role_map
		WHERE id = $1`

	// Prefers a provider-id match over an email match when both rows exist,
	// so a rebound account cannot be shadowed by a stale email row.
	userGetByProviderIDOrEmailQuery = `
		SELECT ` + userColumns + `
		FROM user_role_map
		WHERE active AND (provider_user_id = $1 OR lower(email) = lower($2))
		ORDER BY (provider_user_id = $1) DESC
		LIMIT 1`

	userListQuery = `
		SELECT ` + userColumns + `
		FROM user_role_map
		ORDER BY id
		LIMIT $1 OFFSET $2`
)

// Create inserts a new user role mapping and returns the stored row.
func (r *UserRepo) Create(ctx context.Context, u domainauth.UserAccount) (*domainauth.UserAccount, error) {
	email := strings.ToLower(strings.TrimSpace(u.Email))
	if email == "" {
		return nil, errors.New("user email is required")
	}
	if u.Role == "" {
		return nil, errors.New("user role is required")
	}

	var out domainauth.UserAccount
	if err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `
			INSERT INTO user_role_map (role, employee_id, email, provider_user_id, active)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING `+userColumns,
			u.Role, u.EmployeeID, email, u.ProviderUserID, u.Active,
		)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[domainauth.UserAccount])
		return err
	}); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return nil, ErrUserEmailExists
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return &out, nil
}

// FindByID retrieves a user role mapping by primary key.
func (r *UserRepo) FindByID(ctx context.Context, id int64) (*domainauth.UserAccount, error) {
	return r.getByQuery(ctx, userGetByIDQuery, "failed to get user by ID", id)
}

// FindByProviderIDOrEmail retrieves the active user matching the identity
// provider's user id, falling back to a case-insensitive email match.
func (r *UserRepo) FindByProviderIDOrEmail(
	ctx context.Context,
	providerUserID, email string,
) (*domainauth.UserAccount, error) {
	return r.getByQuery(
		ctx,
		userGetByProviderIDOrEmailQuery,
		"failed to get user by provider id or email",
		providerUserID, email,
	)
}

// SetRefreshToken replaces the stored refresh token for the user. Passing nil
// clears it, which invalidates any outstanding refresh token. Last write wins.
func (r *UserRepo) SetRefreshToken(ctx context.Context, id int64, refreshToken *string) error {
	return r.update(ctx,
		`UPDATE user_role_map SET refresh_token = $2, updated_at = now() WHERE id = $1`,
		"failed to set refresh token", id, refreshToken)
}

// RebindProviderID updates the stored identity-provider user id, used when an
// email-matched account carries a stale or empty provider id.
func (r *UserRepo) RebindProviderID(ctx context.Context, id int64, providerUserID string) error {
	return r.update(ctx,
		`UPDATE user_role_map SET provider_user_id = $2, updated_at = now() WHERE id = $1`,
		"failed to rebind provider id", id, providerUserID)
}

// SetActive enables or disables an account. Disabling also clears the refresh
// token so the account cannot mint new access tokens.
func (r *UserRepo) SetActive(ctx context.Context, id int64, active bool) error {
	query := `UPDATE user_role_map SET active = $2, updated_at = now() WHERE id = $1`
	if !active {
		query = `UPDATE user_role_map SET active = $2, refresh_token = NULL, updated_at = now() WHERE id = $1`
	}
	return r.update(ctx, query, "failed to set user active", id, active)
}

// List retrieves user role mappings with pagination.
func (r *UserRepo) List(ctx context.Context, limit, offset int) ([]domainauth.UserAccount, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	var out []domainauth.UserAccount
	if err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, userListQuery, limit, offset)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = pgx.CollectRows(rows, pgx.RowToStructByName[domainauth.UserAccount])
		return err
	}); err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return out, nil
}

func (r *UserRepo) getByQuery(
	ctx context.Context,
	q string,
	errMsg string,
	args ...any,
) (*domainauth.UserAccount, error) {
	var user domainauth.UserAccount
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, q, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		user, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[domainauth.UserAccount])
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("%s: %w", errMsg, err)
	}
	return &user, nil
}

func (r *UserRepo) update(ctx context.Context, query, errMsg string, args ...any) error {
	var affected int64
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		ct, err := conn.Exec(ctx, query, args...)
		if err != nil {
			return err
		}
		affected = ct.RowsAffected()
		return nil
	})
	if err != nil {
		return fmt.Errorf("%s: %w", errMsg, err)
	}
	if affected == 0 {
		return ErrUserNotFound
	}
	return nil
}

var _ ports.UserStore = (*UserRepo)(nil)
