package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/peoplestack/ems-api/internal/data/pgxutil"
	domainauth "github.com/peoplestack/ems-api/internal/domain/auth"
	"github.com/peoplestack/ems-api/internal/ports"
)

// EmployeeRepo provides read access to the employee directory.
type EmployeeRepo struct {
	DB *sql.DB
}

// NewEmployeeRepo creates a new EmployeeRepo.
func NewEmployeeRepo(db *sql.DB) *EmployeeRepo {
	return &EmployeeRepo{DB: db}
}

const employeeGetByCodeQuery = `
	SELECT id, code, contact_email
	FROM employees
	WHERE code = $1`

const employeeUpsertQuery = `
	INSERT INTO employees (code, contact_email)
	VALUES ($1, $2)
	ON CONFLICT (code) DO UPDATE SET contact_email = EXCLUDED.contact_email, updated_at = now()
	RETURNING id, code, contact_email`

// Upsert inserts an employee record or refreshes the contact email of an
// existing one. Used by seeding and directory import tooling.
func (r *EmployeeRepo) Upsert(ctx context.Context, emp domainauth.Employee) (*domainauth.Employee, error) {
	code := strings.ToUpper(strings.TrimSpace(emp.Code))
	if code == "" {
		return nil, errors.New("employee code is required")
	}

	var saved domainauth.Employee
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, employeeUpsertQuery, code, emp.ContactEmail)
		if err != nil {
			return err
		}
		defer rows.Close()
		saved, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[domainauth.Employee])
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upsert employee: %w", err)
	}
	return &saved, nil
}

// FindByCode retrieves an employee by their employee code. Codes are stored
// uppercase, so the lookup normalizes before querying.
func (r *EmployeeRepo) FindByCode(ctx context.Context, code string) (*domainauth.Employee, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, ErrEmployeeNotFound
	}

	var emp domainauth.Employee
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, employeeGetByCodeQuery, code)
		if err != nil {
			return err
		}
		defer rows.Close()
		emp, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[domainauth.Employee])
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEmployeeNotFound
		}
		return nil, fmt.Errorf("failed to get employee by code: %w", err)
	}
	return &emp, nil
}

var _ ports.EmployeeDirectory = (*EmployeeRepo)(nil)
