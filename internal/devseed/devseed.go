// Package devseed populates a development database with employees and
// user-role mappings so the login flow can be exercised end to end against
// the dev identity provider.
package devseed

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/peoplestack/ems-api/internal/data"
	domainauth "github.com/peoplestack/ems-api/internal/domain/auth"
)

// Services bundles the repositories needed for development seeding.
type Services struct {
	Users     *data.UserRepo
	Employees *data.EmployeeRepo
}

// NewServices constructs the seeding repositories from the provided DB.
func NewServices(db *sql.DB) Services {
	return Services{
		Users:     data.NewUserRepo(db),
		Employees: data.NewEmployeeRepo(db),
	}
}

type seedUser struct {
	email        string
	role         domainauth.Role
	employeeCode string
	contactEmail string
}

func seedUsers() []seedUser {
	return []seedUser{
		{
			email:        "dev.admin@example.com",
			role:         domainauth.RoleAdmin,
			employeeCode: "E0001",
			contactEmail: "dev.admin@example.com",
		},
		{
			email:        "dev.manager@example.com",
			role:         domainauth.RoleManager,
			employeeCode: "E0002",
			contactEmail: "dev.manager@example.com",
		},
		{
			email:        "dev.employee@example.com",
			role:         domainauth.RoleEmployee,
			employeeCode: "E0003",
			contactEmail: "dev.employee@example.com",
		},
	}
}

// Run seeds the development data set. Seeding is idempotent: existing
// employees are refreshed and existing user mappings are left alone.
func Run(ctx context.Context, svcs Services, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	for _, su := range seedUsers() {
		emp, err := svcs.Employees.Upsert(ctx, domainauth.Employee{
			Code:         su.employeeCode,
			ContactEmail: &su.contactEmail,
		})
		if err != nil {
			return fmt.Errorf("seed employee %s: %w", su.employeeCode, err)
		}

		created, err := svcs.Users.Create(ctx, domainauth.UserAccount{
			Email:      su.email,
			Role:       su.role,
			EmployeeID: &emp.ID,
			Active:     true,
		})
		if err != nil {
			if errors.Is(err, data.ErrUserEmailExists) {
				logger.InfoContext(ctx, "seed user already exists", "email", su.email)
				continue
			}
			return fmt.Errorf("seed user %s: %w", su.email, err)
		}

		logger.InfoContext(ctx, "seeded user",
			"id", created.ID,
			"email", created.Email,
			"role", created.Role,
			"employee_code", su.employeeCode)
	}

	return nil
}
