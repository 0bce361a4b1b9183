package cli

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/platinummonkey/andobill/pkg/auth"
	"github.com/platinummonkey/andobill/pkg/rbac"
	"github.com/platinummonkey/andobill/pkg/storage/postgres"
	"github.com/platinummonkey/andobill/pkg/tenant"
	"github.com/platinummonkey/andobill/pkg/throttle"
)

func newMigrateCommand(rt *Runtime) *Command {
	cmd := &Command{
		Name:        "migrate",
		Description: "Apply pending schema migrations",
		Flags:       newFlagSet("migrate"),
	}
	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		if err := postgres.RunMigrations(context.Background(), rt.DB, rt.Dialect); err != nil {
			return err
		}
		rt.printf("Schema is up to date (%d migrations)\n", len(postgres.GetMigrations()))
		return nil
	}
	return cmd
}

func newSeedRolesCommand(rt *Runtime) *Command {
	cmd := &Command{
		Name:        "seed-roles",
		Description: "Register permissions and reset the built-in roles",
		Flags:       newFlagSet("seed-roles"),
	}
	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		if err := rbac.NewStore(rt.DB).Seed(context.Background()); err != nil {
			return err
		}
		for _, role := range rbac.DefaultRoles() {
			rt.printf("✓ %s (%d permissions)\n", role.Name, len(role.Permissions))
		}
		return nil
	}
	return cmd
}

func newPruneAttemptsCommand(rt *Runtime) *Command {
	cmd := &Command{
		Name:        "prune-attempts",
		Description: "Delete login attempts older than the retention period",
		Flags:       newFlagSet("prune-attempts"),
	}
	retention := cmd.Flags.Duration("retention", 30*24*time.Hour, "Keep attempts newer than this")
	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		// the throttle window must stay queryable
		if window := throttle.DefaultConfig().Window; *retention < window {
			return fmt.Errorf("retention must be at least %s", window)
		}
		n, err := throttle.NewAttemptStore(rt.DB).Prune(context.Background(), time.Now().UTC().Add(-*retention))
		if err != nil {
			return err
		}
		rt.printf("Deleted %d login attempts\n", n)
		return nil
	}
	return cmd
}

func newCreateUserCommand(rt *Runtime) *Command {
	cmd := &Command{
		Name:        "create-user",
		Description: "Create a user, optionally assigning a company and a role",
		Flags:       newFlagSet("create-user"),
	}
	name := cmd.Flags.String("name", "", "Display name")
	email := cmd.Flags.String("email", "", "Login email")
	password := cmd.Flags.String("password", "", "Initial password")
	company := cmd.Flags.Int64("company", 0, "Owning company id (0 for none)")
	role := cmd.Flags.String("role", rbac.RoleUser, "Role to assign (empty for none)")
	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		if *email == "" || *password == "" {
			return fmt.Errorf("email and password are required")
		}
		if *company == 0 && *role != rbac.RoleSuperAdmin {
			return fmt.Errorf("company is required unless the user is a %s", rbac.RoleSuperAdmin)
		}

		ctx := context.Background()
		req := &auth.CreateUserRequest{Name: *name, Email: *email, Password: *password}
		if *company != 0 {
			if _, err := tenant.NewService(rt.DB, rt.Dialect, nil).Get(ctx, *company); err != nil {
				return err
			}
			req.CompanyID = company
		}

		user, err := auth.NewUserStore(rt.DB, rt.BcryptCost).Create(ctx, req)
		if err != nil {
			return err
		}
		if *role != "" {
			if err := rbac.NewStore(rt.DB).AssignRole(ctx, user.ID, *role); err != nil {
				return fmt.Errorf("user %d created but role assignment failed: %w", user.ID, err)
			}
		}
		rt.printf("Created user %d (%s)\n", user.ID, user.Email)
		return nil
	}
	return cmd
}

func newSetUserStatusCommand(rt *Runtime) *Command {
	cmd := &Command{
		Name:        "set-user-status",
		Description: "Activate or deactivate a user: <email> <active|inactive>",
		Flags:       newFlagSet("set-user-status"),
	}
	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		if cmd.Flags.NArg() != 2 {
			return fmt.Errorf("usage: set-user-status <email> <active|inactive>")
		}
		ctx := context.Background()
		users := auth.NewUserStore(rt.DB, rt.BcryptCost)
		user, err := users.GetByEmail(ctx, cmd.Flags.Arg(0))
		if err != nil {
			return err
		}
		if err := users.SetStatus(ctx, user.ID, cmd.Flags.Arg(1)); err != nil {
			return err
		}
		rt.printf("User %s is now %s\n", user.Email, cmd.Flags.Arg(1))
		return nil
	}
	return cmd
}

func newAssignRoleCommand(rt *Runtime) *Command {
	cmd := &Command{
		Name:        "assign-role",
		Description: "Assign a role to a user: <email> <role>",
		Flags:       newFlagSet("assign-role"),
	}
	revoke := cmd.Flags.Bool("revoke", false, "Revoke the role instead")
	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		if cmd.Flags.NArg() != 2 {
			return fmt.Errorf("usage: assign-role [-revoke] <email> <role>")
		}
		ctx := context.Background()
		user, err := auth.NewUserStore(rt.DB, rt.BcryptCost).GetByEmail(ctx, cmd.Flags.Arg(0))
		if err != nil {
			return err
		}
		roles := rbac.NewStore(rt.DB)
		role := cmd.Flags.Arg(1)
		if *revoke {
			if err := roles.RevokeRole(ctx, user.ID, role); err != nil {
				return err
			}
			rt.printf("Revoked %s from %s\n", role, user.Email)
			return nil
		}
		if err := roles.AssignRole(ctx, user.ID, role); err != nil {
			return err
		}
		rt.printf("Assigned %s to %s\n", role, user.Email)
		return nil
	}
	return cmd
}

func newCreateCompanyCommand(rt *Runtime) *Command {
	cmd := &Command{
		Name:        "create-company",
		Description: "Create a company: <name>",
		Flags:       newFlagSet("create-company"),
	}
	asDefault := cmd.Flags.Bool("default", false, "Make it the default company")
	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		if cmd.Flags.NArg() != 1 || cmd.Flags.Arg(0) == "" {
			return fmt.Errorf("usage: create-company [-default] <name>")
		}
		ctx := context.Background()
		companies := tenant.NewService(rt.DB, rt.Dialect, nil)
		company := &tenant.Company{Name: cmd.Flags.Arg(0)}
		if err := companies.Create(ctx, company); err != nil {
			return err
		}
		if *asDefault {
			if err := companies.SetDefault(ctx, company.ID); err != nil {
				return err
			}
		}
		rt.printf("Created company %d (%s)\n", company.ID, company.Name)
		return nil
	}
	return cmd
}

func newSetCompanyStatusCommand(rt *Runtime) *Command {
	cmd := &Command{
		Name:        "set-company-status",
		Description: "Activate or deactivate a company: <id> <active|inactive>",
		Flags:       newFlagSet("set-company-status"),
	}
	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		if cmd.Flags.NArg() != 2 {
			return fmt.Errorf("usage: set-company-status <id> <active|inactive>")
		}
		id, err := parseID(cmd.Flags.Arg(0))
		if err != nil {
			return err
		}
		status := tenant.Status(cmd.Flags.Arg(1))
		if err := tenant.NewService(rt.DB, rt.Dialect, nil).SetStatus(context.Background(), id, status); err != nil {
			return err
		}
		rt.printf("Company %d is now %s\n", id, status)
		return nil
	}
	return cmd
}

func newSetDefaultCompanyCommand(rt *Runtime) *Command {
	cmd := &Command{
		Name:        "set-default-company",
		Description: "Make a company the default: <id>",
		Flags:       newFlagSet("set-default-company"),
	}
	cmd.Run = func(args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		if cmd.Flags.NArg() != 1 {
			return fmt.Errorf("usage: set-default-company <id>")
		}
		id, err := parseID(cmd.Flags.Arg(0))
		if err != nil {
			return err
		}
		if err := tenant.NewService(rt.DB, rt.Dialect, nil).SetDefault(context.Background(), id); err != nil {
			return err
		}
		rt.printf("Company %d is now the default\n", id)
		return nil
	}
	return cmd
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}
