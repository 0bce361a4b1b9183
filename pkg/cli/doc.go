// Package cli provides the andobill-admin command-line interface for
// operating an AndoBill installation directly against its database.
//
// # Overview
//
// The commands cover the bootstrap tasks that have no HTTP surface: applying
// the schema, seeding the built-in roles, creating the first companies and
// users, and pruning the login attempt log.
//
// # Commands
//
// migrate: Apply pending schema migrations
//
//	andobill-admin migrate
//
// seed-roles: Register every permission and reset super_admin, admin and user
// to their default permission sets
//
//	andobill-admin seed-roles
//
// create-company: Create a company, optionally as the default
//
//	andobill-admin create-company -default "Muster GmbH"
//
// create-user: Create a user inside a company (or a company-less super admin)
//
//	andobill-admin create-user \
//		-name "Erika Mustermann" \
//		-email erika@example.com \
//		-password s3cret \
//		-company 1 \
//		-role admin
//
// assign-role: Assign or revoke a role
//
//	andobill-admin assign-role erika@example.com admin
//	andobill-admin assign-role -revoke erika@example.com admin
//
// set-user-status / set-company-status: Activate or deactivate accounts
//
//	andobill-admin set-user-status erika@example.com inactive
//	andobill-admin set-company-status 1 inactive
//
// set-default-company: Move the default flag to another company
//
//	andobill-admin set-default-company 2
//
// prune-attempts: Delete old login attempts
//
//	andobill-admin prune-attempts -retention 720h
//
// # Configuration
//
// The database is taken from ANDOBILL_DATABASE_URL (see pkg/config).
//
// # Related Packages
//
//   - pkg/rbac: Roles and permissions
//   - pkg/tenant: Companies
//   - pkg/auth: Users
package cli
