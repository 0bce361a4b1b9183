// Package tenant manages companies, the unit of data isolation, and decides
// which company scopes each request.
//
// # Effective company
//
// Resolver.EffectiveCompanyID gives tenant-scoped users their own company.
// Principals holding manage_companies may select another company for their
// session (Switcher); without a selection they see the default company, then
// their own.
//
// # Default company
//
// At most one company is flagged default. SetDefault moves the flag inside one
// transaction and a partial unique index on is_default rejects a second
// default outright.
//
// # Settings
//
// SettingsRepository stores per-company values with an explicit type tag.
// Decimal settings round-trip exactly through shopspring/decimal:
//
//	repo.Set(ctx, companyID, tenant.SettingTaxRate, tenant.DecimalValue(decimal.RequireFromString("0.19")))
//	v, _ := repo.Effective(ctx, companyID, tenant.SettingTaxRate)
//	v.Decimal().String() // "0.19"
package tenant
