package aggregates

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"
)

// Aggregate names
const (
	NameDashboard = "dashboard"
	NameShared    = "shared"
)

// Invoice statuses counted as open
const (
	InvoiceStatusSent    = "sent"
	InvoiceStatusOverdue = "overdue"
)

// DashboardStats is the per-company summary shown on the dashboard
type DashboardStats struct {
	CompanyID        int64           `json:"company_id"`
	Customers        int             `json:"customers"`
	Invoices         int             `json:"invoices"`
	OpenInvoices     int             `json:"open_invoices"`
	OverdueInvoices  int             `json:"overdue_invoices"`
	OpenInvoiceTotal decimal.Decimal `json:"open_invoice_total"`
	ExpenseTotal     decimal.Decimal `json:"expense_total"`
}

// DashboardReader computes dashboard statistics from the ledger tables
type DashboardReader struct {
	db *sql.DB
}

// NewDashboardReader creates a dashboard reader
func NewDashboardReader(db *sql.DB) *DashboardReader {
	return &DashboardReader{db: db}
}

// Stats computes the statistics of one company
func (r *DashboardReader) Stats(ctx context.Context, companyID int64) (*DashboardStats, error) {
	stats := &DashboardStats{CompanyID: companyID}

	if err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM customers WHERE company_id = $1", companyID,
	).Scan(&stats.Customers); err != nil {
		return nil, fmt.Errorf("failed to count customers: %w", err)
	}

	err := r.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN status IN ($1, $2) THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = $3 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status IN ($4, $5) THEN total ELSE 0 END), 0)
		FROM invoices
		WHERE company_id = $6`,
		InvoiceStatusSent, InvoiceStatusOverdue, InvoiceStatusOverdue,
		InvoiceStatusSent, InvoiceStatusOverdue, companyID,
	).Scan(&stats.Invoices, &stats.OpenInvoices, &stats.OverdueInvoices, &stats.OpenInvoiceTotal)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize invoices: %w", err)
	}

	if err := r.db.QueryRowContext(ctx,
		"SELECT COALESCE(SUM(amount), 0) FROM expenses WHERE company_id = $1", companyID,
	).Scan(&stats.ExpenseTotal); err != nil {
		return nil, fmt.Errorf("failed to sum expenses: %w", err)
	}
	return stats, nil
}

// Dashboard serves cached dashboard statistics
type Dashboard struct {
	reader *DashboardReader
	cache  *Cache
}

// NewDashboard creates a cached dashboard
func NewDashboard(reader *DashboardReader, cache *Cache) *Dashboard {
	return &Dashboard{reader: reader, cache: cache}
}

// Stats returns the statistics of companyID as seen by principalID
func (d *Dashboard) Stats(ctx context.Context, principalID, companyID int64) (*DashboardStats, error) {
	key := Key{PrincipalID: principalID, TenantID: &companyID, Name: NameDashboard}
	v, err := d.cache.GetOrCompute(ctx, key, func(ctx context.Context) (interface{}, error) {
		return d.reader.Stats(ctx, companyID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*DashboardStats), nil
}
