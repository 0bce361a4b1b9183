package policy

import (
	"context"
	"fmt"

	"github.com/platinummonkey/andobill/pkg/audit"
	"github.com/platinummonkey/andobill/pkg/contextkeys"
	"github.com/platinummonkey/andobill/pkg/observability"
	"github.com/platinummonkey/andobill/pkg/rbac"
)

// Gate maps entity names to policies
type Gate struct {
	policies map[string]Policy
	metrics  *observability.Metrics
}

// NewGate creates an empty gate; metrics may be nil
func NewGate(metrics *observability.Metrics) *Gate {
	return &Gate{policies: make(map[string]Policy), metrics: metrics}
}

// DefaultGate registers the policies for every known entity
func DefaultGate(metrics *observability.Metrics) *Gate {
	g := NewGate(metrics)
	for _, entity := range []string{
		EntityInvoice, EntityCustomer, EntityProduct, EntityOffer,
		EntityPayment, EntityDocument, EntityWarehouse,
	} {
		g.Register(entity, TenantPolicy())
	}
	g.Register(EntityExpense, RoleGatedPolicy(rbac.RoleAdmin))
	g.Register(EntityExpenseCategory, RoleGatedPolicy(rbac.RoleAdmin))
	g.Register(EntityUser, UserPolicy())
	g.Register(EntityCompany, CompanyPolicy())
	return g
}

// Register sets the policy for entity
func (g *Gate) Register(entity string, p Policy) {
	g.policies[entity] = p
}

// Check evaluates a decision without side effects
func (g *Gate) Check(sub Subject, entity string, action Action, res Resource) error {
	p, ok := g.policies[entity]
	if !ok {
		return &DeniedError{Entity: entity, Action: action, Reason: "no policy registered"}
	}
	if allowed, reason := p.Allow(sub, action, res); !allowed {
		return &DeniedError{Entity: entity, Action: action, Reason: reason}
	}
	return nil
}

// Allows reports whether the principal on ctx may perform action
func (g *Gate) Allows(ctx context.Context, entity string, action Action, res Resource) bool {
	return g.Check(subjectFrom(ctx), entity, action, res) == nil
}

func subjectFrom(ctx context.Context) Subject {
	return Subject{
		Grants:    rbac.FromContext(ctx),
		CompanyID: contextkeys.GetTenant(ctx),
	}
}

// Authorize evaluates a decision for the principal and effective company on
// ctx. Denials are counted and written to the audit trail.
func (g *Gate) Authorize(ctx context.Context, entity string, action Action, res Resource) error {
	err := g.Check(subjectFrom(ctx), entity, action, res)
	g.metrics.RecordPolicyDecision(entity, string(action), err == nil)
	if err != nil {
		resourceID := ""
		if res != nil {
			if owner := res.OwnerCompanyID(); owner != nil {
				resourceID = fmt.Sprintf("company:%d", *owner)
			}
		}
		_ = audit.LogDenied(ctx, audit.ResourceType(entity), resourceID, err.Error())
	}
	return err
}
