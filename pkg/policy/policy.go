package policy

import (
	"errors"
	"fmt"

	"github.com/platinummonkey/andobill/pkg/rbac"
)

// Action is an operation on a resource
type Action string

const (
	ActionViewAny Action = "view_any"
	ActionView    Action = "view"
	ActionCreate  Action = "create"
	ActionUpdate  Action = "update"
	ActionDelete  Action = "delete"
)

// IsMutation reports whether the action changes state
func (a Action) IsMutation() bool {
	return a == ActionCreate || a == ActionUpdate || a == ActionDelete
}

// Entity names registered by DefaultGate
const (
	EntityInvoice         = "invoice"
	EntityCustomer        = "customer"
	EntityProduct         = "product"
	EntityOffer           = "offer"
	EntityPayment         = "payment"
	EntityDocument        = "document"
	EntityWarehouse       = "warehouse_item"
	EntityExpense         = "expense"
	EntityExpenseCategory = "expense_category"
	EntityUser            = "user"
	EntityCompany         = "company"
)

// ErrAuthorizationDenied is matched by every DeniedError
var ErrAuthorizationDenied = errors.New("authorization denied")

// DeniedError describes a refused action
type DeniedError struct {
	Entity string
	Action Action
	Reason string
}

func (e *DeniedError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%s: %s %s", ErrAuthorizationDenied, e.Action, e.Entity)
	}
	return fmt.Sprintf("%s: %s %s: %s", ErrAuthorizationDenied, e.Action, e.Entity, e.Reason)
}

// Is makes errors.Is(err, ErrAuthorizationDenied) succeed
func (e *DeniedError) Is(target error) bool {
	return target == ErrAuthorizationDenied
}

// Resource is anything owned by a company
type Resource interface {
	OwnerCompanyID() *int64
}

// Owned is a minimal Resource for entities that only carry a company id
type Owned struct {
	CompanyID *int64
}

// OwnerCompanyID implements Resource
func (o Owned) OwnerCompanyID() *int64 { return o.CompanyID }

// OwnedBy returns a Resource owned by companyID
func OwnedBy(companyID int64) Owned {
	return Owned{CompanyID: &companyID}
}

// Subject is the principal and effective company a decision is made for
type Subject struct {
	Grants    *rbac.Grants
	CompanyID *int64
}

// Policy decides a single action. res is nil for ActionViewAny and
// ActionCreate.
type Policy interface {
	Allow(sub Subject, action Action, res Resource) (bool, string)
}

// PolicyFunc adapts a function to Policy
type PolicyFunc func(sub Subject, action Action, res Resource) (bool, string)

// Allow implements Policy
func (f PolicyFunc) Allow(sub Subject, action Action, res Resource) (bool, string) {
	return f(sub, action, res)
}

func sameCompany(a, b *int64) bool {
	return a != nil && b != nil && *a == *b
}
