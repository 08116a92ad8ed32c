// Package authz decides whether an acting identity may invoke an operation
// on a cash request. Two capability classes exist: the owner (the requester
// who created the request) and elevated identities (director-level roles).
// The elevated role names come from configuration, not from the state
// machine, so adding a role never touches transition code.
package authz

import "servio-crm/internal/core/domain"

// Operation is a single guarded action on a cash request
type Operation string

const (
	OpViewRequest    Operation = "view request"
	OpCreateRequest  Operation = "create request"
	OpApprove        Operation = "approve"
	OpReject         Operation = "reject"
	OpAskQuestion    Operation = "ask question"
	OpReply          Operation = "reply"
	OpConfirmReceipt Operation = "confirm receipt"
	OpAddExpense     Operation = "add expense"
	OpDeleteExpense  Operation = "delete expense"
	OpSubmitReturn   Operation = "submit return"
	OpConfirmReturn  Operation = "confirm return"
	OpCloseRequest   Operation = "close request"
	OpListAll        Operation = "list all requests"
	OpSummary        Operation = "view summary"
)

// Identity is what the identity provider asserts about the caller
type Identity struct {
	UserID   uint
	Username string
	Role     string
}

var ownerOps = map[Operation]bool{
	OpViewRequest:    true,
	OpCreateRequest:  true,
	OpReply:          true,
	OpConfirmReceipt: true,
	OpAddExpense:     true,
	OpDeleteExpense:  true,
	OpSubmitReturn:   true,
}

var elevatedOps = map[Operation]bool{
	OpViewRequest:   true,
	OpApprove:       true,
	OpReject:        true,
	OpAskQuestion:   true,
	OpDeleteExpense: true,
	OpConfirmReturn: true,
	OpCloseRequest:  true,
	OpListAll:       true,
	OpSummary:       true,
}

// Policy maps roles to the operations they may perform
type Policy struct {
	grants map[string]map[Operation]bool
}

// NewPolicy builds a policy granting the full director capability set to
// each of the given role names
func NewPolicy(elevatedRoles ...string) *Policy {
	p := &Policy{grants: make(map[string]map[Operation]bool)}
	for _, role := range elevatedRoles {
		p.grants[role] = elevatedOps
	}
	return p
}

// Grant adds a custom role with a restricted operation set
func (p *Policy) Grant(role string, ops ...Operation) {
	set := make(map[Operation]bool, len(ops))
	for _, op := range ops {
		set[op] = true
	}
	p.grants[role] = set
}

// Elevated reports whether the identity holds any director-level grant
func (p *Policy) Elevated(id Identity) bool {
	return len(p.grants[id.Role]) > 0
}

// Allow checks op against the caller's capability class. ownerID is the
// requester who owns the target request; zero means no owner applies
// (create, list-all, summary). Re-evaluated on every call, never cached.
func (p *Policy) Allow(id Identity, op Operation, ownerID uint) error {
	if op == OpCreateRequest {
		return nil // any authenticated identity may ask for money
	}
	if ownerOps[op] && ownerID != 0 && id.UserID == ownerID {
		return nil
	}
	if p.grants[id.Role][op] {
		return nil
	}
	return domain.ErrForbidden
}
