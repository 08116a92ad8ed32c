package domain

// Status represents the lifecycle state of a cash request
type Status string

const (
	StatusRequested Status = "REQUESTED" // created, waiting for a director
	StatusApproved  Status = "APPROVED"  // director approved, money not yet handed over
	StatusRejected  Status = "REJECTED"  // terminal
	StatusQuestion  Status = "QUESTION"  // director asked for clarification
	StatusReceived  Status = "RECEIVED"  // requester confirmed receiving the money
	StatusReporting Status = "REPORTING" // at least one expense filed
	StatusClosed    Status = "CLOSED"    // terminal
)

// Terminal reports whether no further transitions are possible
func (s Status) Terminal() bool {
	return s == StatusRejected || s == StatusClosed
}

// Active reports whether money movement (expenses, returns) is allowed
func (s Status) Active() bool {
	return s == StatusReceived || s == StatusReporting
}

// Valid reports whether s is a known status
func (s Status) Valid() bool {
	switch s {
	case StatusRequested, StatusApproved, StatusRejected, StatusQuestion,
		StatusReceived, StatusReporting, StatusClosed:
		return true
	}
	return false
}

// RequestType distinguishes project-bound advances from personal loans
type RequestType string

const (
	TypeAdvance RequestType = "ADVANCE" // tied to a work/project
	TypeLoan    RequestType = "LOAN"    // personal, no project reference
)

// Valid reports whether t is a known request type
func (t RequestType) Valid() bool {
	return t == TypeAdvance || t == TypeLoan
}

// Valid origin statuses per transition. The state machine rejects any
// operation attempted from a status not listed here.
var (
	ApproveFrom  = []Status{StatusRequested}
	RejectFrom   = []Status{StatusRequested, StatusApproved}
	QuestionFrom = []Status{StatusRequested, StatusReceived, StatusReporting}
	ReplyFrom    = []Status{StatusQuestion}
	ReceiveFrom  = []Status{StatusApproved}
	ExpenseFrom  = []Status{StatusReceived, StatusReporting}
	ReturnFrom   = []Status{StatusReceived, StatusReporting}
	CloseFrom    = []Status{StatusReceived, StatusReporting}
)

// EnsureStatus returns a *StateError unless current is one of allowed
func EnsureStatus(op string, current Status, allowed ...Status) error {
	for _, s := range allowed {
		if current == s {
			return nil
		}
	}
	return &StateError{Op: op, Current: current, Expected: allowed}
}
