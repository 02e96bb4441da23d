package ledger

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"microloan/go-client/internal/fault"
	"microloan/go-client/pkg/models"
)

const (
	OpLoanRequest = "loan_request"
	OpRepayment   = "repayment"
)

// Ticket tracks a single submitted state-changing operation through to
// confirmation or failure. The account is the one that signed the
// submission and never changes afterwards, regardless of what the
// session does in the meantime.
type Ticket struct {
	OperationID string
	Hash        common.Hash
	Account     common.Address
	Kind        string
	State       models.TicketState
	FailCode    fault.Code
	FailReason  string
	SubmittedAt time.Time
}

func newTicket(kind string, account common.Address, hash common.Hash) *Ticket {
	return &Ticket{
		OperationID: uuid.NewString(),
		Hash:        hash,
		Account:     account,
		Kind:        kind,
		State:       models.TicketSubmitted,
		SubmittedAt: time.Now().UTC(),
	}
}

// FailedTicket builds a terminal ticket for an operation that never
// reached the network (validation or submission failure).
func FailedTicket(kind string, account common.Address, code fault.Code, reason string) *Ticket {
	t := newTicket(kind, account, common.Hash{})
	t.fail(code, reason)
	return t
}

func (t *Ticket) fail(code fault.Code, reason string) {
	t.State = models.TicketFailed
	t.FailCode = code
	t.FailReason = reason
}

func (t *Ticket) Model() models.Ticket {
	m := models.Ticket{
		OperationID: t.OperationID,
		Account:     t.Account.Hex(),
		Kind:        t.Kind,
		State:       t.State,
		FailCode:    string(t.FailCode),
		FailReason:  t.FailReason,
		SubmittedAt: t.SubmittedAt,
	}
	if t.Hash != (common.Hash{}) {
		m.Hash = t.Hash.Hex()
	}
	return m
}
