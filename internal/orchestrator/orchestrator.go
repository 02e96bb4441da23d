// Package orchestrator drives a single state-changing ledger operation
// from validated input through submission to a terminal ticket state.
//
// State machine per operation:
//
//	Idle -> Validating -> Submitting -> PendingConfirmation -> Idle
//
// Exactly one operation may be in flight per orchestrator; a second
// submit fails fast with operation_in_progress instead of queuing, so
// the signing agent never sees two competing nonces.
package orchestrator

import (
	"context"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"microloan/go-client/internal/fault"
	"microloan/go-client/internal/ledger"
	"microloan/go-client/internal/money"
	"microloan/go-client/internal/platform/metrics"
	"microloan/go-client/pkg/models"
)

const (
	StateIdle                = "idle"
	StateValidating          = "validating"
	StateSubmitting          = "submitting"
	StatePendingConfirmation = "pending_confirmation"
)

const (
	minDurationDays = 1
	maxDurationDays = 365
)

// Gateway is the slice of the ledger surface the orchestrator uses.
type Gateway interface {
	SubmitLoanRequest(ctx context.Context, from common.Address, amountWei *big.Int, durationDays uint32, purpose string) (*ledger.Ticket, error)
	SubmitRepayment(ctx context.Context, from common.Address, loanID uint64, amountWei *big.Int) (*ledger.Ticket, error)
	AwaitConfirmation(ctx context.Context, t *ledger.Ticket) (*ledger.Ticket, error)
	LoanAt(ctx context.Context, account common.Address, index uint64) (ledger.Loan, error)
}

// AccountSource reports the active signing account. Read-only: the
// orchestrator never mutates the session.
type AccountSource interface {
	CurrentAccount() (common.Address, bool)
}

type Orchestrator struct {
	mu      sync.Mutex
	state   string
	gateway Gateway
	session AccountSource
	metrics *metrics.Orchestration
	log     *slog.Logger
}

func New(gateway Gateway, session AccountSource, m *metrics.Orchestration, log *slog.Logger) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{
		state:   StateIdle,
		gateway: gateway,
		session: session,
		metrics: m,
		log:     log,
	}
}

func (o *Orchestrator) State() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// SubmitLoanRequest validates the input, converts the display amount to
// minor units exactly, submits requestLoan, and waits for the terminal
// state. Validation failures return an error before any network call;
// failures after submission come back as a Failed ticket.
func (o *Orchestrator) SubmitLoanRequest(ctx context.Context, input models.LoanRequestInput) (*ledger.Ticket, error) {
	if err := o.begin(); err != nil {
		return nil, err
	}
	defer o.reset()

	amountWei, err := validateRequest(input)
	if err != nil {
		return nil, err
	}
	from, ok := o.session.CurrentAccount()
	if !ok {
		return nil, fault.New(fault.CodeAgentUnavailable, "no connected signing session")
	}

	o.setState(StateSubmitting)
	o.metrics.RecordSubmission(ledger.OpLoanRequest)
	started := time.Now()
	ticket, err := o.gateway.SubmitLoanRequest(ctx, from, amountWei, uint32(input.DurationDays), input.Purpose)
	if err != nil {
		return o.submitFailed(ledger.OpLoanRequest, from, started, err), nil
	}
	return o.await(ctx, ticket, started)
}

// SubmitRepayment pre-validates against ledger truth (the loan must
// exist and be Approved) and submits repayLoan with a payment equal to
// the recorded amount. The ledger re-checks the amount on its side; the
// pre-validation only avoids a wasted submission.
func (o *Orchestrator) SubmitRepayment(ctx context.Context, loanID uint64) (*ledger.Ticket, error) {
	if err := o.begin(); err != nil {
		return nil, err
	}
	defer o.reset()

	from, ok := o.session.CurrentAccount()
	if !ok {
		return nil, fault.New(fault.CodeAgentUnavailable, "no connected signing session")
	}
	loan, err := o.gateway.LoanAt(ctx, from, loanID)
	if err != nil {
		return nil, err
	}
	if loan.Status != ledger.StatusApproved {
		return nil, fault.Validation("loanId", "loan is not approved for repayment")
	}

	o.setState(StateSubmitting)
	o.metrics.RecordSubmission(ledger.OpRepayment)
	started := time.Now()
	ticket, err := o.gateway.SubmitRepayment(ctx, from, loanID, loan.Amount)
	if err != nil {
		return o.submitFailed(ledger.OpRepayment, from, started, err), nil
	}
	return o.await(ctx, ticket, started)
}

// await drives the confirmation wait. The ticket keeps the account that
// signed the submission; a session switch while the wait is outstanding
// does not relabel or discard the result.
func (o *Orchestrator) await(ctx context.Context, ticket *ledger.Ticket, started time.Time) (*ledger.Ticket, error) {
	o.setState(StatePendingConfirmation)
	final, err := o.gateway.AwaitConfirmation(ctx, ticket)
	if err != nil {
		// context cancellation: the caller suppresses the result
		return final, err
	}
	outcome := string(final.State)
	if final.State == models.TicketFailed {
		outcome = string(final.FailCode)
	}
	o.metrics.RecordOutcome(final.Kind, outcome, time.Since(started))
	o.log.Info("operation finished",
		"op_id", final.OperationID,
		"kind", final.Kind,
		"state", final.State,
		"account", models.ShortAddress(final.Account.Hex()))
	return final, nil
}

func (o *Orchestrator) submitFailed(kind string, from common.Address, started time.Time, err error) *ledger.Ticket {
	code, ok := fault.CodeOf(err)
	if !ok {
		code = fault.CodeNetwork
	}
	o.metrics.RecordOutcome(kind, string(code), time.Since(started))
	o.log.Warn("submission failed", "kind", kind, "err", err)
	return ledger.FailedTicket(kind, from, code, err.Error())
}

func (o *Orchestrator) begin() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != StateIdle {
		return fault.New(fault.CodeOperationInProgress, "another operation is in flight")
	}
	o.state = StateValidating
	return nil
}

func (o *Orchestrator) setState(state string) {
	o.mu.Lock()
	o.state = state
	o.mu.Unlock()
}

func (o *Orchestrator) reset() {
	o.setState(StateIdle)
}

// validateRequest checks fields in a fixed order; the first failure
// wins and nothing reaches the network.
func validateRequest(input models.LoanRequestInput) (*big.Int, error) {
	if strings.TrimSpace(input.Amount) == "" {
		return nil, fault.Validation("amount", "required")
	}
	if input.DurationDays == 0 {
		return nil, fault.Validation("durationDays", "required")
	}
	if strings.TrimSpace(input.Purpose) == "" {
		return nil, fault.Validation("purpose", "required")
	}
	amountWei, err := money.ParseAmount(input.Amount)
	if err != nil {
		return nil, err
	}
	if input.DurationDays < minDurationDays || input.DurationDays > maxDurationDays {
		return nil, fault.Validation("durationDays", "must be between 1 and 365")
	}
	return amountWei, nil
}
