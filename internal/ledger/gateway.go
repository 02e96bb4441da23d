// Package ledger is the typed call surface over the Microfinance
// ledger program. Reads are side-effect free; writes are submitted
// exactly once through the signing agent and tracked with tickets.
package ledger

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"microloan/go-client/internal/fault"
	"microloan/go-client/internal/money"
	"microloan/go-client/internal/wallet"
	"microloan/go-client/pkg/models"
)

// ChainBackend is the read side of the network: contract calls, balance
// reads, and receipt lookups. Receipt lookups return ethereum.NotFound
// while the transaction is unmined.
type ChainBackend interface {
	CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error)
	BalanceAt(ctx context.Context, account common.Address) (*big.Int, error)
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

// TxSender signs and submits state-changing calls. In production this
// is the signing agent.
type TxSender interface {
	SendTransaction(ctx context.Context, req wallet.TxRequest) (common.Hash, error)
}

// ConfirmPolicy bounds the confirmation wait. The ledger itself offers
// no bound; an unbounded wait would leave the orchestrator stuck, so
// exceeding the bound resolves to a Timeout failure.
type ConfirmPolicy struct {
	PollInterval time.Duration
	MaxAttempts  int
}

func (p ConfirmPolicy) withDefaults() ConfirmPolicy {
	if p.PollInterval <= 0 {
		p.PollInterval = 2 * time.Second
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 30
	}
	return p
}

type Loan struct {
	ID           uint64
	Amount       *big.Int // wei
	DurationDays uint32
	Purpose      string
	Status       Status
	DueDate      time.Time // zero when the ledger reports none
}

func (l Loan) Model() models.Loan {
	m := models.Loan{
		ID:           l.ID,
		Amount:       money.FormatWei(l.Amount),
		AmountWei:    l.Amount.String(),
		DurationDays: l.DurationDays,
		Purpose:      l.Purpose,
		Status:       l.Status.Model(),
	}
	if !l.DueDate.IsZero() {
		due := l.DueDate
		m.DueDate = &due
	}
	return m
}

// loanRecord mirrors the tuple returned by getUserLoanAtIndex.
type loanRecord struct {
	Amount   *big.Int
	Duration *big.Int
	Purpose  string
	Status   uint8
	DueDate  *big.Int
}

type Gateway struct {
	backend  ChainBackend
	sender   TxSender
	contract common.Address
	confirm  ConfirmPolicy
	log      *slog.Logger
}

func NewGateway(backend ChainBackend, sender TxSender, contract common.Address, confirm ConfirmPolicy, log *slog.Logger) *Gateway {
	if log == nil {
		log = slog.Default()
	}
	return &Gateway{
		backend:  backend,
		sender:   sender,
		contract: contract,
		confirm:  confirm.withDefaults(),
		log:      log,
	}
}

func (g *Gateway) LoanCount(ctx context.Context, account common.Address) (uint64, error) {
	out, err := g.call(ctx, "getUserLoanCount", account)
	if err != nil {
		return 0, err
	}
	return unpackUint64(out, "getUserLoanCount")
}

func (g *Gateway) LoanAt(ctx context.Context, account common.Address, index uint64) (Loan, error) {
	out, err := g.call(ctx, "getUserLoanAtIndex", account, new(big.Int).SetUint64(index))
	if err != nil {
		return Loan{}, err
	}
	if len(out) != 1 {
		return Loan{}, fault.New(fault.CodeProtocol, "getUserLoanAtIndex returned unexpected shape")
	}
	rec := *abi.ConvertType(out[0], new(loanRecord)).(*loanRecord)
	status, err := StatusFromCode(rec.Status)
	if err != nil {
		return Loan{}, err
	}
	loan := Loan{
		ID:           index,
		Amount:       rec.Amount,
		DurationDays: uint32(rec.Duration.Uint64()),
		Purpose:      rec.Purpose,
		Status:       status,
	}
	if rec.DueDate != nil && rec.DueDate.Sign() > 0 {
		loan.DueDate = time.Unix(rec.DueDate.Int64(), 0).UTC()
	}
	return loan, nil
}

func (g *Gateway) CreditScore(ctx context.Context, account common.Address) (uint64, error) {
	out, err := g.call(ctx, "getUserCreditScore", account)
	if err != nil {
		return 0, err
	}
	return unpackUint64(out, "getUserCreditScore")
}

// Balance reads the account's native balance from the network layer,
// not the ledger program.
func (g *Gateway) Balance(ctx context.Context, account common.Address) (*big.Int, error) {
	bal, err := g.backend.BalanceAt(ctx, account)
	if err != nil {
		return nil, networkFault("balance read failed", err)
	}
	return bal, nil
}

// SubmitLoanRequest signs and submits requestLoan. The returned ticket
// is in Submitted state; confirmation is a separate step so callers can
// report intermediate progress.
func (g *Gateway) SubmitLoanRequest(ctx context.Context, from common.Address, amountWei *big.Int, durationDays uint32, purpose string) (*Ticket, error) {
	data, err := microfinanceABI.Pack("requestLoan", amountWei, new(big.Int).SetUint64(uint64(durationDays)), purpose)
	if err != nil {
		return nil, fault.Wrap(fault.CodeProtocol, "pack requestLoan", err)
	}
	hash, err := g.sender.SendTransaction(ctx, wallet.TxRequest{From: from, To: g.contract, Data: data})
	if err != nil {
		return nil, networkFault("requestLoan submission failed", err)
	}
	t := newTicket(OpLoanRequest, from, hash)
	g.log.Info("loan request submitted", "op_id", t.OperationID, "tx", hash.Hex(), "account", models.ShortAddress(from.Hex()))
	return t, nil
}

// SubmitRepayment signs and submits repayLoan with a payment equal to
// the recorded loan amount.
func (g *Gateway) SubmitRepayment(ctx context.Context, from common.Address, loanID uint64, amountWei *big.Int) (*Ticket, error) {
	data, err := microfinanceABI.Pack("repayLoan", new(big.Int).SetUint64(loanID))
	if err != nil {
		return nil, fault.Wrap(fault.CodeProtocol, "pack repayLoan", err)
	}
	hash, err := g.sender.SendTransaction(ctx, wallet.TxRequest{From: from, To: g.contract, Value: amountWei, Data: data})
	if err != nil {
		return nil, networkFault("repayLoan submission failed", err)
	}
	t := newTicket(OpRepayment, from, hash)
	g.log.Info("repayment submitted", "op_id", t.OperationID, "tx", hash.Hex(), "loan_id", loanID)
	return t, nil
}

// AwaitConfirmation polls for the operation's receipt until it is mined
// or the policy bound is exceeded. The ticket always reaches a terminal
// state; only context cancellation returns early, and then the caller
// is expected to drop the result rather than apply it.
func (g *Gateway) AwaitConfirmation(ctx context.Context, t *Ticket) (*Ticket, error) {
	t.State = models.TicketPendingConfirmation
	timer := time.NewTimer(g.confirm.PollInterval)
	defer timer.Stop()

	for attempt := 0; attempt < g.confirm.MaxAttempts; attempt++ {
		receipt, err := g.backend.TransactionReceipt(ctx, t.Hash)
		switch {
		case err == nil:
			if receipt.Status == types.ReceiptStatusSuccessful {
				t.State = models.TicketConfirmed
			} else {
				t.fail(fault.CodeRejected, "ledger reverted the operation")
			}
			return t, nil
		case errors.Is(err, ethereum.NotFound):
			// unmined, keep polling
		default:
			t.fail(fault.CodeNetwork, "receipt poll failed: "+err.Error())
			return t, nil
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(g.confirm.PollInterval)
		select {
		case <-ctx.Done():
			return t, ctx.Err()
		case <-timer.C:
		}
	}
	t.fail(fault.CodeTimeout, "confirmation not observed within bound")
	return t, nil
}

func (g *Gateway) call(ctx context.Context, method string, args ...any) ([]any, error) {
	data, err := microfinanceABI.Pack(method, args...)
	if err != nil {
		return nil, fault.Wrap(fault.CodeProtocol, "pack "+method, err)
	}
	raw, err := g.backend.CallContract(ctx, g.contract, data)
	if err != nil {
		return nil, networkFault(method+" call failed", err)
	}
	out, err := microfinanceABI.Unpack(method, raw)
	if err != nil {
		return nil, fault.Wrap(fault.CodeProtocol, "unpack "+method, err)
	}
	return out, nil
}

func unpackUint64(out []any, method string) (uint64, error) {
	if len(out) != 1 {
		return 0, fault.New(fault.CodeProtocol, method+" returned unexpected shape")
	}
	v, ok := out[0].(*big.Int)
	if !ok || !v.IsUint64() {
		return 0, fault.New(fault.CodeProtocol, method+" returned a non-integer value")
	}
	return v.Uint64(), nil
}

// networkFault preserves fault codes set by lower layers (the agent
// reports authorization_denied itself) and wraps everything else as a
// network failure.
func networkFault(reason string, err error) error {
	if _, ok := fault.CodeOf(err); ok {
		return err
	}
	return fault.Wrap(fault.CodeNetwork, reason, err)
}
