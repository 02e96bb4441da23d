package app

import (
	"context"
	"errors"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"microloan/go-client/internal/fault"
	"microloan/go-client/internal/ledger"
	"microloan/go-client/internal/registry"
	"microloan/go-client/internal/wallet"
	"microloan/go-client/pkg/models"
)

// SessionControl is the session surface the service consumes.
type SessionControl interface {
	Connect(ctx context.Context) (common.Address, error)
	Disconnect()
	Status() wallet.Snapshot
	CurrentAccount() (common.Address, bool)
	SubscribeChanges(fn func(wallet.Change)) func()
	Close()
}

// Submitter drives state-changing ledger operations to a terminal
// ticket.
type Submitter interface {
	SubmitLoanRequest(ctx context.Context, input models.LoanRequestInput) (*ledger.Ticket, error)
	SubmitRepayment(ctx context.Context, loanID uint64) (*ledger.Ticket, error)
	State() string
}

// LoanReader fetches and caches the account's loan set.
type LoanReader interface {
	Fetch(ctx context.Context, account common.Address) (registry.Snapshot, error)
	Cached() (registry.Snapshot, bool)
	Invalidate()
}

// StatsBackend covers the reads the stats view needs beyond the loan
// set.
type StatsBackend interface {
	Balance(ctx context.Context, account common.Address) (*big.Int, error)
	CreditScore(ctx context.Context, account common.Address) (uint64, error)
}

// Aggregator folds ledger reads into the account summary.
type Aggregator func(balanceWei *big.Int, loans []ledger.Loan, creditScore uint64) models.UserStats

type Service struct {
	session   SessionControl
	submitter Submitter
	reader    LoanReader
	stats     StatsBackend
	aggregate Aggregator
	hub       *NotificationHub
	log       *slog.Logger

	unsubscribe func()
}

func NewService(session SessionControl, submitter Submitter, reader LoanReader, stats StatsBackend, aggregate Aggregator, hub *NotificationHub, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	if hub == nil {
		hub = NewNotificationHub(256)
	}
	s := &Service{
		session:   session,
		submitter: submitter,
		reader:    reader,
		stats:     stats,
		aggregate: aggregate,
		hub:       hub,
		log:       log,
	}
	s.unsubscribe = session.SubscribeChanges(s.handleSessionChange)
	return s
}

func (s *Service) Hub() *NotificationHub {
	return s.hub
}

// Close releases the session subscription and the session itself.
func (s *Service) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
	s.session.Close()
}

func (s *Service) SessionConnect(ctx context.Context) (models.SessionStatus, error) {
	if _, err := s.session.Connect(ctx); err != nil {
		return models.SessionStatus{}, err
	}
	return s.SessionStatus(), nil
}

func (s *Service) SessionStatus() models.SessionStatus {
	return sessionStatus(s.session.Status())
}

func (s *Service) SessionDisconnect() models.SessionStatus {
	s.session.Disconnect()
	return s.SessionStatus()
}

// LoansList returns the account's full loan set. A fetch that lost to a
// newer one serves the winner's snapshot instead of an error.
func (s *Service) LoansList(ctx context.Context) ([]models.Loan, error) {
	account, ok := s.session.CurrentAccount()
	if !ok {
		return nil, fault.New(fault.CodeAgentUnavailable, "no connected signing session")
	}
	snap, err := s.reader.Fetch(ctx, account)
	if err != nil {
		if errors.Is(err, registry.ErrSuperseded) {
			if cached, ok := s.reader.Cached(); ok {
				return loanModels(cached.Loans), nil
			}
			return nil, fault.New(fault.CodeOperationInProgress, "a newer loan fetch is in flight")
		}
		return nil, err
	}
	return loanModels(snap.Loans), nil
}

func (s *Service) LoansRequest(ctx context.Context, input models.LoanRequestInput) (models.Ticket, error) {
	ticket, err := s.submitter.SubmitLoanRequest(ctx, input)
	if err != nil {
		return models.Ticket{}, err
	}
	return s.finishOperation(ctx, ticket), nil
}

func (s *Service) LoansRepay(ctx context.Context, loanID uint64) (models.Ticket, error) {
	ticket, err := s.submitter.SubmitRepayment(ctx, loanID)
	if err != nil {
		return models.Ticket{}, err
	}
	return s.finishOperation(ctx, ticket), nil
}

// StatsGet reads balance, loan set, and credit score, and folds them
// into the summary. All three reads answer for the same account even if
// the session switches mid-call.
func (s *Service) StatsGet(ctx context.Context) (models.UserStats, error) {
	account, ok := s.session.CurrentAccount()
	if !ok {
		return models.UserStats{}, fault.New(fault.CodeAgentUnavailable, "no connected signing session")
	}
	balance, err := s.stats.Balance(ctx, account)
	if err != nil {
		return models.UserStats{}, err
	}
	snap, err := s.reader.Fetch(ctx, account)
	if err != nil {
		if !errors.Is(err, registry.ErrSuperseded) {
			return models.UserStats{}, err
		}
		cached, ok := s.reader.Cached()
		if !ok {
			return models.UserStats{}, fault.New(fault.CodeOperationInProgress, "a newer loan fetch is in flight")
		}
		snap = cached
	}
	score, err := s.stats.CreditScore(ctx, account)
	if err != nil {
		return models.UserStats{}, err
	}
	return s.aggregate(balance, snap.Loans, score), nil
}

func (s *Service) NotificationsSince(fromSeq int64) []NotificationEvent {
	return s.hub.Since(fromSeq)
}

func (s *Service) OperationState() string {
	return s.submitter.State()
}

// finishOperation publishes the terminal ticket and, on confirmation,
// refetches the loan set so consumers see ledger truth rather than an
// optimistic local update.
func (s *Service) finishOperation(ctx context.Context, ticket *ledger.Ticket) models.Ticket {
	m := ticket.Model()
	s.hub.Publish(NotifyOperationFinished, m)
	if ticket.State == models.TicketConfirmed {
		s.refreshLoans(ctx, ticket.Account)
	}
	return m
}

func (s *Service) refreshLoans(ctx context.Context, account common.Address) {
	snap, err := s.reader.Fetch(ctx, account)
	if err != nil {
		if !errors.Is(err, registry.ErrSuperseded) {
			s.log.Warn("loan refetch after confirmation failed", "err", err)
		}
		return
	}
	s.hub.Publish(NotifyLoansUpdated, loanModels(snap.Loans))
}

// handleSessionChange reacts to session transitions. Everything except
// a network switch invalidates cached per-account reads before the
// change is announced.
func (s *Service) handleSessionChange(ch wallet.Change) {
	if ch.Reason != "chain" {
		s.reader.Invalidate()
	}
	status := models.SessionStatus{State: models.SessionState(ch.State)}
	if ch.HasAccount {
		status.Account = ch.Account.Hex()
		status.ShortAccount = models.ShortAddress(ch.Account.Hex())
	}
	if ch.ChainID != nil {
		status.ChainID = ch.ChainID.String()
	}
	s.hub.Publish(NotifySessionChanged, status)
	s.log.Info("session changed", "reason", ch.Reason, "state", ch.State)
}

func sessionStatus(snap wallet.Snapshot) models.SessionStatus {
	status := models.SessionStatus{State: models.SessionState(snap.State)}
	if snap.HasAccount {
		status.Account = snap.Account.Hex()
		status.ShortAccount = models.ShortAddress(snap.Account.Hex())
	}
	if snap.ChainID != nil {
		status.ChainID = snap.ChainID.String()
	}
	return status
}

func loanModels(loans []ledger.Loan) []models.Loan {
	out := make([]models.Loan, 0, len(loans))
	for _, loan := range loans {
		out = append(out, loan.Model())
	}
	return out
}

var _ ClientAPI = (*Service)(nil)
