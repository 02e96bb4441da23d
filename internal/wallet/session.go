// Package wallet owns the signing session: the single process-wide view
// of which account is authorized to sign, kept current from the signing
// agent's notifications rather than by polling.
//
// Accounts are common.Address values. The ledger's addressing format is
// case-insensitive with a canonical mixed-case form; parsing into the
// 20-byte address normalizes it, so address equality here is plain byte
// equality.
package wallet

import (
	"context"
	"log/slog"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"microloan/go-client/internal/fault"
)

type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
)

// Change describes a session transition delivered to subscribers.
// Reason "chain" is informational; every other reason invalidates any
// cached per-account data held downstream, whether or not the account
// value differs from the previous one.
type Change struct {
	Reason     string // "connect", "accounts", "chain", "disconnect"
	State      State
	Account    common.Address
	HasAccount bool
	ChainID    *big.Int
}

type Snapshot struct {
	State      State
	Account    common.Address
	HasAccount bool
	ChainID    *big.Int
}

type Session struct {
	mu    sync.Mutex
	agent SigningAgent
	log   *slog.Logger

	state      State
	account    common.Address
	hasAccount bool
	chainID    *big.Int

	// connect coalescing: one in-flight authorization at a time
	connectDone chan struct{}
	connectAcct common.Address
	connectErr  error

	listeners    map[int]func(Change)
	nextListener int
	unsubs       []func()
	closed       bool
}

// NewSession builds the session and subscribes to the agent's
// account-set and network notifications. Call Close to release the
// subscriptions; handlers must not leak across reconnect cycles.
func NewSession(agent SigningAgent, log *slog.Logger) *Session {
	if log == nil {
		log = slog.Default()
	}
	s := &Session{
		agent:     agent,
		log:       log,
		state:     StateDisconnected,
		listeners: make(map[int]func(Change)),
	}
	if agent != nil {
		s.unsubs = append(s.unsubs,
			agent.SubscribeAccountsChanged(s.handleAccountsChanged),
			agent.SubscribeChainChanged(s.handleChainChanged),
		)
	}
	return s
}

// Connect requests authorization from the signing agent. Concurrent
// calls while an authorization is already in flight wait for that
// attempt instead of prompting the user again.
func (s *Session) Connect(ctx context.Context) (common.Address, error) {
	s.mu.Lock()
	if s.agent == nil {
		s.mu.Unlock()
		return common.Address{}, fault.New(fault.CodeAgentUnavailable, "no signing agent configured")
	}
	if s.state == StateConnected && s.hasAccount {
		acct := s.account
		s.mu.Unlock()
		return acct, nil
	}
	if s.connectDone != nil {
		done := s.connectDone
		s.mu.Unlock()
		select {
		case <-ctx.Done():
			return common.Address{}, ctx.Err()
		case <-done:
		}
		s.mu.Lock()
		acct, err := s.connectAcct, s.connectErr
		s.mu.Unlock()
		return acct, err
	}
	done := make(chan struct{})
	s.connectDone = done
	s.state = StateConnecting
	s.mu.Unlock()

	accounts, err := s.agent.RequestAccounts(ctx)
	if err == nil && len(accounts) == 0 {
		err = fault.New(fault.CodeAuthorizationDenied, "agent returned no authorized accounts")
	}
	var chainID *big.Int
	if err == nil {
		chainID, err = s.agent.ChainID(ctx)
		if err != nil {
			err = fault.Wrap(fault.CodeNetwork, "agent chain id unavailable", err)
		}
	}

	s.mu.Lock()
	s.connectDone = nil
	if err != nil {
		s.state = StateDisconnected
		s.hasAccount = false
		s.account = common.Address{}
		s.connectAcct, s.connectErr = common.Address{}, err
		close(done)
		s.mu.Unlock()
		s.log.Warn("session connect failed", "err", err)
		return common.Address{}, err
	}
	s.state = StateConnected
	s.account = accounts[0]
	s.hasAccount = true
	s.chainID = chainID
	s.connectAcct, s.connectErr = accounts[0], nil
	close(done)
	ch := Change{Reason: "connect", State: s.state, Account: s.account, HasAccount: true, ChainID: s.chainID}
	targets := s.listenersLocked()
	s.mu.Unlock()

	s.log.Info("session connected", "account", accounts[0].Hex())
	dispatch(targets, ch)
	return accounts[0], nil
}

// Disconnect clears the active account. Agent subscriptions stay in
// place so a later reconnect reuses the same session.
func (s *Session) Disconnect() {
	s.mu.Lock()
	s.state = StateDisconnected
	s.account = common.Address{}
	s.hasAccount = false
	ch := Change{Reason: "disconnect", State: StateDisconnected}
	targets := s.listenersLocked()
	s.mu.Unlock()
	dispatch(targets, ch)
}

// CurrentAccount returns the active account, if any. Never blocks on
// agent traffic.
func (s *Session) CurrentAccount() (common.Address, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.account, s.hasAccount
}

func (s *Session) Status() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{State: s.state, Account: s.account, HasAccount: s.hasAccount, ChainID: s.chainID}
}

// SubscribeChanges registers a listener for session transitions and
// returns an unsubscribe func.
func (s *Session) SubscribeChanges(fn func(Change)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextListener
	s.nextListener++
	s.listeners[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

// Close tears the session down and releases the agent subscriptions.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.state = StateDisconnected
	s.account = common.Address{}
	s.hasAccount = false
	unsubs := s.unsubs
	s.unsubs = nil
	s.mu.Unlock()
	for _, unsub := range unsubs {
		unsub()
	}
}

func (s *Session) handleAccountsChanged(accounts []common.Address) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	var ch Change
	if len(accounts) == 0 {
		s.state = StateDisconnected
		s.account = common.Address{}
		s.hasAccount = false
		ch = Change{Reason: "disconnect", State: StateDisconnected}
	} else {
		// Re-announce even when the first account is unchanged; downstream
		// caches must refetch either way.
		s.state = StateConnected
		s.account = accounts[0]
		s.hasAccount = true
		ch = Change{Reason: "accounts", State: StateConnected, Account: s.account, HasAccount: true, ChainID: s.chainID}
	}
	targets := s.listenersLocked()
	s.mu.Unlock()
	dispatch(targets, ch)
}

func (s *Session) handleChainChanged(chainID *big.Int) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.chainID = chainID
	ch := Change{Reason: "chain", State: s.state, Account: s.account, HasAccount: s.hasAccount, ChainID: chainID}
	targets := s.listenersLocked()
	s.mu.Unlock()
	dispatch(targets, ch)
}

func (s *Session) listenersLocked() []func(Change) {
	out := make([]func(Change), 0, len(s.listeners))
	for _, fn := range s.listeners {
		out = append(out, fn)
	}
	return out
}

func dispatch(targets []func(Change), ch Change) {
	for _, fn := range targets {
		fn(ch)
	}
}
