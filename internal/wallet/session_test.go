package wallet

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"microloan/go-client/internal/fault"
)

type fakeAgent struct {
	mu              sync.Mutex
	accounts        []common.Address
	requestErr      error
	requestCalls    int
	requestStarted  chan struct{}
	requestRelease  chan struct{}
	accountHandlers []func([]common.Address)
	chainHandlers   []func(*big.Int)
	unsubscribed    int
}

func newFakeAgent(accounts ...common.Address) *fakeAgent {
	return &fakeAgent{accounts: accounts}
}

func (a *fakeAgent) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	a.mu.Lock()
	a.requestCalls++
	started := a.requestStarted
	release := a.requestRelease
	err := a.requestErr
	accounts := append([]common.Address(nil), a.accounts...)
	a.mu.Unlock()
	if started != nil {
		close(started)
		a.mu.Lock()
		a.requestStarted = nil
		a.mu.Unlock()
	}
	if release != nil {
		<-release
	}
	if err != nil {
		return nil, err
	}
	return accounts, nil
}

func (a *fakeAgent) ChainID(ctx context.Context) (*big.Int, error) {
	return big.NewInt(31337), nil
}

func (a *fakeAgent) SendTransaction(ctx context.Context, req TxRequest) (common.Hash, error) {
	return common.Hash{}, nil
}

func (a *fakeAgent) SubscribeAccountsChanged(handler func([]common.Address)) func() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.accountHandlers = append(a.accountHandlers, handler)
	return func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		a.unsubscribed++
	}
}

func (a *fakeAgent) SubscribeChainChanged(handler func(*big.Int)) func() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.chainHandlers = append(a.chainHandlers, handler)
	return func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		a.unsubscribed++
	}
}

func (a *fakeAgent) fireAccountsChanged(accounts []common.Address) {
	a.mu.Lock()
	handlers := append([](func([]common.Address))(nil), a.accountHandlers...)
	a.mu.Unlock()
	for _, h := range handlers {
		h(accounts)
	}
}

var (
	acctA = common.HexToAddress("0x5eFd57C010b974F05CBEB2c69703c97A4Fb45F28")
	acctB = common.HexToAddress("0x00000000000000000000000000000000000000aa")
)

func TestConnectSuccess(t *testing.T) {
	s := NewSession(newFakeAgent(acctA), nil)
	defer s.Close()

	got, err := s.Connect(context.Background())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if got != acctA {
		t.Fatalf("unexpected account: %s", got.Hex())
	}
	snap := s.Status()
	if snap.State != StateConnected || snap.ChainID.Int64() != 31337 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}

func TestConnectWithoutAgent(t *testing.T) {
	s := NewSession(nil, nil)
	defer s.Close()

	_, err := s.Connect(context.Background())
	if !fault.Is(err, fault.CodeAgentUnavailable) {
		t.Fatalf("expected agent_unavailable, got %v", err)
	}
}

func TestConnectDeniedReturnsToDisconnected(t *testing.T) {
	agent := newFakeAgent()
	agent.requestErr = fault.New(fault.CodeAuthorizationDenied, "user rejected")
	s := NewSession(agent, nil)
	defer s.Close()

	_, err := s.Connect(context.Background())
	if !fault.Is(err, fault.CodeAuthorizationDenied) {
		t.Fatalf("expected authorization_denied, got %v", err)
	}
	if snap := s.Status(); snap.State != StateDisconnected || snap.HasAccount {
		t.Fatalf("session must return to disconnected: %+v", snap)
	}
}

func TestConnectEmptyAccountSetIsDenied(t *testing.T) {
	s := NewSession(newFakeAgent(), nil)
	defer s.Close()

	_, err := s.Connect(context.Background())
	if !fault.Is(err, fault.CodeAuthorizationDenied) {
		t.Fatalf("expected authorization_denied, got %v", err)
	}
}

func TestConcurrentConnectsCoalesce(t *testing.T) {
	agent := newFakeAgent(acctA)
	agent.requestStarted = make(chan struct{})
	agent.requestRelease = make(chan struct{})
	s := NewSession(agent, nil)
	defer s.Close()

	first := make(chan error, 1)
	go func() {
		_, err := s.Connect(context.Background())
		first <- err
	}()
	<-agent.requestStarted

	second := make(chan error, 1)
	go func() {
		_, err := s.Connect(context.Background())
		second <- err
	}()

	// Give the second call a moment to reach the coalescing path, then
	// let the single authorization finish.
	time.Sleep(20 * time.Millisecond)
	close(agent.requestRelease)

	for i, ch := range []chan error{first, second} {
		select {
		case err := <-ch:
			if err != nil {
				t.Fatalf("connect %d: %v", i, err)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("connect %d did not finish", i)
		}
	}
	if agent.requestCalls != 1 {
		t.Fatalf("authorization prompt must not be duplicated, got %d calls", agent.requestCalls)
	}
}

func TestAccountsChangedEmptySetDisconnects(t *testing.T) {
	agent := newFakeAgent(acctA)
	s := NewSession(agent, nil)
	defer s.Close()
	if _, err := s.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	var changes []Change
	var mu sync.Mutex
	unsub := s.SubscribeChanges(func(c Change) {
		mu.Lock()
		changes = append(changes, c)
		mu.Unlock()
	})
	defer unsub()

	agent.fireAccountsChanged(nil)

	if snap := s.Status(); snap.State != StateDisconnected || snap.HasAccount {
		t.Fatalf("expected disconnected with no account: %+v", snap)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(changes) != 1 || changes[0].Reason != "disconnect" {
		t.Fatalf("unexpected changes: %+v", changes)
	}
}

func TestAccountsChangedSameAccountStillNotifies(t *testing.T) {
	agent := newFakeAgent(acctA)
	s := NewSession(agent, nil)
	defer s.Close()
	if _, err := s.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	notified := 0
	unsub := s.SubscribeChanges(func(c Change) {
		if c.Reason == "accounts" {
			notified++
		}
	})
	defer unsub()

	agent.fireAccountsChanged([]common.Address{acctA})
	agent.fireAccountsChanged([]common.Address{acctB})

	if notified != 2 {
		t.Fatalf("every account-set notification must re-announce, got %d", notified)
	}
	if acct, ok := s.CurrentAccount(); !ok || acct != acctB {
		t.Fatalf("unexpected active account: %s ok=%v", acct.Hex(), ok)
	}
}

func TestCloseReleasesAgentSubscriptions(t *testing.T) {
	agent := newFakeAgent(acctA)
	s := NewSession(agent, nil)
	s.Close()
	s.Close() // idempotent

	agent.mu.Lock()
	defer agent.mu.Unlock()
	if agent.unsubscribed != 2 {
		t.Fatalf("expected both subscriptions released, got %d", agent.unsubscribed)
	}
}
