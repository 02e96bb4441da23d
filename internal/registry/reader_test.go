package registry

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"microloan/go-client/internal/fault"
	"microloan/go-client/internal/ledger"
)

var testAccount = common.HexToAddress("0x5eFd57C010b974F05CBEB2c69703c97A4Fb45F28")

type fakeGateway struct {
	mu         sync.Mutex
	count      uint64
	countErr   error
	loanAt     func(index uint64) (ledger.Loan, error)
	countCalls int
	loanCalls  int
}

func (g *fakeGateway) LoanCount(ctx context.Context, account common.Address) (uint64, error) {
	g.mu.Lock()
	g.countCalls++
	g.mu.Unlock()
	if g.countErr != nil {
		return 0, g.countErr
	}
	return g.count, nil
}

func (g *fakeGateway) LoanAt(ctx context.Context, account common.Address, index uint64) (ledger.Loan, error) {
	g.mu.Lock()
	g.loanCalls++
	g.mu.Unlock()
	if g.loanAt != nil {
		return g.loanAt(index)
	}
	return ledger.Loan{ID: index, Amount: big.NewInt(int64(index + 1)), Status: ledger.StatusApproved}, nil
}

func TestFetchEmpty(t *testing.T) {
	r := NewReader(&fakeGateway{count: 0}, nil, nil)

	snap, err := r.Fetch(context.Background(), testAccount)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(snap.Loans) != 0 {
		t.Fatalf("expected empty loan set, got %d", len(snap.Loans))
	}
}

func TestFetchPreservesLedgerIndexOrder(t *testing.T) {
	r := NewReader(&fakeGateway{count: 5}, nil, nil)

	snap, err := r.Fetch(context.Background(), testAccount)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(snap.Loans) != 5 {
		t.Fatalf("expected 5 loans, got %d", len(snap.Loans))
	}
	for i, loan := range snap.Loans {
		if loan.ID != uint64(i) {
			t.Fatalf("loan %d carries id %d; ledger index is the stable id", i, loan.ID)
		}
	}

	cached, ok := r.Cached()
	if !ok || len(cached.Loans) != 5 {
		t.Fatalf("snapshot must be cached, ok=%v", ok)
	}
}

func TestFetchPartialFailure(t *testing.T) {
	gw := &fakeGateway{count: 4}
	gw.loanAt = func(index uint64) (ledger.Loan, error) {
		if index == 2 {
			return ledger.Loan{}, fault.Wrap(fault.CodeNetwork, "read failed", errors.New("boom"))
		}
		return ledger.Loan{ID: index, Amount: big.NewInt(1)}, nil
	}
	r := NewReader(gw, nil, nil)

	_, err := r.Fetch(context.Background(), testAccount)
	if !fault.Is(err, fault.CodePartialReadFailure) {
		t.Fatalf("expected partial_read_failure, got %v", err)
	}
}

func TestFetchKeepsPreviousGoodValueOnFailure(t *testing.T) {
	gw := &fakeGateway{count: 2}
	r := NewReader(gw, nil, nil)
	if _, err := r.Fetch(context.Background(), testAccount); err != nil {
		t.Fatalf("seed fetch: %v", err)
	}

	gw.mu.Lock()
	gw.countErr = fault.Wrap(fault.CodeNetwork, "count read failed", errors.New("down"))
	gw.mu.Unlock()

	if _, err := r.Fetch(context.Background(), testAccount); err == nil {
		t.Fatal("expected fetch failure")
	}
	if cached, ok := r.Cached(); !ok || len(cached.Loans) != 2 {
		t.Fatalf("previous good value must be retained, ok=%v", ok)
	}
}

func TestFetchProtocolFaultPassesThrough(t *testing.T) {
	gw := &fakeGateway{count: 1}
	gw.loanAt = func(uint64) (ledger.Loan, error) {
		return ledger.Loan{}, fault.New(fault.CodeProtocol, "unknown loan status code 9")
	}
	r := NewReader(gw, nil, nil)

	_, err := r.Fetch(context.Background(), testAccount)
	if !fault.Is(err, fault.CodeProtocol) {
		t.Fatalf("expected protocol fault, got %v", err)
	}
}

func TestTransientReadFailuresAreRetried(t *testing.T) {
	var attempts int
	var mu sync.Mutex
	gw := &fakeGateway{count: 1}
	gw.loanAt = func(index uint64) (ledger.Loan, error) {
		mu.Lock()
		attempts++
		n := attempts
		mu.Unlock()
		if n == 1 {
			return ledger.Loan{}, fault.Wrap(fault.CodeNetwork, "read failed", errors.New("flaky"))
		}
		return ledger.Loan{ID: index, Amount: big.NewInt(1)}, nil
	}
	r := NewReader(gw, nil, nil)

	snap, err := r.Fetch(context.Background(), testAccount)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(snap.Loans) != 1 || attempts != 2 {
		t.Fatalf("expected one retry, attempts=%d", attempts)
	}
}

func TestNewerFetchSupersedesOlder(t *testing.T) {
	release := make(chan struct{})
	var calls int
	var mu sync.Mutex
	gw := &fakeGateway{count: 1}
	gw.loanAt = func(index uint64) (ledger.Loan, error) {
		mu.Lock()
		calls++
		first := calls == 1
		mu.Unlock()
		if first {
			// The first fetch stalls until the second one has committed.
			<-release
			return ledger.Loan{ID: index, Amount: big.NewInt(100)}, nil
		}
		return ledger.Loan{ID: index, Amount: big.NewInt(200)}, nil
	}
	r := NewReader(gw, nil, nil)

	firstResult := make(chan error, 1)
	go func() {
		_, err := r.Fetch(context.Background(), testAccount)
		firstResult <- err
	}()

	// Wait until the first fetch is inside its index read.
	deadline := time.After(2 * time.Second)
	for {
		mu.Lock()
		started := calls >= 1
		mu.Unlock()
		if started {
			break
		}
		select {
		case <-deadline:
			t.Fatal("first fetch never started reading")
		case <-time.After(time.Millisecond):
		}
	}

	snap, err := r.Fetch(context.Background(), testAccount)
	if err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	if snap.Loans[0].Amount.Int64() != 200 {
		t.Fatalf("unexpected winning snapshot: %+v", snap.Loans[0])
	}

	close(release)
	if err := <-firstResult; !errors.Is(err, ErrSuperseded) {
		t.Fatalf("older fetch must be superseded, got %v", err)
	}
	if cached, _ := r.Cached(); cached.Loans[0].Amount.Int64() != 200 {
		t.Fatalf("cache must hold the newest fetch, got %s", cached.Loans[0].Amount)
	}
}

func TestInvalidateOutrunsInFlightFetch(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	var once sync.Once
	gw := &fakeGateway{count: 1}
	gw.loanAt = func(index uint64) (ledger.Loan, error) {
		once.Do(func() { close(started) })
		<-release
		return ledger.Loan{ID: index, Amount: big.NewInt(1)}, nil
	}
	r := NewReader(gw, nil, nil)

	result := make(chan error, 1)
	go func() {
		_, err := r.Fetch(context.Background(), testAccount)
		result <- err
	}()
	<-started

	r.Invalidate() // account switched
	close(release)

	if err := <-result; !errors.Is(err, ErrSuperseded) {
		t.Fatalf("fetch from before the switch must not commit, got %v", err)
	}
	if _, ok := r.Cached(); ok {
		t.Fatal("cache must stay empty after invalidation")
	}
}
