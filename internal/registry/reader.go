// Package registry fetches and normalizes the full loan set for an
// account. Per-index reads are dispatched concurrently and joined; a
// failed index fails the whole fetch rather than surfacing a silently
// truncated list. Overlapping fetches are resolved with a generation
// token: the most recently started fetch wins, whatever the completion
// order.
package registry

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"microloan/go-client/internal/fault"
	"microloan/go-client/internal/ledger"
)

// ErrSuperseded marks a fetch whose result lost to a newer fetch. The
// result carries no fault code: callers drop it and wait for the
// winning fetch.
var ErrSuperseded = errors.New("registry: fetch superseded by a newer fetch")

const (
	readAttempts  = 3
	readRetryBase = 50 * time.Millisecond
)

// Gateway is the read slice of the ledger surface the registry uses.
type Gateway interface {
	LoanCount(ctx context.Context, account common.Address) (uint64, error)
	LoanAt(ctx context.Context, account common.Address, index uint64) (ledger.Loan, error)
}

type Snapshot struct {
	Account   common.Address
	Loans     []ledger.Loan
	FetchedAt time.Time
}

type Reader struct {
	gateway Gateway
	limiter *rate.Limiter // nil disables read smoothing
	log     *slog.Logger

	mu            sync.Mutex
	latestStarted uint64
	cache         *Snapshot
}

func NewReader(gateway Gateway, limiter *rate.Limiter, log *slog.Logger) *Reader {
	if log == nil {
		log = slog.Default()
	}
	return &Reader{gateway: gateway, limiter: limiter, log: log}
}

// Fetch reads the account's complete loan list. Reads are idempotent,
// so transient network failures are retried; protocol faults are not.
// When a newer fetch starts before this one commits, the result is
// discarded and ErrSuperseded returned.
func (r *Reader) Fetch(ctx context.Context, account common.Address) (Snapshot, error) {
	gen := r.begin()

	var count uint64
	err := r.withRetry(ctx, func() error {
		var err error
		count, err = r.gateway.LoanCount(ctx, account)
		return err
	})
	if err != nil {
		return Snapshot{}, err
	}

	loans := make([]ledger.Loan, count)
	if count > 0 {
		g, gctx := errgroup.WithContext(ctx)
		for i := uint64(0); i < count; i++ {
			index := i
			g.Go(func() error {
				if r.limiter != nil {
					if err := r.limiter.Wait(gctx); err != nil {
						return err
					}
				}
				return r.withRetry(gctx, func() error {
					loan, err := r.gateway.LoanAt(gctx, account, index)
					if err != nil {
						return err
					}
					loans[index] = loan
					return nil
				})
			})
		}
		if err := g.Wait(); err != nil {
			if fault.Is(err, fault.CodeProtocol) {
				return Snapshot{}, err
			}
			return Snapshot{}, fault.Wrap(fault.CodePartialReadFailure, "loan set fetch incomplete", err)
		}
	}

	snap := Snapshot{Account: account, Loans: loans, FetchedAt: time.Now().UTC()}
	if !r.commit(gen, snap) {
		r.log.Debug("stale loan fetch dropped", "generation", gen)
		return Snapshot{}, ErrSuperseded
	}
	return snap, nil
}

// Cached returns the last committed snapshot, if any. Kept through
// failed fetches so a read error never blanks an already rendered list.
func (r *Reader) Cached() (Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cache == nil {
		return Snapshot{}, false
	}
	return *r.cache, true
}

// Invalidate drops the cached snapshot and outruns every in-flight
// fetch, so nothing started before the call can commit. Used on account
// switch.
func (r *Reader) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.latestStarted++
	r.cache = nil
}

func (r *Reader) begin() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.latestStarted++
	return r.latestStarted
}

func (r *Reader) commit(gen uint64, snap Snapshot) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if gen != r.latestStarted {
		return false
	}
	r.cache = &snap
	return true
}

func (r *Reader) withRetry(ctx context.Context, fn func() error) error {
	return retry.Do(fn,
		retry.Context(ctx),
		retry.Attempts(readAttempts),
		retry.Delay(readRetryBase),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return fault.Is(err, fault.CodeNetwork)
		}),
	)
}
