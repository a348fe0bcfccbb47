package amm

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// CommitListener receives the events of each committed call, in order.
type CommitListener func(ctx context.Context, events []Emitted) error

// RuntimeConfig configures the execution environment.
type RuntimeConfig struct {
	Now        func() time.Time
	StartBlock uint64
}

// Runtime executes calls one at a time and atomically. Components journal an
// undo for every write they make during a call; a failed call, or a failed
// nested call, runs its undos in reverse so it leaves no trace. Reads made
// through View never observe a call in flight.
type Runtime struct {
	mu        sync.RWMutex
	listeners []CommitListener
	now       func() time.Time
	block     atomic.Uint64
	log       []Emitted
	logger    *zap.Logger
}

type tx struct {
	events  []Emitted
	journal []func()
	after   []func()
}

func NewRuntime(cfg RuntimeConfig, logger *zap.Logger) *Runtime {
	if logger == nil {
		logger = zap.NewNop()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	r := &Runtime{
		now:    now,
		logger: logger,
	}
	r.block.Store(cfg.StartBlock)
	return r
}

// OnCommit adds a listener for committed events.
func (r *Runtime) OnCommit(listener CommitListener) {
	r.mu.Lock()
	r.listeners = append(r.listeners, listener)
	r.mu.Unlock()
}

// Now returns the environment time used for deadlines and event timestamps.
func (r *Runtime) Now() time.Time {
	return r.now()
}

// Block returns the number of the last committed call. It takes no lock, so
// it is safe to call from inside View.
func (r *Runtime) Block() uint64 {
	return r.block.Load()
}

// SetBlock restores the block counter, e.g. after loading persisted state.
func (r *Runtime) SetBlock(block uint64) {
	r.mu.Lock()
	r.block.Store(block)
	r.mu.Unlock()
}

// Events returns a copy of the committed event log.
func (r *Runtime) Events() []Emitted {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Emitted, len(r.log))
	copy(out, r.log)
	return out
}

// Transact runs fn as one atomic call. Nested calls made from inside fn
// (contract-to-contract calls, token hooks) join the outer call but still
// roll back their own changes if they fail. A panic in fn rolls the call back
// and releases the runtime before it propagates.
func (r *Runtime) Transact(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if t := txFrom(ctx); t != nil {
		return r.savepoint(ctx, t, fn)
	}

	t := &tx{}
	listeners, err := r.commit(context.WithValue(ctx, txKey{}, t), t, fn)
	if err != nil {
		return err
	}

	if len(t.events) > 0 {
		for _, listener := range listeners {
			if err := listener(ctx, t.events); err != nil {
				r.logger.Warn("commit listener failed", zap.Uint64("block", t.events[0].Block), zap.Error(err))
			}
		}
	}
	for _, fn := range t.after {
		fn()
	}
	return nil
}

// commit runs the outermost call under the write lock and, on success,
// stamps and appends its events.
func (r *Runtime) commit(ctx context.Context, t *tx, fn func(ctx context.Context) error) ([]CommitListener, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.savepoint(ctx, t, fn); err != nil {
		return nil, err
	}
	t.journal = nil

	block := r.block.Add(1)
	ts := uint64(r.now().Unix())
	for i := range t.events {
		t.events[i].Block = block
		t.events[i].Index = uint(i)
		t.events[i].Timestamp = ts
	}
	r.log = append(r.log, t.events...)
	return append([]CommitListener(nil), r.listeners...), nil
}

// Apply runs an out-of-band write, such as a ledger mint, serialized with
// calls. It does not advance the block and publishes nothing. Inside a call
// it joins that call. A nil runtime runs fn directly.
func (r *Runtime) Apply(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if r == nil {
		return fn(ctx)
	}
	if t := txFrom(ctx); t != nil {
		return r.savepoint(ctx, t, fn)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	t := &tx{}
	return r.savepoint(context.WithValue(ctx, txKey{}, t), t, fn)
}

// View runs a read-only function against committed state. Inside a call it
// runs inline against that call's state. A nil runtime runs fn directly.
func (r *Runtime) View(ctx context.Context, fn func() error) error {
	if r == nil || inTx(ctx) {
		return fn()
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return fn()
}

// Journal records undo for a write just made by the call in flight. Outside
// a call, or on a nil runtime, it does nothing.
func (r *Runtime) Journal(ctx context.Context, undo func()) {
	if r == nil {
		return
	}
	if t := txFrom(ctx); t != nil {
		t.journal = append(t.journal, undo)
	}
}

// AfterCommit runs fn once the outermost call commits; it is dropped if the
// call, or the nested call that queued it, fails. Outside a call fn runs now.
func (r *Runtime) AfterCommit(ctx context.Context, fn func()) {
	if t := txFrom(ctx); r != nil && t != nil {
		t.after = append(t.after, fn)
		return
	}
	fn()
}

// Emit queues an event on the call in flight; it is published only if the
// outermost call commits.
func (r *Runtime) Emit(ctx context.Context, contract common.Address, event Event) {
	t := txFrom(ctx)
	if t == nil {
		r.logger.Warn("event emitted outside a call", zap.String("event", event.EventName()))
		return
	}
	t.events = append(t.events, Emitted{Contract: contract, Event: event})
}

func (r *Runtime) savepoint(ctx context.Context, t *tx, fn func(ctx context.Context) error) error {
	events, journal, after := len(t.events), len(t.journal), len(t.after)
	done := false
	defer func() {
		if done {
			return
		}
		for i := len(t.journal) - 1; i >= journal; i-- {
			t.journal[i]()
		}
		t.journal = t.journal[:journal]
		t.events = t.events[:events]
		t.after = t.after[:after]
	}()

	if err := fn(ctx); err != nil {
		return err
	}
	done = true
	return nil
}
