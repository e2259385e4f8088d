package breaker

import (
	"context"
	"sync"
	"time"

	pkgerrors "github.com/starfall-ai/starfall-backend/pkg/errors"
)

// Options tune a Breaker. Zero values fall back to conservative defaults.
type Options struct {
	FailureThreshold int
	FailureWindow    time.Duration
	OpenDuration     time.Duration
	Now              func() time.Time
}

const (
	defaultFailureThreshold = 5
	defaultFailureWindow    = time.Minute
	defaultOpenDuration     = 30 * time.Second
)

// Breaker isolates a volatile upstream per key. State is process-local
// and rebuilt from zero on restart; it shapes load, it is not a
// correctness mechanism.
type Breaker struct {
	mu        sync.Mutex
	states    map[string]*keyState
	threshold int
	window    time.Duration
	openFor   time.Duration
	now       func() time.Time
}

type keyState struct {
	failureCount  int
	windowStarted time.Time
	openUntil     time.Time
}

// New constructs a Breaker with the provided options.
func New(opts Options) *Breaker {
	if opts.FailureThreshold <= 0 {
		opts.FailureThreshold = defaultFailureThreshold
	}
	if opts.FailureWindow <= 0 {
		opts.FailureWindow = defaultFailureWindow
	}
	if opts.OpenDuration <= 0 {
		opts.OpenDuration = defaultOpenDuration
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Breaker{
		states:    make(map[string]*keyState),
		threshold: opts.FailureThreshold,
		window:    opts.FailureWindow,
		openFor:   opts.OpenDuration,
		now:       opts.Now,
	}
}

// IsOpen reports whether calls for key are currently rejected.
func (b *Breaker) IsOpen(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	state, ok := b.states[key]
	if !ok {
		return false
	}
	return b.now().Before(state.openUntil)
}

// RecordSuccess closes the circuit for key and clears its failure count.
func (b *Breaker) RecordSuccess(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.states, key)
}

// RecordFailure notes one failure for key, opening the circuit once the
// threshold is reached inside the sliding window.
func (b *Breaker) RecordFailure(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	state, ok := b.states[key]
	if !ok {
		state = &keyState{}
		b.states[key] = state
	}

	if state.failureCount == 0 || now.Sub(state.windowStarted) > b.window {
		state.failureCount = 0
		state.windowStarted = now
	}
	state.failureCount++
	if state.failureCount >= b.threshold {
		state.openUntil = now.Add(b.openFor)
		state.failureCount = 0
		state.windowStarted = time.Time{}
	}
}

// Run invokes fn unless the circuit for key is open. A call arriving
// after the open period expired runs as an ordinary closed-state call:
// if it fails, the window/threshold logic decides whether to reopen.
func (b *Breaker) Run(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	if b.IsOpen(key) {
		return pkgerrors.New(pkgerrors.CodeCircuitOpen, "circuit open for "+key)
	}
	if err := fn(ctx); err != nil {
		b.RecordFailure(key)
		return err
	}
	b.RecordSuccess(key)
	return nil
}
