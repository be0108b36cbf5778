package resolver

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/semaphore"
)

// State is the observable resolver status.
type State struct {
	Loading bool    `json:"loading"`
	Error   *string `json:"error"`
}

// Tracker wraps a Resolver with loading/error state and admits one call at a time.
type Tracker struct {
	resolver Resolver
	slot     *semaphore.Weighted

	mu      sync.RWMutex
	loading bool
	lastErr *string
}

// NewTracker wraps resolver.
func NewTracker(resolver Resolver) *Tracker {
	return &Tracker{
		resolver: resolver,
		slot:     semaphore.NewWeighted(1),
	}
}

// Resolve runs one resolution. While another call is in flight it returns ErrBusy
// and leaves the state untouched.
func (t *Tracker) Resolve(ctx context.Context, utterance string) (string, error) {
	if !t.slot.TryAcquire(1) {
		return "", ErrBusy
	}
	defer t.slot.Release(1)

	t.mu.Lock()
	t.loading = true
	t.lastErr = nil
	t.mu.Unlock()

	reply, err := t.resolver.Resolve(ctx, utterance)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.loading = false
	if err != nil {
		message := displayMessage(err)
		t.lastErr = &message
		return "", err
	}

	return reply, nil
}

// State returns a snapshot of the loading flag and last error.
func (t *Tracker) State() State {
	t.mu.RLock()
	defer t.mu.RUnlock()

	state := State{Loading: t.loading}
	if t.lastErr != nil {
		message := *t.lastErr
		state.Error = &message
	}
	return state
}

func displayMessage(err error) string {
	var resolveErr *Error
	if errors.As(err, &resolveErr) && resolveErr.Message != "" {
		return resolveErr.Message
	}
	return err.Error()
}
