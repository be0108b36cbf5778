package resolver

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type resolverFunc func(ctx context.Context, utterance string) (string, error)

func (f resolverFunc) Resolve(ctx context.Context, utterance string) (string, error) {
	return f(ctx, utterance)
}

func TestTrackerSuccessClearsState(t *testing.T) {
	tracker := NewTracker(resolverFunc(func(context.Context, string) (string, error) {
		return "ok", nil
	}))

	reply, err := tracker.Resolve(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "ok", reply)

	state := tracker.State()
	assert.False(t, state.Loading)
	assert.Nil(t, state.Error)
}

func TestTrackerFailureRecordsError(t *testing.T) {
	fail := true
	tracker := NewTracker(resolverFunc(func(context.Context, string) (string, error) {
		if fail {
			return "", networkError("timeout of 10000ms exceeded", 0, nil)
		}
		return "ok", nil
	}))

	_, err := tracker.Resolve(context.Background(), "hi")
	require.ErrorIs(t, err, ErrNetwork)

	state := tracker.State()
	assert.False(t, state.Loading)
	require.NotNil(t, state.Error)
	assert.Equal(t, "timeout of 10000ms exceeded", *state.Error)

	fail = false
	_, err = tracker.Resolve(context.Background(), "hi")
	require.NoError(t, err)
	assert.Nil(t, tracker.State().Error)
}

func TestTrackerLoadingWhileInFlight(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	tracker := NewTracker(resolverFunc(func(context.Context, string) (string, error) {
		close(started)
		<-release
		return "late", nil
	}))

	done := make(chan error, 1)
	go func() {
		_, err := tracker.Resolve(context.Background(), "first")
		done <- err
	}()

	<-started
	assert.True(t, tracker.State().Loading)

	_, err := tracker.Resolve(context.Background(), "second")
	assert.True(t, errors.Is(err, ErrBusy))
	assert.True(t, tracker.State().Loading)

	close(release)
	require.NoError(t, <-done)
	assert.False(t, tracker.State().Loading)
}
