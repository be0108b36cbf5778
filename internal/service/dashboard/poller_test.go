package dashboard

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/nilm-chat/backend/internal/model/metrics"
)

type failingSource struct{}

func (failingSource) Name() string { return "broken" }

func (failingSource) Fetch(context.Context) ([]metrics.Reading, error) {
	return nil, errors.New("upstream unavailable")
}

func TestRemoteSourceFetch(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, CurrentDataPath, r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":"7","loadType":"Heater","voltage":230,"current":4.3,"power":1000,"thd":1.2,"timestamp":"2024-05-01T10:00:00Z"}]`))
	}))
	defer upstream.Close()

	readings, err := NewRemoteSource(upstream.URL+"/", time.Second).Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, readings, 1)
	assert.Equal(t, "Heater", readings[0].LoadType)
	assert.Equal(t, 1000.0, readings[0].Power)
}

func TestRemoteSourceFetchNaiveBackendPayload(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":7,"loadType":"LED","voltage":229.8,"current":0.1,"power":9.5,"thd":12.4,"timestamp":"2024-05-01T10:00:00.123456"}]`))
	}))
	defer upstream.Close()

	readings, err := NewRemoteSource(upstream.URL, time.Second).Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, readings, 1)
	assert.Equal(t, "7", readings[0].ID)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 123456000, time.UTC), readings[0].Timestamp.UTC())
}

func TestRemoteSourceStatusError(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer upstream.Close()

	_, err := NewRemoteSource(upstream.URL, time.Second).Fetch(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 502")
}

func TestPollerFallsBackToMock(t *testing.T) {
	p := NewPoller(failingSource{}, NewMockSource(), Config{})

	snapshot, err := p.refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "mock", snapshot.Source)
	assert.Len(t, snapshot.Readings, 3)
	assert.Equal(t, snapshot, p.Snapshot())
}

func TestPollerKeepsPreviousSnapshotWithoutFallback(t *testing.T) {
	p := NewPoller(failingSource{}, nil, Config{})

	snapshot, err := p.refresh(context.Background())
	require.Error(t, err)
	assert.Empty(t, snapshot.Readings)
	assert.True(t, snapshot.UpdatedAt.IsZero())
}

func TestPollerRefreshThrottled(t *testing.T) {
	p := NewPoller(NewMockSource(), nil, Config{RefreshInterval: time.Hour})

	_, err := p.Refresh(context.Background())
	require.NoError(t, err)

	snapshot, err := p.Refresh(context.Background())
	assert.ErrorIs(t, err, ErrRefreshThrottled)
	assert.Len(t, snapshot.Readings, 3)
}

func TestPollerSnapshotIsCopy(t *testing.T) {
	p := NewPoller(NewMockSource(), nil, Config{})
	_, err := p.refresh(context.Background())
	require.NoError(t, err)

	snapshot := p.Snapshot()
	snapshot.Readings[0].LoadType = "changed"

	assert.Equal(t, "Incandescent Bulb", p.Snapshot().Readings[0].LoadType)
}

func TestPollerSubscribe(t *testing.T) {
	p := NewPoller(NewMockSource(), nil, Config{})
	updates, cancel := p.Subscribe()

	_, err := p.refresh(context.Background())
	require.NoError(t, err)

	select {
	case snapshot := <-updates:
		assert.Equal(t, "mock", snapshot.Source)
	case <-time.After(time.Second):
		t.Fatal("no snapshot delivered")
	}

	cancel()
	cancel()
	_, open := <-updates
	assert.False(t, open)
}

func TestPollerRunStopsOnCancel(t *testing.T) {
	p := NewPoller(NewMockSource(), nil, Config{Interval: 10 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, func() bool {
		return len(p.Snapshot().Readings) == 3
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("poller did not stop")
	}
}
