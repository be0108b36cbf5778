package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newUpstream(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestRemoteResolverSendsMessage(t *testing.T) {
	srv := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, ChatPath, r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))

		var payload map[string]string
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&payload)) {
			return
		}
		assert.Equal(t, "What is my THD?", payload["message"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"response":{"message":"X"}}`))
	})

	remote := NewRemoteResolver(RemoteConfig{BaseURL: srv.URL + "/"})
	reply, err := remote.Resolve(context.Background(), "What is my THD?")
	require.NoError(t, err)
	assert.Equal(t, "X", reply)
}

func TestRemoteResolverEmptyBody(t *testing.T) {
	srv := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	_, err := NewRemoteResolver(RemoteConfig{BaseURL: srv.URL}).Resolve(context.Background(), "hi")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmptyResponse)
	assert.Equal(t, "Empty response from server", err.Error())
}

func TestRemoteResolverPlainTextBody(t *testing.T) {
	srv := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("Hello from plain text server"))
	})

	reply, err := NewRemoteResolver(RemoteConfig{BaseURL: srv.URL}).Resolve(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "Hello from plain text server", reply)
}

func TestRemoteResolverFalsyBody(t *testing.T) {
	srv := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("false"))
	})

	_, err := NewRemoteResolver(RemoteConfig{BaseURL: srv.URL}).Resolve(context.Background(), "hi")
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestRemoteResolverServerMessageOnError(t *testing.T) {
	srv := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"message":"model offline"}`))
	})

	_, err := NewRemoteResolver(RemoteConfig{BaseURL: srv.URL}).Resolve(context.Background(), "hi")
	require.Error(t, err)

	var resolveErr *Error
	require.True(t, errors.As(err, &resolveErr))
	assert.Equal(t, KindNetwork, resolveErr.Kind)
	assert.Equal(t, http.StatusBadGateway, resolveErr.Status)
	assert.Equal(t, "model offline", resolveErr.Message)
}

func TestRemoteResolverStatusMessage(t *testing.T) {
	srv := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	_, err := NewRemoteResolver(RemoteConfig{BaseURL: srv.URL}).Resolve(context.Background(), "hi")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNetwork)
	assert.Equal(t, "Request failed with status code 500", err.Error())
}

func TestRemoteResolverTimeout(t *testing.T) {
	srv := newUpstream(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	})

	remote := NewRemoteResolver(RemoteConfig{BaseURL: srv.URL, Timeout: 50 * time.Millisecond})
	_, err := remote.Resolve(context.Background(), "hi")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNetwork)
	assert.Equal(t, "timeout of 50ms exceeded", err.Error())
}

func TestRemoteResolverConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewRemoteResolver(RemoteConfig{BaseURL: url}).Resolve(context.Background(), "hi")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNetwork)
	assert.NotEmpty(t, err.Error())
}

func TestRemoteResolverDefaultTimeout(t *testing.T) {
	remote := NewRemoteResolver(RemoteConfig{BaseURL: "http://localhost:8000"})
	assert.Equal(t, DefaultTimeout, remote.timeout)
	assert.Equal(t, "http://localhost:8000/api/chat", remote.endpoint)
}
