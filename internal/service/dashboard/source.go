package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/samber/oops"

	"github.com/zhouzirui/nilm-chat/backend/internal/model/metrics"
	"github.com/zhouzirui/nilm-chat/backend/internal/service/resolver"
)

// CurrentDataPath is appended to the upstream base URL.
const CurrentDataPath = "/current-data"

// Source yields the current set of detected loads.
type Source interface {
	Name() string
	Fetch(ctx context.Context) ([]metrics.Reading, error)
}

// RemoteSource reads {BaseURL}/current-data.
type RemoteSource struct {
	endpoint   string
	httpClient *http.Client
}

// NewRemoteSource creates a source for the upstream data endpoint.
func NewRemoteSource(baseURL string, timeout time.Duration) *RemoteSource {
	if timeout <= 0 {
		timeout = resolver.DefaultTimeout
	}
	return &RemoteSource{
		endpoint:   strings.TrimRight(baseURL, "/") + CurrentDataPath,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (s *RemoteSource) Name() string { return "remote" }

// Fetch decodes the upstream array verbatim.
func (s *RemoteSource) Fetch(ctx context.Context) ([]metrics.Reading, error) {
	errb := oops.In("dashboard").With("url", s.endpoint)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint, nil)
	if err != nil {
		return nil, errb.Wrapf(err, "build request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, errb.Wrapf(err, "fetch current data")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errb.With("status", resp.StatusCode).Errorf("unexpected status %d", resp.StatusCode)
	}

	var readings []metrics.Reading
	if err := json.NewDecoder(resp.Body).Decode(&readings); err != nil {
		return nil, errb.Wrapf(err, "decode current data")
	}
	return readings, nil
}

// MockSource serves the static mock snapshot.
type MockSource struct {
	now func() time.Time
}

// NewMockSource returns a source stamping readings with the call time.
func NewMockSource() *MockSource {
	return &MockSource{now: time.Now}
}

func (s *MockSource) Name() string { return "mock" }

func (s *MockSource) Fetch(context.Context) ([]metrics.Reading, error) {
	return resolver.MockReadings(s.now().UTC()), nil
}
