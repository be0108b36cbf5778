// Package dashboard keeps the latest snapshot of detected loads, refreshed on a timer.
package dashboard

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/zhouzirui/nilm-chat/backend/internal/model/metrics"
	"github.com/zhouzirui/nilm-chat/backend/pkg/log"
)

const (
	DefaultPollInterval    = 30 * time.Second
	DefaultRefreshInterval = 2 * time.Second

	subscriberBuffer = 4
)

var ErrRefreshThrottled = errors.New("refresh requested too frequently")

// Snapshot is the latest reading set. Only one snapshot is retained.
type Snapshot struct {
	Readings  []metrics.Reading `json:"readings"`
	Source    string            `json:"source"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

// Config tunes the poller.
type Config struct {
	Interval        time.Duration
	RefreshInterval time.Duration
}

// Poller refreshes the snapshot from a primary source, optionally falling back to a second one.
type Poller struct {
	primary  Source
	fallback Source
	interval time.Duration
	limiter  *rate.Limiter
	now      func() time.Time

	refreshMu sync.Mutex

	mu          sync.RWMutex
	snapshot    Snapshot
	subscribers map[string]chan Snapshot
}

// NewPoller creates a poller. fallback may be nil.
func NewPoller(primary, fallback Source, cfg Config) *Poller {
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	refreshInterval := cfg.RefreshInterval
	if refreshInterval <= 0 {
		refreshInterval = DefaultRefreshInterval
	}

	return &Poller{
		primary:     primary,
		fallback:    fallback,
		interval:    interval,
		limiter:     rate.NewLimiter(rate.Every(refreshInterval), 1),
		now:         func() time.Time { return time.Now().UTC() },
		subscribers: make(map[string]chan Snapshot),
	}
}

// Run refreshes immediately and then on every tick until ctx is done.
func (p *Poller) Run(ctx context.Context) error {
	log.Infow("dashboard poller started", "source", p.primary.Name(), "interval", p.interval.String())

	if _, err := p.refresh(ctx); err != nil {
		log.Warnw("initial dashboard refresh failed", "error", err)
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Infow("dashboard poller stopped")
			return nil
		case <-ticker.C:
			if _, err := p.refresh(ctx); err != nil {
				log.Warnw("dashboard refresh failed", "error", err)
			}
		}
	}
}

// Refresh is the user-triggered refresh; it is rate limited.
func (p *Poller) Refresh(ctx context.Context) (Snapshot, error) {
	if !p.limiter.Allow() {
		return p.Snapshot(), ErrRefreshThrottled
	}
	return p.refresh(ctx)
}

func (p *Poller) refresh(ctx context.Context) (Snapshot, error) {
	p.refreshMu.Lock()
	defer p.refreshMu.Unlock()

	source := p.primary
	readings, err := p.primary.Fetch(ctx)
	if err != nil {
		log.Errorw("failed to fetch electrical data", "source", p.primary.Name(), "error", err)
		if p.fallback == nil {
			return p.Snapshot(), err
		}
		source = p.fallback
		readings, err = p.fallback.Fetch(ctx)
		if err != nil {
			return p.Snapshot(), err
		}
	}
	if readings == nil {
		readings = []metrics.Reading{}
	}

	snapshot := Snapshot{
		Readings:  readings,
		Source:    source.Name(),
		UpdatedAt: p.now(),
	}

	p.mu.Lock()
	p.snapshot = snapshot
	for id, ch := range p.subscribers {
		select {
		case ch <- snapshot:
		default:
			log.Warnw("dashboard subscriber is full, dropping snapshot", "subscriber", id)
		}
	}
	p.mu.Unlock()

	return snapshot, nil
}

// Snapshot returns the latest snapshot; Readings is a copy.
func (p *Poller) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	snapshot := p.snapshot
	snapshot.Readings = append([]metrics.Reading(nil), p.snapshot.Readings...)
	return snapshot
}

// Subscribe receives every snapshot stored after the call.
func (p *Poller) Subscribe() (<-chan Snapshot, func()) {
	id := uuid.NewString()
	ch := make(chan Snapshot, subscriberBuffer)

	p.mu.Lock()
	p.subscribers[id] = ch
	p.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.subscribers, id)
			p.mu.Unlock()
			close(ch)
		})
	}
}
