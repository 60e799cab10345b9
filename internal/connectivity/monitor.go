// Package connectivity reports whether the remote backend is reachable and
// signals the moment connectivity returns.
package connectivity

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// Observer exposes a boolean online signal plus an edge-triggered
// became-online event. The sync worker drains the queue on every
// became-online edge.
type Observer interface {
	// Online reports the last observed connectivity state.
	Online() bool

	// BecameOnline delivers one signal per offline-to-online transition.
	BecameOnline() <-chan struct{}
}

// Monitor is a probe-based Observer: it periodically issues a cheap request
// against the backend's health endpoint and tracks reachability.
type Monitor struct {
	probeURL string
	interval time.Duration
	client   *http.Client

	online atomic.Bool
	edges  chan struct{}

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

var _ Observer = (*Monitor)(nil)

// NewMonitor creates a Monitor that probes probeURL every interval.
func NewMonitor(probeURL string, interval, timeout time.Duration) *Monitor {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Monitor{
		probeURL: probeURL,
		interval: interval,
		client:   &http.Client{Timeout: timeout},
		edges:    make(chan struct{}, 1),
	}
}

// Start begins probing. Returns an error if already running.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return fmt.Errorf("connectivity monitor is already running")
	}
	m.running = true
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})
	m.mu.Unlock()

	go m.loop(ctx)
	return nil
}

// Stop halts probing and waits for the loop to exit.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stopCh)
	doneCh := m.doneCh
	m.mu.Unlock()
	<-doneCh
}

func (m *Monitor) loop(ctx context.Context) {
	defer close(m.doneCh)

	// Probe immediately so the first drain does not wait a full interval.
	m.probe(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.probe(ctx)
		}
	}
}

func (m *Monitor) probe(ctx context.Context) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, m.probeURL, nil)
	if err != nil {
		m.observe(false)
		return
	}
	resp, err := m.client.Do(req)
	if err != nil {
		m.observe(false)
		return
	}
	resp.Body.Close()
	m.observe(resp.StatusCode < 500)
}

// observe records a probe result and emits an edge on offline-to-online.
func (m *Monitor) observe(online bool) {
	was := m.online.Swap(online)
	if online && !was {
		slog.Info("Connectivity restored", "probe_url", m.probeURL)
		select {
		case m.edges <- struct{}{}:
		default:
		}
	}
	if !online && was {
		slog.Warn("Connectivity lost", "probe_url", m.probeURL)
	}
}

// Online reports the last observed connectivity state.
func (m *Monitor) Online() bool { return m.online.Load() }

// BecameOnline delivers one signal per offline-to-online transition.
func (m *Monitor) BecameOnline() <-chan struct{} { return m.edges }
