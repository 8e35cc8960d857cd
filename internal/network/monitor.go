// Package network provides the connectivity signal consumed by the
// reconciliation engine. The engine only ever asks for a boolean.
package network

import (
	"context"
	"log"
	"net/http"
	"os"
	"sync/atomic"
	"time"
)

// Static is a fixed connectivity state, for tests and forced-offline mode.
type Static bool

func (s Static) Online() bool { return bool(s) }

// Probe reports connectivity by periodically issuing a HEAD request against
// the remote service's base URL. Any response at all counts as online;
// transport errors count as offline.
type Probe struct {
	url      string
	interval time.Duration
	client   *http.Client
	logger   *log.Logger

	online atomic.Bool
	stop   chan struct{}
	done   chan struct{}
}

func NewProbe(url string, interval time.Duration, logger *log.Logger) *Probe {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if logger == nil {
		logger = log.New(os.Stderr, "[network] ", log.LstdFlags)
	}
	return &Probe{
		url:      url,
		interval: interval,
		client:   &http.Client{Timeout: 5 * time.Second},
		logger:   logger,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (p *Probe) Online() bool { return p.online.Load() }

// Start checks once immediately, then keeps the cached state fresh in the
// background until Stop is called.
func (p *Probe) Start() {
	p.check()
	go func() {
		defer close(p.done)
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				p.check()
			case <-p.stop:
				return
			}
		}
	}()
}

func (p *Probe) Stop() {
	close(p.stop)
	<-p.done
}

func (p *Probe) check() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.url, nil)
	if err != nil {
		p.online.Store(false)
		return
	}
	resp, err := p.client.Do(req)
	if err != nil {
		if p.online.Swap(false) {
			p.logger.Printf("connection lost: %v", err)
		}
		return
	}
	resp.Body.Close()
	if !p.online.Swap(true) {
		p.logger.Printf("connection restored")
	}
}
