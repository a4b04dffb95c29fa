package health

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Status represents the health status of a component
type Status struct {
	Name    string        `json:"name"`
	Healthy bool          `json:"healthy"`
	Latency time.Duration `json:"latency"`
	Error   string        `json:"error,omitempty"`
}

// Pinger is anything that can report reachability
type Pinger interface {
	Ping(ctx context.Context) error
}

// Probe checks one component
type Probe struct {
	Name  string
	Check func(ctx context.Context) error
}

// PingProbe wraps a Pinger
func PingProbe(name string, p Pinger) Probe {
	return Probe{Name: name, Check: p.Ping}
}

// Checker periodically checks health of system components
type Checker struct {
	mu       sync.RWMutex
	statuses []Status
	probes   []Probe
	interval time.Duration
	timeout  time.Duration
}

// NewChecker creates a new health checker
func NewChecker(probes ...Probe) *Checker {
	return &Checker{
		probes:   probes,
		interval: 10 * time.Second,
		timeout:  5 * time.Second,
	}
}

// Start begins periodic health checks
func (c *Checker) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.Check(ctx)
			}
		}
	}()

	// Initial check
	c.Check(ctx)
}

// Check runs every probe once and stores the results
func (c *Checker) Check(ctx context.Context) []Status {
	statuses := make([]Status, 0, len(c.probes))
	for _, p := range c.probes {
		statuses = append(statuses, c.run(ctx, p))
	}

	c.mu.Lock()
	prev := c.statuses
	c.statuses = statuses
	c.mu.Unlock()

	for i, s := range statuses {
		wasHealthy := i >= len(prev) || prev[i].Healthy
		if !s.Healthy && wasHealthy {
			log.Warn().Str("component", s.Name).Str("error", s.Error).Msg("component unhealthy")
		} else if s.Healthy && !wasHealthy {
			log.Info().Str("component", s.Name).Msg("component recovered")
		}
	}
	return statuses
}

func (c *Checker) run(ctx context.Context, p Probe) Status {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	err := p.Check(ctx)
	status := Status{
		Name:    p.Name,
		Latency: time.Since(start),
		Healthy: err == nil,
	}
	if err != nil {
		status.Error = err.Error()
	}
	return status
}

// GetStatuses returns current health statuses
func (c *Checker) GetStatuses() []Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.statuses
}

// Healthy reports whether every component passed its last check
func (c *Checker) Healthy() bool {
	for _, s := range c.GetStatuses() {
		if !s.Healthy {
			return false
		}
	}
	return true
}
