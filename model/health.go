package model

import (
	"sync"
	"time"
)

// EndpointHealth is a snapshot of one endpoint's circuit.
type EndpointHealth struct {
	FailureCount    int       `json:"failure_count"`
	CircuitOpen     bool      `json:"circuit_open"`
	CircuitOpenedAt time.Time `json:"circuit_opened_at,omitempty"`
	LastSuccess     time.Time `json:"last_success,omitempty"`
	LastFailure     time.Time `json:"last_failure,omitempty"`
}

// HealthConfig configures the circuit breaker.
type HealthConfig struct {
	// FailureThreshold is the number of consecutive failed calls before the circuit opens.
	FailureThreshold int

	// RecoveryTimeout is how long an open circuit rejects calls before one probe is let through.
	RecoveryTimeout time.Duration
}

// DefaultHealthConfig returns the breaker defaults.
func DefaultHealthConfig() HealthConfig {
	return HealthConfig{
		FailureThreshold: 3,
		RecoveryTimeout:  30 * time.Second,
	}
}

// breaker tracks per-endpoint failure streaks.
type breaker struct {
	mu       sync.Mutex
	config   HealthConfig
	statuses map[string]*EndpointHealth
	now      func() time.Time
}

func newBreaker(cfg HealthConfig) *breaker {
	return &breaker{config: cfg, statuses: make(map[string]*EndpointHealth), now: time.Now}
}

func (b *breaker) status(name string) *EndpointHealth {
	s, ok := b.statuses[name]
	if !ok {
		s = &EndpointHealth{}
		b.statuses[name] = s
	}
	return s
}

// MarkEndpointSuccess closes the circuit and resets the failure streak.
func (r *Registry) MarkEndpointSuccess(name string) {
	b := r.breaker
	b.mu.Lock()
	defer b.mu.Unlock()

	s := b.status(name)
	s.LastSuccess = b.now()
	s.FailureCount = 0
	s.CircuitOpen = false
}

// MarkEndpointFailure extends the failure streak and opens the circuit at
// the threshold. A failed half-open probe re-opens it.
func (r *Registry) MarkEndpointFailure(name string) {
	b := r.breaker
	b.mu.Lock()
	defer b.mu.Unlock()

	s := b.status(name)
	s.LastFailure = b.now()
	s.FailureCount++
	if s.FailureCount >= b.config.FailureThreshold {
		s.CircuitOpen = true
		s.CircuitOpenedAt = b.now()
	}
}

// IsEndpointAvailable reports whether calls may be sent to name: the
// circuit is closed, or open longer than the recovery timeout.
func (r *Registry) IsEndpointAvailable(name string) bool {
	b := r.breaker
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.statuses[name]
	if !ok || !s.CircuitOpen {
		return true
	}
	return b.now().Sub(s.CircuitOpenedAt) > b.config.RecoveryTimeout
}

// GetEndpointHealth returns a copy of the endpoint's health, or nil.
func (r *Registry) GetEndpointHealth(name string) *EndpointHealth {
	b := r.breaker
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.statuses[name]
	if !ok {
		return nil
	}
	cp := *s
	return &cp
}

// SetHealthConfig replaces the breaker thresholds.
func (r *Registry) SetHealthConfig(cfg HealthConfig) {
	r.breaker.mu.Lock()
	defer r.breaker.mu.Unlock()
	r.breaker.config = cfg
}
