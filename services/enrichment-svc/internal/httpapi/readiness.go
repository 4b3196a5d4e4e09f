package httpapi

import "sync/atomic"

// readiness is a process-wide flag GET /ready consults, flipped once
// by main after every dependency (cache, rate limiter, municipality
// resolver) has finished initializing.
type readiness struct {
	ready atomic.Bool
}

// NewReadiness builds an unready gate.
func NewReadiness() *readiness {
	return &readiness{}
}

// MarkReady flips the gate. Idempotent.
func (r *readiness) MarkReady() {
	r.ready.Store(true)
}

func (r *readiness) isReady() bool {
	return r.ready.Load()
}
