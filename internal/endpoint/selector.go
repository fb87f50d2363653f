package endpoint

import (
	"errors"
	"math/rand"

	"vton/internal/apperrors"
	"vton/pkg/failsafe"
)

// Selector picks one endpoint per job, uniformly at random among endpoints
// whose breaker currently allows traffic. Each pick is independent: no
// affinity, no weighting. Only connection-level failures count against an
// endpoint — a worker that answers with an application error is reachable.
type Selector struct {
	endpoints []Endpoint
	breakers  *failsafe.Registry
}

// NewSelector creates a selector over a fixed endpoint set.
func NewSelector(endpoints []Endpoint, cfg failsafe.BreakerConfig) *Selector {
	eps := make([]Endpoint, 0, len(endpoints))
	for _, ep := range endpoints {
		if ep.ID != "" {
			eps = append(eps, ep)
		}
	}
	return &Selector{
		endpoints: eps,
		breakers:  failsafe.NewRegistry(cfg),
	}
}

// Len returns the number of configured endpoints.
func (s *Selector) Len() int {
	return len(s.endpoints)
}

// Pick returns an endpoint for one job. Endpoints with an open breaker are
// excluded from the draw; when every breaker is open the full set is used
// instead, so a total worker outage degrades to the old behavior rather
// than failing closed.
func (s *Selector) Pick() (*Endpoint, error) {
	if len(s.endpoints) == 0 {
		return nil, apperrors.Internal("endpoint.pick", errNoEndpoints)
	}

	healthy := make([]*Endpoint, 0, len(s.endpoints))
	for i := range s.endpoints {
		if s.breakers.Get(s.endpoints[i].ID).Allow() {
			healthy = append(healthy, &s.endpoints[i])
		}
	}
	if len(healthy) == 0 {
		for i := range s.endpoints {
			healthy = append(healthy, &s.endpoints[i])
		}
	}

	if len(healthy) == 1 {
		return healthy[0], nil
	}
	return healthy[rand.Intn(len(healthy))], nil
}

// ReportSuccess records a successful invocation against the endpoint.
func (s *Selector) ReportSuccess(ep *Endpoint) {
	s.breakers.Get(ep.ID).Succeed()
}

// ReportUnreachable records a connection-level failure against the endpoint.
func (s *Selector) ReportUnreachable(ep *Endpoint) {
	s.breakers.Get(ep.ID).Fail()
}

var errNoEndpoints = errors.New("no compute endpoints configured")
