// Package classify implements the read-only route classifier: given a
// canonicalized submission, it decides what the submission represents
// relative to the stored topology. No mutation happens here; calling Analyze
// any number of times against unchanged stored state yields the same result.
package classify

import (
	"fmt"

	"github.com/ruteo-noc/ruteo/internal/model"
	"github.com/ruteo-noc/ruteo/internal/survey"
)

// Status is the outcome category of a classification.
type Status string

const (
	// StatusNew: the service has no routes yet.
	StatusNew Status = "NEW"
	// StatusIdentical: the fingerprint matches an existing route of the service.
	StatusIdentical Status = "IDENTICAL"
	// StatusConflict: the service has routes but the submission matches none of them.
	StatusConflict Status = "CONFLICT"
	// StatusPotentialUpgrade: the path matches a route of a different service
	// with matching endpoints; likely a service renumbering.
	StatusPotentialUpgrade Status = "POTENTIAL_UPGRADE"
	// StatusNewStrand: the path matches a route of the same service but the
	// strand aliases differ or are additional.
	StatusNewStrand Status = "NEW_STRAND"
)

// RouteSummary describes an existing route in a CONFLICT result.
type RouteSummary struct {
	RouteID     string `json:"route_id"`
	Name        string `json:"name"`
	Kind        string `json:"kind"`
	Fingerprint string `json:"fingerprint"`
	Active      bool   `json:"active"`
}

// Result is the classification outcome. Exactly one status is set; the
// per-status fields are populated according to that status.
type Result struct {
	Status      Status `json:"status"`
	ServiceID   string `json:"service_id"`
	Fingerprint string `json:"fingerprint"`

	// NEW / CONFLICT
	EntryCount int `json:"entry_count,omitempty"`

	// IDENTICAL / NEW_STRAND
	MatchedRouteID string `json:"matched_route_id,omitempty"`

	// NEW_STRAND
	CurrentStrandCount int `json:"current_strand_count,omitempty"`

	// POTENTIAL_UPGRADE
	CandidateServiceID string `json:"candidate_service_id,omitempty"`
	CandidateRouteID   string `json:"candidate_route_id,omitempty"`

	// CONFLICT
	ExistingRoutes []RouteSummary `json:"existing_routes,omitempty"`
}

// Reader is the read surface the classifier needs from the topology store.
type Reader interface {
	ListRoutesByService(serviceID string) ([]model.Route, error)
	FindActiveRoutesBySignature(sig string) ([]model.Route, error)
	RouteStrandAliases(routeID string) ([]string, error)
}

// Classifier decides how a submission relates to the stored topology.
type Classifier struct {
	Reader Reader
}

// New creates a Classifier over the given store reader.
func New(r Reader) *Classifier {
	return &Classifier{Reader: r}
}

// Analyze classifies a canonicalized submission for serviceID.
//
// Precedence: IDENTICAL first (cheapest, the common re-submission case);
// then same-service path match bringing a new strand alias (NEW_STRAND)
// before cross-service path match (POTENTIAL_UPGRADE); CONFLICT is the
// fallback when the service already has routes; NEW only when it has none.
func (c *Classifier) Analyze(serviceID string, n survey.Normalized) (Result, error) {
	fp := n.Fingerprint().Hex()
	sig := n.PathSignature().Hex()

	result := Result{
		ServiceID:   serviceID,
		Fingerprint: fp,
		EntryCount:  len(n.Entries),
	}

	routes, err := c.Reader.ListRoutesByService(serviceID)
	if err != nil {
		return Result{}, fmt.Errorf("list routes for %s: %w", serviceID, err)
	}

	// 1. Exact content match against this service's routes.
	for _, rt := range routes {
		if rt.Fingerprint == fp {
			result.Status = StatusIdentical
			result.MatchedRouteID = rt.ID
			return result, nil
		}
	}

	// 2. Same-service path match that brings a strand alias the route does
	// not hold yet. A same-path resubmission with the same aliases (only
	// transit flags or endpoint markers changed) is not a new strand and
	// falls through to the conflict fallback.
	subAliases := make(map[string]bool, len(n.Entries))
	for _, e := range n.Entries {
		if e.StrandAlias != "" {
			subAliases[e.StrandAlias] = true
		}
	}
	for _, rt := range routes {
		if rt.PathSignature != sig {
			continue
		}
		held, err := c.Reader.RouteStrandAliases(rt.ID)
		if err != nil {
			return Result{}, fmt.Errorf("list strands of %s: %w", rt.ID, err)
		}
		if !bringsNewAlias(subAliases, held) {
			continue
		}
		result.Status = StatusNewStrand
		result.MatchedRouteID = rt.ID
		result.CurrentStrandCount = len(held)
		return result, nil
	}

	// 3. Cross-service path match with matching endpoints.
	if n.HasEndpoints() {
		candidates, err := c.Reader.FindActiveRoutesBySignature(sig)
		if err != nil {
			return Result{}, fmt.Errorf("find routes by signature: %w", err)
		}
		for _, rt := range candidates {
			if rt.ServiceID == serviceID {
				continue
			}
			if routeEndpointKey(rt) == n.EndpointKey() {
				result.Status = StatusPotentialUpgrade
				result.CandidateServiceID = rt.ServiceID
				result.CandidateRouteID = rt.ID
				return result, nil
			}
		}
	}

	// 4. Fallback.
	if len(routes) == 0 {
		result.Status = StatusNew
		return result, nil
	}
	result.Status = StatusConflict
	result.ExistingRoutes = make([]RouteSummary, 0, len(routes))
	for _, rt := range routes {
		result.ExistingRoutes = append(result.ExistingRoutes, RouteSummary{
			RouteID:     rt.ID,
			Name:        rt.Name,
			Kind:        rt.Kind,
			Fingerprint: rt.Fingerprint,
			Active:      rt.Active,
		})
	}
	return result, nil
}

// bringsNewAlias reports whether the submission names a strand alias the
// route does not already hold.
func bringsNewAlias(sub map[string]bool, held []string) bool {
	if len(sub) == 0 {
		return false
	}
	heldSet := make(map[string]bool, len(held))
	for _, a := range held {
		heldSet[a] = true
	}
	for a := range sub {
		if !heldSet[a] {
			return true
		}
	}
	return false
}

// routeEndpointKey mirrors survey.Normalized.EndpointKey for a stored route.
func routeEndpointKey(rt model.Route) string {
	a := rt.EndpointASite + "#" + rt.EndpointAConnector
	b := rt.EndpointBSite + "#" + rt.EndpointBConnector
	if b < a {
		a, b = b, a
	}
	return a + "|" + b
}
