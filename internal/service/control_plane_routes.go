package service

import (
	"time"

	"github.com/ruteo-noc/ruteo/internal/classify"
	"github.com/ruteo-noc/ruteo/internal/model"
	"github.com/ruteo-noc/ruteo/internal/resolve"
	"github.com/ruteo-noc/ruteo/internal/survey"
)

// ------------------------------------------------------------------
// Submissions
// ------------------------------------------------------------------

// SubmissionEntry is one parsed survey line.
type SubmissionEntry struct {
	Site          string   `json:"site"`
	ExternalRef   string   `json:"external_ref,omitempty"`
	StrandAlias   string   `json:"strand_alias,omitempty"`
	Transit       bool     `json:"transit,omitempty"`
	AttenuationDB *float64 `json:"attenuation_db,omitempty"`
}

// SubmissionEndpoint is an optional endpoint marker.
type SubmissionEndpoint struct {
	Site      string `json:"site"`
	Connector string `json:"connector,omitempty"`
}

// Submission is the survey payload for analyze and resolve calls.
type Submission struct {
	Entries   []SubmissionEntry   `json:"entries"`
	EndpointA *SubmissionEndpoint `json:"endpoint_a,omitempty"`
	EndpointB *SubmissionEndpoint `json:"endpoint_b,omitempty"`
}

func (sub Submission) canonicalize() (survey.Normalized, error) {
	entries := make([]survey.Entry, 0, len(sub.Entries))
	for _, e := range sub.Entries {
		entries = append(entries, survey.Entry{
			Site:          e.Site,
			ExternalRef:   e.ExternalRef,
			StrandAlias:   e.StrandAlias,
			Transit:       e.Transit,
			AttenuationDB: e.AttenuationDB,
		})
	}
	eps := survey.Endpoints{}
	if sub.EndpointA != nil {
		eps.A = &survey.EndpointMarker{Site: sub.EndpointA.Site, Connector: sub.EndpointA.Connector}
	}
	if sub.EndpointB != nil {
		eps.B = &survey.EndpointMarker{Site: sub.EndpointB.Site, Connector: sub.EndpointB.Connector}
	}
	return survey.Canonicalize(entries, eps)
}

// Analyze classifies a submission against the stored topology. Read-only.
func (s *ControlPlaneService) Analyze(serviceID string, sub Submission) (classify.Result, error) {
	if serviceID == "" {
		return classify.Result{}, invalidArg("service id is required")
	}
	n, err := sub.canonicalize()
	if err != nil {
		return classify.Result{}, mapError(err)
	}
	result, err := s.Classifier.Analyze(serviceID, n)
	if err != nil {
		return classify.Result{}, mapError(err)
	}
	return result, nil
}

// ResolveRequest is the API payload for a resolve call.
type ResolveRequest struct {
	Action              string     `json:"action"`
	ServiceName         string     `json:"service_name,omitempty"`
	Submission          Submission `json:"submission"`
	TargetRouteID       string     `json:"target_route_id,omitempty"`
	NewRouteName        string     `json:"new_route_name,omitempty"`
	NewRouteKind        string     `json:"new_route_kind,omitempty"`
	OldServiceID        string     `json:"old_service_id,omitempty"`
	ExpectedFingerprint string     `json:"expected_fingerprint,omitempty"`
}

// Resolve applies a classified submission to the topology.
func (s *ControlPlaneService) Resolve(serviceID string, req ResolveRequest) (resolve.Result, error) {
	if serviceID == "" {
		return resolve.Result{}, invalidArg("service id is required")
	}
	action := resolve.NormalizeAction(req.Action)
	if action == "" {
		return resolve.Result{}, invalidArg("unknown action: " + req.Action)
	}
	n, err := req.Submission.canonicalize()
	if err != nil {
		return resolve.Result{}, mapError(err)
	}
	result, err := s.Resolver.Resolve(resolve.Request{
		Action:              action,
		ServiceID:           serviceID,
		ServiceName:         req.ServiceName,
		Normalized:          n,
		TargetRouteID:       req.TargetRouteID,
		NewRouteName:        req.NewRouteName,
		NewRouteKind:        req.NewRouteKind,
		OldServiceID:        req.OldServiceID,
		ExpectedFingerprint: req.ExpectedFingerprint,
	})
	if err != nil {
		return resolve.Result{}, mapError(err)
	}
	return result, nil
}

// ------------------------------------------------------------------
// Topology browsing
// ------------------------------------------------------------------

// ServiceResponse is the API shape of a service.
type ServiceResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at"`
}

func serviceToResponse(svc model.Service) ServiceResponse {
	return ServiceResponse{
		ID:        svc.ID,
		Name:      svc.Name,
		CreatedAt: time.Unix(0, svc.CreatedAtNs).UTC().Format(time.RFC3339Nano),
	}
}

// RouteResponse is the API shape of a route.
type RouteResponse struct {
	ID                 string `json:"id"`
	ServiceID          string `json:"service_id"`
	Name               string `json:"name"`
	Kind               string `json:"kind"`
	Fingerprint        string `json:"fingerprint"`
	PathSignature      string `json:"path_signature"`
	EndpointASite      string `json:"endpoint_a_site,omitempty"`
	EndpointAConnector string `json:"endpoint_a_connector,omitempty"`
	EndpointBSite      string `json:"endpoint_b_site,omitempty"`
	EndpointBConnector string `json:"endpoint_b_connector,omitempty"`
	Active             bool   `json:"active"`
	CreatedAt          string `json:"created_at"`
	UpdatedAt          string `json:"updated_at"`

	Associations []AssociationResponse `json:"associations,omitempty"`
}

// AssociationResponse is one splice hop of a route.
type AssociationResponse struct {
	Ord           int      `json:"ord"`
	CameraID      string   `json:"camera_id"`
	StrandAlias   string   `json:"strand_alias,omitempty"`
	Transit       bool     `json:"transit,omitempty"`
	AttenuationDB *float64 `json:"attenuation_db,omitempty"`
}

func routeToResponse(rt model.Route) RouteResponse {
	return RouteResponse{
		ID:                 rt.ID,
		ServiceID:          rt.ServiceID,
		Name:               rt.Name,
		Kind:               rt.Kind,
		Fingerprint:        rt.Fingerprint,
		PathSignature:      rt.PathSignature,
		EndpointASite:      rt.EndpointASite,
		EndpointAConnector: rt.EndpointAConnector,
		EndpointBSite:      rt.EndpointBSite,
		EndpointBConnector: rt.EndpointBConnector,
		Active:             rt.Active,
		CreatedAt:          time.Unix(0, rt.CreatedAtNs).UTC().Format(time.RFC3339Nano),
		UpdatedAt:          time.Unix(0, rt.UpdatedAtNs).UTC().Format(time.RFC3339Nano),
	}
}

// ListServices returns all services.
func (s *ControlPlaneService) ListServices() ([]ServiceResponse, error) {
	svcs, err := s.Repo.ListServices()
	if err != nil {
		return nil, mapError(err)
	}
	result := make([]ServiceResponse, 0, len(svcs))
	for _, svc := range svcs {
		result = append(result, serviceToResponse(svc))
	}
	return result, nil
}

// GetService returns one service.
func (s *ControlPlaneService) GetService(id string) (*ServiceResponse, error) {
	svc, err := s.Repo.GetService(id)
	if err != nil {
		return nil, mapError(err)
	}
	resp := serviceToResponse(*svc)
	return &resp, nil
}

// ListRoutes returns a service's routes, without association detail.
func (s *ControlPlaneService) ListRoutes(serviceID string) ([]RouteResponse, error) {
	if _, err := s.Repo.GetService(serviceID); err != nil {
		return nil, mapError(err)
	}
	routes, err := s.Repo.ListRoutesByService(serviceID)
	if err != nil {
		return nil, mapError(err)
	}
	result := make([]RouteResponse, 0, len(routes))
	for _, rt := range routes {
		result = append(result, routeToResponse(rt))
	}
	return result, nil
}

// GetRoute returns one route with its full association sequence.
func (s *ControlPlaneService) GetRoute(id string) (*RouteResponse, error) {
	rt, err := s.Repo.GetRoute(id)
	if err != nil {
		return nil, mapError(err)
	}
	assocs, err := s.Repo.ListAssociations(id)
	if err != nil {
		return nil, mapError(err)
	}
	resp := routeToResponse(*rt)
	resp.Associations = make([]AssociationResponse, 0, len(assocs))
	for _, a := range assocs {
		resp.Associations = append(resp.Associations, AssociationResponse{
			Ord:           a.Ord,
			CameraID:      a.CameraID,
			StrandAlias:   a.StrandAlias,
			Transit:       a.Transit,
			AttenuationDB: a.AttenuationDB,
		})
	}
	return &resp, nil
}
