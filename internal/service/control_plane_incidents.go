package service

import (
	"strings"
	"time"

	"github.com/ruteo-noc/ruteo/internal/model"
	"github.com/ruteo-noc/ruteo/internal/protect"
)

// ------------------------------------------------------------------
// Incidents
// ------------------------------------------------------------------

// IncidentResponse is the API shape of a ban incident.
type IncidentResponse struct {
	ID                 string `json:"id"`
	AffectedServiceID  string `json:"affected_service_id,omitempty"`
	ProtectedServiceID string `json:"protected_service_id"`
	ProtectedRouteID   string `json:"protected_route_id,omitempty"`
	Reason             string `json:"reason,omitempty"`
	TicketRef          string `json:"ticket_ref,omitempty"`
	ClosureReason      string `json:"closure_reason,omitempty"`
	Active             bool   `json:"active"`
	StartedAt          string `json:"started_at"`
	EndedAt            string `json:"ended_at,omitempty"`
}

func incidentToResponse(inc model.BanIncident) IncidentResponse {
	resp := IncidentResponse{
		ID:                 inc.ID,
		AffectedServiceID:  inc.AffectedServiceID,
		ProtectedServiceID: inc.ProtectedServiceID,
		ProtectedRouteID:   inc.ProtectedRouteID,
		Reason:             inc.Reason,
		TicketRef:          inc.TicketRef,
		ClosureReason:      inc.ClosureReason,
		Active:             inc.Active,
		StartedAt:          time.Unix(0, inc.StartedAtNs).UTC().Format(time.RFC3339Nano),
	}
	if inc.EndedAtNs != 0 {
		resp.EndedAt = time.Unix(0, inc.EndedAtNs).UTC().Format(time.RFC3339Nano)
	}
	return resp
}

// BanCreate opens a protection incident.
func (s *ControlPlaneService) BanCreate(req protect.BanRequest) (protect.BanResult, error) {
	if strings.TrimSpace(req.ProtectedServiceID) == "" {
		return protect.BanResult{}, invalidArg("protected_service_id is required")
	}
	result, err := s.Protector.BanCreate(req)
	if err != nil {
		return protect.BanResult{}, mapError(err)
	}
	return result, nil
}

// LiftRequest closes an incident.
type LiftRequest struct {
	ClosureReason string `json:"closure_reason,omitempty"`
}

// BanLift closes an incident and restores its cameras.
func (s *ControlPlaneService) BanLift(incidentID string, req LiftRequest) (protect.LiftResult, error) {
	result, err := s.Protector.BanLift(incidentID, req.ClosureReason)
	if err != nil {
		return protect.LiftResult{}, mapError(err)
	}
	return result, nil
}

// ListActiveIncidents returns open incidents, oldest first.
func (s *ControlPlaneService) ListActiveIncidents() ([]IncidentResponse, error) {
	incs, err := s.Protector.ListActiveIncidents()
	if err != nil {
		return nil, mapError(err)
	}
	result := make([]IncidentResponse, 0, len(incs))
	for _, inc := range incs {
		result = append(result, incidentToResponse(inc))
	}
	return result, nil
}

// GetIncident returns one incident, open or closed.
func (s *ControlPlaneService) GetIncident(id string) (*IncidentResponse, error) {
	inc, err := s.Repo.GetIncident(id)
	if err != nil {
		return nil, mapError(err)
	}
	resp := incidentToResponse(*inc)
	return &resp, nil
}
