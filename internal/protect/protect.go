// Package protect implements the incident-driven camera protection engine.
// An incident bans every camera reachable through the routes it protects;
// lifting it restores each camera to whatever the remaining incidents and
// occupancy records imply. The invariant the package maintains: a camera is
// BANEADA if and only if at least one active incident references it.
package protect

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/ruteo-noc/ruteo/internal/model"
	"github.com/ruteo-noc/ruteo/internal/state"
)

// BanRequest declares a protection incident. ProtectedRouteID narrows the
// ban to one route; empty means every route of the protected service.
type BanRequest struct {
	AffectedServiceID  string `json:"affected_service_id"`
	ProtectedServiceID string `json:"protected_service_id"`
	ProtectedRouteID   string `json:"protected_route_id,omitempty"`
	Reason             string `json:"reason,omitempty"`
	TicketRef          string `json:"ticket_ref,omitempty"`
}

// BanResult reports a created incident and the camera transitions it caused.
type BanResult struct {
	IncidentID           string `json:"incident_id"`
	CamerasNewlyBanned   int    `json:"cameras_newly_banned"`
	CamerasAlreadyBanned int    `json:"cameras_already_banned"`
}

// LiftResult reports the outcome of closing an incident.
type LiftResult struct {
	IncidentID         string `json:"incident_id"`
	CamerasRestored    int    `json:"cameras_restored"`
	CamerasStillBanned int    `json:"cameras_still_banned"`
}

// Engine applies bans and lifts over the topology store. Safe for concurrent
// use; mutations serialize on the store's write transaction.
type Engine struct {
	Repo *state.TopologyRepo

	now func() time.Time
}

// NewEngine creates a protection engine over the given store.
func NewEngine(repo *state.TopologyRepo) *Engine {
	return &Engine{Repo: repo, now: time.Now}
}

// BanCreate opens a new incident and bans every camera on the protected
// route set. Cameras already banned by an overlapping incident are recorded
// against the new incident too, so lifting either incident alone keeps them
// protected. A new incident row is always created, overlap or not.
func (e *Engine) BanCreate(req BanRequest) (BanResult, error) {
	if req.ProtectedServiceID == "" {
		return BanResult{}, fmt.Errorf("protected_service_id: %w", state.ErrNotFound)
	}

	nowNs := e.now().UnixNano()
	result := BanResult{IncidentID: uuid.NewString()}
	err := e.Repo.WithTx(func(tx *state.Tx) error {
		routeIDs, err := e.protectedRoutes(tx, req)
		if err != nil {
			return err
		}
		cams, err := tx.CamerasOnRoutes(routeIDs)
		if err != nil {
			return err
		}

		if err := tx.InsertIncident(model.BanIncident{
			ID:                 result.IncidentID,
			AffectedServiceID:  req.AffectedServiceID,
			ProtectedServiceID: req.ProtectedServiceID,
			ProtectedRouteID:   req.ProtectedRouteID,
			Reason:             req.Reason,
			TicketRef:          req.TicketRef,
			Active:             true,
			StartedAtNs:        nowNs,
		}); err != nil {
			return err
		}

		for _, cam := range cams {
			newly := cam.State != string(model.CameraStateBaneada)
			if newly {
				if err := tx.UpdateCameraState(cam.ID, string(model.CameraStateBaneada), nowNs); err != nil {
					return err
				}
				result.CamerasNewlyBanned++
			} else {
				result.CamerasAlreadyBanned++
			}
			if err := tx.InsertIncidentCamera(model.IncidentCamera{
				IncidentID:  result.IncidentID,
				CameraID:    cam.ID,
				NewlyBanned: newly,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return BanResult{}, err
	}
	log.Printf("[protect] incident %s opened: %d banned, %d already banned",
		result.IncidentID, result.CamerasNewlyBanned, result.CamerasAlreadyBanned)
	return result, nil
}

// protectedRoutes resolves the incident's route scope.
func (e *Engine) protectedRoutes(tx *state.Tx, req BanRequest) ([]string, error) {
	if req.ProtectedRouteID != "" {
		rt, err := tx.GetRoute(req.ProtectedRouteID)
		if err != nil {
			return nil, fmt.Errorf("route %s: %w", req.ProtectedRouteID, err)
		}
		if rt.ServiceID != req.ProtectedServiceID {
			return nil, fmt.Errorf("route %s belongs to service %s: %w",
				rt.ID, rt.ServiceID, state.ErrNotFound)
		}
		return []string{rt.ID}, nil
	}

	routes, err := tx.ListRoutesByService(req.ProtectedServiceID)
	if err != nil {
		return nil, err
	}
	if len(routes) == 0 {
		if _, err := tx.GetService(req.ProtectedServiceID); err != nil {
			return nil, fmt.Errorf("service %s: %w", req.ProtectedServiceID, err)
		}
	}
	ids := make([]string, 0, len(routes))
	for _, rt := range routes {
		ids = append(ids, rt.ID)
	}
	return ids, nil
}

// BanLift closes an incident and restores each referenced camera to the
// state the remaining incidents and occupancy records imply. Lifting an
// incident that is already closed fails with state.ErrIncidentClosed; the
// incident row itself is kept forever.
func (e *Engine) BanLift(incidentID, closureReason string) (LiftResult, error) {
	nowNs := e.now().UnixNano()
	result := LiftResult{IncidentID: incidentID}
	err := e.Repo.WithTx(func(tx *state.Tx) error {
		inc, err := tx.GetIncident(incidentID)
		if err != nil {
			return fmt.Errorf("incident %s: %w", incidentID, err)
		}
		if !inc.Active {
			return fmt.Errorf("incident %s: %w", incidentID, state.ErrIncidentClosed)
		}
		if err := tx.CloseIncident(incidentID, closureReason, nowNs); err != nil {
			return err
		}

		refs, err := tx.ListIncidentCameras(incidentID)
		if err != nil {
			return err
		}
		for _, ref := range refs {
			desired, err := e.desiredStateAfterLift(tx, ref.CameraID, incidentID)
			if err != nil {
				return err
			}
			if desired == model.CameraStateBaneada {
				result.CamerasStillBanned++
				continue
			}
			if err := tx.UpdateCameraState(ref.CameraID, string(desired), nowNs); err != nil {
				return err
			}
			result.CamerasRestored++
		}
		return nil
	})
	if err != nil {
		return LiftResult{}, err
	}
	log.Printf("[protect] incident %s lifted: %d restored, %d still banned",
		incidentID, result.CamerasRestored, result.CamerasStillBanned)
	return result, nil
}

// desiredStateAfterLift derives a camera's state once the given incident no
// longer counts: another active incident keeps it BANEADA, an occupancy
// record makes it OCUPADA, otherwise LIBRE.
func (e *Engine) desiredStateAfterLift(tx *state.Tx, cameraID, liftedIncidentID string) (model.CameraState, error) {
	n, err := tx.ActiveIncidentCountForCamera(cameraID, liftedIncidentID)
	if err != nil {
		return "", err
	}
	if n > 0 {
		return model.CameraStateBaneada, nil
	}

	occ, err := tx.GetOccupancy(cameraID)
	if err != nil && !errors.Is(err, state.ErrNotFound) {
		return "", err
	}
	if occ != nil && occ.Occupied {
		return model.CameraStateOcupada, nil
	}
	return model.CameraStateLibre, nil
}

// ListActiveIncidents returns open incidents, oldest first.
func (e *Engine) ListActiveIncidents() ([]model.BanIncident, error) {
	return e.Repo.ListActiveIncidents()
}
