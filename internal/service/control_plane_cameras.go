package service

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/ruteo-noc/ruteo/internal/model"
	"github.com/ruteo-noc/ruteo/internal/state"
)

// ------------------------------------------------------------------
// Cameras
// ------------------------------------------------------------------

// CameraResponse is the API shape of a camera.
type CameraResponse struct {
	ID           string   `json:"id"`
	ExternalRef  string   `json:"external_ref,omitempty"`
	Name         string   `json:"name"`
	NormName     string   `json:"norm_name"`
	State        string   `json:"state"`
	Origin       string   `json:"origin"`
	Lat          *float64 `json:"lat,omitempty"`
	Lon          *float64 `json:"lon,omitempty"`
	ManualFields []string `json:"manual_fields"`
	CreatedAt    string   `json:"created_at"`
	UpdatedAt    string   `json:"updated_at"`
}

func cameraToResponse(c model.Camera) CameraResponse {
	return CameraResponse{
		ID:           c.ID,
		ExternalRef:  c.ExternalRef,
		Name:         c.Name,
		NormName:     c.NormName,
		State:        c.State,
		Origin:       c.Origin,
		Lat:          c.Lat,
		Lon:          c.Lon,
		ManualFields: decodeManualFields(c.ManualFieldsJSON),
		CreatedAt:    time.Unix(0, c.CreatedAtNs).UTC().Format(time.RFC3339Nano),
		UpdatedAt:    time.Unix(0, c.UpdatedAtNs).UTC().Format(time.RFC3339Nano),
	}
}

func decodeManualFields(raw string) []string {
	var fields []string
	if raw != "" {
		_ = json.Unmarshal([]byte(raw), &fields)
	}
	if fields == nil {
		fields = []string{}
	}
	return fields
}

// ListCameras returns all cameras.
func (s *ControlPlaneService) ListCameras() ([]CameraResponse, error) {
	cams, err := s.Repo.ListCameras()
	if err != nil {
		return nil, mapError(err)
	}
	result := make([]CameraResponse, 0, len(cams))
	for _, c := range cams {
		result = append(result, cameraToResponse(c))
	}
	return result, nil
}

// GetCamera returns one camera.
func (s *ControlPlaneService) GetCamera(id string) (*CameraResponse, error) {
	c, err := s.Repo.GetCamera(id)
	if err != nil {
		return nil, mapError(err)
	}
	resp := cameraToResponse(*c)
	return &resp, nil
}

// EnrichRequest carries an external reconciliation result for a camera.
// Manual indicates an operator performed the edit: the touched fields are
// then recorded as manually verified and shielded from future sheet syncs.
type EnrichRequest struct {
	ExternalRef *string  `json:"external_ref,omitempty"`
	State       *string  `json:"state,omitempty"`
	Lat         *float64 `json:"lat,omitempty"`
	Lon         *float64 `json:"lon,omitempty"`
	Manual      bool     `json:"manual,omitempty"`
}

// EnrichCamera applies an external-sheet or manual reconciliation to a
// camera. Non-manual enrichment never overwrites a manually-verified field
// and never touches a BANEADA state (the protection engine owns that).
func (s *ControlPlaneService) EnrichCamera(id string, req EnrichRequest) (*CameraResponse, error) {
	if req.State != nil && !model.CameraState(*req.State).IsValid() {
		return nil, invalidArg("state: unknown camera state " + *req.State)
	}
	if req.State != nil && model.CameraState(*req.State) == model.CameraStateBaneada {
		return nil, invalidArg("state: BANEADA is incident-driven and cannot be set here")
	}

	var resp CameraResponse
	err := s.Repo.WithTx(func(tx *state.Tx) error {
		c, err := tx.GetCamera(id)
		if err != nil {
			return err
		}
		manual := map[string]bool{}
		for _, f := range decodeManualFields(c.ManualFieldsJSON) {
			manual[f] = true
		}

		apply := func(field string, set func()) {
			if !req.Manual && manual[field] {
				return
			}
			set()
			if req.Manual {
				manual[field] = true
			}
		}
		if req.ExternalRef != nil {
			apply("external_ref", func() { c.ExternalRef = *req.ExternalRef })
		}
		if req.Lat != nil {
			apply("lat", func() { c.Lat = req.Lat })
		}
		if req.Lon != nil {
			apply("lon", func() { c.Lon = req.Lon })
		}
		if req.State != nil && c.State != string(model.CameraStateBaneada) {
			apply("state", func() { c.State = *req.State })
		}

		if req.Manual {
			c.Origin = string(model.CameraOriginManual)
		} else if c.Origin == string(model.CameraOriginSurvey) {
			c.Origin = string(model.CameraOriginExternalSheet)
		}

		fields := make([]string, 0, len(manual))
		for f := range manual {
			fields = append(fields, f)
		}
		sort.Strings(fields)
		raw, err := json.Marshal(fields)
		if err != nil {
			return err
		}
		c.ManualFieldsJSON = string(raw)
		c.UpdatedAtNs = time.Now().UnixNano()
		if err := tx.UpdateCameraEnrichment(*c); err != nil {
			return err
		}
		resp = cameraToResponse(*c)
		return nil
	})
	if err != nil {
		return nil, mapError(err)
	}
	return &resp, nil
}

// OccupancyRequest records external occupancy knowledge for a camera.
type OccupancyRequest struct {
	Occupied bool   `json:"occupied"`
	Source   string `json:"source,omitempty"`
}

// SetOccupancy upserts a camera's occupancy record. A camera currently
// LIBRE or OCUPADA follows the record immediately; BANEADA and DETECTADA
// states are left for their owning workflows.
func (s *ControlPlaneService) SetOccupancy(id string, req OccupancyRequest) error {
	err := s.Repo.WithTx(func(tx *state.Tx) error {
		c, err := tx.GetCamera(id)
		if err != nil {
			return err
		}
		nowNs := time.Now().UnixNano()
		if err := tx.UpsertOccupancy(model.CameraOccupancy{
			CameraID:    id,
			Occupied:    req.Occupied,
			Source:      req.Source,
			UpdatedAtNs: nowNs,
		}); err != nil {
			return err
		}
		switch c.State {
		case string(model.CameraStateLibre):
			if req.Occupied {
				return tx.UpdateCameraState(id, string(model.CameraStateOcupada), nowNs)
			}
		case string(model.CameraStateOcupada):
			if !req.Occupied {
				return tx.UpdateCameraState(id, string(model.CameraStateLibre), nowNs)
			}
		}
		return nil
	})
	return mapError(err)
}
