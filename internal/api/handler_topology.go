package api

import (
	"net/http"

	"github.com/ruteo-noc/ruteo/internal/service"
)

// HandleListServices returns a handler for GET /api/v1/services.
func HandleListServices(cp *service.ControlPlaneService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pg, ok := parsePaginationOrWriteInvalid(w, r)
		if !ok {
			return
		}
		sorting, ok := parseSortingOrWriteInvalid(w, r, []string{"id", "name"}, "id", "asc")
		if !ok {
			return
		}
		svcs, err := cp.ListServices()
		if err != nil {
			writeServiceError(w, err)
			return
		}
		SortSlice(svcs, sorting, func(s service.ServiceResponse) string {
			if sorting.SortBy == "name" {
				return s.Name
			}
			return s.ID
		})
		WritePage(w, http.StatusOK, svcs, pg)
	}
}

// HandleGetService returns a handler for GET /api/v1/services/{id}.
func HandleGetService(cp *service.ControlPlaneService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		svc, err := cp.GetService(PathParam(r, "id"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, svc)
	}
}

// HandleListRoutes returns a handler for GET /api/v1/services/{id}/routes.
func HandleListRoutes(cp *service.ControlPlaneService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		routes, err := cp.ListRoutes(PathParam(r, "id"))
		if err != nil {
			writeServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, routes)
	}
}

// HandleGetRoute returns a handler for GET /api/v1/routes/{id}.
func HandleGetRoute(cp *service.ControlPlaneService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := requireUUIDPathParam(w, r, "id", "route id")
		if !ok {
			return
		}
		rt, err := cp.GetRoute(id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, rt)
	}
}

// HandleListCameras returns a handler for GET /api/v1/cameras.
func HandleListCameras(cp *service.ControlPlaneService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pg, ok := parsePaginationOrWriteInvalid(w, r)
		if !ok {
			return
		}
		sorting, ok := parseSortingOrWriteInvalid(w, r, []string{"norm_name", "state"}, "norm_name", "asc")
		if !ok {
			return
		}
		cams, err := cp.ListCameras()
		if err != nil {
			writeServiceError(w, err)
			return
		}
		SortSlice(cams, sorting, func(c service.CameraResponse) string {
			if sorting.SortBy == "state" {
				return c.State
			}
			return c.NormName
		})
		WritePage(w, http.StatusOK, cams, pg)
	}
}

// HandleGetCamera returns a handler for GET /api/v1/cameras/{id}.
func HandleGetCamera(cp *service.ControlPlaneService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := requireUUIDPathParam(w, r, "id", "camera id")
		if !ok {
			return
		}
		cam, err := cp.GetCamera(id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, cam)
	}
}

// HandleEnrichCamera returns a handler for PATCH /api/v1/cameras/{id}/enrich.
func HandleEnrichCamera(cp *service.ControlPlaneService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := requireUUIDPathParam(w, r, "id", "camera id")
		if !ok {
			return
		}
		var req service.EnrichRequest
		if err := DecodeBody(r, &req); err != nil {
			writeDecodeBodyError(w, err)
			return
		}
		cam, err := cp.EnrichCamera(id, req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, cam)
	}
}

// HandleSetOccupancy returns a handler for PUT /api/v1/cameras/{id}/occupancy.
func HandleSetOccupancy(cp *service.ControlPlaneService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := requireUUIDPathParam(w, r, "id", "camera id")
		if !ok {
			return
		}
		var req service.OccupancyRequest
		if err := DecodeBody(r, &req); err != nil {
			writeDecodeBodyError(w, err)
			return
		}
		if err := cp.SetOccupancy(id, req); err != nil {
			writeServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
