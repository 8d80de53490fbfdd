package api

import (
	"net/http"

	"github.com/ruteo-noc/ruteo/internal/service"
)

// HandleAnalyze returns a handler for POST /api/v1/services/{id}/analyze.
func HandleAnalyze(cp *service.ControlPlaneService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		serviceID := PathParam(r, "id")
		var sub service.Submission
		if err := DecodeBody(r, &sub); err != nil {
			writeDecodeBodyError(w, err)
			return
		}
		result, err := cp.Analyze(serviceID, sub)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, result)
	}
}

// HandleResolve returns a handler for POST /api/v1/services/{id}/resolve.
func HandleResolve(cp *service.ControlPlaneService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		serviceID := PathParam(r, "id")
		var req service.ResolveRequest
		if err := DecodeBody(r, &req); err != nil {
			writeDecodeBodyError(w, err)
			return
		}
		result, err := cp.Resolve(serviceID, req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, result)
	}
}
