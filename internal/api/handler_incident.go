package api

import (
	"log"
	"net/http"

	"golang.org/x/net/http/httpguts"

	"github.com/ruteo-noc/ruteo/internal/protect"
	"github.com/ruteo-noc/ruteo/internal/service"
)

// X-Ticket-Ref echoes the incident's ticket reference on create and lift
// responses so NOC tooling can correlate without parsing the body.
const ticketRefHeader = "X-Ticket-Ref"

// validTicketRef accepts values that can be echoed as an HTTP header.
func validTicketRef(s string) bool {
	return s == "" || httpguts.ValidHeaderFieldValue(s)
}

// HandleBanCreate returns a handler for POST /api/v1/incidents.
func HandleBanCreate(cp *service.ControlPlaneService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req protect.BanRequest
		if err := DecodeBody(r, &req); err != nil {
			writeDecodeBodyError(w, err)
			return
		}
		if !validTicketRef(req.TicketRef) {
			writeInvalidArgument(w, "ticket_ref: contains characters not allowed in a header value")
			return
		}
		result, err := cp.BanCreate(req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		if req.TicketRef != "" {
			w.Header().Set(ticketRefHeader, req.TicketRef)
		}
		WriteJSON(w, http.StatusCreated, result)
	}
}

// HandleBanLift returns a handler for POST /api/v1/incidents/{id}/actions/lift.
func HandleBanLift(cp *service.ControlPlaneService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := requireUUIDPathParam(w, r, "id", "incident id")
		if !ok {
			return
		}
		var req service.LiftRequest
		if err := DecodeBody(r, &req); err != nil {
			writeDecodeBodyError(w, err)
			return
		}
		result, err := cp.BanLift(id, req)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		if inc, err := cp.GetIncident(id); err != nil {
			log.Printf("[api] ticket ref for incident %s: %v", id, err)
		} else if inc.TicketRef != "" && validTicketRef(inc.TicketRef) {
			w.Header().Set(ticketRefHeader, inc.TicketRef)
		}
		WriteJSON(w, http.StatusOK, result)
	}
}

// HandleListIncidents returns a handler for GET /api/v1/incidents.
// Only active=true is supported; incident history stays in the store but has
// no listing endpoint yet.
func HandleListIncidents(cp *service.ControlPlaneService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		active, ok := parseBoolQueryOrWriteInvalid(w, r, "active")
		if !ok {
			return
		}
		if active != nil && !*active {
			writeInvalidArgument(w, "active: only active=true is supported")
			return
		}
		incs, err := cp.ListActiveIncidents()
		if err != nil {
			writeServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, incs)
	}
}

// HandleGetIncident returns a handler for GET /api/v1/incidents/{id}.
func HandleGetIncident(cp *service.ControlPlaneService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := requireUUIDPathParam(w, r, "id", "incident id")
		if !ok {
			return
		}
		inc, err := cp.GetIncident(id)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, inc)
	}
}
