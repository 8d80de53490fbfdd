package api

import (
	"context"
	"net"
	"net/http"
	"strconv"

	"github.com/ruteo-noc/ruteo/internal/service"
)

// Server wraps the HTTP server and mux for the control-plane API.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
}

// NewServer creates a new API server wired with all routes.
func NewServer(port int, adminToken string, cp *service.ControlPlaneService, apiMaxBodyBytes int64) *Server {
	return NewServerWithAddress("", port, adminToken, cp, apiMaxBodyBytes)
}

// NewServerWithAddress creates a new API server with an explicit listen address.
func NewServerWithAddress(
	listenAddress string,
	port int,
	adminToken string,
	cp *service.ControlPlaneService,
	apiMaxBodyBytes int64,
) *Server {
	mux := http.NewServeMux()

	// Public (no auth)
	mux.Handle("GET /healthz", HandleHealthz())

	// Authenticated routes
	authed := http.NewServeMux()
	authed.Handle("GET /api/v1/system/info", HandleSystemInfo(cp))

	// Submissions.
	authed.Handle("POST /api/v1/services/{id}/analyze", HandleAnalyze(cp))
	authed.Handle("POST /api/v1/services/{id}/resolve", HandleResolve(cp))

	// Topology browsing.
	authed.Handle("GET /api/v1/services", HandleListServices(cp))
	authed.Handle("GET /api/v1/services/{id}", HandleGetService(cp))
	authed.Handle("GET /api/v1/services/{id}/routes", HandleListRoutes(cp))
	authed.Handle("GET /api/v1/routes/{id}", HandleGetRoute(cp))

	// Cameras.
	authed.Handle("GET /api/v1/cameras", HandleListCameras(cp))
	authed.Handle("GET /api/v1/cameras/{id}", HandleGetCamera(cp))
	authed.Handle("PATCH /api/v1/cameras/{id}/enrich", HandleEnrichCamera(cp))
	authed.Handle("PUT /api/v1/cameras/{id}/occupancy", HandleSetOccupancy(cp))

	// Incidents.
	authed.Handle("POST /api/v1/incidents", HandleBanCreate(cp))
	authed.Handle("GET /api/v1/incidents", HandleListIncidents(cp))
	authed.Handle("GET /api/v1/incidents/{id}", HandleGetIncident(cp))
	authed.Handle("POST /api/v1/incidents/{id}/actions/lift", HandleBanLift(cp))

	limitedAuthed := RequestBodyLimitMiddleware(apiMaxBodyBytes, authed)
	mux.Handle("/api/", AuthMiddleware(adminToken, limitedAuthed))

	srv := &http.Server{
		Addr:    net.JoinHostPort(listenAddress, strconv.Itoa(port)),
		Handler: mux,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
	}
}

// ListenAndServe starts the HTTP server. It blocks until the server stops.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler returns the underlying http.Handler for testing.
func (s *Server) Handler() http.Handler {
	return s.mux
}
