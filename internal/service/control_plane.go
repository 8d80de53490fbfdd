// Package service holds the control-plane business logic the API handlers
// call into. Handlers stay thin; validation, orchestration and error-code
// mapping live here.
package service

import (
	"errors"
	"time"

	"github.com/ruteo-noc/ruteo/internal/classify"
	"github.com/ruteo-noc/ruteo/internal/protect"
	"github.com/ruteo-noc/ruteo/internal/resolve"
	"github.com/ruteo-noc/ruteo/internal/state"
	"github.com/ruteo-noc/ruteo/internal/survey"
	"github.com/ruteo-noc/ruteo/internal/topology"
)

// ServiceError wraps an error with a code for API response mapping.
type ServiceError struct {
	Code    string // INVALID_ARGUMENT, NOT_FOUND, CONFLICT, INTERNAL
	Message string
	Err     error
}

func (e *ServiceError) Error() string { return e.Message }
func (e *ServiceError) Unwrap() error { return e.Err }

func invalidArg(msg string) *ServiceError {
	return &ServiceError{Code: "INVALID_ARGUMENT", Message: msg}
}

func notFound(msg string) *ServiceError {
	return &ServiceError{Code: "NOT_FOUND", Message: msg}
}

func conflictErr(code, msg string, err error) *ServiceError {
	return &ServiceError{Code: code, Message: msg, Err: err}
}

func internal(msg string, err error) *ServiceError {
	return &ServiceError{Code: "INTERNAL", Message: msg, Err: err}
}

// mapError converts lower-layer errors into coded service errors. Errors
// that already carry a code pass through.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var se *ServiceError
	if errors.As(err, &se) {
		return err
	}
	var mpe *resolve.MissingParameterError
	if errors.As(err, &mpe) {
		return &ServiceError{Code: "MISSING_PARAMETER", Message: mpe.Error(), Err: err}
	}
	var cse *resolve.CrossServiceError
	if errors.As(err, &cse) {
		return conflictErr("CROSS_SERVICE", cse.Error(), err)
	}
	switch {
	case errors.Is(err, survey.ErrEmptySubmission):
		return invalidArg("submission has no usable entries")
	case errors.Is(err, state.ErrFingerprintConflict):
		return conflictErr("FINGERPRINT_CONFLICT", "route changed since analysis, re-analyze", err)
	case errors.Is(err, state.ErrIncidentClosed):
		return conflictErr("ALREADY_CLOSED", "incident is already closed", err)
	case errors.Is(err, resolve.ErrServiceNotEmpty):
		return conflictErr("SERVICE_NOT_EMPTY", "service already has routes, re-analyze", err)
	case errors.Is(err, resolve.ErrInvalidRouteKind):
		return invalidArg("invalid route kind")
	case errors.Is(err, state.ErrNotFound):
		return &ServiceError{Code: "NOT_FOUND", Message: err.Error(), Err: err}
	default:
		return internal("operation failed", err)
	}
}

// SystemInfo contains version and runtime information.
type SystemInfo struct {
	Version   string    `json:"version"`
	GitCommit string    `json:"git_commit"`
	BuildTime string    `json:"build_time"`
	StartedAt time.Time `json:"started_at"`
}

// ControlPlaneService provides all control plane operations.
// Handlers call its methods; business logic lives here, not in handlers.
type ControlPlaneService struct {
	Repo       *state.TopologyRepo
	Index      *topology.CameraIndex
	Classifier *classify.Classifier
	Resolver   *resolve.Resolver
	Protector  *protect.Engine

	Info SystemInfo
}

// New wires a control plane over an opened store.
func New(repo *state.TopologyRepo, index *topology.CameraIndex, info SystemInfo) *ControlPlaneService {
	return &ControlPlaneService{
		Repo:       repo,
		Index:      index,
		Classifier: classify.New(repo),
		Resolver:   resolve.New(repo, index),
		Protector:  protect.NewEngine(repo),
		Info:       info,
	}
}

// GetSystemInfo returns version and runtime information.
func (s *ControlPlaneService) GetSystemInfo() SystemInfo {
	return s.Info
}
