package model

import "strings"

// CameraState is the operational state of a splice site.
type CameraState string

const (
	// CameraStateLibre means the camera has free capacity.
	CameraStateLibre CameraState = "LIBRE"
	// CameraStateOcupada means an external occupancy record claims the camera.
	CameraStateOcupada CameraState = "OCUPADA"
	// CameraStateBaneada means at least one active incident quarantines the camera.
	CameraStateBaneada CameraState = "BANEADA"
	// CameraStateDetectada is the birth state of a camera known only from a
	// survey submission, pending external reconciliation.
	CameraStateDetectada CameraState = "DETECTADA"
)

func (s CameraState) IsValid() bool {
	switch s {
	case CameraStateLibre, CameraStateOcupada, CameraStateBaneada, CameraStateDetectada:
		return true
	default:
		return false
	}
}

// CameraOrigin records where a camera record came from.
type CameraOrigin string

const (
	CameraOriginManual        CameraOrigin = "MANUAL"
	CameraOriginSurvey        CameraOrigin = "SURVEY"
	CameraOriginExternalSheet CameraOrigin = "EXTERNAL_SHEET"
)

func (o CameraOrigin) IsValid() bool {
	switch o {
	case CameraOriginManual, CameraOriginSurvey, CameraOriginExternalSheet:
		return true
	default:
		return false
	}
}

// RouteKind distinguishes the role a route plays for its service.
type RouteKind string

const (
	RouteKindPrincipal   RouteKind = "PRINCIPAL"
	RouteKindAlternative RouteKind = "ALTERNATIVE"
	RouteKindBackup      RouteKind = "BACKUP"
)

func (k RouteKind) IsValid() bool {
	switch k {
	case RouteKindPrincipal, RouteKindAlternative, RouteKindBackup:
		return true
	default:
		return false
	}
}

// NormalizeRouteKind parses a raw route kind, returning "" if unrecognized.
func NormalizeRouteKind(raw string) RouteKind {
	k := RouteKind(strings.ToUpper(strings.TrimSpace(raw)))
	if k.IsValid() {
		return k
	}
	return ""
}
