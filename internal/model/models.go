// Package model defines domain structs shared across the persistence layer.
package model

// Service represents a customer service realized by one or more fiber routes.
type Service struct {
	ID          string `json:"id"` // normalized business identifier
	Name        string `json:"name"`
	CreatedAtNs int64  `json:"created_at_ns"`
}

// Route represents one physical path realizing a service's connectivity.
type Route struct {
	ID                 string `json:"id"`
	ServiceID          string `json:"service_id"`
	Name               string `json:"name"`
	Kind               string `json:"kind"`           // RouteKind
	Fingerprint        string `json:"fingerprint"`    // hex sha256 of the canonical entry sequence
	PathSignature      string `json:"path_signature"` // hex xxh3-128 of the site sequence only
	EndpointASite      string `json:"endpoint_a_site"`
	EndpointAConnector string `json:"endpoint_a_connector"`
	EndpointBSite      string `json:"endpoint_b_site"`
	EndpointBConnector string `json:"endpoint_b_connector"`
	Active             bool   `json:"active"`
	CreatedAtNs        int64  `json:"created_at_ns"`
	UpdatedAtNs        int64  `json:"updated_at_ns"`
}

// Camera represents a splice site. Cameras are shared: many routes and
// incidents may reference the same camera, so no single route owns one.
type Camera struct {
	ID               string   `json:"id"`
	ExternalRef      string   `json:"external_ref"` // empty if not known
	Name             string   `json:"name"`
	NormName         string   `json:"norm_name"`
	State            string   `json:"state"`  // CameraState
	Origin           string   `json:"origin"` // CameraOrigin
	Lat              *float64 `json:"lat,omitempty"`
	Lon              *float64 `json:"lon,omitempty"`
	ManualFieldsJSON string   `json:"manual_fields_json"` // JSON array of manually-verified field names
	CreatedAtNs      int64    `json:"created_at_ns"`
	UpdatedAtNs      int64    `json:"updated_at_ns"`
}

// Cable is an optional edge between two cameras carrying attenuation metadata.
type Cable struct {
	ID            string   `json:"id"`
	CameraAID     string   `json:"camera_a_id"`
	CameraBID     string   `json:"camera_b_id"`
	AttenuationDB *float64 `json:"attenuation_db,omitempty"`
	UpdatedAtNs   int64    `json:"updated_at_ns"`
}

// SpliceAssociation joins a route to a camera at an explicit order index.
// The owning route is responsible for its full association set.
type SpliceAssociation struct {
	RouteID       string   `json:"route_id"`
	Ord           int      `json:"ord"`
	CameraID      string   `json:"camera_id"`
	StrandAlias   string   `json:"strand_alias"` // which pelo within the camera, empty if single-strand
	Transit       bool     `json:"transit"`
	AttenuationDB *float64 `json:"attenuation_db,omitempty"`
}

// SpliceAssociationKey is the composite primary key for splice_associations.
type SpliceAssociationKey struct {
	RouteID     string
	Ord         int
	StrandAlias string
}

// BanIncident is an operator-declared protection event. Incident rows are
// never deleted; lifting sets active=false and ended_at_ns.
type BanIncident struct {
	ID                 string `json:"id"`
	AffectedServiceID  string `json:"affected_service_id"`
	ProtectedServiceID string `json:"protected_service_id"`
	ProtectedRouteID   string `json:"protected_route_id"` // empty = all routes of the protected service
	Reason             string `json:"reason"`
	TicketRef          string `json:"ticket_ref"`
	ClosureReason      string `json:"closure_reason"`
	Active             bool   `json:"active"`
	StartedAtNs        int64  `json:"started_at_ns"`
	EndedAtNs          int64  `json:"ended_at_ns"` // 0 while active
}

// IncidentCamera links an incident to a camera it quarantines.
// NewlyBanned records whether this incident performed the BANEADA transition
// or found the camera already banned by an overlapping incident.
type IncidentCamera struct {
	IncidentID  string `json:"incident_id"`
	CameraID    string `json:"camera_id"`
	NewlyBanned bool   `json:"newly_banned"`
}

// CameraOccupancy is the external-collaborator occupancy record consulted
// when deciding a camera's state after the last referencing incident lifts.
type CameraOccupancy struct {
	CameraID    string `json:"camera_id"`
	Occupied    bool   `json:"occupied"`
	Source      string `json:"source"`
	UpdatedAtNs int64  `json:"updated_at_ns"`
}
