// Package resolve implements the route resolver: the only component that
// mutates the topology graph from a classified submission. Every action runs
// inside a single transaction; partial application is never a valid outcome.
package resolve

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ruteo-noc/ruteo/internal/model"
	"github.com/ruteo-noc/ruteo/internal/state"
	"github.com/ruteo-noc/ruteo/internal/survey"
	"github.com/ruteo-noc/ruteo/internal/topology"
)

// Action selects which mutation a Resolve call performs.
type Action string

const (
	ActionCreateNew      Action = "CREATE_NEW"
	ActionReplace        Action = "REPLACE"
	ActionMergeAppend    Action = "MERGE_APPEND"
	ActionBranch         Action = "BRANCH"
	ActionConfirmUpgrade Action = "CONFIRM_UPGRADE"
	ActionAddStrand      Action = "ADD_STRAND"
)

func (a Action) IsValid() bool {
	switch a {
	case ActionCreateNew, ActionReplace, ActionMergeAppend,
		ActionBranch, ActionConfirmUpgrade, ActionAddStrand:
		return true
	default:
		return false
	}
}

// NormalizeAction parses a raw action string, returning "" if unrecognized.
func NormalizeAction(raw string) Action {
	a := Action(strings.ToUpper(strings.TrimSpace(raw)))
	if a.IsValid() {
		return a
	}
	return ""
}

// MissingParameterError reports a required action parameter that was absent.
type MissingParameterError struct {
	Field string
}

func (e *MissingParameterError) Error() string {
	return fmt.Sprintf("missing required parameter %q", e.Field)
}

// CrossServiceError reports an attempt to mutate a route owned by a different
// service than the request's.
type CrossServiceError struct {
	RequestServiceID string
	RouteID          string
	RouteServiceID   string
}

func (e *CrossServiceError) Error() string {
	return fmt.Sprintf("route %s belongs to service %s, not %s",
		e.RouteID, e.RouteServiceID, e.RequestServiceID)
}

// ErrServiceNotEmpty is returned by CREATE_NEW when the service already has
// routes with a different fingerprint; the caller should re-analyze and pick
// an explicit action instead.
var ErrServiceNotEmpty = errors.New("service already has routes")

// Request carries one resolve invocation.
type Request struct {
	Action      Action
	ServiceID   string
	ServiceName string // display name used if the service is created
	Normalized  survey.Normalized

	TargetRouteID string // REPLACE, MERGE_APPEND, ADD_STRAND
	NewRouteName  string // BRANCH (and route name for CREATE_NEW)
	NewRouteKind  string // BRANCH; defaults to ALTERNATIVE
	OldServiceID  string // CONFIRM_UPGRADE

	// ExpectedFingerprint is the fingerprint the caller analyzed against.
	// For route-targeting actions a mismatch with the stored fingerprint
	// fails the whole call with state.ErrFingerprintConflict. Empty skips
	// the check.
	ExpectedFingerprint string
}

// Result reports what a resolve call wrote.
type Result struct {
	ServiceID           string `json:"service_id"`
	RouteID             string `json:"route_id"`
	CamerasCreated      int    `json:"cameras_created"`
	CamerasExisting     int    `json:"cameras_existing"`
	AssociationsWritten int    `json:"associations_written"`
}

// Resolver mutates the topology store. Safe for concurrent use; concurrent
// calls serialize on the store's write transaction.
type Resolver struct {
	Repo  *state.TopologyRepo
	Index *topology.CameraIndex

	now func() time.Time

	// faultAfterAssociations, when set, runs after association writes and
	// before the route content update. Used to exercise rollback.
	faultAfterAssociations func() error
}

// New creates a Resolver over the given store and camera index.
func New(repo *state.TopologyRepo, index *topology.CameraIndex) *Resolver {
	return &Resolver{Repo: repo, Index: index, now: time.Now}
}

// Resolve applies the requested action in a single transaction and, on
// success, feeds newly created cameras into the identity index.
func (r *Resolver) Resolve(req Request) (Result, error) {
	if !req.Action.IsValid() {
		return Result{}, &MissingParameterError{Field: "action"}
	}
	if req.ServiceID == "" {
		return Result{}, &MissingParameterError{Field: "service_id"}
	}
	if len(req.Normalized.Entries) == 0 {
		return Result{}, survey.ErrEmptySubmission
	}

	var result Result
	var created []state.CameraIdentity
	err := r.Repo.WithTx(func(tx *state.Tx) error {
		up := newCameraUpserter(r, tx)
		var err error
		switch req.Action {
		case ActionCreateNew:
			result, err = r.createNew(tx, up, req)
		case ActionReplace:
			result, err = r.replace(tx, up, req)
		case ActionMergeAppend:
			result, err = r.mergeAppend(tx, up, req)
		case ActionBranch:
			result, err = r.branch(tx, up, req)
		case ActionConfirmUpgrade:
			result, err = r.confirmUpgrade(tx, up, req)
		case ActionAddStrand:
			result, err = r.addStrand(tx, up, req)
		}
		if err != nil {
			return err
		}
		result.CamerasCreated = up.createdCount()
		result.CamerasExisting = up.existingCount()
		created = up.created
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	for _, ci := range created {
		r.Index.Record(ci)
	}
	return result, nil
}

// cameraUpserter resolves submission entries to camera ids with the
// documented precedence (external ref, then normalized name) and creates
// missing cameras in state DETECTADA. Lookups within one submission are
// memoized so re-resolving the same action never duplicates a camera.
type cameraUpserter struct {
	r  *Resolver
	tx *state.Tx

	byKey   map[string]string // submission-local memo: identity key → camera id
	seen    map[string]bool   // camera id → created this call
	created []state.CameraIdentity
}

func newCameraUpserter(r *Resolver, tx *state.Tx) *cameraUpserter {
	return &cameraUpserter{
		r:     r,
		tx:    tx,
		byKey: make(map[string]string),
		seen:  make(map[string]bool),
	}
}

func (u *cameraUpserter) createdCount() int {
	n := 0
	for _, created := range u.seen {
		if created {
			n++
		}
	}
	return n
}

func (u *cameraUpserter) existingCount() int {
	n := 0
	for _, created := range u.seen {
		if !created {
			n++
		}
	}
	return n
}

// resolveCamera returns the camera id for a normalized entry, creating the
// camera if absent.
func (u *cameraUpserter) resolveCamera(e survey.NormalizedEntry) (string, error) {
	key := "name:" + e.Site
	if e.ExternalRef != "" {
		key = "ref:" + e.ExternalRef
	}
	if id, ok := u.byKey[key]; ok {
		return id, nil
	}

	cam, err := u.lookup(e)
	if err != nil && !errors.Is(err, state.ErrNotFound) {
		return "", err
	}
	if cam != nil {
		u.byKey[key] = cam.ID
		if _, ok := u.seen[cam.ID]; !ok {
			u.seen[cam.ID] = false
		}
		return cam.ID, nil
	}

	nowNs := u.r.now().UnixNano()
	c := model.Camera{
		ID:               uuid.NewString(),
		ExternalRef:      e.ExternalRef,
		Name:             e.Site,
		NormName:         e.Site,
		State:            string(model.CameraStateDetectada),
		Origin:           string(model.CameraOriginSurvey),
		ManualFieldsJSON: "[]",
		CreatedAtNs:      nowNs,
		UpdatedAtNs:      nowNs,
	}
	if err := u.tx.InsertCamera(c); err != nil {
		return "", fmt.Errorf("insert camera %s: %w", e.Site, err)
	}
	u.byKey[key] = c.ID
	u.seen[c.ID] = true
	u.created = append(u.created, state.CameraIdentity{
		ID:          c.ID,
		ExternalRef: c.ExternalRef,
		NormName:    c.NormName,
	})
	return c.ID, nil
}

// lookup applies the two-stage identity precedence inside the transaction.
// The in-memory index only provides a candidate; the row read here decides.
func (u *cameraUpserter) lookup(e survey.NormalizedEntry) (*model.Camera, error) {
	if id, ok := u.r.Index.Lookup(e.ExternalRef, e.Site); ok {
		cam, err := u.tx.GetCamera(id)
		if err == nil && cameraMatchesEntry(cam, e) {
			return cam, nil
		}
		if err != nil && !errors.Is(err, state.ErrNotFound) {
			return nil, err
		}
		// Stale index entry: fall through to the authoritative lookups.
	}

	if e.ExternalRef != "" {
		cam, err := u.tx.GetCameraByExternalRef(e.ExternalRef)
		if err == nil {
			return cam, nil
		}
		if !errors.Is(err, state.ErrNotFound) {
			return nil, err
		}
	}
	return u.tx.GetCameraByNormName(e.Site)
}

func cameraMatchesEntry(cam *model.Camera, e survey.NormalizedEntry) bool {
	if e.ExternalRef != "" {
		return cam.ExternalRef == e.ExternalRef
	}
	return cam.NormName == e.Site
}
