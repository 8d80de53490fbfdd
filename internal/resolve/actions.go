package resolve

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/ruteo-noc/ruteo/internal/model"
	"github.com/ruteo-noc/ruteo/internal/state"
	"github.com/ruteo-noc/ruteo/internal/survey"
)

// ErrInvalidRouteKind is returned by BRANCH when new_route_kind is present
// but not a recognized kind.
var ErrInvalidRouteKind = errors.New("invalid route kind")

func (r *Resolver) fault() error {
	if r.faultAfterAssociations != nil {
		return r.faultAfterAssociations()
	}
	return nil
}

// loadTargetRoute fetches and guards the route a route-targeting action
// mutates: it must exist, belong to the request's service, and match the
// expected fingerprint when one was supplied.
func (r *Resolver) loadTargetRoute(tx *state.Tx, req Request) (*model.Route, error) {
	if req.TargetRouteID == "" {
		return nil, &MissingParameterError{Field: "target_route_id"}
	}
	rt, err := tx.GetRoute(req.TargetRouteID)
	if err != nil {
		return nil, fmt.Errorf("route %s: %w", req.TargetRouteID, err)
	}
	if rt.ServiceID != req.ServiceID {
		return nil, &CrossServiceError{
			RequestServiceID: req.ServiceID,
			RouteID:          rt.ID,
			RouteServiceID:   rt.ServiceID,
		}
	}
	if req.ExpectedFingerprint != "" && rt.Fingerprint != req.ExpectedFingerprint {
		return nil, fmt.Errorf("route %s: expected %s, stored %s: %w",
			rt.ID, req.ExpectedFingerprint, rt.Fingerprint, state.ErrFingerprintConflict)
	}
	return rt, nil
}

// ensureService loads the request's service, creating it if absent.
func (r *Resolver) ensureService(tx *state.Tx, req Request, nowNs int64) error {
	_, err := tx.GetService(req.ServiceID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, state.ErrNotFound) {
		return err
	}
	name := req.ServiceName
	if name == "" {
		name = req.ServiceID
	}
	return tx.InsertService(model.Service{
		ID:          req.ServiceID,
		Name:        name,
		CreatedAtNs: nowNs,
	})
}

// writeEntries resolves each entry's camera and inserts association rows
// starting at startOrd, plus cable edges for consecutive entries that carry
// attenuation. Returns the number of association rows written.
func (r *Resolver) writeEntries(tx *state.Tx, up *cameraUpserter, routeID string, entries []survey.NormalizedEntry, startOrd int) (int, error) {
	nowNs := r.now().UnixNano()
	prevCamID := ""
	for i, e := range entries {
		camID, err := up.resolveCamera(e)
		if err != nil {
			return 0, err
		}
		if err := tx.InsertAssociation(model.SpliceAssociation{
			RouteID:       routeID,
			Ord:           startOrd + i,
			CameraID:      camID,
			StrandAlias:   e.StrandAlias,
			Transit:       e.Transit,
			AttenuationDB: e.AttenuationDB,
		}); err != nil {
			return 0, fmt.Errorf("associate %s ord %d: %w", e.Site, startOrd+i, err)
		}
		if i > 0 && entries[i-1].AttenuationDB != nil && prevCamID != camID {
			if err := tx.UpsertCable(model.Cable{
				ID:            uuid.NewString(),
				CameraAID:     prevCamID,
				CameraBID:     camID,
				AttenuationDB: entries[i-1].AttenuationDB,
				UpdatedAtNs:   nowNs,
			}); err != nil {
				return 0, err
			}
		}
		prevCamID = camID
	}
	return len(entries), nil
}

// refreshRouteContent recomputes the route's fingerprint and path signature
// from its stored association rows and persists them. Endpoint markers come
// from the submission when present, otherwise the stored ones are kept.
func (r *Resolver) refreshRouteContent(tx *state.Tx, rt *model.Route, req Request) error {
	rows, err := tx.ListRouteEntryRows(rt.ID)
	if err != nil {
		return err
	}
	n := survey.Normalized{Entries: entriesFromRows(rows)}
	if req.Normalized.HasEndpoints() {
		n.EndpointA = req.Normalized.EndpointA
		n.EndpointB = req.Normalized.EndpointB
	} else {
		n.EndpointA = survey.EndpointMarker{Site: rt.EndpointASite, Connector: rt.EndpointAConnector}
		n.EndpointB = survey.EndpointMarker{Site: rt.EndpointBSite, Connector: rt.EndpointBConnector}
	}

	rt.Fingerprint = n.Fingerprint().Hex()
	rt.PathSignature = n.PathSignature().Hex()
	rt.EndpointASite = n.EndpointA.Site
	rt.EndpointAConnector = n.EndpointA.Connector
	rt.EndpointBSite = n.EndpointB.Site
	rt.EndpointBConnector = n.EndpointB.Connector
	rt.UpdatedAtNs = r.now().UnixNano()
	return tx.UpdateRouteContent(*rt)
}

func entriesFromRows(rows []state.RouteEntryRow) []survey.NormalizedEntry {
	entries := make([]survey.NormalizedEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, survey.NormalizedEntry{
			Site:        row.Site,
			ExternalRef: row.ExternalRef,
			StrandAlias: row.StrandAlias,
			Transit:     row.Transit,
		})
	}
	return entries
}

func (r *Resolver) newRoute(req Request, name string, kind model.RouteKind, nowNs int64) model.Route {
	return model.Route{
		ID:                 uuid.NewString(),
		ServiceID:          req.ServiceID,
		Name:               name,
		Kind:               string(kind),
		Fingerprint:        req.Normalized.Fingerprint().Hex(),
		PathSignature:      req.Normalized.PathSignature().Hex(),
		EndpointASite:      req.Normalized.EndpointA.Site,
		EndpointAConnector: req.Normalized.EndpointA.Connector,
		EndpointBSite:      req.Normalized.EndpointB.Site,
		EndpointBConnector: req.Normalized.EndpointB.Connector,
		Active:             true,
		CreatedAtNs:        nowNs,
		UpdatedAtNs:        nowNs,
	}
}

// createNew registers the service's first route. Resubmitting a sequence the
// service already holds returns the existing route unchanged; any other
// content on a non-empty service is refused so the caller re-analyzes.
func (r *Resolver) createNew(tx *state.Tx, up *cameraUpserter, req Request) (Result, error) {
	nowNs := r.now().UnixNano()
	if err := r.ensureService(tx, req, nowNs); err != nil {
		return Result{}, err
	}

	routes, err := tx.ListRoutesByService(req.ServiceID)
	if err != nil {
		return Result{}, err
	}
	fp := req.Normalized.Fingerprint().Hex()
	for _, rt := range routes {
		if rt.Fingerprint == fp {
			// Idempotent resubmission. Resolve cameras only to report
			// identity counts; nothing is written.
			for _, e := range req.Normalized.Entries {
				if _, err := up.resolveCamera(e); err != nil {
					return Result{}, err
				}
			}
			return Result{ServiceID: req.ServiceID, RouteID: rt.ID}, nil
		}
	}
	if len(routes) > 0 {
		return Result{}, fmt.Errorf("service %s: %w", req.ServiceID, ErrServiceNotEmpty)
	}

	name := req.NewRouteName
	if name == "" {
		name = "principal"
	}
	rt := r.newRoute(req, name, model.RouteKindPrincipal, nowNs)
	if err := tx.InsertRoute(rt); err != nil {
		return Result{}, err
	}
	n, err := r.writeEntries(tx, up, rt.ID, req.Normalized.Entries, 0)
	if err != nil {
		return Result{}, err
	}
	if err := r.fault(); err != nil {
		return Result{}, err
	}
	return Result{ServiceID: req.ServiceID, RouteID: rt.ID, AssociationsWritten: n}, nil
}

// replace swaps the target route's association set for the submission's.
func (r *Resolver) replace(tx *state.Tx, up *cameraUpserter, req Request) (Result, error) {
	rt, err := r.loadTargetRoute(tx, req)
	if err != nil {
		return Result{}, err
	}
	if err := tx.DeleteAssociations(rt.ID); err != nil {
		return Result{}, err
	}
	n, err := r.writeEntries(tx, up, rt.ID, req.Normalized.Entries, 0)
	if err != nil {
		return Result{}, err
	}
	if err := r.fault(); err != nil {
		return Result{}, err
	}
	if err := r.refreshRouteContent(tx, rt, req); err != nil {
		return Result{}, err
	}
	return Result{ServiceID: req.ServiceID, RouteID: rt.ID, AssociationsWritten: n}, nil
}

// mergeAppend appends the submission's entries to the target route, skipping
// entries whose (camera, strand alias) pair the route already holds.
// Re-merging the same submission is a no-op and the fingerprint is stable.
func (r *Resolver) mergeAppend(tx *state.Tx, up *cameraUpserter, req Request) (Result, error) {
	rt, err := r.loadTargetRoute(tx, req)
	if err != nil {
		return Result{}, err
	}
	rows, err := tx.ListRouteEntryRows(rt.ID)
	if err != nil {
		return Result{}, err
	}
	held := make(map[string]bool, len(rows))
	nextOrd := 0
	for _, row := range rows {
		held[row.CameraID+"|"+row.StrandAlias] = true
		if row.Ord >= nextOrd {
			nextOrd = row.Ord + 1
		}
	}

	var appended []survey.NormalizedEntry
	for _, e := range req.Normalized.Entries {
		camID, err := up.resolveCamera(e)
		if err != nil {
			return Result{}, err
		}
		key := camID + "|" + e.StrandAlias
		if held[key] {
			continue
		}
		held[key] = true
		appended = append(appended, e)
	}
	n, err := r.writeEntries(tx, up, rt.ID, appended, nextOrd)
	if err != nil {
		return Result{}, err
	}
	if err := r.fault(); err != nil {
		return Result{}, err
	}
	if err := r.refreshRouteContent(tx, rt, req); err != nil {
		return Result{}, err
	}
	return Result{ServiceID: req.ServiceID, RouteID: rt.ID, AssociationsWritten: n}, nil
}

// branch creates an additional named route for a service that already has
// one, without touching the existing routes.
func (r *Resolver) branch(tx *state.Tx, up *cameraUpserter, req Request) (Result, error) {
	if req.NewRouteName == "" {
		return Result{}, &MissingParameterError{Field: "new_route_name"}
	}
	kind := model.RouteKindAlternative
	if req.NewRouteKind != "" {
		kind = model.NormalizeRouteKind(req.NewRouteKind)
		if kind == "" {
			return Result{}, fmt.Errorf("%q: %w", req.NewRouteKind, ErrInvalidRouteKind)
		}
	}
	if _, err := tx.GetService(req.ServiceID); err != nil {
		return Result{}, fmt.Errorf("service %s: %w", req.ServiceID, err)
	}

	nowNs := r.now().UnixNano()
	rt := r.newRoute(req, req.NewRouteName, kind, nowNs)
	if err := tx.InsertRoute(rt); err != nil {
		return Result{}, err
	}
	n, err := r.writeEntries(tx, up, rt.ID, req.Normalized.Entries, 0)
	if err != nil {
		return Result{}, err
	}
	if err := r.fault(); err != nil {
		return Result{}, err
	}
	return Result{ServiceID: req.ServiceID, RouteID: rt.ID, AssociationsWritten: n}, nil
}

// confirmUpgrade re-homes a surveyed path from an old service to the
// request's service. The old service's routes all deactivate; if one of them
// is active and traces the same site sequence, its association rows transfer
// to the new route instead of being rewritten.
func (r *Resolver) confirmUpgrade(tx *state.Tx, up *cameraUpserter, req Request) (Result, error) {
	if req.OldServiceID == "" {
		return Result{}, &MissingParameterError{Field: "old_service_id"}
	}
	oldRoutes, err := tx.ListRoutesByService(req.OldServiceID)
	if err != nil {
		return Result{}, err
	}
	if len(oldRoutes) == 0 {
		if _, err := tx.GetService(req.OldServiceID); err != nil {
			return Result{}, fmt.Errorf("old service %s: %w", req.OldServiceID, err)
		}
	}

	nowNs := r.now().UnixNano()
	if err := r.ensureService(tx, req, nowNs); err != nil {
		return Result{}, err
	}
	name := req.NewRouteName
	if name == "" {
		name = "principal"
	}
	rt := r.newRoute(req, name, model.RouteKindPrincipal, nowNs)
	if err := tx.InsertRoute(rt); err != nil {
		return Result{}, err
	}

	sig := req.Normalized.PathSignature().Hex()
	var moved int64
	for _, ort := range oldRoutes {
		if moved == 0 && ort.Active && ort.PathSignature == sig {
			moved, err = tx.TransferAssociations(ort.ID, rt.ID)
			if err != nil {
				return Result{}, err
			}
		}
		if err := tx.SetRouteActive(ort.ID, false, nowNs); err != nil {
			return Result{}, err
		}
	}

	n := int(moved)
	if moved == 0 {
		n, err = r.writeEntries(tx, up, rt.ID, req.Normalized.Entries, 0)
		if err != nil {
			return Result{}, err
		}
	} else {
		// Transferred rows may carry strand aliases or transit flags the
		// submission did not, so the stored fingerprint must describe the
		// rows the route now owns.
		if err := r.refreshRouteContent(tx, &rt, req); err != nil {
			return Result{}, err
		}
	}
	if err := r.fault(); err != nil {
		return Result{}, err
	}
	return Result{ServiceID: req.ServiceID, RouteID: rt.ID, AssociationsWritten: n}, nil
}

// addStrand records an additional pelo through cameras the route already
// traverses. Every entry must name its strand alias; pairs the route already
// holds are skipped, so resubmitting the same strand is a no-op.
func (r *Resolver) addStrand(tx *state.Tx, up *cameraUpserter, req Request) (Result, error) {
	for _, e := range req.Normalized.Entries {
		if e.StrandAlias == "" {
			return Result{}, &MissingParameterError{Field: "strand_alias"}
		}
	}
	rt, err := r.loadTargetRoute(tx, req)
	if err != nil {
		return Result{}, err
	}
	rows, err := tx.ListRouteEntryRows(rt.ID)
	if err != nil {
		return Result{}, err
	}
	held := make(map[string]bool, len(rows))
	for _, row := range rows {
		held[row.CameraID+"|"+row.StrandAlias] = true
	}

	written := 0
	for i, e := range req.Normalized.Entries {
		camID, err := up.resolveCamera(e)
		if err != nil {
			return Result{}, err
		}
		key := camID + "|" + e.StrandAlias
		if held[key] {
			continue
		}
		held[key] = true
		if err := tx.InsertAssociation(model.SpliceAssociation{
			RouteID:       rt.ID,
			Ord:           i,
			CameraID:      camID,
			StrandAlias:   e.StrandAlias,
			Transit:       e.Transit,
			AttenuationDB: e.AttenuationDB,
		}); err != nil {
			return Result{}, fmt.Errorf("associate %s/%s ord %d: %w", e.Site, e.StrandAlias, i, err)
		}
		written++
	}
	if err := r.fault(); err != nil {
		return Result{}, err
	}
	if err := r.refreshRouteContent(tx, rt, req); err != nil {
		return Result{}, err
	}
	return Result{ServiceID: req.ServiceID, RouteID: rt.ID, AssociationsWritten: written}, nil
}
