package resolve

import (
	"errors"
	"testing"

	"github.com/ruteo-noc/ruteo/internal/state"
	"github.com/ruteo-noc/ruteo/internal/survey"
	"github.com/ruteo-noc/ruteo/internal/testutil"
	"github.com/ruteo-noc/ruteo/internal/topology"
)

func newTestResolver(t *testing.T) (*Resolver, *state.TopologyRepo) {
	t.Helper()
	repo := testutil.NewTempRepo(t)
	ix := topology.NewCameraIndex(128)
	if err := ix.LoadFromRepo(repo); err != nil {
		t.Fatalf("load index: %v", err)
	}
	return New(repo, ix), repo
}

func canon(t *testing.T, sites ...string) survey.Normalized {
	t.Helper()
	entries := make([]survey.Entry, 0, len(sites))
	for _, s := range sites {
		entries = append(entries, survey.Entry{Site: s})
	}
	n, err := survey.Canonicalize(entries, survey.Endpoints{})
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	return n
}

func TestResolveCreateNew(t *testing.T) {
	r, repo := newTestResolver(t)

	n := canon(t, "Estación Central", "Cámara Sur", "Nodo Final")
	res, err := r.Resolve(Request{
		Action:      ActionCreateNew,
		ServiceID:   "SVC-100",
		ServiceName: "Cliente Cien",
		Normalized:  n,
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.CamerasCreated != 3 || res.CamerasExisting != 0 {
		t.Fatalf("cameras created/existing = %d/%d", res.CamerasCreated, res.CamerasExisting)
	}
	if res.AssociationsWritten != 3 {
		t.Fatalf("associations = %d", res.AssociationsWritten)
	}

	rt, err := repo.GetRoute(res.RouteID)
	if err != nil {
		t.Fatalf("get route: %v", err)
	}
	if rt.Fingerprint != n.Fingerprint().Hex() {
		t.Fatalf("fingerprint = %s", rt.Fingerprint)
	}
	if !rt.Active || rt.Kind != "PRINCIPAL" {
		t.Fatalf("route = %+v", rt)
	}

	assocs, err := repo.ListAssociations(res.RouteID)
	if err != nil {
		t.Fatalf("list associations: %v", err)
	}
	if len(assocs) != 3 {
		t.Fatalf("association rows = %d", len(assocs))
	}
	for i, a := range assocs {
		if a.Ord != i {
			t.Fatalf("ord[%d] = %d", i, a.Ord)
		}
	}
}

func TestResolveCreateNewIdempotent(t *testing.T) {
	r, _ := newTestResolver(t)

	n := canon(t, "A", "B")
	req := Request{Action: ActionCreateNew, ServiceID: "SVC-1", Normalized: n}
	first, err := r.Resolve(req)
	if err != nil {
		t.Fatalf("first resolve: %v", err)
	}
	second, err := r.Resolve(req)
	if err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if second.RouteID != first.RouteID {
		t.Fatalf("route id changed: %s vs %s", second.RouteID, first.RouteID)
	}
	if second.AssociationsWritten != 0 || second.CamerasCreated != 0 {
		t.Fatalf("resubmission wrote: %+v", second)
	}
	if second.CamerasExisting != 2 {
		t.Fatalf("cameras existing = %d", second.CamerasExisting)
	}
}

func TestResolveCreateNewRefusesNonEmptyService(t *testing.T) {
	r, _ := newTestResolver(t)

	if _, err := r.Resolve(Request{Action: ActionCreateNew, ServiceID: "SVC-1", Normalized: canon(t, "A", "B")}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	_, err := r.Resolve(Request{Action: ActionCreateNew, ServiceID: "SVC-1", Normalized: canon(t, "A", "C")})
	if !errors.Is(err, ErrServiceNotEmpty) {
		t.Fatalf("err = %v", err)
	}
}

func TestResolveReplace(t *testing.T) {
	r, repo := newTestResolver(t)

	seed, err := r.Resolve(Request{Action: ActionCreateNew, ServiceID: "SVC-1", Normalized: canon(t, "A", "B", "C")})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	n := canon(t, "A", "X", "C")
	res, err := r.Resolve(Request{
		Action:        ActionReplace,
		ServiceID:     "SVC-1",
		TargetRouteID: seed.RouteID,
		Normalized:    n,
	})
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	if res.CamerasCreated != 1 || res.CamerasExisting != 2 {
		t.Fatalf("cameras created/existing = %d/%d", res.CamerasCreated, res.CamerasExisting)
	}

	rt, err := repo.GetRoute(seed.RouteID)
	if err != nil {
		t.Fatalf("get route: %v", err)
	}
	if rt.Fingerprint != n.Fingerprint().Hex() {
		t.Fatalf("fingerprint not recomputed: %s", rt.Fingerprint)
	}
	assocs, _ := repo.ListAssociations(seed.RouteID)
	if len(assocs) != 3 {
		t.Fatalf("association rows = %d", len(assocs))
	}
	// Camera B must survive the replace; only the association goes.
	if _, err := repo.GetCamera(assocs[0].CameraID); err != nil {
		t.Fatalf("camera lookup: %v", err)
	}
}

func TestResolveReplaceFingerprintConflict(t *testing.T) {
	r, _ := newTestResolver(t)

	seed, err := r.Resolve(Request{Action: ActionCreateNew, ServiceID: "SVC-1", Normalized: canon(t, "A", "B")})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	_, err = r.Resolve(Request{
		Action:              ActionReplace,
		ServiceID:           "SVC-1",
		TargetRouteID:       seed.RouteID,
		Normalized:          canon(t, "A", "C"),
		ExpectedFingerprint: "deadbeef",
	})
	if !errors.Is(err, state.ErrFingerprintConflict) {
		t.Fatalf("err = %v", err)
	}
}

func TestResolveCrossServiceRefused(t *testing.T) {
	r, _ := newTestResolver(t)

	seed, err := r.Resolve(Request{Action: ActionCreateNew, ServiceID: "SVC-1", Normalized: canon(t, "A", "B")})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	_, err = r.Resolve(Request{
		Action:        ActionReplace,
		ServiceID:     "SVC-2",
		TargetRouteID: seed.RouteID,
		Normalized:    canon(t, "A", "C"),
	})
	var cse *CrossServiceError
	if !errors.As(err, &cse) {
		t.Fatalf("err = %v", err)
	}
	if cse.RouteServiceID != "SVC-1" || cse.RequestServiceID != "SVC-2" {
		t.Fatalf("cross-service error = %+v", cse)
	}
}

func TestResolveMissingParameters(t *testing.T) {
	r, _ := newTestResolver(t)
	n := canon(t, "A", "B")

	cases := []struct {
		name  string
		req   Request
		field string
	}{
		{"no action", Request{ServiceID: "S", Normalized: n}, "action"},
		{"no service", Request{Action: ActionCreateNew, Normalized: n}, "service_id"},
		{"replace without target", Request{Action: ActionReplace, ServiceID: "S", Normalized: n}, "target_route_id"},
		{"branch without name", Request{Action: ActionBranch, ServiceID: "S", Normalized: n}, "new_route_name"},
		{"upgrade without old service", Request{Action: ActionConfirmUpgrade, ServiceID: "S", Normalized: n}, "old_service_id"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := r.Resolve(tc.req)
			var mpe *MissingParameterError
			if !errors.As(err, &mpe) {
				t.Fatalf("err = %v", err)
			}
			if mpe.Field != tc.field {
				t.Fatalf("field = %s, want %s", mpe.Field, tc.field)
			}
		})
	}
}

func TestResolveMergeAppend(t *testing.T) {
	r, repo := newTestResolver(t)

	seed, err := r.Resolve(Request{Action: ActionCreateNew, ServiceID: "SVC-1", Normalized: canon(t, "A", "B")})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	req := Request{
		Action:        ActionMergeAppend,
		ServiceID:     "SVC-1",
		TargetRouteID: seed.RouteID,
		Normalized:    canon(t, "B", "C", "D"),
	}
	res, err := r.Resolve(req)
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	// B is already on the route; only C and D append.
	if res.AssociationsWritten != 2 {
		t.Fatalf("associations = %d", res.AssociationsWritten)
	}

	rt1, _ := repo.GetRoute(seed.RouteID)

	again, err := r.Resolve(req)
	if err != nil {
		t.Fatalf("re-merge: %v", err)
	}
	if again.AssociationsWritten != 0 {
		t.Fatalf("re-merge wrote %d rows", again.AssociationsWritten)
	}
	rt2, _ := repo.GetRoute(seed.RouteID)
	if rt1.Fingerprint != rt2.Fingerprint {
		t.Fatalf("fingerprint drifted on idempotent merge")
	}

	assocs, _ := repo.ListAssociations(seed.RouteID)
	if len(assocs) != 4 {
		t.Fatalf("association rows = %d", len(assocs))
	}
}

func TestResolveBranch(t *testing.T) {
	r, repo := newTestResolver(t)

	seed, err := r.Resolve(Request{Action: ActionCreateNew, ServiceID: "SVC-1", Normalized: canon(t, "A", "B")})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	res, err := r.Resolve(Request{
		Action:       ActionBranch,
		ServiceID:    "SVC-1",
		NewRouteName: "respaldo norte",
		NewRouteKind: "backup",
		Normalized:   canon(t, "A", "N", "B"),
	})
	if err != nil {
		t.Fatalf("branch: %v", err)
	}
	if res.RouteID == seed.RouteID {
		t.Fatal("branch reused the existing route")
	}

	rt, err := repo.GetRoute(res.RouteID)
	if err != nil {
		t.Fatalf("get route: %v", err)
	}
	if rt.Kind != "BACKUP" || rt.Name != "respaldo norte" {
		t.Fatalf("route = %+v", rt)
	}

	routes, _ := repo.ListRoutesByService("SVC-1")
	if len(routes) != 2 {
		t.Fatalf("service routes = %d", len(routes))
	}
	for _, rt := range routes {
		if !rt.Active {
			t.Fatalf("route %s deactivated by branch", rt.ID)
		}
	}
}

func TestResolveBranchInvalidKind(t *testing.T) {
	r, _ := newTestResolver(t)
	_, err := r.Resolve(Request{
		Action:       ActionBranch,
		ServiceID:    "SVC-1",
		NewRouteName: "x",
		NewRouteKind: "SIDEWAYS",
		Normalized:   canon(t, "A", "B"),
	})
	if !errors.Is(err, ErrInvalidRouteKind) {
		t.Fatalf("err = %v", err)
	}
}

func TestResolveConfirmUpgradeTransfers(t *testing.T) {
	r, repo := newTestResolver(t)

	n := canon(t, "A", "B", "C")
	old, err := r.Resolve(Request{Action: ActionCreateNew, ServiceID: "SVC-OLD", Normalized: n})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	res, err := r.Resolve(Request{
		Action:       ActionConfirmUpgrade,
		ServiceID:    "SVC-NEW",
		OldServiceID: "SVC-OLD",
		Normalized:   n,
	})
	if err != nil {
		t.Fatalf("upgrade: %v", err)
	}
	if res.AssociationsWritten != 3 {
		t.Fatalf("associations moved = %d", res.AssociationsWritten)
	}
	if res.CamerasCreated != 0 {
		t.Fatalf("upgrade created %d cameras", res.CamerasCreated)
	}

	oldRt, _ := repo.GetRoute(old.RouteID)
	if oldRt.Active {
		t.Fatal("old route still active")
	}
	oldAssocs, _ := repo.ListAssociations(old.RouteID)
	if len(oldAssocs) != 0 {
		t.Fatalf("old route kept %d associations", len(oldAssocs))
	}
	newAssocs, _ := repo.ListAssociations(res.RouteID)
	if len(newAssocs) != 3 {
		t.Fatalf("new route has %d associations", len(newAssocs))
	}
}

func TestResolveConfirmUpgradeFingerprintCoversTransferredRows(t *testing.T) {
	r, repo := newTestResolver(t)

	aliased, err := survey.Canonicalize([]survey.Entry{
		{Site: "A", StrandAlias: "pelo-1"},
		{Site: "B", StrandAlias: "pelo-1"},
	}, survey.Endpoints{})
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	if _, err := r.Resolve(Request{Action: ActionCreateNew, ServiceID: "SVC-OLD", Normalized: aliased}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	// The upgrade submission names the same sites without strand aliases.
	// The transfer matches on path signature, so the new route inherits the
	// aliased rows and its fingerprint must be recomputed from them.
	res, err := r.Resolve(Request{
		Action:       ActionConfirmUpgrade,
		ServiceID:    "SVC-NEW",
		OldServiceID: "SVC-OLD",
		Normalized:   canon(t, "A", "B"),
	})
	if err != nil {
		t.Fatalf("upgrade: %v", err)
	}
	if res.AssociationsWritten != 2 {
		t.Fatalf("associations moved = %d", res.AssociationsWritten)
	}

	rt, err := repo.GetRoute(res.RouteID)
	if err != nil {
		t.Fatalf("get route: %v", err)
	}
	if rt.Fingerprint != aliased.Fingerprint().Hex() {
		t.Fatalf("fingerprint = %s, want the aliased rows' %s", rt.Fingerprint, aliased.Fingerprint().Hex())
	}
	if rt.Fingerprint == canon(t, "A", "B").Fingerprint().Hex() {
		t.Fatal("fingerprint still describes the alias-less submission")
	}
}

func TestResolveConfirmUpgradeDifferentPath(t *testing.T) {
	r, repo := newTestResolver(t)

	old, err := r.Resolve(Request{Action: ActionCreateNew, ServiceID: "SVC-OLD", Normalized: canon(t, "A", "B")})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	res, err := r.Resolve(Request{
		Action:       ActionConfirmUpgrade,
		ServiceID:    "SVC-NEW",
		OldServiceID: "SVC-OLD",
		Normalized:   canon(t, "A", "X", "B"),
	})
	if err != nil {
		t.Fatalf("upgrade: %v", err)
	}
	// No signature match: old rows stay on the deactivated route and the
	// new route is written from the submission.
	oldAssocs, _ := repo.ListAssociations(old.RouteID)
	if len(oldAssocs) != 2 {
		t.Fatalf("old associations = %d", len(oldAssocs))
	}
	newAssocs, _ := repo.ListAssociations(res.RouteID)
	if len(newAssocs) != 3 {
		t.Fatalf("new associations = %d", len(newAssocs))
	}
}

func TestResolveAddStrand(t *testing.T) {
	r, repo := newTestResolver(t)

	seed, err := r.Resolve(Request{Action: ActionCreateNew, ServiceID: "SVC-1", Normalized: canon(t, "A", "B")})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	strand, err := survey.Canonicalize([]survey.Entry{
		{Site: "A", StrandAlias: "pelo-2"},
		{Site: "B", StrandAlias: "pelo-2"},
	}, survey.Endpoints{})
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}

	before, _ := repo.GetRoute(seed.RouteID)
	req := Request{
		Action:        ActionAddStrand,
		ServiceID:     "SVC-1",
		TargetRouteID: seed.RouteID,
		Normalized:    strand,
	}
	res, err := r.Resolve(req)
	if err != nil {
		t.Fatalf("add strand: %v", err)
	}
	if res.AssociationsWritten != 2 || res.CamerasCreated != 0 {
		t.Fatalf("result = %+v", res)
	}
	after, _ := repo.GetRoute(seed.RouteID)
	if after.Fingerprint == before.Fingerprint {
		t.Fatal("fingerprint unchanged after new strand")
	}
	if after.PathSignature != before.PathSignature {
		t.Fatal("path signature changed by a strand-only addition")
	}

	n, err := repo.StrandCount(seed.RouteID)
	if err != nil {
		t.Fatalf("strand count: %v", err)
	}
	if n != 2 {
		t.Fatalf("strand count = %d", n)
	}

	again, err := r.Resolve(req)
	if err != nil {
		t.Fatalf("re-add: %v", err)
	}
	if again.AssociationsWritten != 0 {
		t.Fatalf("re-add wrote %d rows", again.AssociationsWritten)
	}
}

func TestResolveAddStrandRequiresAlias(t *testing.T) {
	r, _ := newTestResolver(t)
	seed, err := r.Resolve(Request{Action: ActionCreateNew, ServiceID: "SVC-1", Normalized: canon(t, "A", "B")})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	_, err = r.Resolve(Request{
		Action:        ActionAddStrand,
		ServiceID:     "SVC-1",
		TargetRouteID: seed.RouteID,
		Normalized:    canon(t, "A", "B"),
	})
	var mpe *MissingParameterError
	if !errors.As(err, &mpe) || mpe.Field != "strand_alias" {
		t.Fatalf("err = %v", err)
	}
}

func TestResolveRollsBackOnFault(t *testing.T) {
	r, repo := newTestResolver(t)

	boom := errors.New("boom")
	r.faultAfterAssociations = func() error { return boom }
	_, err := r.Resolve(Request{Action: ActionCreateNew, ServiceID: "SVC-1", Normalized: canon(t, "A", "B")})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}

	// Everything from the failed call must be gone, cameras included.
	if _, err := repo.GetService("SVC-1"); !errors.Is(err, state.ErrNotFound) {
		t.Fatalf("service survived rollback: %v", err)
	}
	cams, err := repo.ListCameras()
	if err != nil {
		t.Fatalf("list cameras: %v", err)
	}
	if len(cams) != 0 {
		t.Fatalf("cameras survived rollback: %d", len(cams))
	}

	r.faultAfterAssociations = nil
	if _, err := r.Resolve(Request{Action: ActionCreateNew, ServiceID: "SVC-1", Normalized: canon(t, "A", "B")}); err != nil {
		t.Fatalf("resolve after rollback: %v", err)
	}
}

func TestResolveReusesCamerasAcrossServices(t *testing.T) {
	r, repo := newTestResolver(t)

	if _, err := r.Resolve(Request{Action: ActionCreateNew, ServiceID: "SVC-1", Normalized: canon(t, "A", "B")}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	res, err := r.Resolve(Request{Action: ActionCreateNew, ServiceID: "SVC-2", Normalized: canon(t, "B", "C")})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if res.CamerasCreated != 1 || res.CamerasExisting != 1 {
		t.Fatalf("cameras created/existing = %d/%d", res.CamerasCreated, res.CamerasExisting)
	}
	cams, _ := repo.ListCameras()
	if len(cams) != 3 {
		t.Fatalf("total cameras = %d", len(cams))
	}
}
