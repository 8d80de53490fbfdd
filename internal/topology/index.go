// Package topology holds the in-memory camera identity index layered over the
// persisted graph. The index is advisory: it speeds up resolve-time camera
// lookups, but the database read inside the transaction stays authoritative.
package topology

import (
	"github.com/maypok86/otter"
	"github.com/puzpuzpuz/xsync/v4"

	"github.com/ruteo-noc/ruteo/internal/state"
)

// CameraIndex maps camera identities to camera ids. External refs are exact
// and unbounded (xsync.Map); normalized-name lookups go through a bounded
// LRU since survey files repeat a working set of site names.
type CameraIndex struct {
	byExternalRef *xsync.Map[string, string]
	byNormName    otter.Cache[string, string]
}

// NewCameraIndex creates a CameraIndex with the normalized-name cache bounded
// to maxNameEntries.
func NewCameraIndex(maxNameEntries int) *CameraIndex {
	cache, err := otter.MustBuilder[string, string](maxNameEntries).
		Cost(func(_ string, _ string) uint32 { return 1 }).
		Build()
	if err != nil {
		panic("topology: failed to create camera name cache: " + err.Error())
	}
	return &CameraIndex{
		byExternalRef: xsync.NewMap[string, string](),
		byNormName:    cache,
	}
}

// LoadFromRepo rebuilds the index from the persisted camera set at bootstrap.
func (ix *CameraIndex) LoadFromRepo(repo *state.TopologyRepo) error {
	identities, err := repo.CameraIdentities()
	if err != nil {
		return err
	}
	for _, ci := range identities {
		ix.Record(ci)
	}
	return nil
}

// Record registers a camera's lookup keys after its row is committed.
// Idempotent: recording the same identity twice is safe. For duplicate
// normalized names the first recorded id wins, matching the store's
// oldest-camera-wins lookup precedence.
func (ix *CameraIndex) Record(ci state.CameraIdentity) {
	if ci.ExternalRef != "" {
		ix.byExternalRef.Store(ci.ExternalRef, ci.ID)
	}
	if _, ok := ix.byNormName.Get(ci.NormName); !ok {
		ix.byNormName.Set(ci.NormName, ci.ID)
	}
}

// LookupExternalRef returns the camera id recorded for an external ref.
func (ix *CameraIndex) LookupExternalRef(ref string) (string, bool) {
	if ref == "" {
		return "", false
	}
	return ix.byExternalRef.Load(ref)
}

// LookupNormName returns the camera id cached for a normalized name.
// A miss says nothing: the name may simply have been evicted.
func (ix *CameraIndex) LookupNormName(norm string) (string, bool) {
	return ix.byNormName.Get(norm)
}

// Lookup applies the camera identity precedence: external ref first, then
// normalized name.
func (ix *CameraIndex) Lookup(externalRef, normName string) (string, bool) {
	if id, ok := ix.LookupExternalRef(externalRef); ok {
		return id, true
	}
	return ix.LookupNormName(normName)
}

// Size returns the number of external-ref entries in the index.
func (ix *CameraIndex) Size() int {
	return ix.byExternalRef.Size()
}
