package topology

import (
	"testing"

	"github.com/ruteo-noc/ruteo/internal/model"
	"github.com/ruteo-noc/ruteo/internal/state"
	"github.com/ruteo-noc/ruteo/internal/testutil"
)

func TestRecordAndLookupPrecedence(t *testing.T) {
	ix := NewCameraIndex(64)
	ix.Record(state.CameraIdentity{ID: "cam-1", ExternalRef: "EXT-1", NormName: "CTO 1"})
	ix.Record(state.CameraIdentity{ID: "cam-2", NormName: "CTO 2"})

	if id, ok := ix.Lookup("EXT-1", "CTO 2"); !ok || id != "cam-1" {
		t.Fatalf("lookup = %s/%v, want cam-1 (external ref wins)", id, ok)
	}
	if id, ok := ix.Lookup("", "CTO 2"); !ok || id != "cam-2" {
		t.Fatalf("lookup = %s/%v, want cam-2", id, ok)
	}
	if _, ok := ix.Lookup("", "CTO 99"); ok {
		t.Fatal("unexpected hit for unknown name")
	}
	if _, ok := ix.LookupExternalRef(""); ok {
		t.Fatal("empty external ref must never match")
	}
}

func TestRecordFirstNameWins(t *testing.T) {
	ix := NewCameraIndex(64)
	ix.Record(state.CameraIdentity{ID: "cam-old", NormName: "CTO 5"})
	ix.Record(state.CameraIdentity{ID: "cam-new", NormName: "CTO 5"})

	// Matches the store's oldest-camera-wins lookup.
	if id, ok := ix.LookupNormName("CTO 5"); !ok || id != "cam-old" {
		t.Fatalf("lookup = %s/%v, want cam-old", id, ok)
	}
}

func TestRecordIdempotent(t *testing.T) {
	ix := NewCameraIndex(64)
	ci := state.CameraIdentity{ID: "cam-1", ExternalRef: "EXT-1", NormName: "CTO 1"}
	ix.Record(ci)
	ix.Record(ci)

	if ix.Size() != 1 {
		t.Fatalf("size = %d, want 1", ix.Size())
	}
	if id, ok := ix.LookupExternalRef("EXT-1"); !ok || id != "cam-1" {
		t.Fatalf("lookup = %s/%v", id, ok)
	}
}

func TestLoadFromRepo(t *testing.T) {
	repo := testutil.NewTempRepo(t)
	err := repo.WithTx(func(tx *state.Tx) error {
		cams := []model.Camera{
			{ID: "cam-1", ExternalRef: "EXT-1", Name: "Cto 1", NormName: "CTO 1", CreatedAtNs: 10},
			{ID: "cam-2", Name: "Cto 2", NormName: "CTO 2", CreatedAtNs: 20},
			{ID: "cam-dup", Name: "CTO 2", NormName: "CTO 2", CreatedAtNs: 30},
		}
		for _, c := range cams {
			c.State = "LIBRE"
			c.Origin = "SURVEY"
			c.ManualFieldsJSON = "[]"
			c.UpdatedAtNs = c.CreatedAtNs
			if err := tx.InsertCamera(c); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed cameras: %v", err)
	}

	ix := NewCameraIndex(64)
	if err := ix.LoadFromRepo(repo); err != nil {
		t.Fatalf("load: %v", err)
	}

	if id, ok := ix.LookupExternalRef("EXT-1"); !ok || id != "cam-1" {
		t.Fatalf("by ref = %s/%v", id, ok)
	}
	// CameraIdentities returns rows in creation order, so the older duplicate
	// holds the name slot.
	if id, ok := ix.LookupNormName("CTO 2"); !ok || id != "cam-2" {
		t.Fatalf("by name = %s/%v, want cam-2", id, ok)
	}
}
