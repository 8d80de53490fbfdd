package survey

import (
	"reflect"
	"testing"
)

func TestCanonicalize_SiteNormalization(t *testing.T) {
	entries := []Entry{
		{Site: "  Cámara   Estación\tNorte "},
		{Site: "empalme SUR"},
	}
	n, err := Canonicalize(entries, Endpoints{})
	if err != nil {
		t.Fatal(err)
	}
	got := n.Sites()
	want := []string{"CAMARA ESTACION NORTE", "EMPALME SUR"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("sites = %v, want %v", got, want)
	}
}

func TestCanonicalize_EmptySubmission(t *testing.T) {
	if _, err := Canonicalize(nil, Endpoints{}); err != ErrEmptySubmission {
		t.Fatalf("err = %v, want ErrEmptySubmission", err)
	}
	// All-blank sites collapse to nothing.
	if _, err := Canonicalize([]Entry{{Site: "   "}}, Endpoints{}); err != ErrEmptySubmission {
		t.Fatalf("err = %v, want ErrEmptySubmission", err)
	}
}

func TestCanonicalize_PreservesOrder(t *testing.T) {
	entries := []Entry{{Site: "C"}, {Site: "A"}, {Site: "B"}}
	n, err := Canonicalize(entries, Endpoints{})
	if err != nil {
		t.Fatal(err)
	}
	if got := n.Sites(); !reflect.DeepEqual(got, []string{"C", "A", "B"}) {
		t.Fatalf("order not preserved: %v", got)
	}
}

func TestCanonicalize_Endpoints(t *testing.T) {
	n, err := Canonicalize(
		[]Entry{{Site: "A"}},
		Endpoints{
			A: &EndpointMarker{Site: "  estación central ", Connector: "odf-3"},
			B: &EndpointMarker{Site: "Nodo Sur", Connector: "ODF-1"},
		},
	)
	if err != nil {
		t.Fatal(err)
	}
	if !n.HasEndpoints() {
		t.Fatal("expected endpoints")
	}
	if n.EndpointA.Site != "ESTACION CENTRAL" || n.EndpointA.Connector != "ODF-3" {
		t.Fatalf("endpoint A = %+v", n.EndpointA)
	}

	// Key is order-insensitive: swapping A and B yields the same key.
	swapped, err := Canonicalize(
		[]Entry{{Site: "A"}},
		Endpoints{
			A: &EndpointMarker{Site: "Nodo Sur", Connector: "ODF-1"},
			B: &EndpointMarker{Site: "Estación Central", Connector: "ODF-3"},
		},
	)
	if err != nil {
		t.Fatal(err)
	}
	if n.EndpointKey() != swapped.EndpointKey() {
		t.Fatalf("endpoint keys differ: %q vs %q", n.EndpointKey(), swapped.EndpointKey())
	}
}

func TestStrandAliases_DistinctFirstSeen(t *testing.T) {
	n, err := Canonicalize([]Entry{
		{Site: "A", StrandAlias: "p2"},
		{Site: "B", StrandAlias: "P1"},
		{Site: "C", StrandAlias: "p2"},
	}, Endpoints{})
	if err != nil {
		t.Fatal(err)
	}
	if got := n.StrandAliases(); !reflect.DeepEqual(got, []string{"P2", "P1"}) {
		t.Fatalf("aliases = %v", got)
	}
}

func TestNormalizeSiteName_AccentFold(t *testing.T) {
	cases := map[string]string{
		"Chapinería":     "CHAPINERIA",
		"CAÑADA  honda ": "CANADA HONDA",
		"côte d'açô":     "COTE D'ACO",
		"plain":          "PLAIN",
	}
	for in, want := range cases {
		if got := NormalizeSiteName(in); got != want {
			t.Errorf("NormalizeSiteName(%q) = %q, want %q", in, got, want)
		}
	}
}
