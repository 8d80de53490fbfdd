package survey

import "testing"

func mustCanon(t *testing.T, entries []Entry, eps Endpoints) Normalized {
	t.Helper()
	n, err := Canonicalize(entries, eps)
	if err != nil {
		t.Fatal(err)
	}
	return n
}

func TestFingerprint_Deterministic(t *testing.T) {
	a := mustCanon(t, []Entry{
		{Site: "Cámara Norte", StrandAlias: "p1", Transit: true},
		{Site: "Cámara Sur"},
	}, Endpoints{})
	b := mustCanon(t, []Entry{
		{Site: "  CAMARA   NORTE ", StrandAlias: "P1", Transit: true},
		{Site: "camara sur"},
	}, Endpoints{})

	if a.Fingerprint() != b.Fingerprint() {
		t.Fatal("whitespace/accent-only differences changed the fingerprint")
	}
	if a.Fingerprint().IsZero() {
		t.Fatal("fingerprint is zero")
	}
}

func TestFingerprint_SensitiveToContent(t *testing.T) {
	base := mustCanon(t, []Entry{{Site: "A"}, {Site: "B"}}, Endpoints{})

	superset := mustCanon(t, []Entry{{Site: "A"}, {Site: "B"}, {Site: "C"}}, Endpoints{})
	if base.Fingerprint() == superset.Fingerprint() {
		t.Fatal("superset must not share the fingerprint")
	}

	strand := mustCanon(t, []Entry{{Site: "A", StrandAlias: "P2"}, {Site: "B", StrandAlias: "P2"}}, Endpoints{})
	if base.Fingerprint() == strand.Fingerprint() {
		t.Fatal("strand alias must affect the fingerprint")
	}

	reordered := mustCanon(t, []Entry{{Site: "B"}, {Site: "A"}}, Endpoints{})
	if base.Fingerprint() == reordered.Fingerprint() {
		t.Fatal("entry order must affect the fingerprint")
	}
}

func TestFingerprint_IgnoresAttenuation(t *testing.T) {
	att := 3.5
	a := mustCanon(t, []Entry{{Site: "A", AttenuationDB: &att}, {Site: "B"}}, Endpoints{})
	b := mustCanon(t, []Entry{{Site: "A"}, {Site: "B"}}, Endpoints{})
	if a.Fingerprint() != b.Fingerprint() {
		t.Fatal("attenuation is volatile and must not affect the fingerprint")
	}
}

func TestPathSignature_IgnoresStrandAlias(t *testing.T) {
	plain := mustCanon(t, []Entry{{Site: "A"}, {Site: "B"}, {Site: "C"}}, Endpoints{})
	aliased := mustCanon(t, []Entry{
		{Site: "A", StrandAlias: "P7"},
		{Site: "B", StrandAlias: "P7"},
		{Site: "C", StrandAlias: "P7"},
	}, Endpoints{})

	if plain.PathSignature() != aliased.PathSignature() {
		t.Fatal("strand alias must not affect the path signature")
	}
	if plain.Fingerprint() == aliased.Fingerprint() {
		t.Fatal("fingerprints should still differ")
	}
}

func TestPathSignature_CollapsesConsecutiveDuplicates(t *testing.T) {
	single := mustCanon(t, []Entry{{Site: "A"}, {Site: "B"}}, Endpoints{})
	doubled := mustCanon(t, []Entry{
		{Site: "A", StrandAlias: "P1"},
		{Site: "A", StrandAlias: "P2"},
		{Site: "B", StrandAlias: "P1"},
		{Site: "B", StrandAlias: "P2"},
	}, Endpoints{})
	if single.PathSignature() != doubled.PathSignature() {
		t.Fatal("per-strand repeats of the same camera must collapse in the signature")
	}
}

func TestPathSignature_DifferentPathsDiffer(t *testing.T) {
	a := mustCanon(t, []Entry{{Site: "A"}, {Site: "B"}}, Endpoints{})
	b := mustCanon(t, []Entry{{Site: "A"}, {Site: "C"}}, Endpoints{})
	if a.PathSignature() == b.PathSignature() {
		t.Fatal("different site sequences must not share a signature")
	}
}

func TestParseFingerprintHex_RoundTrip(t *testing.T) {
	f := mustCanon(t, []Entry{{Site: "A"}}, Endpoints{}).Fingerprint()
	parsed, err := ParseFingerprintHex(f.Hex())
	if err != nil {
		t.Fatal(err)
	}
	if parsed != f {
		t.Fatal("hex round trip mismatch")
	}

	if _, err := ParseFingerprintHex("zz"); err == nil {
		t.Fatal("expected error for invalid hex")
	}
	if _, err := ParseFingerprintHex("abcd"); err == nil {
		t.Fatal("expected error for short hex")
	}
}
