// Package survey provides the parsed survey entry types and the pure
// canonicalization step that turns a submission into a deterministic,
// hashable representation.
package survey

import (
	"errors"
	"strings"
)

// ErrEmptySubmission is returned when a submission contains no entries.
var ErrEmptySubmission = errors.New("survey: submission has no entries")

// Entry is one parsed route entry as delivered by the upstream parser.
// Raw text fields arrive untrimmed and in whatever casing the survey file used.
type Entry struct {
	Site          string   // splice-site descriptor (camera name)
	ExternalRef   string   // external camera reference id, empty if unknown
	StrandAlias   string   // pelo identifier, empty if single-strand
	Transit       bool     // pass-through splice vs. terminating splice
	AttenuationDB *float64 // measured attenuation toward the next site, if any
}

// EndpointMarker identifies one end of a route.
type EndpointMarker struct {
	Site      string
	Connector string
}

// Endpoints carries the optional endpoint markers of a submission.
type Endpoints struct {
	A *EndpointMarker
	B *EndpointMarker
}

// NormalizedEntry is an Entry after canonicalization. Site holds the folded
// uppercase form; order is preserved from the submission.
type NormalizedEntry struct {
	Site          string
	ExternalRef   string
	StrandAlias   string
	Transit       bool
	AttenuationDB *float64
}

// Normalized is the canonical form of a submission: the input to both hashes.
type Normalized struct {
	Entries   []NormalizedEntry
	EndpointA EndpointMarker // zero value if absent
	EndpointB EndpointMarker
}

// Canonicalize normalizes a parsed entry sequence. Site names and endpoint
// markers are whitespace-collapsed, accent-folded and uppercased; strand
// aliases are trimmed and uppercased but not accent-folded (they are labels,
// not site names); entry order is preserved. Pure: no side effects.
func Canonicalize(entries []Entry, eps Endpoints) (Normalized, error) {
	if len(entries) == 0 {
		return Normalized{}, ErrEmptySubmission
	}

	n := Normalized{Entries: make([]NormalizedEntry, 0, len(entries))}
	for _, e := range entries {
		site := NormalizeSiteName(e.Site)
		if site == "" {
			continue // blank line artifacts from the parser
		}
		n.Entries = append(n.Entries, NormalizedEntry{
			Site:          site,
			ExternalRef:   strings.TrimSpace(e.ExternalRef),
			StrandAlias:   strings.ToUpper(strings.TrimSpace(e.StrandAlias)),
			Transit:       e.Transit,
			AttenuationDB: e.AttenuationDB,
		})
	}
	if len(n.Entries) == 0 {
		return Normalized{}, ErrEmptySubmission
	}

	if eps.A != nil {
		n.EndpointA = EndpointMarker{
			Site:      NormalizeSiteName(eps.A.Site),
			Connector: strings.ToUpper(strings.TrimSpace(eps.A.Connector)),
		}
	}
	if eps.B != nil {
		n.EndpointB = EndpointMarker{
			Site:      NormalizeSiteName(eps.B.Site),
			Connector: strings.ToUpper(strings.TrimSpace(eps.B.Connector)),
		}
	}
	return n, nil
}

// HasEndpoints reports whether the submission carried at least one endpoint marker.
func (n Normalized) HasEndpoints() bool {
	return n.EndpointA != (EndpointMarker{}) || n.EndpointB != (EndpointMarker{})
}

// EndpointKey returns a canonical comparison key for the endpoint pair.
// The pair is unordered: a route surveyed B→A gets the same key as A→B.
func (n Normalized) EndpointKey() string {
	a := n.EndpointA.Site + "#" + n.EndpointA.Connector
	b := n.EndpointB.Site + "#" + n.EndpointB.Connector
	if b < a {
		a, b = b, a
	}
	return a + "|" + b
}

// Sites returns the ordered splice-site sequence.
func (n Normalized) Sites() []string {
	sites := make([]string, len(n.Entries))
	for i, e := range n.Entries {
		sites[i] = e.Site
	}
	return sites
}

// StrandAliases returns the distinct strand aliases present, in first-seen order.
func (n Normalized) StrandAliases() []string {
	seen := make(map[string]struct{}, 2)
	var out []string
	for _, e := range n.Entries {
		if _, ok := seen[e.StrandAlias]; ok {
			continue
		}
		seen[e.StrandAlias] = struct{}{}
		out = append(out, e.StrandAlias)
	}
	return out
}

// NormalizeSiteName folds a raw site descriptor to canonical form:
// trimmed, inner whitespace collapsed to single spaces, Latin-1 accents
// folded, uppercased. Free-text descriptions must not pass through here.
func NormalizeSiteName(raw string) string {
	collapsed := strings.Join(strings.Fields(raw), " ")
	return strings.ToUpper(foldAccents(collapsed))
}

// foldAccents maps accented Latin-1 letters to their ASCII base. The survey
// corpus is Spanish; anything outside the table passes through unchanged.
func foldAccents(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case 'á', 'à', 'â', 'ä', 'ã':
			return 'a'
		case 'Á', 'À', 'Â', 'Ä', 'Ã':
			return 'A'
		case 'é', 'è', 'ê', 'ë':
			return 'e'
		case 'É', 'È', 'Ê', 'Ë':
			return 'E'
		case 'í', 'ì', 'î', 'ï':
			return 'i'
		case 'Í', 'Ì', 'Î', 'Ï':
			return 'I'
		case 'ó', 'ò', 'ô', 'ö', 'õ':
			return 'o'
		case 'Ó', 'Ò', 'Ô', 'Ö', 'Õ':
			return 'O'
		case 'ú', 'ù', 'û', 'ü':
			return 'u'
		case 'Ú', 'Ù', 'Û', 'Ü':
			return 'U'
		case 'ñ':
			return 'n'
		case 'Ñ':
			return 'N'
		case 'ç':
			return 'c'
		case 'Ç':
			return 'C'
		default:
			return r
		}
	}, s)
}
