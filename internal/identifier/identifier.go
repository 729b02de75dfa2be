// Package identifier extracts short-form identifiers (proteins, reactions,
// compounds, scaffolds) from the fully qualified URIs returned by the SPARQL
// endpoints.
package identifier

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedIdentifier is returned when a URI lacks the separator expected
// at its call site or has nothing after it.
var ErrMalformedIdentifier = errors.New("malformed identifier")

// Separators used by the different URI families.
const (
	PathSeparator     byte = '/'
	FragmentSeparator byte = '#'
	ColonSeparator    byte = ':'
)

// ShortID returns the trimmed segment following the last sep in uri.
func ShortID(uri string, sep byte) (string, error) {
	idx := strings.LastIndexByte(uri, sep)
	if idx < 0 {
		return "", fmt.Errorf("%w: %q has no %q separator", ErrMalformedIdentifier, uri, sep)
	}
	short := strings.TrimSpace(uri[idx+1:])
	if short == "" {
		return "", fmt.Errorf("%w: %q ends with %q", ErrMalformedIdentifier, uri, sep)
	}
	return short, nil
}

// ChebiID extracts the numeric ChEBI id from an ontology URI such as
// http://purl.obolibrary.org/obo/CHEBI_17579.
func ChebiID(uri string) (string, error) {
	segment, err := ShortID(uri, PathSeparator)
	if err != nil {
		return "", err
	}
	_, id, ok := strings.Cut(segment, "_")
	id = strings.TrimSpace(id)
	if !ok || id == "" {
		return "", fmt.Errorf("%w: %q has no ChEBI id suffix", ErrMalformedIdentifier, uri)
	}
	return id, nil
}

// ReactionID extracts the reaction id from a Rhea BioPAX URI fragment.
func ReactionID(uri string) (string, error) {
	return ShortID(uri, FragmentSeparator)
}

// ScaffoldID extracts the scaffold name from a position URI fragment.
func ScaffoldID(uri string) (string, error) {
	return ShortID(uri, FragmentSeparator)
}

// ProteinID extracts a UniProt accession from a cross-reference string
// (colon variant) such as urn:miriam:uniprot:Q38933.
func ProteinID(ref string) (string, error) {
	return ShortID(ref, ColonSeparator)
}

// UniprotAccession extracts a UniProt accession from a protein IRI
// (http://purl.uniprot.org/uniprot/Q38933).
func UniprotAccession(uri string) (string, error) {
	return ShortID(uri, PathSeparator)
}

// ProteinIDs converts raw protein references to short protein ids, reaction
// by reaction, preserving order. Malformed references are skipped; one error
// per skipped reference is returned alongside the converted mapping.
func ProteinIDs(refs map[string][]string) (map[string][]string, []error) {
	out := make(map[string][]string, len(refs))
	var errs []error
	for reaction, list := range refs {
		ids := make([]string, 0, len(list))
		for _, ref := range list {
			id, err := ProteinID(ref)
			if err != nil {
				errs = append(errs, fmt.Errorf("reaction %s: %w", reaction, err))
				continue
			}
			ids = append(ids, id)
		}
		out[reaction] = ids
	}
	return out, errs
}

// IsNumeric reports whether s is a non-empty run of ASCII digits.
func IsNumeric(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// NormalizeCompound trims input and strips an optional CHEBI: prefix. The
// boolean reports whether the remainder is a numeric ChEBI id.
func NormalizeCompound(input string) (string, bool) {
	trimmed := strings.TrimSpace(input)
	if len(trimmed) > 6 && strings.EqualFold(trimmed[:6], "CHEBI:") {
		candidate := strings.TrimSpace(trimmed[6:])
		if IsNumeric(candidate) {
			return candidate, true
		}
	}
	return trimmed, IsNumeric(trimmed)
}
