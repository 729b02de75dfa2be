package core

import "chebi2gene/internal/sparql"

const (
	rheaCompoundPrefix = "http://www.ebi.ac.uk/rhea#CHEBI:"
	uniprotPrefix      = "http://purl.uniprot.org/uniprot/"
	uniprotMarker      = "UNIPROT"
)

// Reactions of a compound and their UniProt cross references. The UNIPROT
// filter is a case-sensitive substring match on the reference.
var reactionsQuery = sparql.NewTemplate(`
PREFIX bp: <http://www.biopax.org/release/biopax-level2.owl#>
SELECT DISTINCT ?react ?xref
FROM %{graph}
WHERE {
  ?cmp bp:XREF %{compound} .
  ?dir ?p ?cmp .
  ?react ?p2 ?dir .
  ?react bp:XREF ?xref .
  FILTER (CONTAINS(STR(?xref), %{marker}))
}
`)

var exactSearchQuery = sparql.NewTemplate(`
PREFIX rdfs: <http://www.w3.org/2000/01/rdf-schema#>
PREFIX obo: <http://purl.obolibrary.org/obo#>
SELECT DISTINCT ?id ?name ?syn
FROM %{graph}
WHERE {
  ?id rdfs:label ?name .
  ?id obo:Synonym ?syn .
  FILTER (regex(?name, %{term}, "i"))
} ORDER BY ?id
`)

var extendedSearchQuery = sparql.NewTemplate(`
PREFIX rdfs: <http://www.w3.org/2000/01/rdf-schema#>
PREFIX obo: <http://purl.obolibrary.org/obo#>
SELECT DISTINCT ?id ?name ?syn
FROM %{graph}
WHERE {
  ?id rdfs:label ?name .
  ?id obo:Synonym ?syn .
  FILTER (regex(?name, %{term}, "i") || regex(?syn, %{term}, "i"))
} ORDER BY ?id
`)

var pathwaysQuery = sparql.NewTemplate(`
PREFIX uniprot: <http://purl.uniprot.org/core/>
PREFIX rdfs: <http://www.w3.org/2000/01/rdf-schema#>
SELECT DISTINCT ?prot ?desc
FROM %{graph}
WHERE {
  ?prot uniprot:annotation ?annot .
  ?annot rdfs:seeAlso ?url .
  ?annot rdfs:comment ?desc .
  FILTER (?prot IN (
%{proteins}
  ))
}
`)

var genesQuery = sparql.NewTemplate(`
PREFIX gene: <http://pbr.wur.nl/GENE#>
PREFIX pos: <http://pbr.wur.nl/POSITION#>
SELECT DISTINCT ?prot ?name ?sca ?start ?stop ?desc
FROM %{graph}
WHERE {
  ?gene gene:Protein ?prot .
  FILTER (?prot IN (
%{proteins}
  ))
  ?gene gene:Position ?pos .
  ?pos pos:Scaffold ?sca .
  ?gene gene:Description ?desc .
  ?gene gene:FeatureName ?name .
  ?pos pos:Start ?start .
  ?pos pos:Stop ?stop .
} ORDER BY ?name
`)

var organismsQuery = sparql.NewTemplate(`
PREFIX uniprot: <http://purl.uniprot.org/core/>
SELECT DISTINCT ?prot ?name
FROM %{graph}
WHERE {
  ?prot uniprot:organism ?org .
  ?org uniprot:scientificName ?name .
  FILTER (?prot IN (
%{proteins}
  ))
}
`)

// proteinIRIs expands accessions to UniProt IRIs.
func proteinIRIs(ids []string) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = uniprotPrefix + id
	}
	return out
}
