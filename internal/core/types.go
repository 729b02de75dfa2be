package core

// ReactionProteins maps a Rhea reaction id to protein references in row
// order. The resolver fills it with raw cross-reference strings; after
// normalization the values are short UniProt accessions.
type ReactionProteins map[string][]string

// GeneRecord is one ITAG gene annotation linked to a protein.
type GeneRecord struct {
	Name        string `json:"name"`
	Scaffold    string `json:"scaffold"`
	Start       string `json:"start"`
	Stop        string `json:"stop"`
	Description string `json:"description"`
}

// Molecule is a ChEBI search hit. Names and Synonyms accumulate across the
// result rows sharing the same id, without duplicates.
type Molecule struct {
	Names    []string `json:"name"`
	Synonyms []string `json:"syn"`
}

// SearchResult maps ChEBI ids to their molecule entry.
type SearchResult map[string]*Molecule

// IDs returns the ids in the result in ascending order.
func (r SearchResult) IDs() []string {
	return sortedKeys(r)
}

// Fanout holds the three per-protein lookups. Every requested protein is a
// key of each map.
type Fanout struct {
	Pathways  map[string][]string     `json:"pathways"`
	Genes     map[string][]GeneRecord `json:"genes"`
	Organisms map[string][]string     `json:"organisms"`
}

// ReportStatus is the terminal state of a report build.
type ReportStatus string

const (
	StatusOK         ReportStatus = "ok"
	StatusNoProteins ReportStatus = "no_proteins"
)

// Report is the aggregated view of a compound handed to presentation and
// export collaborators.
type Report struct {
	ChebiID   string                  `json:"chebi_id"`
	Status    ReportStatus            `json:"status"`
	Proteins  ReactionProteins        `json:"proteins"`
	Pathways  map[string][]string     `json:"pathways"`
	Genes     map[string][]GeneRecord `json:"genes"`
	Organisms map[string][]string     `json:"organisms"`
	Reactions []ReactionEntry         `json:"reactions"`
	Warnings  []string                `json:"warnings,omitempty"`
}

// ReactionEntry is the nested per-reaction view of a report.
type ReactionEntry struct {
	ID       string         `json:"id"`
	Proteins []ProteinEntry `json:"proteins"`
}

// ProteinEntry joins the fan-out lookups for a single protein.
type ProteinEntry struct {
	ID        string       `json:"id"`
	Pathways  []string     `json:"pathways"`
	Genes     []GeneRecord `json:"genes"`
	Organisms []string     `json:"organisms"`
}

// Empty reports whether the compound resolved to no proteins.
func (r *Report) Empty() bool {
	return r == nil || r.Status == StatusNoProteins
}

// ProteinCount returns the number of distinct proteins in the report.
func (r *Report) ProteinCount() int {
	if r == nil {
		return 0
	}
	return len(r.Genes)
}

func newEmptyReport(chebiID string) *Report {
	return &Report{
		ChebiID:   chebiID,
		Status:    StatusNoProteins,
		Proteins:  ReactionProteins{},
		Pathways:  map[string][]string{},
		Genes:     map[string][]GeneRecord{},
		Organisms: map[string][]string{},
		Reactions: []ReactionEntry{},
	}
}
