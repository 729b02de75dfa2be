package core

import (
	"strings"

	"chebi2gene/internal/config"
)

// Row types emitted by ReportRows.
const (
	RowPathway = "Pathway"
	RowGene    = "Gene"
)

// OrganismSeparator joins a protein's organisms in a single cell.
const OrganismSeparator = " - "

// ReportHeader is the first record of every CSV export.
var ReportHeader = []string{
	"Chebi ID", "Chebi URL", "Rhea ID", "Rhea URL", "UniProt ID", "Organisms",
	"Type", "Name", "Scaffold", "Start", "Stop", "Description",
}

// Link renders a configured link pattern for id.
func Link(pattern, id string) string {
	return strings.ReplaceAll(pattern, "%s", id)
}

// ReportRows flattens a report into CSV records, header first: one Pathway
// record per (reaction, protein, pathway) and one Gene record per
// (reaction, protein, gene). Pathway descriptions land in the Description
// column. An empty report yields the header only.
func ReportRows(r *Report, links config.LinkConfig) [][]string {
	rows := [][]string{append([]string(nil), ReportHeader...)}
	if r.Empty() {
		return rows
	}
	chebiURL := Link(links.Chebi, r.ChebiID)
	for _, reaction := range r.Reactions {
		reactionURL := Link(links.Reaction, reaction.ID)
		for _, protein := range reaction.Proteins {
			organisms := strings.Join(protein.Organisms, OrganismSeparator)
			prefix := []string{r.ChebiID, chebiURL, reaction.ID, reactionURL, protein.ID, organisms}
			for _, pathway := range protein.Pathways {
				rows = append(rows, withPrefix(prefix, RowPathway, "", "", "", "", pathway))
			}
			for _, gene := range protein.Genes {
				rows = append(rows, withPrefix(prefix, RowGene, gene.Name, gene.Scaffold, gene.Start, gene.Stop, gene.Description))
			}
		}
	}
	return rows
}

func withPrefix(prefix []string, fields ...string) []string {
	row := make([]string, 0, len(prefix)+len(fields))
	row = append(row, prefix...)
	return append(row, fields...)
}
