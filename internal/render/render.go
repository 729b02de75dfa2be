// Package render turns reports and search results into HTML pages and CSV
// documents. The web adapter and the export worker share it so a downloaded
// artifact matches what the browser shows.
package render

import (
	"embed"
	"encoding/csv"
	"fmt"
	"html/template"
	"io"
	"net/url"
	"strings"

	"chebi2gene/internal/config"
	"chebi2gene/internal/core"
)

//go:embed templates/*.html
var templateFS embed.FS

// Page names accepted by Renderer.
const (
	PageIndex     = "index.html"
	PageSearch    = "search.html"
	PageReport    = "report.html"
	PageNoResults = "noresults.html"
)

// Renderer executes the embedded page templates.
type Renderer struct {
	tmpl  *template.Template
	links config.LinkConfig
}

// New parses the embedded templates. Links fill the outbound ChEBI, Rhea
// and UniProt URLs.
func New(links config.LinkConfig) (*Renderer, error) {
	tmpl, err := template.New("pages").Funcs(template.FuncMap{
		"join":    strings.Join,
		"segment": url.PathEscape,
	}).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return &Renderer{tmpl: tmpl, links: links}, nil
}

// IndexView is the data of the landing page.
type IndexView struct {
	Title string
	Query string
	Error string
}

// SearchView lists search hits in ascending id order.
type SearchView struct {
	Title    string
	Query    string
	Extended bool
	Hits     []SearchHit
}

type SearchHit struct {
	ID       string
	Names    []string
	Synonyms []string
}

// ReportView is the presentation model of a report with links resolved.
type ReportView struct {
	Title        string
	ChebiID      string
	ChebiURL     string
	ProteinCount int
	Reactions    []ReactionView
	Warnings     []string
}

type ReactionView struct {
	ID       string
	URL      string
	Proteins []ProteinView
}

type ProteinView struct {
	ID        string
	URL       string
	Pathways  []string
	Genes     []core.GeneRecord
	Organisms []string
}

// Index writes the landing page. errMsg is shown under the form when set.
func (r *Renderer) Index(w io.Writer, query, errMsg string) error {
	return r.execute(w, PageIndex, IndexView{Title: "Compound lookup", Query: query, Error: errMsg})
}

// Search writes the search result page.
func (r *Renderer) Search(w io.Writer, query string, extended bool, result core.SearchResult) error {
	return r.execute(w, PageSearch, NewSearchView(query, extended, result))
}

// Report writes the report page, or the no-results page for a compound
// without proteins.
func (r *Renderer) Report(w io.Writer, report *core.Report) error {
	page := PageReport
	if report.Empty() {
		page = PageNoResults
	}
	return r.execute(w, page, r.NewReportView(report))
}

func (r *Renderer) execute(w io.Writer, page string, data any) error {
	if err := r.tmpl.ExecuteTemplate(w, page, data); err != nil {
		return fmt.Errorf("render %s: %w", page, err)
	}
	return nil
}

// NewSearchView orders the hits of result by id.
func NewSearchView(query string, extended bool, result core.SearchResult) SearchView {
	view := SearchView{Title: "Search: " + query, Query: query, Extended: extended}
	for _, id := range result.IDs() {
		m := result[id]
		view.Hits = append(view.Hits, SearchHit{ID: id, Names: m.Names, Synonyms: m.Synonyms})
	}
	return view
}

// NewReportView resolves outbound links for every reaction and protein.
func (r *Renderer) NewReportView(report *core.Report) ReportView {
	view := ReportView{
		Title:        "CHEBI:" + report.ChebiID,
		ChebiID:      report.ChebiID,
		ChebiURL:     core.Link(r.links.Chebi, report.ChebiID),
		ProteinCount: report.ProteinCount(),
		Warnings:     report.Warnings,
	}
	for _, reaction := range report.Reactions {
		rv := ReactionView{ID: reaction.ID, URL: core.Link(r.links.Reaction, reaction.ID)}
		for _, p := range reaction.Proteins {
			rv.Proteins = append(rv.Proteins, ProteinView{
				ID:        p.ID,
				URL:       core.Link(r.links.Protein, p.ID),
				Pathways:  p.Pathways,
				Genes:     p.Genes,
				Organisms: p.Organisms,
			})
		}
		view.Reactions = append(view.Reactions, rv)
	}
	return view
}

// CSV writes records and flushes. It returns the first write error.
func CSV(w io.Writer, records [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.WriteAll(records); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}
