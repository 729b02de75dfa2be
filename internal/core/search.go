package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"chebi2gene/internal/identifier"
	"chebi2gene/internal/sparql"
)

// ErrEmptySearch is returned for blank search terms.
var ErrEmptySearch = errors.New("empty search term")

// Searcher looks up ChEBI entries by label, optionally including synonyms.
type Searcher struct {
	exec     executor
	endpoint string
	graph    string
}

// NewSearcher constructs a Searcher against the search endpoint.
func NewSearcher(q Querier, opts Options) *Searcher {
	opts = opts.withDefaults()
	return &Searcher{
		exec:     executor{q: q, strict: opts.Strict, log: opts.Logger},
		endpoint: opts.SearchEndpoint,
		graph:    opts.Graphs.ChEBI,
	}
}

// Exact matches the term case-insensitively against entry labels.
func (s *Searcher) Exact(ctx context.Context, name string) (SearchResult, error) {
	return s.search(ctx, exactSearchQuery, name, "search_exact")
}

// Extended matches the term against labels or synonyms.
func (s *Searcher) Extended(ctx context.Context, name string) (SearchResult, error) {
	return s.search(ctx, extendedSearchQuery, name, "search_extended")
}

func (s *Searcher) search(ctx context.Context, tpl *sparql.Template, name, operation string) (SearchResult, error) {
	term := strings.TrimSpace(name)
	if term == "" {
		return nil, ErrEmptySearch
	}
	graph, err := sparql.IRI(s.graph)
	if err != nil {
		return nil, fmt.Errorf("chebi graph: %w", err)
	}
	query, err := tpl.Render(sparql.Args{"graph": graph, "term": sparql.RegexLiteral(term)})
	if err != nil {
		return nil, err
	}
	res, err := s.exec.run(ctx, s.endpoint, query, operation)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", term, err)
	}
	return s.merge(res), nil
}

// merge folds rows into one entry per ChEBI id; re-seen ids extend the
// existing entry.
func (s *Searcher) merge(res *sparql.Result) SearchResult {
	out := SearchResult{}
	for _, row := range res.Rows {
		id, err := identifier.ChebiID(row.Value("id"))
		if err != nil {
			s.exec.log.Warn("skipping search row", zap.Error(err))
			continue
		}
		mol, ok := out[id]
		if !ok {
			mol = &Molecule{Names: []string{}, Synonyms: []string{}}
			out[id] = mol
		}
		if name := row.Value("name"); name != "" {
			mol.Names = appendUnique(mol.Names, name)
		}
		if syn := row.Value("syn"); syn != "" {
			mol.Synonyms = appendUnique(mol.Synonyms, syn)
		}
	}
	return out
}
