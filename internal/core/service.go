package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"chebi2gene/internal/identifier"
	"chebi2gene/internal/sparql"
)

// ErrEmptyInput is returned when a lookup or report is requested without an
// identifier or search term.
var ErrEmptyInput = errors.New("empty compound identifier")

// ErrInvalidCompound is returned when a report is requested for an id that is
// not a numeric ChEBI id.
var ErrInvalidCompound = errors.New("invalid ChEBI id")

// MetricsRecorder observes the outcome of pipeline operations.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// Service sequences the resolver, normalizer and aggregator into reports and
// exposes the search entry points used by the web layer.
type Service struct {
	resolver *Resolver
	searcher *Searcher
	agg      *Aggregator
	log      *zap.Logger
	metrics  MetricsRecorder
}

// ServiceOption customises a Service.
type ServiceOption func(*Service)

// WithMetrics installs a metrics recorder.
func WithMetrics(m MetricsRecorder) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

// NewService wires the pipeline components around a single Querier.
func NewService(q Querier, opts Options, extra ...ServiceOption) *Service {
	opts = opts.withDefaults()
	s := &Service{
		resolver: NewResolver(q, opts),
		searcher: NewSearcher(q, opts),
		agg:      NewAggregator(q, opts),
		log:      opts.Logger,
	}
	for _, opt := range extra {
		opt(s)
	}
	return s
}

func (s *Service) observe(ctx context.Context, operation string, started time.Time, err error) {
	if s.metrics != nil {
		s.metrics.Observe(ctx, operation, err == nil, time.Since(started))
	}
}

// Report builds the full compound report. A compound without reactions, or
// whose references all fail to normalize, yields a StatusNoProteins report
// with empty maps rather than an error.
func (s *Service) Report(ctx context.Context, chebiID string) (report *Report, err error) {
	started := time.Now()
	defer func() { s.observe(ctx, "report", started, err) }()

	id, numeric := identifier.NormalizeCompound(chebiID)
	if id == "" {
		return nil, ErrEmptyInput
	}
	if !numeric {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCompound, id)
	}

	raw, err := s.resolver.Reactions(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		s.log.Info("no reactions for compound", zap.String("chebi_id", id))
		return newEmptyReport(id), nil
	}

	proteins, skipped := identifier.ProteinIDs(raw)
	var warnings []string
	for _, e := range skipped {
		s.log.Warn("skipping protein reference", zap.String("chebi_id", id), zap.Error(e))
		warnings = append(warnings, e.Error())
	}
	for _, reaction := range sortedKeys(proteins) {
		ids, rejected := embeddable(reaction, dedupe(proteins[reaction]))
		for _, e := range rejected {
			s.log.Warn("skipping protein id", zap.String("chebi_id", id), zap.Error(e))
			warnings = append(warnings, e.Error())
		}
		proteins[reaction] = ids
	}
	if len(UniqueProteins(proteins)) == 0 {
		empty := newEmptyReport(id)
		empty.Warnings = warnings
		return empty, nil
	}

	fan, err := s.agg.All(ctx, proteins)
	if err != nil {
		return nil, fmt.Errorf("report %s: %w", id, err)
	}

	report = &Report{
		ChebiID:   id,
		Status:    StatusOK,
		Proteins:  proteins,
		Pathways:  fan.Pathways,
		Genes:     fan.Genes,
		Organisms: fan.Organisms,
		Warnings:  warnings,
	}
	report.Reactions = assemble(report)
	s.log.Debug("report built",
		zap.String("chebi_id", id),
		zap.Int("reactions", len(report.Reactions)),
		zap.Int("proteins", report.ProteinCount()))
	return report, nil
}

func assemble(r *Report) []ReactionEntry {
	entries := make([]ReactionEntry, 0, len(r.Proteins))
	for _, reaction := range sortedKeys(r.Proteins) {
		entry := ReactionEntry{ID: reaction, Proteins: make([]ProteinEntry, 0, len(r.Proteins[reaction]))}
		for _, protein := range r.Proteins[reaction] {
			entry.Proteins = append(entry.Proteins, ProteinEntry{
				ID:        protein,
				Pathways:  r.Pathways[protein],
				Genes:     r.Genes[protein],
				Organisms: r.Organisms[protein],
			})
		}
		entries = append(entries, entry)
	}
	return entries
}

// embeddable splits ids into those that form a valid UniProt IRI and one
// error per id that does not.
func embeddable(reaction string, ids []string) ([]string, []error) {
	out := make([]string, 0, len(ids))
	var errs []error
	for _, id := range ids {
		if _, err := sparql.IRI(uniprotPrefix + id); err != nil {
			errs = append(errs, fmt.Errorf("reaction %s: protein %q: %w", reaction, id, err))
			continue
		}
		out = append(out, id)
	}
	return out, errs
}

func dedupe(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = appendUnique(out, id)
	}
	return out
}

// Search runs the exact or extended ChEBI search.
func (s *Service) Search(ctx context.Context, name string, extended bool) (result SearchResult, err error) {
	operation := "search_exact"
	if extended {
		operation = "search_extended"
	}
	started := time.Now()
	defer func() { s.observe(ctx, operation, started, err) }()
	if extended {
		return s.searcher.Extended(ctx, name)
	}
	return s.searcher.Exact(ctx, name)
}

// LookupKind tells presentation which view a Lookup carries.
type LookupKind string

const (
	LookupReport LookupKind = "report"
	LookupSearch LookupKind = "search"
)

// Lookup is the outcome of dispatching raw user input.
type Lookup struct {
	Kind    LookupKind   `json:"kind"`
	Query   string       `json:"query"`
	ChebiID string       `json:"chebi_id,omitempty"`
	Report  *Report      `json:"report,omitempty"`
	Matches SearchResult `json:"matches,omitempty"`
}

// Lookup accepts either a numeric ChEBI id (optionally CHEBI: prefixed),
// which is reported directly, or free text, which is searched by exact
// label. A search with a single hit is promoted to that compound's report.
func (s *Service) Lookup(ctx context.Context, input string) (*Lookup, error) {
	term, numeric := identifier.NormalizeCompound(input)
	if term == "" {
		return nil, ErrEmptyInput
	}
	if numeric {
		report, err := s.Report(ctx, term)
		if err != nil {
			return nil, err
		}
		return &Lookup{Kind: LookupReport, Query: term, ChebiID: term, Report: report}, nil
	}
	matches, err := s.Search(ctx, term, false)
	if err != nil {
		return nil, err
	}
	if len(matches) == 1 {
		id := matches.IDs()[0]
		report, err := s.Report(ctx, id)
		if err != nil {
			return nil, err
		}
		return &Lookup{Kind: LookupReport, Query: term, ChebiID: id, Report: report, Matches: matches}, nil
	}
	return &Lookup{Kind: LookupSearch, Query: term, Matches: matches}, nil
}
