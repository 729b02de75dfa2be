package core

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"chebi2gene/internal/identifier"
	"chebi2gene/internal/sparql"
)

// Aggregator runs the per-protein lookups (pathways, genes, organisms).
// Protein ids are de-duplicated across all reactions before querying and
// sent in batches of at most BatchSize ids.
type Aggregator struct {
	exec      executor
	endpoint  string
	graphs    graphsIRI
	batchSize int
}

type graphsIRI struct {
	uniprot string
	itag    string
}

// NewAggregator constructs an Aggregator.
func NewAggregator(q Querier, opts Options) *Aggregator {
	opts = opts.withDefaults()
	return &Aggregator{
		exec:      executor{q: q, strict: opts.Strict, log: opts.Logger},
		endpoint:  opts.Endpoint,
		graphs:    graphsIRI{uniprot: opts.Graphs.UniProt, itag: opts.Graphs.ITAG},
		batchSize: opts.BatchSize,
	}
}

// UniqueProteins returns the distinct protein ids across reactions. Reactions
// are visited in id order and proteins in row order.
func UniqueProteins(proteins ReactionProteins) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, reaction := range sortedKeys(proteins) {
		for _, id := range proteins[reaction] {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}

func batches(ids []string, size int) [][]string {
	var out [][]string
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		out = append(out, ids[start:end])
	}
	return out
}

// forEachRow issues one query per batch and hands fn every row whose protein
// was requested by that batch.
func (a *Aggregator) forEachRow(ctx context.Context, tpl *sparql.Template, graphURI, operation string, ids []string, fn func(protein string, row sparql.Binding)) error {
	if len(ids) == 0 {
		return nil
	}
	graph, err := sparql.IRI(graphURI)
	if err != nil {
		return fmt.Errorf("%s graph: %w", operation, err)
	}
	for _, batch := range batches(ids, a.batchSize) {
		wanted := make(map[string]struct{}, len(batch))
		for _, id := range batch {
			wanted[id] = struct{}{}
		}
		list, err := sparql.IRIList(proteinIRIs(batch))
		if err != nil {
			return fmt.Errorf("%s: %w", operation, err)
		}
		query, err := tpl.Render(sparql.Args{"graph": graph, "proteins": list})
		if err != nil {
			return err
		}
		res, err := a.exec.run(ctx, a.endpoint, query, operation)
		if err != nil {
			return fmt.Errorf("%s: %w", operation, err)
		}
		for _, row := range res.Rows {
			protein, err := identifier.UniprotAccession(row.Value("prot"))
			if err != nil {
				a.exec.log.Warn("skipping row", zap.String("operation", operation), zap.Error(err))
				continue
			}
			if _, ok := wanted[protein]; !ok {
				continue
			}
			fn(protein, row)
		}
	}
	return nil
}

// Pathways returns the de-duplicated pathway descriptions of every protein.
func (a *Aggregator) Pathways(ctx context.Context, proteins ReactionProteins) (map[string][]string, error) {
	ids := UniqueProteins(proteins)
	out := make(map[string][]string, len(ids))
	err := a.forEachRow(ctx, pathwaysQuery, a.graphs.uniprot, "pathways", ids, func(protein string, row sparql.Binding) {
		if desc := row.Value("desc"); desc != "" {
			out[protein] = appendUnique(out[protein], desc)
		}
	})
	if err != nil {
		return nil, err
	}
	fillStrings(out, ids)
	return out, nil
}

// Genes returns the ITAG gene records of every protein, scaffold names
// stripped of their URI prefix.
func (a *Aggregator) Genes(ctx context.Context, proteins ReactionProteins) (map[string][]GeneRecord, error) {
	ids := UniqueProteins(proteins)
	out := make(map[string][]GeneRecord, len(ids))
	err := a.forEachRow(ctx, genesQuery, a.graphs.itag, "genes", ids, func(protein string, row sparql.Binding) {
		gene := GeneRecord{
			Name:        row.Value("name"),
			Scaffold:    row.Value("sca"),
			Start:       row.Value("start"),
			Stop:        row.Value("stop"),
			Description: row.Value("desc"),
		}
		if scaffold, err := identifier.ScaffoldID(gene.Scaffold); err == nil {
			gene.Scaffold = scaffold
		} else {
			a.exec.log.Debug("scaffold kept verbatim", zap.String("protein", protein), zap.Error(err))
		}
		out[protein] = append(out[protein], gene)
	})
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		if out[id] == nil {
			out[id] = []GeneRecord{}
		}
	}
	return out, nil
}

// Organisms returns the de-duplicated organism names of every protein.
func (a *Aggregator) Organisms(ctx context.Context, proteins ReactionProteins) (map[string][]string, error) {
	ids := UniqueProteins(proteins)
	out := make(map[string][]string, len(ids))
	err := a.forEachRow(ctx, organismsQuery, a.graphs.uniprot, "organisms", ids, func(protein string, row sparql.Binding) {
		if name := row.Value("name"); name != "" {
			out[protein] = appendUnique(out[protein], name)
		}
	})
	if err != nil {
		return nil, err
	}
	fillStrings(out, ids)
	return out, nil
}

// All runs the three lookups concurrently. Each goroutine owns its result
// map; nothing is shared until Wait returns.
func (a *Aggregator) All(ctx context.Context, proteins ReactionProteins) (Fanout, error) {
	var out Fanout
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		out.Pathways, err = a.Pathways(gctx, proteins)
		return err
	})
	g.Go(func() error {
		var err error
		out.Genes, err = a.Genes(gctx, proteins)
		return err
	})
	g.Go(func() error {
		var err error
		out.Organisms, err = a.Organisms(gctx, proteins)
		return err
	})
	if err := g.Wait(); err != nil {
		return Fanout{}, err
	}
	return out, nil
}

func fillStrings(m map[string][]string, ids []string) {
	for _, id := range ids {
		if m[id] == nil {
			m[id] = []string{}
		}
	}
}
