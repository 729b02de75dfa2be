package core

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"chebi2gene/internal/identifier"
	"chebi2gene/internal/sparql"
)

// Resolver finds the reactions a compound takes part in and the raw UniProt
// references attached to them.
type Resolver struct {
	exec     executor
	endpoint string
	graph    string
}

// NewResolver constructs a Resolver.
func NewResolver(q Querier, opts Options) *Resolver {
	opts = opts.withDefaults()
	return &Resolver{
		exec:     executor{q: q, strict: opts.Strict, log: opts.Logger},
		endpoint: opts.Endpoint,
		graph:    opts.Graphs.Rhea,
	}
}

// Reactions returns reaction id to raw protein references, in row order.
// A compound without matches yields an empty map and a nil error.
func (r *Resolver) Reactions(ctx context.Context, chebiID string) (ReactionProteins, error) {
	graph, err := sparql.IRI(r.graph)
	if err != nil {
		return nil, fmt.Errorf("rhea graph: %w", err)
	}
	compound, err := sparql.IRI(rheaCompoundPrefix + chebiID)
	if err != nil {
		return nil, fmt.Errorf("compound %q: %w", chebiID, err)
	}
	query, err := reactionsQuery.Render(sparql.Args{
		"graph":    graph,
		"compound": compound,
		"marker":   sparql.Literal(uniprotMarker),
	})
	if err != nil {
		return nil, err
	}
	res, err := r.exec.run(ctx, r.endpoint, query, "reactions")
	if err != nil {
		return nil, fmt.Errorf("resolve reactions for %s: %w", chebiID, err)
	}

	out := ReactionProteins{}
	for _, row := range res.Rows {
		reaction, err := identifier.ReactionID(row.Value("react"))
		if err != nil {
			r.exec.log.Warn("skipping reaction row", zap.String("chebi_id", chebiID), zap.Error(err))
			continue
		}
		xref := row.Value("xref")
		if xref == "" {
			continue
		}
		out[reaction] = append(out[reaction], xref)
	}
	return out, nil
}
