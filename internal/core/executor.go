package core

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"chebi2gene/internal/config"
	"chebi2gene/internal/sparql"
)

// Querier executes a SPARQL query against an endpoint. *sparql.Client
// satisfies it.
type Querier interface {
	Execute(ctx context.Context, endpoint, query string) (*sparql.Result, error)
}

// Options configures the pipeline components.
type Options struct {
	Endpoint       string
	SearchEndpoint string
	Graphs         config.GraphConfig
	BatchSize      int
	// Strict surfaces transport and parse failures instead of treating them
	// as empty results.
	Strict bool
	Logger *zap.Logger
}

// OptionsFromConfig derives pipeline options from the service configuration.
func OptionsFromConfig(cfg config.Config, log *zap.Logger) Options {
	return Options{
		Endpoint:       cfg.SPARQL.Endpoint,
		SearchEndpoint: cfg.SPARQL.SearchEndpoint,
		Graphs:         cfg.Graphs,
		BatchSize:      cfg.SPARQL.BatchSize,
		Strict:         cfg.SPARQL.Strict,
		Logger:         log,
	}
}

const defaultBatchSize = 200

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = defaultBatchSize
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// executor applies the degrade-to-empty policy shared by every component.
type executor struct {
	q      Querier
	strict bool
	log    *zap.Logger
}

func (e executor) run(ctx context.Context, endpoint, query, operation string) (*sparql.Result, error) {
	res, err := e.q.Execute(ctx, endpoint, query)
	if err != nil {
		if e.strict {
			return nil, err
		}
		e.log.Warn("lookup degraded to empty result",
			zap.String("operation", operation),
			zap.String("endpoint", endpoint),
			zap.Error(err))
		return &sparql.Result{}, nil
	}
	if res == nil {
		res = &sparql.Result{}
	}
	return res, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func appendUnique(list []string, value string) []string {
	for _, existing := range list {
		if existing == value {
			return list
		}
	}
	return append(list, value)
}
