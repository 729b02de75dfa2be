package core

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"chebi2gene/internal/config"
	"chebi2gene/internal/sparql"
)

const (
	testEndpoint       = "http://sparql.test/sparql"
	testSearchEndpoint = "http://search.test/sparql"
)

// Query shapes recognised by fakeEndpoint, keyed by a marker unique to
// each template.
const (
	shapeReactions = "bp:XREF"
	shapeGenes     = "gene:Protein"
	shapePathways  = "rdfs:comment"
	shapeOrganisms = "uniprot:scientificName"
	shapeSearch    = "obo:Synonym"
)

var shapes = []string{shapeReactions, shapeGenes, shapePathways, shapeOrganisms, shapeSearch}

type call struct {
	endpoint string
	shape    string
	query    string
}

// fakeEndpoint answers queries with JSON fixtures chosen by query shape.
type fakeEndpoint struct {
	t        *testing.T
	mu       sync.Mutex
	fixtures map[string]string
	failures map[string]error
	calls    []call
}

func newFakeEndpoint(t *testing.T) *fakeEndpoint {
	t.Helper()
	return &fakeEndpoint{
		t: t,
		fixtures: map[string]string{
			shapeReactions: "reactions.json",
			shapeGenes:     "genes.json",
			shapePathways:  "pathways.json",
			shapeOrganisms: "organisms.json",
			shapeSearch:    "search.json",
		},
		failures: map[string]error{},
	}
}

func shapeOf(query string) string {
	for _, s := range shapes {
		if strings.Contains(query, s) {
			return s
		}
	}
	return ""
}

func (f *fakeEndpoint) Execute(_ context.Context, endpoint, query string) (*sparql.Result, error) {
	shape := shapeOf(query)
	f.mu.Lock()
	f.calls = append(f.calls, call{endpoint: endpoint, shape: shape, query: query})
	fixture := f.fixtures[shape]
	failure := f.failures[shape]
	f.mu.Unlock()
	if failure != nil {
		return nil, failure
	}
	if fixture == "" {
		fixture = "empty.json"
	}
	return loadFixture(f.t, fixture), nil
}

func (f *fakeEndpoint) callsFor(shape string) []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []call
	for _, c := range f.calls {
		if c.shape == shape {
			out = append(out, c)
		}
	}
	return out
}

func loadFixture(t *testing.T, name string) *sparql.Result {
	t.Helper()
	body := readFixture(t, name)
	res, err := sparql.DecodeResult(body)
	require.NoError(t, err)
	return res
}

func readFixture(t *testing.T, name string) []byte {
	t.Helper()
	body, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return body
}

func testOptions() Options {
	return Options{
		Endpoint:       testEndpoint,
		SearchEndpoint: testSearchEndpoint,
		Graphs:         config.Default().Graphs,
		BatchSize:      50,
	}
}
