package render

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chebi2gene/internal/config"
	"chebi2gene/internal/core"
)

var testLinks = config.LinkConfig{
	Chebi:    "http://chebi.test/%s",
	Reaction: "http://rhea.test/RHEA:%s",
	Protein:  "http://uniprot.test/%s",
}

func sampleReport() *core.Report {
	gene := core.GeneRecord{Name: "Solyc01g005000", Scaffold: "SL2.40ch01", Start: "10", Stop: "90", Description: "<kinase>"}
	return &core.Report{
		ChebiID: "17579",
		Status:  core.StatusOK,
		Genes:   map[string][]core.GeneRecord{"Q38933": {gene}},
		Reactions: []core.ReactionEntry{{
			ID: "10124",
			Proteins: []core.ProteinEntry{{
				ID:        "Q38933",
				Pathways:  []string{"Carotenoid biosynthesis"},
				Genes:     []core.GeneRecord{gene},
				Organisms: []string{"Arabidopsis thaliana", "Solanum lycopersicum"},
			}},
		}},
		Warnings: []string{"skipped reference X"},
	}
}

func TestReportPage(t *testing.T) {
	r, err := New(testLinks)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, r.Report(&buf, sampleReport()))
	page := buf.String()
	assert.Contains(t, page, `href="http://chebi.test/17579"`)
	assert.Contains(t, page, `href="http://rhea.test/RHEA:10124"`)
	assert.Contains(t, page, `href="http://uniprot.test/Q38933"`)
	assert.Contains(t, page, "Arabidopsis thaliana - Solanum lycopersicum")
	assert.Contains(t, page, "SL2.40ch01:10-90")
	assert.Contains(t, page, "&lt;kinase&gt;", "gene descriptions are escaped")
	assert.Contains(t, page, "skipped reference X")
	assert.Contains(t, page, `href="/csv/17579"`)
}

func TestEmptyReportUsesNoResultsPage(t *testing.T) {
	r, err := New(testLinks)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, r.Report(&buf, &core.Report{ChebiID: "1", Status: core.StatusNoProteins}))
	assert.Contains(t, buf.String(), "No proteins are linked")
	assert.NotContains(t, buf.String(), "Download CSV")
}

func TestSearchPage(t *testing.T) {
	r, err := New(testLinks)
	require.NoError(t, err)

	result := core.SearchResult{
		"27732": {Names: []string{"caffeine"}, Synonyms: []string{"guaranine", "methyltheobromine"}},
		"10000": {Names: []string{"caffeine-d3"}},
	}
	var buf bytes.Buffer
	require.NoError(t, r.Search(&buf, "caffeine", false, result))
	page := buf.String()
	assert.Contains(t, page, "2 compound(s)")
	assert.Contains(t, page, "guaranine, methyltheobromine")
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("/chebi/10000")), bytes.Index(buf.Bytes(), []byte("/chebi/27732")))
	assert.Contains(t, page, `href="/fullsearch/caffeine"`)

	buf.Reset()
	require.NoError(t, r.Search(&buf, "nothing", true, core.SearchResult{}))
	assert.Contains(t, buf.String(), "No compound matched")
	assert.NotContains(t, buf.String(), "/fullsearch/")

	buf.Reset()
	require.NoError(t, r.Search(&buf, "cis/trans-retinal", false, core.SearchResult{}))
	assert.Contains(t, buf.String(), `href="/fullsearch/cis%2Ftrans-retinal"`)
}

func TestIndexPage(t *testing.T) {
	r, err := New(testLinks)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, r.Index(&buf, "", "empty compound identifier"))
	assert.Contains(t, buf.String(), `name="chebi_id"`)
	assert.Contains(t, buf.String(), "empty compound identifier")
}

func TestCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, CSV(&buf, [][]string{{"a", "b"}, {"x,y", `q"`}}))
	assert.Equal(t, "a,b\n\"x,y\",\"q\"\"\"\n", buf.String())
}
