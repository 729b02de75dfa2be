package identifier

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShortID(t *testing.T) {
	cases := []struct {
		name string
		uri  string
		sep  byte
		want string
	}{
		{"path", "http://purl.uniprot.org/uniprot/Q38933", PathSeparator, "Q38933"},
		{"fragment", "http://pbr.wur.nl/SCAFFOLD#SL2.31ch04", FragmentSeparator, "SL2.31ch04"},
		{"colon", "urn:test:Q38933", ColonSeparator, "Q38933"},
		{"last separator wins", "a/b/c/d", PathSeparator, "d"},
		{"trims whitespace", "urn:test: P12345 ", ColonSeparator, "P12345"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ShortID(tc.uri, tc.sep)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestShortIDMalformed(t *testing.T) {
	for _, uri := range []string{"no-separator", "trailing:", "", "urn:  "} {
		_, err := ShortID(uri, ColonSeparator)
		require.Error(t, err, uri)
		assert.True(t, errors.Is(err, ErrMalformedIdentifier), uri)
	}
}

func TestChebiID(t *testing.T) {
	id, err := ChebiID("http://x/y/chebi_17579")
	require.NoError(t, err)
	assert.Equal(t, "17579", id)

	id, err = ChebiID("http://purl.obolibrary.org/obo/CHEBI_15377")
	require.NoError(t, err)
	assert.Equal(t, "15377", id)

	_, err = ChebiID("http://x/y/chebi")
	assert.ErrorIs(t, err, ErrMalformedIdentifier)
}

func TestProteinIDs(t *testing.T) {
	out, errs := ProteinIDs(map[string][]string{"r1": {"urn:test:Q38933"}})
	assert.Empty(t, errs)
	assert.Equal(t, map[string][]string{"r1": {"Q38933"}}, out)

	// re-applying is stable: the short ids carry no further colon
	again, errs := ProteinIDs(map[string][]string{"r1": {"urn:x:" + out["r1"][0]}})
	assert.Empty(t, errs)
	assert.Equal(t, out, again)

	out, errs = ProteinIDs(map[string][]string{"r2": {"http://url/to/test:1234", "garbage", "urn:a:P1"}})
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrMalformedIdentifier)
	assert.Equal(t, []string{"1234", "P1"}, out["r2"])
}

func TestNormalizeCompound(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		numeric bool
	}{
		{"17579", "17579", true},
		{" 17579 ", "17579", true},
		{"CHEBI:17579", "17579", true},
		{"chebi: 17579", "17579", true},
		{"beta-carotene", "beta-carotene", false},
		{"CHEBI:abc", "CHEBI:abc", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, numeric := NormalizeCompound(tc.in)
		assert.Equal(t, tc.want, got, tc.in)
		assert.Equal(t, tc.numeric, numeric, tc.in)
	}
}
