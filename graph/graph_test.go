package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsEmptyURI(t *testing.T) {
	_, err := New("")
	require.Error(t, err)
}

func TestNewRejectsNonAbsoluteURI(t *testing.T) {
	_, err := New("not-a-uri")
	require.Error(t, err)
}

func TestNTriplesRoundTrip(t *testing.T) {
	doc := []byte("<urn:s> <urn:p> <urn:o> .\n")
	triples, err := ParseNTriples(doc)
	require.NoError(t, err)
	require.Len(t, triples, 1)

	out := SerializeNTriples(triples)
	again, err := ParseNTriples(out)
	require.NoError(t, err)

	assert.True(t, Isomorphic(triples, again))
}

func TestSubjectsAndObjectsSkipBlanksAndLiterals(t *testing.T) {
	doc := []byte(`<urn:a> <urn:type> <urn:thing> .
<urn:a> <urn:page> <urn:media> .
_:b1 <urn:p> "literal" .
`)
	triples, err := ParseNTriples(doc)
	require.NoError(t, err)

	g, err := New("urn:g")
	require.NoError(t, err)
	g.Current = triples

	assert.Equal(t, []string{"urn:a"}, g.Subjects())
	assert.ElementsMatch(t, []string{"urn:thing", "urn:media"}, g.Objects())
}

func TestParseNQuadsRecordsGraphTerm(t *testing.T) {
	doc := []byte("<urn:s> <urn:p> <urn:o> <urn:g> .\n")
	lines, err := ParseNQuads(doc)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, "urn:g", lines[0].Graph)
	assert.Equal(t, "urn:s", lines[0].Triple.Subj.String())
}

func TestSerializeNQuads(t *testing.T) {
	triples, err := ParseNTriples([]byte("<urn:s> <urn:p> <urn:o> .\n"))
	require.NoError(t, err)

	out := SerializeNQuads("urn:g", triples)
	lines, err := ParseNQuads(out)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, "urn:g", lines[0].Graph)
}
