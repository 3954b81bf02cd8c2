package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"twine.work/graph"
)

func TestStringSetRoundTrip(t *testing.T) {
	s := StringSet{"urn:a", `urn:has"quote`, "urn:b"}
	val, err := s.Value()
	assert.NoError(t, err)

	var got StringSet
	assert.NoError(t, got.Scan(val))
	assert.ElementsMatch(t, []string(s), []string(got))
}

func TestStringSetScanEmpty(t *testing.T) {
	var got StringSet
	assert.NoError(t, got.Scan("{}"))
	assert.Nil(t, got)

	assert.NoError(t, got.Scan(nil))
	assert.Nil(t, got)
}

func TestParseMediaPredicatesDefaultsWhenEmpty(t *testing.T) {
	assert.Equal(t, DefaultMediaPredicates, ParseMediaPredicates("  "))
}

func TestParseMediaPredicatesSplitsOverride(t *testing.T) {
	got := ParseMediaPredicates("urn:p1, urn:p2\turn:p3")
	assert.Equal(t, []string{"urn:p1", "urn:p2", "urn:p3"}, got)
}

// writerWithPredicates builds a *Writer bypassing Open, so mediaEdges can
// be exercised without a live Postgres connection.
func writerWithPredicates(preds []string) *Writer {
	set := make(map[string]struct{}, len(preds))
	for _, p := range preds {
		set[p] = struct{}{}
	}
	return &Writer{mediaPredicates: set}
}

func TestMediaEdgesOnlyGroupsConfiguredPredicates(t *testing.T) {
	w := writerWithPredicates(DefaultMediaPredicates)
	triples, err := graph.ParseNTriples([]byte(
		"<urn:a> <http://xmlns.com/foaf/0.1/page> <urn:m> .\n" +
			"<urn:a> <http://www.w3.org/1999/02/22-rdf-syntax-ns#type> <urn:Thing> .\n"))
	require.NoError(t, err)

	g, err := graph.New("urn:g1")
	require.NoError(t, err)
	g.Current = triples

	edges := w.mediaEdges(g)
	require.Len(t, edges, 1)
	assert.Equal(t, []string{"urn:m"}, edges["urn:a"])
}

func TestMediaEdgesEmptyWhenCachePredDefaultsWronglyReused(t *testing.T) {
	// Regression guard: the cached-predicates default (rdf:type,
	// owl:sameAs) must never seed the media-predicate set, or a
	// foaf:page edge like the one above would be dropped entirely.
	w := writerWithPredicates([]string{
		"http://www.w3.org/1999/02/22-rdf-syntax-ns#type",
		"http://www.w3.org/2002/07/owl#sameAs",
	})
	triples, err := graph.ParseNTriples([]byte("<urn:a> <http://xmlns.com/foaf/0.1/page> <urn:m> .\n"))
	require.NoError(t, err)

	g, err := graph.New("urn:g1")
	require.NoError(t, err)
	g.Current = triples

	assert.Empty(t, w.mediaEdges(g))
}
