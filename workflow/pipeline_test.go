package workflow

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/knakk/rdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"twine.work/cachepred"
	"twine.work/graph"
	"twine.work/twine"
)

func TestParsePipelineSplitsAndSkipsEmpty(t *testing.T) {
	got := ParsePipeline("sparql-get, , pre   post\tsparql-put")
	assert.Equal(t, []string{"sparql-get", "pre", "post", "sparql-put"}, got)
}

func TestParsePipelineDefaultsWhenEmpty(t *testing.T) {
	assert.Equal(t, DefaultPipeline, ParsePipeline("   "))
}

func TestCompileFailsFastOnUnknownProcessor(t *testing.T) {
	registry := twine.NewRegistry()
	_, err := Compile(registry, []string{"does-not-exist"})
	require.Error(t, err)
}

func TestPipelineRunInvokesStagesInOrderAndAbortsOnFailure(t *testing.T) {
	registry := twine.NewRegistry()
	registry.BeginAttach("test")
	var calls []string
	require.NoError(t, registry.RegisterProcessor("test", "first", func(ctx *twine.Context, g *graph.Graph) error {
		calls = append(calls, "first")
		return nil
	}))
	require.NoError(t, registry.RegisterProcessor("test", "boom", func(ctx *twine.Context, g *graph.Graph) error {
		calls = append(calls, "boom")
		return assertErr
	}))
	require.NoError(t, registry.RegisterProcessor("test", "never", func(ctx *twine.Context, g *graph.Graph) error {
		calls = append(calls, "never")
		return nil
	}))
	registry.EndAttach("test")

	p, err := Compile(registry, []string{"first", "boom", "never"})
	require.NoError(t, err)

	g, err := graph.New("urn:g1")
	require.NoError(t, err)

	err = p.Run(nil, g)
	require.Error(t, err)
	assert.Equal(t, []string{"first", "boom"}, calls)
}

func TestPrePseudoProcessorFansOutInRegistrationOrder(t *testing.T) {
	registry := twine.NewRegistry()
	registry.BeginAttach("test")
	var calls []string
	require.NoError(t, registry.RegisterProcessor("test", "pre:second", func(ctx *twine.Context, g *graph.Graph) error {
		calls = append(calls, "pre:second")
		return nil
	}))
	require.NoError(t, registry.RegisterProcessor("test", "pre:first", func(ctx *twine.Context, g *graph.Graph) error {
		calls = append(calls, "pre:first")
		return nil
	}))
	registry.EndAttach("test")

	p, err := Compile(registry, []string{"pre"})
	require.NoError(t, err)

	g, err := graph.New("urn:g1")
	require.NoError(t, err)
	require.NoError(t, p.Run(nil, g))
	assert.Equal(t, []string{"pre:second", "pre:first"}, calls)
}

var assertErr = errBoom{}

type errBoom struct{}

func (errBoom) Error() string { return "boom" }

func TestCacheFilterDropsTriplesNotInSet(t *testing.T) {
	set := cachepred.New() // rdf:type, owl:sameAs only
	triples, err := graph.ParseNTriples([]byte(
		"<urn:a> <http://www.w3.org/1999/02/22-rdf-syntax-ns#type> <urn:Thing> .\n" +
			"<urn:a> <http://xmlns.com/foaf/0.1/page> <urn:m> .\n"))
	require.NoError(t, err)

	g, err := graph.New("urn:g1")
	require.NoError(t, err)
	g.Current = triples

	require.NoError(t, cacheFilter(set)(nil, g))
	require.Len(t, g.Current, 1)
	obj, ok := g.Current[0].Obj.(rdf.IRI)
	require.True(t, ok)
	assert.Equal(t, "urn:Thing", obj.String())
}

func TestRulebaseUpdateReloadsDefaultPathWhenIdentifierEmpty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rulebase.txt")
	require.NoError(t, os.WriteFile(path, []byte("http://xmlns.com/foaf/0.1/page\n"), 0o644))

	set := cachepred.New()
	require.False(t, set.Allows("http://xmlns.com/foaf/0.1/page"))

	require.NoError(t, rulebaseUpdate(set, path)(nil, "rulebase", ""))
	assert.True(t, set.Allows("http://xmlns.com/foaf/0.1/page"))
}

func TestRulebaseUpdateFailsWithNoPathConfigured(t *testing.T) {
	err := rulebaseUpdate(cachepred.New(), "")(nil, "rulebase", "")
	require.Error(t, err)
}

func TestRegisterBuiltinsSkipsCacheFilterWhenCachePredNil(t *testing.T) {
	registry := twine.NewRegistry()
	require.NoError(t, RegisterBuiltins(registry, Builtins{}))
	assert.False(t, registry.ProcessorExists("pre:cache-filter"))
	_, ok := registry.ResolveUpdate("rulebase")
	assert.False(t, ok)
}

func TestRegisterBuiltinsWiresCacheFilterAndRulebaseWhenCachePredSet(t *testing.T) {
	registry := twine.NewRegistry()
	require.NoError(t, RegisterBuiltins(registry, Builtins{CachePred: cachepred.New()}))
	assert.True(t, registry.ProcessorExists("pre:cache-filter"))
	_, ok := registry.ResolveUpdate("rulebase")
	assert.True(t, ok)
}
