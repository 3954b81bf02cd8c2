package main

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"twine.work/config"
	"twine.work/graph"
	"twine.work/twine"
	"twine.work/workflow"
)

func TestTrimLiteralWhitespaceTrimsInteriorOnly(t *testing.T) {
	line := `<urn:s> <urn:p> "  padded value  " .` + "\n"
	got := trimLiteralWhitespace(line)
	assert.Equal(t, "<urn:s> <urn:p> \"padded value\" .\n", got)
}

func TestTrimLiteralWhitespacePreservesLanguageTag(t *testing.T) {
	line := `<urn:s> <urn:p> "  bonjour  "@fr .` + "\n"
	got := trimLiteralWhitespace(line)
	assert.Equal(t, "<urn:s> <urn:p> \"bonjour\"@fr .\n", got)
}

func TestTrimLiteralWhitespaceNoOpWhenAlreadyTrimmed(t *testing.T) {
	line := `<urn:s> <urn:p> "clean" .` + "\n"
	assert.Equal(t, line, trimLiteralWhitespace(line))
}

func TestTrimLiteralWhitespaceLeavesIRIObjectsAlone(t *testing.T) {
	line := `<urn:s> <urn:p> <urn:o> .` + "\n"
	assert.Equal(t, line, trimLiteralWhitespace(line))
}

func TestNormaliseLiteralsTrimsLiteralObjectsAndKeepsIRIs(t *testing.T) {
	doc := []byte(`<urn:s> <urn:label> "  padded  " .
<urn:s> <urn:ref> <urn:other> .
`)
	triples, err := graph.ParseNTriples(doc)
	require.NoError(t, err)

	g, err := graph.New("urn:graph")
	require.NoError(t, err)
	g.Current = triples

	ctx := twine.New(config.New(viper.New()), twine.NewRegistry(), nil)
	require.NoError(t, normaliseLiterals()(ctx, g))

	require.Len(t, g.Current, 2)
	serialized := graph.SerializeNTriples(g.Current)
	assert.Contains(t, string(serialized), `"padded"`)
	assert.NotContains(t, string(serialized), `"  padded  "`)
}

func TestAttachRegistersProcessorAndInputHandlerUnderPluginOwner(t *testing.T) {
	registry := twine.NewRegistry()
	// Attach compiles the default pipeline, which names the built-ins.
	require.NoError(t, workflow.RegisterBuiltins(registry, workflow.Builtins{}))
	ctx := twine.New(config.New(viper.New()), registry, nil)

	registry.BeginAttach(pluginOwner)
	require.NoError(t, Attach(ctx))
	registry.EndAttach(pluginOwner)

	assert.True(t, registry.ProcessorExists("pre:normalise-literals"))
	_, ok := registry.ResolveInput("application/n-triples")
	assert.True(t, ok)
}
