package twine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"twine.work/graph"
)

func TestRegisterOutsideAttachScopeIsRejected(t *testing.T) {
	r := NewRegistry()
	err := r.RegisterProcessor("plugin-a", "frobnicate", func(ctx *Context, g *graph.Graph) error { return nil })
	require.Error(t, err)
}

func TestRegisterDuringAttachScopeSucceeds(t *testing.T) {
	r := NewRegistry()
	r.BeginAttach("plugin-a")
	defer r.EndAttach("plugin-a")

	err := r.RegisterProcessor("plugin-a", "frobnicate", func(ctx *Context, g *graph.Graph) error { return nil })
	require.NoError(t, err)
	assert.True(t, r.ProcessorExists("frobnicate"))
}

func TestInternalOwnerBypassesAttachScope(t *testing.T) {
	r := NewRegistry()
	err := r.RegisterProcessor(InternalOwner, "sparql-get", func(ctx *Context, g *graph.Graph) error { return nil })
	require.NoError(t, err)
}

func TestResolveIsCaseAndParameterInsensitive(t *testing.T) {
	r := NewRegistry()
	r.BeginAttach("p")
	require.NoError(t, r.RegisterInput("p", "Application/RDF+XML", "", func(ctx *Context, mime string, data []byte, subject string) error { return nil }))
	r.EndAttach("p")

	_, ok := r.ResolveInput("application/rdf+xml; charset=utf-8")
	assert.True(t, ok)
}

func TestDetachRemovesOnlyOwnedEntries(t *testing.T) {
	r := NewRegistry()
	r.BeginAttach("p1")
	require.NoError(t, r.RegisterProcessor("p1", "a", func(ctx *Context, g *graph.Graph) error { return nil }))
	r.EndAttach("p1")

	r.BeginAttach("p2")
	require.NoError(t, r.RegisterProcessor("p2", "b", func(ctx *Context, g *graph.Graph) error { return nil }))
	r.EndAttach("p2")

	r.Detach("p1")
	assert.False(t, r.ProcessorExists("a"))
	assert.True(t, r.ProcessorExists("b"))
}

func TestProcessorsWithPrefixPreservesRegistrationOrder(t *testing.T) {
	r := NewRegistry()
	r.BeginAttach("p")
	require.NoError(t, r.RegisterProcessor("p", "pre:second", func(ctx *Context, g *graph.Graph) error { return nil }))
	require.NoError(t, r.RegisterProcessor("p", "pre:first", func(ctx *Context, g *graph.Graph) error { return nil }))
	r.EndAttach("p")

	names := r.ProcessorsWithPrefix("pre:")
	assert.Equal(t, []string{"pre:second", "pre:first"}, names)
}
