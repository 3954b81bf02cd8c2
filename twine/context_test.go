package twine

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"

	"twine.work/config"
)

func newTestContext() *Context {
	return New(config.New(viper.New()), NewRegistry(), nil)
}

func TestNewContextDefaultsToSingleWorkerAssignment(t *testing.T) {
	ctx := newTestContext()
	assert.Equal(t, Assignment{Index: 0, Total: 1}, ctx.Cluster().Assignment())
}

func TestWithJobScopesLoggerWithoutMutatingParent(t *testing.T) {
	ctx := newTestContext()
	assert.Nil(t, ctx.Job())

	child := ctx.WithJob(NewJob("graphs"))
	assert.NotNil(t, child.Job())
	assert.Nil(t, ctx.Job(), "parent context must be unaffected by WithJob")
	assert.Same(t, ctx, child.Parent())
}

func TestShuttingDownPropagatesFromAncestor(t *testing.T) {
	ctx := newTestContext()
	child := ctx.WithJob(NewJob("graphs"))

	assert.False(t, child.ShuttingDown())
	ctx.RequestShutdown()
	assert.True(t, child.ShuttingDown())
}

func TestDetachAllRemovesEveryRecordedOwner(t *testing.T) {
	ctx := newTestContext()

	ctx.Registry().BeginAttach("p1")
	ctx.Registry().RegisterProcessor("p1", "a", nil)
	ctx.Registry().EndAttach("p1")
	ctx.RecordAttach("p1")

	ctx.Registry().BeginAttach("p2")
	ctx.Registry().RegisterProcessor("p2", "b", nil)
	ctx.Registry().EndAttach("p2")
	ctx.RecordAttach("p2")

	ctx.DetachAll()
	assert.False(t, ctx.Registry().ProcessorExists("a"))
	assert.False(t, ctx.Registry().ProcessorExists("b"))
}
