package cluster

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"twine.work/twine"
)

func TestStaticAssignmentIsFixed(t *testing.T) {
	s, err := NewStatic(1, 3)
	require.NoError(t, err)
	assert.Equal(t, twine.Assignment{Index: 1, Total: 3}, s.Assignment())
	assert.Nil(t, s.Changes())
}

func TestStaticRejectsOutOfRangeIndex(t *testing.T) {
	_, err := NewStatic(3, 3)
	assert.Error(t, err)
	_, err = NewStatic(0, 0)
	assert.Error(t, err)
}

func TestDynamicSingleInstanceGetsWholeCluster(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	d, err := NewDynamic(ctx, Config{RedisURL: "redis://" + mr.Addr(), ClusterKey: "twine", Environment: "test", InstanceID: "node-a"})
	require.NoError(t, err)
	defer d.Close()

	require.NoError(t, d.Join(ctx))
	assert.Equal(t, twine.Assignment{Index: 0, Total: 1}, d.Assignment())
}

func TestDynamicRebalancesWhenSecondNodeJoins(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	a, err := NewDynamic(ctx, Config{RedisURL: "redis://" + mr.Addr(), ClusterKey: "twine", Environment: "test", InstanceID: "node-a"})
	require.NoError(t, err)
	defer a.Close()
	require.NoError(t, a.Join(ctx))
	assert.Equal(t, twine.Assignment{Index: 0, Total: 1}, a.Assignment())

	b, err := NewDynamic(ctx, Config{RedisURL: "redis://" + mr.Addr(), ClusterKey: "twine", Environment: "test", InstanceID: "node-b"})
	require.NoError(t, err)
	defer b.Close()
	require.NoError(t, b.Join(ctx))

	waitFor(t, a.Changes(), func(a_ twine.Assignment) bool { return a_.Total == 2 })
	assert.Equal(t, twine.Assignment{Index: 0, Total: 2}, a.Assignment())
	assert.Equal(t, twine.Assignment{Index: 1, Total: 2}, b.Assignment())

	require.NoError(t, b.Leave(ctx))
	waitFor(t, a.Changes(), func(a_ twine.Assignment) bool { return a_.Total == 1 })
	assert.Equal(t, twine.Assignment{Index: 0, Total: 1}, a.Assignment())
}

func waitFor(t *testing.T, ch <-chan twine.Assignment, pred func(twine.Assignment) bool) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case a := <-ch:
			if pred(a) {
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for expected assignment")
		}
	}
}
