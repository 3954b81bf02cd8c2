package dispatch

import (
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"twine.work/config"
	"twine.work/twine"
)

func newBulkTestContext() *twine.Context {
	return twine.New(config.New(viper.New()), twine.NewRegistry(), nil)
}

func TestRunBulkConsumesLineAtATimeAndFinalises(t *testing.T) {
	ctx := newBulkTestContext()
	registry := ctx.Registry()
	registry.BeginAttach("test")

	var lines []string
	var finalised bool
	require.NoError(t, registry.RegisterBulk("test", "text/lines", "", func(ctx *twine.Context, mime string, data []byte) (int, error) {
		if len(data) == 0 {
			finalised = true
			return 0, nil
		}
		idx := strings.IndexByte(string(data), '\n')
		if idx < 0 {
			return 0, nil
		}
		lines = append(lines, string(data[:idx]))
		return idx + 1, nil
	}))
	registry.EndAttach("test")

	r := strings.NewReader("alpha\nbeta\ngamma")
	err := RunBulk(ctx, "text/lines", r)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta"}, lines)
	assert.True(t, finalised)
}

func TestRunBulkRejectsUnknownMime(t *testing.T) {
	ctx := newBulkTestContext()
	err := RunBulk(ctx, "text/unknown", strings.NewReader(""))
	require.Error(t, err)
}

func TestRunBulkDetectsProtocolViolation(t *testing.T) {
	ctx := newBulkTestContext()
	registry := ctx.Registry()
	registry.BeginAttach("test")
	require.NoError(t, registry.RegisterBulk("test", "text/bad", "", func(ctx *twine.Context, mime string, data []byte) (int, error) {
		return len(data) + 1, nil
	}))
	registry.EndAttach("test")

	err := RunBulk(ctx, "text/bad", strings.NewReader("x"))
	require.Error(t, err)
}
