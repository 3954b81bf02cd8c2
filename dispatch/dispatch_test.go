package dispatch

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"twine.work/config"
	"twine.work/queue"
	"twine.work/twine"
)

type fakeRecorder struct {
	entries []HistoryEntry
}

func (f *fakeRecorder) Record(_ context.Context, e HistoryEntry) error {
	f.entries = append(f.entries, e)
	return nil
}

func newDispatchTestLoop(t *testing.T) (*Loop, *twine.Context, *queue.MockAMQPChannel) {
	t.Helper()
	dialer, mockCh := queue.NewMockAMQPDialer()
	broker, err := queue.Dial(queue.Config{URL: "amqp://test", QueueName: "graphs"}, dialer)
	require.NoError(t, err)
	require.NoError(t, broker.Listen(""))

	ctx := twine.New(config.New(viper.New()), twine.NewRegistry(), nil)
	return New(ctx, broker), ctx, mockCh
}

func TestProcessOneRecordsAckOnSuccess(t *testing.T) {
	loop, ctx, mockCh := newDispatchTestLoop(t)
	registry := ctx.Registry()
	registry.BeginAttach("test")
	require.NoError(t, registry.RegisterInput("test", "application/n-triples", "", func(*twine.Context, string, []byte, string) error {
		return nil
	}))
	registry.EndAttach("test")

	recorder := &fakeRecorder{}
	loop.SetHistory(recorder)

	mockCh.Deliver(amqp.Delivery{ContentType: "application/n-triples", Body: []byte("<a> <b> <c> .")})
	cctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msg, ok, err := loop.broker.Next(cctx)
	require.NoError(t, err)
	require.True(t, ok)

	loop.processOne(msg)

	require.Len(t, recorder.entries, 1)
	assert.Equal(t, "ack", recorder.entries[0].Outcome)
	assert.Equal(t, "application/n-triples", recorder.entries[0].MIME)
}

func TestProcessOneRecordsRejectWhenNoHandlerResolved(t *testing.T) {
	loop, _, mockCh := newDispatchTestLoop(t)

	recorder := &fakeRecorder{}
	loop.SetHistory(recorder)

	mockCh.Deliver(amqp.Delivery{ContentType: "application/unknown", Body: []byte("x")})
	cctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msg, ok, err := loop.broker.Next(cctx)
	require.NoError(t, err)
	require.True(t, ok)

	loop.processOne(msg)

	require.Len(t, recorder.entries, 1)
	assert.Equal(t, "reject", recorder.entries[0].Outcome)
	assert.Contains(t, recorder.entries[0].Error, "no handler registered")
}

func TestProcessOneRecordsRejectWhenHandlerFails(t *testing.T) {
	loop, ctx, mockCh := newDispatchTestLoop(t)
	registry := ctx.Registry()
	registry.BeginAttach("test")
	require.NoError(t, registry.RegisterInput("test", "application/n-triples", "", func(*twine.Context, string, []byte, string) error {
		return errors.New("boom")
	}))
	registry.EndAttach("test")

	recorder := &fakeRecorder{}
	loop.SetHistory(recorder)

	mockCh.Deliver(amqp.Delivery{ContentType: "application/n-triples", Body: []byte("<a> <b> <c> .")})
	cctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msg, ok, err := loop.broker.Next(cctx)
	require.NoError(t, err)
	require.True(t, ok)

	loop.processOne(msg)

	require.Len(t, recorder.entries, 1)
	assert.Equal(t, "reject", recorder.entries[0].Outcome)
	assert.Equal(t, "boom", recorder.entries[0].Error)
}

func TestRunParallelProcessesEveryMessageExactlyOnce(t *testing.T) {
	loop, ctx, mockCh := newDispatchTestLoop(t)
	registry := ctx.Registry()
	registry.BeginAttach("test")

	var mu sync.Mutex
	var seen []string
	require.NoError(t, registry.RegisterInput("test", "application/n-triples", "", func(_ *twine.Context, _ string, data []byte, _ string) error {
		mu.Lock()
		seen = append(seen, string(data))
		mu.Unlock()
		return nil
	}))
	registry.EndAttach("test")

	const total = 20
	for i := 0; i < total; i++ {
		mockCh.Deliver(amqp.Delivery{ContentType: "application/n-triples", Body: []byte(strconv.Itoa(i))})
	}

	cancelCh := make(chan struct{})
	done := make(chan error, 1)
	go func() { done <- loop.RunParallel(4, cancelCh) }()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == total
	}, 2*time.Second, 10*time.Millisecond)

	close(cancelCh)
	require.NoError(t, <-done)

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, seen, total)
	assert.ElementsMatch(t, func() []string {
		var want []string
		for i := 0; i < total; i++ {
			want = append(want, strconv.Itoa(i))
		}
		return want
	}(), seen)
}

func TestRunParallelWithOneWorkerBehavesLikeRun(t *testing.T) {
	loop, ctx, mockCh := newDispatchTestLoop(t)
	registry := ctx.Registry()
	registry.BeginAttach("test")
	var processed int
	require.NoError(t, registry.RegisterInput("test", "application/n-triples", "", func(*twine.Context, string, []byte, string) error {
		processed++
		return nil
	}))
	registry.EndAttach("test")

	mockCh.Deliver(amqp.Delivery{ContentType: "application/n-triples", Body: []byte("x")})
	cancelCh := make(chan struct{})
	done := make(chan error, 1)
	go func() { done <- loop.RunParallel(1, cancelCh) }()

	require.Eventually(t, func() bool { return processed == 1 }, 2*time.Second, 10*time.Millisecond)
	close(cancelCh)
	require.NoError(t, <-done)
}

func TestNilHistoryRecorderIsSafeToLeaveUnset(t *testing.T) {
	loop, ctx, mockCh := newDispatchTestLoop(t)
	registry := ctx.Registry()
	registry.BeginAttach("test")
	require.NoError(t, registry.RegisterInput("test", "application/n-triples", "", func(*twine.Context, string, []byte, string) error {
		return nil
	}))
	registry.EndAttach("test")

	mockCh.Deliver(amqp.Delivery{ContentType: "application/n-triples", Body: []byte("<a> <b> <c> .")})
	cctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msg, ok, err := loop.broker.Next(cctx)
	require.NoError(t, err)
	require.True(t, ok)

	assert.NotPanics(t, func() { loop.processOne(msg) })
}
