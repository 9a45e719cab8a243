package worker

import (
	"context"
	"io"
	"sync/atomic"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestPool_RunsSubmittedTasks(t *testing.T) {
	p := New(3, 16, testLogger())

	var ran int64
	for i := 0; i < 10; i++ {
		require.NoError(t, p.Submit(func(context.Context) {
			atomic.AddInt64(&ran, 1)
		}))
	}
	p.Shutdown()

	assert.Equal(t, int64(10), atomic.LoadInt64(&ran))
}

func TestPool_QueueFull(t *testing.T) {
	p := New(1, 1, testLogger())
	defer p.Shutdown()

	block := make(chan struct{})
	require.NoError(t, p.Submit(func(context.Context) { <-block }))

	// Fill the queue, then expect rejection.
	var err error
	for i := 0; i < 4; i++ {
		err = p.Submit(func(context.Context) {})
		if err != nil {
			break
		}
	}
	assert.ErrorIs(t, err, ErrQueueFull)
	close(block)
}

func TestPool_SubmitAfterShutdown(t *testing.T) {
	p := New(1, 4, testLogger())
	p.Shutdown()

	assert.ErrorIs(t, p.Submit(func(context.Context) {}), ErrStopped)
}

func TestPool_RecoverFromPanic(t *testing.T) {
	p := New(1, 4, testLogger())

	var ran int64
	require.NoError(t, p.Submit(func(context.Context) { panic("boom") }))
	require.NoError(t, p.Submit(func(context.Context) { atomic.AddInt64(&ran, 1) }))
	p.Shutdown()

	assert.Equal(t, int64(1), atomic.LoadInt64(&ran), "worker survives a panicking task")
}
