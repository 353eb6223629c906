package krunloop

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRunLoopProcessesInOrder(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	res := &counterResource{}
	rl := NewRunLoop(ctx, res, "test")
	go rl.Run(ctx)

	for i := 0; i < 100; i++ {
		rl.PostEvent(&appendEvent{value: i})
	}
	var got []int
	ok := rl.PostActionAndWait(ctx, "Read", func(cr *counterResource) {
		got = append(got, cr.values...)
	})
	assert.True(t, ok)
	assert.Len(t, got, 100)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestRunLoopStop(t *testing.T) {
	ctx := context.Background()
	rl := NewRunLoop(ctx, &counterResource{}, "test")
	go rl.Run(ctx)
	assert.True(t, rl.PostActionAndWait(ctx, "Noop", func(*counterResource) {}))

	rl.StopAndWaitForExit()
	select {
	case <-rl.Done():
	case <-time.After(time.Second):
		t.Fatal("run loop did not exit")
	}
	// loop is gone, waiting must not hang
	assert.False(t, rl.PostActionAndWait(ctx, "Late", func(*counterResource) {}))
}

func TestRunLoopStopBeforeRun(t *testing.T) {
	ctx := context.Background()
	rl := NewRunLoop(ctx, &counterResource{}, "test")
	rl.StopAndWaitForExit()
	// a late Run must not outlive the stop
	go rl.Run(ctx)
	select {
	case <-rl.Done():
	case <-time.After(time.Second):
		t.Fatal("run loop kept running after stop")
	}
}

func TestPostActionOrAbandonQueued(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rl := NewRunLoop(ctx, &counterResource{}, "test")
	go rl.Run(ctx)

	blocking, release := make(chan struct{}), make(chan struct{})
	rl.PostEvent(NewActionEvent("Block", func(*counterResource) {
		close(blocking)
		<-release
	}))
	<-blocking

	var ran atomic.Bool
	waitCtx, waitCancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer waitCancel()
	assert.False(t, rl.PostActionOrAbandon(waitCtx, "Queued", func(*counterResource) { ran.Store(true) }))

	close(release)
	assert.True(t, rl.PostActionAndWait(ctx, "After", func(*counterResource) {}))
	assert.False(t, ran.Load())
}

func TestPostActionOrAbandonWaitsOnceStarted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rl := NewRunLoop(ctx, &counterResource{}, "test")
	go rl.Run(ctx)

	finished := false
	waitCtx, waitCancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer waitCancel()
	ok := rl.PostActionOrAbandon(waitCtx, "Slow", func(*counterResource) {
		time.Sleep(60 * time.Millisecond)
		finished = true
	})
	assert.True(t, ok)
	assert.True(t, finished)
}

func TestPostActionAndWaitCtxTimeout(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rl := NewRunLoop(ctx, &counterResource{}, "test")
	// loop not running, so the action never gets picked up
	waitCtx, waitCancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer waitCancel()
	assert.False(t, rl.PostActionAndWait(waitCtx, "Stuck", func(*counterResource) {}))
}

func TestCurrentEventName(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rl := NewRunLoop(ctx, &counterResource{}, "test")
	go rl.Run(ctx)

	var seen string
	rl.PostActionAndWait(ctx, "Peek", func(*counterResource) {
		seen = rl.CurrentEventName()
	})
	assert.Equal(t, "Peek", seen)
}
