package krunloop

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/xinkaiwang/northpole/libs/xklib/kcommon"
	"github.com/xinkaiwang/northpole/libs/xklib/klogging"
	"github.com/xinkaiwang/northpole/libs/xklib/kmetrics"
)

var (
	RunLoopElapsedMsMetric = kmetrics.CreateKmetric(context.Background(), "runloop_elapsed_ms", "time spent per runloop event", []string{"name", "event"})
)

// CriticalResource is the state owned by a RunLoop. Only events running on the loop touch it.
type CriticalResource interface {
	IsResource()
}

type IEvent[T CriticalResource] interface {
	GetName() string
	Process(ctx context.Context, resource T)
}

type EventPoster[T CriticalResource] interface {
	PostEvent(event IEvent[T])
}

// RunLoop processes events one at a time against a single resource.
type RunLoop[T CriticalResource] struct {
	name             string // for logging/metrics only
	resource         T
	queue            *UnboundedQueue[T]
	currentEventName atomic.Value
	ctx              context.Context
	cancel           context.CancelFunc
	started          atomic.Bool
	exited           chan struct{}
}

// NewRunLoop derives the loop ctx here, so StopAndWaitForExit works even before Run has started.
func NewRunLoop[T CriticalResource](ctx context.Context, resource T, name string) *RunLoop[T] {
	rl := &RunLoop[T]{
		name:     name,
		resource: resource,
		queue:    NewUnboundedQueue[T](ctx),
		exited:   make(chan struct{}),
	}
	rl.ctx, rl.cancel = context.WithCancel(ctx)
	return rl
}

// PostEvent never blocks.
func (rl *RunLoop[T]) PostEvent(event IEvent[T]) {
	rl.queue.Enqueue(event)
}

// CurrentEventName returns the name of the event being processed, "" when idle.
func (rl *RunLoop[T]) CurrentEventName() string {
	val := rl.currentEventName.Load()
	if val == nil {
		return ""
	}
	return val.(string)
}

func (rl *RunLoop[T]) QueueSize() int64 {
	return rl.queue.GetSize()
}

// Run processes events until ctx, or the ctx given to NewRunLoop, is done. Call it once.
func (rl *RunLoop[T]) Run(ctx context.Context) {
	rl.started.Store(true)
	runCtx, cancel := context.WithCancel(rl.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	defer func() {
		rl.queue.Close()
		close(rl.exited)
	}()

	for {
		select {
		case <-runCtx.Done():
			klogging.Info(ctx).With("name", rl.name).Log("RunLoopCtxCanceled", "run loop stopped")
			return
		case event, ok := <-rl.queue.GetOutputChan():
			if !ok {
				klogging.Info(ctx).With("name", rl.name).Log("EventQueueClosed", "event queue closed")
				return
			}
			rl.processEvent(runCtx, event)
		}
	}
}

func (rl *RunLoop[T]) processEvent(ctx context.Context, event IEvent[T]) {
	start := kcommon.GetMonoTimeMs()
	eveName := event.GetName()
	rl.currentEventName.Store(eveName)
	defer func() {
		rl.currentEventName.Store("")
		elapsedMs := kcommon.GetMonoTimeMs() - start
		RunLoopElapsedMsMetric.GetTimeSequence(ctx, rl.name, eveName).Add(elapsedMs)
	}()
	event.Process(ctx, rl.resource)
}

// StopAndWaitForExit cancels the loop. A loop stopped before Run started exits as soon as Run is called.
func (rl *RunLoop[T]) StopAndWaitForExit() {
	rl.cancel()
	if !rl.started.Load() {
		return
	}

	select {
	case <-rl.exited:
	case <-time.After(1000 * time.Millisecond):
		klogging.Warning(context.Background()).With("name", rl.name).Log("RunLoopStopTimeout", "run loop did not exit in time")
	}
}

// Done is closed once Run has returned.
func (rl *RunLoop[T]) Done() <-chan struct{} {
	return rl.exited
}

// ActionEvent wraps a closure so callers can run ad-hoc code on the loop.
type ActionEvent[T CriticalResource] struct {
	name string
	fn   func(resource T)
}

func NewActionEvent[T CriticalResource](name string, fn func(resource T)) *ActionEvent[T] {
	return &ActionEvent[T]{name: name, fn: fn}
}

func (ae *ActionEvent[T]) GetName() string {
	return ae.name
}

func (ae *ActionEvent[T]) Process(ctx context.Context, resource T) {
	ae.fn(resource)
}

const (
	actionQueued int32 = iota
	actionRunning
	actionAbandoned
)

// PostActionOrAbandon runs fn on the loop and blocks until it finished, then returns true.
// If ctx ends or the loop exits while fn is still queued, fn is abandoned and will never run: returns false.
// Once fn has started the caller waits for it regardless of ctx, fn must bound itself.
func (rl *RunLoop[T]) PostActionOrAbandon(ctx context.Context, name string, fn func(resource T)) bool {
	var state atomic.Int32
	done := make(chan struct{})
	rl.PostEvent(NewActionEvent[T](name, func(resource T) {
		if !state.CompareAndSwap(actionQueued, actionRunning) {
			return
		}
		defer close(done)
		fn(resource)
	}))
	select {
	case <-done:
		return true
	case <-ctx.Done():
	case <-rl.exited:
	}
	if state.CompareAndSwap(actionQueued, actionAbandoned) {
		return false
	}
	<-done
	return true
}

// PostActionAndWait runs fn on the loop and blocks until it finished.
// Returns false if ctx ends first or the loop has exited; fn may still run later in the first case.
func (rl *RunLoop[T]) PostActionAndWait(ctx context.Context, name string, fn func(resource T)) bool {
	ch := make(chan struct{})
	rl.PostEvent(NewActionEvent[T](name, func(resource T) {
		fn(resource)
		close(ch)
	}))
	select {
	case <-ch:
		return true
	case <-ctx.Done():
		return false
	case <-rl.exited:
		return false
	}
}
