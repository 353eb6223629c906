package santa

import (
	"context"
	"time"

	"github.com/xinkaiwang/northpole/libs/xklib/kcommon"
	"github.com/xinkaiwang/northpole/libs/xklib/klogging"
	"github.com/xinkaiwang/northpole/services/northpole/internal/core"
	"github.com/xinkaiwang/northpole/services/northpole/internal/etcdprov"
)

// Santa wakes on any state change (and on a timer, in case a watch event is lost) and asks the coordinator to dispatch.
// Any number of Santas may run against one store.
type Santa struct {
	coord      *core.Coordinator
	intervalMs int
}

func NewSanta(coord *core.Coordinator, intervalMs int) *Santa {
	return &Santa{coord: coord, intervalMs: intervalMs}
}

// Run blocks until ctx is done.
func (s *Santa) Run(ctx context.Context) error {
	ctx = klogging.EmbedTraceId(ctx, "santa")
	klogging.Info(ctx).With("intervalMs", s.intervalMs).Log("SantaStarted", "")
	ticker := time.NewTicker(time.Duration(s.intervalMs) * time.Millisecond)
	defer ticker.Stop()

	for ctx.Err() == nil {
		watchCtx, cancel := context.WithCancel(ctx)
		s.runWatch(ctx, s.coord.Registry().WatchState(watchCtx), ticker)
		cancel()
		if ctx.Err() == nil {
			klogging.Warning(ctx).Log("SantaWatchClosed", "re-opening")
			kcommon.SleepMs(ctx, 100)
		}
	}
	klogging.Info(ctx).Log("SantaStopped", "")
	return nil
}

// runWatch returns when ch closes or ctx is done.
func (s *Santa) runWatch(ctx context.Context, ch chan *etcdprov.EtcdKvItem, ticker *time.Ticker) {
	s.TryOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case _, ok := <-ch:
			if !ok {
				return
			}
			if !drain(ch) {
				return
			}
		}
		s.TryOnce(ctx)
	}
}

// drain swallows whatever is already queued, a promotion alone produces quorum+1 events. False if ch closed.
func drain(ch chan *etcdprov.EtcdKvItem) bool {
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return false
			}
		default:
			return true
		}
	}
}

// TryOnce is one dispatch attempt. Errors are logged, the next trigger tries again.
func (s *Santa) TryOnce(ctx context.Context) *core.DispatchResult {
	result, err := s.coord.TryDispatch(ctx)
	if err != nil {
		if ctx.Err() == nil {
			klogging.Warning(ctx).WithError(err).Log("SantaDispatchFailed", "")
		}
		return nil
	}
	if result != nil {
		klogging.Info(ctx).
			With("groupId", result.GroupId).
			With("class", result.Class).
			With("members", len(result.Members)).
			Log("SantaDispatched", "Ho! Ho! Ho! "+core.SantaCommand(result.Class))
	}
	return result
}
