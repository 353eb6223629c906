package speed

import (
	"context"
	"sync/atomic"

	"github.com/xinkaiwang/northpole/libs/xklib/kcommon"
	"github.com/xinkaiwang/northpole/libs/xklib/klogging"
)

// Tracker keeps the latest speed record in memory for the agents.
type Tracker struct {
	store   *Store
	current atomic.Pointer[SpeedConfig]
}

func NewTracker(store *Store) *Tracker {
	tracker := &Tracker{store: store}
	def := DefaultSpeedConfig()
	tracker.current.Store(&def)
	return tracker
}

func (t *Tracker) Current() SpeedConfig {
	return *t.current.Load()
}

func (t *Tracker) WorkDelayMs(ctx context.Context) int {
	return RandomDelayMs(ctx, t.Current().WorkSpeed)
}

func (t *Tracker) VacationDelayMs(ctx context.Context) int {
	return RandomDelayMs(ctx, t.Current().VacationSpeed)
}

func (t *Tracker) set(ctx context.Context, cfg SpeedConfig) {
	old := t.current.Swap(&cfg)
	if *old != cfg {
		klogging.Debug(ctx).
			With("workSpeed", cfg.WorkSpeed).
			With("vacationSpeed", cfg.VacationSpeed).
			With("maxWorkMs", MaxDelayMs(cfg.WorkSpeed)).
			With("maxVacationMs", MaxDelayMs(cfg.VacationSpeed)).
			Log("SpeedTracked", "")
	}
}

// Run follows the record until ctx is done. The watch is opened before the initial load so no update falls in between.
func (t *Tracker) Run(ctx context.Context) {
	speedPath := t.store.pm.GetSpeedPath()
	for ctx.Err() == nil {
		watchCtx, cancel := context.WithCancel(ctx)
		ch := t.store.provider.WatchByPrefix(watchCtx, speedPath, 0)
		ke := kcommon.TryCatchRun(ctx, func() {
			t.set(ctx, parseSpeed(t.store.provider.Get(ctx, speedPath)))
		})
		if ke != nil {
			cancel()
			klogging.Warning(ctx).WithError(ke).Log("SpeedLoadFailed", "keeping last known speeds")
			kcommon.SleepMs(ctx, 1000)
			continue
		}
		for item := range ch {
			if item.Key != speedPath {
				continue
			}
			if item.Value == "" {
				t.set(ctx, DefaultSpeedConfig())
				continue
			}
			if ke := kcommon.TryCatchRun(ctx, func() { t.set(ctx, parseSpeed(*item)) }); ke != nil {
				klogging.Warning(ctx).WithError(ke).Log("SpeedParseFailed", "ignored")
			}
		}
		cancel()
	}
}
