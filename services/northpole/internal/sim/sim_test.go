package sim

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xinkaiwang/northpole/services/northpole/internal/config"
	"github.com/xinkaiwang/northpole/services/northpole/internal/core"
	"github.com/xinkaiwang/northpole/services/northpole/internal/data"
	"github.com/xinkaiwang/northpole/services/northpole/internal/etcdprov"
	"github.com/xinkaiwang/northpole/services/northpole/internal/registry"
	"github.com/xinkaiwang/northpole/services/northpole/internal/speed"
)

type fixture struct {
	fake    *etcdprov.FakeEtcdProvider
	pm      *config.PathManager
	reg     *registry.Registry
	store   *speed.Store
	tracker *speed.Tracker
}

func newFixture(t *testing.T) *fixture {
	fake := etcdprov.NewFakeEtcdProvider()
	pm := config.NewPathManager("/np")
	store := speed.NewStore(fake, pm)
	// speed 100 makes every simulated duration 0ms
	require.NoError(t, store.Set(context.Background(), speed.SpeedConfig{WorkSpeed: 100, VacationSpeed: 100}))
	return &fixture{fake: fake, pm: pm, reg: registry.NewRegistry(fake, pm), store: store, tracker: speed.NewTracker(store)}
}

func (f *fixture) newCoordinator(t *testing.T) *core.Coordinator {
	coord := core.NewCoordinator(context.Background(), f.reg, core.CoordinatorConfig{OpTimeoutMs: 5000, CommitRetries: 20})
	t.Cleanup(coord.StopAndWaitForExit)
	return coord
}

// checkWorkingSet fails unless the Working set is empty or one whole class quorum.
func checkWorkingSet(t *testing.T, snap *registry.Snapshot) {
	working := snap.ListByState(data.WS_Working)
	if len(working) == 0 {
		return
	}
	class := working[0].Class
	for _, w := range working {
		assert.Equal(t, class, w.Class, "mixed group")
	}
	assert.Equal(t, class.Quorum(), len(working), "partial group")
}

func TestSimulationKeepsGroupsWhole(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f := newFixture(t)
	coord := f.newCoordinator(t)
	sim := NewSimulation(coord, f.tracker, SimConfig{Reindeer: 9, Elves: 7, PollIntervalMs: 2, DispatchIntervalMs: 5})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.NoError(t, sim.Run(ctx))
	}()

	before, _ := core.ReleaseCtMetric.GetTimeSequence(ctx, "completed").Get()
	seen := map[data.WorkerClass]bool{}
	assert.Eventually(t, func() bool {
		snap, err := f.reg.Snapshot(ctx)
		if err != nil {
			return false
		}
		checkWorkingSet(t, snap)
		if snap.Group != nil {
			seen[snap.Group.Class] = true
		}
		released, _ := core.ReleaseCtMetric.GetTimeSequence(ctx, "completed").Get()
		return released-before >= 6 && seen[data.WC_Reindeer] && seen[data.WC_Elves]
	}, 20*time.Second, time.Millisecond)

	cancel()
	wg.Wait()
}

func TestTwoSimulationsOneStore(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f := newFixture(t)
	// the second process runs without santa, as when a second terminal only adds workers
	simA := NewSimulation(f.newCoordinator(t), f.tracker, SimConfig{Reindeer: 5, Elves: 2, PollIntervalMs: 2, DispatchIntervalMs: 5})
	simB := NewSimulation(f.newCoordinator(t), speed.NewTracker(f.store), SimConfig{Reindeer: 4, Elves: 2, NoSanta: true, PollIntervalMs: 2, DispatchIntervalMs: 5})

	var wg sync.WaitGroup
	for _, s := range []*Simulation{simA, simB} {
		s := s
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.Run(ctx))
		}()
	}

	before, _ := core.ReleaseCtMetric.GetTimeSequence(ctx, "completed").Get()
	assert.Eventually(t, func() bool {
		snap, err := f.reg.Snapshot(ctx)
		if err != nil {
			return false
		}
		checkWorkingSet(t, snap)
		released, _ := core.ReleaseCtMetric.GetTimeSequence(ctx, "completed").Get()
		return released-before >= 4
	}, 20*time.Second, time.Millisecond)

	cancel()
	wg.Wait()
}

func TestSimulationResetFirst(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f := newFixture(t)
	coord := f.newCoordinator(t)
	for i := 0; i < 4; i++ {
		_, err := f.reg.Create(ctx, data.WC_Elves, "leftover")
		require.NoError(t, err)
	}
	sim := NewSimulation(coord, f.tracker, SimConfig{Reset: true, NoSanta: true, PollIntervalMs: 2, DispatchIntervalMs: 5})
	done := make(chan error, 1)
	go func() { done <- sim.Run(ctx) }()

	assert.Eventually(t, func() bool {
		snap, err := f.reg.Snapshot(ctx)
		return err == nil && len(snap.Workers) == 0
	}, 5*time.Second, time.Millisecond)
	cancel()
	assert.NoError(t, <-done)

	cfg, err := f.store.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 100.0, cfg.WorkSpeed)
}
