package agent

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
)

type fixedDelays struct {
	workMs     int
	vacationMs int
}

func (d fixedDelays) WorkDelayMs(ctx context.Context) int     { return d.workMs }
func (d fixedDelays) VacationDelayMs(ctx context.Context) int { return d.vacationMs }

func newTestCoordinator(t *testing.T) *core.Coordinator {
	reg := registry.NewRegistry(etcdprov.NewFakeEtcdProvider(), config.NewPathManager("/np"))
	coord := core.NewCoordinator(context.Background(), reg, core.CoordinatorConfig{OpTimeoutMs: 5000, CommitRetries: 10})
	t.Cleanup(coord.StopAndWaitForExit)
	return coord
}

func startAgents(ctx context.Context, coord *core.Coordinator, class data.WorkerClass, n int, wg *sync.WaitGroup) []*Agent {
	var agents []*Agent
	for i := 0; i < n; i++ {
		a := NewAgent(ctx, class, coord, fixedDelays{workMs: 1, vacationMs: 1}, 5)
		agents = append(agents, a)
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.Run(ctx)
		}()
	}
	return agents
}

func TestAgentsCycleThroughGroups(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	coord := newTestCoordinator(t)
	var wg sync.WaitGroup
	startAgents(ctx, coord, data.WC_Elves, 3, &wg)

	before, _ := core.ReleaseCtMetric.GetTimeSequence(ctx, "completed").Get()
	dispatched := 0
	assert.Eventually(t, func() bool {
		result, err := coord.TryDispatch(ctx)
		assert.NoError(t, err)
		if result != nil {
			dispatched++
		}
		released, _ := core.ReleaseCtMetric.GetTimeSequence(ctx, "completed").Get()
		return released-before >= 2
	}, 10*time.Second, 5*time.Millisecond)
	assert.GreaterOrEqual(t, dispatched, 2)

	cancel()
	wg.Wait()
}

func TestAgentStopsWhenWorkerGone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	coord := newTestCoordinator(t)
	var wg sync.WaitGroup
	agents := startAgents(ctx, coord, data.WC_Reindeer, 2, &wg)

	assert.Eventually(t, func() bool {
		list, err := coord.Registry().ListByClassAndState(ctx, data.WC_Reindeer, data.WS_Ready)
		return err == nil && len(list) == 2
	}, 5*time.Second, 5*time.Millisecond)

	_, err := coord.Reset(ctx)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("agents did not stop after reset")
	}
	for _, a := range agents {
		assert.NotEmpty(t, a.Id())
	}
}

func TestActivity(t *testing.T) {
	assert.Equal(t, "delivering toys", Activity(data.WC_Reindeer))
	assert.Equal(t, "meeting in the study", Activity(data.WC_Elves))
}
