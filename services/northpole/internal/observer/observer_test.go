package observer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xinkaiwang/northpole/libs/xklib/kcommon"
	"github.com/xinkaiwang/northpole/services/northpole/internal/config"
	"github.com/xinkaiwang/northpole/services/northpole/internal/core"
	"github.com/xinkaiwang/northpole/services/northpole/internal/data"
	"github.com/xinkaiwang/northpole/services/northpole/internal/etcdprov"
	"github.com/xinkaiwang/northpole/services/northpole/internal/registry"
	"go.opencensus.io/metric"
)

func TestSummarizeCounts(t *testing.T) {
	ctx := context.Background()
	reg := registry.NewRegistry(etcdprov.NewFakeEtcdProvider(), config.NewPathManager("/np"))
	coord := core.NewCoordinator(ctx, reg, core.CoordinatorConfig{OpTimeoutMs: 5000, CommitRetries: 5})
	defer coord.StopAndWaitForExit()
	obs := NewObserver(reg)
	assert.Nil(t, obs.Last())

	for i := 0; i < 4; i++ {
		_, err := reg.Create(ctx, data.WC_Elves, "test")
		require.NoError(t, err)
	}
	for i := 0; i < 2; i++ {
		_, err := reg.Create(ctx, data.WC_Reindeer, "test")
		require.NoError(t, err)
	}
	status, err := obs.Summarize(ctx)
	require.NoError(t, err)
	assert.Equal(t, "idle", status.SystemState)
	assert.Nil(t, status.ActiveGroup)
	assert.Equal(t, 4, status.PerClass["elves"].Ready)
	assert.Equal(t, 2, status.PerClass["reindeer"].Ready)

	result, err := coord.TryDispatch(ctx)
	require.NoError(t, err)
	require.NotNil(t, result)
	status, err = obs.Summarize(ctx)
	require.NoError(t, err)
	assert.Equal(t, "active", status.SystemState)
	assert.Equal(t, 3, status.PerClass["elves"].Working)
	assert.Equal(t, 1, status.PerClass["elves"].Ready)
	assert.Equal(t, 4, status.PerClass["elves"].Total())
	require.NotNil(t, status.ActiveGroup)
	assert.Equal(t, string(result.GroupId), status.ActiveGroup.GroupId)
	assert.Len(t, status.ActiveGroup.Members, 3)
	assert.Same(t, status, obs.Last())

	_, err = coord.Reset(ctx)
	require.NoError(t, err)
	status, err = obs.Summarize(ctx)
	require.NoError(t, err)
	for _, class := range data.AllWorkerClasses {
		assert.Equal(t, 0, status.PerClass[string(class)].Total())
	}
	assert.Equal(t, "idle", status.SystemState)
}

func TestSummarizeUnknownClassPanics(t *testing.T) {
	snap := &registry.Snapshot{Workers: []*registry.Worker{
		{Id: "w1", Class: data.WorkerClass("gnomes"), State: data.WS_Ready},
	}}
	assert.Panics(t, func() { Summarize(snap) })
}

func readWorkersGauge(t *testing.T, r *metric.Registry, class, state string) int64 {
	for _, m := range r.Read() {
		if m.Descriptor.Name != "workers" {
			continue
		}
		for _, ts := range m.TimeSeries {
			if ts.LabelValues[0].Value == class && ts.LabelValues[1].Value == state {
				return ts.Points[0].Value.(int64)
			}
		}
	}
	t.Fatalf("no workers{%s,%s} series", class, state)
	return 0
}

func TestGaugesReadThroughWithoutStatusCalls(t *testing.T) {
	ctx := context.Background()
	reg := registry.NewRegistry(etcdprov.NewFakeEtcdProvider(), config.NewPathManager("/np"))
	obs := NewObserver(reg)
	gauges := metric.NewRegistry()
	obs.RegisterGauges(ctx, gauges)

	clock := kcommon.NewMockTimeProvider(1_000_000)
	kcommon.RunWithTimeProvider(clock, func() {
		for i := 0; i < 3; i++ {
			_, err := reg.Create(ctx, data.WC_Elves, "test")
			require.NoError(t, err)
		}
		// nobody called Summarize, the scrape reads the store itself
		assert.Equal(t, int64(3), readWorkersGauge(t, gauges, "elves", "ready"))
		assert.Equal(t, int64(0), readWorkersGauge(t, gauges, "reindeer", "ready"))
		require.NotNil(t, obs.Last())

		_, err := reg.Create(ctx, data.WC_Elves, "test")
		require.NoError(t, err)
		// still within the cache window
		assert.Equal(t, int64(3), readWorkersGauge(t, gauges, "elves", "ready"))

		clock.AddTimeMs(GaugeMaxAgeMs + 1)
		assert.Equal(t, int64(4), readWorkersGauge(t, gauges, "elves", "ready"))
	})
}
