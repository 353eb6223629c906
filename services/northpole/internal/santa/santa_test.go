package santa

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xinkaiwang/northpole/libs/xklib/klogging"
	"github.com/xinkaiwang/northpole/services/northpole/internal/config"
	"github.com/xinkaiwang/northpole/services/northpole/internal/core"
	"github.com/xinkaiwang/northpole/services/northpole/internal/data"
	"github.com/xinkaiwang/northpole/services/northpole/internal/etcdprov"
	"github.com/xinkaiwang/northpole/services/northpole/internal/registry"
)

func newTestCoordinator(t *testing.T) *core.Coordinator {
	reg := registry.NewRegistry(etcdprov.NewFakeEtcdProvider(), config.NewPathManager("/np"))
	coord := core.NewCoordinator(context.Background(), reg, core.CoordinatorConfig{OpTimeoutMs: 5000, CommitRetries: 10})
	t.Cleanup(coord.StopAndWaitForExit)
	return coord
}

func TestTryOnceLogsCommand(t *testing.T) {
	logger := klogging.NewMemoryLogger(klogging.InfoLevel)
	klogging.SetDefaultLogger(logger)
	defer klogging.SetDefaultLogger(&klogging.BasicLogger{LogLevel: klogging.InfoLevel})

	ctx := context.Background()
	coord := newTestCoordinator(t)
	s := NewSanta(coord, 1000)
	assert.Nil(t, s.TryOnce(ctx))

	for i := 0; i < 9; i++ {
		_, err := coord.Registry().Create(ctx, data.WC_Reindeer, "test")
		require.NoError(t, err)
	}
	result := s.TryOnce(ctx)
	require.NotNil(t, result)
	assert.Equal(t, data.WC_Reindeer, result.Class)
	assert.Equal(t, 1, logger.CountEvents("SantaDispatched"))
	for _, entry := range logger.Entries {
		if entry.LogType == "SantaDispatched" {
			assert.Equal(t, "Ho! Ho! Ho! let's deliver toys", entry.Msg)
		}
	}
}

func TestRunReactsToWatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	coord := newTestCoordinator(t)
	// long interval, so only the watch can trigger the dispatch in time
	s := NewSanta(coord, 60000)
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	for i := 0; i < 3; i++ {
		_, err := coord.Registry().Create(ctx, data.WC_Elves, "test")
		require.NoError(t, err)
	}
	assert.Eventually(t, func() bool {
		state, err := coord.SystemState(ctx)
		return err == nil && state == data.SS_Active
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("santa did not stop")
	}
}
