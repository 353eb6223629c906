package data

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/xinkaiwang/northpole/libs/xklib/kcommon"
	"github.com/xinkaiwang/northpole/libs/xklib/kerror"
)

func TestWorkerClassQuorum(t *testing.T) {
	assert.Equal(t, 9, WC_Reindeer.Quorum())
	assert.Equal(t, 3, WC_Elves.Quorum())
	assert.Equal(t, 0, WorkerClass("gnomes").Quorum())
}

func TestWorkerClassEligible(t *testing.T) {
	assert.False(t, WC_Reindeer.Eligible(8))
	assert.True(t, WC_Reindeer.Eligible(9))
	assert.False(t, WC_Elves.Eligible(2))
	assert.True(t, WC_Elves.Eligible(3))
	assert.True(t, WC_Elves.Eligible(7))
}

func TestParseWorkerClass(t *testing.T) {
	assert.Equal(t, WC_Elves, ParseWorkerClass("Elf"))
	assert.Equal(t, WC_Reindeer, ParseWorkerClass(" reindeer "))
	ke := kcommon.TryCatchRun(context.Background(), func() { ParseWorkerClass("gnomes") })
	assert.NotNil(t, ke)
	assert.Equal(t, kerror.EC_INVALID_PARAMETER, ke.ErrorCode)
}

func TestParseWorkerState(t *testing.T) {
	assert.Equal(t, WS_Vacationing, ParseWorkerState("vacationing"))
	assert.Panics(t, func() { ParseWorkerState("sleeping") })
}

func TestNewWorkerIdUnique(t *testing.T) {
	seen := map[WorkerId]bool{}
	for i := 0; i < 100; i++ {
		id := NewWorkerId()
		assert.False(t, seen[id])
		seen[id] = true
	}
	assert.Len(t, NewWorkerId().ShortId(), 8)
}
