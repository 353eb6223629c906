package kcommon

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/xinkaiwang/northpole/libs/xklib/kerror"
)

func TestTryCatchRunKerror(t *testing.T) {
	ctx := context.Background()
	ke := TryCatchRun(ctx, func() {
		panic(kerror.Create("WorkerNotFound", "").WithErrorCode(kerror.EC_NOT_FOUND))
	})
	assert.NotNil(t, ke)
	assert.Equal(t, "WorkerNotFound", ke.Type)
	assert.Equal(t, kerror.EC_NOT_FOUND, ke.ErrorCode)
}

func TestTryCatchRunPlainError(t *testing.T) {
	ke := TryCatchRun(context.Background(), func() {
		panic(errors.New("boom"))
	})
	assert.Equal(t, "UnknownError", ke.Type)
	assert.Equal(t, kerror.EC_INTERNAL_ERROR, ke.ErrorCode)
}

func TestTryCatchRunNonError(t *testing.T) {
	ke := TryCatchRun(context.Background(), func() {
		panic("not an error")
	})
	assert.Equal(t, "NonErrorPanic", ke.Type)
}

func TestTryCatchRunNoPanic(t *testing.T) {
	ran := false
	ke := TryCatchRun(context.Background(), func() { ran = true })
	assert.Nil(t, ke)
	assert.True(t, ran)
	assert.NoError(t, TryCatchRunErr(context.Background(), func() {}))
}

func TestSleepMsCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, SleepMs(ctx, 10000))
}

func TestMockTimeProvider(t *testing.T) {
	mock := NewMockTimeProvider(1000)
	RunWithTimeProvider(mock, func() {
		assert.True(t, SleepMs(context.Background(), 250))
		assert.Equal(t, int64(1250), GetWallTimeMs())
	})
}

func TestRandomIntRange(t *testing.T) {
	ctx := context.Background()
	for i := 0; i < 100; i++ {
		v := RandomInt(ctx, 5)
		assert.GreaterOrEqual(t, v, 0)
		assert.Less(t, v, 5)
	}
	assert.Equal(t, 0, RandomInt(ctx, 0))
}

func TestGetEnv(t *testing.T) {
	t.Setenv("NP_TEST_INT", "42")
	t.Setenv("NP_TEST_BAD", "x")
	assert.Equal(t, 42, GetEnvInt("NP_TEST_INT", 1))
	assert.Equal(t, 1, GetEnvInt("NP_TEST_BAD", 1))
	assert.Equal(t, "dflt", GetEnvString("NP_TEST_MISSING", "dflt"))
	assert.Equal(t, true, GetEnvBool("NP_TEST_MISSING", true))
}
