package kcommon

import (
	"context"
	"time"
)

var (
	currentTimeProvider TimeProvider = NewSystemTimeProvider()
)

type TimeProvider interface {
	GetWallTimeMs() int64
	GetMonoTimeMs() int64
	ScheduleRun(delayMs int, fn func())
	// SleepMs returns false if ctx got canceled before ms elapsed.
	SleepMs(ctx context.Context, ms int) bool
}

func RunWithTimeProvider(tp TimeProvider, fn func()) {
	old := currentTimeProvider
	currentTimeProvider = tp
	defer func() {
		currentTimeProvider = old
	}()
	fn()
}

func GetWallTimeMs() int64 {
	return currentTimeProvider.GetWallTimeMs()
}

func GetMonoTimeMs() int64 {
	return currentTimeProvider.GetMonoTimeMs()
}

func ScheduleRun(delayMs int, fn func()) {
	currentTimeProvider.ScheduleRun(delayMs, fn)
}

func SleepMs(ctx context.Context, ms int) bool {
	return currentTimeProvider.SleepMs(ctx, ms)
}

// SystemTimeProvider implements TimeProvider with the real clock.
type SystemTimeProvider struct {
	startTime time.Time
}

func NewSystemTimeProvider() *SystemTimeProvider {
	return &SystemTimeProvider{
		startTime: time.Now(),
	}
}

func (provider *SystemTimeProvider) GetWallTimeMs() int64 {
	return time.Now().UnixMilli()
}

func (provider *SystemTimeProvider) GetMonoTimeMs() int64 {
	return time.Since(provider.startTime).Milliseconds()
}

func (provider *SystemTimeProvider) ScheduleRun(delayMs int, fn func()) {
	time.AfterFunc(time.Duration(delayMs)*time.Millisecond, fn)
}

func (provider *SystemTimeProvider) SleepMs(ctx context.Context, ms int) bool {
	if ms <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(time.Duration(ms) * time.Millisecond)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// MockTimeProvider: wall/mono clocks are set by hand, SleepMs advances them without blocking.
type MockTimeProvider struct {
	WallTime int64
	MonoTime int64
}

func NewMockTimeProvider(timeMs int64) *MockTimeProvider {
	return &MockTimeProvider{WallTime: timeMs, MonoTime: timeMs}
}

func (provider *MockTimeProvider) GetWallTimeMs() int64 {
	return provider.WallTime
}

func (provider *MockTimeProvider) GetMonoTimeMs() int64 {
	return provider.MonoTime
}

func (provider *MockTimeProvider) ScheduleRun(delayMs int, fn func()) {
	go fn()
}

func (provider *MockTimeProvider) AddTimeMs(diffMs int64) *MockTimeProvider {
	provider.MonoTime += diffMs
	provider.WallTime += diffMs
	return provider
}

func (provider *MockTimeProvider) SleepMs(ctx context.Context, ms int) bool {
	provider.AddTimeMs(int64(ms))
	return ctx.Err() == nil
}
