package klogging

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/xinkaiwang/northpole/libs/xklib/kerror"
)

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, WarnLevel, ParseLogLevel("warning"))
	assert.Equal(t, VerboseLevel, ParseLogLevel("TRACE"))
	assert.Panics(t, func() { ParseLogLevel("loud") })
}

func TestNeedLog(t *testing.T) {
	assert.True(t, NeedLog(ErrorLevel, InfoLevel))
	assert.False(t, NeedLog(DebugLevel, InfoLevel))
}

func TestMemoryLoggerCollectsCtxInfo(t *testing.T) {
	logger := NewMemoryLogger(DebugLevel)
	SetDefaultLogger(logger)
	defer SetDefaultLogger(&BasicLogger{LogLevel: InfoLevel})

	ctx := EmbedTraceId(context.Background(), "T123")
	Info(ctx).With("class", "elves").Log("GroupPromoted", "")
	Verbose(ctx).Log("Dropped", "below threshold")

	assert.Equal(t, 1, logger.CountEvents("GroupPromoted"))
	assert.Equal(t, 0, logger.CountEvents("Dropped"))
	entry := logger.Entries[0]
	assert.Contains(t, entry.String(), "traceId=T123")
	assert.Contains(t, entry.String(), "class=elves")
}

func TestWithErrorKerror(t *testing.T) {
	logger := NewMemoryLogger(InfoLevel)
	SetDefaultLogger(logger)
	defer SetDefaultLogger(&BasicLogger{LogLevel: InfoLevel})

	ke := kerror.Create("QuorumMismatch", "bad").With("ready", 8).WithErrorCode(kerror.EC_PRECONDITION_FAILED)
	Error(context.Background()).WithError(ke).Log("DispatchFailed", "")
	str := logger.Entries[0].String()
	assert.Contains(t, str, "errorType=QuorumMismatch")
	assert.Contains(t, str, "errorCode=PRECONDITION_FAILED")
	assert.Contains(t, str, "ready=8")
}

func TestLogrusLoggerSimpleFormat(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer
	logger := NewLogrusLogger(ctx).WithOutput(&buf).SetConfig(ctx, "debug", "simple")
	SetDefaultLogger(logger)
	defer SetDefaultLogger(&BasicLogger{LogLevel: InfoLevel})

	Info(ctx).With("workerId", "w1").Log("WorkerReady", "back from vacation")
	out := buf.String()
	assert.Contains(t, out, "event=WorkerReady")
	assert.Contains(t, out, "msg='back from vacation'")
	assert.Contains(t, out, "workerId=w1")
	assert.Equal(t, DebugLevel, logger.Level())
}

func TestLogrusLoggerBadConfigIgnored(t *testing.T) {
	ctx := context.Background()
	logger := NewLogrusLogger(ctx).SetConfig(ctx, "nope", "json")
	assert.Equal(t, InfoLevel, logger.Level())
}

func TestFatalUsesOsProvider(t *testing.T) {
	exitCode := -1
	(&MockOsProvider{ExitCb: func(code int) { exitCode = code }}).SetAsDefault()
	defer func() { currentOsProvider = &systemOsProvider{} }()
	SetDefaultLogger(NewMemoryLogger(InfoLevel))
	defer SetDefaultLogger(&BasicLogger{LogLevel: InfoLevel})

	Fatal(context.Background()).Log("Boom", "")
	assert.Equal(t, 1, exitCode)
}

type countingReporter struct {
	bytes  map[string]int
	counts map[string]int
}

func (r *countingReporter) ReportLogSizeBytes(ctx context.Context, size int, logLevel, eventType string) {
	r.bytes[eventType] += size
}

func (r *countingReporter) ReportLogErrorCount(ctx context.Context, count int, logLevel, eventType string, isLogged bool) {
	key := eventType
	if !isLogged {
		key += "/skipped"
	}
	r.counts[key] += count
}

func TestLogrusLoggerMetricsReporter(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer
	reporter := &countingReporter{bytes: map[string]int{}, counts: map[string]int{}}
	logger := NewLogrusLogger(ctx).WithOutput(&buf).WithMetricsReporter(reporter)
	SetDefaultLogger(logger)
	defer SetDefaultLogger(&BasicLogger{LogLevel: InfoLevel})

	Info(ctx).With("class", "elves").Log("GroupPromoted", "")
	Debug(ctx).Log("CommitConflict", "retrying")
	Verbose(ctx).Log("Tick", "")

	assert.Equal(t, 1, reporter.counts["GroupPromoted"])
	assert.Equal(t, 1, reporter.counts["CommitConflict/skipped"])
	assert.Equal(t, 0, reporter.counts["Tick/skipped"])
	assert.Equal(t, len("GroupPromoted")+len("class")+len("elves"), reporter.bytes["GroupPromoted"])
	assert.Equal(t, 0, reporter.bytes["CommitConflict"])
	assert.NotContains(t, buf.String(), "CommitConflict")
}
