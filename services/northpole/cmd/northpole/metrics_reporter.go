package main

import (
	"context"
	"strconv"

	"github.com/xinkaiwang/northpole/libs/xklib/kmetrics"
)

var (
	LogSizeBytesMetric = kmetrics.CreateKmetric(context.Background(), "klogging_volume_byte", "bytes of written log entries", []string{"level", "event"})
	LogEventCtMetric   = kmetrics.CreateKmetric(context.Background(), "klogging_event_ct", "log events at debug and above, skipped ones included", []string{"level", "event", "logged"}).CountOnly()
)

// logMetricsReporter implements klogging.LoggerMetricsReporter
type logMetricsReporter struct{}

func (logMetricsReporter) ReportLogSizeBytes(ctx context.Context, size int, logLevel, eventType string) {
	LogSizeBytesMetric.GetTimeSequence(ctx, logLevel, eventType).Add(int64(size))
}

func (logMetricsReporter) ReportLogErrorCount(ctx context.Context, count int, logLevel, eventType string, isLogged bool) {
	LogEventCtMetric.GetTimeSequence(ctx, logLevel, eventType, strconv.FormatBool(isLogged)).Add(int64(count))
}
