package klogging

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"github.com/xinkaiwang/northpole/libs/xklib/kerror"
)

// LogrusLogger implements Logger on top of logrus.
// The level threshold is evaluated here; the inner logrus logger accepts everything.
type LogrusLogger struct {
	ctx             context.Context
	RusLogger       *logrus.Logger
	logLevel        atomic.Uint32
	logFormat       atomic.Uint32
	metricsReporter LoggerMetricsReporter
}

// LoggerMetricsReporter receives log volume and per-event counts. klogging cannot import kmetrics, the caller wires one in.
type LoggerMetricsReporter interface {
	// bytes of logged entries only
	ReportLogSizeBytes(ctx context.Context, size int, logLevel, eventType string)
	// debug and above, including entries dropped by the level threshold
	ReportLogErrorCount(ctx context.Context, count int, logLevel, eventType string, isLogged bool)
}

// TimestampFormat: ms resolution, timezone, sortable.
const TimestampFormat = "2006-01-02T15:04:05.999Z07:00"

func NewLogrusLogger(ctx context.Context) *LogrusLogger {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{
		DisableColors:   true,
		TimestampFormat: TimestampFormat,
		FullTimestamp:   true,
	})
	log.SetLevel(logrus.TraceLevel)
	logger := &LogrusLogger{ctx: ctx, RusLogger: log}
	logger.logLevel.Store(uint32(InfoLevel))
	logger.logFormat.Store(uint32(TextFormat))
	return logger
}

func (logger *LogrusLogger) WithOutput(w io.Writer) *LogrusLogger {
	logger.RusLogger.SetOutput(w)
	return logger
}

// WithMetricsReporter must be called before the logger is installed with SetDefaultLogger.
func (logger *LogrusLogger) WithMetricsReporter(reporter LoggerMetricsReporter) *LogrusLogger {
	logger.metricsReporter = reporter
	return logger
}

type LogFormat uint32

const (
	TextFormat LogFormat = iota + 1
	JsonFormat
	SimpleFormat
)

func (e LogFormat) String() string {
	switch e {
	case TextFormat:
		return "text"
	case JsonFormat:
		return "json"
	case SimpleFormat:
		return "simple"
	default:
		return fmt.Sprintf("%d", int(e))
	}
}

// ParseLogFormat panics with a kerror on unknown input.
func ParseLogFormat(str string) LogFormat {
	switch {
	case strings.EqualFold("text", str):
		return TextFormat
	case strings.EqualFold("json", str):
		return JsonFormat
	case strings.EqualFold("simple", str):
		return SimpleFormat
	}
	panic(kerror.Create("UnknownLogFormat", "parse log format failed").With("str", str).WithErrorCode(kerror.EC_INVALID_PARAMETER))
}

// SetConfig: level is one of fatal/error/warn/info/debug/verbose, format one of text/json/simple.
// Invalid values are logged and ignored.
func (logger *LogrusLogger) SetConfig(ctx context.Context, newLevelStr string, newFormatStr string) (ret *LogrusLogger) {
	ret = logger
	defer func() {
		if r := recover(); r != nil {
			Warning(ctx).WithPanic(r).Log("UpdateLogConfigFailed", "log config not applied")
		}
	}()
	newLevel := ParseLogLevel(newLevelStr)
	newFormat := ParseLogFormat(newFormatStr)
	if old := Level(logger.logLevel.Swap(uint32(newLevel))); old != newLevel {
		Debug(ctx).With("oldLogLevel", old).With("newLogLevel", newLevel).Log("UpdateLogLevel", "")
	}
	if LogFormat(logger.logFormat.Load()) != newFormat {
		switch newFormat {
		case TextFormat:
			logger.RusLogger.SetFormatter(&logrus.TextFormatter{TimestampFormat: TimestampFormat, FullTimestamp: true})
		case JsonFormat:
			logger.RusLogger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: TimestampFormat})
		case SimpleFormat:
			logger.RusLogger.SetFormatter(NewSimpleFormatter())
		}
		logger.logFormat.Store(uint32(newFormat))
	}
	return logger
}

// Log implements Logger.
// Entries below the threshold still reach the reporter, they are counted but not written.
func (logger *LogrusLogger) Log(entry *LogEntry, shouldLog bool) {
	if logger.metricsReporter != nil {
		logger.report(entry, shouldLog)
	}
	if !shouldLog {
		return
	}
	fields := make(logrus.Fields, len(entry.Details)+1)
	for _, item := range entry.Details {
		fields[item.K] = item.V
	}
	fields["event"] = entry.LogType
	ent := logger.RusLogger.WithFields(fields)
	ent.Time = entry.Timestamp
	ent.Log(logrus.Level(int(entry.Level)), entry.Msg)
}

func (logger *LogrusLogger) Level() Level {
	return Level(logger.logLevel.Load())
}

func (logger *LogrusLogger) report(entry *LogEntry, shouldLog bool) {
	level := entry.Level.String()
	if shouldLog {
		size := len(entry.Msg) + len(entry.LogType)
		for _, item := range entry.Details {
			size += len(item.K) + estimateLength(item.V)
		}
		logger.metricsReporter.ReportLogSizeBytes(logger.ctx, size, level, entry.LogType)
	}
	if NeedLog(entry.Level, DebugLevel) {
		logger.metricsReporter.ReportLogErrorCount(logger.ctx, 1, level, entry.LogType, shouldLog)
	}
}

func estimateLength(v interface{}) int {
	switch val := v.(type) {
	case string:
		return len(val)
	case fmt.Stringer:
		return len(val.String())
	default:
		return len(fmt.Sprintf("%+v", v))
	}
}
