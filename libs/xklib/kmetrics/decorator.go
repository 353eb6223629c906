package kmetrics

import (
	"context"
	"time"

	"github.com/xinkaiwang/northpole/libs/xklib/kerror"
	"github.com/xinkaiwang/northpole/libs/xklib/klogging"
)

var (
	OpsLatencyMetric = CreateKmetric(context.Background(), "op_latency_ms", "latency of instrumented operations", []string{"method", "status", "error"})
)

// FuncTypeVoid reports failure by panicking with a *kerror.Kerror.
type FuncTypeVoid func()

// FuncTypeError reports failure through its return value.
type FuncTypeError func(ctx context.Context) error

func invokeFuncVoid(ctx context.Context, ef FuncTypeVoid) (ke *kerror.Kerror) {
	defer func() {
		if r := recover(); r != nil {
			switch v := r.(type) {
			case *kerror.Kerror:
				ke = v
			case error:
				ke = kerror.Wrap(v, "InternalServerError", v.Error(), true).WithErrorCode(kerror.EC_INTERNAL_ERROR)
			default:
				klogging.Fatal(ctx).WithPanic(v).Log("InvalidPanic", "invalid panic with non-error value")
			}
		}
	}()
	ef()
	return
}

func record(ctx context.Context, method string, startTime time.Time, err error) {
	status, errType := "OK", ""
	if err != nil {
		status = "ERROR"
		errType = "unknown"
		if ke, ok := err.(*kerror.Kerror); ok {
			errType = ke.Type
		}
	}
	OpsLatencyMetric.GetTimeSequence(ctx, method, status, errType).Add(time.Since(startTime).Milliseconds())
}

// InstrumentSummaryRunVoid records latency of ef and re-panics its kerror, if any.
func InstrumentSummaryRunVoid(ctx context.Context, method string, ef FuncTypeVoid) {
	startTime := time.Now()
	ke := invokeFuncVoid(ctx, ef)
	if ke != nil {
		record(ctx, method, startTime, ke)
		panic(ke)
	}
	record(ctx, method, startTime, nil)
}

// InstrumentSummaryRunError records latency of ef and returns its error unchanged.
func InstrumentSummaryRunError(ctx context.Context, method string, ef FuncTypeError) error {
	startTime := time.Now()
	err := ef(ctx)
	record(ctx, method, startTime, err)
	return err
}
