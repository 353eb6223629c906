package ksysmetrics

import (
	"context"
	"fmt"
	"math"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/xinkaiwang/northpole/libs/xklib/kerror"
	"github.com/xinkaiwang/northpole/libs/xklib/klogging"
	"go.opencensus.io/metric"
	"go.opencensus.io/metric/metricdata"
)

var (
	registry = metric.NewRegistry()
	once     sync.Once

	userCPU    float64Value
	systemCPU  float64Value
	heapAlloc  atomic.Int64
	stackInuse atomic.Int64
	sysMem     atomic.Int64
	goroutines atomic.Int64
	openFds    atomic.Int64
	gcPauseNs  atomic.Int64
	gcLastMs   atomic.Int64
	gcFraction float64Value
)

type float64Value struct {
	bits atomic.Uint64
}

func (v *float64Value) Store(f float64) { v.bits.Store(math.Float64bits(f)) }
func (v *float64Value) Load() float64   { return math.Float64frombits(v.bits.Load()) }

// GetRegistry holds the process gauges, add it to metricproducer. Empty until StartSysMetricsCollector.
func GetRegistry() *metric.Registry {
	return registry
}

// StartSysMetricsCollector registers the process gauges (CPU ones labelled with version) and refreshes them every interval until ctx is done.
// Only the first call has an effect.
func StartSysMetricsCollector(ctx context.Context, interval time.Duration, version string) {
	once.Do(func() {
		if version == "" {
			version = "unknown"
		}
		registerGauges(version)
		Collect(ctx)
		go func() {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					Collect(ctx)
				}
			}
		}()
	})
}

func registerGauges(version string) {
	versionLabel := metricdata.NewLabelValue(version)
	addFloat64("process_user_cpu_seconds", "user CPU time in seconds", metricdata.UnitDimensionless, userCPU.Load, versionLabel)
	addFloat64("process_system_cpu_seconds", "system CPU time in seconds", metricdata.UnitDimensionless, systemCPU.Load, versionLabel)
	addInt64("process_heap_bytes", "heap in use", metricdata.UnitBytes, heapAlloc.Load)
	addInt64("process_stack_bytes", "stack in use", metricdata.UnitBytes, stackInuse.Load)
	addInt64("process_resident_memory_bytes", "memory obtained from the OS", metricdata.UnitBytes, sysMem.Load)
	addInt64("process_goroutines", "number of goroutines", metricdata.UnitDimensionless, goroutines.Load)
	addInt64("process_open_fds", "open file descriptors", metricdata.UnitDimensionless, openFds.Load)
	addInt64("process_gc_pause_total_ns", "total GC pause", metricdata.UnitDimensionless, gcPauseNs.Load)
	addInt64("process_gc_last_ms", "wall time of the last GC in unix ms", metricdata.UnitMilliseconds, gcLastMs.Load)
	addFloat64("process_gc_cpu_fraction", "fraction of CPU used by GC", metricdata.UnitDimensionless, gcFraction.Load, versionLabel)
}

func addInt64(name, desc string, unit metricdata.Unit, fn func() int64) {
	gauge, err := registry.AddInt64DerivedGauge(name, metric.WithDescription(desc), metric.WithUnit(unit))
	if err == nil {
		err = gauge.UpsertEntry(fn)
	}
	if err != nil {
		panic(kerror.Wrap(err, "MetricProducerFail", "error creating gauge", false).With("gaugeName", name))
	}
}

func addFloat64(name, desc string, unit metricdata.Unit, fn func() float64, version metricdata.LabelValue) {
	gauge, err := registry.AddFloat64DerivedGauge(name, metric.WithDescription(desc), metric.WithUnit(unit), metric.WithLabelKeys("version"))
	if err == nil {
		err = gauge.UpsertEntry(fn, version)
	}
	if err != nil {
		panic(kerror.Wrap(err, "MetricProducerFail", "error creating gauge", false).With("gaugeName", name))
	}
}

// Collect takes one sample.
func Collect(ctx context.Context) {
	var rusage syscall.Rusage
	if err := syscall.Getrusage(syscall.RUSAGE_SELF, &rusage); err == nil {
		userCPU.Store(time.Duration(rusage.Utime.Nano()).Seconds())
		systemCPU.Store(time.Duration(rusage.Stime.Nano()).Seconds())
	} else {
		klogging.Warning(ctx).WithError(err).Log("CPUMetricsError", "getrusage failed")
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	heapAlloc.Store(int64(mem.HeapAlloc))
	stackInuse.Store(int64(mem.StackInuse))
	sysMem.Store(int64(mem.Sys))
	gcPauseNs.Store(int64(mem.PauseTotalNs))
	gcLastMs.Store(int64(mem.LastGC / 1e6))
	gcFraction.Store(mem.GCCPUFraction)
	goroutines.Store(int64(runtime.NumGoroutine()))

	// no /proc outside linux, the fd gauge stays 0
	if fds, err := os.ReadDir(fmt.Sprintf("/proc/%d/fd", os.Getpid())); err == nil {
		openFds.Store(int64(len(fds)))
	}
}
