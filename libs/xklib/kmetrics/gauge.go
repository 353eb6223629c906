package kmetrics

import (
	"context"

	"github.com/xinkaiwang/northpole/libs/xklib/kerror"
	"go.opencensus.io/metric"
	"go.opencensus.io/metric/metricdata"
)

var gaugeRegistry = metric.NewRegistry()

// GetGaugeRegistry holds derived gauges, add it to metricproducer next to the kmetrics registry.
func GetGaugeRegistry() *metric.Registry {
	return gaugeRegistry
}

// Int64GaugeFamily is one derived gauge with a fixed set of label keys.
type Int64GaugeFamily struct {
	name  string
	gauge *metric.Int64DerivedGauge
}

func CreateInt64GaugeFamily(ctx context.Context, r *metric.Registry, gaugeName string, description string, labelKeys ...string) *Int64GaugeFamily {
	gauge, err := r.AddInt64DerivedGauge(gaugeName,
		metric.WithDescription(description),
		metric.WithUnit(metricdata.UnitDimensionless),
		metric.WithLabelKeys(labelKeys...),
	)
	if err != nil {
		panic(kerror.Wrap(err, "MetricProducerFail", "error creating gauge", false).With("gaugeName", gaugeName))
	}
	return &Int64GaugeFamily{name: gaugeName, gauge: gauge}
}

// Upsert makes fn the value source for the given label values.
func (gf *Int64GaugeFamily) Upsert(fn func() int64, values ...string) {
	labelValues := make([]metricdata.LabelValue, 0, len(values))
	for _, v := range values {
		labelValues = append(labelValues, metricdata.NewLabelValue(v))
	}
	if err := gf.gauge.UpsertEntry(fn, labelValues...); err != nil {
		panic(kerror.Wrap(err, "UpsertEntryFail", "error gauge UpsertEntry", false).With("gaugeName", gf.name))
	}
}
