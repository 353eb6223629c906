package kmetrics

import (
	"sync"
	"unsafe"

	"go.opencensus.io/metric/metricdata"
)

// KmetricsRegistry implements metricproducer.Producer.
type KmetricsRegistry struct {
	mu         sync.Mutex
	collection unsafe.Pointer
	globalTags map[string]string
}

func NewKmetricsRegistry() *KmetricsRegistry {
	return &KmetricsRegistry{
		collection: unsafe.Pointer(&kmetricsCollection{dict: map[string]*Kmetric{}}),
		globalTags: make(map[string]string),
	}
}

var kmetricsRegistry = NewKmetricsRegistry()

func GetKmetricsRegistry() *KmetricsRegistry {
	return kmetricsRegistry
}

type kmetricsCollection struct {
	dict map[string]*Kmetric
}

func (registry *KmetricsRegistry) RegisterKmetric(km *Kmetric) {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	old := (*kmetricsCollection)(registry.collection)
	next := &kmetricsCollection{dict: make(map[string]*Kmetric, len(old.dict)+1)}
	for k, v := range old.dict {
		next.dict[k] = v
	}
	next.dict[km.metricName] = km
	registry.collection = unsafe.Pointer(next)
}

// AddGlobalTag attaches key=value to every exported time series. Call before the exporter starts.
func (registry *KmetricsRegistry) AddGlobalTag(key, value string) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.globalTags[key] = value
}

func (registry *KmetricsRegistry) Read() []*metricdata.Metric {
	registry.mu.Lock()
	collection := (*kmetricsCollection)(registry.collection)
	registry.mu.Unlock()

	list := []*metricdata.Metric{}
	for _, v := range collection.dict {
		list = append(list, registry.attachGlobalTags(v.ReadCount()))
		if !v.countOnly {
			list = append(list, registry.attachGlobalTags(v.ReadSum()))
		}
	}
	return list
}

func (registry *KmetricsRegistry) attachGlobalTags(metric *metricdata.Metric) *metricdata.Metric {
	for key, value := range registry.globalTags {
		metric.Descriptor.LabelKeys = append(metric.Descriptor.LabelKeys, metricdata.LabelKey{Key: key})
		for _, ts := range metric.TimeSeries {
			ts.LabelValues = append(ts.LabelValues, metricdata.NewLabelValue(value))
		}
	}
	return metric
}
