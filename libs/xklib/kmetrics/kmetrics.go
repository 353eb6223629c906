package kmetrics

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/xinkaiwang/northpole/libs/xklib/kerror"
	"github.com/xinkaiwang/northpole/libs/xklib/klogging"
	"go.opencensus.io/metric/metricdata"
	"go.opencensus.io/resource"
)

// Kmetric is one named metric. It exports "<name>_count" and, unless CountOnly, "<name>_sum".
// Every distinct combination of tag values is one TimeSequence.
type Kmetric struct {
	mu          sync.Mutex // held only while adding a TimeSequence
	metricName  string
	description string
	tagNames    []string
	collection  unsafe.Pointer
	startTime   time.Time
	countOnly   bool
}

func CreateKmetric(ctx context.Context, name string, description string, tags []string) *Kmetric {
	km := &Kmetric{
		metricName:  name,
		description: description,
		tagNames:    tags,
		startTime:   time.Now(),
	}
	km.collection = unsafe.Pointer(createTimeSequenceCollection())
	GetKmetricsRegistry().RegisterKmetric(km)
	return km
}

func (km *Kmetric) CountOnly() *Kmetric {
	km.countOnly = true
	return km
}

func (km *Kmetric) Name() string {
	return km.metricName
}

func makeSequenceKey(tags ...string) string {
	return strings.Join(tags, "-")
}

func (km *Kmetric) loadCollection() *timeSequenceCollection {
	return (*timeSequenceCollection)(atomic.LoadPointer(&km.collection))
}

// GetTimeSequence: tags must match tagNames in length and order.
func (km *Kmetric) GetTimeSequence(ctx context.Context, tags ...string) *TimeSequence {
	key := makeSequenceKey(tags...)
	if sequence, ok := km.loadCollection().dict[key]; ok {
		return sequence
	}

	km.mu.Lock()
	defer km.mu.Unlock()

	collection := km.loadCollection()
	if sequence, ok := collection.dict[key]; ok {
		return sequence
	}
	newCollection := createTimeSequenceCollection()
	for k, v := range collection.dict {
		newCollection.dict[k] = v
	}
	sequence := createTimeSequence(ctx, km, tags)
	newCollection.dict[key] = sequence
	atomic.StorePointer(&km.collection, unsafe.Pointer(newCollection))
	return sequence
}

func (km *Kmetric) read(suffix string, pick func(ts *TimeSequence) int64) *metricdata.Metric {
	keys := make([]metricdata.LabelKey, len(km.tagNames))
	for i, tagName := range km.tagNames {
		keys[i] = metricdata.LabelKey{Key: tagName}
	}
	timeSeries := []*metricdata.TimeSeries{}
	now := time.Now()
	for _, ts := range km.loadCollection().dict {
		timeSeries = append(timeSeries, &metricdata.TimeSeries{
			LabelValues: ts.labelValues,
			Points:      []metricdata.Point{metricdata.NewInt64Point(now, pick(ts))},
			StartTime:   km.startTime,
		})
	}
	return &metricdata.Metric{
		Descriptor: metricdata.Descriptor{
			Name:        km.metricName + suffix,
			Description: km.description,
			Unit:        metricdata.UnitDimensionless,
			Type:        metricdata.TypeCumulativeInt64,
			LabelKeys:   keys,
		},
		Resource:   &resource.Resource{Type: "northpole", Labels: map[string]string{}},
		TimeSeries: timeSeries,
	}
}

func (km *Kmetric) ReadSum() *metricdata.Metric {
	return km.read("_sum", func(ts *TimeSequence) int64 { return atomic.LoadInt64(&ts.sum) })
}

func (km *Kmetric) ReadCount() *metricdata.Metric {
	return km.read("_count", func(ts *TimeSequence) int64 { return atomic.LoadInt64(&ts.count) })
}

// timeSequenceCollection is immutable once published.
type timeSequenceCollection struct {
	dict map[string]*TimeSequence
}

func createTimeSequenceCollection() *timeSequenceCollection {
	return &timeSequenceCollection{dict: map[string]*TimeSequence{}}
}

type TimeSequence struct {
	tagValues   []string
	labelValues []metricdata.LabelValue
	count       int64
	sum         int64
}

func createTimeSequence(ctx context.Context, parent *Kmetric, tagValues []string) *TimeSequence {
	if len(tagValues) != len(parent.tagNames) {
		panic(kerror.Create("InvalidTagValues", "number of tag values does not match tag name list").
			With("metric", parent.metricName).
			With("expectedLen", len(parent.tagNames)).
			With("gotLen", len(tagValues)).
			WithErrorCode(kerror.EC_INVALID_PARAMETER))
	}
	values := make([]metricdata.LabelValue, len(tagValues))
	for i, item := range tagValues {
		values[i] = metricdata.NewLabelValue(item)
	}
	metricName := parent.metricName
	go func() {
		// logging may itself touch metrics, so keep it off the locked path
		klogging.Verbose(ctx).With("metricName", metricName).With("tags", tagValues).Log("CreateTimeSequence", "")
	}()
	return &TimeSequence{tagValues: tagValues, labelValues: values}
}

func (ts *TimeSequence) Add(val int64) {
	atomic.AddInt64(&ts.count, 1)
	atomic.AddInt64(&ts.sum, val)
}

// Touch makes the sequence show up as 0 before the first Add.
func (ts *TimeSequence) Touch() {}

func (ts *TimeSequence) Get() (count int64, sum int64) {
	return atomic.LoadInt64(&ts.count), atomic.LoadInt64(&ts.sum)
}
