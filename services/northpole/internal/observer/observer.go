package observer

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/xinkaiwang/northpole/libs/xklib/kcommon"
	"github.com/xinkaiwang/northpole/libs/xklib/kerror"
	"github.com/xinkaiwang/northpole/libs/xklib/klogging"
	"github.com/xinkaiwang/northpole/libs/xklib/kmetrics"
	"github.com/xinkaiwang/northpole/services/northpole/api"
	"github.com/xinkaiwang/northpole/services/northpole/internal/data"
	"github.com/xinkaiwang/northpole/services/northpole/internal/registry"
	"go.opencensus.io/metric"
)

const (
	// one scrape reads every workers{class,state} entry, they share a summary this young
	GaugeMaxAgeMs    = 1000
	gaugeReadTimeout = 2 * time.Second
)

// Observer folds one registry snapshot into per-class counts. It never writes.
type Observer struct {
	reg  *registry.Registry
	last atomic.Pointer[summary]
}

type summary struct {
	status *api.StatusJson
	atMs   int64
}

func NewObserver(reg *registry.Registry) *Observer {
	return &Observer{reg: reg}
}

func (o *Observer) Summarize(ctx context.Context) (ret *api.StatusJson, err error) {
	err = kcommon.TryCatchRunErr(ctx, func() {
		snap, err := o.reg.Snapshot(ctx)
		if err != nil {
			panic(err)
		}
		ret = Summarize(snap)
		o.last.Store(&summary{status: ret, atMs: kcommon.GetMonoTimeMs()})
	})
	return
}

// Last is the most recent successful summary, nil before the first one.
func (o *Observer) Last() *api.StatusJson {
	if s := o.last.Load(); s != nil {
		return s.status
	}
	return nil
}

// Recent returns Last when it is at most maxAgeMs old, otherwise reads a fresh one.
func (o *Observer) Recent(ctx context.Context, maxAgeMs int64) (*api.StatusJson, error) {
	if s := o.last.Load(); s != nil && kcommon.GetMonoTimeMs()-s.atMs <= maxAgeMs {
		return s.status, nil
	}
	return o.Summarize(ctx)
}

// Summarize panics EC_INTERNAL_ERROR on a worker of unknown class or state.
func Summarize(snap *registry.Snapshot) *api.StatusJson {
	status := &api.StatusJson{
		PerClass:    make(map[string]api.ClassCounts, len(data.AllWorkerClasses)),
		SystemState: string(snap.SystemState()),
		Revision:    int64(snap.Revision),
	}
	for _, class := range data.AllWorkerClasses {
		status.PerClass[string(class)] = api.ClassCounts{}
	}
	for _, w := range snap.Workers {
		counts, ok := status.PerClass[string(w.Class)]
		if !ok {
			panic(kerror.Create("UnknownWorkerClass", "uh, what kind of job is this?").
				With("workerId", w.Id).
				With("class", w.Class).
				WithErrorCode(kerror.EC_INTERNAL_ERROR))
		}
		switch w.State {
		case data.WS_Ready:
			counts.Ready++
		case data.WS_Working:
			counts.Working++
		case data.WS_Vacationing:
			counts.Vacationing++
		default:
			panic(kerror.Create("UnknownWorkerState", "worker state not recognised").
				With("workerId", w.Id).
				With("state", w.State).
				WithErrorCode(kerror.EC_INTERNAL_ERROR))
		}
		status.PerClass[string(w.Class)] = counts
	}
	if g := snap.Group; g != nil {
		status.ActiveGroup = &api.GroupVm{
			GroupId:   string(g.GroupId),
			Class:     string(g.Class),
			Members:   idStrings(g.Members),
			Done:      idStrings(g.Done),
			StartedMs: g.StartedAtMs,
		}
	}
	return status
}

func idStrings(ids []data.WorkerId) []string {
	ret := make([]string, 0, len(ids))
	for _, id := range ids {
		ret = append(ret, string(id))
	}
	return ret
}

// RegisterGauges exports workers{class,state} into r. Each read refreshes the summary once it is older than GaugeMaxAgeMs.
// A failed read keeps exporting the previous summary.
func (o *Observer) RegisterGauges(ctx context.Context, r *metric.Registry) {
	family := kmetrics.CreateInt64GaugeFamily(ctx, r, "workers", "workers by class and state", "class", "state")
	for _, class := range data.AllWorkerClasses {
		for _, state := range data.AllWorkerStates {
			class, state := class, state
			family.Upsert(func() int64 {
				status := o.gaugeStatus(ctx)
				if status == nil {
					return 0
				}
				return int64(pick(status.PerClass[string(class)], state))
			}, string(class), string(state))
		}
	}
}

func (o *Observer) gaugeStatus(ctx context.Context) *api.StatusJson {
	readCtx, cancel := context.WithTimeout(ctx, gaugeReadTimeout)
	defer cancel()
	status, err := o.Recent(readCtx, GaugeMaxAgeMs)
	if err != nil {
		klogging.Warning(ctx).WithError(err).Log("GaugeRefreshFailed", "exporting previous summary")
		return o.Last()
	}
	return status
}

func pick(counts api.ClassCounts, state data.WorkerStateEnum) int {
	switch state {
	case data.WS_Ready:
		return counts.Ready
	case data.WS_Working:
		return counts.Working
	case data.WS_Vacationing:
		return counts.Vacationing
	}
	return 0
}
