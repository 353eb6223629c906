package registry

import (
	"sort"

	"github.com/xinkaiwang/northpole/services/northpole/internal/data"
	"github.com/xinkaiwang/northpole/services/northpole/internal/etcdprov"
	"github.com/xinkaiwang/northpole/services/northpole/npjson"
)

// Worker is one worker record as read from the store.
type Worker struct {
	Id          data.WorkerId
	Class       data.WorkerClass
	State       data.WorkerStateEnum
	GroupId     data.GroupId
	CreatedAtMs int64

	// Seq is the store create revision, the order the store accepted the insert.
	Seq         etcdprov.EtcdRevision
	ModRevision etcdprov.EtcdRevision

	UpdateReason string
}

func workerFromKv(item etcdprov.EtcdKvItem) *Worker {
	wj := npjson.WorkerJsonFromJson(item.Value)
	return &Worker{
		Id:           wj.WorkerId,
		Class:        wj.Class,
		State:        wj.State,
		GroupId:      wj.GroupId,
		CreatedAtMs:  wj.CreatedAtMs,
		Seq:          item.CreateRevision,
		ModRevision:  item.ModRevision,
		UpdateReason: wj.LastUpdateReason,
	}
}

func (w *Worker) ToWorkerJson() *npjson.WorkerJson {
	return &npjson.WorkerJson{
		WorkerId:         w.Id,
		Class:            w.Class,
		State:            w.State,
		CreatedAtMs:      w.CreatedAtMs,
		GroupId:          w.GroupId,
		LastUpdateReason: w.UpdateReason,
	}
}

func (w *Worker) Clone() *Worker {
	clone := *w
	return &clone
}

// WithState returns a copy moved to state. Ready clears the group id, nothing else does.
func (w *Worker) WithState(state data.WorkerStateEnum, reason string) *Worker {
	clone := w.Clone()
	clone.State = state
	clone.UpdateReason = reason
	if state == data.WS_Ready {
		clone.GroupId = ""
	}
	return clone
}

// SortWorkers orders by creation (store create revision), ties by id.
func SortWorkers(list []*Worker) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].Seq != list[j].Seq {
			return list[i].Seq < list[j].Seq
		}
		return list[i].Id < list[j].Id
	})
}
