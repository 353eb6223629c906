package registry

import (
	"github.com/xinkaiwang/northpole/services/northpole/internal/data"
	"github.com/xinkaiwang/northpole/services/northpole/internal/etcdprov"
	"github.com/xinkaiwang/northpole/services/northpole/npjson"
)

// Snapshot is every worker plus the active group, read at one store revision.
type Snapshot struct {
	Revision etcdprov.EtcdRevision
	Workers  []*Worker // creation order

	// Group is nil while the system is idle.
	Group         *npjson.GroupJson
	GroupRevision etcdprov.EtcdRevision
}

func (snap *Snapshot) SystemState() data.SystemState {
	if snap.Group != nil {
		return data.SS_Active
	}
	return data.SS_Idle
}

func (snap *Snapshot) ListByClassAndState(class data.WorkerClass, state data.WorkerStateEnum) []*Worker {
	var list []*Worker
	for _, w := range snap.Workers {
		if w.Class == class && w.State == state {
			list = append(list, w)
		}
	}
	return list
}

func (snap *Snapshot) ListByState(state data.WorkerStateEnum) []*Worker {
	var list []*Worker
	for _, w := range snap.Workers {
		if w.State == state {
			list = append(list, w)
		}
	}
	return list
}

func (snap *Snapshot) Find(id data.WorkerId) *Worker {
	for _, w := range snap.Workers {
		if w.Id == id {
			return w
		}
	}
	return nil
}
