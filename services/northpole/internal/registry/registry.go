package registry

import (
	"context"
	"strings"

	"github.com/xinkaiwang/northpole/libs/xklib/kcommon"
	"github.com/xinkaiwang/northpole/libs/xklib/kerror"
	"github.com/xinkaiwang/northpole/libs/xklib/klogging"
	"github.com/xinkaiwang/northpole/libs/xklib/kmetrics"
	"github.com/xinkaiwang/northpole/services/northpole/internal/config"
	"github.com/xinkaiwang/northpole/services/northpole/internal/data"
	"github.com/xinkaiwang/northpole/services/northpole/internal/etcdprov"
	"github.com/xinkaiwang/northpole/services/northpole/npjson"
)

const maxCasRetries = 16

var (
	RegistryCasRetryMetric = kmetrics.CreateKmetric(context.Background(), "registry_cas_retry", "single record CAS retries", []string{"op"}).CountOnly()
)

// Registry is the authoritative worker store. Every method turns store panics into a returned error.
type Registry struct {
	provider etcdprov.EtcdProvider
	pm       *config.PathManager
}

func NewRegistry(provider etcdprov.EtcdProvider, pm *config.PathManager) *Registry {
	return &Registry{provider: provider, pm: pm}
}

func (reg *Registry) PathManager() *config.PathManager {
	return reg.pm
}

// WatchState streams changes to any worker or the group record made after the call. Closed when ctx is done.
func (reg *Registry) WatchState(ctx context.Context) chan *etcdprov.EtcdKvItem {
	return reg.provider.WatchByPrefix(ctx, reg.pm.GetStatePathPrefix(), 0)
}

func ErrWorkerNotFound(id data.WorkerId) *kerror.Kerror {
	return kerror.Create("WorkerNotFound", "worker no longer exists").
		With("workerId", id).
		WithErrorCode(kerror.EC_NOT_FOUND)
}

// Create adds a Ready worker of class.
func (reg *Registry) Create(ctx context.Context, class data.WorkerClass, reason string) (ret *Worker, err error) {
	err = kcommon.TryCatchRunErr(ctx, func() {
		if !class.IsValid() {
			data.ParseWorkerClass(string(class))
		}
		id := data.NewWorkerId()
		wj := npjson.NewWorkerJson(id, class).SetUpdateReason(reason)
		key := reg.pm.FmtWorkerPath(id)
		if !reg.provider.Commit(ctx, etcdprov.NewEtcdTxn().Guard(key, 0).Put(key, wj.ToJson())) {
			panic(kerror.Create("WorkerIdCollision", "worker id already exists").With("workerId", id).WithErrorCode(kerror.EC_CONFLICT))
		}
		ret = reg.mustGet(ctx, id)
		klogging.Debug(ctx).With("workerId", id).With("class", class).Log("WorkerCreated", "")
	})
	return
}

func (reg *Registry) mustGet(ctx context.Context, id data.WorkerId) *Worker {
	item := reg.provider.Get(ctx, reg.pm.FmtWorkerPath(id))
	if !item.Exists() {
		panic(ErrWorkerNotFound(id))
	}
	return workerFromKv(item)
}

// Get returns an EC_NOT_FOUND error for a missing (or reset) worker.
func (reg *Registry) Get(ctx context.Context, id data.WorkerId) (ret *Worker, err error) {
	err = kcommon.TryCatchRunErr(ctx, func() {
		ret = reg.mustGet(ctx, id)
	})
	return
}

func (reg *Registry) ListByClassAndState(ctx context.Context, class data.WorkerClass, state data.WorkerStateEnum) ([]*Worker, error) {
	snap, err := reg.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.ListByClassAndState(class, state), nil
}

// Snapshot reads workers and group in one LoadAllByPrefix, so both come from the same revision.
func (reg *Registry) Snapshot(ctx context.Context) (ret *Snapshot, err error) {
	err = kcommon.TryCatchRunErr(ctx, func() {
		items, rev := reg.provider.LoadAllByPrefix(ctx, reg.pm.GetStatePathPrefix())
		snap := &Snapshot{Revision: rev}
		workerPrefix := reg.pm.GetWorkerPathPrefix()
		for _, item := range items {
			switch {
			case item.Key == reg.pm.GetGroupPath():
				snap.Group = npjson.GroupJsonFromJson(item.Value)
				snap.GroupRevision = item.ModRevision
			case strings.HasPrefix(item.Key, workerPrefix):
				snap.Workers = append(snap.Workers, workerFromKv(item))
			default:
				klogging.Warning(ctx).With("key", item.Key).Log("UnknownStateKey", "ignored")
			}
		}
		SortWorkers(snap.Workers)
		ret = snap
	})
	return
}

// update is the single record CAS loop behind SetState and Transition.
// fn returns the new record, or panics to abort.
func (reg *Registry) update(ctx context.Context, op string, id data.WorkerId, fn func(w *Worker) *Worker) *Worker {
	key := reg.pm.FmtWorkerPath(id)
	for i := 0; i < maxCasRetries; i++ {
		current := reg.mustGet(ctx, id)
		next := fn(current)
		wj := next.ToWorkerJson().SetUpdateReason(next.UpdateReason)
		if reg.provider.Commit(ctx, etcdprov.NewEtcdTxn().Guard(key, current.ModRevision).Put(key, wj.ToJson())) {
			return reg.mustGet(ctx, id)
		}
		RegistryCasRetryMetric.GetTimeSequence(ctx, op).Add(1)
	}
	panic(kerror.Create("CasRetryExhausted", "record kept changing").
		With("workerId", id).
		With("op", op).
		WithErrorCode(kerror.EC_RETRYABLE))
}

// SetState unconditionally moves a worker to state.
func (reg *Registry) SetState(ctx context.Context, id data.WorkerId, state data.WorkerStateEnum, reason string) (ret *Worker, err error) {
	err = kcommon.TryCatchRunErr(ctx, func() {
		if !state.IsValid() {
			data.ParseWorkerState(string(state))
		}
		ret = reg.update(ctx, "SetState", id, func(w *Worker) *Worker {
			return w.WithState(state, reason)
		})
	})
	return
}

// Transition moves a worker from -> to, EC_CONFLICT if it is not currently in from.
func (reg *Registry) Transition(ctx context.Context, id data.WorkerId, from, to data.WorkerStateEnum, reason string) (ret *Worker, err error) {
	err = kcommon.TryCatchRunErr(ctx, func() {
		ret = reg.update(ctx, "Transition", id, func(w *Worker) *Worker {
			if w.State != from {
				panic(kerror.Create("UnexpectedWorkerState", "worker is not in the expected state").
					With("workerId", id).
					With("expected", from).
					With("actual", w.State).
					WithErrorCode(kerror.EC_CONFLICT))
			}
			return w.WithState(to, reason)
		})
	})
	return
}

// DeleteAll removes every worker and the group record. The speed record is kept.
func (reg *Registry) DeleteAll(ctx context.Context) (count int, err error) {
	err = kcommon.TryCatchRunErr(ctx, func() {
		count = reg.provider.DeleteByPrefix(ctx, reg.pm.GetStatePathPrefix())
	})
	return
}

// CommitGroup writes changed workers and the new group (nil deletes it) in one transaction,
// guarded by the group revision and each changed worker's revision from snap.
// Returns false when anything moved since snap was read.
func (reg *Registry) CommitGroup(ctx context.Context, snap *Snapshot, changed []*Worker, group *npjson.GroupJson) (ok bool, err error) {
	err = kcommon.TryCatchRunErr(ctx, func() {
		txn := etcdprov.NewEtcdTxn().Guard(reg.pm.GetGroupPath(), snap.GroupRevision)
		for _, w := range changed {
			prev := snap.Find(w.Id)
			if prev == nil {
				panic(kerror.Create("WorkerNotInSnapshot", "changed worker must come from the snapshot").
					With("workerId", w.Id).
					WithErrorCode(kerror.EC_INTERNAL_ERROR))
			}
			key := reg.pm.FmtWorkerPath(w.Id)
			txn.Guard(key, prev.ModRevision).Put(key, w.ToWorkerJson().SetUpdateReason(w.UpdateReason).ToJson())
		}
		if group != nil {
			txn.Put(reg.pm.GetGroupPath(), group.ToJson())
		} else if snap.Group != nil {
			txn.Delete(reg.pm.GetGroupPath())
		}
		ok = reg.provider.Commit(ctx, txn)
	})
	return
}
