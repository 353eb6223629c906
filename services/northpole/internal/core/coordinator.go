package core

import (
	"context"
	"time"

	"github.com/xinkaiwang/northpole/libs/xklib/kcommon"
	"github.com/xinkaiwang/northpole/libs/xklib/kerror"
	"github.com/xinkaiwang/northpole/libs/xklib/klogging"
	"github.com/xinkaiwang/northpole/libs/xklib/kmetrics"
	"github.com/xinkaiwang/northpole/libs/xklib/krunloop"
	"github.com/xinkaiwang/northpole/services/northpole/internal/data"
	"github.com/xinkaiwang/northpole/services/northpole/internal/registry"
	"github.com/xinkaiwang/northpole/services/northpole/npjson"
)

var (
	DispatchCtMetric       = kmetrics.CreateKmetric(context.Background(), "dispatch_ct", "dispatch attempts", []string{"class", "result"}).CountOnly()
	ReleaseCtMetric        = kmetrics.CreateKmetric(context.Background(), "release_ct", "groups released", []string{"reason"}).CountOnly()
	CommitConflictCtMetric = kmetrics.CreateKmetric(context.Background(), "commit_conflict_ct", "group commits that lost a race", []string{"op"}).CountOnly()
)

type CoordinatorConfig struct {
	OpTimeoutMs   int
	CommitRetries int
}

// Coordinator owns every group mutation: promotion, completion, release and reset.
// In-process they are serialised by the runloop, across processes by the guarded commit in registry.CommitGroup.
type Coordinator struct {
	reg     *registry.Registry
	cfg     CoordinatorConfig
	runloop *krunloop.RunLoop[*Coordinator]
}

func NewCoordinator(ctx context.Context, reg *registry.Registry, cfg CoordinatorConfig) *Coordinator {
	c := &Coordinator{reg: reg, cfg: cfg}
	c.runloop = krunloop.NewRunLoop(ctx, c, "coordinator")
	go c.runloop.Run(ctx)
	return c
}

// IsResource implements krunloop.CriticalResource
func (c *Coordinator) IsResource() {}

func (c *Coordinator) Registry() *registry.Registry {
	return c.reg
}

func (c *Coordinator) StopAndWaitForExit() {
	c.runloop.StopAndWaitForExit()
}

// submit runs fn on the loop, bounded by OpTimeoutMs. fn reports failure by panicking a kerror.
// When submit returns, fn has either finished or will never run, so fn may write the caller's locals.
// An op that expires while queued is dropped. Once it runs it checks the deadline before every commit,
// so a commit that did apply is never reported as a timeout.
func (c *Coordinator) submit(ctx context.Context, name string, fn func(ctx context.Context)) error {
	opCtx, cancel := context.WithTimeout(ctx, time.Duration(c.cfg.OpTimeoutMs)*time.Millisecond)
	defer cancel()

	var ke *kerror.Kerror
	ran := c.runloop.PostActionOrAbandon(opCtx, name, func(*Coordinator) {
		ke = kcommon.TryCatchRun(opCtx, func() {
			kmetrics.InstrumentSummaryRunVoid(opCtx, name, func() { fn(opCtx) })
		})
	})
	if !ran {
		if opCtx.Err() == nil {
			return kerror.Create("CoordinatorStopped", "coordinator loop has exited").
				With("op", name).
				WithErrorCode(kerror.EC_INTERNAL_ERROR)
		}
		return kerror.Create("CoordinatorTimeout", "op expired in queue").
			With("op", name).
			With("timeoutMs", c.cfg.OpTimeoutMs).
			WithErrorCode(kerror.EC_TIMEOUT)
	}
	if ke == nil {
		return nil
	}
	if ke.ErrorCode == kerror.EC_PRECONDITION_FAILED {
		klogging.Error(ctx).WithError(ke).With("op", name).Log("ConsistencyViolation", "aborted without applying")
	} else {
		klogging.Debug(ctx).WithError(ke).With("op", name).Log("CoordinatorOpFailed", "")
	}
	return ke
}

// retryCommit runs attempt against fresh snapshots until it commits or gives up.
// attempt returns done=true when no further commit is needed (either it committed or there was nothing to do).
func (c *Coordinator) retryCommit(ctx context.Context, op string, attempt func(snap *registry.Snapshot) (done bool)) {
	for i := 0; i < c.cfg.CommitRetries; i++ {
		if ctx.Err() != nil {
			panic(kerror.Wrap(ctx.Err(), "CoordinatorTimeout", "op deadline exceeded", false).With("op", op).WithErrorCode(kerror.EC_TIMEOUT))
		}
		snap := c.mustSnapshot(ctx)
		if attempt(snap) {
			return
		}
		CommitConflictCtMetric.GetTimeSequence(ctx, op).Add(1)
		klogging.Debug(ctx).With("op", op).With("attempt", i+1).Log("CommitConflict", "retrying on a fresh snapshot")
	}
	panic(kerror.Create("CommitRetryExhausted", "store kept changing under the coordinator").
		With("op", op).
		With("retries", c.cfg.CommitRetries).
		WithErrorCode(kerror.EC_RETRYABLE))
}

func (c *Coordinator) mustSnapshot(ctx context.Context) *registry.Snapshot {
	snap, err := c.reg.Snapshot(ctx)
	if err != nil {
		panic(err)
	}
	checkConsistency(snap)
	return snap
}

func (c *Coordinator) mustCommit(ctx context.Context, snap *registry.Snapshot, changed []*registry.Worker, group *npjson.GroupJson) bool {
	if ctx.Err() != nil {
		panic(kerror.Wrap(ctx.Err(), "CoordinatorTimeout", "op deadline passed before commit", false).WithErrorCode(kerror.EC_TIMEOUT))
	}
	// a sent commit is not cut off by the op deadline, it gets its own bound
	commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Duration(c.cfg.OpTimeoutMs)*time.Millisecond)
	defer cancel()
	ok, err := c.reg.CommitGroup(commitCtx, snap, changed, group)
	if err != nil {
		if kerror.IsErrorCode(err, kerror.EC_TIMEOUT) {
			panic(kerror.Wrap(err, "CommitOutcomeUnknown", "commit did not answer in time, it may have applied", false).WithErrorCode(kerror.EC_TIMEOUT))
		}
		panic(err)
	}
	return ok
}

// TryDispatch is the single check-and-act: promote a quorum if the system is idle and one is eligible.
// Returns nil when a group is already active or nobody is eligible.
func (c *Coordinator) TryDispatch(ctx context.Context) (*DispatchResult, error) {
	var ret *DispatchResult
	err := c.submit(ctx, "TryDispatch", func(ctx context.Context) {
		c.retryCommit(ctx, "TryDispatch", func(snap *registry.Snapshot) bool {
			ret = nil
			if snap.Group != nil {
				return true
			}
			class, picked := selectGroup(snap)
			if picked == nil {
				DispatchCtMetric.GetTimeSequence(ctx, "none", "none").Add(1)
				return true
			}
			result, ok := c.promote(ctx, snap, class, picked)
			ret = result
			return ok
		})
	})
	if err != nil {
		return nil, err
	}
	return ret, nil
}

// Dispatch promotes a group of the named class. A Ready count that does not satisfy its quorum is EC_PRECONDITION_FAILED.
func (c *Coordinator) Dispatch(ctx context.Context, class data.WorkerClass) (*DispatchResult, error) {
	if !class.IsValid() {
		return nil, kerror.Create("UnknownWorkerClass", "uh, what kind of job is this?").
			With("class", class).
			WithErrorCode(kerror.EC_INVALID_PARAMETER)
	}
	var ret *DispatchResult
	err := c.submit(ctx, "Dispatch", func(ctx context.Context) {
		c.retryCommit(ctx, "Dispatch", func(snap *registry.Snapshot) bool {
			ret = nil
			if snap.Group != nil {
				DispatchCtMetric.GetTimeSequence(ctx, string(class), "active").Add(1)
				return true
			}
			ready := snap.ListByClassAndState(class, data.WS_Ready)
			if !class.Eligible(len(ready)) {
				DispatchCtMetric.GetTimeSequence(ctx, string(class), "quorum_mismatch").Add(1)
				panic(kerror.Create("QuorumMismatch", "ready count does not satisfy the class quorum").
					With("class", class).
					With("ready", len(ready)).
					With("quorum", class.Quorum()).
					WithErrorCode(kerror.EC_PRECONDITION_FAILED))
			}
			result, ok := c.promote(ctx, snap, class, ready[:class.Quorum()])
			ret = result
			return ok
		})
	})
	if err != nil {
		return nil, err
	}
	return ret, nil
}

func (c *Coordinator) promote(ctx context.Context, snap *registry.Snapshot, class data.WorkerClass, picked []*registry.Worker) (*DispatchResult, bool) {
	ids := make([]data.WorkerId, 0, len(picked))
	for _, w := range picked {
		ids = append(ids, w.Id)
	}
	group := npjson.NewGroupJson(class, ids)
	changed := make([]*registry.Worker, 0, len(picked))
	for _, w := range picked {
		next := w.WithState(data.WS_Working, "promoted")
		next.GroupId = group.GroupId
		changed = append(changed, next)
	}
	if !c.mustCommit(ctx, snap, changed, group) {
		return nil, false
	}
	DispatchCtMetric.GetTimeSequence(ctx, string(class), "promoted").Add(1)
	result := &DispatchResult{GroupId: group.GroupId, Class: class, Members: group.Members}
	klogging.Info(ctx).
		With("groupId", result.GroupId).
		With("class", class).
		With("members", len(result.Members)).
		Log("GroupPromoted", "")
	return result, true
}

// CompleteWork records that a member of the active group finished.
// When the last member finishes the whole group moves to Vacationing in the same commit, and released is true.
// EC_CONFLICT (NotPromoted) if the worker is not Working in the active group.
func (c *Coordinator) CompleteWork(ctx context.Context, id data.WorkerId) (bool, error) {
	released := false
	err := c.submit(ctx, "CompleteWork", func(ctx context.Context) {
		c.retryCommit(ctx, "CompleteWork", func(snap *registry.Snapshot) bool {
			released = false
			w := snap.Find(id)
			if w == nil {
				panic(registry.ErrWorkerNotFound(id))
			}
			if snap.Group == nil || !snap.Group.HasMember(id) || w.State != data.WS_Working {
				panic(kerror.Create("NotPromoted", "worker is not part of the active group").
					With("workerId", id).
					With("state", w.State).
					WithErrorCode(kerror.EC_CONFLICT))
			}
			if snap.Group.IsDone(id) {
				return true
			}
			group := snap.Group.Clone()
			group.Done = append(group.Done, id)
			if !group.AllDone() {
				return c.mustCommit(ctx, snap, nil, group)
			}
			if !c.releaseGroup(ctx, snap, "completed") {
				return false
			}
			released = true
			return true
		})
	})
	if err != nil {
		return false, err
	}
	return released, nil
}

// releaseGroup moves every Working worker to Vacationing and deletes the group record, one commit.
func (c *Coordinator) releaseGroup(ctx context.Context, snap *registry.Snapshot, reason string) bool {
	working := snap.ListByState(data.WS_Working)
	changed := make([]*registry.Worker, 0, len(working))
	for _, w := range working {
		changed = append(changed, w.WithState(data.WS_Vacationing, "released:"+reason))
	}
	if !c.mustCommit(ctx, snap, changed, nil) {
		return false
	}
	ReleaseCtMetric.GetTimeSequence(ctx, reason).Add(1)
	klogging.Info(ctx).
		With("groupId", snap.Group.GroupId).
		With("class", snap.Group.Class).
		With("reason", reason).
		Log("GroupReleased", "")
	return true
}

// Release sends the active group on vacation regardless of completion. Idle is a no-op (nil, nil).
func (c *Coordinator) Release(ctx context.Context) (*ReleaseResult, error) {
	var ret *ReleaseResult
	err := c.submit(ctx, "Release", func(ctx context.Context) {
		c.retryCommit(ctx, "Release", func(snap *registry.Snapshot) bool {
			ret = nil
			if snap.Group == nil {
				klogging.Debug(ctx).Log("ReleaseIdle", "nothing active, no-op")
				return true
			}
			if !c.releaseGroup(ctx, snap, "explicit") {
				return false
			}
			ret = &ReleaseResult{GroupId: snap.Group.GroupId, Class: snap.Group.Class, Members: snap.Group.Members}
			return true
		})
	})
	if err != nil {
		return nil, err
	}
	return ret, nil
}

// Reset deletes every worker and the group. Agents of deleted workers see NotFound on their next poll.
func (c *Coordinator) Reset(ctx context.Context) (int, error) {
	deleted := 0
	err := c.submit(ctx, "Reset", func(ctx context.Context) {
		count, err := c.reg.DeleteAll(ctx)
		if err != nil {
			panic(err)
		}
		deleted = count
		klogging.Info(ctx).With("deleted", count).Log("RegistryReset", "")
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

// SystemState reads one snapshot, it does not go through the loop.
func (c *Coordinator) SystemState(ctx context.Context) (data.SystemState, error) {
	snap, err := c.reg.Snapshot(ctx)
	if err != nil {
		return "", err
	}
	return snap.SystemState(), nil
}

// ReadinessCheck reports which class could be dispatched right now, "" for none.
// Advisory only: TryDispatch re-evaluates everything itself.
func (c *Coordinator) ReadinessCheck(ctx context.Context) (data.WorkerClass, error) {
	snap, err := c.reg.Snapshot(ctx)
	if err != nil {
		return "", err
	}
	if snap.Group != nil {
		return "", nil
	}
	class, _ := selectGroup(snap)
	return class, nil
}
