package agent

import (
	"context"
	"time"

	"github.com/xinkaiwang/northpole/libs/xklib/kcommon"
	"github.com/xinkaiwang/northpole/libs/xklib/kerror"
	"github.com/xinkaiwang/northpole/libs/xklib/klogging"
	"github.com/xinkaiwang/northpole/libs/xklib/kmetrics"
	"github.com/xinkaiwang/northpole/services/northpole/internal/core"
	"github.com/xinkaiwang/northpole/services/northpole/internal/data"
	"github.com/xinkaiwang/northpole/services/northpole/internal/registry"
	"golang.org/x/time/rate"
)

var (
	AgentStepCtMetric = kmetrics.CreateKmetric(context.Background(), "agent_step_ct", "agent actions taken", []string{"class", "action"}).CountOnly()
)

// DelaySource decides how long simulated work and vacations take. *speed.Tracker is the real one.
type DelaySource interface {
	WorkDelayMs(ctx context.Context) int
	VacationDelayMs(ctx context.Context) int
}

// Agent drives one worker through its lifecycle. It only ever writes its own record.
type Agent struct {
	class   data.WorkerClass
	coord   *core.Coordinator
	reg     *registry.Registry
	delays  DelaySource
	limiter *rate.Limiter

	id data.WorkerId
	// last group this agent signalled completion for
	completedGroup data.GroupId
}

// NewAgent jitters the poll interval by +-25% so agents do not poll in lockstep.
func NewAgent(ctx context.Context, class data.WorkerClass, coord *core.Coordinator, delays DelaySource, pollIntervalMs int) *Agent {
	intervalMs := pollIntervalMs
	if jitter := pollIntervalMs / 4; jitter > 0 {
		intervalMs = kcommon.RandomIntBetween(ctx, pollIntervalMs-jitter, pollIntervalMs+jitter)
	}
	if intervalMs <= 0 {
		intervalMs = 1
	}
	return &Agent{
		class:   class,
		coord:   coord,
		reg:     coord.Registry(),
		delays:  delays,
		limiter: rate.NewLimiter(rate.Every(time.Duration(intervalMs)*time.Millisecond), 1),
	}
}

// Id is empty until Run registered the worker.
func (a *Agent) Id() data.WorkerId {
	return a.id
}

func (a *Agent) Name() string {
	return a.class.Individual() + " " + a.id.ShortId()
}

// Activity is what a Working worker of this class is doing.
func Activity(class data.WorkerClass) string {
	switch class {
	case data.WC_Reindeer:
		return "delivering toys"
	case data.WC_Elves:
		return "meeting in the study"
	}
	return "doing something"
}

// Run registers the worker and follows its record until ctx is done or the worker is deleted.
// Only a failed registration is returned as an error.
func (a *Agent) Run(ctx context.Context) error {
	w, err := a.reg.Create(ctx, a.class, "agent registered")
	if err != nil {
		return err
	}
	a.id = w.Id
	ctx = klogging.EmbedTraceId(ctx, "agent-"+w.Id.ShortId())
	klogging.Info(ctx).With("workerId", a.id).With("class", a.class).Log("AgentStarted", a.Name()+" ready to work")

	for {
		if err := a.limiter.Wait(ctx); err != nil {
			klogging.Info(ctx).With("workerId", a.id).Log("AgentStopped", "")
			return nil
		}
		if a.step(ctx) {
			klogging.Info(ctx).With("workerId", a.id).Log("WorkerGone", a.Name()+" is no longer registered, stopping")
			return nil
		}
	}
}

// step handles one observation of the record. Returns true once the worker no longer exists.
func (a *Agent) step(ctx context.Context) (gone bool) {
	w, err := a.reg.Get(ctx, a.id)
	if err != nil {
		return a.handleErr(ctx, "Get", err)
	}
	switch w.State {
	case data.WS_Working:
		if w.GroupId == a.completedGroup {
			return false
		}
		return a.work(ctx, w)
	case data.WS_Vacationing:
		return a.vacation(ctx)
	}
	return false
}

func (a *Agent) work(ctx context.Context, w *registry.Worker) bool {
	AgentStepCtMetric.GetTimeSequence(ctx, string(a.class), "work").Add(1)
	klogging.Info(ctx).With("workerId", a.id).With("groupId", w.GroupId).Log("WorkerWorking", a.Name()+" "+Activity(a.class))
	if !kcommon.SleepMs(ctx, a.delays.WorkDelayMs(ctx)) {
		return false
	}
	released, err := a.coord.CompleteWork(ctx, a.id)
	if err != nil {
		return a.handleErr(ctx, "CompleteWork", err)
	}
	a.completedGroup = w.GroupId
	klogging.Debug(ctx).With("workerId", a.id).With("groupId", w.GroupId).With("released", released).Log("WorkCompleted", "")
	return false
}

func (a *Agent) vacation(ctx context.Context) bool {
	AgentStepCtMetric.GetTimeSequence(ctx, string(a.class), "vacation").Add(1)
	if !kcommon.SleepMs(ctx, a.delays.VacationDelayMs(ctx)) {
		return false
	}
	if _, err := a.reg.Transition(ctx, a.id, data.WS_Vacationing, data.WS_Ready, "back from vacation"); err != nil {
		return a.handleErr(ctx, "Transition", err)
	}
	klogging.Info(ctx).With("workerId", a.id).Log("WorkerReady", a.Name()+" back from vacation")
	return false
}

// handleErr: NotFound means gone, Conflict means somebody else moved the group on, anything else is retried next poll.
func (a *Agent) handleErr(ctx context.Context, op string, err error) bool {
	switch kerror.GetErrorCode(err) {
	case kerror.EC_NOT_FOUND:
		return true
	case kerror.EC_CONFLICT:
		klogging.Debug(ctx).WithError(err).With("workerId", a.id).With("op", op).Log("AgentConflict", "record moved, will re-read")
	default:
		klogging.Warning(ctx).WithError(err).With("workerId", a.id).With("op", op).Log("AgentOpFailed", "will retry")
	}
	return false
}
