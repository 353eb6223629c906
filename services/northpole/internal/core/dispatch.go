package core

import (
	"github.com/xinkaiwang/northpole/libs/xklib/kerror"
	"github.com/xinkaiwang/northpole/services/northpole/internal/data"
	"github.com/xinkaiwang/northpole/services/northpole/internal/registry"
)

type DispatchResult struct {
	GroupId data.GroupId
	Class   data.WorkerClass
	Members []data.WorkerId
}

type ReleaseResult struct {
	GroupId data.GroupId
	Class   data.WorkerClass
	Members []data.WorkerId
}

// SantaCommand is what santa shouts when this class goes to work.
func SantaCommand(class data.WorkerClass) string {
	switch class {
	case data.WC_Reindeer:
		return "let's deliver toys"
	case data.WC_Elves:
		return "let's meet in my study"
	}
	return "what kind of job is this?"
}

// selectGroup picks the first eligible class in priority order and its oldest quorum of Ready workers.
func selectGroup(snap *registry.Snapshot) (data.WorkerClass, []*registry.Worker) {
	for _, class := range data.AllWorkerClasses {
		ready := snap.ListByClassAndState(class, data.WS_Ready)
		if class.Eligible(len(ready)) {
			return class, ready[:class.Quorum()]
		}
	}
	return "", nil
}

func violation(errType, msg string) *kerror.Kerror {
	return kerror.Create(errType, msg).WithErrorCode(kerror.EC_PRECONDITION_FAILED)
}

// checkConsistency panics EC_PRECONDITION_FAILED unless the Working set is exactly the group record:
// same size as the class quorum, one class, every member Working and tagged with the group id.
func checkConsistency(snap *registry.Snapshot) {
	working := snap.ListByState(data.WS_Working)
	group := snap.Group
	if group == nil {
		if len(working) > 0 {
			panic(violation("WorkingWithoutGroup", "workers are Working but no group is active").
				With("working", len(working)))
		}
		return
	}
	if len(group.Members) != group.Class.Quorum() {
		panic(violation("GroupWrongSize", "active group does not match its quorum").
			With("groupId", group.GroupId).
			With("class", group.Class).
			With("members", len(group.Members)))
	}
	if len(working) != len(group.Members) {
		panic(violation("StrayWorkingWorkers", "working set differs from the active group").
			With("groupId", group.GroupId).
			With("working", len(working)).
			With("members", len(group.Members)))
	}
	for _, id := range group.Members {
		w := snap.Find(id)
		if w == nil || w.State != data.WS_Working || w.Class != group.Class || w.GroupId != group.GroupId {
			panic(violation("GroupMemberNotWorking", "active group member is not Working in this group").
				With("groupId", group.GroupId).
				With("workerId", id))
		}
	}
	for _, id := range group.Done {
		if !group.HasMember(id) {
			panic(violation("DoneNotMember", "completion recorded for a non member").
				With("groupId", group.GroupId).
				With("workerId", id))
		}
	}
}
