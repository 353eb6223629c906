package npjson

import (
	"encoding/json"

	"github.com/xinkaiwang/northpole/libs/xklib/kcommon"
	"github.com/xinkaiwang/northpole/libs/xklib/kerror"
	"github.com/xinkaiwang/northpole/services/northpole/internal/data"
)

// path is "{prefix}/state/workers/{worker_id}"
type WorkerJson struct {
	WorkerId data.WorkerId        `json:"id"`
	Class    data.WorkerClass     `json:"class"`
	State    data.WorkerStateEnum `json:"state"`

	CreatedAtMs int64 `json:"created_ms"`

	// GroupId is the group this worker was last promoted into. Kept through Vacationing, cleared on Ready.
	GroupId data.GroupId `json:"group_id,omitempty"`

	LastUpdateReason string `json:"update_reason,omitempty"`
	LastUpdateAtMs   int64  `json:"update_ms,omitempty"`
}

func NewWorkerJson(workerId data.WorkerId, class data.WorkerClass) *WorkerJson {
	return &WorkerJson{
		WorkerId:    workerId,
		Class:       class,
		State:       data.WS_Ready,
		CreatedAtMs: kcommon.GetWallTimeMs(),
	}
}

func (obj *WorkerJson) SetUpdateReason(reason string) *WorkerJson {
	obj.LastUpdateAtMs = kcommon.GetWallTimeMs()
	obj.LastUpdateReason = reason
	return obj
}

func (obj *WorkerJson) Clone() *WorkerJson {
	clone := *obj
	return &clone
}

func (obj *WorkerJson) ToJson() string {
	bytes, err := json.Marshal(obj)
	if err != nil {
		panic(kerror.Wrap(err, "MarshalError", "failed to marshal WorkerJson", false))
	}
	return string(bytes)
}

func WorkerJsonFromJson(stringJson string) *WorkerJson {
	var obj WorkerJson
	if err := json.Unmarshal([]byte(stringJson), &obj); err != nil {
		panic(kerror.Wrap(err, "UnmarshalError", "failed to unmarshal WorkerJson", false).WithErrorCode(kerror.EC_INTERNAL_ERROR))
	}
	if obj.WorkerId == "" {
		panic(kerror.Create("UnmarshalError", "missing required field: id").WithErrorCode(kerror.EC_INTERNAL_ERROR))
	}
	if !obj.Class.IsValid() {
		panic(kerror.Create("UnmarshalError", "unknown worker class").With("class", obj.Class).With("id", obj.WorkerId).WithErrorCode(kerror.EC_INTERNAL_ERROR))
	}
	if !obj.State.IsValid() {
		panic(kerror.Create("UnmarshalError", "unknown worker state").With("state", obj.State).With("id", obj.WorkerId).WithErrorCode(kerror.EC_INTERNAL_ERROR))
	}
	return &obj
}
