package npjson

import (
	"encoding/json"

	"github.com/xinkaiwang/northpole/libs/xklib/kcommon"
	"github.com/xinkaiwang/northpole/libs/xklib/kerror"
	"github.com/xinkaiwang/northpole/services/northpole/internal/data"
)

// path is "{prefix}/state/group", present only while a group is Working
type GroupJson struct {
	GroupId data.GroupId     `json:"group_id"`
	Class   data.WorkerClass `json:"class"`

	// Members in promotion order (oldest first).
	Members []data.WorkerId `json:"members"`

	// Done lists members that signalled completion.
	Done []data.WorkerId `json:"done,omitempty"`

	StartedAtMs int64 `json:"started_ms"`
}

func NewGroupJson(class data.WorkerClass, members []data.WorkerId) *GroupJson {
	return &GroupJson{
		GroupId:     data.NewGroupId(),
		Class:       class,
		Members:     members,
		StartedAtMs: kcommon.GetWallTimeMs(),
	}
}

func (obj *GroupJson) HasMember(id data.WorkerId) bool {
	for _, m := range obj.Members {
		if m == id {
			return true
		}
	}
	return false
}

func (obj *GroupJson) IsDone(id data.WorkerId) bool {
	for _, m := range obj.Done {
		if m == id {
			return true
		}
	}
	return false
}

// AllDone is true once every member signalled completion.
func (obj *GroupJson) AllDone() bool {
	for _, m := range obj.Members {
		if !obj.IsDone(m) {
			return false
		}
	}
	return true
}

func (obj *GroupJson) Clone() *GroupJson {
	clone := *obj
	clone.Members = append([]data.WorkerId(nil), obj.Members...)
	clone.Done = append([]data.WorkerId(nil), obj.Done...)
	return &clone
}

func (obj *GroupJson) ToJson() string {
	bytes, err := json.Marshal(obj)
	if err != nil {
		panic(kerror.Wrap(err, "MarshalError", "failed to marshal GroupJson", false))
	}
	return string(bytes)
}

func GroupJsonFromJson(stringJson string) *GroupJson {
	var obj GroupJson
	if err := json.Unmarshal([]byte(stringJson), &obj); err != nil {
		panic(kerror.Wrap(err, "UnmarshalError", "failed to unmarshal GroupJson", false).WithErrorCode(kerror.EC_INTERNAL_ERROR))
	}
	if obj.GroupId == "" {
		panic(kerror.Create("UnmarshalError", "missing required field: group_id").WithErrorCode(kerror.EC_INTERNAL_ERROR))
	}
	if !obj.Class.IsValid() {
		panic(kerror.Create("UnmarshalError", "unknown group class").With("class", obj.Class).WithErrorCode(kerror.EC_INTERNAL_ERROR))
	}
	return &obj
}
