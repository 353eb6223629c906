package data

import (
	"github.com/xinkaiwang/northpole/libs/xklib/kerror"
)

type WorkerStateEnum string

const (
	WS_Ready       WorkerStateEnum = "ready"
	WS_Working     WorkerStateEnum = "working"
	WS_Vacationing WorkerStateEnum = "vacationing"
)

var AllWorkerStates = []WorkerStateEnum{WS_Ready, WS_Working, WS_Vacationing}

func (ws WorkerStateEnum) IsValid() bool {
	return ws == WS_Ready || ws == WS_Working || ws == WS_Vacationing
}

func ParseWorkerState(str string) WorkerStateEnum {
	ws := WorkerStateEnum(str)
	if !ws.IsValid() {
		panic(kerror.Create("UnknownWorkerState", "").
			With("state", str).
			WithErrorCode(kerror.EC_INVALID_PARAMETER))
	}
	return ws
}

type SystemState string

const (
	SS_Idle   SystemState = "idle"
	SS_Active SystemState = "active"
)
