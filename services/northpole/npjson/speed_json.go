package npjson

import (
	"encoding/json"

	"github.com/xinkaiwang/northpole/libs/xklib/kerror"
)

const (
	DefaultWorkSpeed     = 50
	DefaultVacationSpeed = 50
)

// path is "{prefix}/config/speeds"
type SpeedJson struct {
	WorkSpeed     float64 `json:"work_speed"`
	VacationSpeed float64 `json:"vacation_speed"`
}

func NewDefaultSpeedJson() *SpeedJson {
	return &SpeedJson{
		WorkSpeed:     DefaultWorkSpeed,
		VacationSpeed: DefaultVacationSpeed,
	}
}

func (obj *SpeedJson) ToJson() string {
	bytes, err := json.Marshal(obj)
	if err != nil {
		panic(kerror.Wrap(err, "MarshalError", "failed to marshal SpeedJson", false))
	}
	return string(bytes)
}

func SpeedJsonFromJson(stringJson string) *SpeedJson {
	obj := NewDefaultSpeedJson()
	if err := json.Unmarshal([]byte(stringJson), obj); err != nil {
		panic(kerror.Wrap(err, "UnmarshalError", "failed to unmarshal SpeedJson", false).WithErrorCode(kerror.EC_INTERNAL_ERROR))
	}
	return obj
}
