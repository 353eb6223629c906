package api

// ClassCounts is how many workers of one class are in each state.
type ClassCounts struct {
	Ready       int `json:"ready"`
	Working     int `json:"working"`
	Vacationing int `json:"vacationing"`
}

func (cc ClassCounts) Total() int {
	return cc.Ready + cc.Working + cc.Vacationing
}

type GroupVm struct {
	GroupId   string   `json:"group_id"`
	Class     string   `json:"class"`
	Members   []string `json:"members"`
	Done      []string `json:"done,omitempty"`
	StartedMs int64    `json:"started_ms"`
}

// StatusJson is what the dashboard renders. PerClass keys are "reindeer" and "elves".
type StatusJson struct {
	PerClass    map[string]ClassCounts `json:"per_class"`
	SystemState string                 `json:"system_state"`
	ActiveGroup *GroupVm               `json:"active_group,omitempty"`
	Revision    int64                  `json:"revision"`
}

type WorkerVm struct {
	WorkerId     string `json:"worker_id"`
	Class        string `json:"class"`
	State        string `json:"state"`
	GroupId      string `json:"group_id,omitempty"`
	CreatedMs    int64  `json:"created_ms"`
	UpdateReason string `json:"update_reason,omitempty"`
}
