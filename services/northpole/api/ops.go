package api

type SpeedsVm struct {
	WorkSpeed     float64 `json:"work_speed"`
	VacationSpeed float64 `json:"vacation_speed"`
}

// DispatchRequest: empty Class means "whichever class is eligible", reindeer first.
type DispatchRequest struct {
	Class string `json:"class,omitempty"`
}

type DispatchResponse struct {
	Dispatched bool     `json:"dispatched"`
	GroupId    string   `json:"group_id,omitempty"`
	Class      string   `json:"class,omitempty"`
	Members    []string `json:"members,omitempty"`
	Command    string   `json:"command,omitempty"`
}

type ReleaseResponse struct {
	Released bool     `json:"released"`
	GroupId  string   `json:"group_id,omitempty"`
	Class    string   `json:"class,omitempty"`
	Members  []string `json:"members,omitempty"`
}

type ResetResponse struct {
	Deleted int `json:"deleted"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Msg   string `json:"msg"`
	Code  string `json:"code"`
}
