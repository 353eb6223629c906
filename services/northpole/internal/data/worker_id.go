package data

import (
	"github.com/google/uuid"
)

type WorkerId string

type GroupId string

// NewWorkerId returns a uuid v7, time ordered so ids sort roughly by creation.
func NewWorkerId() WorkerId {
	return WorkerId(newUuid())
}

func NewGroupId() GroupId {
	return GroupId(newUuid())
}

func newUuid() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// ShortId is the first 8 characters, used in log lines and the dashboard.
func (id WorkerId) ShortId() string {
	if len(id) > 8 {
		return string(id[:8])
	}
	return string(id)
}
