package config

import "github.com/xinkaiwang/northpole/services/northpole/internal/data"

// PathManager lays out the store keys under one prefix:
//
//	{prefix}/state/workers/{id}
//	{prefix}/state/group
//	{prefix}/config/speeds
type PathManager struct {
	prefix string
}

func NewPathManager(prefix string) *PathManager {
	return &PathManager{prefix: prefix}
}

// GetStatePathPrefix covers workers and the group, so one LoadAllByPrefix reads both at one revision.
func (pm *PathManager) GetStatePathPrefix() string {
	return pm.prefix + "/state/"
}

func (pm *PathManager) GetWorkerPathPrefix() string {
	return pm.prefix + "/state/workers/"
}

func (pm *PathManager) GetGroupPath() string {
	return pm.prefix + "/state/group"
}

func (pm *PathManager) GetSpeedPath() string {
	return pm.prefix + "/config/speeds"
}

func (pm *PathManager) FmtWorkerPath(workerId data.WorkerId) string {
	return pm.GetWorkerPathPrefix() + string(workerId)
}
