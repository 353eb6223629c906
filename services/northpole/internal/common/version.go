package common

import (
	"context"

	"github.com/xinkaiwang/northpole/libs/xklib/kcommon"
)

var (
	// overridden at build time with -ldflags "-X .../common.version=..."
	version     = "dev"
	sessionId   = ""
	startTimeMs = kcommon.GetWallTimeMs()
)

func GetVersion() string {
	return version
}

func GetSessionId() string {
	if sessionId == "" {
		sessionId = kcommon.RandomString(context.Background(), 8)
	}
	return sessionId
}

func GetStartTimeMs() int64 {
	return startTimeMs
}
