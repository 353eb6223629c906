package data

import (
	"strings"

	"github.com/xinkaiwang/northpole/libs/xklib/kerror"
)

type WorkerClass string

const (
	WC_Reindeer WorkerClass = "reindeer"
	WC_Elves    WorkerClass = "elves"
)

// AllWorkerClasses in dispatch priority order: the full-quorum class comes first.
var AllWorkerClasses = []WorkerClass{WC_Reindeer, WC_Elves}

// Quorum is the exact size of a group of this class.
func (wc WorkerClass) Quorum() int {
	switch wc {
	case WC_Reindeer:
		return 9
	case WC_Elves:
		return 3
	}
	return 0
}

// ExactQuorum: reindeer only go out when every one of the 9 is Ready, elves take the oldest 3 of any backlog.
func (wc WorkerClass) ExactQuorum() bool {
	return wc == WC_Reindeer
}

func (wc WorkerClass) IsValid() bool {
	return wc == WC_Reindeer || wc == WC_Elves
}

// Eligible reports whether readyCount Ready workers can form a group of this class.
func (wc WorkerClass) Eligible(readyCount int) bool {
	if wc.ExactQuorum() {
		return readyCount == wc.Quorum()
	}
	return readyCount >= wc.Quorum()
}

// Individual is the display name for one member, "Reindeer" or "Elf".
func (wc WorkerClass) Individual() string {
	switch wc {
	case WC_Reindeer:
		return "Reindeer"
	case WC_Elves:
		return "Elf"
	}
	return string(wc)
}

// ParseWorkerClass panics with EC_INVALID_PARAMETER on anything but reindeer/elves.
func ParseWorkerClass(str string) WorkerClass {
	switch strings.ToLower(strings.TrimSpace(str)) {
	case "reindeer":
		return WC_Reindeer
	case "elves", "elf":
		return WC_Elves
	}
	panic(kerror.Create("UnknownWorkerClass", "worker class must be reindeer or elves").
		With("class", str).
		WithErrorCode(kerror.EC_INVALID_PARAMETER))
}
