package server

import (
	"github.com/kylerisse/watchful/pkg/status"
)

// CheckStatus is the aggregate status of one check across all its keys.
// The string values are stable API output.
type CheckStatus string

const (
	// CheckStatusUnknown means the check has no recorded keys yet.
	CheckStatusUnknown CheckStatus = "unknown"
	// CheckStatusUp means every key is up.
	CheckStatusUp CheckStatus = "up"
	// CheckStatusDegraded means some keys are up and some are down.
	CheckStatusDegraded CheckStatus = "degraded"
	// CheckStatusDown means every key is down.
	CheckStatusDown CheckStatus = "down"
)

// computeCheckStatus folds the recorded keys of one check into a single
// status. A recovered failure key is up and counts like any other key.
func computeCheckStatus(entries map[string]status.Entry) CheckStatus {
	up, down := 0, 0
	for _, e := range entries {
		if e.Status {
			up++
		} else {
			down++
		}
	}

	switch {
	case up == 0 && down == 0:
		return CheckStatusUnknown
	case down == 0:
		return CheckStatusUp
	case up == 0:
		return CheckStatusDown
	default:
		return CheckStatusDegraded
	}
}
