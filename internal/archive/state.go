// Package archive implements the archival-orchestration engine: the
// submission flow that hands a dataset version to the bridge service,
// the classifier that turns raw bridge responses into one canonical
// state, and the bounded progress poller that follows a job to a
// terminal state.
package archive

import (
	"errors"
	"net/http"

	"github.com/ekoi/dataverse-archiver/internal/bridge"
)

// State is the canonical archival job status. Exactly one state is
// current for a (persistent id, version) pair at any time.
type State string

const (
	StateInProgress         State = "IN_PROGRESS"
	StateArchived           State = "ARCHIVED"
	StateFailed             State = "FAILED"
	StateRejected           State = "REJECTED"
	StateInvalid            State = "INVALID"
	StateError              State = "ERROR"
	StateBridgeDown         State = "BRIDGE_DOWN"
	StateTargetDown         State = "TARGET_DOWN"
	StateInvalidCredentials State = "INVALID_CREDENTIALS"
	StateRequestTimeout     State = "REQUEST_TIMEOUT"
	StateInternalError      State = "INTERNAL_ERROR"
)

// wireStates maps the bridge's on-the-wire state keywords to canonical
// states. Historical spellings for an unreachable DAR all collapse into
// TARGET_DOWN. Keywords not in this table classify as INTERNAL_ERROR,
// never dropped.
var wireStates = map[string]State{
	"IN-PROGRESS": StateInProgress,
	"ARCHIVED":    StateArchived,
	"FAILED":      StateFailed,
	"REJECTED":    StateRejected,
	"INVALID":     StateInvalid,
	"ERROR":       StateError,
	"BRIDGE-DOWN": StateBridgeDown,
	"TDR-DOWN":    StateTargetDown,
	"DAR-DOWN":    StateTargetDown,
	"TARGET-DOWN": StateTargetDown,
}

// Terminal reports whether the job is finished for good: archived, or
// conclusively refused by the target. No further transitions are issued
// once a terminal state is reached.
func (s State) Terminal() bool {
	switch s {
	case StateArchived, StateFailed, StateRejected, StateInvalid:
		return true
	}
	return false
}

// WithTarget renders the state as persisted on the dataset version,
// suffixed with the DAR it refers to, e.g. "IN_PROGRESS@EASY".
func (s State) WithTarget(target string) string {
	if target == "" {
		return string(s)
	}
	return string(s) + "@" + target
}

// MessageKey returns the UI message-bundle key for the state. Rendering
// is the request layer's job; background tasks only ever hand back keys.
func (s State) MessageKey() string {
	switch s {
	case StateInProgress:
		return "archive.message.inprogress"
	case StateArchived:
		return "archive.message.archived"
	case StateFailed:
		return "archive.message.error.failed"
	case StateRejected:
		return "archive.message.error.rejected"
	case StateInvalid:
		return "archive.message.error.invalid"
	case StateBridgeDown:
		return "archive.message.error.bridge.down"
	case StateTargetDown:
		return "archive.message.error.target.down"
	case StateInvalidCredentials:
		return "archive.message.error.credentials"
	case StateRequestTimeout:
		return "archive.message.error.request.timeout"
	default:
		return "archive.message.error.internal"
	}
}

// Classify maps one bridge call outcome to exactly one State. It is pure
// and total: every combination of result and error, including a malformed
// 2xx body, yields a state and never panics.
func Classify(res *bridge.Result, err error) State {
	if err != nil {
		switch {
		case errors.Is(err, bridge.ErrBridgeUnreachable):
			return StateBridgeDown
		case errors.Is(err, bridge.ErrRequestTimeout):
			return StateRequestTimeout
		default:
			return StateInternalError
		}
	}

	if res == nil {
		return StateInternalError
	}

	switch {
	case res.StatusCode == http.StatusForbidden:
		return StateInvalidCredentials
	case res.StatusCode == http.StatusRequestTimeout:
		return StateRequestTimeout
	case res.StatusCode == http.StatusOK || res.StatusCode == http.StatusCreated:
		if res.Payload == nil {
			return StateInternalError
		}
		if s, ok := wireStates[res.Payload.State]; ok {
			return s
		}
		return StateInternalError
	default:
		return StateError
	}
}
