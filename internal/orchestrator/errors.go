// File: internal/orchestrator/errors.go
package orchestrator

import (
	"errors"

	"github.com/droidpilot/droidpilot-cli/internal/device"
	"github.com/droidpilot/droidpilot-cli/internal/llmclient"
)

var (
	// ErrReplanExhausted: the Batched recovery budget is consumed and another
	// anomaly fired.
	ErrReplanExhausted = errors.New("recovery exhausted: replan budget consumed")
	// ErrStepBudgetExceeded: a stepwise run hit the maximum step count before
	// the decision agent signaled completion.
	ErrStepBudgetExceeded = errors.New("step budget exceeded")
	// ErrAborted: the run observed cancellation at a suspension point.
	ErrAborted = errors.New("task aborted")
)

// Error kinds carried on ErrorEvent, stable for consumers.
const (
	errKindRecoveryExhausted = "recovery exhausted"
	errKindStepBudget        = "step budget exceeded"
	errKindModelCall         = "model call failed"
	errKindDevice            = "device failure"
	errKindInternal          = "internal"
)

func errorKind(err error) string {
	switch {
	case errors.Is(err, ErrReplanExhausted):
		return errKindRecoveryExhausted
	case errors.Is(err, ErrStepBudgetExceeded):
		return errKindStepBudget
	case llmclient.IsModelCallError(err):
		return errKindModelCall
	case device.IsDeviceError(err):
		return errKindDevice
	}
	return errKindInternal
}
