// File: internal/orchestrator/anomaly.go
package orchestrator

import (
	"fmt"

	"github.com/droidpilot/droidpilot-cli/api/schemas"
	"github.com/droidpilot/droidpilot-cli/internal/config"
)

// anomalyState holds the rolling counters for one task run. Transitions are
// pure: observe returns the successor state and never mutates the receiver.
type anomalyState struct {
	observed        bool
	lastFingerprint uint64
	sameScreenCount int
	failureStreak   int
	lastSignature   string
	repeatCount     int
	lastAction      schemas.ActionKind
	lastTarget      string
}

// observation is one device interaction as seen by the monitor: the screen
// fingerprint captured after the action, the action's identity signature,
// and whether it reported success.
type observation struct {
	fingerprint uint64
	signature   string
	action      schemas.ActionKind
	target      string
	success     bool
}

// observe applies one observation. Rules are evaluated in fixed priority
// order and the first match wins; the matched rule's counter is reset so the
// next report requires a fresh threshold run. Counters whose condition broke
// (screen changed, action succeeded, different action) reset regardless.
func (s anomalyState) observe(cfg config.AnomalyConfig, o observation) (anomalyState, *schemas.AnomalyContext) {
	next := s

	screenChanged := !s.observed || o.fingerprint != s.lastFingerprint
	if screenChanged {
		next.sameScreenCount = 1
	} else {
		next.sameScreenCount = s.sameScreenCount + 1
	}
	next.lastFingerprint = o.fingerprint

	if o.success {
		next.failureStreak = 0
	} else {
		next.failureStreak = s.failureStreak + 1
	}

	// An intervening screen change breaks a repetition run even when the
	// signature matches: the action evidently had an effect.
	if s.observed && o.signature == s.lastSignature && !screenChanged {
		next.repeatCount = s.repeatCount + 1
	} else {
		next.repeatCount = 1
	}
	next.lastSignature = o.signature
	next.lastAction = o.action
	next.lastTarget = o.target
	next.observed = true

	switch {
	case next.sameScreenCount >= cfg.SameScreenThreshold:
		count := next.sameScreenCount
		next.sameScreenCount = 0
		return next, &schemas.AnomalyContext{
			Rule:       schemas.AnomalyScreenStuck,
			Count:      count,
			LastAction: o.action,
			LastTarget: o.target,
			Detail:     fmt.Sprintf("screen fingerprint unchanged for %d consecutive observations", count),
		}
	case next.failureStreak >= cfg.FailureStreakThreshold:
		count := next.failureStreak
		next.failureStreak = 0
		return next, &schemas.AnomalyContext{
			Rule:       schemas.AnomalyFailureStreak,
			Count:      count,
			LastAction: o.action,
			LastTarget: o.target,
			Detail:     fmt.Sprintf("%d consecutive actions failed", count),
		}
	case next.repeatCount >= cfg.RepeatedActionThreshold:
		count := next.repeatCount
		next.repeatCount = 0
		return next, &schemas.AnomalyContext{
			Rule:       schemas.AnomalyActionNoEffect,
			Count:      count,
			LastAction: o.action,
			LastTarget: o.target,
			Detail:     fmt.Sprintf("action repeated %d times with no screen change", count),
		}
	}
	return next, nil
}

// AnomalyMonitor detects stuck or looping execution from a stream of
// observations. State is scoped to one task run.
type AnomalyMonitor struct {
	cfg   config.AnomalyConfig
	state anomalyState
}

func NewAnomalyMonitor(cfg config.AnomalyConfig) *AnomalyMonitor {
	return &AnomalyMonitor{cfg: cfg}
}

// Observe feeds one device interaction and reports the matched anomaly, if
// any. A nil return means execution looks healthy.
func (m *AnomalyMonitor) Observe(fingerprint uint64, req schemas.ActionRequest, success bool) *schemas.AnomalyContext {
	next, anomaly := m.state.observe(m.cfg, observation{
		fingerprint: fingerprint,
		signature:   req.Signature(),
		action:      req.Kind,
		target:      req.Target,
		success:     success,
	})
	m.state = next
	return anomaly
}

// Reset clears all counters, as at task start.
func (m *AnomalyMonitor) Reset() {
	m.state = anomalyState{}
}
