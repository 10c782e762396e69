// File: internal/service/manager.go
package service

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/droidpilot/droidpilot-cli/api/schemas"
	"github.com/droidpilot/droidpilot-cli/internal/observability"
	"github.com/droidpilot/droidpilot-cli/internal/orchestrator"
)

// TaskStatus is the externally visible lifecycle of one run.
type TaskStatus string

const (
	StatusRunning   TaskStatus = "running"
	StatusCompleted TaskStatus = "completed"
	StatusError     TaskStatus = "error"
	StatusAborted   TaskStatus = "aborted"
)

// trackedRun owns the single consumer seat on a run's event channel. It
// records every event so late subscribers (SSE reconnects) replay the full
// history, and fans live events out to subscribers.
type trackedRun struct {
	run *orchestrator.Run

	mu     sync.Mutex
	log    []orchestrator.Event
	subs   map[chan orchestrator.Event]struct{}
	status TaskStatus
}

// RunStarter launches one orchestrator run per call. *Components is the
// production implementation.
type RunStarter interface {
	StartRun(ctx context.Context, text string, mode schemas.Mode, serial string) (*orchestrator.Run, error)
}

var _ RunStarter = (*Components)(nil)

// Manager tracks all runs started through the service and pumps their
// events to subscribers and the websocket hub.
type Manager struct {
	starter RunStarter
	hub     *EventHub
	logger  *zap.Logger

	mu   sync.Mutex
	runs map[string]*trackedRun
}

func NewManager(starter RunStarter, hub *EventHub) *Manager {
	return &Manager{
		starter: starter,
		hub:     hub,
		logger:  observability.GetLogger().Named("task-manager"),
		runs:    make(map[string]*trackedRun),
	}
}

// Start launches a task and begins pumping its events. The returned ID is
// the handle for the events/abort/status endpoints.
func (m *Manager) Start(ctx context.Context, text string, mode schemas.Mode, serial string) (string, error) {
	run, err := m.starter.StartRun(ctx, text, mode, serial)
	if err != nil {
		return "", err
	}

	tr := &trackedRun{
		run:    run,
		subs:   make(map[chan orchestrator.Event]struct{}),
		status: StatusRunning,
	}
	m.mu.Lock()
	m.runs[run.Task.ID] = tr
	m.mu.Unlock()

	go m.pump(tr)
	return run.Task.ID, nil
}

// pump is the sole consumer of the run's event channel.
func (m *Manager) pump(tr *trackedRun) {
	taskID := tr.run.Task.ID
	for e := range tr.run.Events() {
		tr.mu.Lock()
		tr.log = append(tr.log, e)
		switch e.(type) {
		case orchestrator.TaskCompleteEvent:
			tr.status = StatusCompleted
		case orchestrator.ErrorEvent:
			tr.status = StatusError
		case orchestrator.AbortedEvent:
			tr.status = StatusAborted
		}
		for sub := range tr.subs {
			// Subscriber channels are buffered; a subscriber that stopped
			// reading is dropped rather than stalling every other consumer.
			select {
			case sub <- e:
			default:
				delete(tr.subs, sub)
				close(sub)
			}
		}
		tr.mu.Unlock()

		if m.hub != nil {
			m.hub.BroadcastEvent(taskID, e)
		}
	}

	tr.mu.Lock()
	for sub := range tr.subs {
		close(sub)
		delete(tr.subs, sub)
	}
	tr.mu.Unlock()
	m.logger.Debug("Event pump finished", zap.String("task_id", taskID))
}

// Subscribe returns the full event history so far plus a channel of
// subsequent events. The channel closes after the terminal event. ok is
// false for unknown task IDs.
func (m *Manager) Subscribe(taskID string) (history []orchestrator.Event, live <-chan orchestrator.Event, ok bool) {
	m.mu.Lock()
	tr, found := m.runs[taskID]
	m.mu.Unlock()
	if !found {
		return nil, nil, false
	}

	tr.mu.Lock()
	defer tr.mu.Unlock()
	history = append([]orchestrator.Event(nil), tr.log...)
	ch := make(chan orchestrator.Event, 256)
	if tr.status == StatusRunning {
		tr.subs[ch] = struct{}{}
	} else {
		close(ch)
	}
	return history, ch, true
}

// Abort requests cancellation of a run. Idempotent; unknown IDs report false.
func (m *Manager) Abort(taskID string) bool {
	m.mu.Lock()
	tr, found := m.runs[taskID]
	m.mu.Unlock()
	if !found {
		return false
	}
	tr.run.Abort()
	return true
}

// Status reports a run's task and lifecycle state.
func (m *Manager) Status(taskID string) (orchestrator.Task, TaskStatus, bool) {
	m.mu.Lock()
	tr, found := m.runs[taskID]
	m.mu.Unlock()
	if !found {
		return orchestrator.Task{}, "", false
	}
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return tr.run.Task, tr.status, true
}

// Tasks lists every tracked run.
func (m *Manager) Tasks() []TaskInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]TaskInfo, 0, len(m.runs))
	for _, tr := range m.runs {
		tr.mu.Lock()
		out = append(out, TaskInfo{Task: tr.run.Task, Status: tr.status})
		tr.mu.Unlock()
	}
	return out
}

// TaskInfo is the wire shape of one tracked run.
type TaskInfo struct {
	Task   orchestrator.Task `json:"task"`
	Status TaskStatus        `json:"status"`
}
