// File: internal/orchestrator/models.go
package orchestrator

import (
	"time"

	"github.com/droidpilot/droidpilot-cli/api/schemas"
)

// Task is the immutable input of one orchestrator run.
type Task struct {
	ID           string       `json:"id"`
	Text         string       `json:"text"`
	Mode         schemas.Mode `json:"mode"`
	DeviceSerial string       `json:"device_serial,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
}
