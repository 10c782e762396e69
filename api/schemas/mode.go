// File: api/schemas/mode.go
package schemas

import "fmt"

// Mode selects the orchestration strategy for one task run. Deliberate and
// Responsive share a stepwise control flow and differ only in model tier and
// prompt verbosity; Batched plans the whole sequence up front.
type Mode string

const (
	ModeDeliberate Mode = "deliberate"
	ModeResponsive Mode = "responsive"
	ModeBatched    Mode = "batched"
)

// ParseMode validates a wire-format mode string. Empty input defaults to
// Deliberate.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeDeliberate, ModeResponsive, ModeBatched:
		return Mode(s), nil
	case "":
		return ModeDeliberate, nil
	}
	return "", fmt.Errorf("unknown mode %q (want deliberate, responsive, or batched)", s)
}
