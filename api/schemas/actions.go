// File: api/schemas/actions.go
package schemas

// ActionKind is the closed vocabulary of device interactions the decision
// agent can request and the perception layer can execute.
type ActionKind string

const (
	ActionTap       ActionKind = "TAP"        // single tap on a recognized target
	ActionLongPress ActionKind = "LONG_PRESS" // press and hold a recognized target
	ActionSwipe     ActionKind = "SWIPE"      // directional swipe ("up","down","left","right")
	ActionType      ActionKind = "TYPE"       // type text into the focused field
	ActionLaunchApp ActionKind = "LAUNCH_APP" // start an application by name/package
	ActionBack      ActionKind = "BACK"       // hardware back key
	ActionHome      ActionKind = "HOME"       // hardware home key
	ActionWait      ActionKind = "WAIT"       // settle pause, content holds duration in ms
	ActionDone      ActionKind = "DONE"       // decision-agent completion signal, never executed
)

// Error codes carried on failed ActionOutcomes.
const (
	ErrCodeElementNotFound = "ELEMENT_NOT_FOUND"
	ErrCodeAppNotFound     = "APP_NOT_FOUND"
	ErrCodeInvalidAction   = "INVALID_ACTION"
)

// ActionRequest is one concrete device interaction to perform.
type ActionRequest struct {
	Kind    ActionKind `json:"kind"`
	Target  string     `json:"target,omitempty"`  // natural-language description of the UI target
	Content string     `json:"content,omitempty"` // text to type, app name, swipe direction, wait ms
}

// Signature is a stable identity for repetition detection: two requests with
// the same signature are "the same action" regardless of outcome.
func (r ActionRequest) Signature() string {
	return string(r.Kind) + "|" + r.Target + "|" + r.Content
}

// ActionOutcome reports the result of executing one ActionRequest against the
// device. Expected failures (target not found, no-op) are carried here with
// Success=false; only transport failures surface as errors.
type ActionOutcome struct {
	Kind      ActionKind `json:"kind"`
	Target    string     `json:"target,omitempty"`
	Success   bool       `json:"success"`
	Message   string     `json:"message,omitempty"`
	ErrorCode string     `json:"error_code,omitempty"`
}

// Screenshot is one captured frame plus its content fingerprint.
type Screenshot struct {
	PNG         []byte `json:"-"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	Fingerprint uint64 `json:"fingerprint"`
}

// RecognitionResult locates a described target on a screenshot. Coordinates
// are absolute pixels in the screenshot's frame.
type RecognitionResult struct {
	Found       bool   `json:"found"`
	Description string `json:"description,omitempty"`
	X           int    `json:"x"`
	Y           int    `json:"y"`
}

// ExecHooks lets a caller observe perception-side progress while an action
// executes. Both fields are optional; a nil ExecHooks disables observation.
type ExecHooks struct {
	OnVisionStart  func()
	OnVisionResult func(RecognitionResult)
}

func (h *ExecHooks) VisionStart() {
	if h != nil && h.OnVisionStart != nil {
		h.OnVisionStart()
	}
}

func (h *ExecHooks) VisionResult(res RecognitionResult) {
	if h != nil && h.OnVisionResult != nil {
		h.OnVisionResult(res)
	}
}
