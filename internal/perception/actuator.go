// File: internal/perception/actuator.go
// The perception/actuation side of the agent pair: it owns the eyes (screen
// capture + vision model) and the hands (device input). It never reasons
// about the task; that belongs to the decision side.
package perception

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"

	"github.com/droidpilot/droidpilot-cli/api/schemas"
	"github.com/droidpilot/droidpilot-cli/internal/config"
	"github.com/droidpilot/droidpilot-cli/internal/device"
	"github.com/droidpilot/droidpilot-cli/internal/llmutil"
	"github.com/droidpilot/droidpilot-cli/internal/observability"
)

// Actuator captures screens, locates targets with the vision model, and
// drives the device. Expected action failures (target not found, gesture
// rejected) come back as failed ActionOutcomes; only transport failures
// are returned as errors.
type Actuator struct {
	dev    device.Device
	vision schemas.LLMClient
	settle time.Duration
	logger *zap.Logger
}

// visionReply is the structured answer the vision model is prompted to
// produce. Coordinates are normalized to a 0-1000 grid so the model never
// needs to know the device resolution.
type visionReply struct {
	Found       bool   `json:"found"`
	Description string `json:"description"`
	X           int    `json:"x"`
	Y           int    `json:"y"`
}

func NewActuator(dev device.Device, vision schemas.LLMClient, cfg config.DeviceConfig) *Actuator {
	return &Actuator{
		dev:    dev,
		vision: vision,
		settle: cfg.SettleWait,
		logger: observability.GetLogger().Named("perception").With(zap.String("serial", dev.Serial())),
	}
}

// CaptureScreen grabs the current screen and fingerprints it. The
// fingerprint is a content hash of the raw PNG bytes; identical pixels
// yield identical fingerprints, which is what the anomaly rules key on.
func (a *Actuator) CaptureScreen(ctx context.Context) (schemas.Screenshot, error) {
	raw, err := a.dev.Screenshot(ctx)
	if err != nil {
		return schemas.Screenshot{}, err
	}
	shot := schemas.Screenshot{
		PNG:         raw,
		Fingerprint: xxhash.Sum64(raw),
	}
	if cfg, err := png.DecodeConfig(bytes.NewReader(raw)); err == nil {
		shot.Width = cfg.Width
		shot.Height = cfg.Height
	} else {
		// Fall back to the reported display size; the capture is still usable.
		shot.Width, shot.Height, _ = a.dev.ScreenSize(ctx)
	}
	a.logger.Debug("Screen captured",
		zap.Uint64("fingerprint", shot.Fingerprint),
		zap.Int("bytes", len(raw)))
	return shot, nil
}

// Recognize asks the vision model where targetDescription appears on the
// screenshot. A "not found" answer is a normal result, not an error.
func (a *Actuator) Recognize(ctx context.Context, shot schemas.Screenshot, target string) (schemas.RecognitionResult, error) {
	req := schemas.GenerationRequest{
		SystemPrompt: recognizeSystemPrompt,
		UserPrompt:   fmt.Sprintf(recognizeUserPromptFmt, target),
		Images:       [][]byte{shot.PNG},
		Tier:         schemas.TierFast,
	}
	raw, err := a.vision.Generate(ctx, req)
	if err != nil {
		return schemas.RecognitionResult{}, err
	}
	reply, err := llmutil.ParseJSONResponse[visionReply](raw)
	if err != nil {
		return schemas.RecognitionResult{}, fmt.Errorf("vision response unparseable: %w", err)
	}
	res := schemas.RecognitionResult{
		Found:       reply.Found,
		Description: reply.Description,
	}
	if reply.Found {
		res.X = scaleCoord(reply.X, shot.Width)
		res.Y = scaleCoord(reply.Y, shot.Height)
	}
	a.logger.Debug("Recognition complete",
		zap.String("target", target),
		zap.Bool("found", res.Found),
		zap.Int("x", res.X),
		zap.Int("y", res.Y))
	return res, nil
}

// Execute performs one action against the device and reports the outcome.
// It re-observes the screen for coordinate actions rather than trusting a
// stale screenshot. hooks may be nil.
func (a *Actuator) Execute(ctx context.Context, req schemas.ActionRequest, hooks *schemas.ExecHooks) (schemas.ActionOutcome, error) {
	outcome := schemas.ActionOutcome{Kind: req.Kind, Target: req.Target}

	switch req.Kind {
	case schemas.ActionTap, schemas.ActionLongPress:
		hooks.VisionStart()
		shot, err := a.CaptureScreen(ctx)
		if err != nil {
			return outcome, err
		}
		res, err := a.Recognize(ctx, shot, req.Target)
		if err != nil {
			return outcome, err
		}
		hooks.VisionResult(res)
		if !res.Found {
			outcome.Success = false
			outcome.ErrorCode = schemas.ErrCodeElementNotFound
			outcome.Message = fmt.Sprintf("could not locate %q on screen", req.Target)
			return outcome, nil
		}
		if req.Kind == schemas.ActionLongPress {
			err = a.dev.LongPress(ctx, res.X, res.Y)
		} else {
			err = a.dev.Tap(ctx, res.X, res.Y)
		}
		if err != nil {
			return outcome, err
		}
		outcome.Message = fmt.Sprintf("%s at (%d, %d): %s", strings.ToLower(string(req.Kind)), res.X, res.Y, res.Description)

	case schemas.ActionSwipe:
		dir, ok := parseSwipeDirection(req.Target)
		if !ok {
			dir, ok = parseSwipeDirection(req.Content)
		}
		if !ok {
			outcome.Success = false
			outcome.ErrorCode = schemas.ErrCodeInvalidAction
			outcome.Message = fmt.Sprintf("unknown swipe direction %q", req.Target)
			return outcome, nil
		}
		if err := a.dev.Swipe(ctx, dir); err != nil {
			return outcome, err
		}
		outcome.Message = "swiped " + string(dir)

	case schemas.ActionType:
		if err := a.dev.TypeText(ctx, req.Content); err != nil {
			return outcome, err
		}
		outcome.Message = fmt.Sprintf("typed %d characters", len([]rune(req.Content)))

	case schemas.ActionLaunchApp:
		if err := a.dev.LaunchApp(ctx, req.Target); err != nil {
			if device.IsDeviceError(err) && strings.Contains(err.Error(), "no installed package") {
				outcome.Success = false
				outcome.ErrorCode = schemas.ErrCodeAppNotFound
				outcome.Message = err.Error()
				return outcome, nil
			}
			return outcome, err
		}
		outcome.Message = "launched " + req.Target

	case schemas.ActionBack:
		if err := a.dev.KeyEvent(ctx, device.KeyBack); err != nil {
			return outcome, err
		}
		outcome.Message = "pressed back"

	case schemas.ActionHome:
		if err := a.dev.KeyEvent(ctx, device.KeyHome); err != nil {
			return outcome, err
		}
		outcome.Message = "pressed home"

	case schemas.ActionWait:
		if err := sleepCtx(ctx, a.settle*2); err != nil {
			return outcome, err
		}
		outcome.Message = "waited"
		outcome.Success = true
		return outcome, nil

	case schemas.ActionDone:
		outcome.Success = true
		outcome.Message = "task reported complete"
		return outcome, nil

	default:
		outcome.Success = false
		outcome.ErrorCode = schemas.ErrCodeInvalidAction
		outcome.Message = fmt.Sprintf("unsupported action kind %q", req.Kind)
		return outcome, nil
	}

	// Let the UI settle before the next observation.
	if err := sleepCtx(ctx, a.settle); err != nil {
		return outcome, err
	}
	outcome.Success = true
	return outcome, nil
}

func parseSwipeDirection(target string) (device.SwipeDirection, bool) {
	switch strings.ToLower(strings.TrimSpace(target)) {
	case "up":
		return device.SwipeUp, true
	case "down":
		return device.SwipeDown, true
	case "left":
		return device.SwipeLeft, true
	case "right":
		return device.SwipeRight, true
	}
	return "", false
}

// scaleCoord maps a 0-1000 normalized coordinate onto a pixel axis.
func scaleCoord(norm, pixels int) int {
	if pixels <= 0 {
		return norm
	}
	if norm < 0 {
		norm = 0
	}
	if norm > 1000 {
		norm = 1000
	}
	return norm * pixels / 1000
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
