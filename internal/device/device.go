// File: internal/device/device.go
// The device driver boundary. Everything above this package treats the phone
// as an opaque handle exposing screen capture and raw input.
package device

import (
	"context"
	"errors"
	"fmt"
)

// ErrDeviceBusy is returned when a second task run is started on a device
// that already has one in progress.
var ErrDeviceBusy = errors.New("device busy: a task run is already in progress")

// DeviceError reports a transport-level failure talking to the device
// (adb unreachable, device offline). Expected action failures are NOT
// DeviceErrors; they travel as failed outcomes.
type DeviceError struct {
	Serial string
	Op     string
	Err    error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("device %s: %s failed: %v", e.Serial, e.Op, e.Err)
}

func (e *DeviceError) Unwrap() error { return e.Err }

// IsDeviceError reports whether err (or anything it wraps) is a DeviceError.
func IsDeviceError(err error) bool {
	var de *DeviceError
	return errors.As(err, &de)
}

// SwipeDirection names the four supported swipe gestures.
type SwipeDirection string

const (
	SwipeUp    SwipeDirection = "up"
	SwipeDown  SwipeDirection = "down"
	SwipeLeft  SwipeDirection = "left"
	SwipeRight SwipeDirection = "right"
)

// KeyCode is an Android input keyevent code.
type KeyCode int

const (
	KeyBack KeyCode = 4
	KeyHome KeyCode = 3
)

// Device is the contract the perception layer drives. Implementations must
// serialize access per device handle.
type Device interface {
	// Serial returns the stable device identifier.
	Serial() string
	// Screenshot captures the current screen as PNG bytes.
	Screenshot(ctx context.Context) ([]byte, error)
	// ScreenSize returns the display dimensions in pixels.
	ScreenSize(ctx context.Context) (width, height int, err error)
	// Tap issues a tap at absolute pixel coordinates.
	Tap(ctx context.Context, x, y int) error
	// LongPress issues a press-and-hold at absolute pixel coordinates.
	LongPress(ctx context.Context, x, y int) error
	// Swipe performs a directional swipe across the middle of the screen.
	Swipe(ctx context.Context, dir SwipeDirection) error
	// TypeText types text into the currently focused input field.
	TypeText(ctx context.Context, text string) error
	// KeyEvent sends a hardware key event.
	KeyEvent(ctx context.Context, code KeyCode) error
	// LaunchApp starts an application by its launcher-visible name or package.
	LaunchApp(ctx context.Context, name string) error
	// CurrentApp returns the foreground application package, best effort.
	CurrentApp(ctx context.Context) (string, error)
}
