// File: internal/device/adb.go
package device

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/droidpilot/droidpilot-cli/internal/config"
	"github.com/droidpilot/droidpilot-cli/internal/observability"
)

// commandRunner abstracts process execution so tests can stub the adb binary.
type commandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = strings.TrimSpace(stdout.String())
		}
		if msg != "" {
			return nil, fmt.Errorf("%w: %s", err, msg)
		}
		return nil, err
	}
	return stdout.Bytes(), nil
}

var (
	physicalSizeRe = regexp.MustCompile(`Physical size:\s*(\d+)x(\d+)`)
	overrideSizeRe = regexp.MustCompile(`Override size:\s*(\d+)x(\d+)`)
	resumedRe      = regexp.MustCompile(`mResumedActivity.*\s([\w.]+)/[\w.$]+`)
)

// adbKeyboardIME is the input method used for reliable unicode text entry.
// When it is not installed we fall back to `input text`.
const adbKeyboardIME = "com.android.adbkeyboard/.AdbIME"

// ADBDevice drives a single Android device through the adb binary.
type ADBDevice struct {
	serial  string
	adbPath string
	timeout time.Duration
	runner  commandRunner
	logger  *zap.Logger

	hasADBKeyboard bool
	width, height  int
}

var _ Device = (*ADBDevice)(nil)

// NewADBDevice creates a driver for the given serial. It does not touch the
// device until the first command is issued.
func NewADBDevice(cfg config.DeviceConfig, serial string) *ADBDevice {
	return &ADBDevice{
		serial:  serial,
		adbPath: cfg.ADBPath,
		timeout: cfg.CommandTimeout,
		runner:  execRunner{},
		logger:  observability.GetLogger().Named("device").With(zap.String("serial", serial)),
	}
}

func (d *ADBDevice) Serial() string { return d.serial }

// Prepare probes the device once: display size and whether the ADB keyboard
// IME is available. Safe to call more than once.
func (d *ADBDevice) Prepare(ctx context.Context) error {
	if _, _, err := d.ScreenSize(ctx); err != nil {
		return err
	}
	out, err := d.shell(ctx, "ime", "list", "-s")
	if err != nil {
		return err
	}
	d.hasADBKeyboard = strings.Contains(string(out), adbKeyboardIME)
	if d.hasADBKeyboard {
		if _, err := d.shell(ctx, "ime", "enable", adbKeyboardIME); err != nil {
			d.logger.Warn("Failed to enable ADB keyboard, falling back to input text", zap.Error(err))
			d.hasADBKeyboard = false
		}
	}
	d.logger.Debug("Device prepared",
		zap.Int("width", d.width),
		zap.Int("height", d.height),
		zap.Bool("adb_keyboard", d.hasADBKeyboard))
	return nil
}

func (d *ADBDevice) Screenshot(ctx context.Context) ([]byte, error) {
	png, err := d.exec(ctx, "exec-out", "screencap", "-p")
	if err != nil {
		return nil, &DeviceError{Serial: d.serial, Op: "screenshot", Err: err}
	}
	return png, nil
}

func (d *ADBDevice) ScreenSize(ctx context.Context) (int, int, error) {
	if d.width > 0 && d.height > 0 {
		return d.width, d.height, nil
	}
	out, err := d.shell(ctx, "wm", "size")
	if err != nil {
		return 0, 0, &DeviceError{Serial: d.serial, Op: "screen size", Err: err}
	}
	// An override size takes precedence over the physical panel size.
	m := overrideSizeRe.FindSubmatch(out)
	if m == nil {
		m = physicalSizeRe.FindSubmatch(out)
	}
	if m == nil {
		return 0, 0, &DeviceError{Serial: d.serial, Op: "screen size", Err: fmt.Errorf("unparseable wm size output: %q", out)}
	}
	d.width, _ = strconv.Atoi(string(m[1]))
	d.height, _ = strconv.Atoi(string(m[2]))
	return d.width, d.height, nil
}

func (d *ADBDevice) Tap(ctx context.Context, x, y int) error {
	_, err := d.shell(ctx, "input", "tap", strconv.Itoa(x), strconv.Itoa(y))
	if err != nil {
		return &DeviceError{Serial: d.serial, Op: "tap", Err: err}
	}
	return nil
}

func (d *ADBDevice) LongPress(ctx context.Context, x, y int) error {
	xs, ys := strconv.Itoa(x), strconv.Itoa(y)
	// A swipe with identical endpoints and a long duration is a long press.
	_, err := d.shell(ctx, "input", "swipe", xs, ys, xs, ys, "800")
	if err != nil {
		return &DeviceError{Serial: d.serial, Op: "long press", Err: err}
	}
	return nil
}

func (d *ADBDevice) Swipe(ctx context.Context, dir SwipeDirection) error {
	w, h, err := d.ScreenSize(ctx)
	if err != nil {
		return err
	}
	cx, cy := w/2, h/2
	var x1, y1, x2, y2 int
	switch dir {
	case SwipeUp:
		x1, y1, x2, y2 = cx, h*3/4, cx, h/4
	case SwipeDown:
		x1, y1, x2, y2 = cx, h/4, cx, h*3/4
	case SwipeLeft:
		x1, y1, x2, y2 = w*3/4, cy, w/4, cy
	case SwipeRight:
		x1, y1, x2, y2 = w/4, cy, w*3/4, cy
	default:
		return &DeviceError{Serial: d.serial, Op: "swipe", Err: fmt.Errorf("unknown direction %q", dir)}
	}
	_, err = d.shell(ctx, "input", "swipe",
		strconv.Itoa(x1), strconv.Itoa(y1), strconv.Itoa(x2), strconv.Itoa(y2), "300")
	if err != nil {
		return &DeviceError{Serial: d.serial, Op: "swipe", Err: err}
	}
	return nil
}

func (d *ADBDevice) TypeText(ctx context.Context, text string) error {
	if d.hasADBKeyboard {
		encoded := base64.StdEncoding.EncodeToString([]byte(text))
		_, err := d.shell(ctx, "am", "broadcast", "-a", "ADB_INPUT_B64", "--es", "msg", encoded)
		if err != nil {
			return &DeviceError{Serial: d.serial, Op: "type text", Err: err}
		}
		return nil
	}
	// `input text` cannot carry spaces or shell metacharacters verbatim.
	escaped := strings.ReplaceAll(text, " ", "%s")
	_, err := d.shell(ctx, "input", "text", escaped)
	if err != nil {
		return &DeviceError{Serial: d.serial, Op: "type text", Err: err}
	}
	return nil
}

func (d *ADBDevice) KeyEvent(ctx context.Context, code KeyCode) error {
	_, err := d.shell(ctx, "input", "keyevent", strconv.Itoa(int(code)))
	if err != nil {
		return &DeviceError{Serial: d.serial, Op: "key event", Err: err}
	}
	return nil
}

func (d *ADBDevice) LaunchApp(ctx context.Context, name string) error {
	pkg, err := d.resolvePackage(ctx, name)
	if err != nil {
		return err
	}
	_, err = d.shell(ctx, "monkey", "-p", pkg, "-c", "android.intent.category.LAUNCHER", "1")
	if err != nil {
		return &DeviceError{Serial: d.serial, Op: "launch app", Err: err}
	}
	return nil
}

func (d *ADBDevice) CurrentApp(ctx context.Context) (string, error) {
	out, err := d.shell(ctx, "dumpsys", "activity", "activities")
	if err != nil {
		return "", &DeviceError{Serial: d.serial, Op: "current app", Err: err}
	}
	m := resumedRe.FindSubmatch(out)
	if m == nil {
		return "", nil
	}
	return string(m[1]), nil
}

// resolvePackage turns a human app name into an installed package id. Names
// that already look like package ids pass through untouched.
func (d *ADBDevice) resolvePackage(ctx context.Context, name string) (string, error) {
	if strings.Contains(name, ".") {
		return name, nil
	}
	out, err := d.shell(ctx, "pm", "list", "packages")
	if err != nil {
		return "", &DeviceError{Serial: d.serial, Op: "resolve package", Err: err}
	}
	needle := strings.ToLower(strings.ReplaceAll(name, " ", ""))
	for _, line := range strings.Split(string(out), "\n") {
		pkg := strings.TrimSpace(strings.TrimPrefix(line, "package:"))
		if pkg == "" {
			continue
		}
		if strings.Contains(strings.ToLower(pkg), needle) {
			return pkg, nil
		}
	}
	return "", &DeviceError{Serial: d.serial, Op: "resolve package",
		Err: fmt.Errorf("no installed package matches %q", name)}
}

func (d *ADBDevice) shell(ctx context.Context, args ...string) ([]byte, error) {
	return d.exec(ctx, append([]string{"shell"}, args...)...)
}

func (d *ADBDevice) exec(ctx context.Context, args ...string) ([]byte, error) {
	full := append([]string{"-s", d.serial}, args...)
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}
	out, err := d.runner.Run(ctx, d.adbPath, full...)
	if err != nil {
		d.logger.Debug("adb command failed", zap.Strings("args", args), zap.Error(err))
		return nil, err
	}
	return out, nil
}

// ListDevices enumerates serials of devices in "device" state.
func ListDevices(ctx context.Context, cfg config.DeviceConfig) ([]string, error) {
	out, err := execRunner{}.Run(ctx, cfg.ADBPath, "devices")
	if err != nil {
		return nil, fmt.Errorf("adb devices: %w", err)
	}
	var serials []string
	for _, line := range strings.Split(string(out), "\n")[1:] {
		fields := strings.Fields(line)
		if len(fields) == 2 && fields[1] == "device" {
			serials = append(serials, fields[0])
		}
	}
	return serials, nil
}
