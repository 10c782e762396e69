// File: internal/device/registry.go
package device

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/droidpilot/droidpilot-cli/internal/config"
	"github.com/droidpilot/droidpilot-cli/internal/observability"
)

// Registry hands out device drivers and enforces the one-run-per-device rule.
// Acquiring a busy device fails fast with ErrDeviceBusy rather than queueing.
type Registry struct {
	cfg    config.DeviceConfig
	logger *zap.Logger

	mu      sync.Mutex
	devices map[string]*ADBDevice
	busy    map[string]bool
}

// Lease is a held claim on a device. Release returns the device to the pool
// and is safe to call more than once.
type Lease struct {
	Device  Device
	release func()
	once    sync.Once
}

func (l *Lease) Release() {
	l.once.Do(l.release)
}

func NewRegistry(cfg config.DeviceConfig) *Registry {
	return &Registry{
		cfg:     cfg,
		logger:  observability.GetLogger().Named("device-registry"),
		devices: make(map[string]*ADBDevice),
		busy:    make(map[string]bool),
	}
}

// Acquire claims the device with the given serial for a single task run.
// An empty serial falls back to the configured default serial, and failing
// that, the sole connected device.
func (r *Registry) Acquire(ctx context.Context, serial string) (*Lease, error) {
	if serial == "" {
		serial = r.cfg.Serial
	}
	if serial == "" {
		serials, err := ListDevices(ctx, r.cfg)
		if err != nil {
			return nil, err
		}
		if len(serials) != 1 {
			return nil, &DeviceError{Op: "acquire",
				Err: errAmbiguousDevice(len(serials))}
		}
		serial = serials[0]
	}

	r.mu.Lock()
	if r.busy[serial] {
		r.mu.Unlock()
		return nil, ErrDeviceBusy
	}
	dev, ok := r.devices[serial]
	if !ok {
		dev = NewADBDevice(r.cfg, serial)
		r.devices[serial] = dev
	}
	r.busy[serial] = true
	r.mu.Unlock()

	if err := dev.Prepare(ctx); err != nil {
		r.releaseSerial(serial)
		return nil, err
	}
	r.logger.Debug("Device acquired", zap.String("serial", serial))
	return &Lease{Device: dev, release: func() { r.releaseSerial(serial) }}, nil
}

// Busy reports whether the device currently has a run in progress.
func (r *Registry) Busy(serial string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.busy[serial]
}

func (r *Registry) releaseSerial(serial string) {
	r.mu.Lock()
	delete(r.busy, serial)
	r.mu.Unlock()
	r.logger.Debug("Device released", zap.String("serial", serial))
}

type errAmbiguousDevice int

func (e errAmbiguousDevice) Error() string {
	if e == 0 {
		return "no connected devices"
	}
	return "multiple connected devices, specify a serial"
}
