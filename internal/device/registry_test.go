// File: internal/device/registry_test.go
package device

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/droidpilot/droidpilot-cli/internal/config"
)

func preparedRunner() *fakeRunner {
	runner := newFakeRunner()
	runner.responses["wm size"] = []byte("Physical size: 1080x2400\n")
	runner.responses["ime list"] = []byte("com.android.inputmethod.latin/.LatinIME\n")
	return runner
}

func newTestRegistry(runner commandRunner) *Registry {
	reg := NewRegistry(config.DeviceConfig{ADBPath: "adb"})
	dev := NewADBDevice(config.DeviceConfig{ADBPath: "adb"}, "emulator-5554")
	dev.runner = runner
	reg.devices["emulator-5554"] = dev
	return reg
}

func TestRegistryAcquireRelease(t *testing.T) {
	reg := newTestRegistry(preparedRunner())

	lease, err := reg.Acquire(context.Background(), "emulator-5554")
	require.NoError(t, err)
	assert.Equal(t, "emulator-5554", lease.Device.Serial())
	assert.True(t, reg.Busy("emulator-5554"))

	lease.Release()
	assert.False(t, reg.Busy("emulator-5554"))
}

func TestRegistryBusyFailsFast(t *testing.T) {
	reg := newTestRegistry(preparedRunner())

	lease, err := reg.Acquire(context.Background(), "emulator-5554")
	require.NoError(t, err)
	defer lease.Release()

	_, err = reg.Acquire(context.Background(), "emulator-5554")
	assert.ErrorIs(t, err, ErrDeviceBusy)
}

func TestRegistryReleaseIdempotent(t *testing.T) {
	reg := newTestRegistry(preparedRunner())

	lease, err := reg.Acquire(context.Background(), "emulator-5554")
	require.NoError(t, err)

	lease.Release()
	lease.Release()
	assert.False(t, reg.Busy("emulator-5554"))

	// The device is reacquirable after release.
	lease2, err := reg.Acquire(context.Background(), "emulator-5554")
	require.NoError(t, err)
	lease2.Release()
}

func TestRegistryPrepareFailureReleasesSlot(t *testing.T) {
	runner := newFakeRunner()
	runner.errors["wm size"] = assert.AnError
	reg := newTestRegistry(runner)

	_, err := reg.Acquire(context.Background(), "emulator-5554")
	require.Error(t, err)
	assert.False(t, reg.Busy("emulator-5554"), "failed acquire must not leave the device busy")
}

func TestRegistryDefaultSerialFromConfig(t *testing.T) {
	reg := NewRegistry(config.DeviceConfig{ADBPath: "adb", Serial: "emulator-5554"})
	dev := NewADBDevice(config.DeviceConfig{ADBPath: "adb"}, "emulator-5554")
	dev.runner = preparedRunner()
	reg.devices["emulator-5554"] = dev

	lease, err := reg.Acquire(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "emulator-5554", lease.Device.Serial())
	lease.Release()
}
