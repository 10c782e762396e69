// File: internal/perception/actuator_test.go
package perception

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"testing"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/droidpilot/droidpilot-cli/api/schemas"
	"github.com/droidpilot/droidpilot-cli/internal/config"
	"github.com/droidpilot/droidpilot-cli/internal/device"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// mockDevice is a testify mock over the device driver boundary.
type mockDevice struct {
	mock.Mock
}

func (m *mockDevice) Serial() string { return "test-device" }

func (m *mockDevice) Screenshot(ctx context.Context) ([]byte, error) {
	args := m.Called(ctx)
	if b := args.Get(0); b != nil {
		return b.([]byte), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockDevice) ScreenSize(ctx context.Context) (int, int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Int(1), args.Error(2)
}

func (m *mockDevice) Tap(ctx context.Context, x, y int) error {
	return m.Called(ctx, x, y).Error(0)
}

func (m *mockDevice) LongPress(ctx context.Context, x, y int) error {
	return m.Called(ctx, x, y).Error(0)
}

func (m *mockDevice) Swipe(ctx context.Context, dir device.SwipeDirection) error {
	return m.Called(ctx, dir).Error(0)
}

func (m *mockDevice) TypeText(ctx context.Context, text string) error {
	return m.Called(ctx, text).Error(0)
}

func (m *mockDevice) KeyEvent(ctx context.Context, code device.KeyCode) error {
	return m.Called(ctx, code).Error(0)
}

func (m *mockDevice) LaunchApp(ctx context.Context, name string) error {
	return m.Called(ctx, name).Error(0)
}

func (m *mockDevice) CurrentApp(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

// mockLLM is a testify mock over the model client boundary.
type mockLLM struct {
	mock.Mock
}

// The mock must track the real client contract exactly.
var _ schemas.LLMClient = (*mockLLM)(nil)

func (m *mockLLM) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *mockLLM) GenerateStream(ctx context.Context, req schemas.GenerationRequest, onChunk schemas.StreamHandler) (string, error) {
	args := m.Called(ctx, req, onChunk)
	return args.String(0), args.Error(1)
}

// testPNG renders a real PNG so CaptureScreen can read its dimensions.
func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

func newTestActuator(dev device.Device, vision schemas.LLMClient) *Actuator {
	return NewActuator(dev, vision, config.DeviceConfig{SettleWait: 0})
}

func TestCaptureScreenFingerprint(t *testing.T) {
	raw := testPNG(t, 108, 240)
	dev := &mockDevice{}
	dev.On("Screenshot", mock.Anything).Return(raw, nil)

	act := newTestActuator(dev, &mockLLM{})
	shot, err := act.CaptureScreen(context.Background())
	require.NoError(t, err)
	assert.Equal(t, xxhash.Sum64(raw), shot.Fingerprint)
	assert.Equal(t, 108, shot.Width)
	assert.Equal(t, 240, shot.Height)
}

func TestCaptureScreenIdenticalBytesIdenticalFingerprint(t *testing.T) {
	raw := testPNG(t, 10, 10)
	dev := &mockDevice{}
	dev.On("Screenshot", mock.Anything).Return(raw, nil)

	act := newTestActuator(dev, &mockLLM{})
	a, err := act.CaptureScreen(context.Background())
	require.NoError(t, err)
	b, err := act.CaptureScreen(context.Background())
	require.NoError(t, err)
	assert.Equal(t, a.Fingerprint, b.Fingerprint)
}

func TestRecognizeScalesCoordinates(t *testing.T) {
	llm := &mockLLM{}
	llm.On("Generate", mock.Anything, mock.Anything).
		Return(`{"found": true, "description": "blue Login button", "x": 500, "y": 250}`, nil)

	act := newTestActuator(&mockDevice{}, llm)
	shot := schemas.Screenshot{PNG: []byte{1}, Width: 1080, Height: 2400}

	res, err := act.Recognize(context.Background(), shot, "the login button")
	require.NoError(t, err)
	assert.True(t, res.Found)
	assert.Equal(t, 540, res.X)
	assert.Equal(t, 600, res.Y)
	assert.Equal(t, "blue Login button", res.Description)
}

func TestRecognizeNotFoundIsNotAnError(t *testing.T) {
	llm := &mockLLM{}
	llm.On("Generate", mock.Anything, mock.Anything).
		Return(`{"found": false, "description": "no such element visible", "x": 0, "y": 0}`, nil)

	act := newTestActuator(&mockDevice{}, llm)
	res, err := act.Recognize(context.Background(), schemas.Screenshot{Width: 100, Height: 100}, "ghost button")
	require.NoError(t, err)
	assert.False(t, res.Found)
}

func TestRecognizeUnparseableResponse(t *testing.T) {
	llm := &mockLLM{}
	llm.On("Generate", mock.Anything, mock.Anything).Return("I cannot help with that.", nil)

	act := newTestActuator(&mockDevice{}, llm)
	_, err := act.Recognize(context.Background(), schemas.Screenshot{}, "anything")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "vision response unparseable")
}

func TestExecuteTapSuccess(t *testing.T) {
	raw := testPNG(t, 100, 200)
	dev := &mockDevice{}
	dev.On("Screenshot", mock.Anything).Return(raw, nil)
	dev.On("Tap", mock.Anything, 50, 100).Return(nil)

	llm := &mockLLM{}
	llm.On("Generate", mock.Anything, mock.Anything).
		Return(`{"found": true, "description": "Settings icon", "x": 500, "y": 500}`, nil)

	act := newTestActuator(dev, llm)
	out, err := act.Execute(context.Background(), schemas.ActionRequest{
		Kind: schemas.ActionTap, Target: "Settings icon",
	}, nil)
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, schemas.ActionTap, out.Kind)
	dev.AssertCalled(t, "Tap", mock.Anything, 50, 100)
}

func TestExecuteTapTargetNotFoundIsFailedOutcome(t *testing.T) {
	raw := testPNG(t, 100, 200)
	dev := &mockDevice{}
	dev.On("Screenshot", mock.Anything).Return(raw, nil)

	llm := &mockLLM{}
	llm.On("Generate", mock.Anything, mock.Anything).
		Return(`{"found": false, "description": "not visible", "x": 0, "y": 0}`, nil)

	act := newTestActuator(dev, llm)
	out, err := act.Execute(context.Background(), schemas.ActionRequest{
		Kind: schemas.ActionTap, Target: "Submit button",
	}, nil)
	require.NoError(t, err, "a missing target is an expected failure, not a transport error")
	assert.False(t, out.Success)
	assert.Equal(t, schemas.ErrCodeElementNotFound, out.ErrorCode)
	dev.AssertNotCalled(t, "Tap", mock.Anything, mock.Anything, mock.Anything)
}

func TestExecuteTapFiresVisionHooks(t *testing.T) {
	raw := testPNG(t, 100, 200)
	dev := &mockDevice{}
	dev.On("Screenshot", mock.Anything).Return(raw, nil)
	dev.On("Tap", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	llm := &mockLLM{}
	llm.On("Generate", mock.Anything, mock.Anything).
		Return(`{"found": true, "description": "gear icon", "x": 100, "y": 100}`, nil)

	var started bool
	var seen schemas.RecognitionResult
	hooks := &schemas.ExecHooks{
		OnVisionStart:  func() { started = true },
		OnVisionResult: func(res schemas.RecognitionResult) { seen = res },
	}

	act := newTestActuator(dev, llm)
	_, err := act.Execute(context.Background(), schemas.ActionRequest{
		Kind: schemas.ActionTap, Target: "Settings icon",
	}, hooks)
	require.NoError(t, err)
	assert.True(t, started)
	assert.True(t, seen.Found)
	assert.Equal(t, "gear icon", seen.Description)
}

func TestExecuteTransportErrorPropagates(t *testing.T) {
	dev := &mockDevice{}
	dev.On("Screenshot", mock.Anything).Return(nil,
		&device.DeviceError{Serial: "test-device", Op: "screenshot", Err: errors.New("offline")})

	act := newTestActuator(dev, &mockLLM{})
	_, err := act.Execute(context.Background(), schemas.ActionRequest{
		Kind: schemas.ActionTap, Target: "anything",
	}, nil)
	require.Error(t, err)
	assert.True(t, device.IsDeviceError(err))
}

func TestExecuteSwipeDirectionFromTargetOrContent(t *testing.T) {
	dev := &mockDevice{}
	dev.On("Swipe", mock.Anything, device.SwipeUp).Return(nil)
	dev.On("Swipe", mock.Anything, device.SwipeLeft).Return(nil)

	act := newTestActuator(dev, &mockLLM{})

	out, err := act.Execute(context.Background(), schemas.ActionRequest{Kind: schemas.ActionSwipe, Target: "up"}, nil)
	require.NoError(t, err)
	assert.True(t, out.Success)

	out, err = act.Execute(context.Background(), schemas.ActionRequest{Kind: schemas.ActionSwipe, Content: "LEFT"}, nil)
	require.NoError(t, err)
	assert.True(t, out.Success)

	out, err = act.Execute(context.Background(), schemas.ActionRequest{Kind: schemas.ActionSwipe, Target: "sideways"}, nil)
	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.Equal(t, schemas.ErrCodeInvalidAction, out.ErrorCode)
}

func TestExecuteTypeAndKeys(t *testing.T) {
	dev := &mockDevice{}
	dev.On("TypeText", mock.Anything, "hello").Return(nil)
	dev.On("KeyEvent", mock.Anything, device.KeyBack).Return(nil)
	dev.On("KeyEvent", mock.Anything, device.KeyHome).Return(nil)

	act := newTestActuator(dev, &mockLLM{})

	for _, req := range []schemas.ActionRequest{
		{Kind: schemas.ActionType, Content: "hello"},
		{Kind: schemas.ActionBack},
		{Kind: schemas.ActionHome},
	} {
		out, err := act.Execute(context.Background(), req, nil)
		require.NoError(t, err)
		assert.True(t, out.Success, "action %s", req.Kind)
	}
	dev.AssertExpectations(t)
}

func TestExecuteLaunchAppUnknownPackageIsFailedOutcome(t *testing.T) {
	dev := &mockDevice{}
	dev.On("LaunchApp", mock.Anything, "Nonexistent").Return(
		&device.DeviceError{Serial: "test-device", Op: "resolve package",
			Err: errors.New(`no installed package matches "Nonexistent"`)})

	act := newTestActuator(dev, &mockLLM{})
	out, err := act.Execute(context.Background(), schemas.ActionRequest{
		Kind: schemas.ActionLaunchApp, Target: "Nonexistent",
	}, nil)
	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.Equal(t, schemas.ErrCodeAppNotFound, out.ErrorCode)
}

func TestExecuteDoneIsNoOp(t *testing.T) {
	dev := &mockDevice{}
	act := newTestActuator(dev, &mockLLM{})

	out, err := act.Execute(context.Background(), schemas.ActionRequest{Kind: schemas.ActionDone}, nil)
	require.NoError(t, err)
	assert.True(t, out.Success)
	dev.AssertNotCalled(t, "Tap", mock.Anything, mock.Anything, mock.Anything)
}

func TestExecuteWaitHonorsCancellation(t *testing.T) {
	act := NewActuator(&mockDevice{}, &mockLLM{}, config.DeviceConfig{SettleWait: time.Hour / 2})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := act.Execute(ctx, schemas.ActionRequest{Kind: schemas.ActionWait}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
