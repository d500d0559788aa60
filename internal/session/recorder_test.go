package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brennhill/browserctl-gateway/internal/driver"
)

func newTestRecorder(t *testing.T) (*Recorder, *[]*Step) {
	t.Helper()
	var emitted []*Step
	r := NewRecorder(func(s *Step) {
		emitted = append(emitted, s)
	}, func(highlight *driver.BoundingBox) (string, string, error) {
		return "screenshots/x.jpg", "data:image/jpeg;base64,Zm9v", nil
	})
	return r, &emitted
}

func TestRecorderClickDownUpPairEmitsOneStep(t *testing.T) {
	r, emitted := newTestRecorder(t)

	r.MouseDown(100, 200, "left", &driver.ElementDescriptor{Tag: "button"})
	r.MouseUp(100, 200, "left")

	require.Len(t, *emitted, 1)
	step := (*emitted)[0]
	assert.Equal(t, ActionClick, step.Action)
	assert.Equal(t, 100.0, step.X)
	assert.Equal(t, 200.0, step.Y)
	assert.Equal(t, "left", step.Button)
	assert.NotEmpty(t, step.ScreenshotData)
}

func TestRecorderClickRequiresSameButton(t *testing.T) {
	r, emitted := newTestRecorder(t)

	r.MouseDown(10, 10, "left", nil)
	r.MouseUp(10, 10, "right")

	assert.Len(t, *emitted, 0)
}

func TestRecorderClickRequiresProximity(t *testing.T) {
	r, emitted := newTestRecorder(t)

	r.MouseDown(0, 0, "left", nil)
	r.MouseUp(500, 500, "left")

	assert.Len(t, *emitted, 0)
}

func TestRecorderNavigateOnlyWhenURLChanges(t *testing.T) {
	r, emitted := newTestRecorder(t)
	r.SetCurrentURL("https://example.com")

	r.Navigate("https://example.com", "https://example.com", "reload")
	assert.Len(t, *emitted, 0)

	r.Navigate("https://example.com", "https://example.com/page", "user")
	require.Len(t, *emitted, 1)
	assert.Equal(t, ActionNavigate, (*emitted)[0].Action)
	assert.Equal(t, "https://example.com/page", (*emitted)[0].ToURL)
}

func TestRecorderKeyboardCoalescesUntilEnter(t *testing.T) {
	r, emitted := newTestRecorder(t)

	el := &driver.ElementDescriptor{Tag: "input"}
	r.KeyboardText(el, "h", false)
	r.KeyboardText(el, "i", false)
	r.KeyboardText(el, "\n", true)

	require.Len(t, *emitted, 1)
	step := (*emitted)[0]
	assert.Equal(t, ActionType, step.Action)
	assert.Equal(t, "hi\n", step.Text)
	assert.True(t, step.Submitted)
}

func TestRecorderKeyboardFlushesOnIdleTimeout(t *testing.T) {
	r, emitted := newTestRecorder(t)
	r.KeyboardText(&driver.ElementDescriptor{Tag: "input"}, "x", false)

	assert.Eventually(t, func() bool {
		return len(*emitted) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRecorderKeypressEmitsImmediately(t *testing.T) {
	r, emitted := newTestRecorder(t)
	r.Keypress("Escape", nil)

	require.Len(t, *emitted, 1)
	assert.Equal(t, ActionKeypress, (*emitted)[0].Action)
	assert.Equal(t, "Escape", (*emitted)[0].Key)
}

func TestRecorderKeypressFlushesPendingType(t *testing.T) {
	r, emitted := newTestRecorder(t)
	r.KeyboardText(&driver.ElementDescriptor{Tag: "input"}, "partial", false)
	r.Keypress("Tab", nil)

	require.Len(t, *emitted, 2)
	assert.Equal(t, ActionType, (*emitted)[0].Action)
	assert.Equal(t, ActionKeypress, (*emitted)[1].Action)
}

func TestRecorderScrollWindowSumsDeltas(t *testing.T) {
	r, emitted := newTestRecorder(t)

	r.Scroll(10, 10, 5, 5)
	r.Scroll(10, 10, 3, -2)

	assert.Eventually(t, func() bool {
		return len(*emitted) == 1
	}, 2*time.Second, 10*time.Millisecond)

	step := (*emitted)[0]
	assert.Equal(t, ActionScroll, step.Action)
	assert.Equal(t, 8.0, step.DeltaX)
	assert.Equal(t, 3.0, step.DeltaY)
}
