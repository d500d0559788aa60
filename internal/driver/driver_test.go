package driver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMouseButtonBit(t *testing.T) {
	assert.Equal(t, 1, ButtonLeft.bit())
	assert.Equal(t, 2, ButtonRight.bit())
	assert.Equal(t, 4, ButtonMiddle.bit())
	assert.Equal(t, 0, ButtonNone.bit())
}

func TestModifierMask(t *testing.T) {
	cases := []struct {
		ctrl, shift, alt, meta bool
		want                   int
	}{
		{false, false, false, false, 0},
		{true, false, false, false, ModCtrl},
		{false, true, false, false, ModShift},
		{false, false, true, false, ModAlt},
		{false, false, false, true, ModMeta},
		{true, true, true, true, ModAlt | ModCtrl | ModMeta | ModShift},
	}
	for _, c := range cases {
		got := ModifierMask(c.ctrl, c.shift, c.alt, c.meta)
		assert.Equal(t, c.want, got)
	}
}

func TestResolveKeyCodeNamed(t *testing.T) {
	code, keyCode, ok := resolveKeyCode("ArrowUp")
	require.True(t, ok)
	assert.Equal(t, "ArrowUp", code)
	assert.Equal(t, 38, keyCode)
}

func TestResolveKeyCodeFunctionKeys(t *testing.T) {
	code, keyCode, ok := resolveKeyCode("F1")
	require.True(t, ok)
	assert.Equal(t, "F1", code)
	assert.Equal(t, 112, keyCode)

	code, keyCode, ok = resolveKeyCode("F24")
	require.True(t, ok)
	assert.Equal(t, "F24", code)
	assert.Equal(t, 135, keyCode)
}

func TestResolveKeyCodeSingleChar(t *testing.T) {
	code, keyCode, ok := resolveKeyCode("a")
	require.True(t, ok)
	assert.Equal(t, "KeyA", code)
	assert.Equal(t, 65, keyCode)

	code, keyCode, ok = resolveKeyCode("5")
	require.True(t, ok)
	assert.Equal(t, "Digit5", code)
	assert.Equal(t, 53, keyCode)
}

func TestResolveKeyCodeUnknown(t *testing.T) {
	_, _, ok := resolveKeyCode("ContextMenu")
	assert.False(t, ok)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "READY", StateReady.String())
	assert.Equal(t, "SCREENCASTING", StateScreencasting.String())
	assert.Equal(t, "UNKNOWN", State(99).String())
}

func TestHealthString(t *testing.T) {
	assert.Equal(t, "HEALTHY", HealthHealthy.String())
	assert.Equal(t, "UNHEALTHY", HealthUnhealthy.String())
	assert.Equal(t, "UNKNOWN", HealthUnknown.String())
}

func TestCDPErrorMessage(t *testing.T) {
	err := &CDPError{Op: "NAVIGATE", Message: "timed out after 30s"}
	assert.Equal(t, "CDP_NAVIGATE_FAILED: timed out after 30s", err.Error())
}

func TestWithTimeoutReturnsCDPErrorOnFailure(t *testing.T) {
	err := withTimeout(context.Background(), "CLICK", func(ctx context.Context) error {
		return errors.New("cdp send failed")
	})
	require.Error(t, err)
	cdpErr, ok := err.(*CDPError)
	require.True(t, ok)
	assert.Equal(t, "CLICK", cdpErr.Op)
}

func TestWithTimeoutSucceeds(t *testing.T) {
	err := withTimeout(context.Background(), "SLOW", func(ctx context.Context) error {
		time.Sleep(5 * time.Millisecond)
		return nil
	})
	assert.NoError(t, err)
}

func TestDescriptorFromMap(t *testing.T) {
	m := map[string]interface{}{
		"tag":         "button",
		"id":          "submit-btn",
		"testId":      "submit",
		"role":        "button",
		"text":        "Submit",
		"label":       "Submit form",
		"name":        "",
		"placeholder": "",
		"classes":     []interface{}{"btn", "btn-primary"},
		"box": map[string]interface{}{
			"x": 10.0, "y": 20.0, "width": 100.0, "height": 40.0,
		},
	}
	d := descriptorFromMap(m)
	assert.Equal(t, "button", d.Tag)
	assert.Equal(t, "submit-btn", d.ID)
	assert.Equal(t, "submit", d.DataTestID)
	assert.Equal(t, "Submit form", d.Label)
	assert.Equal(t, []string{"btn", "btn-primary"}, d.Classes)
	assert.Equal(t, BoundingBox{X: 10, Y: 20, Width: 100, Height: 40}, d.BoundingBox)
}

func TestDescriptorFromMapMissingBox(t *testing.T) {
	d := descriptorFromMap(map[string]interface{}{"tag": "div"})
	assert.Equal(t, "div", d.Tag)
	assert.Equal(t, BoundingBox{}, d.BoundingBox)
}
