// types.go — Wire and domain types for the Browser Driver (spec §4.3).
package driver

import "time"

// State is the Driver's lifecycle state machine (§4.3):
// LAUNCHING → READY → {SCREENCASTING ↔ READY} → CLOSING → CLOSED.
type State int

const (
	StateLaunching State = iota
	StateReady
	StateScreencasting
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateLaunching:
		return "LAUNCHING"
	case StateReady:
		return "READY"
	case StateScreencasting:
		return "SCREENCASTING"
	case StateClosing:
		return "CLOSING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Health mirrors the session-level health enum (spec §3).
type Health int

const (
	HealthUnknown Health = iota
	HealthHealthy
	HealthUnhealthy
)

func (h Health) String() string {
	switch h {
	case HealthHealthy:
		return "HEALTHY"
	case HealthUnhealthy:
		return "UNHEALTHY"
	default:
		return "UNKNOWN"
	}
}

// MouseAction enumerates the mouse operations the Driver dispatches (§4.3).
type MouseAction string

const (
	MouseMove MouseAction = "move"
	MouseDown MouseAction = "down"
	MouseUp   MouseAction = "up"
)

// MouseButton enumerates the buttons a mouse event may carry.
type MouseButton string

const (
	ButtonLeft   MouseButton = "left"
	ButtonRight  MouseButton = "right"
	ButtonMiddle MouseButton = "middle"
	ButtonNone   MouseButton = "none"
)

// buttonBit returns this button's bit in the CDP pressed-buttons mask
// (left=1, right=2, middle=4 — matches Chrome DevTools Protocol's
// Input.dispatchMouseEvent "buttons" bitmask).
func (b MouseButton) bit() int {
	switch b {
	case ButtonLeft:
		return 1
	case ButtonRight:
		return 2
	case ButtonMiddle:
		return 4
	default:
		return 0
	}
}

// KeyAction enumerates keyboard operations (§4.3).
type KeyAction string

const (
	KeyDown KeyAction = "down"
	KeyUp   KeyAction = "up"
)

// Modifier bits, packed per the fixed layout in §4.3: alt=1, ctrl=2, meta=4, shift=8.
const (
	ModAlt   = 1
	ModCtrl  = 2
	ModMeta  = 4
	ModShift = 8
)

// ModifierMask packs a modifier set into the fixed single bitmask.
func ModifierMask(ctrl, shift, alt, meta bool) int {
	mask := 0
	if alt {
		mask |= ModAlt
	}
	if ctrl {
		mask |= ModCtrl
	}
	if meta {
		mask |= ModMeta
	}
	if shift {
		mask |= ModShift
	}
	return mask
}

// Viewport describes the browser viewport size at session start.
type Viewport struct {
	Width  int
	Height int
}

// BrowserInfo is returned by Start, describing the launched context.
type BrowserInfo struct {
	ViewportWidth  int
	ViewportHeight int
	InitialURL     string
	UserAgent      string
}

// Frame is one JPEG screencast frame (spec §4.3/§3).
type Frame struct {
	JPEGBytes []byte
	Timestamp time.Time
}

// ElementDescriptor describes the element under a point (spec §3/§4.3).
type ElementDescriptor struct {
	Tag         string
	ID          string
	Classes     []string
	Role        string
	AriaLabel   string
	DataTestID  string
	Name        string
	Placeholder string
	Label       string
	Text        string
	BoundingBox BoundingBox
}

// BoundingBox is a viewport-relative rectangle.
type BoundingBox struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// ScreenshotOptions controls screenshot encoding.
type ScreenshotOptions struct {
	Format  string // "jpeg" or "png"
	Quality int    // 0-100, jpeg only
}

// NavTrigger classifies what caused a navigation (spec §3).
type NavTrigger string

const (
	NavUser     NavTrigger = "user"
	NavBack     NavTrigger = "back"
	NavForward  NavTrigger = "forward"
	NavReload   NavTrigger = "reload"
	NavRedirect NavTrigger = "redirect"
)

// NavigationEvent is published by the Driver whenever the top frame commits
// a new URL, regardless of trigger — the Session Manager's step recorder
// decides whether it becomes a recorded step (spec §4.4).
type NavigationEvent struct {
	FromURL string
	ToURL   string
	Title   string
	Trigger NavTrigger
}

// CDPError is the structured error emitted on any failed/timed-out
// operation (spec §4.3: "CDP_<OP>_FAILED").
type CDPError struct {
	Op      string
	Message string
}

func (e *CDPError) Error() string {
	return "CDP_" + e.Op + "_FAILED: " + e.Message
}
