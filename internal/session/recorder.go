// recorder.go — Step recorder state machine (spec §4.4). Consumes
// normalized input events and the Driver's navigation signals, and emits Step creations on the owning Session's StepStore.
//
// Grounded on the teacher's internal/recording/playback_engine.go for the
// shape of "buffer raw events, flush into one semantic action on timeout or
// boundary condition", generalized from replaying a recorded script to
// recording one live.
package session

import (
	"sync"
	"time"

	"github.com/brennhill/browserctl-gateway/internal/driver"
)

const (
	clickPairWindow    = 500 * time.Millisecond
	typeIdleWindow      = 1000 * time.Millisecond
	scrollWindow        = 250 * time.Millisecond
)

// ScreenshotFunc captures a step's attached screenshot. highlight is nil
// when no element descriptor is known (scroll/keypress/navigate).
type ScreenshotFunc func(highlight *driver.BoundingBox) (path string, dataURL string, err error)

// Recorder accumulates raw input events for one session and flushes them
// into Steps via emit. It is not safe for concurrent use from more than one
// goroutine except through its exported methods, which serialize internally.
type Recorder struct {
	mu sync.Mutex

	emit      func(step *Step)
	screenshot ScreenshotFunc

	pendingClick *clickState
	clickTimer   *time.Timer

	typing      *typeState
	typeTimer   *time.Timer

	scrolling   *scrollState
	scrollTimer *time.Timer

	currentURL string
}

type clickState struct {
	x, y      float64
	button    string
	element   *driver.ElementDescriptor
	downAt    time.Time
	sawUp     bool
}

type typeState struct {
	element *driver.ElementDescriptor
	text    string
}

type scrollState struct {
	x, y           float64
	deltaX, deltaY float64
}

// NewRecorder constructs a Recorder that calls emit for every completed
// Step and screenshot to capture each one's attached image.
func NewRecorder(emit func(step *Step), screenshot ScreenshotFunc) *Recorder {
	return &Recorder{emit: emit, screenshot: screenshot}
}

// SetCurrentURL primes the URL the next navigate event is diffed against.
func (r *Recorder) SetCurrentURL(url string) {
	r.mu.Lock()
	r.currentURL = url
	r.mu.Unlock()
}

// MouseDown records the start of a potential click.
func (r *Recorder) MouseDown(x, y float64, button string, element *driver.ElementDescriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pendingClick = &clickState{x: x, y: y, button: button, element: element, downAt: time.Now()}
}

// MouseUp completes a pending click if it lands within the pairing window
// at (approximately) the same point; otherwise the down is discarded as a
// drag terminus rather than a click (spec §4.4: "click down/up pair at ≈same
// (x,y) within 500ms").
func (r *Recorder) MouseUp(x, y float64, button string) {
	r.mu.Lock()
	pending := r.pendingClick
	r.pendingClick = nil
	r.mu.Unlock()

	if pending == nil || pending.button != button {
		return
	}
	if time.Since(pending.downAt) > clickPairWindow {
		return
	}
	if !samePoint(pending.x, pending.y, x, y) {
		return
	}

	step := &Step{
		Action:  ActionClick,
		X:       pending.x,
		Y:       pending.y,
		Button:  pending.button,
		Element: elementRefFromDescriptor(pending.element),
	}
	r.flush(step, boundingBoxOf(pending.element))
}

func samePoint(x1, y1, x2, y2 float64) bool {
	const tolerance = 5.0
	dx, dy := x1-x2, y1-y2
	return dx*dx+dy*dy <= tolerance*tolerance
}

// Navigate records a navigation iff the destination differs from the
// currently tracked URL (spec §4.4).
func (r *Recorder) Navigate(fromURL, toURL, trigger string) {
	r.mu.Lock()
	if toURL == r.currentURL {
		r.mu.Unlock()
		return
	}
	r.currentURL = toURL
	r.mu.Unlock()

	step := &Step{
		Action:  ActionNavigate,
		FromURL: fromURL,
		ToURL:   toURL,
		Trigger: trigger,
	}
	r.flush(step, nil)
}

// KeyboardText handles one character (or short burst) of text input aimed
// at element, coalescing consecutive bursts within the idle window into a
// single type step. Enter flushes immediately with submitted=true.
func (r *Recorder) KeyboardText(element *driver.ElementDescriptor, text string, isEnter bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.typing == nil {
		r.typing = &typeState{element: element}
	}
	r.typing.text += text
	r.resetTypeTimerLocked()

	if isEnter {
		r.flushTypeLocked(true)
	}
}

// Keypress records a single non-text key event — Escape, Tab, function
// keys, or any keystroke carrying a modifier (spec §4.4).
func (r *Recorder) Keypress(key string, modifiers []string) {
	r.mu.Lock()
	// A standalone keypress implicitly ends any in-flight coalesced typing.
	r.flushTypeLocked(false)
	r.mu.Unlock()

	step := &Step{Action: ActionKeypress, Key: key, Modifiers: modifiers}
	r.flush(step, nil)
}

// Scroll batches deltas into a 250ms window per page, summing them and
// flushing one step when the window closes (spec §4.4).
func (r *Recorder) Scroll(x, y, dx, dy float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.scrolling == nil {
		r.scrolling = &scrollState{x: x, y: y}
	}
	r.scrolling.deltaX += dx
	r.scrolling.deltaY += dy

	if r.scrollTimer != nil {
		r.scrollTimer.Stop()
	}
	r.scrollTimer = time.AfterFunc(scrollWindow, func() {
		r.mu.Lock()
		r.flushScrollLocked()
		r.mu.Unlock()
	})
}

// resetTypeTimerLocked restarts the idle-flush timer for coalesced typing.
// Caller holds mu.
func (r *Recorder) resetTypeTimerLocked() {
	if r.typeTimer != nil {
		r.typeTimer.Stop()
	}
	r.typeTimer = time.AfterFunc(typeIdleWindow, func() {
		r.mu.Lock()
		r.flushTypeLocked(false)
		r.mu.Unlock()
	})
}

// flushTypeLocked emits the pending type step, if any. Caller holds mu.
func (r *Recorder) flushTypeLocked(submitted bool) {
	if r.typing == nil || r.typing.text == "" {
		r.typing = nil
		return
	}
	pending := r.typing
	r.typing = nil
	if r.typeTimer != nil {
		r.typeTimer.Stop()
		r.typeTimer = nil
	}

	step := &Step{
		Action:    ActionType,
		Text:      pending.text,
		Submitted: submitted,
		Element:   elementRefFromDescriptor(pending.element),
	}
	box := boundingBoxOf(pending.element)

	// Unlock while capturing the screenshot/emitting — every caller (the
	// idle timer and the direct Keypress/KeyboardText paths) holds mu, so
	// release it first and re-acquire before returning.
	r.mu.Unlock()
	r.flush(step, box)
	r.mu.Lock()
}

// flushScrollLocked emits the pending scroll step, if any. Caller holds mu.
func (r *Recorder) flushScrollLocked() {
	if r.scrolling == nil {
		return
	}
	pending := r.scrolling
	r.scrolling = nil
	if r.scrollTimer != nil {
		r.scrollTimer.Stop()
		r.scrollTimer = nil
	}

	step := &Step{
		Action: ActionScroll,
		X:      pending.x,
		Y:      pending.y,
		DeltaX: pending.deltaX,
		DeltaY: pending.deltaY,
	}

	r.mu.Unlock()
	r.flush(step, nil)
	r.mu.Lock()
}

// flush takes a screenshot (highlighted when box is non-nil) and emits the
// step (spec §4.4: "every emitted step takes a screenshot").
func (r *Recorder) flush(step *Step, box *driver.BoundingBox) {
	if r.screenshot != nil {
		path, dataURL, err := r.screenshot(box)
		if err == nil {
			step.ScreenshotPath = path
			step.ScreenshotData = dataURL
		}
	}
	step.CreatedAt = time.Now()
	if r.emit != nil {
		r.emit(step)
	}
}

func boundingBoxOf(d *driver.ElementDescriptor) *driver.BoundingBox {
	if d == nil {
		return nil
	}
	box := d.BoundingBox
	return &box
}
