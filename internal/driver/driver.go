// Package driver wraps one headless browser instance per session behind
// the low-level input/output contract specified in spec §4.3. It is
// intentionally thin over Chrome DevTools Protocol rather than over
// Playwright's high-level page.Click()-style API: the spec's bitmask
// button tracking, raw modifier packing, and element-probe semantics need
// direct dispatch control that only CDP's Input.* domain gives us.
//
// Grounded on netresearch/ldap-manager's internal/e2e Playwright harness
// for browser/context/page lifecycle, generalized from a test helper to a
// long-lived, session-owned driver with its own CDP session and
// screencast pump.
package driver

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
	"github.com/rs/zerolog"
)

// cdpSession is the subset of playwright.CDPSession the Driver depends on.
// Narrowing to an interface keeps Driver testable with a fake session.
type cdpSession interface {
	Send(method string, params map[string]interface{}) (map[string]interface{}, error)
	On(event string, handler interface{})
}

// Config configures a newly started Driver.
type Config struct {
	Viewport          Viewport
	ScreencastQuality int // 0-100
	ScreencastMaxFPS  int
}

const highlightOverlayID = "__browserctl_highlight_overlay__"

// Driver owns exactly one browser context + page for exactly one session.
// The Chromium browser process itself is shared with every other Driver
// built from the same playwright.Browser (see New); only the context and
// page are per session.
type Driver struct {
	log zerolog.Logger

	mu    sync.Mutex // serializes all outbound operations (§5)
	state State

	browser playwright.Browser
	ctx     playwright.BrowserContext
	page    playwright.Page
	cdp     cdpSession

	pressedButtons int // live CDP "buttons" bitmask, mutated by mouse()

	frames       chan Frame
	screencastOn bool
	lastFrameAt  time.Time
	minFrameGap  time.Duration

	navEvents chan NavigationEvent
	cdpErrors chan *CDPError

	navTriggerMu sync.Mutex
	navTrigger   NavTrigger // consumed by the next framenavigated event, if set

	healthMu       sync.Mutex
	lastHealth     Health
	lastHealthAt   time.Time
	consecutiveBad int

	stopHealth chan struct{}
	closeOnce  sync.Once
}

// New constructs a Driver bound to an already-launched Playwright browser
// instance (one Playwright process + one Chromium Browser is shared across
// Drivers; each Driver gets its own isolated BrowserContext, which is
// where Playwright's cookie/storage isolation boundary actually lives).
func New(browser playwright.Browser, log zerolog.Logger) *Driver {
	return &Driver{
		log:        log.With().Str("component", "driver").Logger(),
		state:      StateLaunching,
		browser:    browser,
		frames:     make(chan Frame, 1), // bounded at 1, drop-oldest (§5)
		navEvents:  make(chan NavigationEvent, 16),
		cdpErrors:  make(chan *CDPError, 16),
		stopHealth: make(chan struct{}),
	}
}

// State returns the Driver's current lifecycle state.
func (d *Driver) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Frames returns the channel of throttled screencast frames.
func (d *Driver) Frames() <-chan Frame { return d.frames }

// NavigationEvents returns the channel of top-frame navigation commits.
func (d *Driver) NavigationEvents() <-chan NavigationEvent { return d.navEvents }

// CDPErrors returns the channel of structured operation failures.
func (d *Driver) CDPErrors() <-chan *CDPError { return d.cdpErrors }

// Start opens a fresh context + page at the given viewport (spec §4.3). It
// does not navigate; callers that have an initial URL call Navigate after
// Start returns.
func (d *Driver) Start(ctx context.Context, cfg Config) (BrowserInfo, error) {
	var info BrowserInfo
	err := withTimeout(ctx, "START", func(ctx context.Context) error {
		bctx, err := d.browser.NewContext(playwright.BrowserNewContextOptions{
			Viewport: &playwright.Size{Width: cfg.Viewport.Width, Height: cfg.Viewport.Height},
		})
		if err != nil {
			return fmt.Errorf("new context: %w", err)
		}

		page, err := bctx.NewPage()
		if err != nil {
			bctx.Close()
			return fmt.Errorf("new page: %w", err)
		}

		cdp, err := bctx.NewCDPSession(page)
		if err != nil {
			bctx.Close()
			return fmt.Errorf("new cdp session: %w", err)
		}

		d.mu.Lock()
		d.ctx = bctx
		d.page = page
		d.cdp = cdp
		d.minFrameGap = time.Second / time.Duration(maxInt(cfg.ScreencastMaxFPS, 1))
		d.state = StateReady
		d.mu.Unlock()

		d.installNavigationListener()
		go d.healthLoop()

		info = BrowserInfo{
			ViewportWidth:  cfg.Viewport.Width,
			ViewportHeight: cfg.Viewport.Height,
		}
		return nil
	})
	if err != nil {
		return info, err
	}

	if cfg.ScreencastQuality > 0 {
		// quality carried forward to StartScreencast by the Gateway; no-op here.
	}

	return info, nil
}

// installNavigationListener wires the page's "framenavigated" event into
// navEvents. Navigate/Back/Forward/Reload each record the trigger they
// expect their own call to produce immediately before issuing it; the
// listener consumes that expectation for the very next commit and falls
// back to NavRedirect for any commit none of them announced — an actual
// in-page redirect, or a later hop in a redirect chain that follows a
// user-initiated navigation's first commit (spec §3's closed trigger set).
func (d *Driver) installNavigationListener() {
	d.page.On("framenavigated", func(frame playwright.Frame) {
		if frame != d.page.MainFrame() {
			return
		}
		url := frame.URL()
		title, _ := d.page.Title()
		d.navEvents <- NavigationEvent{ToURL: url, Title: title, Trigger: d.takeExpectedTrigger()}
	})
}

// setExpectedTrigger records the trigger the next framenavigated commit
// should be tagged with.
func (d *Driver) setExpectedTrigger(t NavTrigger) {
	d.navTriggerMu.Lock()
	d.navTrigger = t
	d.navTriggerMu.Unlock()
}

// clearExpectedTrigger discards a pending expectation, used when the
// navigation call that set it failed before producing any commit.
func (d *Driver) clearExpectedTrigger() {
	d.setExpectedTrigger("")
}

// takeExpectedTrigger consumes and clears the pending expectation, or
// returns NavRedirect if none was set.
func (d *Driver) takeExpectedTrigger() NavTrigger {
	d.navTriggerMu.Lock()
	t := d.navTrigger
	d.navTrigger = ""
	d.navTriggerMu.Unlock()
	if t == "" {
		return NavRedirect
	}
	return t
}

// Navigate loads url and waits for DOMContentLoaded (§4.3).
func (d *Driver) Navigate(ctx context.Context, url string) error {
	d.setExpectedTrigger(NavUser)
	err := d.withPage(ctx, "NAVIGATE", func(ctx context.Context) error {
		_, err := d.page.Goto(url, playwright.PageGotoOptions{
			WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		})
		return err
	})
	if err != nil {
		d.clearExpectedTrigger()
	}
	return err
}

// Back navigates backward in history (§4.3).
func (d *Driver) Back(ctx context.Context) error {
	d.setExpectedTrigger(NavBack)
	err := d.withPage(ctx, "BACK", func(ctx context.Context) error {
		_, err := d.page.GoBack(playwright.PageGoBackOptions{
			WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		})
		return err
	})
	if err != nil {
		d.clearExpectedTrigger()
	}
	return err
}

// Forward navigates forward in history (§4.3).
func (d *Driver) Forward(ctx context.Context) error {
	d.setExpectedTrigger(NavForward)
	err := d.withPage(ctx, "FORWARD", func(ctx context.Context) error {
		_, err := d.page.GoForward(playwright.PageGoForwardOptions{
			WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		})
		return err
	})
	if err != nil {
		d.clearExpectedTrigger()
	}
	return err
}

// Reload reloads the current page (§4.3).
func (d *Driver) Reload(ctx context.Context) error {
	d.setExpectedTrigger(NavReload)
	err := d.withPage(ctx, "RELOAD", func(ctx context.Context) error {
		_, err := d.page.Reload(playwright.PageReloadOptions{
			WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		})
		return err
	})
	if err != nil {
		d.clearExpectedTrigger()
	}
	return err
}

// Mouse dispatches a mouse action, tracking the pressed-button bitmask so
// drags remain faithful across move events between down and up (§4.3).
func (d *Driver) Mouse(ctx context.Context, action MouseAction, x, y float64, button MouseButton) error {
	return d.withPage(ctx, "MOUSE_"+strings.ToUpper(string(action)), func(ctx context.Context) error {
		// withPage already holds d.mu for the duration of fn.
		switch action {
		case MouseDown:
			d.pressedButtons |= button.bit()
		case MouseUp:
			d.pressedButtons &^= button.bit()
		}
		buttons := d.pressedButtons

		cdpType := "mouseMoved"
		switch action {
		case MouseDown:
			cdpType = "mousePressed"
		case MouseUp:
			cdpType = "mouseReleased"
		}

		params := map[string]interface{}{
			"type":    cdpType,
			"x":       x,
			"y":       y,
			"buttons": buttons,
		}
		if button != "" && button != ButtonNone {
			params["button"] = string(button)
		} else {
			params["button"] = "none"
		}
		_, err := d.cdp.Send("Input.dispatchMouseEvent", params)
		return err
	})
}

// Click is down then up at the same point (§4.3).
func (d *Driver) Click(ctx context.Context, x, y float64, button MouseButton) error {
	if err := d.Mouse(ctx, MouseDown, x, y, button); err != nil {
		return err
	}
	return d.Mouse(ctx, MouseUp, x, y, button)
}

// Key dispatches a keyboard event. When action=down and text is non-empty
// the CDP event type is keyDown (produces input); otherwise rawKeyDown,
// matching §4.3 precisely so synthetic key events don't double-insert text.
func (d *Driver) Key(ctx context.Context, action KeyAction, key string, text string, modifiers int, code string, keyCode int) error {
	return d.withPage(ctx, "KEY_"+strings.ToUpper(string(action)), func(ctx context.Context) error {
		if code == "" || keyCode == 0 {
			if resolvedCode, resolvedKeyCode, ok := resolveKeyCode(key); ok {
				if code == "" {
					code = resolvedCode
				}
				if keyCode == 0 {
					keyCode = resolvedKeyCode
				}
			}
		}

		var cdpType string
		switch {
		case action == KeyUp:
			cdpType = "keyUp"
		case text != "":
			cdpType = "keyDown"
		default:
			cdpType = "rawKeyDown"
		}

		params := map[string]interface{}{
			"type":      cdpType,
			"key":       key,
			"modifiers": modifiers,
		}
		if text != "" {
			params["text"] = text
		}
		if code != "" {
			params["code"] = code
		}
		if keyCode != 0 {
			params["windowsVirtualKeyCode"] = keyCode
			params["nativeVirtualKeyCode"] = keyCode
		}
		_, err := d.cdp.Send("Input.dispatchKeyEvent", params)
		return err
	})
}

// InsertText dispatches a multi-character string as a single atomic CDP
// command rather than a per-character keyDown/keyUp sequence (Open
// Question decision, SPEC_FULL.md §"input:keyboard text"). Because all
// Driver operations share one mutex, this can never be observably
// interleaved with a surrounding dispatch.
func (d *Driver) InsertText(ctx context.Context, text string) error {
	return d.withPage(ctx, "INSERT_TEXT", func(ctx context.Context) error {
		_, err := d.cdp.Send("Input.insertText", map[string]interface{}{"text": text})
		return err
	})
}

// Scroll synthesizes a wheel event at (x, y) with the given deltas (§4.3).
func (d *Driver) Scroll(ctx context.Context, x, y, dx, dy float64) error {
	return d.withPage(ctx, "SCROLL", func(ctx context.Context) error {
		_, err := d.cdp.Send("Input.dispatchMouseEvent", map[string]interface{}{
			"type":       "mouseWheel",
			"x":          x,
			"y":          y,
			"deltaX":     dx,
			"deltaY":     dy,
			"pointerType": "mouse",
		})
		return err
	})
}

// Screenshot captures the page (or a clip region) at the given format/quality (§4.3).
func (d *Driver) Screenshot(ctx context.Context, clip *BoundingBox, opts ScreenshotOptions) ([]byte, error) {
	var out []byte
	err := d.withPage(ctx, "SCREENSHOT", func(ctx context.Context) error {
		shotOpts := playwright.PageScreenshotOptions{}
		if opts.Format == "jpeg" {
			shotOpts.Type = playwright.ScreenshotTypeJpeg
			if opts.Quality > 0 {
				shotOpts.Quality = playwright.Int(opts.Quality)
			}
		} else {
			shotOpts.Type = playwright.ScreenshotTypePng
		}
		if clip != nil {
			shotOpts.Clip = &playwright.Rect{
				X: clip.X, Y: clip.Y, Width: clip.Width, Height: clip.Height,
			}
		}
		bytes, err := d.page.Screenshot(shotOpts)
		if err != nil {
			return err
		}
		out = bytes
		return nil
	})
	return out, err
}

const highlightOverlayScript = `(box) => {
  const prior = document.getElementById(%q);
  if (prior) prior.remove();
  const div = document.createElement('div');
  div.id = %q;
  div.style.position = 'fixed';
  div.style.left = box.x + 'px';
  div.style.top = box.y + 'px';
  div.style.width = box.width + 'px';
  div.style.height = box.height + 'px';
  div.style.border = '3px solid orange';
  div.style.borderRadius = '4px';
  div.style.zIndex = '999999';
  div.style.pointerEvents = 'none';
  document.body.appendChild(div);
}`

const removeOverlayScript = `() => {
  const el = document.getElementById(%q);
  if (el) el.remove();
}`

// ScreenshotWithHighlight injects a fixed-position overlay around box,
// waits briefly for paint, captures, and removes the overlay (§4.3). The
// overlay carries a well-known id so a leaked overlay from an aborted
// prior call is removed defensively before injecting a new one.
func (d *Driver) ScreenshotWithHighlight(ctx context.Context, box BoundingBox, clip *BoundingBox, opts ScreenshotOptions) ([]byte, error) {
	var out []byte
	err := d.withPage(ctx, "SCREENSHOT_HIGHLIGHT", func(ctx context.Context) error {
		if _, err := d.page.Evaluate(fmt.Sprintf(removeOverlayScript, highlightOverlayID)); err != nil {
			return fmt.Errorf("remove stale overlay: %w", err)
		}
		script := fmt.Sprintf(highlightOverlayScript, highlightOverlayID, highlightOverlayID)
		if _, err := d.page.Evaluate(script, map[string]float64{
			"x": box.X, "y": box.Y, "width": box.Width, "height": box.Height,
		}); err != nil {
			return fmt.Errorf("inject overlay: %w", err)
		}

		time.Sleep(50 * time.Millisecond)

		shotOpts := playwright.PageScreenshotOptions{Type: playwright.ScreenshotTypeJpeg}
		if opts.Quality > 0 {
			shotOpts.Quality = playwright.Int(opts.Quality)
		}
		if clip != nil {
			shotOpts.Clip = &playwright.Rect{X: clip.X, Y: clip.Y, Width: clip.Width, Height: clip.Height}
		}
		bytes, err := d.page.Screenshot(shotOpts)

		if _, rmErr := d.page.Evaluate(fmt.Sprintf(removeOverlayScript, highlightOverlayID)); rmErr != nil && err == nil {
			err = fmt.Errorf("remove overlay: %w", rmErr)
		}
		if err != nil {
			return err
		}
		out = bytes
		return nil
	})
	return out, err
}

// FrameDataURL renders a raw JPEG screenshot buffer as a data: URL, the
// in-memory representation a Step's screenshotDataUrl field carries
// alongside the on-disk file (spec §3).
func FrameDataURL(jpegBytes []byte) string {
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(jpegBytes)
}

// withPage runs fn under the Driver's mutex and the fixed op timeout,
// routing any failure onto cdpErrors and counting it toward the
// three-strikes health-degradation rule (§7).
func (d *Driver) withPage(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.state == StateClosing || d.state == StateClosed {
		return &CDPError{Op: op, Message: "driver is closing"}
	}

	err := withTimeout(ctx, op, fn)
	if err != nil {
		if cdpErr, ok := err.(*CDPError); ok {
			select {
			case d.cdpErrors <- cdpErr:
			default:
			}
		}
		d.log.Warn().Str("op", op).Err(err).Msg("driver operation failed")
	}
	return err
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
