// screencast.go — JPEG screencast streaming with frame-rate throttling
// (spec §4.3: "the driver MUST throttle emissions so that no two frames
// are delivered closer than 1000/maxFps ms").
package driver

import (
	"context"
	"encoding/base64"
	"time"
)

// StartScreencast enables CDP JPEG screencasting. The underlying engine
// may emit frames faster than maxFps; every frame is acked immediately but
// only forwarded to Frames() when enough time has elapsed since the last
// forwarded frame — acking, not queuing, is what keeps the engine from
// stalling while we drop the in-between frames.
func (d *Driver) StartScreencast(ctx context.Context, quality, maxFps int) error {
	return d.withPage(ctx, "START_SCREENCAST", func(ctx context.Context) error {
		d.minFrameGap = time.Second / time.Duration(maxInt(maxFps, 1))
		d.screencastOn = true
		d.state = StateScreencasting

		d.cdp.On("Page.screencastFrame", func(params map[string]interface{}) {
			d.onScreencastFrame(params)
		})

		_, err := d.cdp.Send("Page.startScreencast", map[string]interface{}{
			"format":        "jpeg",
			"quality":       quality,
			"maxWidth":      0,
			"maxHeight":     0,
			"everyNthFrame": 1,
		})
		return err
	})
}

func (d *Driver) onScreencastFrame(params map[string]interface{}) {
	sessionIDRaw, _ := params["sessionId"]
	// Ack unconditionally and as fast as possible — the engine pauses
	// screencast production until acked, so acking late would itself
	// throttle the upstream frame rate in an uncontrolled way.
	go func() {
		ackParams := map[string]interface{}{}
		if sessionIDRaw != nil {
			ackParams["sessionId"] = sessionIDRaw
		}
		_, _ = d.cdp.Send("Page.screencastFrameAck", ackParams)
	}()

	now := time.Now()
	d.mu.Lock()
	tooSoon := now.Sub(d.lastFrameAt) < d.minFrameGap
	if !tooSoon {
		d.lastFrameAt = now
	}
	d.mu.Unlock()
	if tooSoon {
		return
	}

	dataRaw, ok := params["data"].(string)
	if !ok || dataRaw == "" {
		return
	}
	jpegBytes, err := base64.StdEncoding.DecodeString(dataRaw)
	if err != nil {
		return
	}

	frame := Frame{JPEGBytes: jpegBytes, Timestamp: now}
	select {
	case d.frames <- frame:
	default:
		// Drop the pending frame and replace it — latest-wins, bounded at 1 (§5).
		select {
		case <-d.frames:
		default:
		}
		select {
		case d.frames <- frame:
		default:
		}
	}
}

// StopScreencast disables CDP screencasting.
func (d *Driver) StopScreencast(ctx context.Context) error {
	return d.withPage(ctx, "STOP_SCREENCAST", func(ctx context.Context) error {
		d.screencastOn = false
		if d.state == StateScreencasting {
			d.state = StateReady
		}
		_, err := d.cdp.Send("Page.stopScreencast", map[string]interface{}{})
		return err
	})
}

// Close tears the Driver down: stops screencast if active, closes the
// page/context, and unwinds health polling. Safe to call more than once.
func (d *Driver) Close(ctx context.Context) error {
	var err error
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.state = StateClosing
		d.mu.Unlock()

		close(d.stopHealth)

		if d.cdp != nil && d.screencastOn {
			_, _ = d.cdp.Send("Page.stopScreencast", map[string]interface{}{})
		}
		if d.page != nil {
			_ = d.page.Close()
		}
		if d.ctx != nil {
			err = d.ctx.Close()
		}

		d.mu.Lock()
		d.state = StateClosed
		d.mu.Unlock()
	})
	return err
}
