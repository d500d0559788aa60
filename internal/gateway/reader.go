package gateway

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/brennhill/browserctl-gateway/internal/driver"
	"github.com/brennhill/browserctl-gateway/internal/ratelimit"
)

// readerLoop deserializes inbound messages, classifies them, applies the
// rate limiter, forwards to the Driver in reception order, and feeds the
// step recorder — task 1 of spec §4.5.
func (c *Connection) readerLoop(ctx context.Context, cancel context.CancelFunc) {
	defer cancel()
	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Debug().Err(err).Msg("reader: connection closed")
			}
			return
		}

		c.touchInbound()

		payload, ok := decodeInbound(raw)
		if !ok {
			c.enqueue(outboundError, errorPayload{Code: "BAD_MESSAGE", Message: "could not parse message envelope"})
			continue
		}

		var kind payloadKind
		if err := json.Unmarshal(payload, &kind); err != nil {
			c.enqueue(outboundError, errorPayload{Code: "BAD_MESSAGE", Message: "payload missing type"})
			continue
		}

		switch kind.Type {
		case inboundMouse:
			c.handleMouse(ctx, payload)
		case inboundKeyboard:
			c.handleKeyboard(ctx, payload)
		case inboundScroll:
			c.handleScroll(ctx, payload)
		case inboundNavigate:
			c.handleNavigate(ctx, payload)
		case inboundPing:
			c.handlePing(payload)
		default:
			c.enqueue(outboundError, errorPayload{Code: "UNKNOWN_MESSAGE_TYPE", Message: kind.Type})
		}

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

// decodeInbound accepts both the wrapped {id,type,timestamp,payload} form
// and a bare payload object for backward compatibility (spec §4.5: "the
// Gateway MAY also accept a bare payload form"). It distinguishes the two
// by checking for the wrapper's required "type":"BROWSER_ACTION" field.
func decodeInbound(raw []byte) (json.RawMessage, bool) {
	var env InboundEnvelope
	if err := json.Unmarshal(raw, &env); err == nil && env.Type == "BROWSER_ACTION" && len(env.Payload) > 0 {
		return env.Payload, true
	}
	var bare payloadKind
	if err := json.Unmarshal(raw, &bare); err == nil && bare.Type != "" {
		return json.RawMessage(raw), true
	}
	return nil, false
}

func (c *Connection) rateLimited(kind ratelimit.Kind) bool {
	result := c.limiter.Consume(c.sess.ID, kind, 1)
	if !result.Allowed {
		c.enqueue(outboundRateLimited, rateLimitedPayload{
			Kind:      string(kind),
			ResetAt:   result.ResetAt.UnixMilli(),
			Remaining: result.Remaining,
		})
	}
	return !result.Allowed
}

func (c *Connection) cdpError(op string, err error) {
	c.enqueue(outboundCDPError, cdpErrorPayload{Op: op, Message: err.Error()})
}

func (c *Connection) handleMouse(ctx context.Context, payload json.RawMessage) {
	if c.rateLimited(ratelimit.KindInput) {
		return
	}
	var p mousePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		c.enqueue(outboundInputError, inputErrorPayload{Message: "malformed input:mouse payload"})
		return
	}
	button := driver.MouseButton(p.Button)
	if button == "" {
		button = driver.ButtonLeft
	}

	switch p.Action {
	case "click":
		if err := c.driver.Click(ctx, p.X, p.Y, button); err != nil {
			c.cdpError("CLICK", err)
			return
		}
		desc, _ := c.driver.ElementAt(ctx, p.X, p.Y)
		c.rec.MouseDown(p.X, p.Y, string(button), desc)
		c.rec.MouseUp(p.X, p.Y, string(button))
	case "down", "up", "move":
		action := driver.MouseAction(p.Action)
		if err := c.driver.Mouse(ctx, action, p.X, p.Y, button); err != nil {
			c.cdpError("MOUSE_"+strings.ToUpper(p.Action), err)
			return
		}
		switch action {
		case driver.MouseDown:
			desc, _ := c.driver.ElementAt(ctx, p.X, p.Y)
			c.rec.MouseDown(p.X, p.Y, string(button), desc)
		case driver.MouseUp:
			c.rec.MouseUp(p.X, p.Y, string(button))
		case driver.MouseMove:
			if desc, err := c.driver.ElementAt(ctx, p.X, p.Y); err == nil && desc != nil {
				c.enqueue(outboundElementHover, elementHoverPayload{
					Tag: desc.Tag, ID: desc.ID, Classes: desc.Classes, Role: desc.Role,
					AriaLabel: desc.AriaLabel, DataTestID: desc.DataTestID, Label: desc.Label,
				})
			}
		}
	default:
		c.enqueue(outboundInputError, inputErrorPayload{Message: "unknown input:mouse action " + p.Action})
	}
}

func (c *Connection) handleKeyboard(ctx context.Context, payload json.RawMessage) {
	if c.rateLimited(ratelimit.KindInput) {
		return
	}
	var p keyboardPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		c.enqueue(outboundInputError, inputErrorPayload{Message: "malformed input:keyboard payload"})
		return
	}

	modMask := modifierMaskFromNames(p.Modifiers)
	action := driver.KeyAction(p.Action)

	if action == driver.KeyDown && len(p.Text) > 1 {
		if err := c.driver.InsertText(ctx, p.Text); err != nil {
			c.cdpError("INSERT_TEXT", err)
			return
		}
	} else if err := c.driver.Key(ctx, action, p.Key, p.Text, modMask, p.Code, p.KeyCode); err != nil {
		c.cdpError("KEY_"+strings.ToUpper(p.Action), err)
		return
	}

	if action != driver.KeyDown {
		return
	}
	isEnter := p.Key == "Enter"
	if p.Text != "" || isEnter {
		c.rec.KeyboardText(nil, p.Text, isEnter)
	} else {
		c.rec.Keypress(p.Key, p.Modifiers)
	}
}

func modifierMaskFromNames(names []string) int {
	var ctrl, shift, alt, meta bool
	for _, n := range names {
		switch strings.ToLower(n) {
		case "ctrl", "control":
			ctrl = true
		case "shift":
			shift = true
		case "alt":
			alt = true
		case "meta", "cmd", "command":
			meta = true
		}
	}
	return driver.ModifierMask(ctrl, shift, alt, meta)
}

func (c *Connection) handleScroll(ctx context.Context, payload json.RawMessage) {
	if c.rateLimited(ratelimit.KindInput) {
		return
	}
	var p scrollPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		c.enqueue(outboundInputError, inputErrorPayload{Message: "malformed input:scroll payload"})
		return
	}
	if err := c.driver.Scroll(ctx, p.X, p.Y, p.DeltaX, p.DeltaY); err != nil {
		c.cdpError("SCROLL", err)
		return
	}
	c.rec.Scroll(p.X, p.Y, p.DeltaX, p.DeltaY)
}

func (c *Connection) handleNavigate(ctx context.Context, payload json.RawMessage) {
	if c.rateLimited(ratelimit.KindNavigate) {
		return
	}
	var p navigatePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		c.enqueue(outboundInputError, inputErrorPayload{Message: "malformed navigate payload"})
		return
	}

	var err error
	switch p.Action {
	case "goto":
		err = c.driver.Navigate(ctx, p.URL)
	case "back":
		err = c.driver.Back(ctx)
	case "forward":
		err = c.driver.Forward(ctx)
	case "reload":
		err = c.driver.Reload(ctx)
	default:
		c.enqueue(outboundInputError, inputErrorPayload{Message: "unknown navigate action " + p.Action})
		return
	}
	if err != nil {
		c.cdpError("NAVIGATE_"+strings.ToUpper(p.Action), err)
	}
	// The committed NavigationEvent (toUrl and trigger; the Driver leaves
	// fromUrl empty) arrives via
	// the Driver's navigation channel and is recorded by the event pump, not
	// here — this keeps a single source of truth for "did the URL actually
	// change" (spec §4.4 dedup rule) instead of guessing at request time.
}

func (c *Connection) handlePing(payload json.RawMessage) {
	var p pingPayload
	_ = json.Unmarshal(payload, &p)
	c.touchTraffic()
	c.enqueue(outboundPong, pongPayload{Timestamp: time.Now().UnixMilli()})
}
