package gateway

import "context"

// eventPumpLoop forwards non-frame events to the client: navigation
// commits read directly off the Driver (the Gateway is this channel's only
// consumer), plus step/cdp-error/unhealthy events relayed from the Session
// Manager's global callbacks via c.events (see gateway.go's dispatch*
// methods) — task 4 of spec §4.5.
func (c *Connection) eventPumpLoop(ctx context.Context) {
	navEvents := c.driver.NavigationEvents()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case nav, ok := <-navEvents:
			if !ok {
				navEvents = nil
				continue
			}
			c.rec.Navigate(nav.FromURL, nav.ToURL, string(nav.Trigger))
		case evt, ok := <-c.events:
			if !ok {
				return
			}
			c.enqueue(evt.msgType, evt.payload)
		}
	}
}

type gatewayEvent struct {
	msgType string
	payload interface{}
}

// postEvent is called from the Manager's callback goroutines (not from
// this connection's own tasks) to hand an event to the event pump. It
// never blocks: a connection too backed up to drain its own event queue
// will shortly be closed by the heartbeat/backpressure paths anyway.
func (c *Connection) postEvent(msgType string, payload interface{}) {
	select {
	case c.events <- gatewayEvent{msgType: msgType, payload: payload}:
	case <-c.done:
	default:
	}
}
