package gateway

import (
	"context"
	"time"
)

const heartbeatTick = 5 * time.Second

// heartbeatLoop implements task 5 of spec §4.5: if no inbound message
// within 45s, sends a ping; if no pong/traffic within 75s, closes IDLE.
func (c *Connection) heartbeatLoop(ctx context.Context, cancel context.CancelFunc) {
	ticker := time.NewTicker(heartbeatTick)
	defer ticker.Stop()

	pinged := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case <-ticker.C:
			if c.sinceLastTraffic() >= heartbeatCloseAfter {
				c.closeWith(CloseIdle, "IDLE")
				cancel()
				return
			}
			if !pinged && c.sinceLastInbound() >= heartbeatPingAfter {
				c.enqueue(outboundPing, pingPayload{Timestamp: time.Now().UnixMilli()})
				pinged = true
			}
			if pinged && c.sinceLastInbound() < heartbeatPingAfter {
				pinged = false
			}
		}
	}
}
