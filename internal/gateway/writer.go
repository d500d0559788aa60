package gateway

import (
	"context"
)

// writerLoop owns the socket's send side, serializing outbound messages
// from the bounded send queue — task 2 of spec §4.5. Backpressure handling
// (closing with SLOW_CONSUMER) lives in enqueue, not here, since the
// decision is about queue depth at enqueue time, not write latency.
func (c *Connection) writerLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case msg := <-c.send:
			if err := c.ws.WriteJSON(msg); err != nil {
				c.log.Debug().Err(err).Msg("writer: write failed, closing connection")
				c.closeWith(CloseInternalError, "WRITE_FAILED")
				return
			}
		case msg := <-c.frameCh:
			if err := c.ws.WriteJSON(msg); err != nil {
				c.log.Debug().Err(err).Msg("writer: frame write failed, closing connection")
				c.closeWith(CloseInternalError, "WRITE_FAILED")
				return
			}
		}
	}
}
