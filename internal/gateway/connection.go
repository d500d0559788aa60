package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/brennhill/browserctl-gateway/internal/crypto"
	"github.com/brennhill/browserctl-gateway/internal/driver"
	"github.com/brennhill/browserctl-gateway/internal/ratelimit"
	"github.com/brennhill/browserctl-gateway/internal/session"
)

const (
	heartbeatPingAfter  = 45 * time.Second
	heartbeatCloseAfter = 75 * time.Second
	backpressureWindow  = 2 * time.Second
	sendQueueDepth      = 64
	eventQueueDepth     = 128
)

// Connection is one client's WebSocket session, running the five
// per-connection tasks spec §4.5 describes (Reader, Writer, Frame pump,
// Event pump, Heartbeat). Grounded on rjsadow-sortie's Client/
// SharedSession pair: one writeMu-serialized socket, a done channel plus
// sync.Once for idempotent close, generalized here to a single dedicated
// connection per session rather than a fan-out broadcaster.
type Connection struct {
	ws      *websocket.Conn
	sess    *session.Session
	manager *session.Manager
	limiter *ratelimit.Limiter
	driver  *driver.Driver
	rec     *session.Recorder
	log     zerolog.Logger

	send    chan OutboundMessage
	frameCh chan OutboundMessage
	events  chan gatewayEvent

	mu          sync.Mutex
	lastInbound time.Time
	lastPongOrTraffic time.Time

	closeOnce sync.Once
	done      chan struct{}
	closeCode int
	closeText string
}

func newConnection(ws *websocket.Conn, sess *session.Session, manager *session.Manager, limiter *ratelimit.Limiter, log zerolog.Logger) *Connection {
	now := time.Now()
	c := &Connection{
		ws:                ws,
		sess:              sess,
		manager:           manager,
		limiter:           limiter,
		driver:            sess.Driver,
		log:               log.With().Str("component", "gateway").Str("sessionId", sess.ID).Logger(),
		send:              make(chan OutboundMessage, sendQueueDepth),
		frameCh:           make(chan OutboundMessage, 1),
		events:            make(chan gatewayEvent, eventQueueDepth),
		lastInbound:       now,
		lastPongOrTraffic: now,
		done:              make(chan struct{}),
		closeCode:         CloseNormal,
	}
	c.rec = manager.NewRecorderForSession(sess)
	c.rec.SetCurrentURL(sess.CurrentURL)
	return c
}

// run drives all five tasks until the connection ends, then unwinds the
// session's driver subscriptions and closes the socket. It blocks until
// every task has exited.
func (c *Connection) run(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.enqueue(outboundSessionState, c.sessionStatePayload())

	var wg sync.WaitGroup
	wg.Add(5)
	go func() { defer wg.Done(); c.readerLoop(runCtx, cancel) }()
	go func() { defer wg.Done(); c.writerLoop(runCtx) }()
	go func() { defer wg.Done(); c.framePumpLoop(runCtx) }()
	go func() { defer wg.Done(); c.eventPumpLoop(runCtx) }()
	go func() { defer wg.Done(); c.heartbeatLoop(runCtx, cancel) }()
	wg.Wait()

	c.ws.Close()
}

// closeWith requests a close with the given WebSocket close code; only the
// first call wins (subsequent calls are no-ops), matching the spec's "the
// connection is closed with ..." single-outcome close semantics.
func (c *Connection) closeWith(code int, reason string) {
	c.closeOnce.Do(func() {
		c.closeCode = code
		c.closeText = reason
		deadline := time.Now().Add(time.Second)
		_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
		close(c.done)
	})
}

func (c *Connection) sessionStatePayload() sessionStatePayload {
	snap := c.sess.Snapshot()
	return sessionStatePayload{
		SessionID: snap.SessionID,
		Status:    snap.Status,
		URL:       snap.URL,
		Title:     snap.Title,
		Health:    snap.Health,
		Error:     snap.Error,
	}
}

// enqueue places a server→client message on the send queue. If the queue
// has been full for longer than backpressureWindow, the connection is
// closed with SLOW_CONSUMER rather than blocking forever (spec §4.5).
func (c *Connection) enqueue(msgType string, payload interface{}) {
	msg := OutboundMessage{
		ID:        crypto.NewUUID(),
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Payload:   payload,
	}
	select {
	case c.send <- msg:
		return
	default:
	}

	timer := time.NewTimer(backpressureWindow)
	defer timer.Stop()
	select {
	case c.send <- msg:
	case <-timer.C:
		c.closeWith(CloseSlowConsumer, "SLOW_CONSUMER")
	case <-c.done:
	}
}

// enqueueFrame applies drop-oldest semantics on its own single-slot
// channel: at most one pending frame is ever queued for the writer; a
// newer frame replaces an older, unsent one (spec §4.5: "the writer keeps
// at most one pending frame; newer frames replace older").
func (c *Connection) enqueueFrame(jpegBytes []byte) {
	msg := OutboundMessage{
		ID:        crypto.NewUUID(),
		Type:      outboundFrame,
		Timestamp: time.Now().UnixMilli(),
		Payload:   framePayload{DataURL: driver.FrameDataURL(jpegBytes)},
	}
	for {
		select {
		case c.frameCh <- msg:
			return
		default:
		}
		select {
		case <-c.frameCh:
		default:
		}
	}
}

func (c *Connection) touchInbound() {
	c.mu.Lock()
	c.lastInbound = time.Now()
	c.lastPongOrTraffic = c.lastInbound
	c.mu.Unlock()
	c.manager.Touch(c.sess.ID)
}

func (c *Connection) touchTraffic() {
	c.mu.Lock()
	c.lastPongOrTraffic = time.Now()
	c.mu.Unlock()
}

func (c *Connection) sinceLastInbound() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Since(c.lastInbound)
}

func (c *Connection) sinceLastTraffic() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Since(c.lastPongOrTraffic)
}
