package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/brennhill/browserctl-gateway/internal/crypto"
	"github.com/brennhill/browserctl-gateway/internal/ratelimit"
	"github.com/brennhill/browserctl-gateway/internal/session"
)

// Default per-address connection-admission budget: 5 upgrade attempts per
// second, burst 5 — generous for a legitimate client's own reconnect
// logic, tight enough to blunt a naive flood from one address.
const (
	defaultConnAdmissionRate  = 5
	defaultConnAdmissionBurst = 5
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Gateway owns the single HTTP upgrade endpoint and the registry
// enforcing one connection per session (spec §4.5). Grounded on
// rjsadow-sortie's Handler.ServeHTTP: path/query extraction, session
// lookup, upgrade, then hand off to a per-session connection object.
type Gateway struct {
	manager  *session.Manager
	limiter  *ratelimit.Limiter
	registry *Registry
	admission *connAdmission
	log      zerolog.Logger
}

// New wires a Gateway to a Session Manager, registering the dispatch
// callbacks that relay Manager-owned events (step lifecycle, CDP errors,
// health transitions) to whichever connection currently owns a session.
func New(manager *session.Manager, limiter *ratelimit.Limiter, log zerolog.Logger) *Gateway {
	g := &Gateway{
		manager:   manager,
		limiter:   limiter,
		registry:  NewRegistry(),
		admission: newConnAdmission(defaultConnAdmissionRate, defaultConnAdmissionBurst),
		log:       log.With().Str("component", "gateway").Logger(),
	}
	manager.OnStepEvent(g.dispatchStepEvent)
	manager.OnCDPError(g.dispatchCDPError)
	manager.OnUnhealthy(g.dispatchUnhealthy)
	return g
}

// Close stops the Gateway's background admission-limiter sweep.
func (g *Gateway) Close() { g.admission.close() }

func (g *Gateway) dispatchStepEvent(sessionID, kind string, step *session.Step) {
	conn, ok := g.registry.Lookup(sessionID)
	if !ok {
		return
	}
	switch kind {
	case "step:new":
		conn.postEvent(outboundStepNew, step)
	case "step:updated":
		conn.postEvent(outboundStepUpdated, step)
	case "step:deleted":
		conn.postEvent(outboundStepDeleted, step)
	}
}

func (g *Gateway) dispatchCDPError(sessionID, op, message string) {
	if conn, ok := g.registry.Lookup(sessionID); ok {
		conn.postEvent(outboundCDPError, cdpErrorPayload{Op: op, Message: message})
	}
}

func (g *Gateway) dispatchUnhealthy(sessionID string) {
	if conn, ok := g.registry.Lookup(sessionID); ok {
		conn.postEvent(outboundSessionUnhealthy, sessionUnhealthyPayload{SessionID: sessionID})
	}
}

// ServeHTTP upgrades a WebSocket connection for one session (spec §4.5:
// "Accepts socket upgrades at a well-known path with sessionId and token
// query parameters"). The caller mounts this at that well-known path.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !g.admission.allow(remoteIP(r)) {
		http.Error(w, "too many connection attempts", http.StatusTooManyRequests)
		return
	}

	sessionID := r.URL.Query().Get("sessionId")
	token := r.URL.Query().Get("token")
	if sessionID == "" || token == "" {
		http.Error(w, "missing sessionId or token", http.StatusBadRequest)
		return
	}

	sess, err := g.manager.Get(sessionID)
	if err != nil || !crypto.ConstantTimeEqual(token, sess.Token) {
		conn, upErr := upgrader.Upgrade(w, r, nil)
		if upErr != nil {
			return
		}
		closeImmediately(conn, CloseAuthFailed, "AUTH_FAILED")
		return
	}

	if sess.Status != session.StatusActive {
		http.Error(w, "session is not active", http.StatusConflict)
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	conn := newConnection(ws, sess, g.manager, g.limiter, g.log)
	if !g.registry.TryClaim(sessionID, conn) {
		closeImmediately(ws, CloseAlreadyActive, "ALREADY_CONNECTED")
		return
	}

	conn.run(context.Background())
	g.registry.Release(sessionID, conn)

	if sess.Status == session.StatusActive {
		g.scheduleReconnectGrace(sessionID)
	}
}

// reconnectGraceWindow is how long a session survives after its socket
// drops before the idle-sweep-independent grace timer ends it outright
// (spec §4.4/§7: "socket-lost-beyond-grace" as a distinct ENDED trigger,
// "a 30-second grace window allows reconnection with the same token").
const reconnectGraceWindow = 30 * time.Second

func (g *Gateway) scheduleReconnectGrace(sessionID string) {
	time.AfterFunc(reconnectGraceWindow, func() {
		if _, stillConnected := g.registry.Lookup(sessionID); stillConnected {
			return
		}
		if err := g.manager.End(context.Background(), sessionID); err != nil && err != session.ErrSessionNotFound {
			g.log.Warn().Err(err).Str("sessionId", sessionID).Msg("reconnect grace teardown failed")
		}
	})
}

func closeImmediately(ws *websocket.Conn, code int, reason string) {
	_ = ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(time.Second))
	_ = ws.Close()
}
