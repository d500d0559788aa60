// Package gateway implements the WebSocket control plane (spec §4.5): one
// connection per session, a fixed wrapper envelope for inbound messages,
// and a small set of server→client event classes fed by the Driver and the
// Session Manager.
//
// Grounded on rjsadow-sortie's internal/guacamole Client/SharedSession
// pair, adapted from its N-viewer broadcast model down to this spec's
// strict single-writer-per-session invariant (a second connection to an
// already-connected session is rejected outright rather than added as a
// view-only peer).
package gateway

import "encoding/json"

// Close codes (spec §4.5/§4.2), in the application-defined range above the
// RFC 6455 reserved codes.
const (
	CloseAuthFailed     = 4401
	CloseAlreadyActive  = 4409
	CloseIdle           = 4408
	CloseSlowConsumer   = 4413
	CloseNormal         = 1000
	CloseInternalError  = 1011
)

// InboundEnvelope is the wrapper every client message is expected to carry
// (spec §4.5). Type is always "BROWSER_ACTION" in the wrapped form; the
// Gateway also accepts a bare payload for backward compatibility (see
// decodeInbound in reader.go).
type InboundEnvelope struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// payloadKind is read from payload.type to classify an inbound message
// before unmarshaling the rest of it.
type payloadKind struct {
	Type string `json:"type"`
}

const (
	inboundMouse    = "input:mouse"
	inboundKeyboard = "input:keyboard"
	inboundScroll   = "input:scroll"
	inboundNavigate = "navigate"
	inboundPing     = "ping"
)

type mousePayload struct {
	Action string  `json:"action"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Button string  `json:"button,omitempty"`
}

type keyboardPayload struct {
	Action    string   `json:"action"`
	Key       string   `json:"key"`
	Text      string   `json:"text,omitempty"`
	Modifiers []string `json:"modifiers,omitempty"`
	Code      string   `json:"code,omitempty"`
	KeyCode   int      `json:"keyCode,omitempty"`
}

type scrollPayload struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	DeltaX float64 `json:"deltaX"`
	DeltaY float64 `json:"deltaY"`
}

type navigatePayload struct {
	Action string `json:"action"`
	URL    string `json:"url,omitempty"`
}

type pingPayload struct {
	Timestamp int64 `json:"timestamp"`
}

// Outbound server→client message classes (spec §4.5).
const (
	outboundPing             = "ping"
	outboundFrame            = "frame"
	outboundSessionState     = "session:state"
	outboundStepNew          = "step:new"
	outboundStepUpdated      = "step:updated"
	outboundStepDeleted      = "step:deleted"
	outboundPong             = "pong"
	outboundCDPError         = "cdp:error"
	outboundInputError       = "input:error"
	outboundRateLimited      = "rate:limited"
	outboundSessionUnhealthy = "session:unhealthy"
	outboundElementHover     = "element:hover"
	outboundError            = "error"
)

// OutboundMessage is the envelope every server→client message carries: a
// server-generated id and timestamp wrapping a typed payload (spec §4.5:
// "Each carries a server-generated id and timestamp").
type OutboundMessage struct {
	ID        string      `json:"id"`
	Type      string      `json:"type"`
	Timestamp int64       `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

type framePayload struct {
	DataURL string `json:"dataUrl"`
}

type sessionStatePayload struct {
	SessionID string `json:"sessionId"`
	Status    string `json:"status"`
	URL       string `json:"url"`
	Title     string `json:"title"`
	Health    string `json:"health"`
	Error     string `json:"error,omitempty"`
}

type pongPayload struct {
	Timestamp int64 `json:"timestamp"`
}

type cdpErrorPayload struct {
	Op      string `json:"op"`
	Message string `json:"message"`
}

type inputErrorPayload struct {
	Message string `json:"message"`
}

type rateLimitedPayload struct {
	Kind      string  `json:"kind"`
	ResetAt   int64   `json:"resetAt"`
	Remaining float64 `json:"remaining"`
}

type sessionUnhealthyPayload struct {
	SessionID string `json:"sessionId"`
}

type elementHoverPayload struct {
	Tag         string   `json:"tag,omitempty"`
	ID          string   `json:"id,omitempty"`
	Classes     []string `json:"classes,omitempty"`
	Role        string   `json:"role,omitempty"`
	AriaLabel   string   `json:"ariaLabel,omitempty"`
	DataTestID  string   `json:"dataTestId,omitempty"`
	Label       string   `json:"label,omitempty"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
