// Package session owns the lifecycle of browser-control sessions: creation,
// startup, idle eviction, the per-session step store, and the recorder state
// machine that turns raw input events into recorded Steps.
//
// Grounded on the teacher's cmd/dev-console/client_registry.go for the
// registry shape (mutex-guarded map + access-order bookkeeping) generalized
// from LRU client slots to the session lifecycle this spec requires.
package session

import (
	"time"

	"github.com/brennhill/browserctl-gateway/internal/driver"
)

// Status is the Session lifecycle state (spec §3/§4.4).
type Status int

const (
	StatusCreated Status = iota
	StatusStarting
	StatusActive
	StatusEnding
	StatusEnded
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusCreated:
		return "created"
	case StatusStarting:
		return "starting"
	case StatusActive:
		return "active"
	case StatusEnding:
		return "ending"
	case StatusEnded:
		return "ended"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Health aliases driver.Health so session code doesn't need to import both
// packages just to talk about liveness.
type Health = driver.Health

const (
	HealthUnknown   = driver.HealthUnknown
	HealthHealthy   = driver.HealthHealthy
	HealthUnhealthy = driver.HealthUnhealthy
)

// ActionKind tags a Step's closed tagged union (spec §3).
type ActionKind string

const (
	ActionNavigate ActionKind = "navigate"
	ActionClick    ActionKind = "click"
	ActionType     ActionKind = "type"
	ActionScroll   ActionKind = "scroll"
	ActionKeypress ActionKind = "keypress"
)

// ElementRef is the JSON-friendly projection of driver.ElementDescriptor
// attached to click/type steps.
type ElementRef struct {
	Tag         string             `json:"tag,omitempty"`
	ID          string             `json:"id,omitempty"`
	Classes     []string           `json:"classes,omitempty"`
	Role        string             `json:"role,omitempty"`
	AriaLabel   string             `json:"ariaLabel,omitempty"`
	DataTestID  string             `json:"dataTestId,omitempty"`
	Label       string             `json:"label,omitempty"`
	BoundingBox driver.BoundingBox `json:"boundingBox"`
}

func elementRefFromDescriptor(d *driver.ElementDescriptor) *ElementRef {
	if d == nil {
		return nil
	}
	return &ElementRef{
		Tag:         d.Tag,
		ID:          d.ID,
		Classes:     d.Classes,
		Role:        d.Role,
		AriaLabel:   d.AriaLabel,
		DataTestID:  d.DataTestID,
		Label:       d.Label,
		BoundingBox: d.BoundingBox,
	}
}

// Step is one recorded semantic user action (spec §3).
type Step struct {
	ID        string     `json:"id"`
	Index     int        `json:"index"`
	Action    ActionKind `json:"action"`
	Caption   string     `json:"caption"`
	CreatedAt time.Time  `json:"createdAt"`

	ScreenshotPath string `json:"screenshotPath,omitempty"`
	ScreenshotData string `json:"screenshotDataUrl,omitempty"`

	// navigate
	FromURL string `json:"fromUrl,omitempty"`
	ToURL   string `json:"toUrl,omitempty"`
	Trigger string `json:"trigger,omitempty"`

	// click
	X       float64     `json:"x,omitempty"`
	Y       float64     `json:"y,omitempty"`
	Button  string      `json:"button,omitempty"`
	Element *ElementRef `json:"element,omitempty"`

	// type
	Text      string `json:"text,omitempty"`
	Submitted bool   `json:"submitted,omitempty"`

	// scroll
	DeltaX float64 `json:"deltaX,omitempty"`
	DeltaY float64 `json:"deltaY,omitempty"`

	// keypress
	Key       string   `json:"key,omitempty"`
	Modifiers []string `json:"modifiers,omitempty"`
}

// Session is the unit of ownership binding one client, one browser, one
// recording (spec §3, glossary).
type Session struct {
	ID    string
	Token string

	Status       Status
	CurrentURL   string
	CurrentTitle string
	Health       Health
	ErrorMessage string

	CreatedAt      time.Time
	LastActivityAt time.Time

	WorkDir string

	Driver *driver.Driver

	steps *StepStore
}

// Snapshot is the JSON-serializable view of a Session (HTTP GET /api/sessions/{id}).
type Snapshot struct {
	SessionID string `json:"sessionId"`
	Status    string `json:"status"`
	URL       string `json:"url"`
	Title     string `json:"title"`
	StepCount int    `json:"stepCount"`
	Health    string `json:"health"`
	Error     string `json:"error,omitempty"`
}

// Snapshot renders the Session's external view.
func (s *Session) Snapshot() Snapshot {
	return Snapshot{
		SessionID: s.ID,
		Status:    s.Status.String(),
		URL:       s.CurrentURL,
		Title:     s.CurrentTitle,
		StepCount: s.steps.Len(),
		Health:    s.Health.String(),
		Error:     s.ErrorMessage,
	}
}

// Steps exposes the session's step store to callers (Gateway, HTTP layer).
func (s *Session) Steps() *StepStore { return s.steps }
