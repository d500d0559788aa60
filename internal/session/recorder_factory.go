package session

import (
	"context"

	"github.com/brennhill/browserctl-gateway/internal/driver"
)

// NewRecorderForSession wires a Recorder whose emitted steps are appended to
// s's StepStore, screenshotted through s's Driver, and published via the
// Manager's onStepEvent callback as step:new (spec §4.4: "every emitted step
// takes a screenshot").
func (m *Manager) NewRecorderForSession(s *Session) *Recorder {
	screenshot := func(highlight *driver.BoundingBox) (string, string, error) {
		ctx := context.Background()
		var bytes []byte
		var err error
		if highlight != nil {
			bytes, err = s.Driver.ScreenshotWithHighlight(ctx, *highlight, nil, driver.ScreenshotOptions{Format: "jpeg", Quality: 80})
		} else {
			bytes, err = s.Driver.Screenshot(ctx, nil, driver.ScreenshotOptions{Format: "jpeg", Quality: 80})
		}
		if err != nil {
			return "", "", err
		}

		path, writeErr := writeScreenshot(s.WorkDir, bytes)
		if writeErr != nil {
			return "", driver.FrameDataURL(bytes), nil
		}
		return path, driver.FrameDataURL(bytes), nil
	}

	emit := func(step *Step) {
		s.Steps().Append(step)
		if m.onStepEvent != nil {
			m.onStepEvent(s.ID, "step:new", step)
		}
	}

	return NewRecorder(emit, screenshot)
}

// UpdateStepCaption patches a step's caption and fires step:updated.
func (m *Manager) UpdateStepCaption(sessionID, stepID, caption string) (*Step, error) {
	s, err := m.Get(sessionID)
	if err != nil {
		return nil, err
	}
	step, ok := s.Steps().UpdateCaption(stepID, caption)
	if !ok {
		return nil, ErrSessionNotFound
	}
	if m.onStepEvent != nil {
		m.onStepEvent(sessionID, "step:updated", step)
	}
	return step, nil
}

// DeleteStep removes a step and fires step:deleted.
func (m *Manager) DeleteStep(sessionID, stepID string) error {
	s, err := m.Get(sessionID)
	if err != nil {
		return err
	}
	_, ok := s.Steps().Delete(stepID)
	if !ok {
		return ErrSessionNotFound
	}
	// StepStore.Delete's own onDeleted callback already fired step:deleted.
	return nil
}
