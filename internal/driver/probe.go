// probe.go — Element-at-point probing and health checks (spec §4.3).
package driver

import (
	"context"
	"time"
)

// elementAtScript walks up from the point to the nearest interactive
// ancestor and resolves a label in the exact priority order the spec
// mandates: aria-label, aria-labelledby text, associated/ancestor <label>
// text, placeholder, title, button value, alt, then a truncated text
// fallback.
const elementAtScript = `([x, y]) => {
  const interactiveSelector = 'button, a, input, select, textarea, label, [role=button], [role=link]';
  let el = document.elementFromPoint(x, y);
  if (!el) return null;

  let target = el.closest(interactiveSelector) || el;

  function labelForTarget(t) {
    const ariaLabel = t.getAttribute('aria-label');
    if (ariaLabel) return ariaLabel;

    const labelledBy = t.getAttribute('aria-labelledby');
    if (labelledBy) {
      const parts = labelledBy.split(/\s+/).map((id) => {
        const node = document.getElementById(id);
        return node ? node.textContent.trim() : '';
      }).filter(Boolean);
      if (parts.length) return parts.join(' ');
    }

    if (t.id) {
      const assoc = document.querySelector('label[for="' + t.id + '"]');
      if (assoc && assoc.textContent.trim()) return assoc.textContent.trim();
    }

    const ancestorLabel = t.closest('label');
    if (ancestorLabel && ancestorLabel.textContent.trim()) return ancestorLabel.textContent.trim();

    const placeholder = t.getAttribute('placeholder');
    if (placeholder) return placeholder;

    const title = t.getAttribute('title');
    if (title) return title;

    if (t.tagName === 'BUTTON' || (t.tagName === 'INPUT' && (t.type === 'submit' || t.type === 'button'))) {
      const value = t.getAttribute('value');
      if (value) return value;
    }

    const alt = t.getAttribute('alt');
    if (alt) return alt;

    const text = (t.textContent || '').trim();
    if (text) return text.slice(0, 100);

    return '';
  }

  const rect = target.getBoundingClientRect();
  return {
    tag: target.tagName ? target.tagName.toLowerCase() : '',
    id: target.id || '',
    classes: target.className && typeof target.className === 'string' ? target.className.split(/\s+/).filter(Boolean) : [],
    testId: target.getAttribute('data-testid') || '',
    role: target.getAttribute('role') || '',
    text: (target.textContent || '').trim().slice(0, 100),
    label: labelForTarget(target),
    name: target.getAttribute('name') || '',
    placeholder: target.getAttribute('placeholder') || '',
    box: { x: rect.x, y: rect.y, width: rect.width, height: rect.height },
  };
}`

// ElementAt runs the page-side probe described in §4.3 and returns the
// resolved descriptor, or nil if no element sits at the point.
func (d *Driver) ElementAt(ctx context.Context, x, y float64) (*ElementDescriptor, error) {
	var descriptor *ElementDescriptor
	err := d.withPage(ctx, "ELEMENT_AT", func(ctx context.Context) error {
		raw, err := d.page.Evaluate(elementAtScript, []float64{x, y})
		if err != nil {
			return err
		}
		if raw == nil {
			return nil
		}

		m, ok := raw.(map[string]interface{})
		if !ok {
			return nil
		}
		descriptor = descriptorFromMap(m)
		return nil
	})
	return descriptor, err
}

func descriptorFromMap(m map[string]interface{}) *ElementDescriptor {
	d := &ElementDescriptor{
		Tag:         stringField(m, "tag"),
		ID:          stringField(m, "id"),
		Role:        stringField(m, "role"),
		AriaLabel:   stringField(m, "label"),
		DataTestID:  stringField(m, "testId"),
		Name:        stringField(m, "name"),
		Placeholder: stringField(m, "placeholder"),
		Label:       stringField(m, "label"),
		Text:        stringField(m, "text"),
	}
	if classesRaw, ok := m["classes"].([]interface{}); ok {
		for _, c := range classesRaw {
			if s, ok := c.(string); ok {
				d.Classes = append(d.Classes, s)
			}
		}
	}
	if boxRaw, ok := m["box"].(map[string]interface{}); ok {
		d.BoundingBox = BoundingBox{
			X:      floatField(boxRaw, "x"),
			Y:      floatField(boxRaw, "y"),
			Width:  floatField(boxRaw, "width"),
			Height: floatField(boxRaw, "height"),
		}
	}
	return d
}

func stringField(m map[string]interface{}, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func floatField(m map[string]interface{}, key string) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return 0
	}
}

const healthProbeScript = `1 + 1`

// Health evaluates a trivial in-page expression to detect CDP/page
// liveness, caching the verdict for 10s (§4.3).
func (d *Driver) Health(ctx context.Context) Health {
	d.healthMu.Lock()
	if time.Since(d.lastHealthAt) < 10*time.Second && d.lastHealth != HealthUnknown {
		cached := d.lastHealth
		d.healthMu.Unlock()
		return cached
	}
	d.healthMu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, HealthTimeout)
	defer cancel()

	result := HealthHealthy
	err := d.withPage(ctx, "HEALTH", func(ctx context.Context) error {
		_, err := d.page.Evaluate(healthProbeScript)
		return err
	})
	if err != nil {
		result = HealthUnhealthy
	}

	d.healthMu.Lock()
	d.lastHealth = result
	d.lastHealthAt = time.Now()
	d.healthMu.Unlock()

	return result
}

// healthLoop probes liveness every 60s; three consecutive failures are
// reported via cdpErrors so the Session Manager can flip health to
// UNHEALTHY (§7).
func (d *Driver) healthLoop() {
	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-d.stopHealth:
			return
		case <-ticker.C:
			if d.Health(context.Background()) == HealthUnhealthy {
				d.healthMu.Lock()
				d.consecutiveBad++
				bad := d.consecutiveBad
				d.healthMu.Unlock()
				if bad >= 3 {
					select {
					case d.cdpErrors <- &CDPError{Op: "HEALTH", Message: "three consecutive health probe failures"}:
					default:
					}
				}
			} else {
				d.healthMu.Lock()
				d.consecutiveBad = 0
				d.healthMu.Unlock()
			}
		}
	}
}
