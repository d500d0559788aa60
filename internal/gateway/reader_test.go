package gateway

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brennhill/browserctl-gateway/internal/driver"
)

func TestDecodeInboundAcceptsWrappedEnvelope(t *testing.T) {
	raw := []byte(`{"id":"abc","type":"BROWSER_ACTION","timestamp":1,"payload":{"type":"ping","timestamp":2}}`)

	payload, ok := decodeInbound(raw)
	require.True(t, ok)

	var kind payloadKind
	require.NoError(t, json.Unmarshal(payload, &kind))
	assert.Equal(t, inboundPing, kind.Type)
}

func TestDecodeInboundAcceptsBarePayload(t *testing.T) {
	raw := []byte(`{"type":"input:scroll","x":1,"y":2,"deltaX":3,"deltaY":4}`)

	payload, ok := decodeInbound(raw)
	require.True(t, ok)

	var p scrollPayload
	require.NoError(t, json.Unmarshal(payload, &p))
	assert.Equal(t, 3.0, p.DeltaX)
}

func TestDecodeInboundRejectsGarbage(t *testing.T) {
	_, ok := decodeInbound([]byte(`not json`))
	assert.False(t, ok)
}

func TestDecodeInboundRejectsEnvelopeWithoutType(t *testing.T) {
	_, ok := decodeInbound([]byte(`{"foo":"bar"}`))
	assert.False(t, ok)
}

func TestModifierMaskFromNamesCombinesBits(t *testing.T) {
	mask := modifierMaskFromNames([]string{"Shift", "ctrl"})
	assert.Equal(t, driver.ModifierMask(true, true, false, false), mask)
}

func TestModifierMaskFromNamesIgnoresUnknown(t *testing.T) {
	mask := modifierMaskFromNames([]string{"bogus"})
	assert.Equal(t, 0, mask)
}
