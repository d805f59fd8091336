package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeEnvelope(t *testing.T) {
	frame, err := EncodeEvent(EventChatSend, ChatSendPayload{Text: "hi"})
	require.NoError(t, err)

	env, err := DecodeEnvelope(frame)
	require.NoError(t, err)
	assert.Equal(t, EventChatSend, env.Event)
	assert.JSONEq(t, `{"text":"hi"}`, string(env.Payload))
}

func TestEncodeEventNilPayload(t *testing.T) {
	frame, err := EncodeEvent(EventLeave, nil)
	require.NoError(t, err)

	env, err := DecodeEnvelope(frame)
	require.NoError(t, err)
	assert.Equal(t, EventLeave, env.Event)
	assert.Empty(t, env.Payload)
}

func TestDecodeEnvelopeRejectsMalformed(t *testing.T) {
	_, err := DecodeEnvelope([]byte(`{not json`))
	assert.Error(t, err)
}

func TestDecodeEnvelopeRejectsMissingEvent(t *testing.T) {
	_, err := DecodeEnvelope([]byte(`{"payload":{"text":"hi"}}`))
	assert.Error(t, err)
}
