package model

import (
	"encoding/json"
	"fmt"
)

// Channel event names. The set is closed: an envelope carrying any other
// event is rejected at the boundary before it can reach room logic.
const (
	EventJoin              = "join"
	EventLeave             = "leave"
	EventChatSend          = "chat:send"
	EventChatMessage       = "chat:message"
	EventDocumentEdit      = "document:edit"
	EventDocumentUpdate    = "document:update"
	EventDocumentRun       = "document:run"
	EventDocumentOutput    = "document:output"
	EventSignalNegotiate   = "signal:negotiate"
	EventViolation         = "anti-cheat:violation"
	EventTurnSubmit        = "interview:turn-submit"
	EventTurnPart          = "interview:turn-part"
	EventParticipantJoined = "participant-joined"
	EventParticipantLeft   = "participant-left"
	EventStateSnapshot     = "state"
	EventSessionFinished   = "session-finished"
)

// Envelope is the wire frame for every channel message.
type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// EncodeEvent marshals a payload into a ready-to-send envelope frame.
func EncodeEvent(event string, payload any) ([]byte, error) {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", event, err)
		}
		raw = b
	}
	return json.Marshal(Envelope{Event: event, Payload: raw})
}

// DecodeEnvelope parses a wire frame. Malformed frames or frames without an
// event name are rejected here.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Event == "" {
		return nil, fmt.Errorf("decode envelope: missing event")
	}
	return &env, nil
}

// ChatSendPayload is the client payload of chat:send.
type ChatSendPayload struct {
	Text string `json:"text"`
}

// DocumentEditPayload is the client payload of document:edit. Revision is the
// client-supplied base revision used for stale-write rejection.
type DocumentEditPayload struct {
	Revision int64  `json:"revision"`
	Code     string `json:"code"`
	Language string `json:"language"`
}

// DocumentRunPayload is the client payload of document:run.
type DocumentRunPayload struct {
	Output string `json:"output"`
}

// NegotiatePayload is the payload of signal:negotiate in both directions.
// FromID is filled by the coordinator on relay; clients only set ToID.
// The broker forwards Payload verbatim and never inspects it.
type NegotiatePayload struct {
	FromID  string          `json:"from_id,omitempty"`
	ToID    string          `json:"to_id,omitempty"`
	Kind    NegotiationKind `json:"kind"`
	Round   uint64          `json:"round"`
	Payload json.RawMessage `json:"payload"`
}

// TurnSubmitPayload is the client payload of interview:turn-submit.
type TurnSubmitPayload struct {
	AudioChunks [][]byte `json:"audio_chunks"`
}

// ParticipantEventPayload is the payload of participant-joined / -left.
type ParticipantEventPayload struct {
	Participant Participant `json:"participant"`
}
