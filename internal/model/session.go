package model

import "time"

// RoomKind distinguishes peer coding sessions from AI-assisted interviews.
type RoomKind string

const (
	RoomKindPeer        RoomKind = "peer"
	RoomKindAIInterview RoomKind = "ai-interview"
)

// SessionStatus represents durable interview session state.
type SessionStatus string

const (
	SessionStatusWaiting  SessionStatus = "waiting"
	SessionStatusActive   SessionStatus = "active"
	SessionStatusFinished SessionStatus = "finished"
)

// ParticipantRole is the display role of a room member.
type ParticipantRole string

const (
	RoleCandidate ParticipantRole = "candidate"
	RolePeer      ParticipantRole = "peer"
	RoleObserver  ParticipantRole = "observer"
)

// ParticipantState is the connection state of a room member.
type ParticipantState string

const (
	StateJoining      ParticipantState = "joining"
	StateActive       ParticipantState = "active"
	StateDisconnected ParticipantState = "disconnected"
)

// Participant is a member of a room. Owned exclusively by its room.
type Participant struct {
	UserID   string           `json:"user_id"`
	Role     ParticipantRole  `json:"role"`
	State    ParticipantState `json:"state"`
	Muted    bool             `json:"muted"`
	VideoOff bool             `json:"video_off"`
	JoinedAt time.Time        `json:"joined_at"`
}

// ChatMessage is immutable once appended. Seq is assigned by the room
// coordinator, never by the client; it is the sole ordering authority.
type ChatMessage struct {
	Sender string    `json:"sender"`
	Text   string    `json:"text"`
	Seq    uint64    `json:"seq"`
	SentAt time.Time `json:"sent_at"`
}

// SharedDocument is the collaboratively edited code document of a peer
// session. Mutated last-writer-wins: an edit applies only if its revision
// is >= the last applied revision.
type SharedDocument struct {
	Code      string    `json:"code"`
	Language  string    `json:"language"`
	Revision  int64     `json:"revision"`
	UpdatedAt time.Time `json:"updated_at"`
	RunOutput *string   `json:"run_output,omitempty"` // nil = not yet run
}

// TurnPhase is the AI interview turn-taking state.
type TurnPhase string

const (
	PhaseWaitingForCandidate TurnPhase = "waiting_for_candidate"
	PhaseGenerating          TurnPhase = "generating_ai_response"
	PhaseStreaming           TurnPhase = "streaming_ai_response"
)

// TurnState is the visible turn-taking state of an AI interview session.
type TurnState struct {
	Phase          TurnPhase `json:"phase"`
	Turn           uint64    `json:"turn"`
	BufferedChunks int       `json:"buffered_chunks"`
}

// TurnPart is one streamed part of an AI interviewer response. A part with
// IsLast set closes the turn; receivers discard parts whose TurnID is behind
// the turn they last observed.
type TurnPart struct {
	TurnID uint64 `json:"turn_id"`
	Text   string `json:"text,omitempty"`
	Audio  []byte `json:"audio,omitempty"`
	IsLast bool   `json:"is_last"`
	Error  string `json:"error,omitempty"`
}

// ViolationType classifies an integrity signal.
type ViolationType string

const (
	ViolationTabSwitch          ViolationType = "tab_switch"
	ViolationPaste              ViolationType = "paste"
	ViolationVirtualAudioDevice ViolationType = "virtual_audio_device"
)

// ViolationRecord is one classified integrity event together with the
// per-type running counts at the time it fired. Counters are monotonic and
// scoped to the session, not to a single channel connection.
type ViolationRecord struct {
	Type      ViolationType         `json:"type"`
	Detail    string                `json:"detail"`
	SessionID string                `json:"session_id"`
	Timestamp time.Time             `json:"timestamp"`
	Counts    map[ViolationType]int `json:"counts"`
}

// PeerLinkStatus tracks a pair's connection negotiation progress. The broker
// uses it only to decide whether to relay or reset; media never passes here.
type PeerLinkStatus string

const (
	LinkOffered   PeerLinkStatus = "offered"
	LinkAnswered  PeerLinkStatus = "answered"
	LinkConnected PeerLinkStatus = "connected"
	LinkFailed    PeerLinkStatus = "failed"
)

// NegotiationKind is the kind of a peer signaling message.
type NegotiationKind string

const (
	NegotiationOffer     NegotiationKind = "offer"
	NegotiationAnswer    NegotiationKind = "answer"
	NegotiationCandidate NegotiationKind = "ice-candidate"
)

// StateSnapshot is the full room state replayed to a participant on join.
type StateSnapshot struct {
	SessionID string          `json:"session_id"`
	Kind      RoomKind        `json:"kind"`
	Members   []Participant   `json:"members"`
	Chat      []ChatMessage   `json:"chat"`
	Document  *SharedDocument `json:"document,omitempty"`
	Turn      *TurnState      `json:"turn,omitempty"`
}

// SessionReport summarizes a finished session for the authority side.
type SessionReport struct {
	SessionID       string                `json:"session_id"`
	Kind            RoomKind              `json:"kind"`
	Duration        time.Duration         `json:"duration"`
	ChatMessages    int                   `json:"chat_messages"`
	ViolationCounts map[ViolationType]int `json:"violation_counts"`
}

// CreateSessionRequest is the request body for POST /sessions.
type CreateSessionRequest struct {
	Kind RoomKind `json:"kind" binding:"required"`
}

// CreateSessionResponse is the response for POST /sessions.
type CreateSessionResponse struct {
	SessionID string `json:"session_id"`
	WSURL     string `json:"ws_url"`
	Status    string `json:"status"`
}

// SessionInfoResponse is the response for GET /sessions/:id.
type SessionInfoResponse struct {
	SessionID       string                `json:"session_id"`
	Kind            RoomKind              `json:"kind"`
	Status          SessionStatus         `json:"status"`
	CreatedAt       time.Time             `json:"created_at"`
	FinishedAt      *time.Time            `json:"finished_at,omitempty"`
	ViolationCounts map[ViolationType]int `json:"violation_counts"`
}
