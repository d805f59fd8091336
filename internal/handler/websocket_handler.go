package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/peercode/interview-service/internal/errs"
	"github.com/peercode/interview-service/internal/middleware"
	"github.com/peercode/interview-service/internal/model"
	"github.com/peercode/interview-service/internal/room"
	"github.com/peercode/interview-service/internal/service"
)

// SessionWSHandler handles WebSocket connections for /ws/session/:session_id.
type SessionWSHandler struct {
	registry   *room.Registry
	sess       service.SessionServicer
	upgrader   websocket.Upgrader
	maxMsgSize int64
	sendBuffer int
	logger     *zap.Logger
}

// NewSessionWSHandler creates the WebSocket session handler.
func NewSessionWSHandler(registry *room.Registry, sess service.SessionServicer, readBuf, writeBuf int, maxMsgSize int64, sendBuffer int, logger *zap.Logger) *SessionWSHandler {
	return &SessionWSHandler{
		registry:   registry,
		sess:       sess,
		maxMsgSize: maxMsgSize,
		sendBuffer: sendBuffer,
		logger:     logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  readBuf,
			WriteBufferSize: writeBuf,
			// Allow all origins for dev; in prod set CheckOrigin.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// ServeWS upgrades the request and attaches the authenticated participant to
// the session's room. Room state is authoritative and outlives any single
// connection; a reconnecting participant re-attaches and receives a fresh
// state snapshot.
func (h *SessionWSHandler) ServeWS(c *gin.Context) {
	sessionID := c.Param("session_id")
	userID := c.GetString(middleware.ContextUserID)
	roleStr := c.GetString(middleware.ContextRole)
	if sessionID == "" || userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "session_id and identity required"})
		return
	}

	sess, err := h.sess.Get(sessionID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	if sess.Status == string(model.SessionStatusFinished) {
		c.JSON(http.StatusGone, gin.H{"error": "session already finished"})
		return
	}

	rm, err := h.registry.GetOrCreate(sessionID, model.RoomKind(sess.Kind))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to attach session"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	if h.maxMsgSize > 0 {
		conn.SetReadLimit(h.maxMsgSize)
	}

	send := make(chan []byte, h.sendBuffer)
	out := func(frame []byte) {
		select {
		case send <- frame:
		default:
			h.logger.Warn("member send buffer full, dropping frame",
				zap.String("session_id", sessionID), zap.String("user_id", userID))
		}
	}

	participant := model.Participant{
		UserID: userID,
		Role:   model.ParticipantRole(roleStr),
	}
	// Join replays the state snapshot through the send channel from inside
	// the room op, so it is always ahead of any subsequent fan-out.
	att, err := rm.Join(participant, out)
	if err != nil {
		h.logger.Warn("join failed", zap.String("session_id", sessionID), zap.Error(err))
		_ = conn.Close()
		return
	}
	_ = h.sess.MarkActive(sessionID)

	done := make(chan struct{})
	go h.writePump(conn, send, done)
	h.readPump(rm, att, conn, sessionID, userID, done)
}

// readPump decodes envelopes and dispatches them to the room coordinator.
// Per-message errors degrade only this participant: the frame is dropped and
// the connection stays up.
func (h *SessionWSHandler) readPump(rm *room.Room, att *room.Attachment, conn *websocket.Conn, sessionID, userID string, done chan struct{}) {
	defer func() {
		close(done)
		_ = conn.Close()
	}()
	log := h.logger.With(zap.String("session_id", sessionID), zap.String("user_id", userID))
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Debug("read error", zap.Error(err))
			}
			rm.MarkDisconnected(att)
			return
		}

		env, err := model.DecodeEnvelope(data)
		if err != nil {
			log.Warn("dropping malformed frame", zap.Error(err))
			continue
		}

		switch env.Event {
		case model.EventChatSend:
			var p model.ChatSendPayload
			if err := json.Unmarshal(env.Payload, &p); err != nil {
				log.Warn("bad chat payload", zap.Error(err))
				continue
			}
			h.logOpErr(log, env.Event, rm.PostMessage(userID, p.Text))

		case model.EventDocumentEdit:
			var p model.DocumentEditPayload
			if err := json.Unmarshal(env.Payload, &p); err != nil {
				log.Warn("bad edit payload", zap.Error(err))
				continue
			}
			err := rm.ApplyDocumentEdit(userID, p)
			if errors.Is(err, errs.ErrStaleWrite) {
				log.Debug("stale edit dropped", zap.Int64("revision", p.Revision))
				continue
			}
			h.logOpErr(log, env.Event, err)

		case model.EventDocumentRun:
			var p model.DocumentRunPayload
			if err := json.Unmarshal(env.Payload, &p); err != nil {
				log.Warn("bad run payload", zap.Error(err))
				continue
			}
			h.logOpErr(log, env.Event, rm.RecordRun(userID, p.Output))

		case model.EventSignalNegotiate:
			var p model.NegotiatePayload
			if err := json.Unmarshal(env.Payload, &p); err != nil {
				log.Warn("bad negotiate payload", zap.Error(err))
				continue
			}
			err := rm.Negotiate(userID, p)
			if errors.Is(err, errs.ErrSignalTargetUnreachable) {
				// Dropped silently; the sender's UI detects the dead link.
				log.Debug("negotiate target unreachable", zap.String("to", p.ToID))
				continue
			}
			h.logOpErr(log, env.Event, err)

		case model.EventViolation:
			var rec model.ViolationRecord
			if err := json.Unmarshal(env.Payload, &rec); err != nil {
				log.Warn("bad violation payload", zap.Error(err))
				continue
			}
			h.logOpErr(log, env.Event, rm.RecordViolation(userID, rec))

		case model.EventTurnSubmit:
			var p model.TurnSubmitPayload
			if err := json.Unmarshal(env.Payload, &p); err != nil {
				log.Warn("bad turn-submit payload", zap.Error(err))
				continue
			}
			err := rm.SubmitTurn(userID, p.AudioChunks)
			if errors.Is(err, errs.ErrDuplicateGeneration) {
				// Audio queued for the next turn; not an error for the client.
				log.Debug("turn in flight, audio buffered")
				continue
			}
			h.logOpErr(log, env.Event, err)

		case model.EventLeave:
			if err := rm.Leave(userID); err != nil && !errors.Is(err, errs.ErrRoomClosed) {
				log.Warn("leave failed", zap.Error(err))
			}
			return

		default:
			log.Warn("unknown event dropped", zap.String("event", env.Event))
		}
	}
}

func (h *SessionWSHandler) writePump(conn *websocket.Conn, send chan []byte, done chan struct{}) {
	defer func() {
		_ = conn.Close()
	}()
	for {
		select {
		case data := <-send:
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func (h *SessionWSHandler) logOpErr(log *zap.Logger, event string, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, errs.ErrNotAMember):
		log.Warn("event from non-member dropped", zap.String("event", event))
	case errors.Is(err, errs.ErrRoomClosed):
		log.Debug("event for closed room dropped", zap.String("event", event))
	default:
		log.Warn("event failed", zap.String("event", event), zap.Error(err))
	}
}
