package room

import (
	"time"

	"go.uber.org/zap"

	"github.com/peercode/interview-service/internal/errs"
	"github.com/peercode/interview-service/internal/model"
)

// Outbound delivers one encoded event frame to a member's connection. It must
// never block; the websocket handler backs it with a buffered send channel
// that drops on overflow.
type Outbound func(frame []byte)

// Recorder persists violations and end-of-session reports. Calls are made
// from the room goroutine and must not block for long; the gorm-backed
// implementation hands the row off to the database synchronously but cheaply.
type Recorder interface {
	RecordViolation(sessionID string, rec model.ViolationRecord)
	SaveReport(rep model.SessionReport)
}

type member struct {
	p   model.Participant
	out Outbound
	gen uint64 // attachment generation; bumped on every (re-)join
}

// Attachment identifies one connection's attachment to the room. Each Join
// returns a fresh attachment; MarkDisconnected acts only if the attachment is
// still the participant's current one, so a stale connection's teardown can
// never detach a connection that re-joined in the meantime.
type Attachment struct {
	UserID   string
	Snapshot *model.StateSnapshot
	gen      uint64
}

// Room is the single-owner coordinator for one session. All mutations of
// membership, chat, document, peer links and turn state flow through the
// mailbox and are processed one at a time by the run goroutine; operations on
// different rooms proceed in parallel.
type Room struct {
	id        string
	kind      model.RoomKind
	createdAt time.Time
	log       *zap.Logger

	mailbox chan func()
	done    chan struct{}
	closing bool // set on the run goroutine; run closes done after the op

	// State below is owned by the run goroutine.
	attachGen    uint64
	members      []*member
	chat         []model.ChatMessage
	seq          uint64
	doc          model.SharedDocument
	links        map[pairKey]*peerLink
	sequencer    *TurnSequencer
	violationLog []model.ViolationRecord
	counts       map[model.ViolationType]int

	recorder Recorder
	onEmpty  func(id string, rep model.SessionReport)
}

func newRoom(id string, kind model.RoomKind, producer Producer, turnTimeout time.Duration, recorder Recorder, onEmpty func(string, model.SessionReport), log *zap.Logger) *Room {
	r := &Room{
		id:        id,
		kind:      kind,
		createdAt: time.Now(),
		log:       log.With(zap.String("session_id", id)),
		mailbox:   make(chan func(), 256),
		done:      make(chan struct{}),
		links:     make(map[pairKey]*peerLink),
		counts:    make(map[model.ViolationType]int),
		recorder:  recorder,
		onEmpty:   onEmpty,
	}
	if kind == model.RoomKindAIInterview {
		r.sequencer = newTurnSequencer(id, producer, turnTimeout, r.broadcastTurnPart, r.enqueue, r.log)
	}
	go r.run()
	return r
}

func (r *Room) run() {
	for fn := range r.mailbox {
		fn()
		if r.closing {
			if r.sequencer != nil {
				r.sequencer.stop()
			}
			close(r.done)
			return
		}
	}
}

// enqueue schedules fn on the room goroutine; drops it if the room is closed.
// Used by the sequencer's producer goroutine and timers to re-enter the actor.
func (r *Room) enqueue(fn func()) {
	select {
	case <-r.done:
		return
	default:
	}
	select {
	case r.mailbox <- fn:
	case <-r.done:
	}
}

// do runs fn on the room goroutine and waits for completion. The completion
// channel is closed by the op itself before the run loop can shut the room
// down, so a successful op never reports ErrRoomClosed.
func (r *Room) do(fn func()) error {
	select {
	case <-r.done:
		return errs.ErrRoomClosed
	default:
	}
	doneCh := make(chan struct{})
	select {
	case r.mailbox <- func() { fn(); close(doneCh) }:
	case <-r.done:
		return errs.ErrRoomClosed
	}
	select {
	case <-doneCh:
		return nil
	case <-r.done:
		select {
		case <-doneCh:
			return nil
		default:
			return errs.ErrRoomClosed
		}
	}
}

// ID returns the session identifier.
func (r *Room) ID() string { return r.id }

// Kind returns the room kind.
func (r *Room) Kind() model.RoomKind { return r.kind }

// Close shuts the room down: broadcasts session-finished to any members
// still attached, then stops the run goroutine. Idempotent; safe from any
// goroutine except the room's own.
func (r *Room) Close() {
	_ = r.do(func() {
		r.broadcast(model.EventSessionFinished, map[string]string{"session_id": r.id}, "")
		r.closing = true
	})
}

// Join adds a participant, or promotes a disconnected participant back to
// active on re-join, and broadcasts participant-joined to the existing
// members. The state snapshot is replayed through the joiner's outbound from
// inside the mailbox op, so every later fan-out is ordered strictly after it;
// it is also returned on the attachment for callers that want it directly.
func (r *Room) Join(p model.Participant, out Outbound) (*Attachment, error) {
	var att *Attachment
	err := r.do(func() {
		m := r.findMember(p.UserID)
		if m != nil {
			// Idempotent re-join: never duplicate, re-attach the connection.
			m.p.State = model.StateActive
			m.out = out
		} else {
			p.State = model.StateActive
			p.JoinedAt = time.Now()
			m = &member{p: p, out: out}
			r.members = append(r.members, m)
		}
		r.attachGen++
		m.gen = r.attachGen
		r.broadcast(model.EventParticipantJoined,
			model.ParticipantEventPayload{Participant: m.p}, m.p.UserID)
		snap := r.snapshotLocked()
		if frame, encErr := model.EncodeEvent(model.EventStateSnapshot, snap); encErr == nil {
			out(frame)
		} else {
			r.log.Error("snapshot encode failed", zap.Error(encErr))
		}
		att = &Attachment{UserID: m.p.UserID, Snapshot: snap, gen: m.gen}
		r.log.Info("participant joined",
			zap.String("user_id", p.UserID), zap.String("role", string(p.Role)))
	})
	if err != nil {
		return nil, err
	}
	return att, nil
}

// Leave removes a participant. When the last participant leaves, the room is
// released synchronously via the registry hook.
func (r *Room) Leave(userID string) error {
	return r.do(func() {
		idx := -1
		for i, m := range r.members {
			if m.p.UserID == userID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return
		}
		left := r.members[idx].p
		r.members = append(r.members[:idx], r.members[idx+1:]...)
		r.broadcast(model.EventParticipantLeft,
			model.ParticipantEventPayload{Participant: left}, "")
		r.log.Info("participant left", zap.String("user_id", userID))
		if len(r.members) == 0 && r.onEmpty != nil {
			r.onEmpty(r.id, r.reportLocked())
		}
	})
}

// MarkDisconnected records a channel-level disconnect for one attachment. The
// participant stays a member so session-scoped state (counters, turn state)
// survives the reconnect; only the outbound path is detached. A stale
// attachment, superseded by a newer Join for the same participant, is a
// no-op: the rapid-reconnect teardown must not clobber the live connection.
func (r *Room) MarkDisconnected(att *Attachment) {
	if att == nil {
		return
	}
	_ = r.do(func() {
		m := r.findMember(att.UserID)
		if m == nil || m.gen != att.gen {
			return
		}
		m.p.State = model.StateDisconnected
		m.out = nil
		r.log.Info("participant disconnected", zap.String("user_id", att.UserID))
	})
}

// PostMessage appends a chat message with a coordinator-assigned sequence
// number and broadcasts it to every member including the sender, so ordering
// is observed identically by all.
func (r *Room) PostMessage(sender, text string) error {
	var opErr error
	err := r.do(func() {
		if r.findMember(sender) == nil {
			opErr = errs.ErrNotAMember
			return
		}
		r.seq++
		msg := model.ChatMessage{Sender: sender, Text: text, Seq: r.seq, SentAt: time.Now()}
		r.chat = append(r.chat, msg)
		r.broadcast(model.EventChatMessage, msg, "")
	})
	if err != nil {
		return err
	}
	return opErr
}

// ApplyDocumentEdit applies a last-writer-wins edit. An edit whose revision
// is behind the current document revision is discarded without a merge and
// without a user-facing error; accepted edits are broadcast to everyone
// except the author (echo suppression protects the author's local cursor).
func (r *Room) ApplyDocumentEdit(author string, edit model.DocumentEditPayload) error {
	var opErr error
	err := r.do(func() {
		if r.findMember(author) == nil {
			opErr = errs.ErrNotAMember
			return
		}
		if edit.Revision < r.doc.Revision {
			opErr = errs.ErrStaleWrite
			return
		}
		r.doc.Code = edit.Code
		r.doc.Language = edit.Language
		r.doc.Revision = edit.Revision
		r.doc.UpdatedAt = time.Now()
		r.broadcast(model.EventDocumentUpdate, r.doc, author)
	})
	if err != nil {
		return err
	}
	return opErr
}

// RecordRun stores a run output on the document and broadcasts it to every
// member including the author; a run result is not an edit-echo case.
func (r *Room) RecordRun(author, output string) error {
	var opErr error
	err := r.do(func() {
		if r.findMember(author) == nil {
			opErr = errs.ErrNotAMember
			return
		}
		r.doc.RunOutput = &output
		r.broadcast(model.EventDocumentOutput, model.DocumentRunPayload{Output: output}, "")
	})
	if err != nil {
		return err
	}
	return opErr
}

// RecordViolation appends an integrity violation reported by sender and
// bumps the per-type counter. Violations are never broadcast to peers; they
// are visible only to the authority side, and the counters are monotonic for
// the session's lifetime regardless of reconnects.
func (r *Room) RecordViolation(sender string, rec model.ViolationRecord) error {
	var opErr error
	err := r.do(func() {
		if r.findMember(sender) == nil {
			opErr = errs.ErrNotAMember
			return
		}
		rec.SessionID = r.id
		if rec.Timestamp.IsZero() {
			rec.Timestamp = time.Now()
		}
		r.violationLog = append(r.violationLog, rec)
		r.counts[rec.Type]++
		if r.recorder != nil {
			r.recorder.RecordViolation(r.id, rec)
		}
		r.log.Warn("violation recorded",
			zap.String("type", string(rec.Type)),
			zap.String("detail", rec.Detail),
			zap.Int("count", r.counts[rec.Type]))
	})
	if err != nil {
		return err
	}
	return opErr
}

// SubmitTurn feeds candidate audio to the AI turn sequencer. Outside an AI
// interview session it is rejected.
func (r *Room) SubmitTurn(userID string, chunks [][]byte) error {
	var opErr error
	err := r.do(func() {
		if r.sequencer == nil {
			opErr = errs.ErrNotInterviewSession
			return
		}
		if r.findMember(userID) == nil {
			opErr = errs.ErrNotAMember
			return
		}
		opErr = r.sequencer.Submit(chunks)
	})
	if err != nil {
		return err
	}
	return opErr
}

// BufferAudio appends candidate audio without requesting a turn; the
// buffering timeout will force one if no explicit submit follows.
func (r *Room) BufferAudio(userID string, chunks [][]byte) error {
	var opErr error
	err := r.do(func() {
		if r.sequencer == nil {
			opErr = errs.ErrNotInterviewSession
			return
		}
		if r.findMember(userID) == nil {
			opErr = errs.ErrNotAMember
			return
		}
		r.sequencer.BufferAudio(chunks)
	})
	if err != nil {
		return err
	}
	return opErr
}

// Snapshot returns the current room state.
func (r *Room) Snapshot() (*model.StateSnapshot, error) {
	var snap *model.StateSnapshot
	if err := r.do(func() { snap = r.snapshotLocked() }); err != nil {
		return nil, err
	}
	return snap, nil
}

// ViolationCounts returns a copy of the per-type counters.
func (r *Room) ViolationCounts() map[model.ViolationType]int {
	out := make(map[model.ViolationType]int)
	_ = r.do(func() {
		for k, v := range r.counts {
			out[k] = v
		}
	})
	return out
}

// MemberCount returns the number of members (any connection state).
func (r *Room) MemberCount() int {
	n := 0
	_ = r.do(func() { n = len(r.members) })
	return n
}

func (r *Room) findMember(userID string) *member {
	for _, m := range r.members {
		if m.p.UserID == userID {
			return m
		}
	}
	return nil
}

// snapshotLocked builds the snapshot; run-goroutine only.
func (r *Room) snapshotLocked() *model.StateSnapshot {
	snap := &model.StateSnapshot{
		SessionID: r.id,
		Kind:      r.kind,
		Members:   make([]model.Participant, 0, len(r.members)),
		Chat:      append([]model.ChatMessage(nil), r.chat...),
	}
	for _, m := range r.members {
		snap.Members = append(snap.Members, m.p)
	}
	if r.kind == model.RoomKindPeer {
		doc := r.doc
		snap.Document = &doc
	}
	if r.sequencer != nil {
		ts := r.sequencer.State()
		snap.Turn = &ts
	}
	return snap
}

// reportLocked summarizes the session for persistence; run-goroutine only.
func (r *Room) reportLocked() model.SessionReport {
	counts := make(map[model.ViolationType]int, len(r.counts))
	for k, v := range r.counts {
		counts[k] = v
	}
	return model.SessionReport{
		SessionID:       r.id,
		Kind:            r.kind,
		Duration:        time.Since(r.createdAt),
		ChatMessages:    len(r.chat),
		ViolationCounts: counts,
	}
}

// broadcast encodes the event once and fans it out to active members,
// skipping exclude (empty string excludes nobody). Never blocks the actor:
// the outbound path is drop-on-overflow.
func (r *Room) broadcast(event string, payload any, exclude string) {
	frame, err := model.EncodeEvent(event, payload)
	if err != nil {
		r.log.Error("broadcast encode failed", zap.String("event", event), zap.Error(err))
		return
	}
	for _, m := range r.members {
		if m.p.UserID == exclude || m.out == nil || m.p.State != model.StateActive {
			continue
		}
		m.out(frame)
	}
}

func (r *Room) broadcastTurnPart(part model.TurnPart) {
	r.broadcast(model.EventTurnPart, part, "")
}
