package room

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/peercode/interview-service/internal/errs"
	"github.com/peercode/interview-service/internal/model"
)

// Registry maps session identifiers to room coordinators: create on first
// join, destroy when the last participant leaves. Rooms are fully independent
// of one another.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*Room

	producer    Producer
	recorder    Recorder
	turnTimeout time.Duration
	log         *zap.Logger

	onSessionEnd func(model.SessionReport)
}

// NewRegistry creates a registry. producer may be nil when the deployment has
// no AI interviewer configured; AI interview rooms then fail their turns with
// a producer error instead of wedging.
func NewRegistry(producer Producer, recorder Recorder, turnTimeout time.Duration, log *zap.Logger) *Registry {
	return &Registry{
		rooms:       make(map[string]*Room),
		producer:    producer,
		recorder:    recorder,
		turnTimeout: turnTimeout,
		log:         log,
	}
}

// SetOnSessionEnd registers the end-of-session callback (report persistence).
// Invoked once per room, after the room has emptied.
func (g *Registry) SetOnSessionEnd(fn func(model.SessionReport)) {
	g.onSessionEnd = fn
}

// GetOrCreate returns the coordinator for sessionID, creating it on first
// use. Idempotent: repeated calls with the same id return the same instance.
// kind is required on first creation; without it and with no existing room
// the call fails with ErrSessionNotFound.
func (g *Registry) GetOrCreate(sessionID string, kind model.RoomKind) (*Room, error) {
	g.mu.RLock()
	r, ok := g.rooms[sessionID]
	g.mu.RUnlock()
	if ok {
		return r, nil
	}
	if kind == "" {
		return nil, errs.ErrSessionNotFound
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if r, ok := g.rooms[sessionID]; ok {
		return r, nil
	}
	r = newRoom(sessionID, kind, g.producer, g.turnTimeout, g.recorder, g.roomEmptied, g.log)
	g.rooms[sessionID] = r
	g.log.Info("room created", zap.String("session_id", sessionID), zap.String("kind", string(kind)))
	return r, nil
}

// Get returns an existing coordinator.
func (g *Registry) Get(sessionID string) (*Room, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if r, ok := g.rooms[sessionID]; ok {
		return r, nil
	}
	return nil, errs.ErrSessionNotFound
}

// Release discards all in-memory state for a session. No-op for unknown ids.
func (g *Registry) Release(sessionID string) {
	g.mu.Lock()
	r, ok := g.rooms[sessionID]
	if ok {
		delete(g.rooms, sessionID)
	}
	g.mu.Unlock()
	if ok {
		r.Close()
		g.log.Info("room released", zap.String("session_id", sessionID))
	}
}

// Len returns the number of live rooms.
func (g *Registry) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.rooms)
}

// roomEmptied is the room's onEmpty hook. It runs on the room goroutine, so
// it must not call back into the room through the mailbox; it flags the room
// for shutdown directly and the run loop finishes the current op first.
func (g *Registry) roomEmptied(sessionID string, rep model.SessionReport) {
	g.mu.Lock()
	r, ok := g.rooms[sessionID]
	if ok {
		delete(g.rooms, sessionID)
	}
	g.mu.Unlock()
	if ok {
		r.closing = true
	}
	g.log.Info("room emptied", zap.String("session_id", sessionID))
	if g.onSessionEnd != nil {
		g.onSessionEnd(rep)
	}
}
