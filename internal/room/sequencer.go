package room

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/peercode/interview-service/internal/errs"
	"github.com/peercode/interview-service/internal/model"
)

// Producer is the external AI collaborator: buffered candidate audio in, a
// stream of response parts out. The last part of a successful stream has
// IsLast set; a failed stream surfaces as an error on the channel's final
// part or as a closed channel after an error return.
type Producer interface {
	Generate(ctx context.Context, turnID uint64, chunks [][]byte) (<-chan model.TurnPart, error)
}

// TurnSequencer enforces turn-taking for an AI interview session: candidate
// audio is buffered while a generation is in flight, at most one call to the
// producer is outstanding at any time, and every broadcast part carries the
// turn counter so receivers can discard parts of a superseded turn.
//
// All methods except the producer goroutine run on the room goroutine; the
// producer goroutine re-enters it through schedule.
type TurnSequencer struct {
	sessionID string
	producer  Producer
	timeout   time.Duration

	phase  model.TurnPhase
	turn   uint64
	buffer [][]byte

	emit     func(model.TurnPart)
	schedule func(func())
	log      *zap.Logger

	timer  *time.Timer
	cancel context.CancelFunc
}

func newTurnSequencer(sessionID string, producer Producer, timeout time.Duration, emit func(model.TurnPart), schedule func(func()), log *zap.Logger) *TurnSequencer {
	return &TurnSequencer{
		sessionID: sessionID,
		producer:  producer,
		timeout:   timeout,
		phase:     model.PhaseWaitingForCandidate,
		emit:      emit,
		schedule:  schedule,
		log:       log,
	}
}

// State returns the visible turn state.
func (s *TurnSequencer) State() model.TurnState {
	return model.TurnState{Phase: s.phase, Turn: s.turn, BufferedChunks: len(s.buffer)}
}

// BufferAudio appends candidate audio. In the waiting phase it arms the
// buffering timeout so a turn starts even without an explicit submit; during
// a generation it only buffers, never triggers a second one.
func (s *TurnSequencer) BufferAudio(chunks [][]byte) {
	s.buffer = append(s.buffer, chunks...)
	if s.phase == model.PhaseWaitingForCandidate && s.timer == nil && s.timeout > 0 {
		s.timer = time.AfterFunc(s.timeout, func() {
			s.schedule(s.onBufferTimeout)
		})
	}
}

// Submit appends chunks and requests a turn. While a generation is in flight
// the audio is queued and ErrDuplicateGeneration is returned so callers can
// log it; the client sees no error, only a later turn.
func (s *TurnSequencer) Submit(chunks [][]byte) error {
	s.buffer = append(s.buffer, chunks...)
	if s.phase != model.PhaseWaitingForCandidate {
		return errs.ErrDuplicateGeneration
	}
	s.startGeneration()
	return nil
}

func (s *TurnSequencer) onBufferTimeout() {
	s.timer = nil
	if s.phase != model.PhaseWaitingForCandidate || len(s.buffer) == 0 {
		return
	}
	s.log.Debug("turn forced by buffering timeout")
	s.startGeneration()
}

// startGeneration transitions waiting -> generating, takes the buffer and
// dispatches it to the producer in its own goroutine. Room operations keep
// flowing while the generation is in flight.
func (s *TurnSequencer) startGeneration() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.phase = model.PhaseGenerating
	s.turn++
	turnID := s.turn
	chunks := s.buffer
	s.buffer = nil

	if s.producer == nil {
		s.schedule(func() { s.onProducerError(turnID, errs.ErrProducerFailure) })
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	go func() {
		parts, err := s.producer.Generate(ctx, turnID, chunks)
		if err != nil {
			s.schedule(func() { s.onProducerError(turnID, err) })
			return
		}
		sawLast := false
		for part := range parts {
			p := part
			sawLast = sawLast || p.IsLast
			s.schedule(func() { s.onPart(turnID, p) })
		}
		if !sawLast {
			// Stream ended without a terminal part: treat as producer failure
			// so the session is not wedged.
			s.schedule(func() { s.onProducerError(turnID, errs.ErrProducerFailure) })
		}
	}()
}

func (s *TurnSequencer) onPart(turnID uint64, part model.TurnPart) {
	// Drop parts of a superseded turn, and anything a misbehaving producer
	// emits after its IsLast part already closed the turn.
	if turnID != s.turn || s.phase == model.PhaseWaitingForCandidate {
		return
	}
	if s.phase == model.PhaseGenerating {
		s.phase = model.PhaseStreaming
	}
	part.TurnID = turnID
	s.emit(part)
	if part.IsLast {
		s.finishTurn()
	}
}

func (s *TurnSequencer) onProducerError(turnID uint64, err error) {
	if turnID != s.turn || s.phase == model.PhaseWaitingForCandidate {
		return
	}
	s.log.Warn("ai producer failed", zap.Uint64("turn", turnID), zap.Error(err))
	s.emit(model.TurnPart{TurnID: turnID, IsLast: true, Error: err.Error()})
	// Back to waiting so the session is not wedged; buffered audio waits for
	// the next explicit submit or buffering timeout rather than retrying the
	// failed turn in a loop.
	s.phase = model.PhaseWaitingForCandidate
	s.rearmIfBuffered()
}

// finishTurn returns to waiting; audio buffered during the finished turn is
// immediately eligible, so a pending buffer starts the next turn right away.
func (s *TurnSequencer) finishTurn() {
	s.phase = model.PhaseWaitingForCandidate
	s.cancel = nil
	if len(s.buffer) > 0 {
		s.startGeneration()
	}
}

func (s *TurnSequencer) rearmIfBuffered() {
	if len(s.buffer) > 0 && s.timer == nil && s.timeout > 0 {
		s.timer = time.AfterFunc(s.timeout, func() {
			s.schedule(s.onBufferTimeout)
		})
	}
}

// stop cancels any in-flight generation and timers; room close only.
func (s *TurnSequencer) stop() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}
