package service

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/peercode/interview-service/internal/errs"
	"github.com/peercode/interview-service/internal/model"
)

// SessionServicer is the handler-facing interface of SessionService.
type SessionServicer interface {
	Create(kind model.RoomKind) (*model.InterviewSession, error)
	Get(sessionID string) (*model.InterviewSession, error)
	MarkActive(sessionID string) error
	Finish(sessionID string) error
	ViolationCounts(sessionID string) (map[model.ViolationType]int, error)
}

// SessionService manages durable interview session records. It also
// implements room.Recorder so coordinators can persist violations and
// end-of-session reports without knowing about gorm.
type SessionService struct {
	db  *gorm.DB
	log *zap.Logger
}

// NewSessionService creates a session service.
func NewSessionService(db *gorm.DB, log *zap.Logger) *SessionService {
	return &SessionService{db: db, log: log}
}

// Create creates a new durable session row in the waiting state.
func (s *SessionService) Create(kind model.RoomKind) (*model.InterviewSession, error) {
	ent := &model.InterviewSession{
		ID:     uuid.New().String(),
		Kind:   string(kind),
		Status: string(model.SessionStatusWaiting),
	}
	if err := s.db.Create(ent).Error; err != nil {
		return nil, err
	}
	return ent, nil
}

// Get returns a session by ID.
func (s *SessionService) Get(sessionID string) (*model.InterviewSession, error) {
	var ent model.InterviewSession
	if err := s.db.Where("id = ?", sessionID).First(&ent).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrSessionNotFound
		}
		return nil, err
	}
	return &ent, nil
}

// MarkActive flips a waiting session to active (first participant joined).
func (s *SessionService) MarkActive(sessionID string) error {
	return s.db.Model(&model.InterviewSession{}).
		Where("id = ? AND status = ?", sessionID, string(model.SessionStatusWaiting)).
		Update("status", string(model.SessionStatusActive)).Error
}

// Finish marks a session finished.
func (s *SessionService) Finish(sessionID string) error {
	var ent model.InterviewSession
	if err := s.db.Where("id = ?", sessionID).First(&ent).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errs.ErrSessionNotFound
		}
		return err
	}
	now := time.Now()
	return s.db.Model(&ent).Updates(map[string]interface{}{
		"status":      string(model.SessionStatusFinished),
		"finished_at": now,
	}).Error
}

// ViolationCounts returns the persisted per-type violation counts.
func (s *SessionService) ViolationCounts(sessionID string) (map[model.ViolationType]int, error) {
	type row struct {
		ViolationType string
		N             int
	}
	var rows []row
	err := s.db.Model(&model.SessionViolation{}).
		Select("violation_type, count(*) as n").
		Where("session_id = ?", sessionID).
		Group("violation_type").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[model.ViolationType]int, len(rows))
	for _, r := range rows {
		out[model.ViolationType(r.ViolationType)] = r.N
	}
	return out, nil
}

// RecordViolation persists one violation row. Called from a room goroutine;
// failures are logged, never propagated — violations are data, not control
// flow.
func (s *SessionService) RecordViolation(sessionID string, rec model.ViolationRecord) {
	ent := &model.SessionViolation{
		ID:            uuid.New().String(),
		SessionID:     sessionID,
		ViolationType: string(rec.Type),
		Detail:        rec.Detail,
		OccurredAt:    rec.Timestamp,
	}
	if err := s.db.Create(ent).Error; err != nil {
		s.log.Warn("persist violation failed",
			zap.String("session_id", sessionID), zap.Error(err))
	}
}

// SaveReport persists the end-of-session summary and marks the session
// finished. Invoked by the registry when a room empties.
func (s *SessionService) SaveReport(rep model.SessionReport) {
	ent := &model.SessionReportEntity{
		ID:              uuid.New().String(),
		SessionID:       rep.SessionID,
		DurationSeconds: int64(rep.Duration / time.Second),
		ChatMessages:    rep.ChatMessages,
		TabSwitches:     rep.ViolationCounts[model.ViolationTabSwitch],
		Pastes:          rep.ViolationCounts[model.ViolationPaste],
		VirtualDevices:  rep.ViolationCounts[model.ViolationVirtualAudioDevice],
	}
	if err := s.db.Create(ent).Error; err != nil {
		s.log.Warn("persist report failed",
			zap.String("session_id", rep.SessionID), zap.Error(err))
	}
	if err := s.Finish(rep.SessionID); err != nil {
		s.log.Warn("finish session failed",
			zap.String("session_id", rep.SessionID), zap.Error(err))
	}
}
