package handler

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/peercode/interview-service/internal/errs"
	"github.com/peercode/interview-service/internal/model"
	"github.com/peercode/interview-service/internal/room"
)

// fakeSessionService is an in-memory SessionServicer for handler tests.
type fakeSessionService struct {
	sessions map[string]*model.InterviewSession
	counts   map[string]map[model.ViolationType]int
	nextID   int
}

func newFakeSessionService() *fakeSessionService {
	return &fakeSessionService{
		sessions: make(map[string]*model.InterviewSession),
		counts:   make(map[string]map[model.ViolationType]int),
	}
}

func (f *fakeSessionService) Create(kind model.RoomKind) (*model.InterviewSession, error) {
	f.nextID++
	ent := &model.InterviewSession{
		ID:        fmt.Sprintf("sess-%d", f.nextID),
		Kind:      string(kind),
		Status:    string(model.SessionStatusWaiting),
		CreatedAt: time.Now(),
	}
	f.sessions[ent.ID] = ent
	return ent, nil
}

func (f *fakeSessionService) Get(sessionID string) (*model.InterviewSession, error) {
	ent, ok := f.sessions[sessionID]
	if !ok {
		return nil, errs.ErrSessionNotFound
	}
	return ent, nil
}

func (f *fakeSessionService) MarkActive(sessionID string) error { return nil }

func (f *fakeSessionService) Finish(sessionID string) error {
	ent, ok := f.sessions[sessionID]
	if !ok {
		return errs.ErrSessionNotFound
	}
	ent.Status = string(model.SessionStatusFinished)
	now := time.Now()
	ent.FinishedAt = &now
	return nil
}

func (f *fakeSessionService) ViolationCounts(sessionID string) (map[model.ViolationType]int, error) {
	return f.counts[sessionID], nil
}

func newSessionRouter(t *testing.T) (*gin.Engine, *fakeSessionService, *room.Registry) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	svc := newFakeSessionService()
	reg := room.NewRegistry(nil, nil, time.Hour, zap.NewNop())
	h := NewSessionHandler(svc, reg, "ws://localhost:8080")

	r := gin.New()
	r.POST("/sessions", h.CreateSession)
	r.GET("/sessions/:id", h.GetSession)
	r.DELETE("/sessions/:id", h.DeleteSession)
	return r, svc, reg
}

func TestCreateSession(t *testing.T) {
	r, _, _ := newSessionRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/sessions", strings.NewReader(`{"kind":"peer"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), `"session_id":"sess-1"`)
	assert.Contains(t, w.Body.String(), `"ws_url":"ws://localhost:8080/ws/session/sess-1"`)
	assert.Contains(t, w.Body.String(), `"status":"waiting"`)
}

func TestCreateSessionRejectsUnknownKind(t *testing.T) {
	r, _, _ := newSessionRouter(t)

	for _, body := range []string{`{"kind":"group"}`, `{}`, `not json`} {
		req := httptest.NewRequest(http.MethodPost, "/sessions", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code, "body %q", body)
	}
}

func TestGetSessionNotFound(t *testing.T) {
	r, _, _ := newSessionRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/sessions/missing", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetSessionUsesLiveRoomCounts(t *testing.T) {
	r, svc, reg := newSessionRouter(t)
	sess, err := svc.Create(model.RoomKindPeer)
	require.NoError(t, err)

	// Live room with one recorded violation; the DB-side counts stay empty.
	rm, err := reg.GetOrCreate(sess.ID, model.RoomKindPeer)
	require.NoError(t, err)
	_, err = rm.Join(model.Participant{UserID: "p1", Role: model.RolePeer}, func([]byte) {})
	require.NoError(t, err)
	require.NoError(t, rm.RecordViolation("p1", model.ViolationRecord{
		Type: model.ViolationPaste, Detail: "ctrl+v",
	}))

	req := httptest.NewRequest(http.MethodGet, "/sessions/"+sess.ID, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"paste":1`)
}

func TestGetSessionFallsBackToStoredCounts(t *testing.T) {
	r, svc, _ := newSessionRouter(t)
	sess, err := svc.Create(model.RoomKindPeer)
	require.NoError(t, err)
	svc.counts[sess.ID] = map[model.ViolationType]int{model.ViolationTabSwitch: 3}

	req := httptest.NewRequest(http.MethodGet, "/sessions/"+sess.ID, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"tab_switch":3`)
}

func TestDeleteSessionFinishesAndReleases(t *testing.T) {
	r, svc, reg := newSessionRouter(t)
	sess, err := svc.Create(model.RoomKindPeer)
	require.NoError(t, err)
	_, err = reg.GetOrCreate(sess.ID, model.RoomKindPeer)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodDelete, "/sessions/"+sess.ID, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, string(model.SessionStatusFinished), svc.sessions[sess.ID].Status)
	assert.Equal(t, 0, reg.Len())
}

func TestDeleteUnknownSession(t *testing.T) {
	r, _, _ := newSessionRouter(t)
	req := httptest.NewRequest(http.MethodDelete, "/sessions/missing", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
