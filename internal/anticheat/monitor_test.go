package anticheat

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/peercode/interview-service/internal/model"
)

type fakeSender struct {
	mu        sync.Mutex
	connected bool
	sent      []model.ViolationRecord
}

func (s *fakeSender) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *fakeSender) Send(event string, payload any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := payload.(model.ViolationRecord); ok {
		s.sent = append(s.sent, rec)
	}
}

func (s *fakeSender) setConnected(v bool) {
	s.mu.Lock()
	s.connected = v
	s.mu.Unlock()
}

func (s *fakeSender) records() []model.ViolationRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.ViolationRecord(nil), s.sent...)
}

type fakeLister struct {
	mu      sync.Mutex
	devices []AudioDevice
	err     error
	calls   int
}

func (l *fakeLister) AudioInputs() ([]AudioDevice, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	return l.devices, l.err
}

func (l *fakeLister) callCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

func newMonitor(t *testing.T, sender Sender, devices DeviceLister, interval time.Duration) *Monitor {
	t.Helper()
	m := NewMonitor(sender, devices, interval, zap.NewNop())
	t.Cleanup(m.Stop)
	return m
}

func TestEveryHiddenTransitionCounts(t *testing.T) {
	// Scenario: the candidate switches tabs twice in quick succession. Two
	// transitions to hidden means two violations; there is no debounce window.
	sender := &fakeSender{connected: true}
	m := newMonitor(t, sender, nil, 0)
	m.Start("s1")

	m.HandleVisibilityChange(true)
	m.HandleVisibilityChange(false)
	m.HandleVisibilityChange(true)

	assert.Equal(t, 2, m.Counts()[model.ViolationTabSwitch])
	recs := sender.records()
	require.Len(t, recs, 2)
	assert.Equal(t, "s1", recs[0].SessionID)
	assert.Equal(t, model.ViolationTabSwitch, recs[0].Type)
	assert.Equal(t, 1, recs[0].Counts[model.ViolationTabSwitch])
	assert.Equal(t, 2, recs[1].Counts[model.ViolationTabSwitch])
}

func TestVisibleTransitionIgnored(t *testing.T) {
	sender := &fakeSender{connected: true}
	m := newMonitor(t, sender, nil, 0)
	m.Start("s1")

	m.HandleVisibilityChange(false)
	assert.Empty(t, m.Counts())
	assert.Empty(t, sender.records())
}

func TestPasteAndFocusLoss(t *testing.T) {
	sender := &fakeSender{connected: true}
	m := newMonitor(t, sender, nil, 0)
	m.Start("s1")

	m.HandlePaste("")
	m.HandlePaste("ctrl+v in editor")
	m.HandleFocusLoss()

	counts := m.Counts()
	assert.Equal(t, 2, counts[model.ViolationPaste])
	assert.Equal(t, 1, counts[model.ViolationTabSwitch])

	recs := sender.records()
	require.Len(t, recs, 3)
	assert.Equal(t, "paste attempt blocked", recs[0].Detail)
	assert.Equal(t, "ctrl+v in editor", recs[1].Detail)
	assert.Equal(t, "window blur", recs[2].Detail)
}

func TestCountersAdvanceWhileDisconnected(t *testing.T) {
	sender := &fakeSender{connected: false}
	m := newMonitor(t, sender, nil, 0)
	m.Start("s1")

	m.HandleVisibilityChange(true)
	m.HandlePaste("")

	// Nothing was sent, but the counters did not stall.
	assert.Empty(t, sender.records())
	assert.Equal(t, 1, m.Counts()[model.ViolationTabSwitch])
	assert.Equal(t, 1, m.Counts()[model.ViolationPaste])

	// After reconnect the next live violation carries the full counts.
	sender.setConnected(true)
	m.HandleVisibilityChange(true)
	recs := sender.records()
	require.Len(t, recs, 1)
	assert.Equal(t, 2, recs[0].Counts[model.ViolationTabSwitch])
	assert.Equal(t, 1, recs[0].Counts[model.ViolationPaste])
}

func TestVirtualAudioDeviceDetected(t *testing.T) {
	sender := &fakeSender{connected: true}
	lister := &fakeLister{devices: []AudioDevice{
		{ID: "1", Label: "Built-in Microphone"},
		{ID: "2", Label: "VB-Audio Virtual Cable"},
		{ID: "3", Label: "BlackHole 2ch"},
	}}
	m := newMonitor(t, sender, lister, time.Hour)

	// Start performs an immediate scan before the first tick.
	m.Start("s1")

	assert.Equal(t, 2, m.Counts()[model.ViolationVirtualAudioDevice])
	recs := sender.records()
	require.Len(t, recs, 2)
	assert.Equal(t, "VB-Audio Virtual Cable", recs[0].Detail)
	assert.Equal(t, "BlackHole 2ch", recs[1].Detail)
}

func TestPeriodicScanRepeats(t *testing.T) {
	lister := &fakeLister{devices: []AudioDevice{{ID: "1", Label: "Voicemeeter Output"}}}
	m := newMonitor(t, &fakeSender{}, lister, 10*time.Millisecond)
	m.Start("s1")

	require.Eventually(t, func() bool { return lister.callCount() >= 3 }, time.Second, 5*time.Millisecond)
	m.Stop()

	// One violation per matching device per scan.
	assert.GreaterOrEqual(t, m.Counts()[model.ViolationVirtualAudioDevice], 3)
}

func TestEnumerationFailureIsNotAViolation(t *testing.T) {
	sender := &fakeSender{connected: true}
	lister := &fakeLister{err: errors.New("permission denied")}
	m := newMonitor(t, sender, lister, time.Hour)
	m.Start("s1")

	assert.Empty(t, m.Counts())
	assert.Empty(t, sender.records())
}

func TestInactiveMonitorRecordsNothing(t *testing.T) {
	sender := &fakeSender{connected: true}
	m := newMonitor(t, sender, nil, 0)

	// Never started.
	m.HandleVisibilityChange(true)
	assert.Empty(t, m.Counts())

	m.Start("s1")
	m.HandleVisibilityChange(true)
	m.Stop()
	m.HandleVisibilityChange(true)

	// Stop freezes the counters but does not clear them.
	assert.Equal(t, 1, m.Counts()[model.ViolationTabSwitch])
	assert.Len(t, sender.records(), 1)
}

func TestResetZeroesCounters(t *testing.T) {
	m := newMonitor(t, &fakeSender{}, nil, 0)
	m.Start("s1")
	m.HandleVisibilityChange(true)
	require.Equal(t, 1, m.Counts()[model.ViolationTabSwitch])

	m.Reset()
	assert.Empty(t, m.Counts())
}

func TestObserverRegistration(t *testing.T) {
	m := newMonitor(t, &fakeSender{}, nil, 0)
	m.Start("s1")

	var seen []model.ViolationType
	unregister := m.OnViolation(func(rec model.ViolationRecord) {
		seen = append(seen, rec.Type)
	})

	m.HandlePaste("")
	require.Equal(t, []model.ViolationType{model.ViolationPaste}, seen)

	unregister()
	m.HandlePaste("")
	assert.Len(t, seen, 1)
}
