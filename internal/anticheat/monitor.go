// Package anticheat classifies raw client-side sensor signals (visibility
// transitions, paste attempts, audio device enumerations) into typed
// integrity violations with per-session running counters.
package anticheat

import (
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/peercode/interview-service/internal/model"
)

// Labels of known virtual/loopback audio tools, matched case-insensitively
// as substrings of input device labels.
var virtualAudioKeywords = []string{
	"vb-audio",
	"vb-cable",
	"voicemeeter",
	"blackhole",
	"soundflower",
	"loopback",
	"virtual audio",
	"cable output",
}

// AudioDevice is one enumerated audio input.
type AudioDevice struct {
	ID    string
	Label string
}

// DeviceLister enumerates audio inputs. An error means enumeration was not
// possible (e.g. permission denied) and is swallowed: no violation, no error.
type DeviceLister interface {
	AudioInputs() ([]AudioDevice, error)
}

// Sender delivers violation events to the room coordinator when the channel
// is up. When it is down the counters still advance locally; there is no
// backlog replay on reconnect, only the latest counts travel with the next
// live violation.
type Sender interface {
	Connected() bool
	Send(event string, payload any)
}

// Monitor runs the three violation detectors for one session.
type Monitor struct {
	mu        sync.Mutex
	sessionID string
	active    bool
	counts    map[model.ViolationType]int

	sender       Sender
	devices      DeviceLister
	scanInterval time.Duration
	stopScan     chan struct{}

	observers map[int]func(model.ViolationRecord)
	nextObs   int

	log *zap.Logger
}

// NewMonitor creates a monitor. devices may be nil when the host platform
// cannot enumerate audio inputs; the virtual-device detector is then off.
func NewMonitor(sender Sender, devices DeviceLister, scanInterval time.Duration, log *zap.Logger) *Monitor {
	return &Monitor{
		counts:       make(map[model.ViolationType]int),
		sender:       sender,
		devices:      devices,
		scanInterval: scanInterval,
		observers:    make(map[int]func(model.ViolationRecord)),
		log:          log,
	}
}

// Start activates the detectors for a session: an immediate audio device
// scan, then one scan per interval until Stop.
func (m *Monitor) Start(sessionID string) {
	m.mu.Lock()
	if m.active {
		m.mu.Unlock()
		return
	}
	m.active = true
	m.sessionID = sessionID
	m.stopScan = make(chan struct{})
	stop := m.stopScan
	m.mu.Unlock()

	m.scanAudioInputs()
	if m.devices != nil && m.scanInterval > 0 {
		go func() {
			ticker := time.NewTicker(m.scanInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					m.scanAudioInputs()
				case <-stop:
					return
				}
			}
		}()
	}
}

// Stop deactivates the detectors. Counters keep their values.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.active {
		return
	}
	m.active = false
	close(m.stopScan)
	m.stopScan = nil
}

// Reset zeroes all counters. Start-of-session only, never mid-session.
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts = make(map[model.ViolationType]int)
}

// HandleVisibilityChange fires a tab-switch violation on every transition to
// hidden. Not debounced: each transition is a distinct violation, so the
// count reflects repeated switching.
func (m *Monitor) HandleVisibilityChange(hidden bool) {
	if !hidden {
		return
	}
	m.record(model.ViolationTabSwitch, "page hidden")
}

// HandleFocusLoss fires a tab-switch violation on a window blur.
func (m *Monitor) HandleFocusLoss() {
	m.record(model.ViolationTabSwitch, "window blur")
}

// HandlePaste fires one paste violation per attempt. Suppressing the paste
// content is the input layer's job; the classifier only records it.
func (m *Monitor) HandlePaste(detail string) {
	if detail == "" {
		detail = "paste attempt blocked"
	}
	m.record(model.ViolationPaste, detail)
}

// CheckAudioInputs classifies an explicit device list: one violation per
// matching device per check.
func (m *Monitor) CheckAudioInputs(devices []AudioDevice) {
	for _, d := range devices {
		label := strings.ToLower(d.Label)
		for _, kw := range virtualAudioKeywords {
			if strings.Contains(label, kw) {
				m.record(model.ViolationVirtualAudioDevice, d.Label)
				break
			}
		}
	}
}

// OnViolation registers an observer invoked synchronously on every recorded
// violation; it returns the unregister func.
func (m *Monitor) OnViolation(fn func(model.ViolationRecord)) func() {
	m.mu.Lock()
	id := m.nextObs
	m.nextObs++
	m.observers[id] = fn
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		delete(m.observers, id)
		m.mu.Unlock()
	}
}

// Counts returns a copy of the per-type counters.
func (m *Monitor) Counts() map[model.ViolationType]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[model.ViolationType]int, len(m.counts))
	for k, v := range m.counts {
		out[k] = v
	}
	return out
}

func (m *Monitor) scanAudioInputs() {
	if m.devices == nil {
		return
	}
	m.mu.Lock()
	active := m.active
	m.mu.Unlock()
	if !active {
		return
	}
	devices, err := m.devices.AudioInputs()
	if err != nil {
		return // enumeration failure (permission denied) is not a violation
	}
	m.CheckAudioInputs(devices)
}

// record increments the counter and, if the channel is connected, sends the
// violation with the latest counts. Disconnected sends are dropped, not
// queued; the counter still advances.
func (m *Monitor) record(typ model.ViolationType, detail string) {
	m.mu.Lock()
	if !m.active {
		m.mu.Unlock()
		return
	}
	m.counts[typ]++
	rec := model.ViolationRecord{
		Type:      typ,
		Detail:    detail,
		SessionID: m.sessionID,
		Timestamp: time.Now(),
		Counts:    make(map[model.ViolationType]int, len(m.counts)),
	}
	for k, v := range m.counts {
		rec.Counts[k] = v
	}
	observers := make([]func(model.ViolationRecord), 0, len(m.observers))
	for _, fn := range m.observers {
		observers = append(observers, fn)
	}
	m.mu.Unlock()

	for _, fn := range observers {
		fn(rec)
	}
	if m.sender != nil && m.sender.Connected() {
		m.sender.Send(model.EventViolation, rec)
	}
	m.log.Debug("violation",
		zap.String("type", string(typ)), zap.String("detail", detail))
}
