// Package recording runs trip recordings: a per-session state machine, the
// sampler that feeds it device fixes, and the manager that owns live sessions.
package recording

import (
	"sync"
	"time"

	"backend-tripmark/internal/shared/geo"
)

type State string

const (
	StateIdle      State = "idle"
	StateRecording State = "recording"
	StatePaused    State = "paused"
	StateStopped   State = "stopped"
)

// Session is the recording state machine. Illegal transitions are ignored.
// A zero start time means the session was never started and reports no
// elapsed time in any state.
type Session struct {
	mu  sync.Mutex
	now func() time.Time

	state    State
	start    time.Time
	pausedAt time.Time
	end      time.Time
	path     geo.Path

	// epoch changes whenever sampling is interrupted so fixes requested
	// before a pause are not appended after the resume.
	epoch   uint64
	lastSeq uint64
}

func NewSession(now func() time.Time) *Session {
	if now == nil {
		now = time.Now
	}
	return &Session{now: now, state: StateIdle, path: geo.Path{}}
}

// Start begins recording from Idle and clears any previous path.
func (s *Session) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateIdle {
		return
	}
	s.state = StateRecording
	s.start = s.now()
	s.pausedAt = time.Time{}
	s.end = time.Time{}
	s.path = geo.Path{}
	s.lastSeq = 0
	s.epoch++
}

func (s *Session) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateRecording {
		return
	}
	s.state = StatePaused
	s.pausedAt = s.now()
	s.epoch++
}

// Resume shifts the start forward by the paused duration so elapsed time
// never includes a pause.
func (s *Session) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StatePaused {
		return
	}
	s.start = s.start.Add(s.now().Sub(s.pausedAt))
	s.pausedAt = time.Time{}
	s.state = StateRecording
}

// Stop ends the session from any state except Stopped. Stopping while paused
// freezes the elapsed time at the pause instant.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateStopped {
		return
	}
	if s.state != StatePaused {
		s.pausedAt = time.Time{}
	}
	s.state = StateStopped
	s.end = s.now()
	s.epoch++
}

func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateIdle
	s.start = time.Time{}
	s.pausedAt = time.Time{}
	s.end = time.Time{}
	s.path = geo.Path{}
	s.lastSeq = 0
	s.epoch++
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsRecording reports a session in progress, paused or not.
func (s *Session) IsRecording() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateRecording || s.state == StatePaused
}

func (s *Session) IsPaused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StatePaused
}

func (s *Session) Elapsed() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.elapsedLocked()
}

func (s *Session) elapsedLocked() time.Duration {
	if s.start.IsZero() {
		return 0
	}
	var cut time.Time
	switch s.state {
	case StateRecording:
		cut = s.now()
	case StatePaused:
		cut = s.pausedAt
	case StateStopped:
		cut = s.end
		if !s.pausedAt.IsZero() {
			cut = s.pausedAt
		}
	default:
		return 0
	}
	if d := cut.Sub(s.start); d > 0 {
		return d
	}
	return 0
}

// Path returns a copy of the points recorded so far.
func (s *Session) Path() geo.Path {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append(geo.Path{}, s.path...)
}

func (s *Session) pointCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.path)
}

// ticket returns the current sampling epoch, or false when the session is
// not recording.
func (s *Session) ticket() (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch, s.state == StateRecording
}

// appendSample records p unless the session left Recording since the ticket
// was taken or a later sample was already appended.
func (s *Session) appendSample(epoch, seq uint64, p geo.Point) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateRecording || epoch != s.epoch || seq <= s.lastSeq {
		return false
	}
	s.path = append(s.path, p)
	s.lastSeq = seq
	return true
}

// Snapshot is a point-in-time view of a session for callers outside the
// package.
type Snapshot struct {
	ID         string   `json:"id"`
	OwnerID    string   `json:"owner_id"`
	Title      string   `json:"title"`
	State      State    `json:"state"`
	ElapsedMs  int64    `json:"elapsed_ms"`
	PointCount int      `json:"point_count"`
	DistanceM  float64  `json:"distance_m"`
	Path       geo.Path `json:"path"`
}

func (s *Session) snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	path := append(geo.Path{}, s.path...)
	return Snapshot{
		State:      s.state,
		ElapsedMs:  s.elapsedLocked().Milliseconds(),
		PointCount: len(path),
		DistanceM:  path.LengthM(),
		Path:       path,
	}
}
