// Package session implements the mutable per-victim leak state (spec §3,
// §4.4) and its wake primitive. The original tool's set-then-clear event
// is race-prone under true parallelism: a leak arriving between set and
// clear, before a waiter observes it, is lost. This rendition instead
// pairs a monotonic step counter with a broadcast channel that is closed
// (never reused) on every advance, so a waiter reading the channel after
// the close still observes it as ready — no wakeup can be missed
// regardless of scheduling (spec §9).
package session

import (
	"sync"
	"time"

	"github.com/meme-lord/fontleak/internal/font"
)

// UnknownGlyph is the sentinel character a reconstruction stores for an
// out-of-alphabet probe index (spec §9 Open Questions).
const UnknownGlyph = '\U0001F5C5'

// Browser mirrors cssrenderer.Browser without importing it, keeping
// session free of a dependency on the rendering layer.
type Browser string

const (
	BrowserChrome  Browser = "chrome"
	BrowserFirefox Browser = "firefox"
	BrowserSafari  Browser = "safari"
	BrowserAll     Browser = "all"
)

// Setup holds the immutable parameters a session is created with.
type Setup struct {
	Alphabet string
	Selector string
	Parent   string
	Attr     string
	Strip    bool
	Timeout  time.Duration
	Length   int
	Prefix   string
}

// Session is the mutable per-victim leak record described in spec §3.
// Every field set at construction (ID, Setup, StepMap, Font, Browser) is
// immutable thereafter; step and reconstruction are guarded by mu.
type Session struct {
	ID      string
	Setup   Setup
	StepMap []rune
	Font    *font.Artifact
	Browser Browser

	mu             sync.RWMutex
	step           int
	reconstruction []rune
	lastUpdate     time.Time
	notifyCh       chan struct{}
}

// New constructs a session with an empty reconstruction, ready to receive
// probes. id, setup, stepMap, artifact and browser become immutable.
func New(id string, setup Setup, stepMap []rune, artifact *font.Artifact, browser Browser) *Session {
	return &Session{
		ID:         id,
		Setup:      setup,
		StepMap:    stepMap,
		Font:       artifact,
		Browser:    browser,
		lastUpdate: time.Now(),
		notifyCh:   make(chan struct{}),
	}
}

// Step returns the current number of observed characters.
func (s *Session) Step() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.step
}

// Reconstruction returns a snapshot of the observed prefix of the secret.
func (s *Session) Reconstruction() []rune {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]rune, len(s.reconstruction))
	copy(out, s.reconstruction)
	return out
}

// LastUpdate returns the time of the most recent RecordLeak call, or the
// session's creation time if none has occurred yet.
func (s *Session) LastUpdate() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastUpdate
}

// DecodeChar maps a probe's alphabet index to the character it represents,
// returning UnknownGlyph for the sentinel index or any out-of-range value.
func DecodeChar(alphabet string, idx int) rune {
	if idx < 0 || idx >= len(alphabet) {
		return UnknownGlyph
	}
	return rune(alphabet[idx])
}

// RecordLeak applies one probe observation per spec §4.5 point 2-3: a nil
// stepOverride, or one at or past the end of the reconstruction, appends
// and advances step; a negative stepOverride changes nothing (waiters are
// still notified); otherwise the existing character at that position is overwritten,
// except the idempotence rule suppresses an overwrite equal to the
// preceding character when it differs from the one already recorded there
// (a known-bad double-fire from animation-driven browsers). When
// stepOverride is 0, always overwrite — step 0 has no preceding character
// to compare against (spec §9 Open Questions).
func (s *Session) RecordLeak(decoded rune, stepOverride *int) {
	s.mu.Lock()
	defer func() {
		s.lastUpdate = time.Now()
		old := s.notifyCh
		s.notifyCh = make(chan struct{})
		close(old)
		s.mu.Unlock()
	}()

	if stepOverride == nil || *stepOverride >= len(s.reconstruction) {
		s.reconstruction = append(s.reconstruction, decoded)
		s.step = len(s.reconstruction)
		return
	}

	step := *stepOverride
	if step < 0 {
		return
	}
	if step == 0 {
		s.reconstruction[0] = decoded
		return
	}
	prev := s.reconstruction[step-1]
	if decoded == prev && decoded != s.reconstruction[step] {
		return
	}
	s.reconstruction[step] = decoded
}

// AwaitAdvance blocks until session.step exceeds knownStep, timeout
// elapses, or done is closed, returning true only in the first case. The
// snapshot-then-select loop never misses a wakeup: the channel captured
// under the read lock is the exact one RecordLeak closes, and a read from
// an already-closed channel always succeeds immediately.
func (s *Session) AwaitAdvance(knownStep int, timeout time.Duration, done <-chan struct{}) bool {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		s.mu.RLock()
		step, ch := s.step, s.notifyCh
		s.mu.RUnlock()

		if step > knownStep {
			return true
		}

		select {
		case <-ch:
			continue
		case <-deadline.C:
			return false
		case <-done:
			return false
		}
	}
}
