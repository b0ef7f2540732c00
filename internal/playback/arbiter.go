// Package playback enforces the single-slot audio rule: at most one
// source plays at a time, and starting any source silences whatever was
// playing before it.
package playback

import (
	"fmt"
	"log/slog"
	"sync"
)

// Source identifies one playable audio stream.
type Source string

// NarrationSource is the lecture narration slot for a lecture.
func NarrationSource(lectureID string) Source {
	return Source("narration:" + lectureID)
}

// AnswerSource is the spoken-answer slot for one Q&A turn.
func AnswerSource(lectureID string, turn int) Source {
	return Source(fmt.Sprintf("answer:%s:%d", lectureID, turn))
}

// Player starts and stops actual audio output. Play must not block for
// the duration of playback; onEnd fires when the media finishes on its
// own, not when Stop cuts it off.
type Player interface {
	Play(media string, onEnd func()) error
	Stop()
}

// Arbiter owns the playback slot. All methods are safe for concurrent
// use.
type Arbiter struct {
	player Player

	mu      sync.Mutex
	current Source
}

func NewArbiter(player Player) *Arbiter {
	return &Arbiter{player: player}
}

// Toggle flips playback for the given source. If the source is already
// playing it stops, leaving the slot empty. Otherwise whatever holds the
// slot is stopped first and the source starts. Returns true when the
// source is playing after the call.
func (a *Arbiter) Toggle(source Source, media string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.current == source {
		a.player.Stop()
		a.current = ""
		return false, nil
	}

	if a.current != "" {
		a.player.Stop()
		a.current = ""
	}

	if err := a.player.Play(media, func() { a.Ended(source) }); err != nil {
		return false, fmt.Errorf("starting playback: %w", err)
	}
	a.current = source
	slog.Debug("playback started", "source", string(source))
	return true, nil
}

// Ended clears the slot when the given source finished on its own. A
// stale notification from a source that no longer holds the slot is
// ignored, so a finish racing a switch cannot silence the new source.
func (a *Arbiter) Ended(source Source) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current == source {
		a.current = ""
	}
}

// Stop silences the slot regardless of what holds it.
func (a *Arbiter) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current != "" {
		a.player.Stop()
		a.current = ""
	}
}

// Current returns the source holding the slot, or "" when silent.
func (a *Arbiter) Current() Source {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}
