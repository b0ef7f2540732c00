package playback

import (
	"testing"
)

type fakePlayer struct {
	playCalls []string
	stopCalls int
	playErr   error
	onEnd     func()
}

func (p *fakePlayer) Play(media string, onEnd func()) error {
	if p.playErr != nil {
		return p.playErr
	}
	p.playCalls = append(p.playCalls, media)
	p.onEnd = onEnd
	return nil
}

func (p *fakePlayer) Stop() {
	p.stopCalls++
}

func TestToggleStartsAndStops(t *testing.T) {
	player := &fakePlayer{}
	a := NewArbiter(player)
	narration := NarrationSource("l1")

	playing, err := a.Toggle(narration, "/cache/l1.mp3")
	if err != nil {
		t.Fatalf("Toggle: %v", err)
	}
	if !playing {
		t.Error("Toggle = false, want playing")
	}
	if a.Current() != narration {
		t.Errorf("Current() = %q", a.Current())
	}

	playing, err = a.Toggle(narration, "/cache/l1.mp3")
	if err != nil {
		t.Fatalf("Toggle: %v", err)
	}
	if playing {
		t.Error("second Toggle = true, want stopped")
	}
	if a.Current() != "" {
		t.Errorf("Current() = %q, want empty", a.Current())
	}
	if player.stopCalls != 1 {
		t.Errorf("stopCalls = %d, want 1", player.stopCalls)
	}
}

func TestToggleSilencesPreviousSource(t *testing.T) {
	player := &fakePlayer{}
	a := NewArbiter(player)
	narration := NarrationSource("l1")
	answer := AnswerSource("l1", 0)

	if _, err := a.Toggle(narration, "/cache/l1.mp3"); err != nil {
		t.Fatal(err)
	}
	playing, err := a.Toggle(answer, "http://cdn/ans.mp3")
	if err != nil {
		t.Fatalf("Toggle: %v", err)
	}
	if !playing {
		t.Error("answer did not start")
	}
	if player.stopCalls != 1 {
		t.Errorf("stopCalls = %d, want previous source stopped once", player.stopCalls)
	}
	if a.Current() != answer {
		t.Errorf("Current() = %q, want answer source", a.Current())
	}
}

func TestEndedClearsOnlyMatchingSource(t *testing.T) {
	player := &fakePlayer{}
	a := NewArbiter(player)
	narration := NarrationSource("l1")
	answer := AnswerSource("l1", 0)

	if _, err := a.Toggle(narration, "/cache/l1.mp3"); err != nil {
		t.Fatal(err)
	}
	if _, err := a.Toggle(answer, "http://cdn/ans.mp3"); err != nil {
		t.Fatal(err)
	}

	// The narration's end notification arrives after the switch.
	a.Ended(narration)
	if a.Current() != answer {
		t.Errorf("stale end notification cleared the slot: Current() = %q", a.Current())
	}

	a.Ended(answer)
	if a.Current() != "" {
		t.Errorf("Current() = %q after end, want empty", a.Current())
	}
}

func TestNaturalEndFreesSlot(t *testing.T) {
	player := &fakePlayer{}
	a := NewArbiter(player)
	narration := NarrationSource("l1")

	if _, err := a.Toggle(narration, "/cache/l1.mp3"); err != nil {
		t.Fatal(err)
	}
	player.onEnd()

	if a.Current() != "" {
		t.Errorf("Current() = %q, want empty after natural end", a.Current())
	}
	// Toggling again starts fresh rather than stopping.
	playing, err := a.Toggle(narration, "/cache/l1.mp3")
	if err != nil {
		t.Fatal(err)
	}
	if !playing {
		t.Error("Toggle after natural end = false, want playing")
	}
	if len(player.playCalls) != 2 {
		t.Errorf("playCalls = %d, want 2", len(player.playCalls))
	}
}

func TestStopIsIdempotent(t *testing.T) {
	player := &fakePlayer{}
	a := NewArbiter(player)

	a.Stop()
	if player.stopCalls != 0 {
		t.Error("Stop on empty slot reached the player")
	}

	if _, err := a.Toggle(NarrationSource("l1"), "/cache/l1.mp3"); err != nil {
		t.Fatal(err)
	}
	a.Stop()
	a.Stop()
	if player.stopCalls != 1 {
		t.Errorf("stopCalls = %d, want 1", player.stopCalls)
	}
}
