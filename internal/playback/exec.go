package playback

import (
	"context"
	"log/slog"
	"os/exec"
	"runtime"
	"sync"
)

// DefaultCommand returns the audio player binary to use when none is
// configured.
func DefaultCommand() string {
	if runtime.GOOS == "darwin" {
		return "afplay"
	}
	return "mpv"
}

// ExecPlayer plays audio by spawning an external player process. Stop
// kills the process; a process that exits on its own reports the end of
// the media.
type ExecPlayer struct {
	command string
	args    []string

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewExecPlayer creates a player around the given binary and fixed
// leading arguments. The media path or URL is appended as the final
// argument of each invocation.
func NewExecPlayer(command string, args ...string) *ExecPlayer {
	return &ExecPlayer{command: command, args: args}
}

// Play starts the player process. onEnd is called from a background
// goroutine when the process exits without having been stopped.
func (p *ExecPlayer) Play(media string, onEnd func()) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, p.command, append(append([]string{}, p.args...), media)...)
	if err := cmd.Start(); err != nil {
		cancel()
		return err
	}
	p.cancel = cancel

	go func() {
		err := cmd.Wait()
		stopped := ctx.Err() != nil
		if err != nil && !stopped {
			slog.Warn("player process failed", "command", p.command, "error", err)
		}
		p.mu.Lock()
		if p.cancel != nil && ctx.Err() == nil {
			p.cancel = nil
		}
		p.mu.Unlock()
		if !stopped && onEnd != nil {
			onEnd()
		}
	}()
	return nil
}

// Stop kills the current player process, if any.
func (p *ExecPlayer) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
}
