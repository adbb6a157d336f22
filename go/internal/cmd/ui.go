package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/term"

	"github.com/mcdev12/typerace/go/internal/race/engine"
)

const (
	ansiClear = "\x1b[2J\x1b[H"
	ansiGreen = "\x1b[32m"
	ansiRed   = "\x1b[31m"
	ansiDim   = "\x1b[2m"
	ansiReset = "\x1b[0m"

	redrawInterval = 100 * time.Millisecond

	keyCtrlC     = 0x03
	keyBackspace = 0x7f
	keyDelete    = 0x08
)

// ui is the terminal presentation glue: it captures keystrokes, keeps the
// typed buffer (truncated at the reference length), feeds the engine, and
// renders both participants' snapshots.
type ui struct {
	eng    *engine.Engine
	cancel context.CancelFunc
	typed  []rune
}

func newUI(eng *engine.Engine, cancel context.CancelFunc) *ui {
	return &ui{eng: eng, cancel: cancel}
}

// race runs the input/render loop until the match completes, the engine
// fails, or the player bails out with Ctrl-C.
func (u *ui) race(ctx context.Context, errCh <-chan error) error {
	fd := int(os.Stdin.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return fmt.Errorf("enter raw mode: %w", err)
	}
	defer term.Restore(fd, oldState)

	keys := make(chan byte, 64)
	go readKeys(keys)

	redraw := time.NewTicker(redrawInterval)
	defer redraw.Stop()

	refLen := len([]rune(u.eng.Snapshot().RaceText))
	u.render()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errCh:
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			u.render()
			return nil
		case <-u.eng.Done():
			u.render()
			return nil
		case b, ok := <-keys:
			if !ok {
				keys = nil
				continue
			}
			switch {
			case b == keyCtrlC:
				u.cancel()
				return nil
			case b == keyBackspace || b == keyDelete:
				if len(u.typed) > 0 {
					u.typed = u.typed[:len(u.typed)-1]
				}
			case b >= 0x20 && b < 0x7f:
				if len(u.typed) < refLen {
					u.typed = append(u.typed, rune(b))
				}
			default:
				continue
			}
			u.eng.UpdateTyped(string(u.typed))
			u.render()
		case <-redraw.C:
			u.render()
		}
	}
}

// readKeys pumps stdin bytes; it exits when stdin closes or the process
// ends.
func readKeys(keys chan<- byte) {
	buf := make([]byte, 1)
	for {
		n, err := os.Stdin.Read(buf)
		if err != nil {
			close(keys)
			return
		}
		if n > 0 {
			keys <- buf[0]
		}
	}
}

func (u *ui) render() {
	snap := u.eng.Snapshot()
	ref := []rune(snap.RaceText)

	var b strings.Builder
	b.WriteString(ansiClear)
	b.WriteString("Type the following text:\r\n\r\n  ")

	for i, r := range u.typed {
		if i < len(ref) && r == ref[i] {
			b.WriteString(ansiGreen)
		} else {
			b.WriteString(ansiRed)
		}
		b.WriteRune(r)
		b.WriteString(ansiReset)
	}
	if len(u.typed) < len(ref) {
		b.WriteString(ansiDim)
		b.WriteString(string(ref[len(u.typed):]))
		b.WriteString(ansiReset)
	}

	b.WriteString("\r\n\r\n")
	b.WriteString(strings.Repeat("-", 60))
	b.WriteString("\r\n")
	fmt.Fprintf(&b, "%s (You) -> WPM: %.0f | Progress: %.0f%% | Accuracy: %.1f%%\r\n",
		snap.Local.Name, snap.Local.WPM, snap.Local.Progress, snap.Local.Accuracy)
	fmt.Fprintf(&b, "%s -> WPM: %.0f | Progress: %.0f%% | Accuracy: %.1f%%\r\n",
		snap.Remote.Name, snap.Remote.WPM, snap.Remote.Progress, snap.Remote.Accuracy)

	switch snap.Phase {
	case engine.PhaseLocalFinishedWaiting:
		b.WriteString("\r\nDone! Waiting for your opponent to finish...\r\n")
	case engine.PhaseMatchComplete:
		if snap.Local.Winner {
			b.WriteString("\r\nYou are the winner!\r\n")
		} else {
			b.WriteString("\r\nYou lose! Better luck next time.\r\n")
		}
	}

	os.Stdout.WriteString(b.String())
}
