// Package spinning handles interruptions (Ctrl+C) and shows a spinning symbol while a cycle's tasks run.
package spinning

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"golang.org/x/term"
	"k8s.io/klog/v2"
)

type Spinning struct {
	wg     sync.WaitGroup
	cancel func()
}

var (
	ThemeAscii = []rune("|/-\\")
	ThemeMoon  = []rune("🌑🌒🌓🌔🌕🌖🌗🌘")
	ThemeClock = []rune("🕐🕑🕒🕓🕔🕕🕖🕗🕘🕙🕚🕛")

	// Theme defaults to ThemeClock, but it can be set to anything else.
	Theme = ThemeClock
)

// SafeInterrupt will capture SigInt (Ctrl+C) and SigTerm and call the provided onInterrupt.
// If the program haven't exited after gracePeriod, it will call Reset to reset the terminal
// and exit.
//
// A running cycle is given gracePeriod to join its tasks after onInterrupt cancels it.
func SafeInterrupt(onInterrupt func(), gracePeriod time.Duration) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-sigChan
		fmt.Println()
		klog.Errorf("Got interrupted (signal %q), shutting down... (%s)", s, gracePeriod)
		if onInterrupt != nil {
			go onInterrupt()
		}

		// Wait for gracePeriod before exiting.
		time.Sleep(gracePeriod)
		Reset()
		klog.Fatalf("Graceful shutting down %s period expired, exiting.", gracePeriod)
	}()
}

// Reset terminal: make cursor visible, restore default terminal colors.
func Reset() {
	fmt.Print("\033[?25h\033[39;49;0m\n") // Restore cursor and colors.
}

// Enabled returns whether stdout is a terminal, where spinning makes sense.
func Enabled() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// New starts a spinning display that runs on a separate GoRoutine.
// It stops when Spinning.Done is called, or when ctx is done.
//
// If stdout is not a terminal it displays nothing.
func New(ctx context.Context) *Spinning {
	s := &Spinning{}
	if !Enabled() {
		return s
	}
	ctx, s.cancel = context.WithCancel(ctx)
	theme := Theme
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()
		fmt.Print("\033[?25l")       // Hide cursor.
		defer fmt.Print("\033[?25h") // Restore cursor.

		fmt.Print("  ")
		for idx := 0; ; idx = (idx + 1) % len(theme) {
			fmt.Printf("\b\b%c", theme[idx])
			select {
			case <-ctx.Done():
				fmt.Print("\b\b")
				return
			case <-ticker.C:
				// continue
			}
		}
	}()
	return s
}

// Done stops the spinning display and waits for it to clean up.
func (s *Spinning) Done() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.wg.Wait()
}
