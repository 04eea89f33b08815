// Package ui draws progress feedback for long pipeline stages on a terminal.
package ui

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

var frames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// Spinner animates a status line while a stage runs. When not animated it
// prints the message once, which keeps logs and pipes readable.
type Spinner struct {
	w       io.Writer
	animate bool
	tick    time.Duration

	mu      sync.Mutex
	message string
	active  bool
	done    chan struct{}
	stopped chan struct{}
}

// NewSpinner creates a spinner writing to w.
func NewSpinner(w io.Writer, message string, animate bool) *Spinner {
	return &Spinner{
		w:       w,
		animate: animate,
		tick:    100 * time.Millisecond,
		message: message,
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// Start begins spinning.
func (s *Spinner) Start() {
	s.mu.Lock()
	if s.active {
		s.mu.Unlock()
		return
	}
	s.active = true
	msg := s.message
	s.mu.Unlock()

	if !s.animate {
		fmt.Fprintf(s.w, "%s...\n", msg)
		close(s.stopped)
		return
	}

	go func() {
		defer close(s.stopped)
		ticker := time.NewTicker(s.tick)
		defer ticker.Stop()

		for i := 0; ; i = (i + 1) % len(frames) {
			select {
			case <-s.done:
				fmt.Fprint(s.w, "\r\033[K")
				return
			case <-ticker.C:
				s.mu.Lock()
				fmt.Fprintf(s.w, "\r%s %s", frames[i], s.message)
				s.mu.Unlock()
			}
		}
	}()
}

// Stop halts the spinner and prints final when it is not empty.
func (s *Spinner) Stop(final string) {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return
	}
	s.active = false
	s.mu.Unlock()

	close(s.done)
	<-s.stopped

	if final != "" {
		fmt.Fprintln(s.w, final)
	}
}

// Update changes the message while the spinner runs.
func (s *Spinner) Update(message string) {
	s.mu.Lock()
	s.message = message
	s.mu.Unlock()
}

// IsTerminal reports whether f is a character device.
func IsTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

// Run shows message while fn runs and reports its outcome.
func Run(w io.Writer, message string, animate bool, fn func() error) error {
	s := NewSpinner(w, message, animate)
	s.Start()
	err := fn()
	if err != nil {
		s.Stop("✗ " + message + ": " + err.Error())
	} else {
		s.Stop("✓ " + message)
	}
	return err
}
