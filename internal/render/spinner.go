// Copyright (c) 2025 iampl
// Licensed under the MIT License. See LICENSE file in the project root for details.

package render

import (
	"fmt"
	"sync"
	"time"

	"atomicgo.dev/cursor"
	"github.com/pterm/pterm"
)

// spinnerFrames match the braille spinner used by docker-style CLIs.
var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// Spinner shows an elapsed-time line while a statement runs without echo. The area
// is removed when stopped.
type Spinner struct {
	text    string
	area    *pterm.AreaPrinter
	stop    chan struct{}
	wg      sync.WaitGroup
	started time.Time
	once    sync.Once
}

// StartSpinner hides the cursor and starts animating text.
func StartSpinner(text string) *Spinner {
	s := &Spinner{text: text, stop: make(chan struct{}), started: time.Now()}
	cursor.Hide()
	area, err := pterm.DefaultArea.WithRemoveWhenDone(true).Start()
	if err != nil {
		cursor.Show()
		return s
	}
	s.area = area
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		t := time.NewTicker(120 * time.Millisecond)
		defer t.Stop()
		for i := 0; ; i++ {
			select {
			case <-t.C:
				elapsed := time.Since(s.started).Truncate(100 * time.Millisecond)
				area.Update(fmt.Sprintf("%s %s %s", spinnerFrames[i%len(spinnerFrames)], s.text,
					pterm.NewStyle(pterm.FgGray).Sprint(elapsed)))
			case <-s.stop:
				return
			}
		}
	}()
	return s
}

// Stop removes the spinner line and restores the cursor. It returns the elapsed time
// and is safe to call more than once.
func (s *Spinner) Stop() time.Duration {
	s.once.Do(func() {
		close(s.stop)
		s.wg.Wait()
		if s.area != nil {
			_ = s.area.Stop()
			cursor.Show()
		}
	})
	return time.Since(s.started)
}
