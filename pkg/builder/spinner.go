package builder

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/term"
)

const (
	eraseToEOL = "\033[0K"
	hideCursor = "\033[?25l"
	showCursor = "\033[?25h"
)

var spinRunes = []rune("⠋⠙⠹⠸⠼⠴⠦⠧⠇⠏")

// runSpinner executes action while displaying a rotating indicator next to a
// title line. The action receives a channel it can use to replace the title
// text in real time (e.g., with the last output line of a running command).
func runSpinner(title string, action func(titleUpdate chan<- string)) error {
	const interval = 200 * time.Millisecond

	var wg sync.WaitGroup
	stop := make(chan struct{})
	// Buffered so a bursty action doesn't block on title updates.
	titleUpdate := make(chan string, 16)

	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		fmt.Print(hideCursor)
		defer fmt.Print(showCursor)

		current := title
		tick := 0
		for {
			select {
			case <-ticker.C:
				// Re-read the width at every tick, it may change mid-animation.
				width, _, err := term.GetSize(0)
				if err != nil {
					width = 80
				}
				fmt.Printf("\r%c %s%s", spinRunes[tick%len(spinRunes)], truncateToWidth(current, width-3), eraseToEOL)
				tick++
			case newTitle := <-titleUpdate:
				current = newTitle
			case <-stop:
				fmt.Printf("\r%s", eraseToEOL)
				return
			}
		}
	}()

	action(titleUpdate)

	close(stop)
	// titleUpdate is deliberately left open: the animation goroutine may still
	// read from it while shutting down.
	wg.Wait()
	return nil
}

func truncateToWidth(s string, width int) string {
	if width <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= width {
		return s
	}
	if width <= 1 {
		return string(runes[:width])
	}
	return string(runes[:width-1]) + "…"
}
