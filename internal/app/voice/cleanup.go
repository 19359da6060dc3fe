package voice

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// cleanupStep is one independent best-effort teardown action.
type cleanupStep struct {
	name string
	fn   func() error
}

// runCleanup executes the steps concurrently. Failures never abort the
// other steps; they are aggregated into a single log entry.
func runCleanup(log zerolog.Logger, steps ...cleanupStep) {
	if len(steps) == 0 {
		return
	}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		failed []string
	)

	for _, step := range steps {
		wg.Add(1)
		go func(step cleanupStep) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					mu.Lock()
					failed = append(failed, fmt.Sprintf("%s: panic: %v", step.name, r))
					mu.Unlock()
				}
			}()
			if err := step.fn(); err != nil {
				mu.Lock()
				failed = append(failed, fmt.Sprintf("%s: %v", step.name, err))
				mu.Unlock()
			}
		}(step)
	}
	wg.Wait()

	if len(failed) > 0 {
		log.Warn().Strs("steps", failed).Msg("cleanup completed with errors")
	}
}
