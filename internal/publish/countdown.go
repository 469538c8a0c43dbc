package publish

import (
	"context"
	"time"
)

// Countdown is the cosmetic pacing branch of a publish. It ticks ticks times
// at interval, reporting the ticks still to go after each one, and returns how
// many ticks elapsed. It never observes the work branch. Only ctx ending (process
// shutdown) cuts it short.
func Countdown(ctx context.Context, ticks int, interval time.Duration, onTick func(remaining int)) int {
	if ticks <= 0 {
		return 0
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for done := 0; done < ticks; {
		select {
		case <-ctx.Done():
			return done
		case <-t.C:
			done++
			if onTick != nil {
				onTick(ticks - done)
			}
		}
	}
	return ticks
}
