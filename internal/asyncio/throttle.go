package asyncio

import (
	"os"
	"strconv"
	"sync"
	"time"
)

// getWritableInterval returns the throttling interval for Writable
// notifications, read from PULSENET_WRITABLE_INTERVAL_MS (milliseconds).
// Defaults to 50ms, clamped to [5ms, 5000ms] to avoid CPU spin on one end
// or starving a client's send loop on the other.
var (
	writableOnce sync.Once
	writableIntv time.Duration
)

func getWritableInterval() time.Duration {
	writableOnce.Do(func() {
		const (
			defMs = 50
			minMs = 5
			maxMs = 5000
		)
		ms := defMs
		if v := os.Getenv("PULSENET_WRITABLE_INTERVAL_MS"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				if n < minMs {
					n = minMs
				} else if n > maxMs {
					n = maxMs
				}
				ms = n
			}
		}
		writableIntv = time.Duration(ms) * time.Millisecond
	})
	return writableIntv
}
