package transcriber

import (
	"time"

	"github.com/echolab/transcriptor/pkg/keypool"
)

// WorkerCount sizes the scheduler's worker pool to the credential pool's
// primary capacity, optionally capped by configuration. The backup reserve
// never backs a worker of its own.
func WorkerCount(pool *keypool.Pool, maxWorkers int) int {
	n := pool.PrimaryCount()
	if maxWorkers > 0 && n > maxWorkers {
		n = maxWorkers
	}
	if n < 1 {
		n = 1
	}
	return n
}

// SegmentMinutes picks the segment length for a pool of the given total
// size. Fewer credentials mean longer segments and therefore fewer calls
// per minute of audio; a configured value may raise the result but never
// lower it below the band's floor.
func SegmentMinutes(totalKeys, configuredMinutes int) int {
	var floor int
	switch {
	case totalKeys <= 2:
		floor = 25
	case totalKeys <= 5:
		floor = 20
	case totalKeys <= 10:
		floor = 15
	default:
		floor = 10
	}
	if configuredMinutes > floor {
		return configuredMinutes
	}
	return floor
}

// SegmentDuration is SegmentMinutes as a time.Duration.
func SegmentDuration(totalKeys, configuredMinutes int) time.Duration {
	return time.Duration(SegmentMinutes(totalKeys, configuredMinutes)) * time.Minute
}
