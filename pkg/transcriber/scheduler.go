package transcriber

import (
	"context"
	"sync"

	"github.com/echolab/transcriptor/pkg/audio"
	"github.com/echolab/transcriptor/pkg/logger"
)

// Scheduler fans a job's segments out over a bounded worker pool and
// reassembles the results strictly by segment index. Completion order is
// irrelevant; chronological order is guaranteed by construction.
type Scheduler struct {
	runner SegmentRunner
	log    *logger.Logger
}

// NewScheduler creates a scheduler over the given segment runner.
func NewScheduler(runner SegmentRunner) *Scheduler {
	return &Scheduler{
		runner: runner,
		log:    logger.WithComponent("scheduler"),
	}
}

// Run transcribes all segments with at most concurrency in flight and
// returns one result per segment, indexed by position. Progress callbacks
// are serialized, so each delivery carries a strictly higher completion
// count than the one before it. Segments that have not started when the
// context is cancelled are never dispatched; Run then returns ErrCancelled
// alongside whatever results completed.
func (s *Scheduler) Run(ctx context.Context, segments []audio.Segment, req *SegmentRequest, concurrency int, progress ProgressFunc) ([]SegmentResult, error) {
	total := len(segments)
	if total == 0 {
		return nil, nil
	}
	if concurrency < 1 {
		concurrency = 1
	}
	if concurrency > total {
		concurrency = total
	}

	s.log.Info().
		Int("segments", total).
		Int("workers", concurrency).
		Str("job", req.JobName).
		Msg("Starting parallel transcription")

	results := make([]SegmentResult, total)
	semaphore := make(chan struct{}, concurrency)

	var mu sync.Mutex
	completed := 0

	var wg sync.WaitGroup
	for _, seg := range segments {
		wg.Add(1)
		go func(seg audio.Segment) {
			defer wg.Done()

			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			// A slot freed after cancellation must not start new work.
			if ctx.Err() != nil {
				results[seg.Index] = SegmentResult{
					Index:     seg.Index,
					Start:     seg.Start,
					Cancelled: true,
					Err:       ErrCancelled,
				}
				return
			}

			results[seg.Index] = s.runner.Transcribe(ctx, seg, req)

			// The callback runs under the lock so completion counts are
			// delivered in order; sinks see a non-decreasing sequence.
			mu.Lock()
			completed++
			if progress != nil {
				progress(completed, total)
			}
			mu.Unlock()
		}(seg)
	}
	wg.Wait()

	if ctx.Err() != nil {
		return results, ErrCancelled
	}

	failed := 0
	for _, r := range results {
		if r.Failed() {
			failed++
		}
	}
	s.log.Info().
		Int("segments", total).
		Int("failed", failed).
		Str("job", req.JobName).
		Msg("Parallel transcription finished")

	return results, nil
}

// Flatten assembles per-segment results into one chronological subsegment
// stream with globally renumbered ids. A failed segment contributes a
// single inline warning subsegment at its position; content is never
// silently dropped.
func Flatten(results []SegmentResult) []Subsegment {
	var flat []Subsegment
	next := 0
	for _, r := range results {
		if r.Failed() {
			flat = append(flat, Subsegment{
				ID:    next,
				Start: r.Start,
				Text:  "[WARNING: A section of the audio failed to transcribe and is missing here.]",
			})
			next++
			continue
		}
		for _, sub := range r.Subsegments {
			flat = append(flat, Subsegment{
				ID:    next,
				Start: sub.Start,
				Text:  sub.Text,
			})
			next++
		}
	}
	return flat
}
