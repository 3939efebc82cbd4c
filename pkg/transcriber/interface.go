package transcriber

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/echolab/transcriptor/pkg/audio"
)

// ErrCancelled marks a cooperative cancellation. It is a distinct terminal
// status, not a failure.
var ErrCancelled = errors.New("job cancelled")

// ErrNoKeys is returned when no credentials are configured at all.
var ErrNoKeys = errors.New("no API keys configured")

// Subsegment is one timed slice of transcript text. Start is the offset
// from the beginning of the whole job, not of the segment that produced it.
type Subsegment struct {
	ID    int           `json:"id"`
	Start time.Duration `json:"start"`
	Text  string        `json:"text"`
}

// SegmentRequest carries the per-job parameters shared by every segment.
type SegmentRequest struct {
	JobName  string
	Model    string
	Language string

	// Keywords prime the speech model with domain vocabulary. They are
	// prepended to the base prompt and later scrubbed from the output.
	Keywords string
}

// SegmentResult is the outcome for exactly one segment. The result slice a
// scheduler returns always has one entry per segment, failed or not; a
// failed segment is rendered as an inline warning, never dropped.
type SegmentResult struct {
	Index       int
	Start       time.Duration
	Subsegments []Subsegment
	Err         error
	Cancelled   bool
}

// Failed reports whether the segment produced no usable transcript.
func (r SegmentResult) Failed() bool {
	return r.Err != nil || r.Cancelled
}

// SegmentRunner transcribes a single segment. Implemented by
// SegmentTranscriber; the scheduler depends only on this.
type SegmentRunner interface {
	Transcribe(ctx context.Context, seg audio.Segment, req *SegmentRequest) SegmentResult
}

// ProgressFunc receives completion counts as segments finish. completed is
// monotonically non-decreasing.
type ProgressFunc func(completed, total int)

// RetryPolicy bounds a retry loop: attempt ceiling, linear backoff,
// cooldown sleep cap and rate-limit jitter, defined once and injected into
// both the segment transcriber and the speaker merger.
type RetryPolicy struct {
	// MaxAttempts is deliberately high for transcription: losing a
	// segment is treated as far worse than being slow.
	MaxAttempts int

	// BackoffStep scales linearly with the attempt number, up to
	// MaxBackoff.
	BackoffStep time.Duration
	MaxBackoff  time.Duration

	// CooldownCap bounds a single sleep while waiting out a key
	// cooldown, keeping cancellation responsive.
	CooldownCap time.Duration

	// RateLimitFallback is the cooldown applied when the provider gives
	// no wait hint.
	RateLimitFallback time.Duration

	// Jitter bounds for the pause after reporting a rate limit, so
	// concurrent workers don't stampede the next key in lockstep.
	JitterMin time.Duration
	JitterMax time.Duration

	// sleep is replaceable in tests; nil means a context-aware sleep.
	sleep func(ctx context.Context, d time.Duration)
}

// DefaultTranscribePolicy returns the retry policy for segment
// transcription.
func DefaultTranscribePolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       300,
		BackoffStep:       2 * time.Second,
		MaxBackoff:        10 * time.Second,
		CooldownCap:       2 * time.Second,
		RateLimitFallback: 2 * time.Second,
		JitterMin:         500 * time.Millisecond,
		JitterMax:         2 * time.Second,
	}
}

// DefaultSpeakerPolicy returns the retry policy for speaker attribution.
func DefaultSpeakerPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       100,
		BackoffStep:       2 * time.Second,
		MaxBackoff:        10 * time.Second,
		CooldownCap:       2 * time.Second,
		RateLimitFallback: 1500 * time.Millisecond,
		JitterMin:         500 * time.Millisecond,
		JitterMax:         1500 * time.Millisecond,
	}
}

// Backoff returns the linear backoff for the given attempt number.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	d := time.Duration(attempt) * p.BackoffStep
	if p.MaxBackoff > 0 && d > p.MaxBackoff {
		d = p.MaxBackoff
	}
	if d < p.BackoffStep {
		d = p.BackoffStep
	}
	return d
}

// Jitter returns a random pause within the policy's jitter bounds.
func (p RetryPolicy) Jitter() time.Duration {
	if p.JitterMax <= p.JitterMin {
		return p.JitterMin
	}
	return p.JitterMin + time.Duration(rand.Int63n(int64(p.JitterMax-p.JitterMin)))
}

// Sleep pauses for d or until the context is cancelled, whichever is first.
func (p RetryPolicy) Sleep(ctx context.Context, d time.Duration) {
	if p.sleep != nil {
		p.sleep(ctx, d)
		return
	}
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
