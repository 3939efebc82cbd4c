package transcriber

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/echolab/transcriptor/pkg/audio"
	"github.com/echolab/transcriptor/pkg/keypool"
	"github.com/echolab/transcriptor/pkg/logger"
	"github.com/echolab/transcriptor/pkg/providers"
)

// basePrompt primes the speech model toward financial-call vocabulary.
// It is simulated prior text, not an instruction: instruction-style
// sentences get hallucinated back verbatim during silent gaps, so the
// trailing term list is also scrubbed from output in post-processing.
const basePrompt = "Hello, welcome! This is a highly accurate, grammatically correct, and fully punctuated transcript of the professional financial presentation. Lakh, Crore, EBITDA, YoY, QoQ, PAT, Margins, Revenue."

// logEveryAttempts throttles retry logging so a long rate-limit stall does
// not flood the log.
const logEveryAttempts = 15

// SegmentTranscriber turns one audio segment into timed subsegments. It
// owns the retry loop: credential rotation, cooldown waits, rate-limit
// reporting and linear backoff all live here, so the scheduler above it
// only ever sees a finished SegmentResult.
type SegmentTranscriber struct {
	provider providers.Provider
	pool     *keypool.Pool
	policy   RetryPolicy
	log      *logger.Logger
}

// NewSegmentTranscriber creates a segment transcriber backed by the given
// provider and credential pool.
func NewSegmentTranscriber(provider providers.Provider, pool *keypool.Pool, policy RetryPolicy) *SegmentTranscriber {
	return &SegmentTranscriber{
		provider: provider,
		pool:     pool,
		policy:   policy,
		log:      logger.WithComponent("transcriber"),
	}
}

// Transcribe runs the retry loop for a single segment until it succeeds,
// the attempt ceiling is reached, or the context is cancelled. Waiting out
// a key cooldown does not consume attempts; only real call failures do.
func (t *SegmentTranscriber) Transcribe(ctx context.Context, seg audio.Segment, req *SegmentRequest) SegmentResult {
	result := SegmentResult{Index: seg.Index, Start: seg.Start}
	log := t.log.WithField("segment", seg.Index).WithField("job", req.JobName)

	prompt := buildPrompt(req.Keywords, t.provider.MaxPromptChars())

	var lastErr error
	for attempt := 0; attempt < t.policy.MaxAttempts; {
		if ctx.Err() != nil {
			result.Cancelled = true
			result.Err = ErrCancelled
			return result
		}

		key, wait, ok := t.pool.Acquire()
		if !ok {
			result.Err = ErrNoKeys
			return result
		}
		if wait > 0 {
			if attempt%logEveryAttempts == 0 {
				log.Debug().Dur("wait", wait).Msg("All keys cooling down, waiting")
			}
			if wait > t.policy.CooldownCap {
				wait = t.policy.CooldownCap
			}
			t.policy.Sleep(ctx, wait)
			continue
		}

		subs, err := t.transcribeOnce(ctx, key, seg, req, prompt)
		if err == nil {
			result.Subsegments = subs
			if attempt > 0 {
				log.Info().Int("attempts", attempt+1).Msg("Segment transcribed after retries")
			}
			return result
		}
		lastErr = err
		attempt++

		var rateLimit *providers.RateLimitError
		if errors.As(err, &rateLimit) {
			cooldown := rateLimit.RetryAfter
			if cooldown <= 0 {
				cooldown = t.policy.RateLimitFallback
			}
			t.pool.Cooldown(key, cooldown)
			log.Debug().
				Str("key", redactKey(key)).
				Dur("cooldown", cooldown).
				Int("attempt", attempt).
				Msg("Rate limited, rotating key")
			t.policy.Sleep(ctx, t.policy.Jitter())
			continue
		}

		if attempt%logEveryAttempts == 0 {
			log.Warn().Err(err).Int("attempt", attempt).Msg("Segment transcription failing, still retrying")
		}
		t.policy.Sleep(ctx, t.policy.Backoff(attempt))
	}

	result.Err = fmt.Errorf("segment %d failed after %d attempts: %w", seg.Index, t.policy.MaxAttempts, lastErr)
	log.Error().Err(lastErr).Int("attempts", t.policy.MaxAttempts).Msg("Segment abandoned at retry ceiling")
	return result
}

// transcribeOnce performs exactly one provider call. The audio file is
// reopened per attempt so a half-read body from a failed call can never
// leak into the next one.
func (t *SegmentTranscriber) transcribeOnce(ctx context.Context, key string, seg audio.Segment, req *SegmentRequest, prompt string) ([]Subsegment, error) {
	file, err := os.Open(seg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open segment file: %w", err)
	}
	defer func() {
		_ = file.Close()
	}()

	res, err := t.provider.Transcribe(ctx, key, &providers.TranscriptionRequest{
		Audio:       file,
		Filename:    filepath.Base(seg.Path),
		MimeType:    "audio/mpeg",
		Model:       req.Model,
		Language:    req.Language,
		Prompt:      prompt,
		Temperature: 0,
	})
	if err != nil {
		return nil, err
	}

	subs := make([]Subsegment, 0, len(res.Segments))
	for i, s := range res.Segments {
		subs = append(subs, Subsegment{
			ID:    i,
			Start: seg.Start + s.Start,
			Text:  s.Text,
		})
	}
	return subs, nil
}

// buildPrompt combines the job keywords with the base priming prompt,
// truncated to the provider's hard limit. Keywords go first so truncation
// sacrifices the generic tail, never the job-specific vocabulary.
func buildPrompt(keywords string, maxChars int) string {
	prompt := basePrompt
	if kw := strings.TrimSpace(keywords); kw != "" {
		prompt = kw + ", " + basePrompt
	}
	if maxChars > 0 && len(prompt) > maxChars {
		prompt = prompt[:maxChars]
	}
	return prompt
}

// redactKey keeps logs useful for correlating rate limits without ever
// writing a full credential to disk.
func redactKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "…" + key[len(key)-4:]
}
