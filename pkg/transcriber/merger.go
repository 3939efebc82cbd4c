package transcriber

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/echolab/transcriptor/pkg/keypool"
	"github.com/echolab/transcriptor/pkg/logger"
	"github.com/echolab/transcriptor/pkg/providers"
)

// unknownSpeaker labels text before the first attributed change.
const unknownSpeaker = "Unknown Speaker"

// SpeakerMergeRequest carries the per-job parameters for speaker
// attribution.
type SpeakerMergeRequest struct {
	JobName   string
	ChatModel string
	Keywords  string
}

// SpeakerMerger overlays speaker labels onto a finished transcript. The
// chat model only ever decides WHERE speakers change; the transcript text
// itself is copied through verbatim, so attribution can never corrupt
// content. On total attribution failure the transcript is emitted without
// labels rather than lost.
type SpeakerMerger struct {
	provider providers.Provider
	pool     *keypool.Pool
	policy   RetryPolicy
	log      *logger.Logger
}

// NewSpeakerMerger creates a merger backed by the given provider and
// credential pool.
func NewSpeakerMerger(provider providers.Provider, pool *keypool.Pool, policy RetryPolicy) *SpeakerMerger {
	return &SpeakerMerger{
		provider: provider,
		pool:     pool,
		policy:   policy,
		log:      logger.WithComponent("merger"),
	}
}

// Merge attributes speakers to the subsegment stream and renders the final
// labeled transcript. attributed is false when the speaker model could not
// be consulted and the output carries only the default label.
func (m *SpeakerMerger) Merge(ctx context.Context, subs []Subsegment, req *SpeakerMergeRequest) (text string, attributed bool) {
	if len(subs) == 0 {
		return "", false
	}

	changes, err := m.classify(ctx, subs, req)
	if err != nil {
		m.log.Warn().Err(err).Str("job", req.JobName).Msg("Speaker attribution unavailable, emitting unlabeled transcript")
		return Overlay(subs, nil), false
	}
	return Overlay(subs, changes), len(changes) > 0
}

// classify runs the bounded retry loop around the speaker-change call.
func (m *SpeakerMerger) classify(ctx context.Context, subs []Subsegment, req *SpeakerMergeRequest) (map[int]string, error) {
	listing := BuildListing(subs)
	log := m.log.WithField("job", req.JobName)

	var lastErr error
	for attempt := 0; attempt < m.policy.MaxAttempts; {
		if ctx.Err() != nil {
			return nil, ErrCancelled
		}

		key, wait, ok := m.pool.Acquire()
		if !ok {
			return nil, ErrNoKeys
		}
		if wait > 0 {
			if wait > m.policy.CooldownCap {
				wait = m.policy.CooldownCap
			}
			m.policy.Sleep(ctx, wait)
			continue
		}

		changes, err := m.provider.ClassifySpeakers(ctx, key, &providers.SpeakerRequest{
			Model:      req.ChatModel,
			Transcript: listing,
			JobName:    req.JobName,
			Keywords:   req.Keywords,
		})
		if err == nil {
			result := make(map[int]string, len(changes))
			for _, c := range changes {
				if c.Speaker != "" {
					result[c.ID] = c.Speaker
				}
			}
			return result, nil
		}
		lastErr = err
		attempt++

		var rateLimit *providers.RateLimitError
		if errors.As(err, &rateLimit) {
			cooldown := rateLimit.RetryAfter
			if cooldown <= 0 {
				cooldown = m.policy.RateLimitFallback
			}
			m.pool.Cooldown(key, cooldown)
			m.policy.Sleep(ctx, m.policy.Jitter())
			continue
		}

		if attempt%logEveryAttempts == 0 {
			log.Warn().Err(err).Int("attempt", attempt).Msg("Speaker attribution failing, still retrying")
		}
		m.policy.Sleep(ctx, m.policy.Backoff(attempt))
	}
	return nil, fmt.Errorf("speaker attribution failed after %d attempts: %w", m.policy.MaxAttempts, lastErr)
}

// BuildListing renders the id-tagged transcript listing the speaker model
// reasons over, one subsegment per line.
func BuildListing(subs []Subsegment) string {
	var b strings.Builder
	for _, s := range subs {
		fmt.Fprintf(&b, "[ID: %d] {%s} %s\n", s.ID, FormatTimestamp(s.Start), s.Text)
	}
	return b.String()
}

// Overlay interleaves speaker and time headers with the subsegment texts.
// Stripping the header lines from the output yields the subsegment texts
// joined by single spaces, byte for byte.
func Overlay(subs []Subsegment, changes map[int]string) string {
	var b strings.Builder
	current := unknownSpeaker

	for i, s := range subs {
		name, change := changes[s.ID]
		if change {
			current = name
		}
		switch {
		case change || i == 0:
			if i > 0 {
				b.WriteString("\n\n")
			}
			fmt.Fprintf(&b, "[SPEAKER] %s\n[TIME] %s\n", current, FormatTimestamp(s.Start))
		default:
			b.WriteString(" ")
		}
		b.WriteString(s.Text)
	}

	return b.String()
}

// FormatTimestamp renders an offset as [mm:ss], widening to [hh:mm:ss]
// past the first hour.
func FormatTimestamp(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d.Seconds())
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	if h > 0 {
		return fmt.Sprintf("[%02d:%02d:%02d]", h, m, s)
	}
	return fmt.Sprintf("[%02d:%02d]", m, s)
}
