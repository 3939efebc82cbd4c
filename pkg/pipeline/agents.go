package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/echolab/transcriptor/pkg/keypool"
	"github.com/echolab/transcriptor/pkg/logger"
	"github.com/echolab/transcriptor/pkg/providers"
	"github.com/echolab/transcriptor/pkg/transcriber"
)

// summaryAttempts bounds summary generation; a missing summary degrades
// the output bundle, it does not fail the job.
const summaryAttempts = 15

// summaryInputLimit keeps the transcript slice inside the chat model's
// context window.
const summaryInputLimit = 120_000

const keywordSystemPrompt = "You are a corporate research AI. Output ONLY a comma-separated list of keywords. No prologue, no extra text."

const summarySystemPrompt = "You are an elite financial analyst and executive assistant.\n" +
	"Given the transcribed meeting/call below, generate a professional, highly concise 1-page Executive Brief.\n" +
	"You MUST structure your response ONLY using exactly these three headings:\n\n" +
	"THE TL;DR:\n" +
	"[Provide a 3-paragraph executive summary of the entire call]\n\n" +
	"FINANCIAL METRICS EXTRACTED:\n" +
	"[Bulleted list of all numbers, revenue, EBITDA, guidance, timelines, or percentages mentioned]\n\n" +
	"ACTION ITEMS:\n" +
	"[Key decisions or forward-looking statements made by the leadership]\n\n" +
	"If any section lacks information from the transcript, briefly state 'Not explicitly mentioned'. " +
	"Do not output markdown asterisks or bold tags, just use plain structural line spacing and clean bullet dots (-)."

// genericJobNames carry no researchable vocabulary, so keyword generation
// is skipped for them.
var genericJobNames = map[string]bool{
	"meeting": true,
	"test":    true,
	"demo":    true,
	"":        true,
}

// Agents runs the auxiliary chat-model calls around a transcription:
// keyword research before, executive summary after. Both are best-effort.
type Agents struct {
	provider providers.Provider
	pool     *keypool.Pool
	policy   transcriber.RetryPolicy
	log      *logger.Logger
}

// NewAgents creates the agent runner.
func NewAgents(provider providers.Provider, pool *keypool.Pool, policy transcriber.RetryPolicy) *Agents {
	return &Agents{
		provider: provider,
		pool:     pool,
		policy:   policy,
		log:      logger.WithComponent("agents"),
	}
}

// GenerateKeywords asks the chat model for company-specific vocabulary to
// prime the speech model with. Generic job names yield nothing; so does
// any failure, since transcription works fine without keywords.
func (a *Agents) GenerateKeywords(ctx context.Context, jobName, model string) string {
	if genericJobNames[strings.ToLower(strings.TrimSpace(jobName))] {
		return ""
	}

	user := fmt.Sprintf(
		"I am about to transcribe a business meeting/call titled '%s'. "+
			"Generate EXACTLY 10 to 15 highly specific keywords. "+
			"Specifically include: key executives, major products, and financial terms related to this company. "+
			"Only give the comma-separated words so I can feed them to Whisper.", jobName)

	content, err := a.complete(ctx, 1, &providers.ChatRequest{
		Model:       model,
		System:      keywordSystemPrompt,
		User:        user,
		Temperature: 0.2,
	})
	if err != nil {
		a.log.WithError(err).Warn().Str("job_name", jobName).Msg("Keyword generation failed, continuing without")
		return ""
	}

	// Undo any list formatting the model added despite instructions.
	content = strings.ReplaceAll(content, "\n", ", ")
	content = strings.ReplaceAll(content, "- ", "")
	content = strings.ReplaceAll(content, "*", "")
	return strings.TrimSpace(content)
}

// GenerateSummary produces the executive brief for a finished transcript.
// Returns "" when the model stays unreachable.
func (a *Agents) GenerateSummary(ctx context.Context, transcript, jobName, model string) string {
	if transcript == "" {
		return ""
	}
	if len(transcript) > summaryInputLimit {
		transcript = transcript[:summaryInputLimit]
	}

	content, err := a.complete(ctx, summaryAttempts, &providers.ChatRequest{
		Model:       model,
		System:      summarySystemPrompt,
		User:        fmt.Sprintf("Transcript for %s:\n\n%s", jobName, transcript),
		Temperature: 0.1,
		MaxTokens:   4000,
	})
	if err != nil {
		a.log.WithError(err).Warn().Str("job_name", jobName).Msg("Summary generation failed, continuing without")
		return ""
	}
	return strings.TrimSpace(content)
}

// complete runs a chat completion through the credential pool with the
// usual rotation and cooldown handling.
func (a *Agents) complete(ctx context.Context, maxAttempts int, req *providers.ChatRequest) (string, error) {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; {
		if ctx.Err() != nil {
			return "", transcriber.ErrCancelled
		}

		key, wait, ok := a.pool.Acquire()
		if !ok {
			return "", transcriber.ErrNoKeys
		}
		if wait > 0 {
			if wait > a.policy.CooldownCap {
				wait = a.policy.CooldownCap
			}
			a.policy.Sleep(ctx, wait)
			continue
		}

		content, err := a.provider.Complete(ctx, key, req)
		if err == nil {
			return content, nil
		}
		lastErr = err
		attempt++

		var rateLimit *providers.RateLimitError
		if errors.As(err, &rateLimit) {
			cooldown := rateLimit.RetryAfter
			if cooldown <= 0 {
				cooldown = a.policy.RateLimitFallback
			}
			a.pool.Cooldown(key, cooldown)
			a.policy.Sleep(ctx, a.policy.Jitter())
			continue
		}
		a.policy.Sleep(ctx, a.policy.Backoff(attempt))
	}
	return "", fmt.Errorf("chat completion failed after %d attempts: %w", maxAttempts, lastErr)
}
