package providers

import (
	"context"
	"fmt"
	"io"
	"time"
)

// TranscriptionRequest represents a request to transcribe one audio segment.
type TranscriptionRequest struct {
	Audio    io.Reader
	Filename string
	MimeType string
	Model    string
	Language string

	// Prompt is prior-text priming for the speech model, not an
	// instruction. The provider truncates it to its hard limit.
	Prompt string

	Temperature float32
}

// TranscriptionSegment is one timed subsegment of a transcribed segment.
// Start and End are local to the segment that produced them.
type TranscriptionSegment struct {
	ID    int           `json:"id"`
	Start time.Duration `json:"start"`
	End   time.Duration `json:"end"`
	Text  string        `json:"text"`
}

// TranscriptionResult represents the result of a transcription request.
type TranscriptionResult struct {
	Text     string                 `json:"text"`
	Segments []TranscriptionSegment `json:"segments,omitempty"`
	Duration time.Duration          `json:"duration,omitempty"`
}

// SpeakerRequest asks the chat model where the speaker changes in a
// transcript listing. The model must never rewrite transcript text; it only
// maps subsegment ids to speaker names.
type SpeakerRequest struct {
	Model      string
	Transcript string // "[ID: n] {time} text" lines
	JobName    string
	Keywords   string
}

// SpeakerChange marks the subsegment at which a new speaker begins.
// Changes are sparse: consecutive subsegments with the same speaker get no
// entry.
type SpeakerChange struct {
	ID      int    `json:"id"`
	Speaker string `json:"speaker"`
}

// ChatRequest is a plain chat completion, used for keyword generation and
// executive summaries.
type ChatRequest struct {
	Model       string
	System      string
	User        string
	Temperature float32
	MaxTokens   int
}

// Provider is the sole network boundary of the transcription engine. Every
// call takes the credential to bill explicitly; rotation is the caller's
// concern.
type Provider interface {
	// Name returns the provider name (e.g. "groq").
	Name() string

	// Transcribe transcribes one audio segment.
	Transcribe(ctx context.Context, key string, req *TranscriptionRequest) (*TranscriptionResult, error)

	// ClassifySpeakers returns sparse speaker-change records for a
	// transcript listing.
	ClassifySpeakers(ctx context.Context, key string, req *SpeakerRequest) ([]SpeakerChange, error)

	// Complete runs a plain chat completion and returns the content.
	Complete(ctx context.Context, key string, req *ChatRequest) (string, error)

	// MaxPromptChars returns the provider's hard prompt length limit for
	// Transcribe.
	MaxPromptChars() int
}

// RateLimitError reports a 429 from the provider together with the wait
// hint it supplied, when any.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
	}
	return "rate limited"
}
