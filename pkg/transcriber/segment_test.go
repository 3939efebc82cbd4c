package transcriber

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/echolab/transcriptor/pkg/audio"
	"github.com/echolab/transcriptor/pkg/keypool"
	"github.com/echolab/transcriptor/pkg/providers"
)

// fakeProvider scripts provider behavior per test via function fields.
type fakeProvider struct {
	mu             sync.Mutex
	transcribeFn   func(key string, req *providers.TranscriptionRequest) (*providers.TranscriptionResult, error)
	classifyFn     func(key string, req *providers.SpeakerRequest) ([]providers.SpeakerChange, error)
	completeFn     func(key string, req *providers.ChatRequest) (string, error)
	transcribeKeys []string
}

func (f *fakeProvider) Name() string        { return "fake" }
func (f *fakeProvider) MaxPromptChars() int { return 880 }

func (f *fakeProvider) Transcribe(_ context.Context, key string, req *providers.TranscriptionRequest) (*providers.TranscriptionResult, error) {
	f.mu.Lock()
	f.transcribeKeys = append(f.transcribeKeys, key)
	fn := f.transcribeFn
	f.mu.Unlock()
	if fn == nil {
		return &providers.TranscriptionResult{}, nil
	}
	return fn(key, req)
}

func (f *fakeProvider) ClassifySpeakers(_ context.Context, key string, req *providers.SpeakerRequest) ([]providers.SpeakerChange, error) {
	f.mu.Lock()
	fn := f.classifyFn
	f.mu.Unlock()
	if fn == nil {
		return nil, nil
	}
	return fn(key, req)
}

func (f *fakeProvider) Complete(_ context.Context, key string, req *providers.ChatRequest) (string, error) {
	if f.completeFn == nil {
		return "", nil
	}
	return f.completeFn(key, req)
}

func (f *fakeProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.transcribeKeys)
}

// testPolicy retries without real sleeping.
func testPolicy(maxAttempts int) RetryPolicy {
	p := DefaultTranscribePolicy()
	p.MaxAttempts = maxAttempts
	p.sleep = func(context.Context, time.Duration) {}
	return p
}

// writeSegmentFile creates a throwaway audio file for a segment.
func writeSegmentFile(t *testing.T, index int) audio.Segment {
	t.Helper()
	path := filepath.Join(t.TempDir(), "segment_0000.mp3")
	if err := os.WriteFile(path, []byte("not really audio"), 0o644); err != nil {
		t.Fatalf("failed to write segment file: %v", err)
	}
	return audio.Segment{
		Index:    index,
		Path:     path,
		Start:    time.Duration(index) * 10 * time.Minute,
		Duration: 10 * time.Minute,
	}
}

func TestTranscribeAdjustsOffsetsToJobTime(t *testing.T) {
	provider := &fakeProvider{
		transcribeFn: func(_ string, _ *providers.TranscriptionRequest) (*providers.TranscriptionResult, error) {
			return &providers.TranscriptionResult{
				Segments: []providers.TranscriptionSegment{
					{ID: 0, Start: 0, Text: "hello"},
					{ID: 1, Start: 42 * time.Second, Text: "world"},
				},
			}, nil
		},
	}
	pool := keypool.New([]string{"paid-1"}, nil)
	tr := NewSegmentTranscriber(provider, pool, testPolicy(3))

	seg := writeSegmentFile(t, 2) // starts at 20m
	result := tr.Transcribe(context.Background(), seg, &SegmentRequest{Model: "whisper-large-v3"})

	if result.Failed() {
		t.Fatalf("Transcribe() failed: %v", result.Err)
	}
	if len(result.Subsegments) != 2 {
		t.Fatalf("got %d subsegments, want 2", len(result.Subsegments))
	}
	if result.Subsegments[0].Start != 20*time.Minute {
		t.Errorf("first subsegment start = %v, want 20m", result.Subsegments[0].Start)
	}
	if want := 20*time.Minute + 42*time.Second; result.Subsegments[1].Start != want {
		t.Errorf("second subsegment start = %v, want %v", result.Subsegments[1].Start, want)
	}
}

func TestTranscribeRotatesKeyAfterRateLimit(t *testing.T) {
	provider := &fakeProvider{}
	provider.transcribeFn = func(key string, _ *providers.TranscriptionRequest) (*providers.TranscriptionResult, error) {
		if provider.callCount() == 1 {
			return nil, &providers.RateLimitError{RetryAfter: 3 * time.Second}
		}
		return &providers.TranscriptionResult{
			Segments: []providers.TranscriptionSegment{{Text: "ok"}},
		}, nil
	}
	pool := keypool.New([]string{"paid-1", "paid-2"}, nil)
	tr := NewSegmentTranscriber(provider, pool, testPolicy(10))

	seg := writeSegmentFile(t, 0)
	result := tr.Transcribe(context.Background(), seg, &SegmentRequest{})

	if result.Failed() {
		t.Fatalf("Transcribe() failed: %v", result.Err)
	}
	if provider.callCount() != 2 {
		t.Fatalf("provider called %d times, want 2", provider.callCount())
	}
	if provider.transcribeKeys[0] == provider.transcribeKeys[1] {
		t.Errorf("retry reused cooling key %q", provider.transcribeKeys[0])
	}
}

func TestTranscribeStopsAtAttemptCeiling(t *testing.T) {
	provider := &fakeProvider{
		transcribeFn: func(string, *providers.TranscriptionRequest) (*providers.TranscriptionResult, error) {
			return nil, os.ErrDeadlineExceeded
		},
	}
	pool := keypool.New([]string{"paid-1"}, nil)
	tr := NewSegmentTranscriber(provider, pool, testPolicy(5))

	seg := writeSegmentFile(t, 0)
	result := tr.Transcribe(context.Background(), seg, &SegmentRequest{})

	if !result.Failed() {
		t.Fatal("expected failure at attempt ceiling")
	}
	if result.Cancelled {
		t.Error("ceiling exhaustion must not report as cancellation")
	}
	if provider.callCount() != 5 {
		t.Errorf("provider called %d times, want 5", provider.callCount())
	}
	if !strings.Contains(result.Err.Error(), "after 5 attempts") {
		t.Errorf("error should name the attempt count, got %v", result.Err)
	}
}

func TestTranscribeCancelledBeforeAnyCall(t *testing.T) {
	provider := &fakeProvider{}
	pool := keypool.New([]string{"paid-1"}, nil)
	tr := NewSegmentTranscriber(provider, pool, testPolicy(5))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	seg := writeSegmentFile(t, 0)
	result := tr.Transcribe(ctx, seg, &SegmentRequest{})

	if !result.Cancelled {
		t.Fatal("expected cancelled result")
	}
	if provider.callCount() != 0 {
		t.Errorf("provider called %d times after cancellation, want 0", provider.callCount())
	}
}

func TestTranscribeEmptyPool(t *testing.T) {
	provider := &fakeProvider{}
	pool := keypool.New(nil, nil)
	tr := NewSegmentTranscriber(provider, pool, testPolicy(5))

	seg := writeSegmentFile(t, 0)
	result := tr.Transcribe(context.Background(), seg, &SegmentRequest{})

	if result.Err != ErrNoKeys {
		t.Fatalf("err = %v, want ErrNoKeys", result.Err)
	}
}

func TestBuildPrompt(t *testing.T) {
	tests := []struct {
		name     string
		keywords string
		maxChars int
		want     string
	}{
		{
			name:     "no keywords",
			keywords: "",
			maxChars: 880,
			want:     basePrompt,
		},
		{
			name:     "keywords come first",
			keywords: "Acme Corp, EBITDA, Q3 guidance",
			maxChars: 880,
			want:     "Acme Corp, EBITDA, Q3 guidance, " + basePrompt,
		},
		{
			name:     "truncated to limit",
			keywords: strings.Repeat("x", 2000),
			maxChars: 880,
			want:     strings.Repeat("x", 880),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := buildPrompt(tt.keywords, tt.maxChars)
			if got != tt.want {
				t.Errorf("buildPrompt() = %q, want %q", got, tt.want)
			}
			if len(got) > tt.maxChars {
				t.Errorf("prompt length %d exceeds limit %d", len(got), tt.maxChars)
			}
		})
	}
}

func TestBackoffLinearAndCapped(t *testing.T) {
	p := DefaultTranscribePolicy()

	if got := p.Backoff(1); got != 2*time.Second {
		t.Errorf("Backoff(1) = %v, want 2s", got)
	}
	if got := p.Backoff(3); got != 6*time.Second {
		t.Errorf("Backoff(3) = %v, want 6s", got)
	}
	if got := p.Backoff(100); got != p.MaxBackoff {
		t.Errorf("Backoff(100) = %v, want cap %v", got, p.MaxBackoff)
	}
}
