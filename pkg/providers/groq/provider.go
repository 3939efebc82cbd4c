package groq

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/echolab/transcriptor/pkg/providers"
)

const (
	defaultBaseURL = "https://api.groq.com/openai/v1"

	// Groq's Whisper endpoint rejects prompts past 896 characters; stay a
	// little under it.
	maxPromptChars = 880
)

// Provider implements the provider interface against the Groq API: Whisper
// for audio transcription, chat completions for the secondary text model.
type Provider struct {
	baseURL    string
	httpClient *http.Client
}

// NewProvider creates a new Groq provider instance.
func NewProvider(options ...ProviderOption) *Provider {
	p := &Provider{
		baseURL: defaultBaseURL,
		httpClient: &http.Client{
			Timeout: 5 * time.Minute,
		},
	}

	for _, opt := range options {
		opt(p)
	}

	return p
}

// ProviderOption allows customizing the provider.
type ProviderOption func(*Provider)

// WithBaseURL sets a custom base URL.
func WithBaseURL(baseURL string) ProviderOption {
	return func(p *Provider) {
		p.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(timeout time.Duration) ProviderOption {
	return func(p *Provider) {
		p.httpClient.Timeout = timeout
	}
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "groq"
}

// MaxPromptChars returns the hard prompt length limit for Transcribe.
func (p *Provider) MaxPromptChars() int {
	return maxPromptChars
}

// verboseTranscription mirrors the verbose_json response shape.
type verboseTranscription struct {
	Text     string  `json:"text"`
	Duration float64 `json:"duration"`
	Segments []struct {
		ID    int     `json:"id"`
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
}

// Transcribe transcribes one audio segment via the Whisper endpoint.
func (p *Provider) Transcribe(ctx context.Context, key string, req *providers.TranscriptionRequest) (*providers.TranscriptionResult, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fields := map[string]string{
		"model":           req.Model,
		"response_format": "verbose_json",
		// Temperature zero forces deterministic reading and suppresses
		// hallucination loops on silent stretches.
		"temperature": strconv.FormatFloat(float64(req.Temperature), 'f', -1, 32),
	}
	if req.Language != "" {
		fields["language"] = req.Language
	}
	if req.Prompt != "" {
		fields["prompt"] = truncate(req.Prompt, maxPromptChars)
	}
	for name, value := range fields {
		if err := mw.WriteField(name, value); err != nil {
			return nil, fmt.Errorf("failed to write form field %s: %w", name, err)
		}
	}

	fw, err := mw.CreateFormFile("file", req.Filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(fw, req.Audio); err != nil {
		return nil, fmt.Errorf("failed to copy audio data: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/audio/transcriptions", &body)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+key)
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())

	respData, err := p.do(httpReq)
	if err != nil {
		return nil, err
	}

	var parsed verboseTranscription
	if err := json.Unmarshal(respData, &parsed); err != nil {
		return nil, fmt.Errorf("failed to unmarshal transcription response: %w", err)
	}

	result := &providers.TranscriptionResult{
		Text:     strings.TrimSpace(parsed.Text),
		Duration: secondsToDuration(parsed.Duration),
	}
	for _, s := range parsed.Segments {
		text := strings.TrimSpace(s.Text)
		if text == "" {
			continue
		}
		result.Segments = append(result.Segments, providers.TranscriptionSegment{
			ID:    s.ID,
			Start: secondsToDuration(s.Start),
			End:   secondsToDuration(s.End),
			Text:  text,
		})
	}

	return result, nil
}

// chatRequest is the chat completions request payload.
type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
	Temperature    float32         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

const speakerSystemPrompt = `You are an elite transcription editor for the '%s' meeting.
You are given a raw transcript segment with [ID: XX] tags.
Your task is to identify the precise speaker for each segment based on context, flow, and provided keywords.
CRITICAL RULES:
1. You MUST return your response ONLY as a JSON object with a single key 'speaker_changes'.
2. 'speaker_changes' must be a list of objects containing 'id' (the integer ID where a NEW speaker begins) and 'speaker' (their deduced true name).
3. If the speaker does not change between consecutive IDs, do NOT add a new entry for every ID. Only add an entry when the speaker visibly CHANGES.
4. NEVER invent or write actual dialogue. Just map the changes.
5. Example output:
{"speaker_changes": [{"id": 0, "speaker": "Host"}, {"id": 12, "speaker": "CEO Name"}]}`

// ClassifySpeakers asks the chat model for sparse speaker-change records.
func (p *Provider) ClassifySpeakers(ctx context.Context, key string, req *providers.SpeakerRequest) ([]providers.SpeakerChange, error) {
	payload := &chatRequest{
		Model: req.Model,
		Messages: []chatMessage{
			{Role: "system", Content: fmt.Sprintf(speakerSystemPrompt, req.JobName)},
			{Role: "user", Content: fmt.Sprintf("Key Executives & Context: %s\n\nTranscript Segment:\n%s", req.Keywords, req.Transcript)},
		},
		ResponseFormat: &responseFormat{Type: "json_object"},
		Temperature:    0.05,
		MaxTokens:      8000,
	}

	content, err := p.chat(ctx, key, payload)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		SpeakerChanges []providers.SpeakerChange `json:"speaker_changes"`
	}
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse speaker changes: %w", err)
	}

	return parsed.SpeakerChanges, nil
}

// Complete runs a plain chat completion and returns the content.
func (p *Provider) Complete(ctx context.Context, key string, req *providers.ChatRequest) (string, error) {
	payload := &chatRequest{
		Model: req.Model,
		Messages: []chatMessage{
			{Role: "system", Content: req.System},
			{Role: "user", Content: req.User},
		},
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}

	return p.chat(ctx, key, payload)
}

// ValidateKey checks a credential against the models endpoint and returns
// the model ids it can see.
func (p *Provider) ValidateKey(ctx context.Context, key string) ([]string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/models", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+key)

	respData, err := p.do(httpReq)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(respData, &parsed); err != nil {
		return nil, fmt.Errorf("failed to unmarshal models response: %w", err)
	}

	models := make([]string, 0, len(parsed.Data))
	for _, m := range parsed.Data {
		models = append(models, m.ID)
	}
	return models, nil
}

// chat posts a chat completion payload and extracts the first choice.
func (p *Provider) chat(ctx context.Context, key string, payload *chatRequest) (string, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+key)
	httpReq.Header.Set("Content-Type", "application/json")

	respData, err := p.do(httpReq)
	if err != nil {
		return "", err
	}

	var parsed chatResponse
	if err := json.Unmarshal(respData, &parsed); err != nil {
		return "", fmt.Errorf("failed to unmarshal chat response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("no choices in chat response")
	}

	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}

// do executes the request and maps 429 responses to RateLimitError.
func (p *Provider) do(req *http.Request) ([]byte, error) {
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &providers.RateLimitError{
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), respData),
		}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(respData))
	}

	return respData, nil
}

var retryInMessageRe = regexp.MustCompile(`try again in (\d+\.?\d*)s`)

// parseRetryAfter extracts the provider wait hint: the Retry-After header
// when present, else the "try again in Ns" phrasing in the error body.
// Returns zero when neither yields a value.
func parseRetryAfter(header string, body []byte) time.Duration {
	if header != "" {
		if secs, err := strconv.ParseFloat(header, 64); err == nil && secs > 0 {
			return secondsToDuration(secs)
		}
	}

	var apiErr struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &apiErr); err == nil {
		if m := retryInMessageRe.FindStringSubmatch(apiErr.Error.Message); m != nil {
			if secs, err := strconv.ParseFloat(m[1], 64); err == nil && secs > 0 {
				return secondsToDuration(secs)
			}
		}
	}

	return 0
}

func secondsToDuration(secs float64) time.Duration {
	return time.Duration(secs * float64(time.Second))
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
