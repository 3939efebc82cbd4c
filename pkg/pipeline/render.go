package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/echolab/transcriptor/pkg/audio"
)

var unsafeNameRe = regexp.MustCompile(`[^\w\s-]`)

// RenderInput is everything the renderer needs to write a job's output
// bundle.
type RenderInput struct {
	JobName    string
	Transcript string
	Summary    string
	Keywords   string

	// SourceAudio is compressed into the bundle when KeepAudioCopy is
	// set.
	SourceAudio   string
	KeepAudioCopy bool
	AudioBitrate  string

	When time.Time
}

// Outputs lists the files a render produced. Optional paths are empty when
// their input was.
type Outputs struct {
	TranscriptPath string
	SummaryPath    string
	KeywordsPath   string
	AudioPath      string
}

// Renderer writes the plain-text output bundle for a finished job.
type Renderer struct {
	outputDir  string
	compressor audio.Compressor
}

// NewRenderer creates a renderer writing into outputDir.
func NewRenderer(outputDir string, compressor audio.Compressor) *Renderer {
	return &Renderer{outputDir: outputDir, compressor: compressor}
}

// filePrefix derives a filesystem-safe, timestamped base name for the
// bundle files.
func filePrefix(jobName string, when time.Time) string {
	safe := unsafeNameRe.ReplaceAllString(jobName, "")
	safe = strings.ReplaceAll(strings.TrimSpace(safe), " ", "_")
	if safe == "" {
		safe = "transcript"
	}
	return safe + "_" + when.Format("2006-01-02_1504")
}

// Render writes the transcript and its companion files. The transcript is
// always written; summary, keywords and audio copy are best-effort extras
// whose absence never fails the render.
func (r *Renderer) Render(in *RenderInput) (*Outputs, error) {
	if err := os.MkdirAll(r.outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	prefix := filePrefix(in.JobName, in.When)
	out := &Outputs{}

	// The structural tags guided merging; readers get bare names and
	// timestamps.
	clean := strings.ReplaceAll(in.Transcript, "[SPEAKER] ", "")
	clean = strings.ReplaceAll(clean, "[TIME] ", "")

	var b strings.Builder
	fmt.Fprintf(&b, "%s - TRANSCRIPT\n", in.JobName)
	fmt.Fprintf(&b, "Date: %s\n", in.When.Format("2006-01-02 15:04"))
	b.WriteString(strings.Repeat("=", 60) + "\n\n")
	b.WriteString(clean)
	b.WriteString("\n")

	out.TranscriptPath = filepath.Join(r.outputDir, prefix+".txt")
	if err := os.WriteFile(out.TranscriptPath, []byte(b.String()), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write transcript: %w", err)
	}

	if in.Summary != "" {
		out.SummaryPath = filepath.Join(r.outputDir, prefix+"_Executive_Summary.txt")
		content := fmt.Sprintf("%s - EXECUTIVE BRIEF\n%s\n\n%s\n", in.JobName, strings.Repeat("=", 60), in.Summary)
		if err := os.WriteFile(out.SummaryPath, []byte(content), 0o644); err != nil {
			return out, fmt.Errorf("failed to write summary: %w", err)
		}
	}

	if in.Keywords != "" {
		out.KeywordsPath = filepath.Join(r.outputDir, prefix+"_keywords.txt")
		content := fmt.Sprintf("Metadata Keywords for %s\n%s\n%s\n", in.JobName, strings.Repeat("=", 40), in.Keywords)
		if err := os.WriteFile(out.KeywordsPath, []byte(content), 0o644); err != nil {
			return out, fmt.Errorf("failed to write keywords: %w", err)
		}
	}

	if in.KeepAudioCopy && in.SourceAudio != "" && r.compressor != nil {
		out.AudioPath = filepath.Join(r.outputDir, prefix+".mp3")
		if err := r.compressor.Compress(in.SourceAudio, out.AudioPath, in.AudioBitrate); err != nil {
			return out, fmt.Errorf("failed to compress audio copy: %w", err)
		}
	}

	return out, nil
}
