package audio

import (
	"context"
	"time"
)

// Segment is one fixed-duration slice of the source recording. Index is the
// 0-based chronological position; Start is derived from it, never measured,
// so downstream timestamp math stays exact.
type Segment struct {
	Index    int
	Path     string
	Start    time.Duration
	Duration time.Duration
}

// Splitter slices an audio file into ordered fixed-duration segments.
type Splitter interface {
	// Split re-encodes the input into MP3 segments of the given duration,
	// returned in strict chronological order.
	Split(inputPath string, segmentDuration time.Duration) ([]Segment, error)

	// Cleanup removes the temporary segment files.
	Cleanup(segments []Segment) error
}

// Compressor re-encodes audio to MP3 at a target bitrate.
type Compressor interface {
	Compress(inputPath, outputPath, bitrate string) error
}

// Fetcher obtains a local MP3 for a remote audio reference. To the caller
// it is atomic: one local file or an error.
type Fetcher interface {
	Fetch(ctx context.Context, url, destDir string) (string, error)
}
