package audio

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// segmentBitrate is plenty for speech recognition; re-encoding also
// guarantees every segment carries a valid MP3 header.
const segmentBitrate = "64k"

// SplitterImpl implements the Splitter interface using ffmpeg's segment
// muxer.
type SplitterImpl struct {
	tempDir string
}

// NewSplitter creates a new audio splitter.
func NewSplitter(tempDir string) *SplitterImpl {
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	return &SplitterImpl{
		tempDir: tempDir,
	}
}

// Split slices the input into fixed-duration MP3 segments in chronological
// order. Segment start offsets are index × segmentDuration by construction.
func (s *SplitterImpl) Split(inputPath string, segmentDuration time.Duration) ([]Segment, error) {
	if segmentDuration <= 0 {
		return nil, fmt.Errorf("segment duration must be positive")
	}

	segmentDir := filepath.Join(s.tempDir, fmt.Sprintf("transcriptor_segments_%d", time.Now().UnixNano()))
	if err := os.MkdirAll(segmentDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create segment directory: %w", err)
	}

	pattern := filepath.Join(segmentDir, "segment_%04d.mp3")
	stream := ffmpeg.Input(inputPath).Output(pattern, ffmpeg.KwArgs{
		"f":            "segment",
		"segment_time": strconv.Itoa(int(segmentDuration.Seconds())),
		"c:a":          "libmp3lame",
		"b:a":          segmentBitrate,
	})

	if err := stream.OverWriteOutput().ErrorToStdOut().Run(); err != nil {
		_ = os.RemoveAll(segmentDir)
		return nil, fmt.Errorf("ffmpeg segment split failed: %w", err)
	}

	paths, err := filepath.Glob(filepath.Join(segmentDir, "segment_*.mp3"))
	if err != nil {
		return nil, fmt.Errorf("failed to list segment files: %w", err)
	}
	sort.Strings(paths)

	if len(paths) == 0 {
		_ = os.RemoveAll(segmentDir)
		return nil, fmt.Errorf("no segments produced from %s", filepath.Base(inputPath))
	}

	return buildSegments(paths, segmentDuration), nil
}

// buildSegments assigns indices and derived start offsets to the ordered
// segment files.
func buildSegments(paths []string, segmentDuration time.Duration) []Segment {
	segments := make([]Segment, len(paths))
	for i, path := range paths {
		segments[i] = Segment{
			Index:    i,
			Path:     path,
			Start:    time.Duration(i) * segmentDuration,
			Duration: segmentDuration,
		}
	}
	return segments
}

// Cleanup removes segment files and their directory.
func (s *SplitterImpl) Cleanup(segments []Segment) error {
	var lastErr error

	for _, seg := range segments {
		if seg.Path == "" {
			continue
		}
		if err := os.Remove(seg.Path); err != nil && !os.IsNotExist(err) {
			lastErr = err
		}
	}

	if len(segments) > 0 && segments[0].Path != "" {
		_ = os.Remove(filepath.Dir(segments[0].Path))
	}

	return lastErr
}

// CompressorImpl implements the Compressor interface via libmp3lame.
type CompressorImpl struct{}

// NewCompressor creates a new MP3 compressor.
func NewCompressor() *CompressorImpl {
	return &CompressorImpl{}
}

// Compress re-encodes the input to MP3 at the given bitrate.
func (c *CompressorImpl) Compress(inputPath, outputPath, bitrate string) error {
	if bitrate == "" {
		bitrate = "128k"
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	stream := ffmpeg.Input(inputPath).Output(outputPath, ffmpeg.KwArgs{
		"c:a": "libmp3lame",
		"b:a": bitrate,
	})
	if err := stream.OverWriteOutput().ErrorToStdOut().Run(); err != nil {
		return fmt.Errorf("ffmpeg compression failed: %w", err)
	}

	return nil
}
