package audio

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNewSplitter(t *testing.T) {
	tests := []struct {
		name    string
		tempDir string
		want    string
	}{
		{
			name:    "default temp dir",
			tempDir: "",
			want:    os.TempDir(),
		},
		{
			name:    "custom temp dir",
			tempDir: "/custom/temp",
			want:    "/custom/temp",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			splitter := NewSplitter(tt.tempDir)
			if splitter.tempDir != tt.want {
				t.Errorf("NewSplitter() tempDir = %v, want %v", splitter.tempDir, tt.want)
			}
		})
	}
}

func TestBuildSegments(t *testing.T) {
	paths := []string{
		"/tmp/s/segment_0000.mp3",
		"/tmp/s/segment_0001.mp3",
		"/tmp/s/segment_0002.mp3",
	}

	segments := buildSegments(paths, 10*time.Minute)

	if len(segments) != 3 {
		t.Fatalf("buildSegments() len = %d, want 3", len(segments))
	}
	for i, seg := range segments {
		if seg.Index != i {
			t.Errorf("segment %d has index %d", i, seg.Index)
		}
		wantStart := time.Duration(i) * 10 * time.Minute
		if seg.Start != wantStart {
			t.Errorf("segment %d start = %v, want %v", i, seg.Start, wantStart)
		}
		if seg.Duration != 10*time.Minute {
			t.Errorf("segment %d duration = %v, want 10m", i, seg.Duration)
		}
		if seg.Path != paths[i] {
			t.Errorf("segment %d path = %q, want %q", i, seg.Path, paths[i])
		}
	}
}

func TestSplitRejectsNonPositiveDuration(t *testing.T) {
	splitter := NewSplitter("")
	if _, err := splitter.Split("in.mp3", 0); err == nil {
		t.Error("Split() with zero duration should fail")
	}
}

func TestCleanup(t *testing.T) {
	testDir, err := os.MkdirTemp("", "splitter_test")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(testDir)

	segments := []Segment{
		{Index: 0, Path: filepath.Join(testDir, "segment_0000.mp3")},
		{Index: 1, Path: filepath.Join(testDir, "segment_0001.mp3")},
	}

	for _, seg := range segments {
		file, err := os.Create(seg.Path)
		if err != nil {
			t.Fatalf("Failed to create test file: %v", err)
		}
		file.Close()
	}

	splitter := NewSplitter("")
	if err := splitter.Cleanup(segments); err != nil {
		t.Errorf("Cleanup() returned error: %v", err)
	}

	for _, seg := range segments {
		if _, err := os.Stat(seg.Path); !os.IsNotExist(err) {
			t.Errorf("File should be removed: %s", seg.Path)
		}
	}
}

func TestCleanupMissingFilesNotAnError(t *testing.T) {
	splitter := NewSplitter("")
	segments := []Segment{
		{Index: 0, Path: "/nonexistent/segment_0000.mp3"},
		{Index: 1, Path: ""},
	}
	if err := splitter.Cleanup(segments); err != nil {
		t.Errorf("Cleanup() returned error for missing files: %v", err)
	}
}
