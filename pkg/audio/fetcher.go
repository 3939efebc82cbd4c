package audio

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	ffmpeg "github.com/u2takey/ffmpeg-go"

	"github.com/echolab/transcriptor/pkg/logger"
)

// minAudioBytes guards against saving an error page as "audio".
const minAudioBytes = 10_000

// HTTPFetcher downloads a remote audio file over plain HTTP(S) and
// re-encodes it to MP3.
type HTTPFetcher struct {
	httpClient *http.Client
}

// NewHTTPFetcher creates a fetcher with a generous download timeout.
func NewHTTPFetcher() *HTTPFetcher {
	return &HTTPFetcher{
		httpClient: &http.Client{
			Timeout: 10 * time.Minute,
		},
	}
}

// Fetch downloads the URL into destDir and returns the path of the
// resulting MP3 file.
func (f *HTTPFetcher) Fetch(ctx context.Context, url, destDir string) (string, error) {
	log := logger.WithComponent("fetcher").WithField("url", url)

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create destination directory: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create download request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("download failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download failed with status %d", resp.StatusCode)
	}

	rawPath := filepath.Join(destDir, fmt.Sprintf("download_%d.raw", time.Now().UnixNano()))
	rawFile, err := os.Create(rawPath)
	if err != nil {
		return "", fmt.Errorf("failed to create download file: %w", err)
	}

	written, err := io.Copy(rawFile, resp.Body)
	closeErr := rawFile.Close()
	if err != nil {
		_ = os.Remove(rawPath)
		return "", fmt.Errorf("failed to save download: %w", err)
	}
	if closeErr != nil {
		_ = os.Remove(rawPath)
		return "", fmt.Errorf("failed to close download file: %w", closeErr)
	}
	if written < minAudioBytes {
		_ = os.Remove(rawPath)
		return "", fmt.Errorf("downloaded file too small (%d bytes), not audio", written)
	}

	log.Debug().Int64("bytes", written).Msg("Download complete, re-encoding to MP3")

	mp3Path := rawPath[:len(rawPath)-len(".raw")] + ".mp3"
	stream := ffmpeg.Input(rawPath).Output(mp3Path, ffmpeg.KwArgs{
		"c:a": "libmp3lame",
		"b:a": "128k",
	})
	err = stream.OverWriteOutput().ErrorToStdOut().Run()
	_ = os.Remove(rawPath)
	if err != nil {
		return "", fmt.Errorf("failed to re-encode download: %w", err)
	}

	return mp3Path, nil
}
