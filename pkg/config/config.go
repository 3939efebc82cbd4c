package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/echolab/transcriptor/pkg/logger"
)

// Config represents the application configuration.
type Config struct {
	// API credential pools
	Keys KeysConfig `yaml:"keys" mapstructure:"keys"`

	// Transcription engine settings
	Transcribe TranscribeConfig `yaml:"transcribe" mapstructure:"transcribe"`

	// Audio processing settings
	Audio AudioConfig `yaml:"audio" mapstructure:"audio"`

	// Output settings
	Output OutputConfig `yaml:"output" mapstructure:"output"`

	// History store settings
	History HistoryConfig `yaml:"history" mapstructure:"history"`

	// Logging settings
	Logging logger.Config `yaml:"logging" mapstructure:"logging"`
}

// KeysConfig holds the two credential tiers. Paid keys are always primary;
// the tail of the free list is held back as a backup reserve.
type KeysConfig struct {
	Paid []string `yaml:"paid" mapstructure:"paid"`
	Free []string `yaml:"free" mapstructure:"free"`
}

// TranscribeConfig contains transcription engine settings.
type TranscribeConfig struct {
	// Whisper model used for segment transcription
	Model string `yaml:"model" mapstructure:"model"`

	// Chat model used for speaker attribution, keywords and summaries
	ChatModel string `yaml:"chat_model" mapstructure:"chat_model"`

	// Spoken language hint passed to the speech model
	Language string `yaml:"language" mapstructure:"language"`

	// Whether to research job-name keywords before transcribing
	Keywords bool `yaml:"keywords" mapstructure:"keywords"`

	// Segment length floor in minutes; the engine may raise it when few
	// keys are configured, never lower it
	SegmentMinutes int `yaml:"segment_minutes" mapstructure:"segment_minutes"`

	// Concurrency ceiling; the effective worker count never exceeds the
	// primary key count
	MaxWorkers int `yaml:"max_workers" mapstructure:"max_workers"`

	// Whether to run the speaker attribution pass
	SpeakerDetection bool `yaml:"speaker_detection" mapstructure:"speaker_detection"`

	// Whether to generate an executive summary after merging
	Summary bool `yaml:"summary" mapstructure:"summary"`

	// Request timeout for a single provider call
	RequestTimeout time.Duration `yaml:"request_timeout" mapstructure:"request_timeout"`
}

// AudioConfig contains audio processing settings.
type AudioConfig struct {
	// Bitrate for MP3 re-encoding (split segments use a fixed speech rate)
	Bitrate string `yaml:"bitrate" mapstructure:"bitrate"`

	TempDir       string `yaml:"temp_dir" mapstructure:"temp_dir"`
	KeepTempFiles bool   `yaml:"keep_temp_files" mapstructure:"keep_temp_files"`
}

// OutputConfig contains output rendering settings.
type OutputConfig struct {
	Directory string `yaml:"directory" mapstructure:"directory"`

	// Keep a compressed MP3 copy of the source next to the transcript
	KeepAudioCopy bool `yaml:"keep_audio_copy" mapstructure:"keep_audio_copy"`
}

// HistoryConfig contains job history store settings.
type HistoryConfig struct {
	// Path to the BoltDB history database
	Path string `yaml:"path" mapstructure:"path"`

	// Maximum number of retained entries
	MaxEntries int `yaml:"max_entries" mapstructure:"max_entries"`
}

// AllKeys returns every configured key, paid first then free.
func (k KeysConfig) AllKeys() []string {
	keys := make([]string, 0, len(k.Paid)+len(k.Free))
	keys = append(keys, k.Paid...)
	keys = append(keys, k.Free...)
	return keys
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Transcribe: TranscribeConfig{
			Model:            "whisper-large-v3",
			ChatModel:        "llama-3.3-70b-versatile",
			Language:         "en",
			Keywords:         true,
			SegmentMinutes:   10,
			MaxWorkers:       20,
			SpeakerDetection: true,
			Summary:          true,
			RequestTimeout:   300 * time.Second,
		},
		Audio: AudioConfig{
			Bitrate: "128k",
			TempDir: filepath.Join(os.TempDir(), "transcriptor"),
		},
		Output: OutputConfig{
			Directory:     filepath.Join(home, "Downloads", "Transcriptor"),
			KeepAudioCopy: true,
		},
		History: HistoryConfig{
			Path:       ".transcriptor-history.db",
			MaxEntries: 500,
		},
		Logging: *logger.DefaultConfig(),
	}
}
