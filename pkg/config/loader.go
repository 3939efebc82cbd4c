package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// Loader handles configuration loading and management.
type Loader struct {
	configPath string
	viper      *viper.Viper
}

// NewLoader creates a new configuration loader.
func NewLoader(configPath string) *Loader {
	v := viper.New()

	v.SetEnvPrefix("TRANSCRIPTOR")
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		home, _ := os.UserHomeDir()
		v.AddConfigPath(home)
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/transcriptor")
		v.SetConfigName(".transcriptor")
		v.SetConfigType("yaml")
	}

	return &Loader{
		configPath: configPath,
		viper:      v,
	}
}

// Load reads and returns the configuration.
func (l *Loader) Load() (*Config, error) {
	SetDefaults(l.viper)

	if err := l.viper.ReadInConfig(); err != nil {
		// Config file not found is not an error; defaults and env vars apply
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := l.viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// GetConfigFile returns the path to the config file being used.
func (l *Loader) GetConfigFile() string {
	return l.viper.ConfigFileUsed()
}

// SetDefaults mirrors DefaultConfig into a viper instance, so values
// missing from the config file, env and flags still come out right when
// unmarshalling.
func SetDefaults(v *viper.Viper) {
	def := DefaultConfig()

	v.SetDefault("transcribe.model", def.Transcribe.Model)
	v.SetDefault("transcribe.chat_model", def.Transcribe.ChatModel)
	v.SetDefault("transcribe.language", def.Transcribe.Language)
	v.SetDefault("transcribe.keywords", def.Transcribe.Keywords)
	v.SetDefault("transcribe.segment_minutes", def.Transcribe.SegmentMinutes)
	v.SetDefault("transcribe.max_workers", def.Transcribe.MaxWorkers)
	v.SetDefault("transcribe.speaker_detection", def.Transcribe.SpeakerDetection)
	v.SetDefault("transcribe.summary", def.Transcribe.Summary)
	v.SetDefault("transcribe.request_timeout", def.Transcribe.RequestTimeout)

	v.SetDefault("audio.bitrate", def.Audio.Bitrate)
	v.SetDefault("audio.temp_dir", def.Audio.TempDir)
	v.SetDefault("audio.keep_temp_files", false)

	v.SetDefault("output.directory", def.Output.Directory)
	v.SetDefault("output.keep_audio_copy", def.Output.KeepAudioCopy)

	v.SetDefault("history.path", def.History.Path)
	v.SetDefault("history.max_entries", def.History.MaxEntries)

	v.SetDefault("logging.level", def.Logging.Level)
	v.SetDefault("logging.format", def.Logging.Format)
	v.SetDefault("logging.output", def.Logging.Output)
	v.SetDefault("logging.timestamp", def.Logging.Timestamp)
}

// Validate checks the configuration for invalid values.
func Validate(cfg *Config) error {
	if cfg.Transcribe.Model == "" {
		return fmt.Errorf("transcribe.model is required")
	}
	if cfg.Transcribe.ChatModel == "" {
		return fmt.Errorf("transcribe.chat_model is required")
	}
	if cfg.Transcribe.SegmentMinutes <= 0 {
		return fmt.Errorf("transcribe.segment_minutes must be positive")
	}
	if cfg.Transcribe.MaxWorkers <= 0 {
		return fmt.Errorf("transcribe.max_workers must be positive")
	}
	if cfg.History.MaxEntries <= 0 {
		return fmt.Errorf("history.max_entries must be positive")
	}
	return nil
}
