package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/echolab/transcriptor/pkg/history"
	"github.com/echolab/transcriptor/pkg/keypool"
	"github.com/echolab/transcriptor/pkg/logger"
	"github.com/echolab/transcriptor/pkg/pipeline"
	"github.com/echolab/transcriptor/pkg/providers/groq"
)

// transcribeCmd represents the transcribe command
var transcribeCmd = &cobra.Command{
	Use:   "transcribe [file-or-url]",
	Short: "Transcribe an audio file or remote recording",
	Long: `Transcribe a local audio file or a direct http(s) audio URL.

The job name primes an AI keyword-research pass, so naming the company or
call produces noticeably better entity and speaker accuracy.

Examples:
  # Transcribe a local file
  transcriptor transcribe call.mp3 --name "Acme Corp Q3 Earnings"

  # Transcribe straight from a URL
  transcriptor transcribe https://example.com/call.mp3 --name "Acme Corp Q3"

  # Plain transcript only, no speaker pass or summary
  transcriptor transcribe call.mp3 --no-speakers --no-summary`,
	Args: cobra.ExactArgs(1),
	RunE: runTranscribe,
}

func init() {
	rootCmd.AddCommand(transcribeCmd)

	transcribeCmd.Flags().StringP("name", "n", "", "job name (company or meeting title)")
	transcribeCmd.Flags().StringP("output", "o", "", "output directory")

	transcribeCmd.Flags().String("model", "", "speech model")
	transcribeCmd.Flags().String("chat-model", "", "chat model for speakers, keywords and summary")
	transcribeCmd.Flags().Int("segment-minutes", 0, "segment length floor in minutes")
	transcribeCmd.Flags().Int("workers", 0, "concurrency ceiling")

	transcribeCmd.Flags().Bool("no-speakers", false, "skip the speaker attribution pass")
	transcribeCmd.Flags().Bool("no-summary", false, "skip the executive summary")
	transcribeCmd.Flags().Bool("no-keywords", false, "skip keyword research")
	transcribeCmd.Flags().Bool("keep-audio", true, "keep a compressed MP3 copy next to the transcript")
	transcribeCmd.Flags().Bool("keep-temp", false, "keep temporary segment files")

	_ = viper.BindPFlag("output.directory", transcribeCmd.Flags().Lookup("output"))
	_ = viper.BindPFlag("transcribe.model", transcribeCmd.Flags().Lookup("model"))
	_ = viper.BindPFlag("transcribe.chat_model", transcribeCmd.Flags().Lookup("chat-model"))
	_ = viper.BindPFlag("transcribe.segment_minutes", transcribeCmd.Flags().Lookup("segment-minutes"))
	_ = viper.BindPFlag("transcribe.max_workers", transcribeCmd.Flags().Lookup("workers"))
	_ = viper.BindPFlag("output.keep_audio_copy", transcribeCmd.Flags().Lookup("keep-audio"))
	_ = viper.BindPFlag("audio.keep_temp_files", transcribeCmd.Flags().Lookup("keep-temp"))
}

func runTranscribe(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("transcribe")
	source := args[0]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if noSpeakers, _ := cmd.Flags().GetBool("no-speakers"); noSpeakers {
		cfg.Transcribe.SpeakerDetection = false
	}
	if noSummary, _ := cmd.Flags().GetBool("no-summary"); noSummary {
		cfg.Transcribe.Summary = false
	}
	if noKeywords, _ := cmd.Flags().GetBool("no-keywords"); noKeywords {
		cfg.Transcribe.Keywords = false
	}

	pool := keypool.New(cfg.Keys.Paid, cfg.Keys.Free)
	if pool.Size() == 0 {
		return fmt.Errorf("no API keys configured; set keys.paid/keys.free in the config file or use --paid-key/--free-key")
	}
	log.Info().
		Int("paid", len(cfg.Keys.Paid)).
		Int("free", len(cfg.Keys.Free)).
		Int("primary", pool.PrimaryCount()).
		Msg("Credential pool ready")

	name, _ := cmd.Flags().GetString("name")
	if name == "" && !strings.HasPrefix(source, "http") {
		base := filepath.Base(source)
		name = strings.TrimSuffix(base, filepath.Ext(base))
	}
	job := pipeline.NewJob(name, source)

	store, err := history.Open(cfg.History.Path, cfg.History.MaxEntries)
	if err != nil {
		log.Warn().Err(err).Msg("History unavailable, continuing without")
	} else {
		defer func() {
			_ = store.Close()
		}()
	}

	opts := []pipeline.Option{}
	if store != nil {
		opts = append(opts, pipeline.WithHistory(store))
	}
	provider := groq.NewProvider(groq.WithTimeout(cfg.Transcribe.RequestTimeout))
	p := pipeline.New(cfg, pool, provider, opts...)

	// First Ctrl-C cancels the job cooperatively; a second one kills the
	// process the usual way.
	ctx := context.Background()
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)
	go func() {
		<-sig
		log.Warn().Str("job", job.ID).Msg("Interrupt received, cancelling job")
		job.Cancel()
		signal.Stop(sig)
	}()

	outputs, err := p.Process(ctx, job)
	if err != nil {
		return fmt.Errorf("job %s %s: %w", job.ID, job.State(), err)
	}

	fmt.Printf("Transcript: %s\n", outputs.TranscriptPath)
	if outputs.SummaryPath != "" {
		fmt.Printf("Summary:    %s\n", outputs.SummaryPath)
	}
	if outputs.KeywordsPath != "" {
		fmt.Printf("Keywords:   %s\n", outputs.KeywordsPath)
	}
	if outputs.AudioPath != "" {
		fmt.Printf("Audio copy: %s\n", outputs.AudioPath)
	}
	return nil
}
