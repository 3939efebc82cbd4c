package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/echolab/transcriptor/pkg/config"
	"github.com/echolab/transcriptor/pkg/logger"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "transcriptor",
	Short: "Rate-limit-aware parallel audio transcription",
	Long: `transcriptor turns long recordings (earnings calls, meetings, interviews)
into speaker-labeled text transcripts.

It splits the audio into fixed-length segments, transcribes them in
parallel across a rotating pool of API keys, overlays speaker names with
a chat model, and renders a plain-text bundle with an optional executive
summary.

Features:
- Paid/free credential pools with automatic rotation and cooldowns
- Parallel segment transcription sized to available keys
- Speaker attribution that never rewrites transcript text
- Company keyword research to prime the speech model
- Local job history and live progress reporting`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main().
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.transcriptor.yaml)")
	rootCmd.PersistentFlags().StringSlice("paid-key", nil, "paid API key (repeatable)")
	rootCmd.PersistentFlags().StringSlice("free-key", nil, "free API key (repeatable)")
	rootCmd.PersistentFlags().String("temp-dir", "", "temporary directory for processing")

	// Logging flags
	rootCmd.PersistentFlags().String("log-level", "info", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "console", "log format (console, json)")
	rootCmd.PersistentFlags().String("log-output", "stderr", "log output (stdout, stderr, file path)")
	rootCmd.PersistentFlags().Bool("log-caller", false, "include caller information in logs")

	// Bind flags to viper
	_ = viper.BindPFlag("keys.paid", rootCmd.PersistentFlags().Lookup("paid-key"))
	_ = viper.BindPFlag("keys.free", rootCmd.PersistentFlags().Lookup("free-key"))
	_ = viper.BindPFlag("audio.temp_dir", rootCmd.PersistentFlags().Lookup("temp-dir"))

	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("logging.format", rootCmd.PersistentFlags().Lookup("log-format"))
	_ = viper.BindPFlag("logging.output", rootCmd.PersistentFlags().Lookup("log-output"))
	_ = viper.BindPFlag("logging.caller", rootCmd.PersistentFlags().Lookup("log-caller"))

	viper.SetEnvPrefix("TRANSCRIPTOR")
	viper.AutomaticEnv()
}

// initConfig reads in config file and ENV variables.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".transcriptor")
	}

	configFileUsed := ""
	if err := viper.ReadInConfig(); err == nil {
		configFileUsed = viper.ConfigFileUsed()
	}

	initLogger()

	if configFileUsed != "" {
		logger.Info().Str("config_file", configFileUsed).Msg("Loaded configuration file")
	}
}

// initLogger initializes the logger based on configuration
func initLogger() {
	cfg := config.DefaultConfig()

	cfg.Logging.Level = viper.GetString("logging.level")
	cfg.Logging.Format = viper.GetString("logging.format")
	cfg.Logging.Output = viper.GetString("logging.output")
	cfg.Logging.Caller = viper.GetBool("logging.caller")

	if err := logger.Initialize(&cfg.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig unmarshals the full viper state into a validated Config.
func loadConfig() (*config.Config, error) {
	config.SetDefaults(viper.GetViper())
	cfg := config.DefaultConfig()
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
