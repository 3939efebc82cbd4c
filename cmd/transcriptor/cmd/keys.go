package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/echolab/transcriptor/pkg/providers/groq"
)

// keysCmd represents the keys command
var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Inspect and validate configured API keys",
	Long: `Check every configured API key against the provider and report which
tier it belongs to and whether it is accepted.`,
	RunE: runKeys,
}

func init() {
	rootCmd.AddCommand(keysCmd)
}

func runKeys(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	total := len(cfg.Keys.Paid) + len(cfg.Keys.Free)
	if total == 0 {
		return fmt.Errorf("no API keys configured")
	}

	provider := groq.NewProvider(groq.WithTimeout(20 * time.Second))
	ctx, cancel := context.WithTimeout(cmd.Context(), time.Duration(total)*25*time.Second)
	defer cancel()

	check := func(tier string, keys []string) {
		for i, key := range keys {
			label := fmt.Sprintf("%s[%d] %s", tier, i, maskKey(key))
			models, err := provider.ValidateKey(ctx, key)
			if err != nil {
				fmt.Printf("  %-28s INVALID (%v)\n", label, err)
				continue
			}
			fmt.Printf("  %-28s ok (%d models)\n", label, len(models))
		}
	}

	fmt.Printf("Checking %d keys against %s:\n", total, provider.Name())
	check("paid", cfg.Keys.Paid)
	check("free", cfg.Keys.Free)
	return nil
}

// maskKey shows just enough of a key to tell them apart.
func maskKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "…" + key[len(key)-4:]
}
