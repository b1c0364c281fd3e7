package cli

import (
	"fmt"

	"github.com/harun/gofer/internal/config"
	"github.com/spf13/cobra"
)

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Write a default configuration file",
	Long: `Write the default configuration to $HOME/.gofer/gofer.json (or the path
given with --config) as a starting point. Existing files are not
overwritten.`,
	RunE: runConfigure,
}

func init() {
	rootCmd.AddCommand(configureCmd)
}

func runConfigure(cmd *cobra.Command, args []string) error {
	loader := config.NewLoader(cfgFile)

	existing, err := loader.Load()
	if err == nil && existing.Telegram.BotToken != "" {
		return fmt.Errorf("configuration already exists, refusing to overwrite")
	}

	cfg := config.DefaultConfig()
	if err := loader.Save(cfg); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	fmt.Println("Default configuration written. Set telegram.bot_token and providers before starting.")
	return nil
}
