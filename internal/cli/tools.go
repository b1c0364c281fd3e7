package cli

import (
	"fmt"

	"github.com/harun/gofer/internal/config"
	"github.com/harun/gofer/internal/logger"
	"github.com/harun/gofer/pkg/registry"
	"github.com/spf13/cobra"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "Validate and list the tool registry",
	Long: `Load the configured tool registry, validate every entry, and print the
resulting catalog. Fails when any entry is invalid, the same way the
service would refuse the registry at startup.`,
	RunE: runTools,
}

func init() {
	rootCmd.AddCommand(toolsCmd)
}

func runTools(cmd *cobra.Command, args []string) error {
	cfg, err := config.NewLoader(cfgFile).Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.New(logger.Config{Level: "warn", Console: true})
	if err != nil {
		return err
	}
	defer log.Close()

	reg, err := registry.Load(cfg.Tools.RegistryPath, log.GetZerolog())
	if err != nil {
		return fmt.Errorf("registry invalid: %w", err)
	}

	specs := reg.List()
	fmt.Printf("Registry: %s (%d tools)\n", cfg.Tools.RegistryPath, len(specs))
	for _, spec := range specs {
		fmt.Printf("- %s: %s\n    entrypoint: %s\n", spec.Name, spec.Description, spec.ResolvedEntrypoint)
	}

	return nil
}
