package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/genius-labs/insight/internal/config"
	"github.com/genius-labs/insight/internal/orchestrator"
	"github.com/genius-labs/insight/internal/tenant"
)

var tenantsCmd = &cobra.Command{
	Use:   "tenants",
	Short: "List configured tenants and validate their persona rosters",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTenants()
	},
}

func init() {
	rootCmd.AddCommand(tenantsCmd)
}

// runTenants loads the configuration, resolves the registry (which
// enforces domain and index-handle uniqueness) and prints each tenant
// with its roster validation report.
func runTenants() error {
	logger := newLogger()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	registry, err := tenant.NewRegistry(cfg.Tenants, logger)
	if err != nil {
		return fmt.Errorf("loading tenant registry: %w", err)
	}

	for _, ten := range registry.All() {
		fmt.Printf("%s (%s)\n", ten.ID, ten.Name)
		fmt.Printf("  industry: %s\n", ten.Industry)
		fmt.Printf("  index:    %s\n", ten.IndexHandle)
		fmt.Printf("  domains:  %s\n", strings.Join(ten.Domains(), ", "))
		fmt.Printf("  modes:    %s\n", strings.Join(ten.EnabledModes(), ", "))

		report := orchestrator.ValidateRoster(ten)
		fmt.Printf("  personas: %d (diversity %.2f)\n",
			report.PersonaCount, report.DiversityRatio)
		if report.Valid() {
			fmt.Println("  roster:   ok")
		} else {
			for _, issue := range report.Issues {
				fmt.Printf("  roster:   %s\n", issue)
			}
		}
		fmt.Println()
	}

	return nil
}
