package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/routergen/internal/config"
)

// =============================================================================
// Config Handlers
// =============================================================================

func runConfigSchema(cmd *cobra.Command, args []string) error {
	schema, err := config.JSONSchema()
	if err != nil {
		return fmt.Errorf("build schema: %w", err)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(schema))
	return err
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	path := resolveConfigPath(configPath)
	cfg, err := loadConfig()
	if err != nil {
		var verr *config.ValidationError
		if errors.As(err, &verr) {
			for _, issue := range verr.Issues {
				fmt.Fprintf(cmd.ErrOrStderr(), "  - %s\n", issue)
			}
		}
		return err
	}

	out := cmd.OutOrStdout()
	if path == "" {
		fmt.Fprintln(out, "No config file found; built-in defaults are valid")
	} else {
		fmt.Fprintf(out, "%s is valid\n", path)
	}
	names, err := cfg.ProvidersInUse()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Providers in use: %v\n", names)
	if err := cfg.RequireProviderKeys(); err != nil {
		fmt.Fprintf(out, "Warning: generate will fail until keys are set: %v\n", err)
	}
	return nil
}
