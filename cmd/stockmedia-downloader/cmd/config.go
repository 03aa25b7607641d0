package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"go-stockmedia-download/internal/models"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"
)

var configFormatFlag string

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the effective configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the merged configuration (keys masked)",
	Long: `Loads configuration from defaults, .env, environment, config file and flags
(in increasing precedence) and prints the result. TOML output can be used
as a starting config.toml.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return writeConfig(cmd.OutOrStdout(), globalConfig, configFormatFlag)
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configShowCmd.Flags().StringVar(&configFormatFlag, "format", "json", "Output format (json, toml)")
}

func writeConfig(w io.Writer, cfg models.Config, format string) error {
	cfg.Credentials = cfg.Credentials.Masked()
	switch strings.ToLower(format) {
	case "json":
		out, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal config to JSON: %w", err)
		}
		_, err = fmt.Fprintln(w, string(out))
		return err
	case "toml":
		if err := toml.NewEncoder(w).Encode(cfg); err != nil {
			return fmt.Errorf("failed to marshal config to TOML: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("unknown format %q (use json or toml)", format)
	}
}
