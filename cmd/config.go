package cmd

import (
	"fmt"

	"github.com/khrees2412/waterworks/internal/config"
	"github.com/spf13/cobra"
)

var settings *config.Manager

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long:  "View and update configuration settings",
	// Loads the file without validating it, so a broken setting can be fixed
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		m, err := config.Load(configPath)
		if err != nil {
			return err
		}
		settings = m
		return nil
	},
}

var showConfigCmd = &cobra.Command{
	Use:   "show",
	Short: "Display current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println(titleStyle.Render("Configuration"))
		fmt.Printf("%s %s\n\n", labelStyle.Render("Config File:"), settings.Path())

		for _, key := range config.SettableKeys() {
			value := settings.Get(key)
			if config.IsSecret(key) {
				if value != "" {
					value = "✓ Configured"
				} else {
					value = "✗ Not configured"
				}
			}
			fmt.Printf("%s %s\n", labelStyle.Render(key+":"), valueStyle.Render(value))
		}

		if cfg, err := settings.Config(); err != nil {
			fmt.Printf("\n%s %v\n", failStyle.Render("Invalid:"), err)
		} else if cfg.LLM.ResolveAPIKey() != "" {
			fmt.Printf("\n%s %s\n", labelStyle.Render("API key for "+cfg.LLM.Provider+":"), "✓ Configured")
		} else {
			fmt.Printf("\n%s %s\n", labelStyle.Render("API key for "+cfg.LLM.Provider+":"), "✗ Not configured")
		}
		return nil
	},
}

var setConfigCmd = &cobra.Command{
	Use:   "set",
	Short: "Update a configuration value",
	Example: `  waterworks config set --key portal.username --value j2smith
  waterworks config set --key llm.provider --value anthropic
  waterworks config set --key llm.api_key --value sk-...
  waterworks config set --key defaults.folder_name --value "Fall 2026"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		key, _ := cmd.Flags().GetString("key")
		value, _ := cmd.Flags().GetString("value")
		if key == "" {
			return fmt.Errorf("--key is required")
		}

		if err := settings.Set(key, value); err != nil {
			return err
		}
		fmt.Printf("%s %s\n", okStyle.Render("✓ Configuration updated:"), key)
		return nil
	},
}

var pathConfigCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the configuration file path",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(settings.Path())
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(showConfigCmd)
	configCmd.AddCommand(setConfigCmd)
	configCmd.AddCommand(pathConfigCmd)

	setConfigCmd.Flags().String("key", "", "Configuration key")
	setConfigCmd.Flags().String("value", "", "Configuration value")
}
