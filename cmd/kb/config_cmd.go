package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/thesandybridge/kb-index/internal/config"
)

var (
	configShow   bool
	configAPIKey string
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the configuration or store the API key",
	Args:  cobra.NoArgs,
	RunE:  runConfig,
}

func init() {
	configCmd.Flags().BoolVar(&configShow, "show", false, "print the effective configuration")
	configCmd.Flags().StringVar(&configAPIKey, "set-api-key", "", "store the OpenAI API key in the config file")
	rootCmd.AddCommand(configCmd)
}

func runConfig(cmd *cobra.Command, args []string) error {
	cfg, path, err := loadConfig()
	if err != nil {
		return err
	}
	if configAPIKey != "" {
		if err := config.SetAPIKey(path, configAPIKey); err != nil {
			return err
		}
		fmt.Println(successStyle.Render("API key saved to " + path))
		if !configShow {
			return nil
		}
		if cfg, _, err = loadConfig(); err != nil {
			return err
		}
	}

	data, err := yaml.Marshal(cfg.Redacted())
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	fmt.Println(dimStyle.Render("# " + path))
	fmt.Print(string(data))
	return nil
}
