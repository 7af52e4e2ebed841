package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/toolbridge/toolbridge/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long:  `Manage the toolbridge proxy configuration.`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration interactively",
	Long:  `Initialize configuration by prompting for backend details.`,
	RunE:  runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Display the current configuration.`,
	RunE:  runConfigShow,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration",
	Long:  `Validate the current configuration for errors.`,
	RunE:  runConfigValidate,
}

var configGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate example YAML configuration",
	Long:  `Generate an example YAML configuration file.`,
	RunE:  runConfigGenerate,
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
	configCmd.AddCommand(configGenerateCmd)

	configGenerateCmd.Flags().BoolP("force", "f", false, "Overwrite existing configuration file")
}

func runConfigInit(cmd *cobra.Command, _ []string) error {
	color.Blue("toolbridge Configuration Setup")
	color.Yellow("Follow the prompts to configure your backend.")

	reader := bufio.NewReader(os.Stdin)

	fmt.Print("\nBackend mode (openai or ollama): ")
	backendMode, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("error reading backend mode: %w", err)
	}
	backendMode = strings.TrimSpace(backendMode)

	fmt.Print("Backend base URL: ")
	baseURL, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("error reading base URL: %w", err)
	}
	baseURL = strings.TrimSpace(baseURL)

	fmt.Print("Backend API key (optional): ")
	backendAPIKey, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("error reading backend API key: %w", err)
	}
	backendAPIKey = strings.TrimSpace(backendAPIKey)

	fmt.Print("Proxy API key (optional, for authenticating callers): ")
	proxyAPIKey, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("error reading proxy API key: %w", err)
	}
	proxyAPIKey = strings.TrimSpace(proxyAPIKey)

	cfg := &config.Config{
		Host:           config.DefaultHost,
		Port:           config.DefaultPort,
		APIKey:         proxyAPIKey,
		BackendMode:    config.BackendMode(backendMode),
		BackendBaseURL: baseURL,
		BackendAPIKey:  backendAPIKey,
	}

	if err := cfgMgr.Save(cfg); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	color.Green("Configuration saved successfully to: %s", cfgMgr.GetPath())
	color.Cyan("You can now start the proxy with: toolbridge start")

	return nil
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	if !cfgMgr.Exists() {
		color.Yellow("No configuration found. Run 'toolbridge config init' or 'toolbridge config generate' to create one.")
		return nil
	}

	cfg, err := cfgMgr.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	color.Blue("Current Configuration:")
	fmt.Printf("  %-24s: %s\n", "Host", cfg.Host)
	fmt.Printf("  %-24s: %d\n", "Port", cfg.Port)
	fmt.Printf("  %-24s: %s\n", "Proxy API Key", maskString(cfg.APIKey))
	fmt.Printf("  %-24s: %s\n", "Config Path", cfgMgr.GetPath())

	configType := "JSON"
	if cfgMgr.HasYAML() {
		configType = "YAML"
	}
	fmt.Printf("  %-24s: %s\n", "Format", configType)

	fmt.Println("\nBackend:")
	fmt.Printf("  %-24s: %s\n", "Mode", cfg.BackendMode)
	fmt.Printf("  %-24s: %s\n", "Base URL", cfg.BackendBaseURL)
	fmt.Printf("  %-24s: %s\n", "API Key", maskString(cfg.BackendAPIKey))
	fmt.Printf("  %-24s: %v\n", "Pass Tools", cfg.PassTools)

	fmt.Println("\nTool reinjection:")
	fmt.Printf("  %-24s: %v\n", "Enabled", cfg.Reinjection.Enabled)
	if cfg.Reinjection.Enabled {
		fmt.Printf("  %-24s: %d\n", "Message Count", cfg.Reinjection.MessageCount)
		fmt.Printf("  %-24s: %d\n", "Token Count", cfg.Reinjection.TokenCount)
		fmt.Printf("  %-24s: %s\n", "Type", cfg.Reinjection.Type)
	}

	return nil
}

func runConfigValidate(cmd *cobra.Command, _ []string) error {
	if !cfgMgr.Exists() {
		return errors.New("no configuration found")
	}

	_, err := cfgMgr.Load()
	if err != nil {
		color.Red("Configuration validation failed:")
		fmt.Printf("  - %s\n", err)
		return errors.New("configuration validation failed")
	}

	color.Green("Configuration is valid!")

	return nil
}

func runConfigGenerate(cmd *cobra.Command, _ []string) error {
	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return err
	}

	if cfgMgr.Exists() && !force {
		configType := "JSON"
		if cfgMgr.HasYAML() {
			configType = "YAML"
		}

		color.Yellow("Configuration file already exists (%s format): %s", configType, cfgMgr.GetPath())
		color.Cyan("Use --force to overwrite, or 'toolbridge config show' to view current config")

		return nil
	}

	if err := cfgMgr.CreateExampleYAML(); err != nil {
		return fmt.Errorf("failed to create example configuration: %w", err)
	}

	color.Green("Example YAML configuration created: %s", cfgMgr.GetYAMLPath())
	color.Cyan("\nNext steps:")
	fmt.Println("1. Edit the configuration file to point at your backend")
	fmt.Println("2. Run 'toolbridge config validate' to check your configuration")
	fmt.Println("3. Start the proxy with 'toolbridge start'")

	return nil
}

func maskString(s string) string {
	if s == "" {
		return "(not set)"
	}

	if len(s) <= 8 {
		return strings.Repeat("*", len(s))
	}

	return s[:4] + strings.Repeat("*", len(s)-8) + s[len(s)-4:]
}
