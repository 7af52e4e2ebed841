package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/toolbridge/toolbridge/internal/config"
)

const (
	AppName = "toolbridge"
	Version = "0.1.0"
)

var (
	logger  *slog.Logger
	homeDir string
	baseDir string
	cfgMgr  *config.Manager
)

func init() {
	// Initialize logger
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	logger = slog.New(handler)

	// Setup directories with backward compatibility
	var err error

	homeDir, err = os.UserHomeDir()
	if err != nil {
		logger.Error("Failed to get home directory", "error", err)
		os.Exit(1)
	}

	baseDir = getConfigDirectory(homeDir)
	cfgMgr = config.NewManager(baseDir)
}

var rootCmd = &cobra.Command{
	Use:     "toolbridge",
	Short:   "toolbridge - dialect-translating chat-completion proxy",
	Long:    `An HTTP proxy that translates chat-completion requests and responses between the OpenAI and Ollama wire dialects, retrofitting structured tool calling onto backends that don't speak it natively.`,
	Version: Version,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logger.Error("Command execution failed", "error", err)
		os.Exit(1)
	}
}

// getConfigDirectory returns the directory toolbridge's config file
// lives in.
func getConfigDirectory(homeDir string) string {
	return filepath.Join(homeDir, "."+AppName)
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable verbose logging")
	rootCmd.PersistentFlags().BoolP("log-file", "l", false, "enable file logging")

	// Add subcommands
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(configCmd)
}

func setupLogging(verbose, logFile bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}

	if logFile {
		// TODO: Implement file logging
		color.Yellow("File logging not yet implemented, using stdout")
	}

	handler := slog.NewTextHandler(os.Stdout, opts)
	logger = slog.New(handler)
}

func ensureConfigExists() error {
	if !cfgMgr.Exists() {
		color.Yellow("Configuration not found, starting setup...")
		return promptForConfig()
	}

	return nil
}

func promptForConfig() error {
	fmt.Println("Please run 'toolbridge config generate' to create a starting configuration")
	return errors.New("configuration required")
}
