package common

import (
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/banner"
)

// PrintBanner displays the application startup banner
func PrintBanner(config *Config, logger arbor.ILogger) {
	version := GetVersion()
	build := GetBuild()

	serviceURL := fmt.Sprintf("http://%s:%d", config.Server.Host, config.Server.Port)

	// Create banner with custom styling - GREEN for buildworker
	b := banner.New().
		SetStyle(banner.StyleDouble).
		SetBorderColor(banner.ColorGreen).
		SetTextColor(banner.ColorWhite).
		SetBold(true).
		SetWidth(80)

	// Visual banner still prints to stdout for startup aesthetics
	fmt.Printf("\n")
	b.PrintTopLine()
	b.PrintCenteredText("BUILDWORKER")
	b.PrintCenteredText("Repository Content Build Pipeline")
	b.PrintSeparatorLine()
	b.PrintKeyValue("Version", version, 15)
	b.PrintKeyValue("Build", build, 15)
	b.PrintKeyValue("Environment", config.Environment, 15)
	b.PrintKeyValue("Service URL", serviceURL, 15)
	b.PrintBottomLine()
	fmt.Printf("\n")

	// Log structured startup information through Arbor
	logger.Info().
		Str("version", version).
		Str("build", build).
		Str("environment", config.Environment).
		Str("service_url", serviceURL).
		Str("config_file", "buildworker.toml").
		Msg("Application started")

	// Print configuration details to console
	fmt.Printf("📋 Configuration:\n")
	fmt.Printf("   • Config File: buildworker.toml\n")
	fmt.Printf("   • Web Interface: %s\n", serviceURL)

	// Show log file path if available
	logFilePath := ""
	if loggerWithPath, ok := interface{}(logger).(interface{ GetLogFilePath() string }); ok {
		logFilePath = loggerWithPath.GetLogFilePath()
		if logFilePath != "" {
			fmt.Printf("   • Log File: %s\n", logFilePath)
		}
	}
	fmt.Printf("\n")

	// Log configuration through Arbor
	logger.Info().
		Str("log_file", logFilePath).
		Str("object_store_bucket", config.ObjectStore.Bucket).
		Bool("sqlite_enabled", config.Storage.SQLite.Enabled).
		Bool("embeddings_skipped", config.Embedding.SkipEmbeddings).
		Str("mermaid_strategy", config.Markdown.MermaidStrategy).
		Msg("Configuration loaded")

	printCapabilities(config, logger)
	fmt.Printf("\n")
}

// printCapabilities displays the system capabilities
func printCapabilities(config *Config, logger arbor.ILogger) {
	fmt.Printf("🎯 Enabled Features:\n")

	enabledPlugins := []string{}

	if config.ObjectStore.Bucket != "" {
		fmt.Printf("   • Object store publishing (bucket: %s)\n", config.ObjectStore.Bucket)
		enabledPlugins = append(enabledPlugins, "object-store")
	} else {
		fmt.Printf("   • No object store bucket configured\n")
	}

	if config.Storage.SQLite.Enabled {
		fmt.Printf("   • SQLite database artifact (%s)\n", config.Storage.SQLite.Filename)
		enabledPlugins = append(enabledPlugins, "sqlite")
	}

	if config.Embedding.SkipEmbeddings {
		fmt.Printf("   • Embeddings disabled (SKIP_EMBEDDINGS)\n")
	} else {
		fmt.Printf("   • Cross-post embeddings + similarity (model: %s)\n", config.Embedding.Model)
		enabledPlugins = append(enabledPlugins, "embeddings")
	}

	fmt.Printf("   • Markdown pipeline (mermaid: %s)\n", config.Markdown.MermaidStrategy)

	logger.Info().
		Strs("enabled_plugins", enabledPlugins).
		Str("mermaid_strategy", config.Markdown.MermaidStrategy).
		Msg("System capabilities")
}

// PrintShutdownBanner displays the application shutdown banner
func PrintShutdownBanner(logger arbor.ILogger) {
	b := banner.New().
		SetStyle(banner.StyleDouble).
		SetBorderColor(banner.ColorGreen).
		SetTextColor(banner.ColorWhite).
		SetBold(true).
		SetWidth(42)

	b.PrintTopLine()
	b.PrintCenteredText("SHUTTING DOWN")
	b.PrintCenteredText("BUILDWORKER")
	b.PrintBottomLine()
	fmt.Println()

	logger.Info().Msg("Application shutting down")
}

// PrintColorizedMessage prints a message with specified color to stdout; the logger argument is not used
func PrintColorizedMessage(color, message string, logger arbor.ILogger) {
	fmt.Printf("%s%s%s\n", color, message, banner.ColorReset)
}

// PrintSuccess prints a success message in green and logs it
func PrintSuccess(message string) {
	logger := GetLogger()
	PrintColorizedMessage(banner.ColorGreen, fmt.Sprintf("✓ %s", message), logger)
	logger.Info().Str("type", "success").Msg(message)
}

// PrintError prints an error message in red and logs it
func PrintError(message string) {
	logger := GetLogger()
	PrintColorizedMessage(banner.ColorRed, fmt.Sprintf("✗ %s", message), logger)
	logger.Error().Str("type", "error").Msg(message)
}

// PrintWarning prints a warning message in yellow and logs it
func PrintWarning(message string) {
	logger := GetLogger()
	PrintColorizedMessage(banner.ColorYellow, fmt.Sprintf("⚠ %s", message), logger)
	logger.Warn().Str("type", "warning").Msg(message)
}

// PrintInfo prints an info message in cyan and logs it
func PrintInfo(message string) {
	logger := GetLogger()
	PrintColorizedMessage(banner.ColorCyan, fmt.Sprintf("ℹ %s", message), logger)
	logger.Info().Str("type", "info").Msg(message)
}
