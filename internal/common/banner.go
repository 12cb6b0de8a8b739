package common

import (
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/banner"
)

// PrintBanner displays the application startup banner.
func PrintBanner(config *Config, logger arbor.ILogger) {
	version := GetVersion()
	build := GetBuild()

	serviceURL := fmt.Sprintf("http://%s:%d", config.Server.Host, config.Server.Port)

	b := banner.New().
		SetStyle(banner.StyleDouble).
		SetBorderColor(banner.ColorGreen).
		SetTextColor(banner.ColorWhite).
		SetBold(true).
		SetWidth(80)

	fmt.Printf("\n")
	b.PrintTopLine()
	b.PrintCenteredText("CHRONO-SCRAPER")
	b.PrintCenteredText("Historical Web Archive Ingestion")
	b.PrintSeparatorLine()
	b.PrintKeyValue("Version", version, 15)
	b.PrintKeyValue("Build", build, 15)
	b.PrintKeyValue("Environment", config.Environment, 15)
	b.PrintKeyValue("Service URL", serviceURL, 15)
	b.PrintBottomLine()
	fmt.Printf("\n")

	logger.Info().
		Str("version", version).
		Str("build", build).
		Str("environment", config.Environment).
		Str("service_url", serviceURL).
		Msg("Application started")

	fmt.Printf("Configuration:\n")
	fmt.Printf("   - Web Interface: %s\n", serviceURL)

	logFilePath := ""
	if loggerWithPath, ok := interface{}(logger).(interface{ GetLogFilePath() string }); ok {
		logFilePath = loggerWithPath.GetLogFilePath()
		if logFilePath != "" {
			fmt.Printf("   - Log File: %s\n", logFilePath)
		}
	}
	fmt.Printf("\n")

	logger.Info().
		Str("log_file", logFilePath).
		Bool("wayback_enabled", config.Archive.WaybackEnabled).
		Bool("common_crawl_enabled", config.Archive.CommonCrawlEnabled).
		Str("fallback_policy", config.Archive.FallbackPolicy).
		Str("dual_write_consistency", config.DualWrite.ConsistencyLevel).
		Msg("Configuration loaded")

	printCapabilities(config, logger)
	fmt.Printf("\n")
}

// printCapabilities displays the enabled archive sources and engine features.
func printCapabilities(config *Config, logger arbor.ILogger) {
	fmt.Printf("Enabled capabilities:\n")

	enabledSources := []string{}
	if config.Archive.WaybackEnabled {
		fmt.Printf("   - Wayback Machine archive source\n")
		enabledSources = append(enabledSources, "wayback")
	}
	if config.Archive.CommonCrawlEnabled {
		fmt.Printf("   - Common Crawl archive source\n")
		enabledSources = append(enabledSources, "common_crawl")
	}
	if len(enabledSources) == 0 {
		fmt.Printf("   - No archive sources enabled\n")
	}

	fmt.Printf("   - Job engine: %d quick / %d scraping / %d indexing / %d default workers\n",
		config.JobEngine.QuickWorkers, config.JobEngine.ScrapingWorkers,
		config.JobEngine.IndexingWorkers, config.JobEngine.DefaultWorkers)

	if config.CDC.Enabled {
		fmt.Printf("   - Change data capture bridge enabled\n")
	}
	if config.Consistency.Enabled {
		fmt.Printf("   - Consistency validator scheduled: %s\n", config.Consistency.Schedule)
	}

	logger.Info().
		Strs("enabled_sources", enabledSources).
		Str("dual_write_consistency", config.DualWrite.ConsistencyLevel).
		Bool("cdc_enabled", config.CDC.Enabled).
		Bool("consistency_enabled", config.Consistency.Enabled).
		Msg("System capabilities")
}

// PrintShutdownBanner displays the application shutdown banner.
func PrintShutdownBanner(logger arbor.ILogger) {
	b := banner.New().
		SetStyle(banner.StyleDouble).
		SetBorderColor(banner.ColorGreen).
		SetTextColor(banner.ColorWhite).
		SetBold(true).
		SetWidth(42)

	b.PrintTopLine()
	b.PrintCenteredText("SHUTTING DOWN")
	b.PrintCenteredText("CHRONO-SCRAPER")
	b.PrintBottomLine()
	fmt.Println()

	logger.Info().Msg("Application shutting down")
}

// PrintColorizedMessage prints a message with the given color and logs it.
func PrintColorizedMessage(color, message string, logger arbor.ILogger) {
	fmt.Printf("%s%s%s\n", color, message, banner.ColorReset)
}

// PrintSuccess prints a success message in green and logs it.
func PrintSuccess(message string) {
	logger := GetLogger()
	PrintColorizedMessage(banner.ColorGreen, fmt.Sprintf("[ok] %s", message), logger)
	logger.Info().Str("type", "success").Msg(message)
}

// PrintError prints an error message in red and logs it.
func PrintError(message string) {
	logger := GetLogger()
	PrintColorizedMessage(banner.ColorRed, fmt.Sprintf("[error] %s", message), logger)
	logger.Error().Str("type", "error").Msg(message)
}

// PrintWarning prints a warning message in yellow and logs it.
func PrintWarning(message string) {
	logger := GetLogger()
	PrintColorizedMessage(banner.ColorYellow, fmt.Sprintf("[warn] %s", message), logger)
	logger.Warn().Str("type", "warning").Msg(message)
}

// PrintInfo prints an info message in cyan and logs it.
func PrintInfo(message string) {
	logger := GetLogger()
	PrintColorizedMessage(banner.ColorCyan, fmt.Sprintf("[info] %s", message), logger)
	logger.Info().Str("type", "info").Msg(message)
}
