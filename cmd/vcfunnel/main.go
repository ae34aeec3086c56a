package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"vcfunnel/internal/bigquery"
	"vcfunnel/internal/cache"
	"vcfunnel/internal/config"
	"vcfunnel/internal/funnel"
	"vcfunnel/internal/report"
)

var (
	version = "0.1.0"
	rootCmd = &cobra.Command{
		Use:   "vcfunnel",
		Short: "Voice clone funnel report generator for GA4 event data",
		Long: `vcfunnel computes the voice clone conversion funnel from a GA4 BigQuery
events export and writes the dashboard JSON artifact.

Examples:
  vcfunnel config set --client-id <id> --client-secret <secret> --refresh-token <token> \
      --project <gcp-project> --dataset <analytics_dataset>
  vcfunnel report
  vcfunnel report --period last_7_days --output /tmp/dashboard.json
  vcfunnel cache stats`,
		Version: version,
	}

	configCmd = &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long:  "Configure BigQuery credentials, export location, and report options",
	}

	cacheCmd = &cobra.Command{
		Use:   "cache",
		Short: "Manage the local result cache",
		Long:  "Inspect and clear the DuckDB cache of aggregate query results",
	}
)

func init() {
	// Config subcommands
	configSetCmd := &cobra.Command{
		Use:   "set",
		Short: "Set configuration values",
		Long:  "Set OAuth credentials, the GA4 export location, and report options",
		Run:   configSetCmdHandler,
	}
	configSetCmd.Flags().String("client-id", "", "Google OAuth client ID")
	configSetCmd.Flags().String("client-secret", "", "Google OAuth client secret")
	configSetCmd.Flags().String("refresh-token", "", "Google OAuth refresh token")
	configSetCmd.Flags().String("project", "", "GCP project ID hosting the GA4 export")
	configSetCmd.Flags().String("dataset", "", "GA4 analytics dataset ID (e.g. analytics_510746763)")
	configSetCmd.Flags().String("output", "", "Report artifact path")
	configSetCmd.Flags().Int("timeout", 0, "Per-request timeout in seconds")
	configSetCmd.Flags().Int("retries", 0, "Retry attempts per query")
	configSetCmd.Flags().Bool("no-cache", false, "Disable the local result cache")

	configShowCmd := &cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		Long:  "Display the current configuration with credentials redacted",
		Run:   configShowCmdHandler,
	}

	configCmd.AddCommand(configSetCmd, configShowCmd)

	// Report command
	reportCmd := &cobra.Command{
		Use:   "report",
		Short: "Generate the funnel report",
		Long:  "Compute the voice clone funnel for all periods and write the JSON artifact",
		Run:   reportCmdHandler,
	}
	reportCmd.Flags().String("period", "", "Compute a single period (yesterday, last_3_days, last_7_days)")
	reportCmd.Flags().String("output", "", "Override the configured artifact path")
	reportCmd.Flags().Bool("no-cache", false, "Bypass the local result cache for this run")

	// Cache subcommands
	cacheStatsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show cache statistics",
		Run:   cacheStatsCmdHandler,
	}
	cacheClearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove all cached query results",
		Run:   cacheClearCmdHandler,
	}
	cacheCmd.AddCommand(cacheStatsCmd, cacheClearCmd)

	rootCmd.AddCommand(configCmd, reportCmd, cacheCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func configSetCmdHandler(cmd *cobra.Command, args []string) {
	appConfig, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if v, _ := cmd.Flags().GetString("client-id"); v != "" {
		appConfig.ClientID = v
	}
	if v, _ := cmd.Flags().GetString("client-secret"); v != "" {
		appConfig.ClientSecret = v
	}
	if v, _ := cmd.Flags().GetString("refresh-token"); v != "" {
		appConfig.RefreshToken = v
	}
	if v, _ := cmd.Flags().GetString("project"); v != "" {
		appConfig.ProjectID = v
	}
	if v, _ := cmd.Flags().GetString("dataset"); v != "" {
		appConfig.DatasetID = v
	}
	if v, _ := cmd.Flags().GetString("output"); v != "" {
		appConfig.OutputPath = v
	}
	if v, _ := cmd.Flags().GetInt("timeout"); v > 0 {
		appConfig.RequestTimeoutSeconds = v
	}
	if v, _ := cmd.Flags().GetInt("retries"); v > 0 {
		appConfig.RetryAttempts = v
	}
	if noCache, _ := cmd.Flags().GetBool("no-cache"); noCache {
		appConfig.CacheEnabled = false
	}

	if err := config.SaveConfig(appConfig); err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to save config: %v\n", err)
		os.Exit(1)
	}

	configPath, _ := config.GetConfigPath()
	fmt.Println("✅ Configuration saved")
	fmt.Printf("📁 Config file: %s\n", configPath)
}

func configShowCmdHandler(cmd *cobra.Command, args []string) {
	appConfig, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to load config: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("🔧 vcfunnel Configuration")
	fmt.Println()

	if appConfig.HasCredentials() {
		fmt.Println("🔑 OAuth credentials: configured")
	} else {
		fmt.Println("❌ OAuth credentials: not configured")
		fmt.Println("💡 Run 'vcfunnel config set --client-id <id> --client-secret <secret> --refresh-token <token>'")
	}

	if appConfig.HasExportLocation() {
		fmt.Printf("📊 Export: %s.%s\n", appConfig.ProjectID, appConfig.DatasetID)
	} else {
		fmt.Println("❌ Export location: not configured")
		fmt.Println("💡 Run 'vcfunnel config set --project <gcp-project> --dataset <analytics_dataset>'")
	}

	fmt.Printf("📄 Output: %s\n", appConfig.OutputPathOrDefault())

	if appConfig.CacheEnabled {
		fmt.Println("💾 Cache: enabled")
	} else {
		fmt.Println("💾 Cache: disabled")
	}

	fmt.Println()
	fmt.Printf("📅 Created: %s\n", appConfig.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("🔄 Updated: %s\n", appConfig.UpdatedAt.Format("2006-01-02 15:04:05"))
}

func reportCmdHandler(cmd *cobra.Command, args []string) {
	appConfig, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if !appConfig.HasCredentials() {
		fmt.Fprintf(os.Stderr, "Error: OAuth credentials not configured\n")
		fmt.Fprintf(os.Stderr, "💡 Run 'vcfunnel config set --client-id <id> --client-secret <secret> --refresh-token <token>' first\n")
		os.Exit(1)
	}
	if !appConfig.HasExportLocation() {
		fmt.Fprintf(os.Stderr, "Error: GA4 export location not configured\n")
		fmt.Fprintf(os.Stderr, "💡 Run 'vcfunnel config set --project <gcp-project> --dataset <analytics_dataset>' first\n")
		os.Exit(1)
	}

	var periods []funnel.Period
	if periodFlag, _ := cmd.Flags().GetString("period"); periodFlag != "" {
		period, err := parsePeriod(periodFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		periods = append(periods, period)
	}

	outputPath := appConfig.OutputPathOrDefault()
	if v, _ := cmd.Flags().GetString("output"); v != "" {
		outputPath = v
	}

	// The run is abortable: Ctrl-C cancels in-flight queries and nothing is
	// written.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := buildStore(cmd, appConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer closeStore()

	fmt.Println("🚀 Generating voice clone funnel report...")

	assembler := funnel.NewAssembler(store, nil)
	assembler.Progress = func(format string, args ...any) {
		fmt.Printf(format+"\n", args...)
	}

	started := time.Now()
	result, err := assembler.Assemble(ctx, periods...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Report generation failed: %v\n", err)
		os.Exit(1)
	}

	if err := report.WriteJSON(result, outputPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to write report: %v\n", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Printf("✅ Report written to %s (%s)\n", outputPath, time.Since(started).Round(time.Millisecond))
}

// buildStore wires the BigQuery store, wrapped in the DuckDB cache unless
// disabled. The returned closer releases the cache connection.
func buildStore(cmd *cobra.Command, appConfig *config.AppConfig) (funnel.Store, func(), error) {
	authClient, err := bigquery.NewAuthClient(bigquery.Credentials{
		ClientID:     appConfig.ClientID,
		ClientSecret: appConfig.ClientSecret,
		RefreshToken: appConfig.RefreshToken,
	})
	if err != nil {
		return nil, nil, err
	}

	client, err := bigquery.NewClient(authClient, appConfig.ProjectID, bigquery.Options{
		RequestTimeout: appConfig.RequestTimeout(),
		RetryAttempts:  appConfig.RetryAttempts,
	})
	if err != nil {
		return nil, nil, err
	}

	store, err := bigquery.NewStore(client, appConfig.ProjectID, appConfig.DatasetID)
	if err != nil {
		return nil, nil, err
	}

	noCache, _ := cmd.Flags().GetBool("no-cache")
	if noCache || !appConfig.CacheEnabled {
		return store, func() {}, nil
	}

	cacheClient, err := openCache(appConfig)
	if err != nil {
		// A broken cache should not block the report; run uncached.
		fmt.Printf("⚠️  Cache unavailable, running uncached: %v\n", err)
		return store, func() {}, nil
	}

	cached := cache.NewStore(store, cacheClient, appConfig.CacheTTL())
	return cached, func() { cacheClient.Close() }, nil
}

func openCache(appConfig *config.AppConfig) (*cache.Client, error) {
	path := appConfig.CachePath
	if path == "" {
		defaultPath, err := cache.DefaultPath()
		if err != nil {
			return nil, err
		}
		path = defaultPath
	}
	return cache.NewClient(path)
}

func cacheStatsCmdHandler(cmd *cobra.Command, args []string) {
	cacheClient := mustOpenCache()
	defer cacheClient.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stats, err := cacheClient.GetStats(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to read cache stats: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("💾 Cache Statistics")
	fmt.Println()
	fmt.Printf("📁 Location: %s\n", cacheClient.Path())
	fmt.Printf("📦 Entries: %d\n", stats.EntriesCount)
	fmt.Printf("🎯 Hits: %d  Misses: %d  (%.1f%% hit rate)\n", stats.TotalHits, stats.TotalMisses, stats.HitRate)
	if stats.LastCleanup != nil {
		fmt.Printf("🧹 Last cleanup: %s\n", stats.LastCleanup.Format("2006-01-02 15:04:05"))
	}
}

func cacheClearCmdHandler(cmd *cobra.Command, args []string) {
	cacheClient := mustOpenCache()
	defer cacheClient.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	deleted, err := cacheClient.Clear(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to clear cache: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("🧹 Removed %d cached result(s)\n", deleted)
}

func mustOpenCache() *cache.Client {
	appConfig, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to load config: %v\n", err)
		os.Exit(1)
	}

	cacheClient, err := openCache(appConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: Failed to open cache: %v\n", err)
		os.Exit(1)
	}
	return cacheClient
}

func parsePeriod(value string) (funnel.Period, error) {
	for _, period := range funnel.Periods() {
		if string(period) == value {
			return period, nil
		}
	}
	return "", fmt.Errorf("unknown period %q (valid: yesterday, last_3_days, last_7_days)", value)
}
