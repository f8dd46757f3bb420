package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	// Sites
	ZoneURL     string
	WawacityURL string
	MaxPages    int // Listing pages fetched per site and query

	// Link resolution
	DLProtectResolverURL string
	ResolveAtIndex       bool // Resolve hoster links at search time instead of download time
	TMDBAPIKey           string

	// Debrid services
	AllDebridAPIKey  string
	RealDebridAPIKey string
	DebridLinkAPIKey string

	// External download clients
	SynologyURL         string
	SynologyUsername    string
	SynologyPassword    string
	SynologyDestination string
	JDownloaderMode     string
	JDownloaderWatchDir string
	JDownloaderEndpoint string
	Aria2RPCURL         string
	Aria2Secret         string
	WgetEnabled         bool
	CurlEnabled         bool

	// Built-in download pipeline
	DownloadDir            string
	DownloadTool           string // wget or curl
	MaxConcurrentDownloads int
	StallTimeoutMinutes    int
	RetentionDays          int

	// Watch directory
	WatchDir             string
	WatchIntervalSeconds int
	KeepProcessed        bool

	// WebUI emulation
	QbtUsername string
	QbtPassword string

	// Server
	ServerPort string

	// Paths
	BlacklistFile string
	DatabaseFile  string

	// Logging
	LogLevel string
	LogFile  string
}

// Load loads configuration from environment variables and .env file
func Load() (*Config, error) {
	// Setup viper FIRST to load .env file
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()

	// Load .env file if it exists (ignore if not found)
	_ = viper.ReadInConfig()

	// Set defaults
	viper.SetDefault("MAX_PAGES", 3)
	viper.SetDefault("RESOLVE_AT", "download")
	viper.SetDefault("DOWNLOAD_TOOL", "wget")
	viper.SetDefault("MAX_CONCURRENT_DOWNLOADS", 3)
	viper.SetDefault("STALL_TIMEOUT_MINUTES", 30)
	viper.SetDefault("RETENTION_DAYS", 30)
	viper.SetDefault("WATCH_INTERVAL_SECONDS", 30)
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("LOG_LEVEL", "info")

	// NOW read CONFIG_DIR from viper (which has loaded .env file)
	configDir := viper.GetString("CONFIG_DIR")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(homeDir, ".config", "ddlarr")
	} else {
		// Convert relative path to absolute path
		absPath, err := filepath.Abs(configDir)
		if err != nil {
			return nil, fmt.Errorf("failed to get absolute path for CONFIG_DIR: %w", err)
		}
		configDir = absPath
	}

	// Create config directory if it doesn't exist
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	downloadDir := viper.GetString("DOWNLOAD_DIR")
	if downloadDir == "" {
		downloadDir = filepath.Join(configDir, "downloads")
	}
	watchDir := viper.GetString("WATCH_DIR")
	if watchDir == "" {
		watchDir = filepath.Join(configDir, "watch")
	}

	config := &Config{
		// Sites
		ZoneURL:     viper.GetString("ZONE_URL"),
		WawacityURL: viper.GetString("WAWACITY_URL"),
		MaxPages:    viper.GetInt("MAX_PAGES"),

		// Link resolution
		DLProtectResolverURL: viper.GetString("DLPROTECT_RESOLVER_URL"),
		ResolveAtIndex:       viper.GetString("RESOLVE_AT") == "index",
		TMDBAPIKey:           viper.GetString("TMDB_API_KEY"),

		// Debrid services
		AllDebridAPIKey:  viper.GetString("ALLDEBRID_API_KEY"),
		RealDebridAPIKey: viper.GetString("REALDEBRID_API_KEY"),
		DebridLinkAPIKey: viper.GetString("DEBRIDLINK_API_KEY"),

		// External download clients
		SynologyURL:         viper.GetString("SYNOLOGY_URL"),
		SynologyUsername:    viper.GetString("SYNOLOGY_USERNAME"),
		SynologyPassword:    viper.GetString("SYNOLOGY_PASSWORD"),
		SynologyDestination: viper.GetString("SYNOLOGY_DESTINATION"),
		JDownloaderMode:     viper.GetString("JDOWNLOADER_MODE"),
		JDownloaderWatchDir: viper.GetString("JDOWNLOADER_WATCH_DIR"),
		JDownloaderEndpoint: viper.GetString("JDOWNLOADER_ENDPOINT"),
		Aria2RPCURL:         viper.GetString("ARIA2_RPC_URL"),
		Aria2Secret:         viper.GetString("ARIA2_SECRET"),
		WgetEnabled:         viper.GetBool("WGET_ENABLED"),
		CurlEnabled:         viper.GetBool("CURL_ENABLED"),

		// Built-in download pipeline
		DownloadDir:            downloadDir,
		DownloadTool:           viper.GetString("DOWNLOAD_TOOL"),
		MaxConcurrentDownloads: viper.GetInt("MAX_CONCURRENT_DOWNLOADS"),
		StallTimeoutMinutes:    viper.GetInt("STALL_TIMEOUT_MINUTES"),
		RetentionDays:          viper.GetInt("RETENTION_DAYS"),

		// Watch directory
		WatchDir:             watchDir,
		WatchIntervalSeconds: viper.GetInt("WATCH_INTERVAL_SECONDS"),
		KeepProcessed:        viper.GetBool("KEEP_PROCESSED"),

		// WebUI emulation
		QbtUsername: viper.GetString("QBT_USERNAME"),
		QbtPassword: viper.GetString("QBT_PASSWORD"),

		// Server
		ServerPort: viper.GetString("SERVER_PORT"),

		// Paths
		BlacklistFile: filepath.Join(configDir, "blacklist.txt"),
		DatabaseFile:  filepath.Join(configDir, "ddlarr.db"),

		// Logging
		LogLevel: viper.GetString("LOG_LEVEL"),
		LogFile:  viper.GetString("LOG_FILE"),
	}

	// Validate required fields
	if config.ZoneURL == "" && config.WawacityURL == "" {
		return nil, fmt.Errorf("at least one site URL is required (ZONE_URL or WAWACITY_URL)")
	}
	if config.DownloadTool != "wget" && config.DownloadTool != "curl" {
		return nil, fmt.Errorf("DOWNLOAD_TOOL must be wget or curl, got %q", config.DownloadTool)
	}

	return config, nil
}
