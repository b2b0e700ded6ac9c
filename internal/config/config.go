package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Version is the application version, set at build time.
var Version = "dev"

// Config holds all application configuration.
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	Plex          PlexConfig          `mapstructure:"plex"`
	Radarr        ArrConfig           `mapstructure:"radarr"`
	Sonarr        ArrConfig           `mapstructure:"sonarr"`
	OpenSubtitles OpenSubtitlesConfig `mapstructure:"opensubtitles"`
	Dedup         DedupConfig         `mapstructure:"dedup"`
	Subtitles     SubtitlesConfig     `mapstructure:"subtitles"`
	Schedule      ScheduleConfig      `mapstructure:"schedule"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// DatabaseConfig holds the scan history database configuration.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// PlexConfig holds Plex Media Server connection settings.
type PlexConfig struct {
	URL          string `mapstructure:"url"`
	Token        string `mapstructure:"token"`
	MovieLibrary string `mapstructure:"movie_library"`
	TVLibrary    string `mapstructure:"tv_library"`
	Timeout      int    `mapstructure:"timeout"` // seconds
}

// ArrConfig holds connection settings for a Radarr or Sonarr instance.
type ArrConfig struct {
	URL     string `mapstructure:"url"`
	APIKey  string `mapstructure:"api_key"`
	Timeout int    `mapstructure:"timeout"` // seconds
}

// OpenSubtitlesConfig holds OpenSubtitles API settings.
type OpenSubtitlesConfig struct {
	APIKey   string `mapstructure:"api_key"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Timeout  int    `mapstructure:"timeout"` // seconds
}

// DedupConfig controls duplicate resolution behavior.
type DedupConfig struct {
	// KeepStrategy selects the keeper per duplicate group:
	// "best_quality", "largest_file" or "newest".
	KeepStrategy string `mapstructure:"keep_strategy"`
	DryRun       bool   `mapstructure:"dry_run"`
	Unmonitor    bool   `mapstructure:"unmonitor"`
	DeleteFiles  bool   `mapstructure:"delete_files"`
	// RecycleDir, when set, relocates removed files there instead of deleting.
	RecycleDir string `mapstructure:"recycle_dir"`
	Workers    int    `mapstructure:"workers"`
}

// SubtitlesConfig controls subtitle acquisition.
type SubtitlesConfig struct {
	// Languages is an ordered list of ISO 639-1 codes, most preferred first.
	Languages []string `mapstructure:"languages"`
	Workers   int      `mapstructure:"workers"`
}

// ScheduleConfig controls the optional cron-scheduled scan.
type ScheduleConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Hour      int    `mapstructure:"hour"`
	Minute    int    `mapstructure:"minute"`
	DayOfWeek string `mapstructure:"day_of_week"`
}

// Load reads configuration from a .env file, config file and environment
// variables. Priority: environment variables > config file > defaults.
func Load(configPath string) (*Config, error) {
	// Best-effort .env load; the original deployments drive everything
	// through environment variables.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.reelsweep")
	}

	v.SetEnvPrefix("REELSWEEP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, using defaults + env vars
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8585)

	v.SetDefault("database.path", "./data/reelsweep.db")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.path", "")

	v.SetDefault("plex.url", "http://localhost:32400")
	v.SetDefault("plex.movie_library", "Movies")
	v.SetDefault("plex.tv_library", "TV Shows")
	v.SetDefault("plex.timeout", 30)

	v.SetDefault("radarr.url", "http://localhost:7878")
	v.SetDefault("radarr.timeout", 30)
	v.SetDefault("sonarr.url", "http://localhost:8989")
	v.SetDefault("sonarr.timeout", 30)

	v.SetDefault("opensubtitles.timeout", 30)

	v.SetDefault("dedup.keep_strategy", "best_quality")
	v.SetDefault("dedup.dry_run", true)
	v.SetDefault("dedup.unmonitor", true)
	v.SetDefault("dedup.delete_files", true)
	v.SetDefault("dedup.recycle_dir", "")
	v.SetDefault("dedup.workers", 4)

	v.SetDefault("subtitles.languages", []string{"sv", "en"})
	v.SetDefault("subtitles.workers", 2)

	v.SetDefault("schedule.enabled", false)
	v.SetDefault("schedule.hour", 3)
	v.SetDefault("schedule.minute", 0)
	v.SetDefault("schedule.day_of_week", "sun")
}

// Validate checks settings required for any run at all.
func (c *Config) Validate() []string {
	var errs []string
	if c.Plex.URL == "" {
		errs = append(errs, "plex.url is required")
	}
	if c.Plex.Token == "" {
		errs = append(errs, "plex.token is required")
	}
	switch c.Dedup.KeepStrategy {
	case "best_quality", "largest_file", "newest":
	default:
		errs = append(errs, fmt.Sprintf(
			"invalid dedup.keep_strategy %q: must be best_quality, largest_file or newest",
			c.Dedup.KeepStrategy))
	}
	return errs
}

// ValidateSubtitles checks settings required for subtitle downloads.
func (c *Config) ValidateSubtitles() []string {
	var errs []string
	if c.OpenSubtitles.APIKey == "" {
		errs = append(errs, "opensubtitles.api_key is required for subtitles")
	}
	if c.OpenSubtitles.Username == "" {
		errs = append(errs, "opensubtitles.username is required for subtitle downloads")
	}
	if c.OpenSubtitles.Password == "" {
		errs = append(errs, "opensubtitles.password is required for subtitle downloads")
	}
	if len(c.Subtitles.Languages) == 0 {
		errs = append(errs, "subtitles.languages must list at least one language")
	}
	return errs
}

// Address returns the server address string.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Cron returns the schedule as a five-field cron expression.
func (s *ScheduleConfig) Cron() string {
	return fmt.Sprintf("%d %d * * %s", s.Minute, s.Hour, s.DayOfWeek)
}
