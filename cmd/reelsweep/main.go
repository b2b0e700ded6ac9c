package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/reelsweep/reelsweep/internal/api"
	"github.com/reelsweep/reelsweep/internal/config"
	"github.com/reelsweep/reelsweep/internal/database"
	"github.com/reelsweep/reelsweep/internal/dedup"
	"github.com/reelsweep/reelsweep/internal/fileops"
	"github.com/reelsweep/reelsweep/internal/history"
	"github.com/reelsweep/reelsweep/internal/logger"
	"github.com/reelsweep/reelsweep/internal/opensubtitles"
	"github.com/reelsweep/reelsweep/internal/plex"
	"github.com/reelsweep/reelsweep/internal/radarr"
	"github.com/reelsweep/reelsweep/internal/scheduler"
	"github.com/reelsweep/reelsweep/internal/sonarr"
	"github.com/reelsweep/reelsweep/internal/subtitles"
)

func main() {
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(logger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Path:       cfg.Logging.Path,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
	})
	defer log.Close()

	log.Info().
		Str("version", config.Version).
		Str("logLevel", cfg.Logging.Level).
		Msg("starting reelsweep")

	if errs := cfg.Validate(); len(errs) > 0 {
		for _, e := range errs {
			log.Error().Msg(e)
		}
		log.Fatal().Msg("configuration is invalid")
	}

	db, err := database.New(cfg.Database.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer db.Close()

	log.Info().Msg("running database migrations")
	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}

	plexClient, err := plex.NewClient(plex.ClientConfig{
		URL:          cfg.Plex.URL,
		Token:        cfg.Plex.Token,
		MovieLibrary: cfg.Plex.MovieLibrary,
		TVLibrary:    cfg.Plex.TVLibrary,
		Timeout:      cfg.Plex.Timeout,
		Logger:       log.Logger,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create plex client")
	}

	checks := []api.ConnectionCheck{{Name: "plex", Test: plexClient.TestConnection}}

	// Radarr and Sonarr are optional: without them unmonitor actions are
	// skipped, removals still run.
	var movieSource, episodeSource dedup.SourceService
	if cfg.Radarr.APIKey != "" {
		radarrClient, err := radarr.NewClient(radarr.ClientConfig{
			URL:     cfg.Radarr.URL,
			APIKey:  cfg.Radarr.APIKey,
			Timeout: cfg.Radarr.Timeout,
			Logger:  log.Logger,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create radarr client")
		}
		movieSource = radarrClient
		checks = append(checks, api.ConnectionCheck{Name: "radarr", Test: radarrClient.TestConnection})
	} else {
		log.Warn().Msg("radarr not configured, movie unmonitoring disabled")
	}
	if cfg.Sonarr.APIKey != "" {
		sonarrClient, err := sonarr.NewClient(sonarr.ClientConfig{
			URL:     cfg.Sonarr.URL,
			APIKey:  cfg.Sonarr.APIKey,
			Timeout: cfg.Sonarr.Timeout,
			Logger:  log.Logger,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create sonarr client")
		}
		episodeSource = sonarrClient
		checks = append(checks, api.ConnectionCheck{Name: "sonarr", Test: sonarrClient.TestConnection})
	} else {
		log.Warn().Msg("sonarr not configured, episode unmonitoring disabled")
	}

	store := fileops.New(log.Logger)
	executor := dedup.NewExecutor(plexClient, movieSource, episodeSource, store, log.Logger)
	dedupService := dedup.NewService(cfg.Dedup, plexClient, executor, log.Logger)

	var subtitleService *subtitles.Service
	if errs := cfg.ValidateSubtitles(); len(errs) == 0 {
		osClient, err := opensubtitles.NewClient(opensubtitles.ClientConfig{
			APIKey:   cfg.OpenSubtitles.APIKey,
			Username: cfg.OpenSubtitles.Username,
			Password: cfg.OpenSubtitles.Password,
			Timeout:  cfg.OpenSubtitles.Timeout,
			Logger:   log.Logger,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create opensubtitles client")
		}
		if err := osClient.Login(context.Background()); err != nil {
			log.Warn().Err(err).Msg("opensubtitles login failed, downloads use the anonymous quota")
		}
		subtitleService = subtitles.NewService(cfg.Subtitles, plexClient, osClient, store, log.Logger)
		checks = append(checks, api.ConnectionCheck{Name: "opensubtitles", Test: osClient.TestConnection})
	} else {
		for _, e := range errs {
			log.Warn().Msg(e)
		}
		log.Warn().Msg("subtitle downloads disabled")
		subtitleService = subtitles.NewService(cfg.Subtitles, plexClient, nil, store, log.Logger)
	}

	historyService := history.NewService(db.Conn(), log.Logger)
	dedupService.SetRecorder(historyService)
	subtitleService.SetRecorder(historyService)

	var sched *scheduler.Scheduler
	if cfg.Schedule.Enabled {
		sched, err = scheduler.New(log.Logger)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create scheduler")
		}
		sweep := scheduler.NewSweep(dedupService, subtitleService, log.Logger)
		if err := sched.RegisterTask(sweep.Task(cfg.Schedule.Cron())); err != nil {
			log.Fatal().Err(err).Msg("failed to register sweep task")
		}
		sched.Start()
		defer sched.Stop()
	}

	server := api.NewServer(cfg, dedupService, subtitleService, historyService, sched, checks, log.Logger)

	go func() {
		if err := server.Start(); err != nil {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("received shutdown signal")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server shutdown error")
	}
	log.Info().Msg("server stopped")
}
