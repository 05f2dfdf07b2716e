package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"

	"cakeday/birthday"
	"cakeday/bot"
	"cakeday/config"
	"cakeday/dal"
	"cakeday/discordutils"
	"cakeday/logging"
	"cakeday/status"
)

var version = "dev"

var envFile = flag.String(
	"env",
	".env",
	"Dotenv file to load before reading the environment. Missing files are ignored.",
)

func main() {
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to load %s: %v\n", *envFile, err)
		os.Exit(1)
	}

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration:\n%v\n\n", err)
		flag.Usage()
		os.Exit(1)
	}

	logger := logging.New(logging.Config{
		Service: "cakeday",
		Version: version,
		Env:     cfg.Env,
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
	})

	if err := run(cfg, logger); err != nil {
		logger.Error("cakeday exited with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := dal.InitDB(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer func() {
		if err := dal.Close(db); err != nil {
			logger.Warn("failed to close database", "error", err)
		}
	}()
	store := dal.NewStore(db)

	if cfg.SeedFile != "" {
		if _, err := dal.SeedFromFile(ctx, store, cfg.SeedFile); err != nil {
			return fmt.Errorf("seed: %w", err)
		}
	}

	b, err := bot.New(bot.Config{
		Token:          cfg.Token,
		GuildID:        cfg.GuildID,
		OfficerRoleIDs: cfg.OfficerRoleIDs,
	}, store, logger)
	if err != nil {
		return err
	}

	scheduler, err := birthday.NewScheduler(birthday.SchedulerConfig{
		Store:     store,
		Gateway:   discordutils.NewGateway(b.Session(), cfg.APIRate),
		ChannelID: cfg.ChannelID,
		RoleID:    cfg.RoleID,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	// The scheduler may already be running by the time Open fails, since it
	// starts from the Ready handler.
	if err := b.Open(ctx, scheduler); err != nil {
		shutdown(cfg.ShutdownGracePeriod, logger, scheduler, nil, b)
		return err
	}

	var statusServer *status.Server
	if cfg.StatusAddr != "" {
		statusServer = status.NewServer(cfg.StatusAddr, scheduler, logger)
		if err := statusServer.Start(); err != nil {
			shutdown(cfg.ShutdownGracePeriod, logger, scheduler, nil, b)
			return fmt.Errorf("start status server: %w", err)
		}
	}

	<-ctx.Done()
	logger.Info("shutting down")
	shutdown(cfg.ShutdownGracePeriod, logger, scheduler, statusServer, b)

	return nil
}

// shutdown stops the scheduler first so no pass is mid-flight when the
// session closes underneath it. statusServer may be nil.
func shutdown(
	grace time.Duration,
	logger *slog.Logger,
	scheduler *birthday.Scheduler,
	statusServer *status.Server,
	b *bot.Bot,
) {
	ctx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()

	if err := scheduler.Stop(ctx); err != nil {
		logger.Warn("birthday scheduler did not stop cleanly", "error", err)
	}
	if statusServer != nil {
		if err := statusServer.Shutdown(ctx); err != nil {
			logger.Warn("status server did not stop cleanly", "error", err)
		}
	}
	if err := b.Shutdown(); err != nil {
		logger.Warn("failed to close discord session", "error", err)
	}
}
