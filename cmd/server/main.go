package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/KevinKickass/OpenShmInspector/internal/config"
	"github.com/KevinKickass/OpenShmInspector/internal/storage"
	"github.com/KevinKickass/OpenShmInspector/internal/system"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

func main() {
	app := &cli.App{
		Name:  "openshminspector",
		Usage: "inspect and write Modbus shared memory over REST and WebSocket",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to the configuration file",
				EnvVars: []string{"OSI_CONFIG"},
				Value:   "configs/config.yaml",
			},
			&cli.BoolFlag{
				Name:  "development",
				Usage: "human readable debug logging",
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(c *cli.Context) error {
	newLogger := zap.NewProduction
	if c.Bool("development") {
		newLogger = zap.NewDevelopment
	}
	logger, err := newLogger()
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()

	configPath := c.String("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Error("Failed to load config", zap.Error(err))
		return err
	}

	logger.Info("Config loaded successfully", zap.String("file", configPath))

	ctx, cancel := context.WithTimeout(c.Context, cfg.Server.ShutdownTimeout)
	defer cancel()

	var db *storage.PostgresClient
	if cfg.Database.Enabled {
		db, err = storage.NewPostgresClient(ctx, cfg.Database)
		if err != nil {
			logger.Error("Failed to connect to database", zap.Error(err))
			return err
		}
		defer db.Close()
		logger.Info("Database connected successfully")
	}

	lifecycle, err := system.NewLifecycleManager(cfg, db, logger)
	if err != nil {
		return err
	}

	if err := lifecycle.Start(ctx); err != nil {
		logger.Error("Failed to start system", zap.Error(err))
		return err
	}

	logger.Info("OpenShmInspector started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	logger.Info("Shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := lifecycle.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown failed", zap.Error(err))
		return err
	}

	logger.Info("OpenShmInspector stopped successfully")
	return nil
}
