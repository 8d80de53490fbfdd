package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ruteo-noc/ruteo/internal/api"
	"github.com/ruteo-noc/ruteo/internal/buildinfo"
	"github.com/ruteo-noc/ruteo/internal/config"
	"github.com/ruteo-noc/ruteo/internal/protect"
	"github.com/ruteo-noc/ruteo/internal/service"
	"github.com/ruteo-noc/ruteo/internal/state"
	"github.com/ruteo-noc/ruteo/internal/topology"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load and validate environment config
	envCfg, err := config.LoadEnvConfig()
	if err != nil {
		return err
	}
	if envCfg.AdminToken != "" && config.IsWeakToken(envCfg.AdminToken) {
		log.Printf("WARNING: RUTEO_ADMIN_TOKEN is weak; use a longer, less guessable token")
	}
	if envCfg.AdminToken == "" {
		log.Printf("WARNING: RUTEO_ADMIN_TOKEN is empty; API authentication is disabled")
	}

	// 2. Open persistence and run migrations
	repo, dbCloser, err := state.Bootstrap(envCfg.DataDir)
	if err != nil {
		return fmt.Errorf("persistence bootstrap: %w", err)
	}
	defer func() {
		if err := dbCloser.Close(); err != nil {
			log.Printf("Persistence close error: %v", err)
		}
	}()
	log.Println("Persistence bootstrap complete")

	// 3. Rebuild the in-memory camera index from persisted topology
	index := topology.NewCameraIndex(envCfg.CameraIndexMaxNames)
	if err := index.LoadFromRepo(repo); err != nil {
		return fmt.Errorf("camera index load: %w", err)
	}

	// 4. Wire services
	log.Printf("Ruteo %s", buildinfo.String())
	startedAt := time.Now().UTC()
	cp := service.New(repo, index, service.SystemInfo{
		Version:   buildinfo.Version,
		GitCommit: buildinfo.GitCommit,
		BuildTime: buildinfo.BuildTime,
		StartedAt: startedAt,
	})

	// 5. Start the ban consistency sweeper
	sweeper := protect.NewSweeper(repo, envCfg.BanSweepSchedule)
	if err := sweeper.Start(); err != nil {
		return fmt.Errorf("ban sweeper start: %w", err)
	}
	defer sweeper.Stop()

	// 6. Create and start API server
	srv := api.NewServerWithAddress(
		envCfg.ListenAddress,
		envCfg.Port,
		envCfg.AdminToken,
		cp,
		int64(envCfg.APIMaxBodyBytes),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		log.Printf("Ruteo API server starting on %s:%d", envCfg.ListenAddress, envCfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- err
		}
	}()

	// 7. Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Printf("Received signal %s, shutting down...", sig)
	case err := <-serverErrCh:
		return fmt.Errorf("API server error: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), envCfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	log.Println("Server stopped")
	return nil
}
