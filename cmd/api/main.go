package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"trellis/api/internal/app"
	"trellis/api/internal/assist"
	"trellis/api/internal/config"
	"trellis/api/internal/images"
	"trellis/api/internal/live"
	"trellis/api/internal/search"
	"trellis/api/internal/store"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	dataStore := store.NewPostgresStore(db)

	var bus live.Bus
	if strings.TrimSpace(cfg.RedisURL) != "" {
		log.Printf("Using Redis for live-query invalidations")
		redisBus, err := live.NewRedisBus(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer redisBus.Close()
		bus = redisBus
	} else {
		log.Printf("Using in-process live-query invalidations")
		bus = live.NewMemoryBus()
	}
	queries := live.NewClient(store.NewSnapshotSource(dataStore), bus)

	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
	}
	searchService := search.NewService(meiliClient, search.NewPgSearch(db))
	if meiliClient != nil {
		defer meiliClient.Close()
	}

	var imageStore *images.Store
	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		imageStore, err = images.New(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			log.Fatalf("minio connection failed: %v", err)
		}
		if err := imageStore.EnsureBucket(ctx); err != nil {
			log.Fatalf("minio bucket setup failed: %v", err)
		}
	} else {
		log.Printf("WARNING: image storage not configured, image generation disabled")
	}

	assistantClient := assist.New(cfg.AssistantURL, cfg.AssistantToken, cfg.AssistantTimeout)
	if !assistantClient.Configured() {
		log.Printf("WARNING: assistant not configured, chat degrades to test replies")
	}

	var service *app.Service
	if imageStore != nil {
		service = app.New(cfg, dataStore, bus, queries, assistantClient, imageStore, searchService)
	} else {
		service = app.New(cfg, dataStore, bus, queries, assistantClient, nil, searchService)
	}

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Trellis API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
