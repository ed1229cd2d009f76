package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/mattn/go-sqlite3"

	"github.com/ChIIChI1230/screenshot/ccc/logging"
	"github.com/ChIIChI1230/screenshot/server/archive"
	"github.com/ChIIChI1230/screenshot/server/config"
	"github.com/ChIIChI1230/screenshot/server/handlers"
)

func main() {
	configPath := flag.String("config", "server_config.json", "Path to the config file")
	host := flag.String("host", "", "Bind host (overrides config)")
	port := flag.Int("port", 0, "Bind port (overrides config)")
	storageDir := flag.String("storage-dir", "", "Storage root directory (overrides config)")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *host != "" {
		cfg.Host = *host
	}
	if *port > 0 {
		cfg.Port = *port
	}
	if *storageDir != "" {
		cfg.StorageDir = *storageDir
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger := logging.CreateLogger(logging.LogLevel(cfg.LogLevel), cfg.LogPath, "ingest-server")
	logger.Info("starting ingest server", "host", cfg.Host, "port", cfg.Port, "storage_dir", cfg.StorageDir)

	arch, err := archive.NewArchive(cfg.StorageDir, logger)
	if err != nil {
		log.Fatalf("Failed to create archive: %v", err)
	}

	database, err := sql.Open("sqlite3", cfg.DatabasePath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer database.Close()

	records, err := archive.NewSQLiteRecordRepository(database)
	if err != nil {
		log.Fatalf("Failed to create record repository: %v", err)
	}

	uploadHandler := handlers.NewUploadHandler(logger, arch, records)

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())

	setupRoutes(router, uploadHandler)

	server := &http.Server{
		Addr:           fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:        router,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		logger.Info("server listening", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down ingest server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("shutdown failed", "error", err)
	}
}

// setupRoutes configures the HTTP routes.
func setupRoutes(router *gin.Engine, uploadHandler *handlers.UploadHandler) {
	router.POST("/upload", uploadHandler.Upload)
	router.GET("/uploads", uploadHandler.ListUploads)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": "ingest-server",
		})
	})
}
