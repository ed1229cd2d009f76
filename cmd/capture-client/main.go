package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ChIIChI1230/screenshot/ccc/logging"
	"github.com/ChIIChI1230/screenshot/client/capture"
	"github.com/ChIIChI1230/screenshot/client/config"
	"github.com/ChIIChI1230/screenshot/client/storage"
	"github.com/ChIIChI1230/screenshot/client/uploading"
)

func main() {
	configPath := flag.String("config", "client_config.json", "Path to the config file")
	testMode := flag.Bool("test", false, "Run with an in-memory server client instead of the real server")

	// Config override flags
	serverURL := flag.String("server-url", "", "Ingest server URL (overrides config)")
	intervalSeconds := flag.Int("interval", 0, "Capture interval in seconds (overrides config)")
	imageFormat := flag.String("format", "", "Image format, JPEG or PNG (overrides config)")
	jpegQuality := flag.Int("quality", 0, "JPEG quality 1-95 (overrides config)")
	outputDir := flag.String("output-dir", "", "Local copy directory (overrides config)")
	storageDir := flag.String("storage-dir", "", "Pending image directory (overrides config)")
	source := flag.String("source", "", "Source identifier sent with uploads (overrides config)")

	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	cfg.Override(config.ConfigOverrides{
		ServerURL:       serverURL,
		IntervalSeconds: intervalSeconds,
		ImageFormat:     imageFormat,
		JPEGQuality:     jpegQuality,
		LocalOutputDir:  outputDir,
		LocalStorageDir: storageDir,
		Source:          source,
	})

	settings, err := cfg.Snapshot()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger := logging.CreateLogger(logging.LogLevel(cfg.LogLevel), cfg.LogDir, "capture-client")
	logger.Info("starting capture client",
		"server_url", cfg.ServerURL,
		"interval", settings.Interval,
		"format", settings.Capture.Format,
		"source", settings.Source)

	store, err := storage.NewLocalStore(cfg.LocalStorageDir, cfg.MaxLocalFiles, cfg.Retention(), logger)
	if err != nil {
		log.Fatalf("Failed to create local store: %v", err)
	}

	var serverClient uploading.ServerClient
	if *testMode {
		log.Println("Running in TEST MODE with an in-memory server client")
		serverClient = uploading.NewMockServerClient()
	} else {
		serverClient = uploading.NewServerClient(cfg.ServerURL, cfg.Timeout())
	}

	uploader := uploading.NewUploader(capture.NewScreenCapturer(), store, serverClient, settings, logger)
	if err := uploader.Start(); err != nil {
		log.Fatalf("Failed to start uploader: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	for sig := range sigChan {
		if sig == syscall.SIGHUP {
			reloadSettings(*configPath, uploader, logger)
			continue
		}
		break
	}

	log.Println("Shutdown signal received, stopping capture client...")
	uploader.Stop()
	log.Println("Capture client stopped")
}

// reloadSettings re-reads the config file and swaps a fresh settings snapshot
// into the running uploader. The cycle in flight finishes with the old one.
func reloadSettings(configPath string, uploader *uploading.Uploader, logger logging.Logger) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.Error("config reload failed", "error", err)
		return
	}

	settings, err := cfg.Snapshot()
	if err != nil {
		logger.Error("config reload rejected", "error", err)
		return
	}

	uploader.SetSettings(settings)
	logger.Info("configuration reloaded",
		"interval", settings.Interval,
		"format", settings.Capture.Format)
}
