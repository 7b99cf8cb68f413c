// Command shardkeeperd is the daemon: it loads configuration, opens the
// catalog, brings up the BitTorrent engine, and runs the seed-manager
// reconciliation loop, HTTP API, activity hub, and watch-folder side by
// side until a shutdown signal arrives. Wiring follows cmd/omnicloud/main.go's
// shape — config load, store open, engine init, background loops started as
// goroutines, then block on a signal channel and shut everything down with a
// bounded context.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/anacrolix/torrent"
	"golang.org/x/time/rate"

	"github.com/shardkeeper/shardkeeper/internal/activity"
	"github.com/shardkeeper/shardkeeper/internal/catalog"
	"github.com/shardkeeper/shardkeeper/internal/config"
	"github.com/shardkeeper/shardkeeper/internal/extractor"
	"github.com/shardkeeper/shardkeeper/internal/httpapi"
	"github.com/shardkeeper/shardkeeper/internal/ipfsfetch"
	"github.com/shardkeeper/shardkeeper/internal/seedmanager"
	"github.com/shardkeeper/shardkeeper/internal/torrentdriver"
	"github.com/shardkeeper/shardkeeper/internal/upstream"
	"github.com/shardkeeper/shardkeeper/internal/watchfolder"
)

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	configPath := flag.String("config", "/etc/shardkeeper/shardkeeper.conf", "path to config file")
	upstreamURL := flag.String("upstream", "", "base URL of the upstream torrent repository (optional)")
	flag.Parse()

	log.Printf("Starting shardkeeperd v%s...", Version)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	log.Printf("Configuration loaded:")
	log.Printf("  Downloads root: %s", cfg.DownloadsRoot)
	log.Printf("  Catalog DB: %s", cfg.CatalogDBPath)
	log.Printf("  HTTP port: %d  Activity port: %d", cfg.HTTPPort, cfg.ActivityPort)
	log.Printf("  Piece-hash workers: %d", cfg.PieceHashWorkers)
	log.Printf("  Watch-folder enabled: %v", cfg.WatchFolderEnabled)
	if len(cfg.IPFSGateways) > 0 {
		log.Printf("  IPFS gateways: %v", cfg.IPFSGateways)
	}

	if err := os.MkdirAll(cfg.DownloadsRoot, 0755); err != nil {
		log.Fatalf("Failed to create downloads root: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.CatalogDBPath), 0755); err != nil {
		log.Fatalf("Failed to create catalog DB directory: %v", err)
	}

	store, err := catalog.Open(catalog.Config{Source: cfg.CatalogDBPath})
	if err != nil {
		log.Fatalf("Failed to open catalog: %v", err)
	}
	defer store.Close()
	log.Println("Catalog opened and migrated")

	torrentCfg := torrent.NewDefaultClientConfig()
	torrentCfg.DataDir = cfg.DownloadsRoot
	torrentCfg.Seed = true // without this the library stops announcing once pieces verify
	torrentCfg.ListenPort = cfg.TorrentDataPort
	if cfg.MaxUploadRate > 0 {
		torrentCfg.UploadRateLimiter = rate.NewLimiter(rate.Limit(cfg.MaxUploadRate), cfg.MaxUploadRate)
	}
	if cfg.MaxDownloadRate > 0 {
		torrentCfg.DownloadRateLimiter = rate.NewLimiter(rate.Limit(cfg.MaxDownloadRate), cfg.MaxDownloadRate)
	}

	torrentClient, err := torrent.NewClient(torrentCfg)
	if err != nil {
		log.Fatalf("Failed to create torrent client: %v", err)
	}
	defer torrentClient.Close()

	resumeDir := filepath.Join(cfg.DownloadsRoot, "resume")
	driver, err := torrentdriver.New(torrentClient, resumeDir)
	if err != nil {
		log.Fatalf("Failed to create torrent driver: %v", err)
	}
	defer driver.Close()
	log.Println("Torrent driver initialized")

	var upstreamClient *upstream.Client
	if *upstreamURL != "" {
		upstreamClient = upstream.New(*upstreamURL)
		log.Printf("Upstream torrent repository: %s", *upstreamURL)
	}

	ipfsFetcher := ipfsfetch.New()

	manager := &seedmanager.Manager{
		Store:           store,
		Driver:          driver,
		IPFS:            ipfsFetcher,
		DownloadsRoot:   cfg.DownloadsRoot,
		IPFSGateways:    cfg.IPFSGateways,
		MetadataTimeout: time.Duration(cfg.MetadataTimeoutSeconds) * time.Second,
	}
	if upstreamClient != nil {
		manager.Fetcher = upstreamClient
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go manager.Start(ctx)
	log.Println("Seed manager reconciliation loop started")

	ex := &extractor.Extractor{
		Store:           store,
		Driver:          driver,
		Handles:         manager,
		DownloadsRoot:   cfg.DownloadsRoot,
		MetadataTimeout: time.Duration(cfg.MetadataTimeoutSeconds) * time.Second,
	}
	if upstreamClient != nil {
		ex.Fetcher = upstreamClient
	}

	hub := activity.NewHub()
	go hub.Run()
	log.Println("Activity hub started")

	go func() {
		addr := fmt.Sprintf(":%d", cfg.ActivityPort)
		log.Printf("Activity websocket listening on %s", addr)
		if err := (&activityServer{hub: hub}).listenAndServe(addr); err != nil {
			log.Printf("Activity server error: %v", err)
		}
	}()

	apiServer := httpapi.NewServer(store, ex, store)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		log.Printf("HTTP API listening on %s", addr)
		if err := apiServer.Start(addr); err != nil {
			log.Printf("HTTP API server error: %v", err)
		}
	}()

	var watcher *watchfolder.Watcher
	if cfg.WatchFolderEnabled {
		watcher, err = watchfolder.New(cfg.DownloadsRoot, manager)
		if err != nil {
			log.Printf("WARNING: failed to create watch-folder watcher: %v (continuing without it)", err)
		} else if err := watcher.Start(ctx); err != nil {
			log.Printf("WARNING: failed to start watch-folder watcher: %v", err)
			watcher = nil
		} else {
			log.Printf("Watch-folder watcher started on %s", cfg.DownloadsRoot)
		}
	}

	log.Println("shardkeeperd is running")
	log.Println("Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutdown signal received, stopping shardkeeperd...")
	cancel()

	if watcher != nil {
		watcher.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error shutting down HTTP API server: %v", err)
	}

	log.Println("shardkeeperd stopped")
}

// activityServer is the thin net/http wrapper mounting the websocket hub as
// its own listener on ActivityPort, kept separate from the §6.3 HTTP API so
// an operator can firewall the live feed independently.
type activityServer struct {
	hub *activity.Hub
}

func (a *activityServer) listenAndServe(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/activity", a.hub)
	server := &http.Server{Addr: addr, Handler: mux}
	return server.ListenAndServe()
}
