// Package config loads daemon configuration from a key=value file with
// environment-variable overlay, carrying the teacher's exact loading shape
// (Load/loadFromFile/loadFromEnv, typed defaults, CPU-scaled auto-tuning)
// retargeted at this system's own recognized options (spec §6.4).
package config

import (
	"bufio"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
)

// Config holds daemon configuration.
type Config struct {
	// Persisted state layout (spec §6.1/§6.4).
	DownloadsRoot string
	CatalogDBPath string

	// External fetchers.
	IPFSGateways []string // empty disables the IPFS substitution path

	// Timing bounds (spec §6.4).
	MetadataTimeoutSeconds int
	QueryTimeoutSeconds    int
	IngestBatchSize        int

	// Torrent engine tuning.
	TorrentDataPort int // 0 = auto-pick
	MaxUploadRate   int // bytes/sec, 0 = unlimited
	MaxDownloadRate int // bytes/sec, 0 = unlimited
	PieceHashWorkers int

	// Watch-folder and HTTP/activity surfaces.
	WatchFolderEnabled bool
	HTTPPort           int
	ActivityPort       int
}

// Load reads configuration from a key=value config file and overlays
// environment variables, which take precedence over file values.
func Load(configPath string) (*Config, error) {
	cfg := &Config{
		DownloadsRoot:          "/var/lib/shardkeeper/downloads",
		CatalogDBPath:          "/var/lib/shardkeeper/catalog.db",
		IPFSGateways:           nil,
		MetadataTimeoutSeconds: 60,
		QueryTimeoutSeconds:    15,
		IngestBatchSize:        1000,
		TorrentDataPort:        0,
		MaxUploadRate:          0,
		MaxDownloadRate:        0,
		PieceHashWorkers:       0, // 0 = auto (CPU count)
		WatchFolderEnabled:     true,
		HTTPPort:               8080,
		ActivityPort:           8081,
	}

	if configPath != "" {
		if err := cfg.loadFromFile(configPath); err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	cfg.loadFromEnv()

	numCPU := runtime.NumCPU()
	if numCPU < 1 {
		numCPU = 1
	}
	if cfg.PieceHashWorkers <= 0 {
		cfg.PieceHashWorkers = numCPU
	}
	// Cap piece-hash workers to avoid excessive memory use; each worker holds
	// one full piece in memory.
	const maxPieceHashWorkers = 16
	if cfg.PieceHashWorkers > maxPieceHashWorkers {
		cfg.PieceHashWorkers = maxPieceHashWorkers
	}

	if cfg.DownloadsRoot == "" {
		return nil, fmt.Errorf("downloads_root must be set (in config file or environment)")
	}
	if cfg.CatalogDBPath == "" {
		return nil, fmt.Errorf("catalog_db_path must be set (in config file or environment)")
	}

	return cfg, nil
}

// loadFromFile reads key=value pairs from path.
func (cfg *Config) loadFromFile(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		switch key {
		case "downloads_root":
			cfg.DownloadsRoot = value
		case "catalog_db_path":
			cfg.CatalogDBPath = value
		case "ipfs_gateways":
			cfg.IPFSGateways = splitCommaList(value)
		case "metadata_timeout_seconds":
			if n, err := strconv.Atoi(value); err == nil {
				cfg.MetadataTimeoutSeconds = n
			}
		case "query_timeout_seconds":
			if n, err := strconv.Atoi(value); err == nil {
				cfg.QueryTimeoutSeconds = n
			}
		case "ingest_batch_size":
			if n, err := strconv.Atoi(value); err == nil {
				cfg.IngestBatchSize = n
			}
		case "torrent_data_port":
			if n, err := strconv.Atoi(value); err == nil {
				cfg.TorrentDataPort = n
			}
		case "max_upload_rate":
			if n, err := strconv.Atoi(value); err == nil {
				cfg.MaxUploadRate = n
			}
		case "max_download_rate":
			if n, err := strconv.Atoi(value); err == nil {
				cfg.MaxDownloadRate = n
			}
		case "piece_hash_workers":
			if n, err := strconv.Atoi(value); err == nil {
				cfg.PieceHashWorkers = n
			}
		case "watch_folder_enabled":
			cfg.WatchFolderEnabled = value == "true" || value == "1" || value == "yes"
		case "http_port":
			if n, err := strconv.Atoi(value); err == nil {
				cfg.HTTPPort = n
			}
		case "activity_port":
			if n, err := strconv.Atoi(value); err == nil {
				cfg.ActivityPort = n
			}
		}
	}

	return scanner.Err()
}

// loadFromEnv overlays environment variables onto cfg.
func (cfg *Config) loadFromEnv() {
	if v := os.Getenv("DOWNLOADS_ROOT"); v != "" {
		cfg.DownloadsRoot = v
	}
	if v := os.Getenv("CATALOG_DB_PATH"); v != "" {
		cfg.CatalogDBPath = v
	}
	if v := os.Getenv("IPFS_GATEWAYS"); v != "" {
		cfg.IPFSGateways = splitCommaList(v)
	}
	if v := os.Getenv("METADATA_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MetadataTimeoutSeconds = n
		}
	}
	if v := os.Getenv("QUERY_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.QueryTimeoutSeconds = n
		}
	}
	if v := os.Getenv("INGEST_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.IngestBatchSize = n
		}
	}
	if v := os.Getenv("TORRENT_DATA_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.TorrentDataPort = n
		}
	}
	if v := os.Getenv("MAX_UPLOAD_RATE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxUploadRate = n
		}
	}
	if v := os.Getenv("MAX_DOWNLOAD_RATE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxDownloadRate = n
		}
	}
	if v := os.Getenv("PIECE_HASH_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.PieceHashWorkers = n
		}
	}
	if v := os.Getenv("WATCH_FOLDER_ENABLED"); v != "" {
		cfg.WatchFolderEnabled = v == "true" || v == "1" || v == "yes"
	}
	if v := os.Getenv("HTTP_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.HTTPPort = n
		}
	}
	if v := os.Getenv("ACTIVITY_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ActivityPort = n
		}
	}
}

func splitCommaList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
