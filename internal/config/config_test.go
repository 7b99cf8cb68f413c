package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWhenNoFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 60, cfg.MetadataTimeoutSeconds)
	require.Equal(t, 15, cfg.QueryTimeoutSeconds)
	require.Equal(t, 1000, cfg.IngestBatchSize)
	require.NotZero(t, cfg.PieceHashWorkers)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "shardkeeper.conf")
	content := "downloads_root=/data/downloads\n" +
		"catalog_db_path=/data/catalog.db\n" +
		"ipfs_gateways=https://ipfs.io,https://dweb.link\n" +
		"metadata_timeout_seconds=30\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/data/downloads", cfg.DownloadsRoot)
	require.Equal(t, "/data/catalog.db", cfg.CatalogDBPath)
	require.Equal(t, []string{"https://ipfs.io", "https://dweb.link"}, cfg.IPFSGateways)
	require.Equal(t, 30, cfg.MetadataTimeoutSeconds)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "shardkeeper.conf")
	require.NoError(t, os.WriteFile(path, []byte("metadata_timeout_seconds=30\n"), 0644))

	t.Setenv("METADATA_TIMEOUT_SECONDS", "90")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 90, cfg.MetadataTimeoutSeconds)
}

func TestLoad_PieceHashWorkersCapped(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "shardkeeper.conf")
	require.NoError(t, os.WriteFile(path, []byte("piece_hash_workers=64\n"), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.LessOrEqual(t, cfg.PieceHashWorkers, 16)
}
