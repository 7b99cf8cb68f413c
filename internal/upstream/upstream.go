// Package upstream implements the two external-repository fetchers spec
// §4.7/§6.3 names: a JSON index of upstream torrents, and per-file fetch of
// individual .torrent files by relative path. Both are plain HTTP GETs,
// grounded on the same request/timeout idiom the teacher uses throughout
// internal/torrent/queue.go for its main-server API calls.
package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// IndexEntry is one row of the upstream catalog's JSON index — the subset of
// fields the seed manager and ingest path need to upsert a TorrentRecord.
type IndexEntry struct {
	Path        string `json:"path"`
	MagnetLink  string `json:"magnet_link"`
	AddedAt     string `json:"added_to_torrents_list_at"`
	DataSize    int64  `json:"data_size"`
	NumFiles    int    `json:"num_files"`
	Obsolete    bool   `json:"obsolete"`
	Embargo     bool   `json:"embargo"`
}

// Client fetches the upstream torrent repository's JSON index and individual
// .torrent files. It implements both extractor.TorrentFileFetcher and
// seedmanager.TorrentFetcher.
type Client struct {
	BaseURL       string
	HTTPClient    *http.Client
	IndexTimeout  time.Duration
	FetchTimeout  time.Duration
}

// New returns a Client with the spec's 20-120s timeout range: 20s default for
// per-file fetches, 120s for the (typically much larger) index.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:      baseURL,
		HTTPClient:   &http.Client{},
		IndexTimeout: 120 * time.Second,
		FetchTimeout: 20 * time.Second,
	}
}

func (c *Client) client() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

// FetchIndex retrieves and decodes the upstream catalog's JSON torrent index.
func (c *Client) FetchIndex(ctx context.Context) ([]IndexEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, c.IndexTimeout)
	defer cancel()

	url := c.BaseURL + "/torrents/index.json"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("upstream: build index request: %w", err)
	}

	resp, err := c.client().Do(req)
	if err != nil {
		return nil, fmt.Errorf("upstream: GET %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("upstream: GET %s: status %d", url, resp.StatusCode)
	}

	var entries []IndexEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("upstream: decode index: %w", err)
	}
	return entries, nil
}

// FetchTorrentFile retrieves one .torrent file's raw bytes by its relative
// path (TorrentRecord.Path), matching extractor.TorrentFileFetcher and
// seedmanager.TorrentFetcher.
func (c *Client) FetchTorrentFile(ctx context.Context, path string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.FetchTimeout)
	defer cancel()

	url := c.BaseURL + "/" + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("upstream: build torrent file request: %w", err)
	}

	resp, err := c.client().Do(req)
	if err != nil {
		return nil, fmt.Errorf("upstream: GET %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("upstream: GET %s: status %d", url, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("upstream: read %s: %w", url, err)
	}
	return data, nil
}
