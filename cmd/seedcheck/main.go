// Command seedcheck is a standalone pipeline smoke test, adapted from
// tools/seed-test/main.go: it builds a synthetic torrent, runs a minimal
// embedded tracker, hands the pieces to torrentdriver.Driver, and confirms
// the driver reaches an actively-seeding state end to end without needing a
// running shardkeeperd or a real catalog.
package main

import (
	"crypto/rand"
	"crypto/sha1"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/anacrolix/torrent"
	"github.com/anacrolix/torrent/bencode"
	"github.com/anacrolix/torrent/metainfo"

	"github.com/shardkeeper/shardkeeper/internal/torrentdriver"
)

const (
	testFileSize = 1 * 1024 * 1024 // 1 MB
	pieceLength  = 128 * 1024
	trackerPort  = 18851
	seedPort     = 18852
)

type miniTracker struct {
	peers map[string]peerEntry
}

type peerEntry struct {
	ip   string
	port int
	left int64
}

func (mt *miniTracker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rawHash := q.Get("info_hash")
	decoded, err := url.QueryUnescape(rawHash)
	if err != nil || len(decoded) != 20 {
		bencode.NewEncoder(w).Encode(map[string]interface{}{"failure reason": "invalid info_hash"})
		return
	}
	peerID := q.Get("peer_id")
	port, _ := strconv.Atoi(q.Get("port"))
	left, _ := strconv.ParseInt(q.Get("left"), 10, 64)
	ip, _, _ := net.SplitHostPort(r.RemoteAddr)
	mt.peers[peerID] = peerEntry{ip: ip, port: port, left: left}

	var peerBytes []byte
	for pid, p := range mt.peers {
		if pid == peerID {
			continue
		}
		parsed := net.ParseIP(p.ip).To4()
		if parsed == nil {
			continue
		}
		peerBytes = append(peerBytes, parsed[0], parsed[1], parsed[2], parsed[3], byte(p.port>>8), byte(p.port&0xff))
	}
	bencode.NewEncoder(w).Encode(map[string]interface{}{
		"interval": 30,
		"peers":    string(peerBytes),
	})
}

func startTracker() string {
	mt := &miniTracker{peers: make(map[string]peerEntry)}
	addr := fmt.Sprintf(":%d", trackerPort)
	go http.ListenAndServe(addr, mt)
	time.Sleep(200 * time.Millisecond)
	return fmt.Sprintf("http://127.0.0.1:%d/announce", trackerPort)
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	log.Println("seedcheck: torrentdriver seed pipeline smoke test")

	trackerURL := startTracker()
	log.Printf("tracker: %s", trackerURL)

	dataDir, err := os.MkdirTemp("", "seedcheck-")
	if err != nil {
		log.Fatalf("mkdtemp: %v", err)
	}
	defer os.RemoveAll(dataDir)

	torrentName := "seedcheck-payload"
	packageDir := filepath.Join(dataDir, torrentName)
	if err := os.MkdirAll(packageDir, 0755); err != nil {
		log.Fatalf("mkdir: %v", err)
	}

	testData := make([]byte, testFileSize)
	rand.Read(testData)
	testFilePath := filepath.Join(packageDir, "payload.bin")
	if err := os.WriteFile(testFilePath, testData, 0644); err != nil {
		log.Fatalf("write payload: %v", err)
	}

	info := metainfo.Info{
		PieceLength: pieceLength,
		Name:        torrentName,
		Files:       []metainfo.FileInfo{{Path: []string{"payload.bin"}, Length: int64(testFileSize)}},
	}
	var pieces []byte
	for off := 0; off < len(testData); off += pieceLength {
		end := off + pieceLength
		if end > len(testData) {
			end = len(testData)
		}
		h := sha1.Sum(testData[off:end])
		pieces = append(pieces, h[:]...)
	}
	info.Pieces = pieces

	infoBytes, err := bencode.Marshal(info)
	if err != nil {
		log.Fatalf("marshal info: %v", err)
	}
	mi := &metainfo.MetaInfo{Announce: trackerURL, CreatedBy: "seedcheck", CreationDate: time.Now().Unix()}
	mi.InfoBytes = infoBytes
	torrentBytes, err := bencode.Marshal(mi)
	if err != nil {
		log.Fatalf("marshal metainfo: %v", err)
	}
	log.Printf("info hash: %s", mi.HashInfoBytes().HexString())

	torrentCfg := torrent.NewDefaultClientConfig()
	torrentCfg.DataDir = dataDir
	torrentCfg.Seed = true
	torrentCfg.NoDHT = true
	torrentCfg.DisableUTP = true
	torrentCfg.ListenPort = seedPort

	client, err := torrent.NewClient(torrentCfg)
	if err != nil {
		log.Fatalf("new torrent client: %v", err)
	}
	defer client.Close()

	driver, err := torrentdriver.New(client, filepath.Join(dataDir, "resume"))
	if err != nil {
		log.Fatalf("new driver: %v", err)
	}
	defer driver.Close()

	handle, err := driver.AddTorrentFile(torrentBytes, dataDir)
	if err != nil {
		log.Fatalf("add torrent file: %v", err)
	}

	deadline := time.After(30 * time.Second)
	tick := time.NewTicker(500 * time.Millisecond)
	defer tick.Stop()

	for {
		select {
		case <-deadline:
			log.Fatalf("timed out waiting for pieces to verify")
		case <-tick.C:
			st := driver.Status(handle)
			log.Printf("progress: %d/%d bytes", st.BytesCompleted, st.BytesTotal)
			if st.BytesTotal > 0 && st.BytesCompleted >= st.BytesTotal {
				if !st.Seeding {
					log.Fatalf("all bytes verified but driver reports not seeding — FAIL")
				}
				log.Println("seeding=true — PASS")
				fmt.Println("PASS")
				return
			}
		}
	}
}
