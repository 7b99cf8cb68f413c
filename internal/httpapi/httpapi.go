// Package httpapi is a thin HTTP surface over the §6.3 public operations —
// catalog search/lookup, extraction, and the seeder add/remove/seed_all/stop
// calls. Every handler is a direct adapter into the catalog, extractor and
// Seeder interfaces (the daemon backs Seeder with the catalog store);
// no business logic lives here, matching the thinness of the teacher's own
// internal/api/torrent_handlers.go.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/shardkeeper/shardkeeper/internal/catalog"
)

// Extractor is the subset of extractor.Extractor this package depends on.
type Extractor interface {
	Extract(ctx context.Context, f *catalog.FileRecord) (name string, data []byte, err error)
}

// Seeder is the subset of catalog.Store (or an equivalent) the seeder
// endpoints call into.
type Seeder interface {
	AddSeedFile(ctx context.Context, f *catalog.FileRecord) error
	RemoveSeedFile(ctx context.Context, f *catalog.FileRecord) error
	SeedAll(ctx context.Context, torrentID int64) error
	StopSeeding(ctx context.Context, torrentID int64) error
}

// Server wires the catalog store, extractor, and seeder into an HTTP router.
type Server struct {
	router    *mux.Router
	Store     *catalog.Store
	Extractor Extractor
	Seeder    Seeder
	server    *http.Server
}

// NewServer builds a Server with routes registered.
func NewServer(store *catalog.Store, ex Extractor, seeder Seeder) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		Store:     store,
		Extractor: ex,
		Seeder:    seeder,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/search", s.handleSearch).Methods(http.MethodGet)
	s.router.HandleFunc("/files/{md5}", s.handleGetFile).Methods(http.MethodGet)
	s.router.HandleFunc("/files/{md5}/extract", s.handleExtract).Methods(http.MethodPost)
	s.router.HandleFunc("/torrents/{id}/seed", s.handleSeedAdd).Methods(http.MethodPost)
	s.router.HandleFunc("/torrents/{id}/seed", s.handleSeedRemove).Methods(http.MethodDelete)
	s.router.HandleFunc("/torrents/{id}/seed-all", s.handleSeedAll).Methods(http.MethodPost)
	s.router.HandleFunc("/torrents/{id}/stop", s.handleStop).Methods(http.MethodPost)
}

// Router exposes the underlying mux.Router, e.g. for httptest.NewServer.
func (s *Server) Router() http.Handler { return s.router }

// Start listens on addr until the process is shut down.
func (s *Server) Start(addr string) error {
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// handleSearch implements catalog.search(query, language?, year?, torrent_id?,
// local_only?, order_by, limit, offset).
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	params := catalog.SearchParams{
		Query:    q.Get("q"),
		Language: q.Get("language"),
		OrderBy:  q.Get("order_by"),
		Limit:    50,
	}
	if v := q.Get("year"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			params.Year = &n
		}
	}
	if v := q.Get("torrent_id"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			params.TorrentID = &n
		}
	}
	if v := q.Get("local_only"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			params.LocalOnly = b
		}
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			params.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			params.Offset = n
		}
	}

	results, err := s.Store.Search(r.Context(), params)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, results)
}

// handleGetFile implements catalog.find_by_ids for a single file, addressed
// by its md5 identity key (spec §3).
func (s *Server) handleGetFile(w http.ResponseWriter, r *http.Request) {
	md5 := mux.Vars(r)["md5"]
	f, err := s.Store.FindByMD5(r.Context(), md5)
	if err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, f)
}

// handleExtract implements extractor.extract(FileRecord) -> bytes.
func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	md5 := mux.Vars(r)["md5"]
	f, err := s.Store.FindByMD5(r.Context(), md5)
	if err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}

	name, data, err := s.Extractor.Extract(r.Context(), f)
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func torrentIDFromRequest(r *http.Request) (int64, error) {
	return strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
}

// handleSeedAdd implements seeder.add(FileRecord) — the request body names
// the file by md5.
func (s *Server) handleSeedAdd(w http.ResponseWriter, r *http.Request) {
	var body struct {
		MD5 string `json:"md5"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	f, err := s.Store.FindByMD5(r.Context(), body.MD5)
	if err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	if err := s.Seeder.AddSeedFile(r.Context(), f); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// handleSeedRemove implements seeder.remove(FileRecord).
func (s *Server) handleSeedRemove(w http.ResponseWriter, r *http.Request) {
	var body struct {
		MD5 string `json:"md5"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	f, err := s.Store.FindByMD5(r.Context(), body.MD5)
	if err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	if err := s.Seeder.RemoveSeedFile(r.Context(), f); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// handleSeedAll implements seeder.seed_all(torrent_id).
func (s *Server) handleSeedAll(w http.ResponseWriter, r *http.Request) {
	id, err := torrentIDFromRequest(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid torrent id")
		return
	}
	if err := s.Seeder.SeedAll(r.Context(), id); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// handleStop implements seeder.stop(torrent_id).
func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	id, err := torrentIDFromRequest(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid torrent id")
		return
	}
	if err := s.Seeder.StopSeeding(r.Context(), id); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
