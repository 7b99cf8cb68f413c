package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
)

// InsertFile inserts f and its synthesized FTS body, returning the assigned
// id. It is idempotent on md5 collision: a second insert of an already-known
// md5 no-ops on the files row and skips the FTS write entirely, returning the
// existing id (spec §4.6 insert_file: "idempotent on md5 collision; writes
// FTS row only on first insert"). The two writes happen inside one
// transaction so the FTS index can never drift from the files table.
func (s *Store) InsertFile(ctx context.Context, f *FileRecord) (int64, error) {
	compressed, err := compressDescription(f.Description)
	if err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.NamedExecContext(ctx, `
		INSERT INTO files (
			md5, title, author, year, extension, server_path,
			description_compressed, cover_url, language, ipfs_cid,
			torrent_id, byteoffset, is_journal
		) VALUES (
			:md5, :title, :author, :year, :extension, :server_path,
			:description_compressed, :cover_url, :language, :ipfs_cid,
			:torrent_id, :byteoffset, :is_journal
		)
		ON CONFLICT(md5) DO NOTHING
	`, &fileRow{
		MD5:                   f.MD5,
		Title:                 f.Title,
		Author:                f.Author,
		Year:                  f.Year,
		Extension:             f.Extension,
		ServerPath:            joinList(f.ServerPath),
		DescriptionCompressed: compressed,
		CoverURL:              f.CoverURL,
		Language:              joinList(f.LanguageCodes),
		IPFSCID:               joinList(f.IPFSCIDs),
		TorrentID:             f.TorrentID,
		Byteoffset:            f.Byteoffset,
		IsJournal:             f.IsJournal,
	})
	if err != nil {
		return 0, fmt.Errorf("insert file: %s", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	var id int64
	if err := tx.GetContext(ctx, &id, `SELECT id FROM files WHERE md5 = ?`, f.MD5); err != nil {
		return 0, err
	}

	if inserted > 0 {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO files_fts(rowid, body) VALUES (?, ?)`,
			id, searchBody(f),
		); err != nil {
			return 0, fmt.Errorf("index file for search: %s", err)
		}
	}

	return id, tx.Commit()
}

// searchBody builds the synthetic text a file is indexed under (spec §4.6):
// title, author, a year:<year> token, an ext:<extension> token, the
// description, and lang:<code> tokens for every language.
func searchBody(f *FileRecord) string {
	var b strings.Builder
	b.WriteString(f.Title)
	b.WriteByte(' ')
	b.WriteString(f.Author)
	if f.Year != nil {
		fmt.Fprintf(&b, " year:%d", *f.Year)
	}
	fmt.Fprintf(&b, " ext:%s", f.Extension)
	b.WriteByte(' ')
	b.WriteString(f.Description)
	for _, lang := range f.LanguageCodes {
		fmt.Fprintf(&b, " lang:%s", lang)
	}
	return b.String()
}

// SetByteoffsetByMD5 records the discovered byte offset for a file identified
// by its content hash, the write side of the sidecar fast-path (spec §4.4).
func (s *Store) SetByteoffsetByMD5(ctx context.Context, md5 string, offset int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE files SET byteoffset = ? WHERE md5 = ?`, offset, md5)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &ErrNotFound{Kind: "file", Key: md5}
	}
	return nil
}

// FindByIDs returns the files matching ids, in no particular order.
func (s *Store) FindByIDs(ctx context.Context, ids []int64) ([]*FileRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`
		SELECT f.id, f.md5, f.title, f.author, f.year, f.extension, f.server_path,
		       f.description_compressed, f.cover_url, f.language, f.ipfs_cid,
		       f.torrent_id, f.byteoffset, f.is_journal,
		       COALESCE(tf.is_complete, 0) AS is_complete
		FROM files f
		LEFT JOIN torrent_files tf ON tf.file_id = f.id
		WHERE f.id IN (?)
	`, ids)
	if err != nil {
		return nil, err
	}
	query = s.db.Rebind(query)

	var rows []fileRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	return toRecords(rows)
}

// FindByMD5 looks up a single file by its identity key (spec §3: "MD5 is the
// identity"), for callers (the HTTP surface) that only have the md5 on hand,
// not the internal id FindByIDs expects.
func (s *Store) FindByMD5(ctx context.Context, md5 string) (*FileRecord, error) {
	var row fileRow
	err := s.db.GetContext(ctx, &row, `
		SELECT f.id, f.md5, f.title, f.author, f.year, f.extension, f.server_path,
		       f.description_compressed, f.cover_url, f.language, f.ipfs_cid,
		       f.torrent_id, f.byteoffset, f.is_journal,
		       COALESCE(tf.is_complete, 0) AS is_complete
		FROM files f
		LEFT JOIN torrent_files tf ON tf.file_id = f.id
		WHERE f.md5 = ?
	`, md5)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &ErrNotFound{Kind: "file", Key: md5}
	}
	if err != nil {
		return nil, err
	}
	return row.toRecord()
}

func toRecords(rows []fileRow) ([]*FileRecord, error) {
	out := make([]*FileRecord, 0, len(rows))
	for i := range rows {
		rec, err := rows[i].toRecord()
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// SearchParams is the full filter/paging set for Store.Search (spec §4.6:
// "search(query, language?, year?, torrent_id?, local_only?, order_by,
// limit, offset)"). Query, Language, OrderBy empty and Year/TorrentID nil
// mean "unfiltered" on that axis.
type SearchParams struct {
	Query     string
	Language  string
	Year      *int
	TorrentID *int64
	LocalOnly bool
	OrderBy   string // "rank", "year", "title", or "" (none)
	Limit     int
	Offset    int
}

// Search looks up files matching p against the FTS5 index, applying whatever
// combination of Language/Year/TorrentID/LocalOnly filters and OrderBy
// ordering is set. A query that fails FTS5's own parser (unbalanced quotes,
// stray operators) is run once more with every whitespace-separated token
// wrapped as an FTS5 string literal, so punctuation is matched as text; an
// error from that second run is returned. A search cut off by searchBudget
// (not by the caller's own context) returns *ErrQueryInterrupted.
func (s *Store) Search(ctx context.Context, p SearchParams) ([]*FileRecord, error) {
	qctx, cancel := searchContext(ctx)
	defer cancel()

	rows, err := s.searchRows(qctx, p, true)
	if err != nil && isFTSSyntaxError(err) {
		tokens := strings.Fields(p.Query)
		for i, tok := range tokens {
			tokens[i] = `"` + strings.ReplaceAll(tok, `"`, `""`) + `"`
		}
		quoted := p
		quoted.Query = strings.Join(tokens, " ")
		rows, err = s.searchRows(qctx, quoted, true)
	}
	if err != nil {
		if qctx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			return nil, &ErrQueryInterrupted{Query: p.Query}
		}
		return nil, err
	}
	return rows, nil
}

// searchRows builds and runs one search attempt. useFTS drives whether a
// non-empty Query is matched through the FTS5 index (ranked, via MATCH) or
// degraded to a plain title/author LIKE scan; every other filter and the
// join/order clauses are identical either way.
func (s *Store) searchRows(ctx context.Context, p SearchParams, useFTS bool) ([]*FileRecord, error) {
	join := "LEFT JOIN torrent_files tf ON tf.file_id = f.id"
	if p.LocalOnly {
		join = "JOIN torrent_files tf ON tf.file_id = f.id"
	}

	var b strings.Builder
	var args []interface{}

	b.WriteString(`
		SELECT f.id, f.md5, f.title, f.author, f.year, f.extension, f.server_path,
		       f.description_compressed, f.cover_url, f.language, f.ipfs_cid,
		       f.torrent_id, f.byteoffset, f.is_journal,
		       COALESCE(tf.is_complete, 0) AS is_complete
		FROM files f
	`)
	b.WriteString(join)
	b.WriteByte(' ')

	haveQuery := p.Query != ""
	if haveQuery && useFTS {
		b.WriteString("JOIN files_fts ON files_fts.rowid = f.id ")
	}

	var where []string
	switch {
	case haveQuery && useFTS:
		where = append(where, "files_fts MATCH ?")
		args = append(args, p.Query)
	case haveQuery:
		where = append(where, "(f.title LIKE ? OR f.author LIKE ?)")
		like := "%" + p.Query + "%"
		args = append(args, like, like)
	}
	if p.Language != "" {
		where = append(where, "(';' || f.language || ';') LIKE ?")
		args = append(args, "%;"+p.Language+";%")
	}
	if p.Year != nil {
		where = append(where, "f.year = ?")
		args = append(args, *p.Year)
	}
	if p.TorrentID != nil {
		where = append(where, "f.torrent_id = ?")
		args = append(args, *p.TorrentID)
	}
	if len(where) > 0 {
		b.WriteString("WHERE " + strings.Join(where, " AND ") + " ")
	}

	switch p.OrderBy {
	case "rank":
		if haveQuery && useFTS {
			b.WriteString("ORDER BY rank ")
		} else {
			b.WriteString("ORDER BY f.id ")
		}
	case "year":
		b.WriteString("ORDER BY f.year NULLS FIRST ")
	case "title":
		b.WriteString("ORDER BY f.title NULLS FIRST ")
	default:
		b.WriteString("ORDER BY f.id ")
	}

	b.WriteString("LIMIT ? OFFSET ?")
	args = append(args, p.Limit, p.Offset)

	var rows []fileRow
	if err := s.db.SelectContext(ctx, &rows, b.String(), args...); err != nil {
		return nil, err
	}
	return toRecords(rows)
}

func isFTSSyntaxError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "fts5: syntax error") || strings.Contains(msg, "unterminated string")
}

// CountFiles returns the number of catalogued files belonging to torrentID,
// or every catalogued file if torrentID is nil (spec §4.6 count_files(torrent_id)).
func (s *Store) CountFiles(ctx context.Context, torrentID *int64) (int64, error) {
	var n int64
	var err error
	if torrentID == nil {
		err = s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM files`)
	} else {
		err = s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM files WHERE torrent_id = ?`, *torrentID)
	}
	return n, err
}

// FindFilesByTorrentPage returns up to limit FileRecords belonging to
// torrentID, ordered by id, starting after afterID — the paged iterator
// spec §4.5/§9 requires for is_seed_all completion bookkeeping (a page is
// safe to replay since TorrentFileRecord inserts are idempotent on file_id).
func (s *Store) FindFilesByTorrentPage(ctx context.Context, torrentID, afterID int64, limit int) ([]*FileRecord, error) {
	var rows []fileRow
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT f.id, f.md5, f.title, f.author, f.year, f.extension, f.server_path,
		       f.description_compressed, f.cover_url, f.language, f.ipfs_cid,
		       f.torrent_id, f.byteoffset, f.is_journal,
		       COALESCE(tf.is_complete, 0) AS is_complete
		FROM files f
		LEFT JOIN torrent_files tf ON tf.file_id = f.id
		WHERE f.torrent_id = ? AND f.id > ?
		ORDER BY f.id
		LIMIT ?
	`, torrentID, afterID, limit); err != nil {
		return nil, err
	}
	return toRecords(rows)
}

// FindTorrentFileByFileID looks up the torrent_files row for a given file_id,
// used to check whether a FileRecord already has an active TorrentFileRecord
// before creating a second one (spec §9: "at most one active TorrentFileRecord
// per FileRecord").
func (s *Store) FindTorrentFileByFileID(ctx context.Context, fileID int64) (*TorrentFileRecord, error) {
	var row torrentFileRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, torrent_id, filename, file_id, is_complete, local_path
		FROM torrent_files WHERE file_id = ?
	`, fileID)
	if err != nil {
		return nil, err
	}
	rec := row.toRecord()
	return &rec, nil
}

// AddSeedFile implements spec §6.3's seeder.add(FileRecord): marks f as
// wanted for seeding by ensuring a torrent_files row exists for it (a second
// call for the same file is a no-op, matching the "idempotent on file_id"
// invariant its paged seed_all counterpart relies on) and flips the parent
// torrent into is_seeding. Returns ErrNotFound if f has no TorrentID — it
// can't be seeded from a torrent it was never extracted from.
func (s *Store) AddSeedFile(ctx context.Context, f *FileRecord) error {
	if f.TorrentID == nil {
		return &ErrNotFound{Kind: "torrent for file", Key: f.MD5}
	}

	existing, err := s.FindTorrentFileByFileID(ctx, f.ID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return err
	}
	if existing == nil {
		filename := f.MD5
		if len(f.ServerPath) > 0 {
			filename = f.ServerPath[0][strings.LastIndex(f.ServerPath[0], "/")+1:]
		}
		if _, err := s.InsertTorrentFile(ctx, &TorrentFileRecord{
			TorrentID: *f.TorrentID,
			FileID:    f.ID,
			Filename:  filename,
		}); err != nil {
			return err
		}
	}

	_, err = s.db.ExecContext(ctx, `UPDATE torrents SET is_seeding = 1 WHERE id = ?`, *f.TorrentID)
	return err
}

// RemoveSeedFile implements spec §6.3's seeder.remove(FileRecord): drops f's
// torrent_files row. If it was the torrent's last wanted file,
// RemoveTorrentFile's own side effect flips is_seeding off (spec's refinement
// from repositories/seeds.py, see DESIGN.md). A file with no active
// torrent_files row is already "not seeding" — a no-op, not an error.
func (s *Store) RemoveSeedFile(ctx context.Context, f *FileRecord) error {
	existing, err := s.FindTorrentFileByFileID(ctx, f.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return err
	}
	return s.RemoveTorrentFile(ctx, existing.ID)
}

// SeedAll implements spec §6.3's seeder.seed_all(torrent_id): seed every file
// in the torrent without tracking individual torrent_files rows (is_seed_all
// torrents are completed via the paged batch path instead, see
// internal/seedmanager/completion.go).
func (s *Store) SeedAll(ctx context.Context, torrentID int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE torrents SET is_seeding = 1, is_seed_all = 1 WHERE id = ?`, torrentID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &ErrNotFound{Kind: "torrent", Key: fmt.Sprint(torrentID)}
	}
	return nil
}

// StopSeeding implements spec §6.3's seeder.stop(torrent_id): removes the
// torrent from the desired set outright, regardless of how it got there
// (targeted files or seed_all) — the next reconciliation tick drops the live
// session.
func (s *Store) StopSeeding(ctx context.Context, torrentID int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE torrents SET is_seeding = 0 WHERE id = ?`, torrentID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &ErrNotFound{Kind: "torrent", Key: fmt.Sprint(torrentID)}
	}
	return nil
}

// UpsertTorrent inserts t or, if a torrent at the same path already exists,
// updates its mutable fields, returning the assigned id either way.
func (s *Store) UpsertTorrent(ctx context.Context, t *TorrentRecord) (int64, error) {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO torrents (
			path, magnet_link, added_to_torrents_list_at, data_size,
			num_files, obsolete, embargo, is_seeding, is_seed_all
		) VALUES (
			:path, :magnet_link, :added_to_torrents_list_at, :data_size,
			:num_files, :obsolete, :embargo, :is_seeding, :is_seed_all
		)
		ON CONFLICT(path) DO UPDATE SET
			magnet_link = excluded.magnet_link,
			added_to_torrents_list_at = excluded.added_to_torrents_list_at,
			data_size = excluded.data_size,
			num_files = excluded.num_files,
			obsolete = excluded.obsolete,
			embargo = excluded.embargo,
			is_seeding = excluded.is_seeding,
			is_seed_all = excluded.is_seed_all
	`, &torrentRow{
		Path:       t.Path,
		MagnetLink: t.MagnetLink,
		AddedAt:    t.AddedAt,
		DataSize:   t.DataSize,
		NumFiles:   t.NumFiles,
		Obsolete:   t.Obsolete,
		Embargo:    t.Embargo,
		IsSeeding:  t.IsSeeding,
		IsSeedAll:  t.IsSeedAll,
	})
	if err != nil {
		return 0, fmt.Errorf("upsert torrent: %s", err)
	}

	var id int64
	if err := s.db.GetContext(ctx, &id, `SELECT id FROM torrents WHERE path = ?`, t.Path); err != nil {
		return 0, err
	}
	return id, nil
}

// GetTorrent returns a single torrent by id.
func (s *Store) GetTorrent(ctx context.Context, id int64) (*TorrentRecord, error) {
	var row torrentRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, path, magnet_link, added_to_torrents_list_at, data_size,
		       num_files, obsolete, embargo, is_seeding, is_seed_all
		FROM torrents WHERE id = ?
	`, id)
	if err != nil {
		return nil, err
	}
	return row.toRecord(), nil
}

// ListSeeding returns every torrent currently flagged is_seeding — the seed
// manager's desired set (spec §4.5). Targeted torrents (is_seed_all = false)
// come back with their TorrentFileRecords populated; is_seed_all torrents
// don't need them since start_torrent treats an empty wanted list as
// "download everything".
func (s *Store) ListSeeding(ctx context.Context) ([]*TorrentRecord, error) {
	var rows []torrentRow
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT id, path, magnet_link, added_to_torrents_list_at, data_size,
		       num_files, obsolete, embargo, is_seeding, is_seed_all
		FROM torrents WHERE is_seeding = 1
	`); err != nil {
		return nil, err
	}
	out := make([]*TorrentRecord, 0, len(rows))
	for i := range rows {
		t := rows[i].toRecord()
		if !t.IsSeedAll {
			files, err := s.ListTorrentFiles(ctx, t.ID)
			if err != nil {
				return nil, err
			}
			t.Files = files
		}
		out = append(out, t)
	}
	return out, nil
}

// InsertTorrentFile records a file as belonging to a torrent.
func (s *Store) InsertTorrentFile(ctx context.Context, tf *TorrentFileRecord) (int64, error) {
	res, err := s.db.NamedExecContext(ctx, `
		INSERT INTO torrent_files (torrent_id, filename, file_id, is_complete, local_path)
		VALUES (:torrent_id, :filename, :file_id, :is_complete, :local_path)
	`, &torrentFileRow{
		TorrentID:  tf.TorrentID,
		Filename:   tf.Filename,
		FileID:     tf.FileID,
		IsComplete: tf.IsComplete,
		LocalPath:  tf.LocalPath,
	})
	if err != nil {
		return 0, fmt.Errorf("insert torrent file: %s", err)
	}
	return res.LastInsertId()
}

// SetTorrentFileComplete marks a torrent_files row as complete (or not) and
// records its on-disk location.
func (s *Store) SetTorrentFileComplete(ctx context.Context, torrentFileID int64, complete bool, localPath string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE torrent_files SET is_complete = ?, local_path = ? WHERE id = ?
	`, complete, localPath, torrentFileID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &ErrNotFound{Kind: "torrent_file", Key: fmt.Sprint(torrentFileID)}
	}
	return nil
}

// ListTorrentFiles returns every file tracked under a torrent.
func (s *Store) ListTorrentFiles(ctx context.Context, torrentID int64) ([]TorrentFileRecord, error) {
	var rows []torrentFileRow
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT id, torrent_id, filename, file_id, is_complete, local_path
		FROM torrent_files WHERE torrent_id = ?
	`, torrentID); err != nil {
		return nil, err
	}
	out := make([]TorrentFileRecord, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toRecord())
	}
	return out, nil
}

// RemoveTorrentFile deletes a torrent_files row. If that was the torrent's
// last tracked file, the torrent is flipped out of is_seeding — there is
// nothing left for the seed manager to keep that torrent around for (spec
// §4.5's reconciliation loop treats an empty desired set as "stop seeding").
func (s *Store) RemoveTorrentFile(ctx context.Context, torrentFileID int64) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var torrentID int64
	if err := tx.GetContext(ctx, &torrentID,
		`SELECT torrent_id FROM torrent_files WHERE id = ?`, torrentFileID); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM torrent_files WHERE id = ?`, torrentFileID); err != nil {
		return err
	}

	var remaining int
	if err := tx.GetContext(ctx, &remaining,
		`SELECT COUNT(*) FROM torrent_files WHERE torrent_id = ?`, torrentID); err != nil {
		return err
	}
	if remaining == 0 {
		if _, err := tx.ExecContext(ctx,
			`UPDATE torrents SET is_seeding = 0 WHERE id = ?`, torrentID); err != nil {
			return err
		}
	}

	return tx.Commit()
}
