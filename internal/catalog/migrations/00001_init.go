package migrations

import (
	"database/sql"

	"github.com/pressly/goose"
)

func init() {
	goose.AddMigration(up00001, down00001)
}

func up00001(tx *sql.Tx) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS torrents (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			path TEXT NOT NULL UNIQUE,
			magnet_link TEXT NOT NULL DEFAULT '',
			added_to_torrents_list_at TEXT NOT NULL DEFAULT '',
			data_size INTEGER NOT NULL DEFAULT 0,
			num_files INTEGER NOT NULL DEFAULT 0,
			obsolete INTEGER NOT NULL DEFAULT 0,
			embargo INTEGER NOT NULL DEFAULT 0,
			is_seeding INTEGER NOT NULL DEFAULT 0,
			is_seed_all INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE TABLE IF NOT EXISTS files (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			md5 TEXT NOT NULL UNIQUE,
			title TEXT NOT NULL DEFAULT '',
			author TEXT NOT NULL DEFAULT '',
			year INTEGER,
			extension TEXT NOT NULL,
			server_path TEXT NOT NULL DEFAULT '',
			description_compressed BLOB,
			cover_url TEXT NOT NULL DEFAULT '',
			language TEXT NOT NULL DEFAULT '',
			ipfs_cid TEXT NOT NULL DEFAULT '',
			torrent_id INTEGER REFERENCES torrents(id),
			byteoffset INTEGER,
			is_journal INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE VIRTUAL TABLE IF NOT EXISTS files_fts USING fts5(
			body,
			content='',
			tokenize='porter unicode61'
		);`,
		`CREATE TABLE IF NOT EXISTS torrent_files (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			torrent_id INTEGER NOT NULL REFERENCES torrents(id),
			filename TEXT NOT NULL,
			file_id INTEGER NOT NULL UNIQUE REFERENCES files(id),
			is_complete INTEGER NOT NULL DEFAULT 0,
			local_path TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE INDEX IF NOT EXISTS idx_torrent_files_torrent_id ON torrent_files(torrent_id);`,
		`CREATE INDEX IF NOT EXISTS idx_files_torrent_id ON files(torrent_id);`,
	}
	for _, s := range stmts {
		if _, err := tx.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func down00001(tx *sql.Tx) error {
	stmts := []string{
		`DROP TABLE IF EXISTS torrent_files;`,
		`DROP TABLE IF EXISTS files_fts;`,
		`DROP TABLE IF EXISTS files;`,
		`DROP TABLE IF EXISTS torrents;`,
	}
	for _, s := range stmts {
		if _, err := tx.Exec(s); err != nil {
			return err
		}
	}
	return nil
}
