package catalog

// fileRow mirrors the files table exactly so sqlx can scan into it directly;
// FileRecord is the decoded, caller-facing shape built from it.
type fileRow struct {
	ID                    int64   `db:"id"`
	MD5                   string  `db:"md5"`
	Title                 string  `db:"title"`
	Author                string  `db:"author"`
	Year                  *int    `db:"year"`
	Extension             string  `db:"extension"`
	ServerPath            string  `db:"server_path"`
	DescriptionCompressed []byte  `db:"description_compressed"`
	CoverURL              string  `db:"cover_url"`
	Language              string  `db:"language"`
	IPFSCID               string  `db:"ipfs_cid"`
	TorrentID             *int64  `db:"torrent_id"`
	Byteoffset            *int64  `db:"byteoffset"`
	IsJournal             bool    `db:"is_journal"`
	IsComplete            bool    `db:"is_complete"`
}

func (r *fileRow) toRecord() (*FileRecord, error) {
	desc, err := decompressDescription(r.DescriptionCompressed)
	if err != nil {
		return nil, err
	}
	return &FileRecord{
		ID:            r.ID,
		MD5:           r.MD5,
		Title:         r.Title,
		Author:        r.Author,
		Year:          r.Year,
		Extension:     r.Extension,
		ServerPath:    splitList(r.ServerPath),
		Description:   desc,
		CoverURL:      r.CoverURL,
		LanguageCodes: splitList(r.Language),
		IPFSCIDs:      splitList(r.IPFSCID),
		Byteoffset:    r.Byteoffset,
		TorrentID:     r.TorrentID,
		IsJournal:     r.IsJournal,
		IsComplete:    r.IsComplete,
	}, nil
}

type torrentRow struct {
	ID          int64  `db:"id"`
	Path        string `db:"path"`
	MagnetLink  string `db:"magnet_link"`
	AddedAt     string `db:"added_to_torrents_list_at"`
	DataSize    int64  `db:"data_size"`
	NumFiles    int    `db:"num_files"`
	Obsolete    bool   `db:"obsolete"`
	Embargo     bool   `db:"embargo"`
	IsSeeding   bool   `db:"is_seeding"`
	IsSeedAll   bool   `db:"is_seed_all"`
}

func (r *torrentRow) toRecord() *TorrentRecord {
	return &TorrentRecord{
		ID:         r.ID,
		Path:       r.Path,
		MagnetLink: r.MagnetLink,
		AddedAt:    r.AddedAt,
		DataSize:   r.DataSize,
		NumFiles:   r.NumFiles,
		Obsolete:   r.Obsolete,
		Embargo:    r.Embargo,
		IsSeeding:  r.IsSeeding,
		IsSeedAll:  r.IsSeedAll,
	}
}

type torrentFileRow struct {
	ID         int64  `db:"id"`
	TorrentID  int64  `db:"torrent_id"`
	Filename   string `db:"filename"`
	FileID     int64  `db:"file_id"`
	IsComplete bool   `db:"is_complete"`
	LocalPath  string `db:"local_path"`
}

func (r *torrentFileRow) toRecord() TorrentFileRecord {
	return TorrentFileRecord{
		ID:         r.ID,
		TorrentID:  r.TorrentID,
		FileID:     r.FileID,
		Filename:   r.Filename,
		IsComplete: r.IsComplete,
		LocalPath:  r.LocalPath,
	}
}
