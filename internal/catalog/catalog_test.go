package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Config{Source: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestInsertFileAndFindByIDs(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	year := 1984
	id, err := s.InsertFile(ctx, &FileRecord{
		MD5:           "d41d8cd98f00b204e9800998ecf8427e",
		Title:         "Neuromancer",
		Author:        "William Gibson",
		Year:          &year,
		Extension:     "epub",
		ServerPath:    []string{"books/neuromancer.epub"},
		Description:   "A cyberpunk classic.",
		LanguageCodes: []string{"en"},
	})
	require.NoError(t, err)
	require.NotZero(t, id)

	found, err := s.FindByIDs(ctx, []int64{id})
	require.NoError(t, err)
	require.Len(t, found, 1)
	require.Equal(t, "Neuromancer", found[0].Title)
	require.Equal(t, []string{"books/neuromancer.epub"}, found[0].ServerPath)
	require.Equal(t, "A cyberpunk classic.", found[0].Description)
	require.False(t, found[0].Downloadable())
}

func TestSearchFindsByTitleAndFallsBackOnBadQuery(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.InsertFile(ctx, &FileRecord{
		MD5:       "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
		Title:     "Snow Crash",
		Author:    "Neal Stephenson",
		Extension: "epub",
	})
	require.NoError(t, err)

	results, err := s.Search(ctx, SearchParams{Query: "Snow", Limit: 10})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "Snow Crash", results[0].Title)

	// An unbalanced quote is a syntax error to the FTS5 parser; Search must
	// re-run the query with its tokens quoted instead of returning an error.
	results, err = s.Search(ctx, SearchParams{Query: `"Snow`, Limit: 10})
	require.NoError(t, err)
	require.Len(t, results, 1)
}

func TestSearchFiltersAndOrdering(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	torrentID, err := s.UpsertTorrent(ctx, &TorrentRecord{Path: "sf.torrent"})
	require.NoError(t, err)

	y1992 := 1992
	id1, err := s.InsertFile(ctx, &FileRecord{
		MD5: "11111111111111111111111111111111", Title: "Snow Crash", Year: &y1992,
		Extension: "epub", LanguageCodes: []string{"en"}, TorrentID: &torrentID,
	})
	require.NoError(t, err)
	y2003 := 2003
	_, err = s.InsertFile(ctx, &FileRecord{
		MD5: "22222222222222222222222222222222", Title: "Snow Falling on Cedars", Year: &y2003,
		Extension: "epub", LanguageCodes: []string{"fr"},
	})
	require.NoError(t, err)

	_, err = s.InsertTorrentFile(ctx, &TorrentFileRecord{TorrentID: torrentID, FileID: id1, Filename: "snowcrash.epub", IsComplete: true})
	require.NoError(t, err)

	results, err := s.Search(ctx, SearchParams{Query: "Snow", Language: "en", Limit: 10})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "Snow Crash", results[0].Title)
	require.True(t, results[0].IsComplete)

	results, err = s.Search(ctx, SearchParams{Query: "Snow", Year: &y2003, Limit: 10})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "Snow Falling on Cedars", results[0].Title)

	results, err = s.Search(ctx, SearchParams{Query: "Snow", LocalOnly: true, Limit: 10})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "Snow Crash", results[0].Title)

	results, err = s.Search(ctx, SearchParams{Query: "Snow", OrderBy: "year", Limit: 10})
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, "Snow Crash", results[0].Title)
}

func TestInsertFileIdempotentOnMD5Collision(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id1, err := s.InsertFile(ctx, &FileRecord{
		MD5: "33333333333333333333333333333333", Title: "First Title", Extension: "epub",
	})
	require.NoError(t, err)

	id2, err := s.InsertFile(ctx, &FileRecord{
		MD5: "33333333333333333333333333333333", Title: "Second Title", Extension: "epub",
	})
	require.NoError(t, err)
	require.Equal(t, id1, id2)

	found, err := s.FindByIDs(ctx, []int64{id1})
	require.NoError(t, err)
	require.Len(t, found, 1)
	require.Equal(t, "First Title", found[0].Title)

	results, err := s.Search(ctx, SearchParams{Query: "First", Limit: 10})
	require.NoError(t, err)
	require.Len(t, results, 1)
}

func TestUpsertTorrentAndListSeeding(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	id, err := s.UpsertTorrent(ctx, &TorrentRecord{
		Path:      "archive/2026-01.torrent",
		IsSeeding: true,
	})
	require.NoError(t, err)

	seeding, err := s.ListSeeding(ctx)
	require.NoError(t, err)
	require.Len(t, seeding, 1)
	require.Equal(t, id, seeding[0].ID)

	id2, err := s.UpsertTorrent(ctx, &TorrentRecord{
		Path:      "archive/2026-01.torrent",
		IsSeeding: false,
	})
	require.NoError(t, err)
	require.Equal(t, id, id2)

	seeding, err = s.ListSeeding(ctx)
	require.NoError(t, err)
	require.Empty(t, seeding)
}

func TestRemoveTorrentFileFlipsSeedingOnLastFile(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	torrentID, err := s.UpsertTorrent(ctx, &TorrentRecord{Path: "t.torrent", IsSeeding: true})
	require.NoError(t, err)

	fileID, err := s.InsertFile(ctx, &FileRecord{MD5: "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb", Extension: "pdf"})
	require.NoError(t, err)

	tfID, err := s.InsertTorrentFile(ctx, &TorrentFileRecord{
		TorrentID: torrentID,
		Filename:  "book.pdf",
		FileID:    fileID,
	})
	require.NoError(t, err)

	require.NoError(t, s.RemoveTorrentFile(ctx, tfID))

	seeding, err := s.ListSeeding(ctx)
	require.NoError(t, err)
	require.Empty(t, seeding)
}

func TestAddSeedFileThenRemoveSeedFile(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	torrentID, err := s.UpsertTorrent(ctx, &TorrentRecord{Path: "t2.torrent"})
	require.NoError(t, err)

	fileID, err := s.InsertFile(ctx, &FileRecord{
		MD5:        "cccccccccccccccccccccccccccccccc",
		Extension:  "pdf",
		ServerPath: []string{"book2.pdf"},
		TorrentID:  &torrentID,
	})
	require.NoError(t, err)

	f := &FileRecord{ID: fileID, MD5: "cccccccccccccccccccccccccccccccc", ServerPath: []string{"book2.pdf"}, TorrentID: &torrentID}

	require.NoError(t, s.AddSeedFile(ctx, f))
	seeding, err := s.ListSeeding(ctx)
	require.NoError(t, err)
	require.Len(t, seeding, 1)
	require.Len(t, seeding[0].Files, 1)

	// Calling AddSeedFile again for the same file must not create a second row.
	require.NoError(t, s.AddSeedFile(ctx, f))
	files, err := s.ListTorrentFiles(ctx, torrentID)
	require.NoError(t, err)
	require.Len(t, files, 1)

	require.NoError(t, s.RemoveSeedFile(ctx, f))
	seeding, err = s.ListSeeding(ctx)
	require.NoError(t, err)
	require.Empty(t, seeding)

	// Removing again (no active row left) is a no-op, not an error.
	require.NoError(t, s.RemoveSeedFile(ctx, f))
}

func TestSeedAllAndStopSeeding(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	torrentID, err := s.UpsertTorrent(ctx, &TorrentRecord{Path: "t3.torrent"})
	require.NoError(t, err)

	require.NoError(t, s.SeedAll(ctx, torrentID))
	seeding, err := s.ListSeeding(ctx)
	require.NoError(t, err)
	require.Len(t, seeding, 1)
	require.True(t, seeding[0].IsSeedAll)

	require.NoError(t, s.StopSeeding(ctx, torrentID))
	seeding, err = s.ListSeeding(ctx)
	require.NoError(t, err)
	require.Empty(t, seeding)

	err = s.SeedAll(ctx, 99999)
	require.Error(t, err)
}
