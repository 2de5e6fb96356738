package sqlite

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavel-fokin/media-drop/internal/files"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRepository(t *testing.T) (*Repository, string) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "data", "files.db")
	repo, err := NewRepository(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo, dbPath
}

func TestRepositoryEmpty(t *testing.T) {
	repo, _ := newTestRepository(t)

	records, err := repo.Load()
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestRepositorySaveLoad(t *testing.T) {
	repo, _ := newTestRepository(t)

	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	records := []files.Record{
		{
			ID:            "a.mp4",
			OriginalName:  "clip.mp4",
			Size:          42,
			MimeType:      "video/mp4",
			CreatedAt:     created,
			ExpiryMinutes: 1.5,
			ExpiresAt:     created.Add(90 * time.Second),
			Metadata:      map[string]any{"owner": "x"},
		},
		{
			ID:            "b.mov",
			OriginalName:  "other.mov",
			MimeType:      "video/quicktime",
			CreatedAt:     created.Add(time.Minute),
			ExpiryMinutes: 60,
			ExpiresAt:     created.Add(61 * time.Minute),
			Metadata:      map[string]any{},
		},
	}
	require.NoError(t, repo.Save(records))

	loaded, err := repo.Load()
	require.NoError(t, err)
	require.Len(t, loaded, 2)

	assert.Equal(t, "a.mp4", loaded[0].ID)
	assert.Equal(t, "clip.mp4", loaded[0].OriginalName)
	assert.Equal(t, int64(42), loaded[0].Size)
	assert.Equal(t, "video/mp4", loaded[0].MimeType)
	assert.Equal(t, 1.5, loaded[0].ExpiryMinutes)
	assert.True(t, created.Equal(loaded[0].CreatedAt))
	assert.True(t, created.Add(90*time.Second).Equal(loaded[0].ExpiresAt))
	assert.Equal(t, "x", loaded[0].Metadata["owner"])
	assert.Nil(t, loaded[0].UpdatedAt)
	assert.Nil(t, loaded[0].DeletedAt)
	assert.False(t, loaded[0].Deleted)

	assert.Equal(t, "b.mov", loaded[1].ID)
}

func TestRepositorySaveUpdatesExisting(t *testing.T) {
	repo, _ := newTestRepository(t)

	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	rec := files.Record{
		ID:            "a.mp4",
		CreatedAt:     created,
		ExpiryMinutes: 10,
		ExpiresAt:     created.Add(10 * time.Minute),
		Metadata:      map[string]any{},
	}
	require.NoError(t, repo.Save([]files.Record{rec}))

	updated := created.Add(5 * time.Minute)
	deleted := created.Add(20 * time.Minute)
	rec.UpdatedAt = &updated
	rec.ExpiryMinutes = 15
	rec.ExpiresAt = updated.Add(15 * time.Minute)
	rec.Metadata = map[string]any{"k": "v"}
	rec.Deleted = true
	rec.DeletedAt = &deleted
	require.NoError(t, repo.Save([]files.Record{rec}))

	loaded, err := repo.Load()
	require.NoError(t, err)
	require.Len(t, loaded, 1)

	got := loaded[0]
	assert.Equal(t, 15.0, got.ExpiryMinutes)
	assert.True(t, updated.Add(15*time.Minute).Equal(got.ExpiresAt))
	require.NotNil(t, got.UpdatedAt)
	assert.True(t, updated.Equal(*got.UpdatedAt))
	assert.True(t, got.Deleted)
	require.NotNil(t, got.DeletedAt)
	assert.True(t, deleted.Equal(*got.DeletedAt))
	assert.Equal(t, "v", got.Metadata["k"])
}

func TestRepositoryReopen(t *testing.T) {
	repo, dbPath := newTestRepository(t)

	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Save([]files.Record{{
		ID:            "a.mp4",
		CreatedAt:     created,
		ExpiryMinutes: 10,
		ExpiresAt:     created.Add(10 * time.Minute),
	}}))
	require.NoError(t, repo.Close())

	// schema setup is repeatable on an existing database
	reopened, err := NewRepository(dbPath)
	require.NoError(t, err)
	defer reopened.Close()

	loaded, err := reopened.Load()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "a.mp4", loaded[0].ID)
}

func TestRepositoryWithStore(t *testing.T) {
	repo, _ := newTestRepository(t)

	store := files.NewStore(repo, 10, discardLogger())
	store.Load()

	_, err := store.Create(files.Descriptor{ID: "a.mp4", OriginalName: "clip.mp4", MimeType: "video/mp4"}, nil, map[string]any{"n": 1.0})
	require.NoError(t, err)
	_, err = store.MarkDeleted("a.mp4")
	require.NoError(t, err)
	store.Flush()

	restarted := files.NewStore(repo, 10, discardLogger())
	restarted.Load()

	rec, err := restarted.Get("a.mp4")
	require.NoError(t, err)
	assert.True(t, rec.Deleted)
	assert.Equal(t, 1.0, rec.Metadata["n"])
}
