package snapshot

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCatalogueAppendAndReadAll(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshots.jsonl")
	c := Open(path)

	rec1 := Record{Name: "2026-07-01", Location: "s3://bucket/snap-1", CreatedAt: time.Now(), SizeBytes: 1024}
	rec2 := Record{Name: "2026-07-02", Location: "s3://bucket/snap-2", CreatedAt: time.Now(), SizeBytes: 2048, Note: "manual backup"}

	require.NoError(t, c.Append(rec1))
	require.NoError(t, c.Append(rec2))

	records, err := c.ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, "2026-07-01", records[0].Name)
	require.Equal(t, "2026-07-02", records[1].Name)
	require.Equal(t, "manual backup", records[1].Note)
	require.False(t, records[0].RecordedAt.IsZero())
}

func TestCatalogueReadAllMissingFileReturnsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does-not-exist.jsonl")
	c := Open(path)

	records, err := c.ReadAll()
	require.NoError(t, err)
	require.Empty(t, records)
}
