package volume

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDirectoryInsertLookupErase(t *testing.T) {
	dt := newEmptyDirectory()
	a := newTestAllocator()

	require.NoError(t, dt.insert("/file", Dirent{Mode: ModeRegular}))

	record, ok := dt.lookup("/file")
	require.True(t, ok)
	require.Equal(t, "file", record.Name)

	require.NoError(t, dt.erase("/file", a))
	_, ok = dt.lookup("/file")
	require.False(t, ok)
}

func TestDirectoryInsertRejectsDuplicateAndOverflow(t *testing.T) {
	dt := newEmptyDirectory()

	require.NoError(t, dt.insert("/file", Dirent{}))
	require.Error(t, dt.insert("/file", Dirent{}))

	for i := len(dt.order); i < NumDirEntries; i++ {
		require.NoError(t, dt.insert(canonicalPathForTest(i), Dirent{}))
	}
	require.Error(t, dt.insert("/overflow", Dirent{}))
}

func canonicalPathForTest(i int) string {
	return "/f" + string(rune('a'+i%26)) + string(rune('0'+i/26))
}

func TestDirectoryRenameErrors(t *testing.T) {
	dt := newEmptyDirectory()
	require.NoError(t, dt.insert("/a", Dirent{}))
	require.NoError(t, dt.insert("/b", Dirent{}))

	require.Error(t, dt.rename("/missing", "/c", time.Now()))
	require.Error(t, dt.rename("/a", "/b", time.Now()))
	require.NoError(t, dt.rename("/a", "/c", time.Now()))

	_, ok := dt.lookup("/a")
	require.False(t, ok)
	_, ok = dt.lookup("/c")
	require.True(t, ok)
}

func TestDirentEncodeDecodeRoundTrip(t *testing.T) {
	now := time.Unix(1700000000, 0)
	d := Dirent{
		Name:       "example",
		Size:       1234,
		FirstBlock: 7,
		UID:        42,
		GID:        7,
		Mode:       ModeRegular | 0o644,
		AccessedAt: now,
		ModifiedAt: now,
		ChangedAt:  now,
	}

	decoded := decodeDirent(d.encode())
	require.Equal(t, d.Name, decoded.Name)
	require.Equal(t, d.Size, decoded.Size)
	require.Equal(t, d.FirstBlock, decoded.FirstBlock)
	require.Equal(t, d.UID, decoded.UID)
	require.Equal(t, d.GID, decoded.GID)
	require.Equal(t, d.Mode, decoded.Mode)
	require.True(t, d.AccessedAt.Equal(decoded.AccessedAt))
}

func TestDumpDirectoryCSVHeader(t *testing.T) {
	dt := newEmptyDirectory()
	require.NoError(t, dt.insert("/file", Dirent{Size: 10, Mode: ModeRegular}))

	csv, err := dt.DumpDirectoryCSV()
	require.NoError(t, err)
	require.Contains(t, csv, "name")
	require.Contains(t, csv, "file")
}
