package volume_test

import (
	"bytes"
	"crypto/rand"
	"fmt"
	"log"
	"testing"

	"github.com/MGZeroes/bslab/errors"
	"github.com/MGZeroes/bslab/volume"
	"github.com/stretchr/testify/require"
)

func mustMount(t *testing.T) *volume.Volume {
	t.Helper()
	dev := volume.NewMemoryBlockDevice()
	vol, err := volume.Mount(dev, false, nil)
	require.NoError(t, err)
	return vol
}

func mustCreate(t *testing.T, vol *volume.Volume, path string) {
	t.Helper()
	require.NoError(t, vol.Create(path, 0o644, 1000, 1000))
}

// TestRoundTrip covers universal property 1: write then read back returns
// exactly the written bytes.
func TestRoundTrip(t *testing.T) {
	vol := mustMount(t)
	mustCreate(t, vol, "/file")

	payload := make([]byte, 10*volume.BlockSize+37)
	_, err := rand.Read(payload)
	require.NoError(t, err)

	n, err := vol.Write("/file", 0, payload)
	require.NoError(t, err)
	require.Equal(t, len(payload), n)

	out := make([]byte, len(payload))
	n, err = vol.Read("/file", 0, out)
	require.NoError(t, err)
	require.Equal(t, len(payload), n)
	require.Equal(t, payload, out)
}

// TestPartialOverwrite covers universal property 2 and scenario S2.
func TestPartialOverwrite(t *testing.T) {
	vol := mustMount(t)
	mustCreate(t, vol, "/file")

	_, err := vol.Write("/file", 0, []byte("abcde"))
	require.NoError(t, err)

	_, err = vol.Write("/file", 1, []byte("xyz"))
	require.NoError(t, err)

	out := make([]byte, 5)
	_, err = vol.Read("/file", 0, out)
	require.NoError(t, err)
	require.Equal(t, "axyze", string(out))
}

// TestPartialOverwriteAtTail covers scenario S3: an overwrite that starts
// inside the prior content and runs one byte past its end.
func TestPartialOverwriteAtTail(t *testing.T) {
	vol := mustMount(t)
	mustCreate(t, vol, "/file")

	_, err := vol.Write("/file", 0, []byte("abcde"))
	require.NoError(t, err)
	_, err = vol.Write("/file", 3, []byte("xyz"))
	require.NoError(t, err)

	out := make([]byte, 6)
	_, err = vol.Read("/file", 0, out)
	require.NoError(t, err)
	require.Equal(t, "abcxyz", string(out))
}

// TestSparseExtension covers universal property 3 and scenario S4: writing
// past the current end of the file leaves the original content untouched
// and places the new bytes at their offset.
func TestSparseExtension(t *testing.T) {
	vol := mustMount(t)
	mustCreate(t, vol, "/file")

	_, err := vol.Write("/file", 0, []byte("abcde"))
	require.NoError(t, err)
	_, err = vol.Write("/file", 7, []byte("xyz"))
	require.NoError(t, err)

	head := make([]byte, 5)
	_, err = vol.Read("/file", 0, head)
	require.NoError(t, err)
	require.Equal(t, "abcde", string(head))

	tail := make([]byte, 3)
	_, err = vol.Read("/file", 7, tail)
	require.NoError(t, err)
	require.Equal(t, "xyz", string(tail))
}

// TestOverwriteFromOffsetZero covers scenario S9: a second, shorter write
// at offset 0 leaves the untouched tail of the first write intact.
func TestOverwriteFromOffsetZero(t *testing.T) {
	vol := mustMount(t)
	mustCreate(t, vol, "/a")

	r := make([]byte, 2048)
	_, err := rand.Read(r)
	require.NoError(t, err)
	_, err = vol.Write("/a", 0, r)
	require.NoError(t, err)

	w := make([]byte, 768)
	_, err = rand.Read(w)
	require.NoError(t, err)
	_, err = vol.Write("/a", 0, w)
	require.NoError(t, err)

	out := make([]byte, 2048)
	_, err = vol.Read("/a", 0, out)
	require.NoError(t, err)
	require.Equal(t, w, out[:768])
	require.Equal(t, r[768:], out[768:])
}

// TestTruncate covers scenario S5.
func TestTruncate(t *testing.T) {
	vol := mustMount(t)
	mustCreate(t, vol, "/file")

	payload := make([]byte, 1024)
	_, err := rand.Read(payload)
	require.NoError(t, err)
	_, err = vol.Write("/file", 0, payload)
	require.NoError(t, err)

	require.NoError(t, vol.Truncate("/file", 512))
	attr, err := vol.Getattr("/file")
	require.NoError(t, err)
	require.EqualValues(t, 512, attr.Size)

	require.NoError(t, vol.Truncate("/file", 256))
	attr, err = vol.Getattr("/file")
	require.NoError(t, err)
	require.EqualValues(t, 256, attr.Size)
}

// TestIsolationAcrossFiles covers universal property 8 and scenario S10:
// interleaved writes to two files never cross-contaminate their bytes.
func TestIsolationAcrossFiles(t *testing.T) {
	vol := mustMount(t)
	mustCreate(t, vol, "/a")
	mustCreate(t, vol, "/b")

	a1 := make([]byte, 768)
	_, err := rand.Read(a1)
	require.NoError(t, err)
	b1 := make([]byte, 768)
	_, err = rand.Read(b1)
	require.NoError(t, err)

	_, err = vol.Write("/a", 0, a1)
	require.NoError(t, err)
	_, err = vol.Write("/b", 0, b1)
	require.NoError(t, err)

	a2 := make([]byte, 2048)
	_, err = rand.Read(a2)
	require.NoError(t, err)
	b2 := make([]byte, 2048)
	_, err = rand.Read(b2)
	require.NoError(t, err)

	_, err = vol.Write("/a", 0, a2)
	require.NoError(t, err)
	_, err = vol.Write("/b", 0, b2)
	require.NoError(t, err)

	outA := make([]byte, 2048)
	_, err = vol.Read("/a", 0, outA)
	require.NoError(t, err)
	require.Equal(t, a2, outA)

	outB := make([]byte, 2048)
	_, err = vol.Read("/b", 0, outB)
	require.NoError(t, err)
	require.Equal(t, b2, outB)
}

// TestInterleavedMultiFile covers scenario S6: many files, each written in
// small interleaved strides, read back identically.
func TestInterleavedMultiFile(t *testing.T) {
	vol := mustMount(t)

	const numFiles = 64
	paths := make([]string, numFiles)
	contents := make([][]byte, numFiles)
	for i := 0; i < numFiles; i++ {
		paths[i] = fmt.Sprintf("/f%02d", i)
		mustCreate(t, vol, paths[i])
		contents[i] = make([]byte, 1024)
		_, err := rand.Read(contents[i])
		require.NoError(t, err)
	}

	const stride = 16
	for off := 0; off < 1024; off += stride {
		for i := 0; i < numFiles; i++ {
			_, err := vol.Write(paths[i], int64(off), contents[i][off:off+stride])
			require.NoError(t, err)
		}
	}

	for i := 0; i < numFiles; i++ {
		out := make([]byte, 1024)
		_, err := vol.Read(paths[i], 0, out)
		require.NoError(t, err)
		require.Equal(t, contents[i], out)
	}
}

// TestDirectoryCountBound covers universal property 5.
func TestDirectoryCountBound(t *testing.T) {
	vol := mustMount(t)
	for i := 0; i < volume.NumDirEntries; i++ {
		require.NoError(t, vol.Create(fmt.Sprintf("/f%d", i), 0o644, 0, 0))
	}
	err := vol.Create("/overflow", 0o644, 0, 0)
	require.ErrorIs(t, err, errors.ErrNoSpace.Errno)
}

// TestOpenCountBound covers universal property 6 and scenario S7.
func TestOpenCountBound(t *testing.T) {
	vol := mustMount(t)
	paths := make([]string, volume.NumOpenFiles)
	for i := 0; i < volume.NumOpenFiles; i++ {
		paths[i] = fmt.Sprintf("/f%d", i)
		mustCreate(t, vol, paths[i])
		_, err := vol.Open(paths[i])
		require.NoError(t, err)
	}

	// The directory is full at this point; unlinking an open file frees its
	// directory slot but leaves its open-registry entry in place.
	require.NoError(t, vol.Unlink(paths[0]))

	mustCreate(t, vol, "/overflow")
	_, err := vol.Open("/overflow")
	require.ErrorIs(t, err, errors.ErrTooManyOpen.Errno)
}

// TestCreateOpenCloseUnlinkReopen covers scenario S1.
func TestCreateOpenCloseUnlinkReopen(t *testing.T) {
	vol := mustMount(t)
	mustCreate(t, vol, "/file")

	_, err := vol.Open("/file")
	require.NoError(t, err)
	vol.Release("/file")

	require.NoError(t, vol.Unlink("/file"))

	_, err = vol.Open("/file")
	require.ErrorIs(t, err, errors.ErrNotFound.Errno)
}

// TestPersistence covers universal property 7: unmounting and remounting
// the same container preserves directory contents, sizes, bytes, and
// permissions.
func TestPersistence(t *testing.T) {
	dev := volume.NewMemoryBlockDevice()
	vol, err := volume.Mount(dev, false, nil)
	require.NoError(t, err)

	mustCreate(t, vol, "/file")
	require.NoError(t, vol.Chmod("/file", 0o600))
	_, err = vol.Write("/file", 0, []byte("hello world"))
	require.NoError(t, err)
	require.NoError(t, vol.Close())

	reopened, err := volume.Mount(dev, true, nil)
	require.NoError(t, err)

	attr, err := reopened.Getattr("/file")
	require.NoError(t, err)
	require.EqualValues(t, 11, attr.Size)
	require.EqualValues(t, 0o600, attr.Mode&0o777)

	out := make([]byte, 11)
	_, err = reopened.Read("/file", 0, out)
	require.NoError(t, err)
	require.Equal(t, "hello world", string(out))
}

// TestRenameNotFoundAndExists exercises the directory table's rename error
// paths.
func TestRenameNotFoundAndExists(t *testing.T) {
	vol := mustMount(t)
	mustCreate(t, vol, "/a")
	mustCreate(t, vol, "/b")

	require.ErrorIs(t, vol.Rename("/missing", "/c"), errors.ErrNotFound.Errno)
	require.ErrorIs(t, vol.Rename("/a", "/b"), errors.ErrExists.Errno)

	require.NoError(t, vol.Rename("/a", "/c"))
	_, err := vol.Getattr("/a")
	require.Error(t, err)
	_, err = vol.Getattr("/c")
	require.NoError(t, err)
}

// TestChmodPreservesFileType ensures chmod only ever touches the
// permission bits.
func TestChmodPreservesFileType(t *testing.T) {
	vol := mustMount(t)
	mustCreate(t, vol, "/file")

	require.NoError(t, vol.Chmod("/file", 0o755))
	attr, err := vol.Getattr("/file")
	require.NoError(t, err)
	require.EqualValues(t, volume.ModeRegular, attr.Mode&^0o777)
	require.EqualValues(t, 0o755, attr.Mode&0o777)
}

// TestReadPastEndOfFile covers the EOF contract: reading at or past the
// current size returns 0 bytes, not an error.
func TestReadPastEndOfFile(t *testing.T) {
	vol := mustMount(t)
	mustCreate(t, vol, "/file")
	_, err := vol.Write("/file", 0, []byte("abc"))
	require.NoError(t, err)

	out := make([]byte, 10)
	n, err := vol.Read("/file", 3, out)
	require.NoError(t, err)
	require.Equal(t, 0, n)

	n, err = vol.Read("/file", 1000, out)
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

// TestNegativeOffsetIsBadArgument covers the bad-argument error path.
func TestNegativeOffsetIsBadArgument(t *testing.T) {
	vol := mustMount(t)
	mustCreate(t, vol, "/file")

	_, err := vol.Write("/file", -1, []byte("x"))
	require.ErrorIs(t, err, errors.ErrBadArgument.Errno)

	_, err = vol.Read("/file", -1, make([]byte, 1))
	require.ErrorIs(t, err, errors.ErrBadArgument.Errno)
}

// TestWriteClampAtCapacity covers scenario S8. It allocates the entire
// data area, so it's skipped in short test runs.
func TestWriteClampAtCapacity(t *testing.T) {
	if testing.Short() {
		t.Skip("allocates the full N_DATA data area; skipped in -short runs")
	}

	vol := mustMount(t)
	mustCreate(t, vol, "/file")

	maxBytes := uint64(volume.NumDataBlocks) * volume.BlockSize
	payload := make([]byte, maxBytes+volume.BlockSize)

	n, err := vol.Write("/file", 0, payload)
	require.NoError(t, err)
	require.EqualValues(t, maxBytes, n)

	out := make([]byte, maxBytes)
	n, err = vol.Read("/file", 0, out)
	require.NoError(t, err)
	require.EqualValues(t, maxBytes, n)
	require.Equal(t, payload[:maxBytes], out)
}

// TestWriteAtCapacityBoundaryIsNoop ensures a write starting exactly at or
// past the capacity boundary short-circuits without attempting to grow the
// chain past N_DATA blocks.
func TestWriteAtCapacityBoundaryIsNoop(t *testing.T) {
	vol := mustMount(t)
	mustCreate(t, vol, "/file")

	maxBytes := int64(volume.NumDataBlocks) * volume.BlockSize
	n, err := vol.Write("/file", maxBytes, []byte("overflow"))
	require.NoError(t, err)
	require.Equal(t, 0, n)

	attr, err := vol.Getattr("/file")
	require.NoError(t, err)
	require.EqualValues(t, 0, attr.Size)
}

// TestMountLogsWhenLoggerGiven covers the optional *log.Logger named in
// SPEC_FULL.md §A.3: passing one logs at format/mount and flush, and
// passing nil (the default) stays silent.
func TestMountLogsWhenLoggerGiven(t *testing.T) {
	var buf bytes.Buffer
	logger := log.New(&buf, "", 0)

	dev := volume.NewMemoryBlockDevice()
	vol, err := volume.Mount(dev, false, logger)
	require.NoError(t, err)
	require.Contains(t, buf.String(), "formatting new volume")
	require.Contains(t, buf.String(), "formatted volume")

	buf.Reset()
	require.NoError(t, vol.Create("/file", 0o644, 0, 0))
	require.Contains(t, buf.String(), "flushed metadata")
}

func TestMountIsSilentWithoutLogger(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Writer()
	log.SetOutput(&buf)
	defer log.SetOutput(prev)

	dev := volume.NewMemoryBlockDevice()
	vol, err := volume.Mount(dev, false, nil)
	require.NoError(t, err)
	require.NoError(t, vol.Create("/file", 0o644, 0, 0))
	require.Empty(t, buf.String())
}
