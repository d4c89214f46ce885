package fs

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestFileSystem(t *testing.T, numSectors int) *FileSystem {
	disk := NewMemDisk(numSectors)
	assert.True(t, Format(disk, numSectors))
	fsys, err := NewFileSystem(disk, numSectors)
	assert.NoError(t, err)
	return fsys
}

// Full round trip: format, create, open, write, close, open, read, close.
func TestCreateOpenWriteReadRoundTrip(t *testing.T) {
	fsys := newTestFileSystem(t, 64)

	assert.True(t, fsys.Create("/greeting", 13))

	id, ok := fsys.Open("/greeting")
	assert.True(t, ok)
	assert.GreaterOrEqual(t, id, 1, "Open must return a descriptor id of at least 1")
	assert.Equal(t, 13, fsys.Write(id, []byte("hello, world!"), 0))
	fsys.Close(id)

	id2, ok := fsys.Open("/greeting")
	assert.True(t, ok)
	buf := make([]byte, 13)
	n := fsys.Read(id2, buf, 0)
	assert.Equal(t, 13, n)
	assert.Equal(t, "hello, world!", string(buf))
	fsys.Close(id2)
}

func TestWriteAtPastLengthFails(t *testing.T) {
	fsys := newTestFileSystem(t, 64)
	assert.True(t, fsys.Create("/small", 4))

	id, ok := fsys.Open("/small")
	assert.True(t, ok)
	assert.Equal(t, -1, fsys.Write(id, []byte("too long"), 0), "growable files are out of scope")
}

// Reopening the same path must hand out two distinct descriptor ids,
// each independently usable, rather than aliasing one slot.
func TestReopenSamePathGetsDistinctIds(t *testing.T) {
	fsys := newTestFileSystem(t, 64)
	assert.True(t, fsys.Create("/shared", 5))

	id1, ok := fsys.Open("/shared")
	assert.True(t, ok)
	id2, ok := fsys.Open("/shared")
	assert.True(t, ok)
	assert.NotEqual(t, id1, id2)

	assert.Equal(t, 5, fsys.Write(id1, []byte("abcde"), 0))
	fsys.Close(id1)

	buf := make([]byte, 5)
	assert.Equal(t, 5, fsys.Read(id2, buf, 0))
	assert.Equal(t, "abcde", string(buf))
	fsys.Close(id2)
}

func TestOpenFileTableFullFails(t *testing.T) {
	fsys := newTestFileSystem(t, 96)
	assert.True(t, fsys.Create("/f", 1))

	var ids []int
	for i := 0; i < MaxOpenFiles; i++ {
		id, ok := fsys.Open("/f")
		assert.True(t, ok)
		ids = append(ids, id)
	}

	_, ok := fsys.Open("/f")
	assert.False(t, ok, "the table is at MaxOpenFiles capacity and must refuse another Open")

	fsys.Close(ids[0])
	_, ok = fsys.Open("/f")
	assert.True(t, ok, "closing a descriptor must free its slot for reuse")
}

func TestCreateDuplicateNameFails(t *testing.T) {
	fsys := newTestFileSystem(t, 64)
	assert.True(t, fsys.Create("/dup", 5))
	assert.False(t, fsys.Create("/dup", 5))
}

// A Create that fails because the name already exists must not leak the
// sectors it tentatively allocated before discovering the collision.
func TestCreateDuplicateNameDoesNotLeakSectors(t *testing.T) {
	fsys := newTestFileSystem(t, 64)
	assert.True(t, fsys.Create("/dup", 5))

	freeBeforeRetry := fsys.bitmap.CountClear()
	assert.False(t, fsys.Create("/dup", 5))
	assert.Equal(t, freeBeforeRetry, fsys.bitmap.CountClear(),
		"a failed Create due to a name collision must not mark any bitmap bits")

	assert.True(t, fsys.Create("/other", 5))
}

func TestOpenMissingFileFails(t *testing.T) {
	fsys := newTestFileSystem(t, 64)
	_, ok := fsys.Open("/nope")
	assert.False(t, ok)
}

// Nested path resolution through an intermediate directory.
func TestMkdirAndNestedCreate(t *testing.T) {
	fsys := newTestFileSystem(t, 64)

	assert.True(t, fsys.Mkdir("/docs"))
	assert.True(t, fsys.Create("/docs/readme", 4))

	id, ok := fsys.Open("/docs/readme")
	assert.True(t, ok)
	assert.Equal(t, 4, fsys.Write(id, []byte("text"), 0))

	entries, ok := fsys.List("/docs")
	assert.True(t, ok)
	assert.Len(t, entries, 1)
	assert.Equal(t, "readme", entries[0].Name)
	assert.False(t, entries[0].IsDir)
}

// Recursive remove frees every sector it held, and a failed operation
// never leaves the bitmap or directory half-mutated.
func TestRecursiveRemoveFreesBits(t *testing.T) {
	fsys := newTestFileSystem(t, 64)

	freeBefore := fsys.bitmap.CountClear()

	assert.True(t, fsys.Mkdir("/project"))
	assert.True(t, fsys.Create("/project/a", 10))
	assert.True(t, fsys.Create("/project/b", 10))
	assert.True(t, fsys.Mkdir("/project/sub"))
	assert.True(t, fsys.Create("/project/sub/c", 10))

	freeAfterCreate := fsys.bitmap.CountClear()
	assert.Less(t, freeAfterCreate, freeBefore, "creating files and directories must consume sectors")

	assert.True(t, fsys.Remove("/project", true))

	freeAfterRemove := fsys.bitmap.CountClear()
	assert.Equal(t, freeBefore, freeAfterRemove, "recursive remove must free every sector the tree held")

	_, ok := fsys.Open("/project/a")
	assert.False(t, ok)
}

func TestRemoveEmptyDirectoryWithoutRecursiveSucceeds(t *testing.T) {
	fsys := newTestFileSystem(t, 64)
	assert.True(t, fsys.Mkdir("/d"))
	assert.True(t, fsys.Remove("/d", false))
}

func TestRemoveNonEmptyDirectoryWithoutRecursiveFails(t *testing.T) {
	fsys := newTestFileSystem(t, 64)
	assert.True(t, fsys.Mkdir("/d"))
	assert.True(t, fsys.Create("/d/f", 1))
	assert.False(t, fsys.Remove("/d", false))
}

func TestListRecursiveIndentsByDepth(t *testing.T) {
	fsys := newTestFileSystem(t, 64)

	assert.True(t, fsys.Mkdir("/a"))
	assert.True(t, fsys.Create("/a/f", 1))
	assert.True(t, fsys.Mkdir("/a/b"))
	assert.True(t, fsys.Create("/a/b/g", 1))

	var out strings.Builder
	assert.True(t, fsys.ListRecursive(&out, "/a"))

	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	assert.Equal(t, []string{"f", "b", "  g"}, lines)
}

// Create failing partway through (out of disk space) must not corrupt
// the directory: the name must not appear afterward.
func TestCreateOutOfSpaceLeavesDirectoryUnchanged(t *testing.T) {
	// 40 sectors is enough to Format (bitmap + root directory need about a
	// dozen), but not enough left over for a MaxFileSize file on top.
	fsys := newTestFileSystem(t, 40)
	freeBefore := fsys.bitmap.CountClear()

	assert.False(t, fsys.Create("/huge", MaxFileSize))

	assert.Equal(t, freeBefore, fsys.bitmap.CountClear(), "a failed Create must not mark any bitmap bits")

	entries, ok := fsys.List("/")
	assert.True(t, ok)
	for _, e := range entries {
		assert.NotEqual(t, "huge", e.Name)
	}
}
