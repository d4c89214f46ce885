package fs

import (
	"fmt"
	"io"
	"strings"

	log "github.com/sirupsen/logrus"
)

// FreeMapSector and DirectorySector are the two sectors whose contents
// never move: the free-space bitmap's own FileHeader, and the root
// directory's own FileHeader. Ground: original_source/HW4/filesys/filesys.cc's
// FreeMapSector / DirectorySector constants.
const (
	FreeMapSector   = 0
	DirectorySector = 1
)

// FileSystem is the facade over the whole on-disk layout: free-space
// bitmap, file headers, and the directory hierarchy. Ground:
// original_source/HW4/filesys/filesys.cc's FileSystem class.
//
// Every public operation here returns bool (succeeded or not) or -1 (on
// the handful of operations that otherwise return a meaningful int),
// never a Go error. Failures are logged via logrus internally instead.
type FileSystem struct {
	disk          Disk
	numSectors    int
	bitmap        *Bitmap
	freeMapFile   *OpenFile
	directoryFile *OpenFile // root directory's own open file
	openFiles     *OpenFileTable
}

// Format lays down a fresh filesystem on disk: a bitmap with only the two
// metadata header sectors and the data sectors of the bitmap and root
// directory files marked used, and an empty root directory. Ground:
// original_source/HW4/filesys/filesys.cc's FileSystem constructor with
// format=true.
func Format(disk Disk, numSectors int) bool {
	if err := format(disk, numSectors); err != nil {
		log.WithError(err).Warn("fs: Format failed")
		return false
	}
	return true
}

func format(disk Disk, numSectors int) error {
	bitmap := NewBitmap(numSectors)
	bitmap.Mark(FreeMapSector)
	bitmap.Mark(DirectorySector)

	freeMapHdr := &FileHeader{}
	bitmapBytes := (numSectors + 7) / 8
	totalHeaderSize := freeMapHdr.Allocate(bitmap, bitmapBytes)
	if totalHeaderSize == 0 {
		return fmt.Errorf("fs: not enough space to format the free-space bitmap")
	}
	if err := freeMapHdr.WriteBack(disk, FreeMapSector); err != nil {
		return err
	}

	dirHdr := &FileHeader{}
	dirHeaderSize := dirHdr.Allocate(bitmap, NumDirEntries*dirEntrySize)
	if dirHeaderSize == 0 {
		return fmt.Errorf("fs: not enough space to format the root directory")
	}
	totalHeaderSize += dirHeaderSize
	if err := dirHdr.WriteBack(disk, DirectorySector); err != nil {
		return err
	}

	freeMapFile, err := openFile(disk, FreeMapSector)
	if err != nil {
		return err
	}
	if err := bitmap.WriteBack(freeMapFile); err != nil {
		return err
	}

	dirFile, err := openFile(disk, DirectorySector)
	if err != nil {
		return err
	}
	log.WithField("headerBytes", totalHeaderSize).Debug("fs: Format")
	return NewDirectory().WriteBack(dirFile)
}

// NewFileSystem mounts the filesystem already laid out on disk. Callers
// that need a fresh filesystem should call Format first. Mounting is a
// one-time setup step, not a syscall-shaped operation, so it keeps the
// ordinary Go constructor convention of returning an error.
func NewFileSystem(disk Disk, numSectors int) (*FileSystem, error) {
	freeMapFile, err := openFile(disk, FreeMapSector)
	if err != nil {
		return nil, fmt.Errorf("fs: mounting free-space bitmap: %w", err)
	}
	directoryFile, err := openFile(disk, DirectorySector)
	if err != nil {
		return nil, fmt.Errorf("fs: mounting root directory: %w", err)
	}

	bitmap := NewBitmap(numSectors)
	if err := bitmap.FetchFrom(freeMapFile); err != nil {
		return nil, err
	}

	return &FileSystem{
		disk:          disk,
		numSectors:    numSectors,
		bitmap:        bitmap,
		freeMapFile:   freeMapFile,
		directoryFile: directoryFile,
		openFiles:     NewOpenFileTable(),
	}, nil
}

// splitPath turns "/a/b/c" into the parent components ["a","b"] and the
// final name "c". A bare name with no slash resolves against the root.
func splitPath(path string) (parents []string, name string) {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil, ""
	}
	parts := strings.Split(path, "/")
	return parts[:len(parts)-1], parts[len(parts)-1]
}

// resolveDir walks parents starting from the root directory and returns
// the sector of the directory file the last component lives in. Ground:
// original_source/HW4/filesys/filesys.cc's findsubdirectory.
func (fsys *FileSystem) resolveDir(parents []string) (int, error) {
	sector := DirectorySector
	for _, component := range parents {
		dirFile, err := openFile(fsys.disk, sector)
		if err != nil {
			return 0, err
		}
		dir := NewDirectory()
		if err := dir.FetchFrom(dirFile); err != nil {
			return 0, err
		}
		childSector, isDir, ok := dir.Find(component)
		if !ok {
			return 0, fmt.Errorf("fs: %q: no such directory", component)
		}
		if !isDir {
			return 0, fmt.Errorf("fs: %q: not a directory", component)
		}
		sector = childSector
	}
	return sector, nil
}

func (fsys *FileSystem) loadDirectory(sector int) (*OpenFile, *Directory, error) {
	dirFile, err := openFile(fsys.disk, sector)
	if err != nil {
		return nil, nil, err
	}
	dir := NewDirectory()
	if err := dir.FetchFrom(dirFile); err != nil {
		return nil, nil, err
	}
	return dirFile, dir, nil
}

// Create makes a new file of fileSize bytes at path, returning
// whether it succeeded. All bitmap allocation happens on a private
// clone of the live bitmap; fsys.bitmap is only replaced by that clone,
// and written back to disk, once every later step (including adding the
// name to the directory) has already succeeded. A failed Create, for
// whatever reason, therefore never leaves sectors marked used that no
// file claims.
func (fsys *FileSystem) Create(path string, fileSize int) bool {
	if err := fsys.create(path, fileSize); err != nil {
		log.WithFields(log.Fields{"path": path, "size": fileSize}).WithError(err).Warn("fs: Create failed")
		return false
	}
	return true
}

func (fsys *FileSystem) create(path string, fileSize int) error {
	parents, name := splitPath(path)
	if name == "" {
		return fmt.Errorf("fs: %q: empty file name", path)
	}
	dirSector, err := fsys.resolveDir(parents)
	if err != nil {
		return err
	}
	dirFile, dir, err := fsys.loadDirectory(dirSector)
	if err != nil {
		return err
	}

	bitmap := fsys.bitmap.Clone()

	hdr := &FileHeader{}
	headerSize := hdr.Allocate(bitmap, fileSize)
	if headerSize == 0 {
		return fmt.Errorf("not enough disk space to create %q", path)
	}

	sector := bitmap.FindAndSet()
	if sector == -1 {
		return fmt.Errorf("not enough disk space for %q's header", path)
	}
	if err := dir.Add(name, sector, false); err != nil {
		return err
	}

	if err := hdr.WriteBack(fsys.disk, sector); err != nil {
		return err
	}
	if err := dir.WriteBack(dirFile); err != nil {
		return err
	}
	fsys.bitmap = bitmap
	if err := fsys.bitmap.WriteBack(fsys.freeMapFile); err != nil {
		return err
	}

	log.WithFields(log.Fields{"path": path, "sector": sector, "headerBytes": headerSize}).Debug("fs: Create")
	return nil
}

// Mkdir makes a new, empty subdirectory at path, returning whether it
// succeeded. Supplemented beyond the base Nachos filesystem (which has
// only a flat root directory) to give the spec's hierarchical directory
// tree an operation that builds it.
func (fsys *FileSystem) Mkdir(path string) bool {
	if err := fsys.mkdir(path); err != nil {
		log.WithField("path", path).WithError(err).Warn("fs: Mkdir failed")
		return false
	}
	return true
}

func (fsys *FileSystem) mkdir(path string) error {
	parents, name := splitPath(path)
	if name == "" {
		return fmt.Errorf("fs: %q: empty directory name", path)
	}
	dirSector, err := fsys.resolveDir(parents)
	if err != nil {
		return err
	}
	dirFile, dir, err := fsys.loadDirectory(dirSector)
	if err != nil {
		return err
	}

	bitmap := fsys.bitmap.Clone()

	hdr := &FileHeader{}
	if hdr.Allocate(bitmap, NumDirEntries*dirEntrySize) == 0 {
		return fmt.Errorf("not enough disk space to create directory %q", path)
	}
	sector := bitmap.FindAndSet()
	if sector == -1 {
		return fmt.Errorf("not enough disk space for %q's header", path)
	}
	if err := dir.Add(name, sector, true); err != nil {
		return err
	}
	if err := hdr.WriteBack(fsys.disk, sector); err != nil {
		return err
	}

	childFile, err := openFile(fsys.disk, sector)
	if err != nil {
		return err
	}
	if err := NewDirectory().WriteBack(childFile); err != nil {
		return err
	}

	if err := dir.WriteBack(dirFile); err != nil {
		return err
	}
	fsys.bitmap = bitmap
	return fsys.bitmap.WriteBack(fsys.freeMapFile)
}

// Open opens path for reading and writing and registers it in the
// per-session open-file table, returning its descriptor id (≥ 1) and
// true on success, or -1 and false if path does not name an
// open-able file or the table is already full. Opening the same path
// twice returns two distinct ids, each good for Read/Write/Close
// independently of the other.
func (fsys *FileSystem) Open(path string) (int, bool) {
	id, err := fsys.open(path)
	if err != nil {
		log.WithField("path", path).WithError(err).Warn("fs: Open failed")
		return -1, false
	}
	return id, true
}

func (fsys *FileSystem) open(path string) (int, error) {
	parents, name := splitPath(path)
	dirSector, err := fsys.resolveDir(parents)
	if err != nil {
		return -1, err
	}
	_, dir, err := fsys.loadDirectory(dirSector)
	if err != nil {
		return -1, err
	}
	sector, isDir, ok := dir.Find(name)
	if !ok {
		return -1, fmt.Errorf("%q: no such file", path)
	}
	if isDir {
		return -1, fmt.Errorf("%q: is a directory", path)
	}
	f, err := openFile(fsys.disk, sector)
	if err != nil {
		return -1, err
	}
	id := fsys.openFiles.Register(f)
	if id == -1 {
		return -1, fmt.Errorf("fs: open-file table is full (max %d)", MaxOpenFiles)
	}
	return id, nil
}

// Read reads from the file open under id into buf at offset and returns
// the number of bytes transferred, or -1 if id names no open file.
func (fsys *FileSystem) Read(id int, buf []byte, offset int) int {
	f, ok := fsys.openFiles.Lookup(id)
	if !ok {
		log.WithField("id", id).Warn("fs: Read: no such open file")
		return -1
	}
	return f.ReadAt(buf, offset)
}

// Write writes data to the file open under id at offset and returns the
// number of bytes transferred, or -1 if id names no open file.
func (fsys *FileSystem) Write(id int, data []byte, offset int) int {
	f, ok := fsys.openFiles.Lookup(id)
	if !ok {
		log.WithField("id", id).Warn("fs: Write: no such open file")
		return -1
	}
	return f.WriteAt(data, offset)
}

// Close releases descriptor id from the open-file table.
func (fsys *FileSystem) Close(id int) {
	fsys.openFiles.Release(id)
}

// Remove deletes the file or (if recursive) the directory tree at
// path, freeing every sector it held, and returns whether it succeeded.
// Ground: original_source/HW4/filesys/filesys.cc's Remove, including
// its rebuild of each child's path as path+"/"+childName while
// recursing.
func (fsys *FileSystem) Remove(path string, recursive bool) bool {
	if err := fsys.remove(path, recursive); err != nil {
		log.WithField("path", path).WithError(err).Warn("fs: Remove failed")
		return false
	}
	return true
}

func (fsys *FileSystem) remove(path string, recursive bool) error {
	parents, name := splitPath(path)
	dirSector, err := fsys.resolveDir(parents)
	if err != nil {
		return err
	}
	dirFile, dir, err := fsys.loadDirectory(dirSector)
	if err != nil {
		return err
	}
	sector, isDir, ok := dir.Find(name)
	if !ok {
		return fmt.Errorf("%q: no such file", path)
	}

	if isDir {
		_, childDir, err := fsys.loadDirectory(sector)
		if err != nil {
			return err
		}
		children := childDir.List()
		if len(children) > 0 && !recursive {
			return fmt.Errorf("%q: directory not empty", path)
		}
		for _, entry := range children {
			if err := fsys.remove(path+"/"+entry.Name, true); err != nil {
				return err
			}
		}
	}

	hdr := &FileHeader{}
	if err := hdr.FetchFrom(fsys.disk, sector); err != nil {
		return err
	}
	hdr.Deallocate(fsys.bitmap)
	fsys.bitmap.Clear(sector)
	dir.Remove(name)

	if err := dir.WriteBack(dirFile); err != nil {
		return err
	}
	return fsys.bitmap.WriteBack(fsys.freeMapFile)
}

// List returns the entries of the directory at path (non-recursive),
// and true on success.
func (fsys *FileSystem) List(path string) ([]DirEntry, bool) {
	entries, err := fsys.list(path)
	if err != nil {
		log.WithField("path", path).WithError(err).Warn("fs: List failed")
		return nil, false
	}
	return entries, true
}

func (fsys *FileSystem) list(path string) ([]DirEntry, error) {
	sector := DirectorySector
	if parents, name := splitPath(path); name != "" {
		full := make([]string, 0, len(parents)+1)
		full = append(full, parents...)
		full = append(full, name)
		resolved, err := fsys.resolveDir(full)
		if err != nil {
			return nil, err
		}
		sector = resolved
	}
	_, dir, err := fsys.loadDirectory(sector)
	if err != nil {
		return nil, err
	}
	return dir.List(), nil
}

// ListRecursive writes a recursive directory listing to w, indenting
// two spaces per depth level, returning whether it succeeded.
// Supplemented from
// original_source/HW4/filesys/filesys.cc's List(recursive=true).
func (fsys *FileSystem) ListRecursive(w io.Writer, path string) bool {
	if err := fsys.listRecursive(w, path, 0); err != nil {
		log.WithField("path", path).WithError(err).Warn("fs: ListRecursive failed")
		return false
	}
	return true
}

func (fsys *FileSystem) listRecursive(w io.Writer, path string, depth int) error {
	entries, err := fsys.list(path)
	if err != nil {
		return err
	}
	indent := strings.Repeat("  ", depth)
	for _, e := range entries {
		fmt.Fprintf(w, "%s%s\n", indent, e.Name)
		if e.IsDir {
			if err := fsys.listRecursive(w, strings.TrimRight(path, "/")+"/"+e.Name, depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}

// Debug prints a summary of the bitmap and root directory, in the
// spirit of Scheduler.Debug. Supplemented from
// original_source/HW4/filesys/filesys.cc's Print.
func (fsys *FileSystem) Debug(w io.Writer) {
	fmt.Fprintf(w, "free sectors: %d/%d\n", fsys.bitmap.CountClear(), fsys.numSectors)
	entries, ok := fsys.List("/")
	if !ok {
		fmt.Fprintf(w, "  <error reading root>\n")
		return
	}
	for _, e := range entries {
		kind := "file"
		if e.IsDir {
			kind = "dir"
		}
		fmt.Fprintf(w, "  %s (%s, sector %d)\n", e.Name, kind, e.Sector)
	}
}
