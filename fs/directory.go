package fs

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// MaxNameLength is the longest name a directory entry can hold,
// matching Nachos's FileNameMaxLen.
const MaxNameLength = 9

// NumDirEntries bounds how many entries one directory holds. Ground:
// original_source/HW4/filesys/directory.cc's fixed-size Directory table.
const NumDirEntries = 64

// dirEntry is one fixed-width slot in a directory's on-disk table.
// Ground: xnpelur-file-system/internal/filesystem/inode fixed-record
// layout, adapted to a directory entry instead of an inode.
type dirEntry struct {
	InUse  bool
	IsDir  bool
	_      [2]byte // padding, keeps Sector 4-byte aligned in the encoding
	Sector int32
	Name   [MaxNameLength + 1]byte
}

func (e *dirEntry) name() string {
	n := bytes.IndexByte(e.Name[:], 0)
	if n < 0 {
		n = len(e.Name)
	}
	return string(e.Name[:n])
}

func (e *dirEntry) setName(name string) error {
	if len(name) > MaxNameLength {
		return fmt.Errorf("fs: name %q exceeds %d characters", name, MaxNameLength)
	}
	e.Name = [MaxNameLength + 1]byte{}
	copy(e.Name[:], name)
	return nil
}

const dirEntrySize = 1 + 1 + 2 + 4 + (MaxNameLength + 1)

// Directory is the in-memory image of one directory's fixed-capacity
// entry table. Every directory, including the root, is itself a file
// with a FileHeader; Directory only holds the table that file's bytes
// decode to.
type Directory struct {
	entries [NumDirEntries]dirEntry
}

// NewDirectory returns an empty directory table.
func NewDirectory() *Directory {
	return &Directory{}
}

// FetchFrom reloads the directory's table from file.
func (d *Directory) FetchFrom(file *OpenFile) error {
	buf := make([]byte, NumDirEntries*dirEntrySize)
	n := file.ReadAt(buf, 0)
	if n < 0 {
		return fmt.Errorf("fs: reading directory table failed")
	}
	return binary.Read(bytes.NewReader(buf[:n]), binary.LittleEndian, &d.entries)
}

// WriteBack flushes the directory's table to file.
func (d *Directory) WriteBack(file *OpenFile) error {
	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, &d.entries); err != nil {
		return err
	}
	if n := file.WriteAt(buf.Bytes(), 0); n != buf.Len() {
		return fmt.Errorf("fs: short write flushing directory table (%d of %d bytes)", n, buf.Len())
	}
	return nil
}

// FindIndex returns the slot index of the in-use entry named name, or -1.
func (d *Directory) FindIndex(name string) int {
	for i := range d.entries {
		if d.entries[i].InUse && d.entries[i].name() == name {
			return i
		}
	}
	return -1
}

// Find returns the header sector for name and whether it names a
// subdirectory, or ok=false if name is not present.
func (d *Directory) Find(name string) (sector int, isDir bool, ok bool) {
	i := d.FindIndex(name)
	if i < 0 {
		return 0, false, false
	}
	return int(d.entries[i].Sector), d.entries[i].IsDir, true
}

// Add inserts a new entry. It returns an error if name is already
// present or the table is full.
func (d *Directory) Add(name string, sector int, isDir bool) error {
	if d.FindIndex(name) >= 0 {
		return fmt.Errorf("fs: %q already exists in this directory", name)
	}
	for i := range d.entries {
		if !d.entries[i].InUse {
			d.entries[i].InUse = true
			d.entries[i].IsDir = isDir
			d.entries[i].Sector = int32(sector)
			if err := d.entries[i].setName(name); err != nil {
				d.entries[i] = dirEntry{}
				return err
			}
			return nil
		}
	}
	return fmt.Errorf("fs: directory is full")
}

// Remove deletes the entry named name. It returns false if name was not
// present.
func (d *Directory) Remove(name string) bool {
	i := d.FindIndex(name)
	if i < 0 {
		return false
	}
	d.entries[i] = dirEntry{}
	return true
}

// DirEntry is one name's worth of listing information.
type DirEntry struct {
	Name   string
	Sector int
	IsDir  bool
}

// List returns every in-use entry, in table (insertion slot) order.
func (d *Directory) List() []DirEntry {
	var out []DirEntry
	for i := range d.entries {
		if d.entries[i].InUse {
			out = append(out, DirEntry{
				Name:   d.entries[i].name(),
				Sector: int(d.entries[i].Sector),
				IsDir:  d.entries[i].IsDir,
			})
		}
	}
	return out
}
