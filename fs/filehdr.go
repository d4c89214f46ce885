package fs

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// NumDirect is the number of direct data-sector pointers a FileHeader
// carries. Chosen so a FileHeader occupies exactly one SectorSize: 4 bytes
// of NumBytes + 4 bytes of NumSectors + 30*4 bytes of DataSectors = 128.
const NumDirect = (SectorSize - 2*4) / 4

// MaxFileSize is the largest file this filesystem can represent, bounded
// by the direct-block layout — there are no indirect blocks.
const MaxFileSize = NumDirect * SectorSize

// FileHeader is the on-disk metadata for one file: its length and the
// list of sectors holding its data. Ground: the direct-block-only header
// Nachos builds and serializes in
// original_source/HW4/filesys/filesys.cc (e.g. `hdr->Allocate(...)`,
// `hdr->FetchFrom(sector)`); serialized here with encoding/binary the way
// xnpelur-file-system/internal/filesystem/inode/inode.go serializes its
// inode records.
type FileHeader struct {
	NumBytes    int32
	NumSectors  int32
	DataSectors [NumDirect]int32
}

// Allocate reserves NumSectors sectors from bitmap for a file of fileSize
// bytes, returning the number of bytes the header itself occupies (always
// SectorSize) on success, or 0 on failure — matching
// original_source/HW4/filesys/filesys.cc's `int totalheadersize =
// hdr->Allocate(...)`, which accumulates the returned size for pedagogical
// reporting. It checks the bitmap holds enough clear sectors before
// marking any of them, so a failed Allocate never partially mutates
// bitmap.
func (h *FileHeader) Allocate(bitmap *Bitmap, fileSize int) int {
	if fileSize > MaxFileSize {
		return 0
	}
	numSectors := (fileSize + SectorSize - 1) / SectorSize
	if numSectors > NumDirect || bitmap.CountClear() < numSectors {
		return 0
	}

	h.NumBytes = int32(fileSize)
	h.NumSectors = int32(numSectors)
	for i := 0; i < numSectors; i++ {
		h.DataSectors[i] = int32(bitmap.FindAndSet())
	}
	return SectorSize
}

// Deallocate frees every sector this header claims back into bitmap.
func (h *FileHeader) Deallocate(bitmap *Bitmap) {
	for i := 0; i < int(h.NumSectors); i++ {
		bitmap.Clear(int(h.DataSectors[i]))
	}
}

// FetchFrom loads the header from sector on disk.
func (h *FileHeader) FetchFrom(disk Disk, sector int) error {
	buf := make([]byte, SectorSize)
	if err := disk.ReadSector(sector, buf); err != nil {
		return err
	}
	return binary.Read(bytes.NewReader(buf), binary.LittleEndian, h)
}

// WriteBack flushes the header to sector on disk.
func (h *FileHeader) WriteBack(disk Disk, sector int) error {
	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, h); err != nil {
		return err
	}
	out := make([]byte, SectorSize)
	copy(out, buf.Bytes())
	return disk.WriteSector(sector, out)
}

// ByteToSector returns the disk sector holding the byte at offset.
func (h *FileHeader) ByteToSector(offset int) (int, error) {
	idx := offset / SectorSize
	if idx < 0 || idx >= int(h.NumSectors) {
		return 0, fmt.Errorf("fs: offset %d out of range for file of length %d", offset, h.NumBytes)
	}
	return int(h.DataSectors[idx]), nil
}

// FileLength returns the file's length in bytes.
func (h *FileHeader) FileLength() int { return int(h.NumBytes) }
