package fs

import (
	log "github.com/sirupsen/logrus"
)

// OpenFile is a file opened for reading and writing: a FileHeader plus
// the disk and sector it was fetched from. Ground:
// original_source/HW4/filesys/openfile.cc's OpenFile, stripped of its
// cached-sector read-ahead optimization, down to the plain ReadAt/WriteAt
// surface.
//
// ReadAt/WriteAt mirror the syscall Read/Write contract: they return the
// number of bytes transferred, or -1 on failure, never a Go error — the
// same bool/-1 discipline as the rest of the facade.
type OpenFile struct {
	disk         Disk
	headerSector int
	hdr          *FileHeader
}

func openFile(disk Disk, headerSector int) (*OpenFile, error) {
	hdr := &FileHeader{}
	if err := hdr.FetchFrom(disk, headerSector); err != nil {
		return nil, err
	}
	return &OpenFile{disk: disk, headerSector: headerSector, hdr: hdr}, nil
}

// Length returns the file's current length in bytes.
func (f *OpenFile) Length() int { return f.hdr.FileLength() }

// ReadAt reads into buf starting at offset, stopping at the file's
// current length, and returns the number of bytes actually copied, or
// -1 if offset is negative.
func (f *OpenFile) ReadAt(buf []byte, offset int) int {
	if offset < 0 {
		log.WithField("offset", offset).Warn("fs: ReadAt with negative offset")
		return -1
	}
	length := f.hdr.FileLength()
	if offset >= length {
		return 0
	}
	want := len(buf)
	if offset+want > length {
		want = length - offset
	}

	n := 0
	sector := make([]byte, SectorSize)
	for n < want {
		pos := offset + n
		secNum, err := f.hdr.ByteToSector(pos)
		if err != nil {
			log.WithError(err).Warn("fs: ReadAt")
			return n
		}
		if err := f.disk.ReadSector(secNum, sector); err != nil {
			log.WithError(err).Warn("fs: ReadAt")
			return n
		}
		within := pos % SectorSize
		chunk := SectorSize - within
		if chunk > want-n {
			chunk = want - n
		}
		copy(buf[n:n+chunk], sector[within:within+chunk])
		n += chunk
	}
	return n
}

// WriteAt writes data at offset and returns the number of bytes
// written, or -1 on failure. A write that would run past the file's
// current length fails outright: files don't grow, so WriteAt never
// allocates new sectors — a file's size is fixed at Create time.
func (f *OpenFile) WriteAt(data []byte, offset int) int {
	if offset < 0 {
		log.WithField("offset", offset).Warn("fs: WriteAt with negative offset")
		return -1
	}
	end := offset + len(data)
	if end > f.hdr.FileLength() {
		log.WithFields(log.Fields{"offset": offset, "len": len(data), "fileLength": f.hdr.FileLength()}).
			Warn("fs: WriteAt would grow the file, which is not supported")
		return -1
	}

	n := 0
	sector := make([]byte, SectorSize)
	for n < len(data) {
		pos := offset + n
		secNum, err := f.hdr.ByteToSector(pos)
		if err != nil {
			log.WithError(err).Warn("fs: WriteAt")
			return n
		}
		within := pos % SectorSize
		chunk := SectorSize - within
		if chunk > len(data)-n {
			chunk = len(data) - n
		}
		if within != 0 || chunk != SectorSize {
			if err := f.disk.ReadSector(secNum, sector); err != nil {
				log.WithError(err).Warn("fs: WriteAt")
				return n
			}
		}
		copy(sector[within:within+chunk], data[n:n+chunk])
		if err := f.disk.WriteSector(secNum, sector); err != nil {
			log.WithError(err).Warn("fs: WriteAt")
			return n
		}
		n += chunk
	}
	return n
}
