package fs

import (
	"fmt"

	"github.com/Workiva/go-datastructures/bitarray"
)

// Bitmap is the persistent free-space bitmap: one bit per data sector on
// the whole disk, persisted as the contents of the distinguished file
// whose header lives at FreeMapSector. The in-memory bit store is a
// github.com/Workiva/go-datastructures/bitarray.BitArray; WriteBack and
// FetchFrom add the disk byte-layout the library itself doesn't define.
type Bitmap struct {
	bits bitarray.BitArray
	size int
}

// NewBitmap allocates a Bitmap covering numSectors sectors, all clear.
func NewBitmap(numSectors int) *Bitmap {
	return &Bitmap{
		bits: bitarray.NewBitArray(uint64(numSectors)),
		size: numSectors,
	}
}

// Clone returns an independent copy of b. Callers that might fail
// partway through a sequence of Mark/FindAndSet calls work on a clone
// and only adopt it once every step has succeeded, so a failure never
// leaves stray bits set in the original.
func (b *Bitmap) Clone() *Bitmap {
	out := NewBitmap(b.size)
	for i := 0; i < b.size; i++ {
		if b.Test(i) {
			out.Mark(i)
		}
	}
	return out
}

// Mark sets the bit for sector, recording it as allocated.
func (b *Bitmap) Mark(sector int) {
	_ = b.bits.SetBit(uint64(sector))
}

// Clear clears the bit for sector, recording it as free.
func (b *Bitmap) Clear(sector int) {
	_ = b.bits.ClearBit(uint64(sector))
}

// Test reports whether sector is currently marked allocated.
func (b *Bitmap) Test(sector int) bool {
	set, err := b.bits.GetBit(uint64(sector))
	if err != nil {
		return false
	}
	return set
}

// FindAndSet returns the lowest-numbered clear bit and marks it, or -1 if
// every bit is set.
func (b *Bitmap) FindAndSet() int {
	for i := 0; i < b.size; i++ {
		if !b.Test(i) {
			b.Mark(i)
			return i
		}
	}
	return -1
}

// CountClear returns the number of clear bits.
func (b *Bitmap) CountClear() int {
	n := 0
	for i := 0; i < b.size; i++ {
		if !b.Test(i) {
			n++
		}
	}
	return n
}

// toBytes serializes the bitmap to its on-disk byte layout: one bit per
// sector, packed MSB-first within each byte.
func (b *Bitmap) toBytes() []byte {
	out := make([]byte, (b.size+7)/8)
	for i := 0; i < b.size; i++ {
		if b.Test(i) {
			out[i/8] |= 1 << (7 - uint(i%8))
		}
	}
	return out
}

func (b *Bitmap) fromBytes(data []byte) {
	b.bits = bitarray.NewBitArray(uint64(b.size))
	for i := 0; i < b.size; i++ {
		byteIndex, bitOffset := i/8, uint(i%8)
		if byteIndex >= len(data) {
			break
		}
		if data[byteIndex]&(1<<(7-bitOffset)) != 0 {
			b.Mark(i)
		}
	}
}

// WriteBack flushes the bitmap to file, which must already be open on the
// bitmap's own sectors.
func (b *Bitmap) WriteBack(file *OpenFile) error {
	out := b.toBytes()
	if n := file.WriteAt(out, 0); n != len(out) {
		return fmt.Errorf("fs: short write flushing bitmap (%d of %d bytes)", n, len(out))
	}
	return nil
}

// FetchFrom reloads the bitmap's contents from file.
func (b *Bitmap) FetchFrom(file *OpenFile) error {
	data := make([]byte, (b.size+7)/8)
	n := file.ReadAt(data, 0)
	if n < 0 {
		return fmt.Errorf("fs: reading bitmap failed")
	}
	b.fromBytes(data[:n])
	return nil
}
