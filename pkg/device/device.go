// Package device is the block-addressed I/O collaborator §6 of the
// specification names: read_block / write_block / reada_block. It knows
// nothing about NAT, SIT or node layout — only how to turn a 4 KiB-aligned
// block number into bytes on an underlying file, the same narrow
// responsibility pkg/vdecompiler/io.go gives its partialIO type.
package device

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/vorteil/f2fsck/pkg/f2fs"
)

// Sentinel errors, wrapped with %w the way partialIO in pkg/vdecompiler/io.go
// wraps ErrRead/ErrSeek/ErrWrite with contextual messages.
var (
	ErrRead  = errors.New("block device read error")
	ErrSeek  = errors.New("block device seek error")
	ErrWrite = errors.New("block device write error")
)

// Device is the external collaborator the core checker is handed; it never
// constructs one itself.
type Device interface {
	ReadBlock(buf []byte, blkaddr int64) error
	WriteBlock(buf []byte, blkaddr int64) error
	ReadaBlock(blkaddr int64) error
	ReadOnly() bool
}

// FileDevice implements Device against a regular file or block device,
// opened once and seeked per request.
type FileDevice struct {
	f        *os.File
	name     string
	readOnly bool
}

// Open opens path for block I/O. When readOnly is true, WriteBlock always
// fails fast rather than attempting the write — the same suppression
// config.ro applies at the checker layer, enforced again here as a second
// line of defense.
func Open(path string, readOnly bool) (*FileDevice, error) {
	flag := os.O_RDWR
	if readOnly {
		flag = os.O_RDONLY
	}
	f, err := os.OpenFile(path, flag, 0)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	return &FileDevice{f: f, name: path, readOnly: readOnly}, nil
}

// ReadOnly reports whether this device rejects writes.
func (d *FileDevice) ReadOnly() bool {
	return d.readOnly
}

// ReadBlock reads exactly one f2fs.BlockSize block at blkaddr into buf.
func (d *FileDevice) ReadBlock(buf []byte, blkaddr int64) error {
	if len(buf) != f2fs.BlockSize {
		return fmt.Errorf("reading block %d: buffer must be %d bytes", blkaddr, f2fs.BlockSize)
	}
	off := blkaddr * f2fs.BlockSize
	if _, err := d.f.Seek(off, io.SeekStart); err != nil {
		return fmt.Errorf("seeking to block %d of %s: %w", blkaddr, d.name, ErrSeek)
	}
	if _, err := io.ReadFull(d.f, buf); err != nil {
		return fmt.Errorf("reading block %d of %s: %w", blkaddr, d.name, ErrRead)
	}
	return nil
}

// WriteBlock writes exactly one f2fs.BlockSize block to blkaddr. It is a
// no-op error when the device was opened read-only, so a caller that
// forgets to check config.ro still cannot corrupt the image.
func (d *FileDevice) WriteBlock(buf []byte, blkaddr int64) error {
	if d.readOnly {
		return fmt.Errorf("writing block %d of %s: %w", blkaddr, d.name, ErrWrite)
	}
	if len(buf) != f2fs.BlockSize {
		return fmt.Errorf("writing block %d: buffer must be %d bytes", blkaddr, f2fs.BlockSize)
	}
	off := blkaddr * f2fs.BlockSize
	if _, err := d.f.Seek(off, io.SeekStart); err != nil {
		return fmt.Errorf("seeking to block %d of %s: %w", blkaddr, d.name, ErrSeek)
	}
	if _, err := d.f.Write(buf); err != nil {
		return fmt.Errorf("writing block %d of %s: %w", blkaddr, d.name, ErrWrite)
	}
	return nil
}

// ReadaBlock issues a readahead hint. Plain files have no useful readahead
// hook distinct from a normal read, so this simply primes the page cache
// by discarding a read — matching the original's reada_block, which on
// most backends degrades to the same thing.
func (d *FileDevice) ReadaBlock(blkaddr int64) error {
	buf := make([]byte, f2fs.BlockSize)
	return d.ReadBlock(buf, blkaddr)
}

// Close releases the underlying file handle.
func (d *FileDevice) Close() error {
	return d.f.Close()
}
