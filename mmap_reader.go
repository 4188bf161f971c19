package lodestore

import (
	"fmt"
	"io"
	"os"

	"github.com/nlxr/lodestore/internal/sys"
)

// MMapReader is a read-only io.ReadSeeker over a memory-mapped node file.
// Like any cursor-bearing reader handed to a registry, it is not safe for
// unsynchronized concurrent use; the registry serializes access through its
// reader lock.
type MMapReader struct {
	mapFile *os.File
	dat     []byte
	off     int64
}

func OpenMMapReader(path string) (*MMapReader, error) {
	f, err := os.OpenFile(path, os.O_RDONLY, 0644)
	if err != nil {
		return nil, err
	}
	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	m := &MMapReader{mapFile: f}
	if stat.Size() == 0 {
		// Mapping a zero-length file fails; an empty reader only ever
		// reports EOF anyway.
		return m, nil
	}
	m.dat, err = sys.MMapRead(f, uint64(stat.Size()))
	if err != nil {
		f.Close()
		return nil, err
	}
	return m, nil
}

func (m *MMapReader) Read(p []byte) (int, error) {
	if m.off >= int64(len(m.dat)) {
		return 0, io.EOF
	}
	n := copy(p, m.dat[m.off:])
	m.off += int64(n)
	return n, nil
}

func (m *MMapReader) Seek(offset int64, whence int) (int64, error) {
	var next int64
	switch whence {
	case io.SeekStart:
		next = offset
	case io.SeekCurrent:
		next = m.off + offset
	case io.SeekEnd:
		next = int64(len(m.dat)) + offset
	default:
		return 0, fmt.Errorf("invalid seek whence: %d", whence)
	}
	if next < 0 {
		return 0, fmt.Errorf("negative seek offset: %d", next)
	}
	m.off = next
	return next, nil
}

func (m *MMapReader) Size() int64 {
	return int64(len(m.dat))
}

func (m *MMapReader) Close() (err error) {
	if m.dat != nil {
		err = sys.MUnmap(m.mapFile, m.dat)
		m.dat = nil
	}
	if cerr := m.mapFile.Close(); err == nil {
		err = cerr
	}
	return
}
