//go:build unix

package sys

import (
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

func MMapRead(file *os.File, length uint64) (dat []byte, err error) {
	dat, err = unix.Mmap(int(file.Fd()), 0, int(length), syscall.PROT_READ, syscall.MAP_SHARED)
	return
}

func MUnmap(file *os.File, dat []byte) (err error) {
	return unix.Munmap(dat)
}
