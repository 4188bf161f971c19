//go:build windows

package sys

import (
	"os"
	"unsafe"

	"golang.org/x/sys/windows"
)

func MMapRead(file *os.File, length uint64) (dat []byte, err error) {
	h, err := windows.CreateFileMapping(windows.Handle(file.Fd()), nil,
		windows.PAGE_READONLY, uint32(length>>32), uint32(length), nil)
	if err != nil {
		return nil, err
	}
	defer windows.CloseHandle(h)
	addr, err := windows.MapViewOfFile(h, windows.FILE_MAP_READ, 0, 0, uintptr(length))
	if err != nil {
		return nil, err
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), length), nil
}

func MUnmap(file *os.File, dat []byte) (err error) {
	return windows.UnmapViewOfFile(uintptr(unsafe.Pointer(&dat[0])))
}
