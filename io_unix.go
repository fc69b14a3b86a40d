//go:build linux || darwin

package avlreg

import (
	"os"

	"golang.org/x/sys/unix"
)

// unixFileIO implements fileIO with raw positional syscalls
// (unix.Pread/Pwrite/Fsync) instead of os.File's ReadAt/WriteAt, giving the
// engine direct control over the positional I/O spec §4.2/§4.6 rely on.
// Grounded on golang.org/x/sys, the syscall-access dependency already
// present across the pack (joshuapare-hivekit, hanwen-go-fuse,
// xDarkicex-libravdb).
type unixFileIO struct {
	f  *os.File
	fd int
}

func openPlatformFile(path string, create bool) (fileIO, error) {
	flag := os.O_RDWR
	if create {
		flag |= os.O_CREATE
	}
	f, err := os.OpenFile(path, flag, 0o600)
	if err != nil {
		return nil, wrapErr(KindIOError, "open file", err)
	}
	return &unixFileIO{f: f, fd: int(f.Fd())}, nil
}

func (u *unixFileIO) ReadAt(buf []byte, off int64) error {
	n, err := unix.Pread(u.fd, buf, off)
	if err != nil {
		return wrapErr(KindIOError, "pread", err)
	}
	if n != len(buf) {
		return wrapErr(KindIOError, "short pread", nil)
	}
	return nil
}

func (u *unixFileIO) WriteAt(buf []byte, off int64) error {
	n, err := unix.Pwrite(u.fd, buf, off)
	if err != nil {
		return wrapErr(KindIOError, "pwrite", err)
	}
	if n != len(buf) {
		return wrapErr(KindIOError, "short pwrite", nil)
	}
	return nil
}

func (u *unixFileIO) Flush() error {
	if err := unix.Fsync(u.fd); err != nil {
		return wrapErr(KindIOError, "fsync", err)
	}
	return nil
}

func (u *unixFileIO) Size() (int64, error) {
	st, err := u.f.Stat()
	if err != nil {
		return 0, wrapErr(KindIOError, "stat", err)
	}
	return st.Size(), nil
}

func (u *unixFileIO) Truncate(size int64) error {
	if err := unix.Ftruncate(u.fd, size); err != nil {
		return wrapErr(KindIOError, "ftruncate", err)
	}
	return nil
}

func (u *unixFileIO) Close() error {
	if err := u.f.Close(); err != nil {
		return wrapErr(KindIOError, "close", err)
	}
	return nil
}
