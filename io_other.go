//go:build !linux && !darwin

package avlreg

import "os"

// portableFileIO implements fileIO with the portable os.File positional
// methods, for platforms without the unix.Pread/Pwrite syscalls used by
// io_unix.go.
type portableFileIO struct {
	f *os.File
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
	return &portableFileIO{f: f}, nil
}

func (p *portableFileIO) ReadAt(buf []byte, off int64) error {
	n, err := p.f.ReadAt(buf, off)
	if err != nil {
		return wrapErr(KindIOError, "read", err)
	}
	if n != len(buf) {
		return wrapErr(KindIOError, "short read", nil)
	}
	return nil
}

func (p *portableFileIO) WriteAt(buf []byte, off int64) error {
	n, err := p.f.WriteAt(buf, off)
	if err != nil {
		return wrapErr(KindIOError, "write", err)
	}
	if n != len(buf) {
		return wrapErr(KindIOError, "short write", nil)
	}
	return nil
}

func (p *portableFileIO) Flush() error {
	if err := p.f.Sync(); err != nil {
		return wrapErr(KindIOError, "sync", err)
	}
	return nil
}

func (p *portableFileIO) Size() (int64, error) {
	st, err := p.f.Stat()
	if err != nil {
		return 0, wrapErr(KindIOError, "stat", err)
	}
	return st.Size(), nil
}

func (p *portableFileIO) Truncate(size int64) error {
	if err := p.f.Truncate(size); err != nil {
		return wrapErr(KindIOError, "truncate", err)
	}
	return nil
}

func (p *portableFileIO) Close() error {
	if err := p.f.Close(); err != nil {
		return wrapErr(KindIOError, "close", err)
	}
	return nil
}
