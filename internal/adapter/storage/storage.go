// Package storage contains the default [domain.Storage] implementation, a
// thin layer over os/filepath that adds the fsync choreography a
// crash-safe journal write needs: stdlib file operations alone don't
// guarantee a rename survives a power loss unless the directory entry and
// both files involved are explicitly synced in the right order.
package storage

import (
	"io"
	"os"
	"path/filepath"
	"runtime"

	"github.com/Techpire/db/domain"
)

// osOps is the subset of the os package Storage depends on, seamed out so
// tests can simulate filesystem failures (a full disk, a racing delete)
// that are impractical to reproduce against a real filesystem.
type osOps interface {
	IsNotExist(err error) bool
	MkdirAll(path string, perm os.FileMode) error
	OpenFile(name string, flag int, perm os.FileMode) (*os.File, error)
	Remove(name string) error
	Rename(oldpath, newpath string) error
	Stat(name string) (os.FileInfo, error)
	WriteFile(name string, data []byte, perm os.FileMode) error
}

// osImpl implements osOps by calling straight through to the os package.
type osImpl struct{}

func (osImpl) IsNotExist(err error) bool { return os.IsNotExist(err) }

func (osImpl) MkdirAll(path string, perm os.FileMode) error {
	return os.MkdirAll(path, perm)
}

func (osImpl) OpenFile(name string, flag int, perm os.FileMode) (*os.File, error) {
	return os.OpenFile(name, flag, perm)
}

func (osImpl) Remove(name string) error { return os.Remove(name) }

func (osImpl) Rename(oldpath, newpath string) error {
	return os.Rename(oldpath, newpath)
}

func (osImpl) Stat(name string) (os.FileInfo, error) { return os.Stat(name) }

func (osImpl) WriteFile(name string, data []byte, perm os.FileMode) error {
	return os.WriteFile(name, data, perm)
}

// Storage implements domain.Storage.
type Storage struct {
	osOpts osOps
}

// NewStorage returns a new implementation of domain.Storage.
func NewStorage() domain.Storage {
	return &Storage{osOpts: osImpl{}}
}

// AppendFile implements domain.Storage.
func (s *Storage) AppendFile(filename string, mode os.FileMode, data []byte) (int, error) {
	f, err := s.osOpts.OpenFile(filename, os.O_WRONLY|os.O_CREATE|os.O_APPEND, mode)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return f.Write(data)
}

// CrashSafeWriteFileLines implements domain.Storage. It writes to a
// sibling "~" file, fsyncs it and its directory, then renames it over the
// target — so a crash mid-write leaves either the old file or the new
// one intact, never a half-written one.
func (s *Storage) CrashSafeWriteFileLines(filename string, lines [][]byte, dirMode, fileMode os.FileMode) error {
	tempFilename := filename + "~"
	dir := filepath.Dir(filename)

	if err := s.flushToStorage(dir, true, dirMode); err != nil {
		return err
	}

	exists, err := s.Exists(filename)
	if err != nil {
		return err
	}
	if exists {
		if err := s.flushToStorage(filename, false, fileMode); err != nil {
			return err
		}
	}

	if err := s.writeFileLines(tempFilename, lines, fileMode); err != nil {
		return err
	}
	if err := s.flushToStorage(tempFilename, false, fileMode); err != nil {
		return err
	}
	if err := s.rename(tempFilename, filename); err != nil {
		return err
	}
	return s.flushToStorage(filename, true, dirMode)
}

// EnsureDatafileIntegrity implements domain.Storage. A datafile missing on
// disk but present as a leftover "~" temp file means a prior
// CrashSafeWriteFileLines call crashed after writing but before the final
// rename; recovering means finishing that rename rather than discarding
// the write.
func (s *Storage) EnsureDatafileIntegrity(filename string, mode os.FileMode) error {
	exists, err := s.Exists(filename)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	tempExists, err := s.Exists(filename + "~")
	if err != nil {
		return err
	}
	if !tempExists {
		return s.osOpts.WriteFile(filename, nil, mode)
	}
	return s.osOpts.Rename(filename+"~", filename)
}

// EnsureParentDirectoryExists implements domain.Storage.
func (s *Storage) EnsureParentDirectoryExists(filename string, mode os.FileMode) error {
	dir, err := filepath.Abs(filepath.Dir(filename))
	if err != nil {
		return err
	}
	if isWindowsDriveRoot(dir) {
		return nil
	}
	return s.osOpts.MkdirAll(dir, mode)
}

// isWindowsDriveRoot reports whether dir is a bare Windows volume root
// (e.g. "C:\"), which MkdirAll refuses to create and doesn't need to.
func isWindowsDriveRoot(dir string) bool {
	root := filepath.VolumeName(dir) + string(os.PathSeparator)
	return runtime.GOOS == "windows" && dir == root && filepath.Base(dir) == ""
}

// Exists implements domain.Storage.
func (s *Storage) Exists(filename string) (bool, error) {
	_, err := s.osOpts.Stat(filename)
	switch {
	case err == nil:
		return true, nil
	case s.osOpts.IsNotExist(err):
		return false, nil
	default:
		return false, err
	}
}

func (s *Storage) flushToStorage(filename string, isDir bool, mode os.FileMode) error {
	flags := os.O_RDWR
	if isDir {
		flags = os.O_RDONLY
	}

	f, err := s.osOpts.OpenFile(filename, flags, mode)
	if err != nil {
		return domain.ErrFlushToStorage{ErrorOnFsync: err}
	}
	if err := f.Sync(); err != nil {
		return domain.ErrFlushToStorage{ErrorOnFsync: err}
	}
	if err := f.Close(); err != nil {
		return domain.ErrFlushToStorage{ErrorOnClose: err}
	}
	return nil
}

// ReadFileStream implements domain.Storage.
func (s *Storage) ReadFileStream(filename string, mode os.FileMode) (io.ReadCloser, error) {
	return s.osOpts.OpenFile(filename, os.O_RDONLY, mode)
}

func (s *Storage) rename(oldPath, newPath string) error {
	return s.osOpts.Rename(oldPath, newPath)
}

func (s *Storage) writeFileLines(filename string, lines [][]byte, mode os.FileMode) error {
	stream, err := s.writeFileStream(filename, mode)
	if err != nil {
		return err
	}
	defer stream.Close()
	for _, line := range lines {
		if _, err := stream.Write(append(line, '\n')); err != nil {
			return err
		}
	}
	return nil
}

func (s *Storage) writeFileStream(filename string, mode os.FileMode) (io.WriteCloser, error) {
	return s.osOpts.OpenFile(filename, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
}

// Remove implements domain.Storage.
func (s *Storage) Remove(filename string) error {
	return s.osOpts.Remove(filename)
}
