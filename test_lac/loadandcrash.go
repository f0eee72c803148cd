// Package main crashes midway through a crash-safe rewrite so the parent
// test can assert that the previous datafile version survives on disk.
package main

import (
	"bytes"
	"context"
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime"

	"github.com/Techpire/db/domain"
	"github.com/Techpire/db/internal/adapter/persistence"
)

func main() {
	per, err := persistence.NewPersistence(
		domain.WithPersistenceFilename("../workspace/lac.db"),
		domain.WithPersistenceStorage(crashingStorage{}),
	)
	if err != nil {
		log.Fatal(err)
	}
	if _, _, err = per.LoadDatabase(context.Background()); err != nil {
		log.Fatal(err)
	}
}

// crashingStorage implements domain.Storage the same way the real
// implementation does, except its write path calls os.Exit(1) after the
// first chunk so the rewrite is left half-finished.
type crashingStorage struct{}

func (s crashingStorage) AppendFile(filename string, mode os.FileMode, data []byte) (int, error) {
	f, err := os.OpenFile(filename, os.O_WRONLY|os.O_CREATE|os.O_APPEND, mode)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return f.Write(data)
}

func (s crashingStorage) CrashSafeWriteFileLines(filename string, lines [][]byte, dirMode, fileMode os.FileMode) error {
	tempFilename := filename + "~"

	if err := s.flushToStorage(filepath.Dir(filename), true, dirMode); err != nil {
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

	if err := s.writeFileLinesAndCrash(tempFilename, lines, fileMode); err != nil {
		return err
	}

	if err := s.flushToStorage(tempFilename, false, fileMode); err != nil {
		return err
	}
	if err := os.Rename(tempFilename, filename); err != nil {
		return err
	}
	return s.flushToStorage(filename, true, dirMode)
}

func (s crashingStorage) EnsureDatafileIntegrity(filename string, mode os.FileMode) error {
	tempFilename := filename + "~"

	filenameExists, err := s.Exists(filename)
	if err != nil {
		return err
	}
	if filenameExists {
		return nil
	}

	oldFilenameExists, err := s.Exists(tempFilename)
	if err != nil {
		return err
	}
	if !oldFilenameExists {
		return os.WriteFile(filename, nil, mode)
	}
	return os.Rename(tempFilename, filename)
}

func (s crashingStorage) EnsureParentDirectoryExists(filename string, mode os.FileMode) error {
	dir := filepath.Dir(filename)
	parsedDir, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	root := filepath.VolumeName(parsedDir) + string(os.PathSeparator)
	if runtime.GOOS != "windows" || parsedDir != root || filepath.Base(parsedDir) != "" {
		return os.MkdirAll(parsedDir, mode)
	}
	return nil
}

func (s crashingStorage) Exists(filename string) (bool, error) {
	_, err := os.Stat(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s crashingStorage) flushToStorage(filename string, isDir bool, mode os.FileMode) error {
	flags := os.O_RDWR
	if isDir {
		flags = os.O_RDONLY
	}
	fileHandle, err := os.OpenFile(filename, flags, mode)
	if err != nil {
		return domain.ErrFlushToStorage{ErrorOnFsync: err}
	}
	if err := fileHandle.Sync(); err != nil {
		return domain.ErrFlushToStorage{ErrorOnFsync: err}
	}
	if err := fileHandle.Close(); err != nil {
		return domain.ErrFlushToStorage{ErrorOnClose: err}
	}
	return nil
}

func (s crashingStorage) ReadFileStream(filename string, mode os.FileMode) (io.ReadCloser, error) {
	return os.OpenFile(filename, os.O_RDONLY, mode)
}

func (s crashingStorage) Remove(filename string) error {
	return os.Remove(filename)
}

// writeFileLinesAndCrash writes the new datafile one 5000-byte chunk at a
// time and exits the process right after the first chunk lands, simulating a
// crash partway through the rewrite.
func (s crashingStorage) writeFileLinesAndCrash(filename string, lines [][]byte, mode os.FileMode) error {
	buf := new(bytes.Buffer)
	for _, line := range lines {
		buf.Write(line)
		buf.WriteByte('\n')
	}

	f, err := os.OpenFile(filename, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	defer f.Close()

	onePassDone := false
	for buf.Len() > 0 {
		if onePassDone {
			os.Exit(1)
		}
		if _, err := f.Write(buf.Next(5000)); err != nil {
			return err
		}
		onePassDone = true
	}
	return nil
}
