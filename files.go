package main

import (
	"os"
)

func OpenFileForReading(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_RDONLY, 0)
}

func OpenFileForWriting(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
}

// OpenTempFileForWriting opens a temporary sibling of target, so the caller
// can rename it over target once the write completed (rename stays on the
// same filesystem that way).
func OpenTempFileForWriting(target string) (*CountWriter, string, error) {
	path := target + ".tmp"

	file, err := OpenCountWriter(path)
	if err != nil {
		return nil, "", err
	}

	return file, path, nil
}
