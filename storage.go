package main

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
)

const AppDirectory = "glimpse"

func ConfigFilePath() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}

	dir := filepath.Join(base, AppDirectory)

	err = os.MkdirAll(dir, 0755)
	if err != nil {
		return "", err
	}

	return filepath.Join(dir, "glimpse.yml"), nil
}

func CacheDirPath() (string, error) {
	base, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}

	dir := filepath.Join(base, AppDirectory)

	err = os.MkdirAll(dir, 0755)
	if err != nil {
		return "", err
	}

	return dir, nil
}

// IndexFileName derives the cache file name for a target directory from its
// absolute path, so every indexed directory maps to a stable file.
func IndexFileName(root string) string {
	sum := sha256.Sum256([]byte(root))

	return hex.EncodeToString(sum[:8]) + ".idx"
}

func IndexFilePath(root string) (string, error) {
	dir, err := CacheDirPath()
	if err != nil {
		return "", err
	}

	return filepath.Join(dir, IndexFileName(root)), nil
}

func RegistryFilePath() (string, error) {
	dir, err := CacheDirPath()
	if err != nil {
		return "", err
	}

	return filepath.Join(dir, "registry.db"), nil
}

// ThumbFilePath maps an image path to its cached gallery thumbnail.
func ThumbFilePath(image string) (string, error) {
	dir, err := CacheDirPath()
	if err != nil {
		return "", err
	}

	thumbs := filepath.Join(dir, "thumbs")

	err = os.MkdirAll(thumbs, 0755)
	if err != nil {
		return "", err
	}

	sum := sha256.Sum256([]byte(image))

	return filepath.Join(thumbs, hex.EncodeToString(sum[:8])+".webp"), nil
}
