package main

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

var ErrNoImages = errors.New("no images found")

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
	".heic": true,
}

func isImageFile(name string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(name))]
}

type ScannedFile struct {
	Name        string
	ModifiedAt  int64
	NeedsUpdate bool
}

type ScannedDir struct {
	Path  string
	Files []ScannedFile
	Dirs  []*ScannedDir

	// files in this subtree whose embedding must be (re)computed
	NeedsUpdate int
}

// ScanTree walks root and diffs every image file against the previous index.
// A file needs an update if it is new or its on-disk mtime is newer than the
// recorded one. Directories survive in the result only if they hold images
// directly or through a descendant; a nil tree means root has none.
func ScanTree(root string, prev *Index) (*ScannedDir, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	return scanDir(abs, prev)
}

func scanDir(path string, prev *Index) (*ScannedDir, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}

	dir := &ScannedDir{
		Path: path,
	}

	var subNames []string

	for _, entry := range entries {
		if entry.IsDir() {
			subNames = append(subNames, entry.Name())

			continue
		}

		if !isImageFile(entry.Name()) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			log.Warnf("Failed to stat %s: %v\n", filepath.Join(path, entry.Name()), err)

			continue
		}

		dir.Files = append(dir.Files, ScannedFile{
			Name:       entry.Name(),
			ModifiedAt: info.ModTime().UnixNano(),
		})
	}

	var prior []FileRecord

	if prev != nil {
		if entry := prev.Entry(path); entry != nil {
			prior = entry.Files
		}
	}

	for i := range dir.Files {
		old := findRecord(prior, dir.Files[i].Name)

		if old == nil || dir.Files[i].ModifiedAt > old.ModifiedAt {
			dir.Files[i].NeedsUpdate = true

			dir.NeedsUpdate++
		}
	}

	subs := make([]*ScannedDir, len(subNames))
	errs := make([]error, len(subNames))

	var wg sync.WaitGroup

	for i, name := range subNames {
		wg.Go(func() {
			subs[i], errs[i] = scanDir(filepath.Join(path, name), prev)
		})
	}

	wg.Wait()

	for i, sub := range subs {
		if errs[i] != nil {
			log.Warnf("Failed to scan %s: %v\n", filepath.Join(path, subNames[i]), errs[i])

			continue
		}

		if sub == nil {
			continue
		}

		dir.Dirs = append(dir.Dirs, sub)

		dir.NeedsUpdate += sub.NeedsUpdate
	}

	if len(dir.Files) == 0 && len(dir.Dirs) == 0 {
		return nil, nil
	}

	return dir, nil
}

// Count reports how many directories and image files the subtree holds.
func (d *ScannedDir) Count() (int, int) {
	dirs := 1
	files := len(d.Files)

	for _, sub := range d.Dirs {
		subDirs, subFiles := sub.Count()

		dirs += subDirs
		files += subFiles
	}

	return dirs, files
}

func findRecord(records []FileRecord, name string) *FileRecord {
	for i := range records {
		if records[i].Name == name {
			return &records[i]
		}
	}

	return nil
}
