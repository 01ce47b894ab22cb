package main

import (
	"os"
	"sort"

	"github.com/vmihailenco/msgpack/v5"
)

const IndexVersion = 1

type FileRecord struct {
	Name       string `msgpack:"name"`
	ModifiedAt int64  `msgpack:"mtime"`
	Embedding  Vector `msgpack:"vector,omitempty"`
}

type DirEntry struct {
	Files []FileRecord `msgpack:"files"`
}

type Index struct {
	Root string
	Dirs map[string]*DirEntry
}

type indexFile struct {
	Version int              `msgpack:"version"`
	Root    string           `msgpack:"root"`
	Entries []indexFileEntry `msgpack:"entries"`
}

type indexFileEntry struct {
	Path  string       `msgpack:"path"`
	Files []FileRecord `msgpack:"files"`
}

func NewIndex(root string) *Index {
	return &Index{
		Root: root,
		Dirs: make(map[string]*DirEntry),
	}
}

// LoadIndex reads the persisted index for root. Anything that prevents a
// clean read (missing file, truncated data, version or root mismatch) yields
// an empty index, forcing a full recompute instead of an error.
func LoadIndex(path, root string) *Index {
	index := NewIndex(root)

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warnf("Failed to read index %s: %v\n", path, err)
		}

		return index
	}

	var file indexFile

	if err := msgpack.Unmarshal(data, &file); err != nil {
		log.Warnf("Failed to parse index %s: %v\n", path, err)

		return index
	}

	if file.Version != IndexVersion {
		log.Warnf("Ignoring index %s with version %d\n", path, file.Version)

		return index
	}

	if file.Root != root {
		log.Warnf("Ignoring index %s for different root %s\n", path, file.Root)

		return index
	}

	for _, entry := range file.Entries {
		index.Dirs[entry.Path] = &DirEntry{
			Files: entry.Files,
		}
	}

	return index
}

// Save writes the index atomically, encoding to a sibling temp file first and
// renaming it over the target once the data is on disk.
func (x *Index) Save(path string) (int64, error) {
	file := indexFile{
		Version: IndexVersion,
		Root:    x.Root,
	}

	paths := make([]string, 0, len(x.Dirs))

	for path := range x.Dirs {
		paths = append(paths, path)
	}

	sort.Strings(paths)

	for _, dir := range paths {
		file.Entries = append(file.Entries, indexFileEntry{
			Path:  dir,
			Files: x.Dirs[dir].Files,
		})
	}

	writer, tmp, err := OpenTempFileForWriting(path)
	if err != nil {
		return 0, err
	}

	if err := msgpack.NewEncoder(writer).Encode(file); err != nil {
		writer.Close()

		os.Remove(tmp)

		return 0, err
	}

	if err := writer.Close(); err != nil {
		os.Remove(tmp)

		return 0, err
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)

		return 0, err
	}

	return writer.N, nil
}

func (x *Index) Entry(path string) *DirEntry {
	return x.Dirs[path]
}

// Merge replaces the record set of a directory wholesale. An empty set drops
// the directory from the index.
func (x *Index) Merge(path string, files []FileRecord) {
	if len(files) == 0 {
		delete(x.Dirs, path)

		return
	}

	x.Dirs[path] = &DirEntry{
		Files: files,
	}
}

// Prune drops directories that no longer exist on disk and returns how many
// were removed.
func (x *Index) Prune() int {
	var pruned int

	for path := range x.Dirs {
		info, err := os.Stat(path)

		if err == nil && info.IsDir() {
			continue
		}

		delete(x.Dirs, path)

		pruned++
	}

	return pruned
}

func (x *Index) Files() int {
	var total int

	for _, entry := range x.Dirs {
		total += len(entry.Files)
	}

	return total
}

func (x *Index) Vectors() int {
	var total int

	for _, entry := range x.Dirs {
		for _, file := range entry.Files {
			if file.Embedding != nil {
				total++
			}
		}
	}

	return total
}
