package main

import (
	"maps"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
)

// RunIndex scans target, embeds every new or changed image and persists the
// updated index, which is returned for the caller to catalog. newWorker is
// only invoked when embeddings actually have to be computed, so an
// up-to-date tree never loads the model.
func RunIndex(target string, newWorker func() (*Worker, error)) (*Index, error) {
	timer := NewTimer()

	root, err := filepath.Abs(target)
	if err != nil {
		return nil, err
	}

	path, err := IndexFilePath(root)
	if err != nil {
		return nil, err
	}

	index := LoadIndex(path, root)

	timer.Start("scan")

	tree, err := ScanTree(root, index)

	timer.Stop("scan")

	if err != nil {
		log.Warnf("Failed to read %s: %v\n", root, err)

		return nil, ErrNoImages
	}

	if tree == nil {
		return nil, ErrNoImages
	}

	dirs, files := tree.Count()

	log.InfoF("Found %d images in %d directories, %d to embed\n", files, dirs, tree.NeedsUpdate)

	// entries of the previous run, safe to read while merges rewrite the live map
	prior := maps.Clone(index.Dirs)

	var pipeline *Pipeline

	if tree.NeedsUpdate > 0 {
		timer.Start("launch")

		worker, err := newWorker()
		if err != nil {
			return nil, err
		}

		pipeline = NewPipeline(worker, config.Index.BatchSize)

		timer.Stop("launch")
	}

	timer.Start("embed")

	var done atomic.Int64

	finished := make(chan bool)

	if tree.NeedsUpdate > 0 {
		ticker := time.NewTicker(time.Duration(config.Index.ScanReport) * time.Second)
		defer ticker.Stop()

		go func() {
			for {
				select {
				case <-finished:
					return
				case <-ticker.C:
					count := done.Load()

					log.Printf("Embedding %.1f%% (%d of %d)\n", float64(count)*100/float64(tree.NeedsUpdate), count, tree.NeedsUpdate)
				}
			}
		}()
	}

	type mergeResult struct {
		path  string
		files []FileRecord
	}

	merges := make(chan mergeResult)
	merged := make(map[string]bool)

	var mergeWg sync.WaitGroup

	mergeWg.Go(func() {
		for result := range merges {
			index.Merge(result.path, result.files)

			merged[result.path] = true
		}
	})

	var walkWg sync.WaitGroup

	var walk func(dir *ScannedDir)

	walk = func(dir *ScannedDir) {
		records := make([]FileRecord, len(dir.Files))
		futures := make([]*Future, len(dir.Files))

		var priorFiles []FileRecord

		if entry := prior[dir.Path]; entry != nil {
			priorFiles = entry.Files
		}

		for i, file := range dir.Files {
			records[i] = FileRecord{
				Name:       file.Name,
				ModifiedAt: file.ModifiedAt,
			}

			if !file.NeedsUpdate {
				if old := findRecord(priorFiles, file.Name); old != nil {
					records[i] = *old
				}

				continue
			}

			futures[i] = pipeline.Process(filepath.Join(dir.Path, file.Name))
		}

		walkWg.Go(func() {
			for i, future := range futures {
				if future == nil {
					continue
				}

				vector, err := future.Wait()

				done.Add(1)

				if err != nil {
					// batch failed, keep whatever we had so the next run retries
					if old := findRecord(priorFiles, records[i].Name); old != nil {
						records[i] = *old
					} else {
						records[i].ModifiedAt = 0
					}

					continue
				}

				records[i].Embedding = vector
			}

			merges <- mergeResult{
				path:  dir.Path,
				files: records,
			}
		})

		for _, sub := range dir.Dirs {
			walk(sub)
		}
	}

	walk(tree)

	walkWg.Wait()

	var drainErr error

	if pipeline != nil {
		drainErr = pipeline.Drain()
	}

	close(merges)

	mergeWg.Wait()

	close(finished)

	timer.Stop("embed")

	timer.Start("save")

	// directories that yielded no merge this run lost their images or are gone
	for dirPath := range index.Dirs {
		if !merged[dirPath] {
			index.Merge(dirPath, nil)
		}
	}

	if pruned := index.Prune(); pruned > 0 {
		log.Warnf("Pruned %d directories missing on disk\n", pruned)
	}

	bytes, err := index.Save(path)

	timer.Stop("save")

	if err != nil {
		return nil, err
	}

	if pipeline != nil {
		if err := pipeline.Close(); err != nil {
			log.Warnf("Failed to close pipeline: %v\n", err)
		}
	}

	if drainErr != nil {
		log.Warnf("Embedding run failed after %d of %d images: %v\n", done.Load(), tree.NeedsUpdate, drainErr)

		return index, drainErr
	}

	log.InfoF("Indexed %d images in %d directories (%s)\n", index.Files(), len(index.Dirs), humanize.Bytes(uint64(bytes)))
	log.NoteF("Timings: %s\n", timer.Summary())

	return index, nil
}
