package main

import (
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"time"
)

const (
	goodTextScore       = 0.2
	bottomLineTextScore = 0.16

	goodImageScore       = 0.75
	bottomLineImageScore = 0.6
)

var ErrNotIndexed = errors.New("directory is not indexed")

type Candidate struct {
	Path      string
	Embedding Vector
}

type SearchResult struct {
	Path  string
	Score float64
}

type SearchOptions struct {
	In  string
	Max int
}

// RunSearch resolves the query to a vector, loads the index covering the
// requested directory and returns the ranked matches inside it.
func RunSearch(query string, options SearchOptions, newWorker func() (*Worker, error)) ([]SearchResult, error) {
	in, err := filepath.Abs(options.In)
	if err != nil {
		return nil, err
	}

	root, err := FindContainingRoot(in)
	if err != nil {
		return nil, err
	}

	if root == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotIndexed, in)
	}

	path, err := IndexFilePath(root.Path)
	if err != nil {
		return nil, err
	}

	index := LoadIndex(path, root.Path)

	candidates := CollectCandidates(index, in)

	if len(candidates) == 0 {
		return nil, ErrNoImages
	}

	worker, err := newWorker()
	if err != nil {
		return nil, err
	}

	defer worker.Close()

	vector, isImage, err := resolveQuery(worker, query)
	if err != nil {
		return nil, err
	}

	max := options.Max

	if max <= 0 {
		max = config.Search.MaxResults
	}

	return Search(vector, isImage, candidates, max), nil
}

// CollectCandidates flattens every indexed file under the given directory
// into one candidate per file, full path plus stored embedding.
func CollectCandidates(index *Index, under string) []Candidate {
	var candidates []Candidate

	for dir, entry := range index.Dirs {
		if !containsPath(under, dir) {
			continue
		}

		for _, file := range entry.Files {
			candidates = append(candidates, Candidate{
				Path:      filepath.Join(dir, file.Name),
				Embedding: file.Embedding,
			})
		}
	}

	return candidates
}

// Search ranks the candidates by cosine similarity and cuts the tail
// adaptively. Image queries score far higher than text queries against a
// matching file, so the thresholds differ by query kind. Once any score has
// exceeded goodScore the cutoff tightens to goodScore, and the walk stops at
// the first score below the active cutoff. Scores are reported on a 0-100
// scale. Candidates without an embedding score 0 and never make the cut.
func Search(query Vector, imageQuery bool, candidates []Candidate, maxResults int) []SearchResult {
	goodScore := goodTextScore
	bottomLine := bottomLineTextScore

	if imageQuery {
		goodScore = goodImageScore
		bottomLine = bottomLineImageScore
	}

	scored := make([]SearchResult, len(candidates))

	for i, candidate := range candidates {
		scored[i] = SearchResult{
			Path:  candidate.Path,
			Score: Cosine(query, candidate.Embedding),
		}
	}

	sort.Slice(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	var results []SearchResult

	for _, result := range scored {
		if len(results) >= maxResults {
			break
		}

		if result.Score < bottomLine {
			break
		}

		if result.Score > goodScore {
			bottomLine = goodScore
		}

		result.Score *= 100

		results = append(results, result)
	}

	return results
}

// resolveQuery turns the query string into a vector. A query that parses as
// a file, http or https URL is loaded and embedded as an image, anything
// else is embedded literally as text.
func resolveQuery(worker *Worker, query string) (Vector, bool, error) {
	u, err := url.Parse(query)

	if err == nil {
		switch u.Scheme {
		case "file":
			data, err := os.ReadFile(u.Path)
			if err != nil {
				return nil, false, err
			}

			vector, err := embedQueryImage(worker, data)

			return vector, true, err
		case "http", "https":
			data, err := fetchQueryImage(query)
			if err != nil {
				return nil, false, err
			}

			vector, err := embedQueryImage(worker, data)

			return vector, true, err
		}
	}

	vectors, err := worker.EmbedTextBatch([]string{query})
	if err != nil {
		return nil, false, err
	}

	return vectors[0], false, nil
}

func embedQueryImage(worker *Worker, data []byte) (Vector, error) {
	img, err := decodeImageBytes(data)
	if err != nil {
		return nil, err
	}

	vectors, err := worker.EmbedImageBatch([]image.Image{img})
	if err != nil {
		return nil, err
	}

	return vectors[0], nil
}

func fetchQueryImage(rawURL string) ([]byte, error) {
	client := &http.Client{
		Timeout: time.Minute,
	}

	resp, err := client.Get(rawURL)
	if err != nil {
		return nil, err
	}

	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}

	return io.ReadAll(resp.Body)
}
