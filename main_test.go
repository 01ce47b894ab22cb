package main

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// setupTestEnv points the config and cache directories at a temp dir and
// installs a default config, so tests never touch the real user dirs.
func setupTestEnv(t *testing.T) {
	t.Helper()

	dir := t.TempDir()

	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("XDG_CACHE_HOME", filepath.Join(dir, "cache"))

	config = NewDefaultConfig()
}

func writePNG(t *testing.T, path string, c color.Color) {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 4, 4))

	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, c)
		}
	}

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))

	file, err := os.Create(path)
	require.NoError(t, err)

	defer file.Close()

	require.NoError(t, png.Encode(file, img))
}

// fakeEmbedder is a deterministic in-process stand-in for the model. Image
// vectors carry a global sequence number so tests can check resolution
// order, and an optional gate blocks each batch until the test releases it.
type fakeEmbedder struct {
	gate chan struct{}
	fail error

	mx       sync.Mutex
	batches  []int
	images   int
	texts    []string
	sequence int
}

func (f *fakeEmbedder) EmbedImages(images []image.Image) ([]Vector, error) {
	if f.gate != nil {
		<-f.gate
	}

	f.mx.Lock()
	defer f.mx.Unlock()

	if f.fail != nil {
		return nil, f.fail
	}

	f.batches = append(f.batches, len(images))
	f.images += len(images)

	vectors := make([]Vector, len(images))

	for i := range vectors {
		f.sequence++

		vectors[i] = Vector{float32(f.sequence)}
	}

	return vectors, nil
}

func (f *fakeEmbedder) EmbedTexts(texts []string) ([]Vector, error) {
	if f.gate != nil {
		<-f.gate
	}

	f.mx.Lock()
	defer f.mx.Unlock()

	if f.fail != nil {
		return nil, f.fail
	}

	f.texts = append(f.texts, texts...)

	vectors := make([]Vector, len(texts))

	for i := range vectors {
		vectors[i] = Vector{1}
	}

	return vectors, nil
}
