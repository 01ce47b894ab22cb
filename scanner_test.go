package main

import (
	"image/color"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanTree(t *testing.T) {
	root := t.TempDir()

	writePNG(t, filepath.Join(root, "a.png"), color.White)
	writePNG(t, filepath.Join(root, "UPPER.PNG"), color.White)
	writePNG(t, filepath.Join(root, "sub", "b.jpg"), color.Black)
	writePNG(t, filepath.Join(root, "deep", "nested", "c.webp"), color.White)

	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("hi"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "noext"), []byte("hi"), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "empty"), 0755))

	tree, err := ScanTree(root, nil)
	require.NoError(t, err)
	require.NotNil(t, tree)

	dirs, files := tree.Count()

	assert.Equal(t, 4, dirs, "root, sub, deep and deep/nested survive, empty does not")
	assert.Equal(t, 4, files)
	assert.Equal(t, 4, tree.NeedsUpdate, "everything is new without a prior index")

	names := make([]string, 0, len(tree.Files))

	for _, file := range tree.Files {
		names = append(names, file.Name)
	}

	assert.ElementsMatch(t, []string{"a.png", "UPPER.PNG"}, names)
}

func TestScanTree_MissingRoot(t *testing.T) {
	tree, err := ScanTree(filepath.Join(t.TempDir(), "gone"), nil)

	assert.Error(t, err)
	assert.Nil(t, tree)
}

func TestScanTree_NoImages(t *testing.T) {
	root := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(root, "readme.md"), []byte("x"), 0644))

	tree, err := ScanTree(root, nil)

	require.NoError(t, err)
	assert.Nil(t, tree)
}

func TestScanTree_Staleness(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "a.png")

	writePNG(t, path, color.White)

	info, err := os.Stat(path)
	require.NoError(t, err)

	mtime := info.ModTime()

	record := func(at time.Time) *Index {
		prev := NewIndex(root)

		prev.Merge(root, []FileRecord{{
			Name:       "a.png",
			ModifiedAt: at.UnixNano(),
			Embedding:  Vector{1},
		}})

		return prev
	}

	t.Run("unchanged", func(t *testing.T) {
		tree, err := ScanTree(root, record(mtime))
		require.NoError(t, err)

		assert.Equal(t, 0, tree.NeedsUpdate)
		assert.False(t, tree.Files[0].NeedsUpdate)
	})

	t.Run("disk newer", func(t *testing.T) {
		require.NoError(t, os.Chtimes(path, mtime.Add(time.Second), mtime.Add(time.Second)))

		tree, err := ScanTree(root, record(mtime))
		require.NoError(t, err)

		assert.Equal(t, 1, tree.NeedsUpdate)
		assert.True(t, tree.Files[0].NeedsUpdate)
	})

	t.Run("disk older", func(t *testing.T) {
		require.NoError(t, os.Chtimes(path, mtime, mtime))

		tree, err := ScanTree(root, record(mtime.Add(time.Hour)))
		require.NoError(t, err)

		assert.Equal(t, 0, tree.NeedsUpdate, "only a strictly newer mtime triggers a recompute")
	})

	t.Run("new sibling", func(t *testing.T) {
		writePNG(t, filepath.Join(root, "b.png"), color.Black)

		tree, err := ScanTree(root, record(mtime))
		require.NoError(t, err)

		assert.Equal(t, 1, tree.NeedsUpdate)
	})
}
