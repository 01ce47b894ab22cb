package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRegistry(t *testing.T) {
	t.Helper()

	setupTestEnv(t)

	require.NoError(t, connectToRegistry())

	t.Cleanup(func() {
		registry.Close()

		registry = nil
	})
}

func TestRegistry(t *testing.T) {
	setupTestRegistry(t)

	entry := IndexedRoot{
		Path:    "/photos",
		File:    "abc.idx",
		Files:   10,
		Vectors: 9,
	}

	require.NoError(t, entry.Upsert())

	assert.NotZero(t, entry.IndexedAt, "a zero timestamp is filled with now")

	found, err := FindIndexedRoot("/photos")
	require.NoError(t, err)
	require.NotNil(t, found)

	assert.Equal(t, entry, *found)

	missing, err := FindIndexedRoot("/nope")
	require.NoError(t, err)

	assert.Nil(t, missing)

	t.Run("upsert updates in place", func(t *testing.T) {
		entry.Files = 12
		entry.Vectors = 12
		entry.IndexedAt = 12345

		require.NoError(t, entry.Upsert())

		roots, err := ListIndexedRoots()
		require.NoError(t, err)
		require.Len(t, roots, 1)

		assert.Equal(t, 12, roots[0].Files)
		assert.Equal(t, int64(12345), roots[0].IndexedAt)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, entry.Delete())

		found, err := FindIndexedRoot("/photos")
		require.NoError(t, err)

		assert.Nil(t, found)
	})
}

func TestListIndexedRoots(t *testing.T) {
	setupTestRegistry(t)

	for _, path := range []string{"/c", "/a", "/b"} {
		entry := IndexedRoot{
			Path: path,
			File: "x.idx",
		}

		require.NoError(t, entry.Upsert())
	}

	roots, err := ListIndexedRoots()
	require.NoError(t, err)
	require.Len(t, roots, 3)

	assert.Equal(t, "/a", roots[0].Path)
	assert.Equal(t, "/b", roots[1].Path)
	assert.Equal(t, "/c", roots[2].Path)
}

func TestFindContainingRoot(t *testing.T) {
	setupTestRegistry(t)

	for _, path := range []string{"/photos", "/photos/raw", "/backup"} {
		entry := IndexedRoot{
			Path: path,
			File: "x.idx",
		}

		require.NoError(t, entry.Upsert())
	}

	find := func(t *testing.T, path string) *IndexedRoot {
		root, err := FindContainingRoot(path)
		require.NoError(t, err)

		return root
	}

	t.Run("exact match", func(t *testing.T) {
		root := find(t, "/photos")

		require.NotNil(t, root)
		assert.Equal(t, "/photos", root.Path)
	})

	t.Run("inside", func(t *testing.T) {
		root := find(t, "/photos/2024/june")

		require.NotNil(t, root)
		assert.Equal(t, "/photos", root.Path)
	})

	t.Run("deepest wins", func(t *testing.T) {
		root := find(t, "/photos/raw/batch")

		require.NotNil(t, root)
		assert.Equal(t, "/photos/raw", root.Path)
	})

	t.Run("outside", func(t *testing.T) {
		assert.Nil(t, find(t, "/elsewhere"))
	})

	t.Run("sibling with common prefix", func(t *testing.T) {
		assert.Nil(t, find(t, "/photosx"), "string prefixes do not make a parent")
	})
}

func TestConnectToRegistry_Reopen(t *testing.T) {
	setupTestRegistry(t)

	entry := IndexedRoot{
		Path: "/photos",
		File: "x.idx",
	}

	require.NoError(t, entry.Upsert())

	require.NoError(t, registry.Close())
	require.NoError(t, connectToRegistry())

	found, err := FindIndexedRoot("/photos")
	require.NoError(t, err)

	require.NotNil(t, found, "the schema setup is idempotent and keeps existing rows")
}
