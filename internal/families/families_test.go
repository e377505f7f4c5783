package families

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeFamilyFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestFileSystemRepository_LoadsFamilies(t *testing.T) {
	dir := t.TempDir()
	writeFamilyFile(t, dir, "items.yaml", `
name: items
record_types:
  - items
description: items processed
`)
	writeFamilyFile(t, dir, "score_results.yaml", `
name: scoreResults
record_types:
  - scoreResults
  - scoreResultsFiltered
`)
	writeFamilyFile(t, dir, "notes.txt", "ignored")

	repo, err := NewFileSystemRepository(dir)
	require.NoError(t, err)

	fams := repo.List()
	require.Len(t, fams, 2)
	require.Equal(t, "items", fams[0].Name)
	require.Equal(t, "scoreResults", fams[1].Name)

	fam, err := repo.Get("scoreResults")
	require.NoError(t, err)
	require.Equal(t, []string{"scoreResults", "scoreResultsFiltered"}, fam.RecordTypes)
	require.NotEmpty(t, fam.Fingerprint)
	require.True(t, fam.Matches("scoreResultsFiltered"))
	require.False(t, fam.Matches("tasks"))

	_, err = repo.Get("missing")
	require.Error(t, err)
}

func TestFileSystemRepository_FingerprintTracksFileContent(t *testing.T) {
	dir := t.TempDir()
	writeFamilyFile(t, dir, "items.yaml", "name: items\nrecord_types: [items]\n")

	repo, err := NewFileSystemRepository(dir)
	require.NoError(t, err)
	first, err := repo.Get("items")
	require.NoError(t, err)

	writeFamilyFile(t, dir, "items.yaml", "name: items\nrecord_types: [items, itemsFiltered]\n")
	repo2, err := NewFileSystemRepository(dir)
	require.NoError(t, err)
	second, err := repo2.Get("items")
	require.NoError(t, err)

	require.NotEqual(t, first.Fingerprint, second.Fingerprint)
}

func TestFileSystemRepository_Validation(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "missing record types", content: "name: items\n"},
		{name: "blank record type", content: "name: items\nrecord_types: [\"  \"]\n"},
		{name: "malformed yaml", content: "name: [unclosed\n"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			writeFamilyFile(t, dir, "bad.yaml", tc.content)
			_, err := NewFileSystemRepository(dir)
			require.Error(t, err)
		})
	}

	t.Run("duplicate names across files", func(t *testing.T) {
		dir := t.TempDir()
		writeFamilyFile(t, dir, "a.yaml", "name: items\nrecord_types: [items]\n")
		writeFamilyFile(t, dir, "b.yaml", "name: items\nrecord_types: [items]\n")
		_, err := NewFileSystemRepository(dir)
		require.Error(t, err)
	})

	t.Run("missing directory is valid", func(t *testing.T) {
		repo, err := NewFileSystemRepository(filepath.Join(t.TempDir(), "nope"))
		require.NoError(t, err)
		require.Empty(t, repo.List())
	})
}
