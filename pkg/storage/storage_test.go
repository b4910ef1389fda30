package storage

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/inkharmony/inkharmony/pkg/domain"
)

func newTestStorage(t *testing.T) *BookStorage {
	t.Helper()
	s, err := NewBookStorage(t.TempDir(), NewBookID())
	require.NoError(t, err)
	return s
}

func TestComponentRoundTrip(t *testing.T) {
	s := newTestStorage(t)

	_, err := s.SaveComponent("outline", "X", "")
	require.NoError(t, err)

	got, err := s.LoadComponent("outline", "")
	require.NoError(t, err)
	require.Equal(t, "X", got)
}

func TestComponentVersionPinning(t *testing.T) {
	s := newTestStorage(t)

	_, err := s.SaveComponent("chapter_1", "Y", "polished_v1")
	require.NoError(t, err)

	// A later unlabelled save moves "current" but leaves the pinned label alone.
	_, err = s.SaveComponent("chapter_1", "Z", "")
	require.NoError(t, err)

	pinned, err := s.LoadComponent("chapter_1", "polished_v1")
	require.NoError(t, err)
	require.Equal(t, "Y", pinned)

	current, err := s.LoadComponent("chapter_1", "")
	require.NoError(t, err)
	require.Equal(t, "Z", current)
}

func TestComponentTwoUnlabelledSaves(t *testing.T) {
	s := newTestStorage(t)

	_, err := s.SaveComponent("chapter_1", "v1", "")
	require.NoError(t, err)
	_, err = s.SaveComponent("chapter_1", "v2", "")
	require.NoError(t, err)

	versions := s.ListVersions("chapter_1")
	require.Len(t, versions, 2)
	require.True(t, sortedAscending(versions), "versions not sorted: %v", versions)

	current, err := s.LoadComponent("chapter_1", "")
	require.NoError(t, err)
	require.Equal(t, "v2", current)
}

func sortedAscending(labels []string) bool {
	for i := 1; i < len(labels); i++ {
		if strings.Compare(labels[i-1], labels[i]) > 0 {
			return false
		}
	}
	return true
}

func TestLoadMissingComponent(t *testing.T) {
	s := newTestStorage(t)
	_, err := s.LoadComponent("nope", "")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestListComponents(t *testing.T) {
	s := newTestStorage(t)
	require.Empty(t, s.ListComponents())

	_, err := s.SaveComponent("outline", "o", "")
	require.NoError(t, err)
	_, err = s.SaveComponent("chapter_1", "c", "")
	require.NoError(t, err)

	require.Equal(t, []string{"chapter_1", "outline"}, s.ListComponents())
}

func TestImageOverwrite(t *testing.T) {
	s := newTestStorage(t)

	_, err := s.SaveImage("cover", []byte{1, 2, 3}, "png")
	require.NoError(t, err)
	_, err = s.SaveImage("cover", []byte{4, 5}, ".png")
	require.NoError(t, err)

	got, err := s.LoadImage("cover", "png")
	require.NoError(t, err)
	require.Equal(t, []byte{4, 5}, got)

	_, err = s.LoadImage("back_cover", "png")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMetadataOverwrittenWholesale(t *testing.T) {
	s := newTestStorage(t)

	require.NoError(t, s.SaveMetadata(domain.Payload{"title": "A", "genre": "fantasy"}))
	require.NoError(t, s.SaveMetadata(domain.Payload{"title": "B"}))

	meta, err := s.LoadMetadata()
	require.NoError(t, err)
	require.Equal(t, "B", meta.GetString("title"))
	_, hasGenre := meta["genre"]
	require.False(t, hasGenre, "save must replace, not merge")
}

func TestStateSnapshotRoundTrip(t *testing.T) {
	type snap struct {
		BookID string   `json:"book_id"`
		Phases []string `json:"phases"`
	}
	s := newTestStorage(t)

	var missing snap
	require.ErrorIs(t, s.LoadState(&missing), ErrNotFound)

	require.NoError(t, s.SaveState(snap{BookID: s.BookID(), Phases: []string{"outline"}}))

	var got snap
	require.NoError(t, s.LoadState(&got))
	require.Equal(t, s.BookID(), got.BookID)
	require.Equal(t, []string{"outline"}, got.Phases)
}

func TestExport(t *testing.T) {
	s := newTestStorage(t)
	require.NoError(t, s.SaveMetadata(domain.Payload{"title": "T"}))
	_, err := s.SaveComponent("outline", "the outline", "")
	require.NoError(t, err)
	_, err = s.SaveImage("cover", []byte{9}, "png")
	require.NoError(t, err)

	target := t.TempDir()
	produced, err := s.Export(target)
	require.NoError(t, err)
	require.Contains(t, produced, "metadata")
	require.Contains(t, produced, "outline")
	require.Contains(t, produced, "images")
}

func TestNewBookIDUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		id := NewBookID()
		require.True(t, strings.HasPrefix(id, "book_"))
		require.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestListAndDeleteBooks(t *testing.T) {
	root := t.TempDir()

	first, err := NewBookStorage(root, NewBookID())
	require.NoError(t, err)
	require.NoError(t, first.SaveMetadata(domain.Payload{"title": "first", "created_at": 1.0}))

	second, err := NewBookStorage(root, NewBookID())
	require.NoError(t, err)
	require.NoError(t, second.SaveMetadata(domain.Payload{"title": "second", "created_at": 2.0}))

	books := ListBooks(root)
	require.Len(t, books, 2)
	require.Equal(t, "first", books[0].GetString("title"))
	require.Equal(t, first.BookID(), books[0].GetString("book_id"))

	require.True(t, DeleteBook(root, first.BookID()))
	require.False(t, DeleteBook(root, first.BookID()))
	require.Len(t, ListBooks(root), 1)
}
