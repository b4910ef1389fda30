package storage

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/inkharmony/inkharmony/pkg/domain"
)

// NewBookID generates a unique book identifier. The id is timestamp-based for
// readability, with a short random suffix so creations within the same second
// cannot collide.
func NewBookID() string {
	b := make([]byte, 2)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("storage: generate book id: %v", err))
	}
	return fmt.Sprintf("book_%s_%s", time.Now().Format("20060102_150405"), hex.EncodeToString(b))
}

// Exists reports whether a book directory is present under the root.
func Exists(root, bookID string) bool {
	info, err := os.Stat(filepath.Join(root, bookID))
	return err == nil && info.IsDir()
}

// ListBooks returns the metadata of every book under the storage root,
// sorted by creation time. Books with unreadable metadata still appear,
// with only book_id and path populated.
func ListBooks(root string) []domain.Payload {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil
	}

	var books []domain.Payload
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		bookDir := filepath.Join(root, entry.Name())

		meta := domain.Payload{}
		if data, err := os.ReadFile(filepath.Join(bookDir, metadataFileName)); err == nil {
			if err := json.Unmarshal(data, &meta); err != nil {
				meta = domain.Payload{}
			}
		}
		meta["book_id"] = entry.Name()
		meta["path"] = bookDir
		if _, ok := meta["created_at"]; !ok {
			meta["created_at"] = float64(0)
		}
		books = append(books, meta)
	}

	sort.SliceStable(books, func(i, j int) bool {
		return asFloat(books[i]["created_at"]) < asFloat(books[j]["created_at"])
	})
	return books
}

func asFloat(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	case int:
		return float64(n)
	default:
		return 0
	}
}

// DeleteBook removes a book's entire subtree. Returns false if the book does
// not exist or could not be removed. Deletion is an external storage
// operation; the workflow engine never calls this itself.
func DeleteBook(root, bookID string) bool {
	bookDir := filepath.Join(root, bookID)
	if _, err := os.Stat(bookDir); err != nil {
		return false
	}
	return os.RemoveAll(bookDir) == nil
}
