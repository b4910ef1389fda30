// Package storage implements the per-book directory store: named versioned
// text components, binary images, a metadata document, and the workflow state
// snapshot. All operations for a book id are confined to that book's private
// subtree under the storage root.
//
// The layer does no locking. One workflow instance owns one book id's state
// at a time; concurrent writers to the same book are undefined.
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/inkharmony/inkharmony/pkg/domain"
)

// StorageError is a typed error for storage operations.
type StorageError string

func (e StorageError) Error() string { return string(e) }

const (
	// ErrNotFound is returned when a component, image, or snapshot is absent.
	ErrNotFound StorageError = "not found"
)

const (
	componentsDirName = "components"
	imagesDirName     = "images"
	metadataFileName  = "metadata.json"
	stateFileName     = "state.json"
	currentLabel      = "current"
	componentExt      = ".txt"
)

// BookStorage manages the on-disk layout for one book.
type BookStorage struct {
	bookID        string
	bookDir       string
	componentsDir string
	imagesDir     string
	metadataFile  string
	stateFile     string
}

// NewBookStorage opens (creating if needed) the storage subtree for a book.
func NewBookStorage(root, bookID string) (*BookStorage, error) {
	if bookID == "" {
		return nil, fmt.Errorf("storage: empty book id")
	}
	bookDir := filepath.Join(root, bookID)
	s := &BookStorage{
		bookID:        bookID,
		bookDir:       bookDir,
		componentsDir: filepath.Join(bookDir, componentsDirName),
		imagesDir:     filepath.Join(bookDir, imagesDirName),
		metadataFile:  filepath.Join(bookDir, metadataFileName),
		stateFile:     filepath.Join(bookDir, stateFileName),
	}
	for _, dir := range []string{s.bookDir, s.componentsDir, s.imagesDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("storage: create %s: %w", dir, err)
		}
	}
	return s, nil
}

// BookID returns the book this storage is scoped to.
func (s *BookStorage) BookID() string { return s.bookID }

// Dir returns the book's root directory.
func (s *BookStorage) Dir() string { return s.bookDir }

// SaveComponent writes content as both the new "current" value and a new
// labelled version of the component. When version is empty a timestamp label
// is generated, disambiguated if a save already happened in the same second.
// A caller-supplied label that already exists silently overwrites that one
// version. Returns the path of the current file.
func (s *BookStorage) SaveComponent(name, content, version string) (string, error) {
	componentDir := filepath.Join(s.componentsDir, name)
	if err := os.MkdirAll(componentDir, 0755); err != nil {
		return "", fmt.Errorf("storage: create component %s: %w", name, err)
	}

	if version == "" {
		version = s.freshVersionLabel(componentDir)
	}

	currentFile := filepath.Join(componentDir, currentLabel+componentExt)
	if err := os.WriteFile(currentFile, []byte(content), 0644); err != nil {
		return "", fmt.Errorf("storage: write component %s: %w", name, err)
	}

	versionFile := filepath.Join(componentDir, version+componentExt)
	if err := os.WriteFile(versionFile, []byte(content), 0644); err != nil {
		return "", fmt.Errorf("storage: write component %s version %s: %w", name, version, err)
	}

	return currentFile, nil
}

// freshVersionLabel generates a timestamp label that does not collide with an
// existing version of this component.
func (s *BookStorage) freshVersionLabel(componentDir string) string {
	base := time.Now().Format("20060102_150405")
	label := base
	for n := 2; ; n++ {
		if _, err := os.Stat(filepath.Join(componentDir, label+componentExt)); os.IsNotExist(err) {
			return label
		}
		label = fmt.Sprintf("%s_%d", base, n)
	}
}

// LoadComponent reads a component version. An empty version means "current".
func (s *BookStorage) LoadComponent(name, version string) (string, error) {
	if version == "" {
		version = currentLabel
	}
	path := filepath.Join(s.componentsDir, name, version+componentExt)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("storage: read component %s: %w", name, err)
	}
	return string(data), nil
}

// ListComponents returns the names of all components, sorted.
func (s *BookStorage) ListComponents() []string {
	entries, err := os.ReadDir(s.componentsDir)
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names
}

// ListVersions returns a component's version labels sorted ascending.
// The "current" pointer is not a version and is excluded.
func (s *BookStorage) ListVersions(name string) []string {
	entries, err := os.ReadDir(filepath.Join(s.componentsDir, name))
	if err != nil {
		return nil
	}
	var versions []string
	for _, e := range entries {
		fn := e.Name()
		if e.IsDir() || !strings.HasSuffix(fn, componentExt) {
			continue
		}
		label := strings.TrimSuffix(fn, componentExt)
		if label == currentLabel {
			continue
		}
		versions = append(versions, label)
	}
	sort.Strings(versions)
	return versions
}

// SaveImage writes a binary artifact. Images are versionless: every save
// overwrites the single file for that name and extension.
func (s *BookStorage) SaveImage(name string, data []byte, ext string) (string, error) {
	path := filepath.Join(s.imagesDir, name+normalizeExt(ext))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("storage: write image %s: %w", name, err)
	}
	return path, nil
}

// LoadImage reads a binary artifact.
func (s *BookStorage) LoadImage(name, ext string) ([]byte, error) {
	path := filepath.Join(s.imagesDir, name+normalizeExt(ext))
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("storage: read image %s: %w", name, err)
	}
	return data, nil
}

func normalizeExt(ext string) string {
	if ext == "" {
		ext = "png"
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

// SaveMetadata overwrites the book's metadata document wholesale.
func (s *BookStorage) SaveMetadata(meta domain.Payload) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("storage: marshal metadata: %w", err)
	}
	if err := os.WriteFile(s.metadataFile, data, 0644); err != nil {
		return fmt.Errorf("storage: write metadata: %w", err)
	}
	return nil
}

// LoadMetadata reads the book's metadata document. A missing document is an
// empty payload, not an error.
func (s *BookStorage) LoadMetadata() (domain.Payload, error) {
	data, err := os.ReadFile(s.metadataFile)
	if err != nil {
		if os.IsNotExist(err) {
			return domain.Payload{}, nil
		}
		return nil, fmt.Errorf("storage: read metadata: %w", err)
	}
	var meta domain.Payload
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("storage: parse metadata: %w", err)
	}
	return meta, nil
}

// SaveState overwrites the workflow state snapshot wholesale. The snapshot
// must be a plain serializable structure so persisted state stays inspectable
// and repairable.
func (s *BookStorage) SaveState(state interface{}) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("storage: marshal state: %w", err)
	}
	if err := os.WriteFile(s.stateFile, data, 0644); err != nil {
		return fmt.Errorf("storage: write state: %w", err)
	}
	return nil
}

// LoadState reads the workflow state snapshot into the given structure.
// Returns ErrNotFound if no snapshot has ever been saved.
func (s *BookStorage) LoadState(into interface{}) error {
	data, err := os.ReadFile(s.stateFile)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("storage: read state: %w", err)
	}
	if err := json.Unmarshal(data, into); err != nil {
		return fmt.Errorf("storage: parse state: %w", err)
	}
	return nil
}

// Export materializes the book's metadata, every component's current version,
// and all images into a flat external directory. Returns a map of what was
// produced, keyed by artifact kind.
func (s *BookStorage) Export(targetDir string) (map[string]string, error) {
	if err := os.MkdirAll(targetDir, 0755); err != nil {
		return nil, fmt.Errorf("storage: create export dir: %w", err)
	}
	produced := make(map[string]string)

	meta, err := s.LoadMetadata()
	if err != nil {
		return nil, err
	}
	metaPath := filepath.Join(targetDir, metadataFileName)
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("storage: marshal metadata: %w", err)
	}
	if err := os.WriteFile(metaPath, data, 0644); err != nil {
		return nil, fmt.Errorf("storage: export metadata: %w", err)
	}
	produced["metadata"] = metaPath

	for _, name := range s.ListComponents() {
		content, err := s.LoadComponent(name, "")
		if err != nil {
			if err == ErrNotFound {
				continue
			}
			return nil, err
		}
		path := filepath.Join(targetDir, name+componentExt)
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			return nil, fmt.Errorf("storage: export component %s: %w", name, err)
		}
		produced[name] = path
	}

	images, err := os.ReadDir(s.imagesDir)
	if err == nil && len(images) > 0 {
		exportImages := filepath.Join(targetDir, imagesDirName)
		if err := os.MkdirAll(exportImages, 0755); err != nil {
			return nil, fmt.Errorf("storage: create export images dir: %w", err)
		}
		for _, img := range images {
			if img.IsDir() {
				continue
			}
			data, err := os.ReadFile(filepath.Join(s.imagesDir, img.Name()))
			if err != nil {
				return nil, fmt.Errorf("storage: export image %s: %w", img.Name(), err)
			}
			dst := filepath.Join(exportImages, img.Name())
			if err := os.WriteFile(dst, data, 0644); err != nil {
				return nil, fmt.Errorf("storage: export image %s: %w", img.Name(), err)
			}
		}
		produced[imagesDirName] = exportImages
	}

	return produced, nil
}
