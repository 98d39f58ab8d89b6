package pdf

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultSearchLimit caps the number of files a single scan returns
	DefaultSearchLimit = 500
	defaultCacheTTL    = time.Minute
	modifiedTimeLayout = "2006-01-02 15:04:05"
)

// Search discovers PDF files below a directory
type Search struct {
	validator *Validator
	cache     *directoryCache
	limit     int
}

// NewSearch creates a search handler. Listings are cached for a minute.
func NewSearch(validator *Validator) *Search {
	return &Search{
		validator: validator,
		cache:     newDirectoryCache(defaultCacheTTL),
		limit:     DefaultSearchLimit,
	}
}

// SearchDirectory lists the PDF files below req.Directory whose names
// match req.Query.
func (s *Search) SearchDirectory(ctx context.Context, req SearchDirectoryRequest) (*SearchDirectoryResult, error) {
	if req.Directory == "" {
		return nil, fmt.Errorf("directory cannot be empty")
	}

	absDirectory, err := filepath.Abs(req.Directory)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve directory path: %w", err)
	}

	files, truncated, err := s.list(ctx, absDirectory)
	if err != nil {
		return nil, err
	}

	query := strings.ToLower(strings.TrimSpace(req.Query))
	matched := make([]FileInfo, 0, len(files))
	for _, f := range files {
		if matchesQuery(f.Name, query) {
			matched = append(matched, f)
		}
	}

	return &SearchDirectoryResult{
		Files:       matched,
		TotalCount:  len(matched),
		Directory:   absDirectory,
		SearchQuery: req.Query,
		Truncated:   truncated,
	}, nil
}

// list returns the cached listing of directory or scans it
func (s *Search) list(ctx context.Context, directory string) ([]FileInfo, bool, error) {
	if entry, ok := s.cache.get(directory); ok {
		return entry.files, entry.truncated, nil
	}

	info, err := os.Stat(directory)
	if os.IsNotExist(err) {
		return nil, false, fmt.Errorf("directory does not exist: %s", directory)
	}
	if err != nil {
		return nil, false, fmt.Errorf("cannot access directory: %w", err)
	}
	if !info.IsDir() {
		return nil, false, fmt.Errorf("path is not a directory: %s", directory)
	}

	files, truncated, err := s.scan(ctx, directory)
	if err != nil {
		return nil, false, err
	}
	s.cache.set(directory, files, truncated)
	return files, truncated, nil
}

// scan walks directory, skipping hidden directories and symlinks
func (s *Search) scan(ctx context.Context, directory string) ([]FileInfo, bool, error) {
	var files []FileInfo
	truncated := false

	err := filepath.WalkDir(directory, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			// Unreadable entries are skipped
			return nil
		}

		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != directory {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}

		if s.limit > 0 && len(files) >= s.limit {
			truncated = true
			return filepath.SkipAll
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		if err := s.validator.ValidateFileInfo(path, info); err != nil {
			return nil
		}

		files = append(files, FileInfo{
			Path:         path,
			Name:         info.Name(),
			Size:         info.Size(),
			ModifiedTime: info.ModTime().Format(modifiedTimeLayout),
		})
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("error walking directory: %w", err)
	}

	return files, truncated, nil
}

// Invalidate drops all cached listings, e.g. after writing a new file
func (s *Search) Invalidate() {
	s.cache.clear()
}

// matchesQuery performs fuzzy matching on the filename
func matchesQuery(filename, query string) bool {
	if query == "" {
		return true
	}

	fileName := strings.ToLower(filename)
	if strings.Contains(fileName, query) {
		return true
	}

	// Every query word must appear in some filename word
	words := splitIntoWords(strings.TrimSuffix(fileName, ".pdf"))
	for _, queryWord := range splitIntoWords(query) {
		found := false
		for _, word := range words {
			if strings.Contains(word, queryWord) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	return true
}

// splitIntoWords splits a string into words using common separators
func splitIntoWords(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		switch r {
		case ' ', '_', '-', '.', '(', ')', '[', ']':
			return true
		}
		return false
	})
}

type cacheEntry struct {
	files      []FileInfo
	truncated  bool
	lastUpdate time.Time
}

// directoryCache provides TTL-based caching for directory listings
type directoryCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	ttl     time.Duration
}

func newDirectoryCache(ttl time.Duration) *directoryCache {
	return &directoryCache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
	}
}

func (c *directoryCache) get(path string) (cacheEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[path]
	if !ok || time.Since(entry.lastUpdate) > c.ttl {
		return cacheEntry{}, false
	}
	return entry, true
}

func (c *directoryCache) set(path string, files []FileInfo, truncated bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[path] = cacheEntry{
		files:      files,
		truncated:  truncated,
		lastUpdate: time.Now(),
	}
}

func (c *directoryCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
}
