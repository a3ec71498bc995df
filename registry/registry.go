package registry

import (
	"context"
	"crypto/md5"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"policyrag/types"
)

const indexFileName = "document_index.json"

// Fetcher is the download collaborator. The registry calls it once per
// unregistered URL and never for documents already on disk.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Registry tracks known source URLs and their local PDF artifacts.
// Identity is the source URL; the mapping is persisted as a JSON index
// file next to the documents.
type Registry struct {
	dir     string
	fetcher Fetcher

	mu   sync.Mutex
	docs map[string]types.Document
}

func New(dir string, fetcher Fetcher) (*Registry, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create documents dir: %w", err)
	}

	r := &Registry{
		dir:     dir,
		fetcher: fetcher,
		docs:    make(map[string]types.Document),
	}
	if err := r.loadIndex(); err != nil {
		return nil, err
	}
	return r, nil
}

// Register records a source URL and downloads its PDF. An already
// registered URL whose artifact is still on disk is returned as-is
// without another fetch. Nothing is registered on a failed download,
// partial files are never left behind.
func (r *Registry) Register(ctx context.Context, url, title string) (types.Document, error) {
	r.mu.Lock()
	if doc, ok := r.docs[url]; ok {
		if fileExists(doc.LocalPath) {
			r.mu.Unlock()
			return doc, nil
		}
		// Artifact vanished from disk, fall through and re-fetch.
	}
	r.mu.Unlock()

	return r.fetchAndStore(ctx, url, title)
}

// Refresh re-downloads a known URL, replacing the stored artifact.
func (r *Registry) Refresh(ctx context.Context, url string) (types.Document, error) {
	r.mu.Lock()
	doc, ok := r.docs[url]
	r.mu.Unlock()
	if !ok {
		return types.Document{}, fmt.Errorf("unknown source url: %s", url)
	}
	return r.fetchAndStore(ctx, url, doc.Title)
}

func (r *Registry) fetchAndStore(ctx context.Context, url, title string) (types.Document, error) {
	data, err := r.fetcher.Fetch(ctx, url)
	if err != nil {
		return types.Document{}, types.FetchError{URL: url, Err: err}
	}
	if len(data) == 0 {
		return types.Document{}, types.FetchError{URL: url, Err: fmt.Errorf("empty download")}
	}

	localPath := filepath.Join(r.dir, LocalFileName(url, title))
	if err := writeFileAtomic(localPath, data); err != nil {
		return types.Document{}, types.FetchError{URL: url, Err: err}
	}

	doc := types.Document{
		SourceURL:   url,
		LocalPath:   localPath,
		Title:       title,
		ContentHash: fmt.Sprintf("%x", md5.Sum(data)),
		FetchedAt:   time.Now(),
	}

	r.mu.Lock()
	r.docs[url] = doc
	err = r.saveIndexLocked()
	r.mu.Unlock()
	if err != nil {
		return types.Document{}, err
	}

	log.Printf("[REGISTRY] downloaded %s -> %s (%d bytes)\n", url, localPath, len(data))
	return doc, nil
}

// SetPageCount records the page count learned during extraction.
func (r *Registry) SetPageCount(url string, pages int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	doc, ok := r.docs[url]
	if !ok {
		return fmt.Errorf("unknown source url: %s", url)
	}
	doc.PageCount = pages
	r.docs[url] = doc
	return r.saveIndexLocked()
}

func (r *Registry) Lookup(url string) (types.Document, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[url]
	return doc, ok
}

// Downloaded reports whether the URL is registered with its artifact
// still present on disk.
func (r *Registry) Downloaded(url string) bool {
	r.mu.Lock()
	doc, ok := r.docs[url]
	r.mu.Unlock()
	return ok && fileExists(doc.LocalPath)
}

// Documents returns all registered documents ordered by URL.
func (r *Registry) Documents() []types.Document {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]types.Document, 0, len(r.docs))
	for _, doc := range r.docs {
		out = append(out, doc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SourceURL < out[j].SourceURL })
	return out
}

func (r *Registry) loadIndex() error {
	path := filepath.Join(r.dir, indexFileName)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read document index: %w", err)
	}

	var docs []types.Document
	if err := json.Unmarshal(data, &docs); err != nil {
		return fmt.Errorf("parse document index: %w", err)
	}
	for _, doc := range docs {
		r.docs[doc.SourceURL] = doc
	}
	return nil
}

func (r *Registry) saveIndexLocked() error {
	docs := make([]types.Document, 0, len(r.docs))
	for _, doc := range r.docs {
		docs = append(docs, doc)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].SourceURL < docs[j].SourceURL })

	data, err := json.MarshalIndent(docs, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(filepath.Join(r.dir, indexFileName), data)
}

// LocalFileName maps a URL and title to a deterministic artifact name,
// so re-runs always resolve the same URL to the same file.
func LocalFileName(url, title string) string {
	return fmt.Sprintf("%s_%s.pdf", ShortHash(url), SanitizeTitle(title))
}

// ShortHash is the first 12 hex digits of the URL's md5.
func ShortHash(url string) string {
	return fmt.Sprintf("%x", md5.Sum([]byte(url)))[:12]
}

var invalidFileChars = regexp.MustCompile(`[<>:"/\\|?*]`)

// SanitizeTitle cleans a document title for filesystem use.
func SanitizeTitle(title string) string {
	title = invalidFileChars.ReplaceAllString(title, "")
	title = strings.ReplaceAll(title, " ", "_")
	if runes := []rune(title); len(runes) > 100 {
		title = string(runes[:100])
	}
	return title
}

func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Size() > 0
}
