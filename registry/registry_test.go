package registry

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"policyrag/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	calls int
	data  []byte
	err   error
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.data, nil
}

func TestRegisterDeduplicatesByURL(t *testing.T) {
	dir := t.TempDir()
	fetcher := &fakeFetcher{data: []byte("%PDF-1.4 fake")}
	r, err := New(dir, fetcher)
	require.NoError(t, err)

	url := "https://www.bnm.gov.my/documents/policy.pdf"

	first, err := r.Register(context.Background(), url, "Capital Framework")
	require.NoError(t, err)

	second, err := r.Register(context.Background(), url, "Capital Framework")
	require.NoError(t, err)

	assert.Equal(t, 1, fetcher.calls, "second registration must not re-fetch")
	assert.Equal(t, first.LocalPath, second.LocalPath)
	assert.Equal(t, first.ContentHash, second.ContentHash)
	assert.FileExists(t, first.LocalPath)
}

func TestRegisterDeterministicNaming(t *testing.T) {
	url := "https://www.bnm.gov.my/documents/policy.pdf"
	name := LocalFileName(url, "Capital Adequacy Framework")

	assert.Equal(t, name, LocalFileName(url, "Capital Adequacy Framework"))
	assert.Contains(t, name, "_Capital_Adequacy_Framework.pdf")
	assert.Len(t, ShortHash(url), 12)
}

func TestSanitizeTitle(t *testing.T) {
	assert.Equal(t, "ab_c", SanitizeTitle(`a/b c<>:"?*`))

	long := make([]byte, 300)
	for i := range long {
		long[i] = 'x'
	}
	assert.Len(t, SanitizeTitle(string(long)), 100)
}

func TestRegisterFetchFailureLeavesNothing(t *testing.T) {
	dir := t.TempDir()
	fetcher := &fakeFetcher{err: errors.New("403 blocked by WAF")}
	r, err := New(dir, fetcher)
	require.NoError(t, err)

	_, err = r.Register(context.Background(), "https://example.com/x.pdf", "X")
	require.Error(t, err)

	var fe types.FetchError
	assert.ErrorAs(t, err, &fe)

	_, ok := r.Lookup("https://example.com/x.pdf")
	assert.False(t, ok, "failed fetch must not be registered")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "no partial files on disk")
}

func TestIndexPersistsAcrossRestarts(t *testing.T) {
	dir := t.TempDir()
	fetcher := &fakeFetcher{data: []byte("%PDF-1.4 fake")}
	r, err := New(dir, fetcher)
	require.NoError(t, err)

	url := "https://example.com/doc.pdf"
	_, err = r.Register(context.Background(), url, "Doc")
	require.NoError(t, err)
	require.NoError(t, r.SetPageCount(url, 7))

	// New registry over the same directory sees the same record and
	// does not fetch again.
	fetcher2 := &fakeFetcher{data: []byte("other")}
	r2, err := New(dir, fetcher2)
	require.NoError(t, err)

	doc, err := r2.Register(context.Background(), url, "Doc")
	require.NoError(t, err)
	assert.Equal(t, 0, fetcher2.calls)
	assert.Equal(t, 7, doc.PageCount)
	assert.FileExists(t, filepath.Join(dir, indexFileName))

	docs := r2.Documents()
	require.Len(t, docs, 1)
	assert.Equal(t, url, docs[0].SourceURL)
}

func TestRefreshRefetches(t *testing.T) {
	dir := t.TempDir()
	fetcher := &fakeFetcher{data: []byte("v1")}
	r, err := New(dir, fetcher)
	require.NoError(t, err)

	url := "https://example.com/doc.pdf"
	first, err := r.Register(context.Background(), url, "Doc")
	require.NoError(t, err)

	fetcher.data = []byte("v2 updated")
	refreshed, err := r.Refresh(context.Background(), url)
	require.NoError(t, err)

	assert.Equal(t, 2, fetcher.calls)
	assert.Equal(t, first.LocalPath, refreshed.LocalPath)
	assert.NotEqual(t, first.ContentHash, refreshed.ContentHash)
}
