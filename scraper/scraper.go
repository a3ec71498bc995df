package scraper

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/time/rate"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"

// DocLink is one harvested document reference from a policy listing page.
type DocLink struct {
	URL        string
	Title      string
	SourcePage string
}

// HTTPFetcher downloads pages and PDFs with a politeness rate limit and
// a bounded number of retries. It implements registry.Fetcher.
type HTTPFetcher struct {
	client  *http.Client
	limiter *rate.Limiter
	retries int
}

func NewHTTPFetcher(timeout time.Duration, interval time.Duration, retries int) *HTTPFetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if interval <= 0 {
		interval = time.Second
	}
	if retries <= 0 {
		retries = 3
	}
	return &HTTPFetcher{
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Every(interval), 1),
		retries: retries,
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= f.retries; attempt++ {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		data, err := f.fetchOnce(ctx, rawURL)
		if err == nil {
			return data, nil
		}
		lastErr = err
		log.Printf("[FETCH] attempt %d/%d for %s failed: %v\n", attempt, f.retries, rawURL, err)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(attempt) * 300 * time.Millisecond):
		}
	}
	return nil, fmt.Errorf("all %d attempts failed: %w", f.retries, lastErr)
}

func (f *HTTPFetcher) fetchOnce(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// Scraper harvests PDF links from configured policy pages.
type Scraper struct {
	fetcher *HTTPFetcher
}

func New(fetcher *HTTPFetcher) *Scraper {
	return &Scraper{fetcher: fetcher}
}

// ScrapeAll walks every configured page and returns the deduplicated
// union of harvested links. A page that fails to load is logged and
// skipped, the remaining pages are still scraped.
func (s *Scraper) ScrapeAll(ctx context.Context, pageURLs []string) []DocLink {
	var all []DocLink
	for _, pageURL := range pageURLs {
		content, err := s.fetcher.Fetch(ctx, pageURL)
		if err != nil {
			log.Printf("[SCRAPE] error fetching %s: %v\n", pageURL, err)
			continue
		}

		links, err := ParsePolicyPage(string(content), pageURL)
		if err != nil {
			log.Printf("[SCRAPE] error parsing %s: %v\n", pageURL, err)
			continue
		}
		log.Printf("[SCRAPE] found %d documents on %s\n", len(links), pageURL)
		all = append(all, links...)
	}
	return Dedupe(all)
}

// ParsePolicyPage extracts PDF and policy-document anchors from one
// page. Titles come from the anchor text, falling back to the filename.
func ParsePolicyPage(content, pageURL string) ([]DocLink, error) {
	doc, err := html.Parse(strings.NewReader(content))
	if err != nil {
		return nil, err
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, err
	}

	var links []DocLink
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			if href := attr(n, "href"); isDocumentLink(href) {
				if resolved := resolve(base, href); resolved != "" {
					links = append(links, DocLink{
						URL:        resolved,
						Title:      linkTitle(n, href),
						SourcePage: pageURL,
					})
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return Dedupe(links), nil
}

// Dedupe drops repeated URLs keeping first occurrence order.
func Dedupe(links []DocLink) []DocLink {
	seen := make(map[string]struct{}, len(links))
	out := make([]DocLink, 0, len(links))
	for _, l := range links {
		if _, ok := seen[l.URL]; ok {
			continue
		}
		seen[l.URL] = struct{}{}
		out = append(out, l)
	}
	return out
}

func isDocumentLink(href string) bool {
	h := strings.ToLower(href)
	return strings.HasSuffix(h, ".pdf") ||
		strings.Contains(h, "/policy-document/") ||
		strings.Contains(h, "/pd/")
}

func resolve(base *url.URL, href string) string {
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}

func linkTitle(n *html.Node, href string) string {
	title := strings.TrimSpace(nodeText(n))
	if len(title) >= 3 {
		return title
	}
	name := path.Base(href)
	name = strings.TrimSuffix(name, ".pdf")
	name = strings.ReplaceAll(name, "-", " ")
	name = strings.ReplaceAll(name, "_", " ")
	return name
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(b.String()), " ")
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
