package crawler

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"

	"github.com/hydrafrog/hydrafrog/internal/models"
)

// PageResult is everything the fetcher learned about one URL. StatusCode is
// nil when the request never produced a response (DNS, connect, timeout,
// TLS); the page is still persisted so it shows up in reports.
type PageResult struct {
	URL              string
	StatusCode       *int
	ContentType      string
	Title            string
	MetaDescription  string
	H1Count          int
	Canonical        string
	RobotsMeta       string
	WordCount        *int
	RedirectChain    []models.RedirectHop
	Links            []string // <a href> values in document order; these feed the frontier
	ResourceRefs     []string // img/script/stylesheet URLs, recorded but never enqueued
	ImagesMissingAlt int
	Doc              *goquery.Document // nil for non-HTML responses and fetch errors
	Error            string
}

// Fetcher retrieves a single URL, following redirects manually so every hop
// lands in the redirect chain.
type Fetcher struct {
	client      *http.Client
	redirectCap int
	userAgent   string
	logger      arbor.ILogger
}

// NewFetcher creates a fetcher with a per-request timeout and redirect cap.
func NewFetcher(timeout time.Duration, redirectCap int, userAgent string, logger arbor.ILogger) *Fetcher {
	if redirectCap <= 0 {
		redirectCap = 10
	}
	if userAgent == "" {
		userAgent = models.DefaultUserAgent
	}
	return &Fetcher{
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				// Redirects are followed by hand in Fetch.
				return http.ErrUseLastResponse
			},
		},
		redirectCap: redirectCap,
		userAgent:   userAgent,
		logger:      logger,
	}
}

// Fetch performs a GET against the URL and extracts SEO fields from HTML
// responses. It never returns a Go error: failures are carried on the
// result so the caller persists them like any other page.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) *PageResult {
	result := &PageResult{URL: rawURL}

	currentURL := rawURL
	var resp *http.Response

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, currentURL, nil)
		if err != nil {
			result.Error = fmt.Sprintf("invalid request: %v", err)
			return result
		}
		req.Header.Set("User-Agent", f.userAgent)

		resp, err = f.client.Do(req)
		if err != nil {
			result.Error = err.Error()
			result.URL = currentURL
			return result
		}

		if !isRedirect(resp.StatusCode) {
			break
		}

		location := resp.Header.Get("Location")
		resp.Body.Close()

		if location == "" {
			// Redirect with no target; report it as the final response.
			break
		}

		if len(result.RedirectChain) >= f.redirectCap {
			status := resp.StatusCode
			result.StatusCode = &status
			result.URL = currentURL
			result.Error = fmt.Sprintf("redirect cap of %d exceeded", f.redirectCap)
			return result
		}

		result.RedirectChain = append(result.RedirectChain, models.RedirectHop{
			URL:        currentURL,
			StatusCode: resp.StatusCode,
		})

		next, err := resolveLocation(currentURL, location)
		if err != nil {
			status := resp.StatusCode
			result.StatusCode = &status
			result.URL = currentURL
			result.Error = fmt.Sprintf("unresolvable redirect target: %v", err)
			return result
		}
		currentURL = next
	}
	defer resp.Body.Close()

	status := resp.StatusCode
	result.StatusCode = &status
	result.URL = currentURL
	result.ContentType = resp.Header.Get("Content-Type")

	if !strings.Contains(strings.ToLower(result.ContentType), "text/html") {
		return result
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		result.Error = fmt.Sprintf("failed to parse html: %v", err)
		return result
	}
	result.Doc = doc

	f.extract(doc, result)
	return result
}

// extract pulls the SEO fields and outbound references from a parsed
// document.
func (f *Fetcher) extract(doc *goquery.Document, result *PageResult) {
	result.Title = strings.TrimSpace(doc.Find("title").First().Text())
	result.MetaDescription = strings.TrimSpace(
		doc.Find(`meta[name="description"]`).First().AttrOr("content", ""))
	result.H1Count = doc.Find("h1").Length()
	result.Canonical = strings.TrimSpace(
		doc.Find(`link[rel="canonical"]`).First().AttrOr("href", ""))
	result.RobotsMeta = strings.TrimSpace(
		doc.Find(`meta[name="robots"]`).First().AttrOr("content", ""))

	wordCount := countVisibleWords(doc)
	result.WordCount = &wordCount

	doc.Find("img").Each(func(_ int, s *goquery.Selection) {
		if strings.TrimSpace(s.AttrOr("alt", "")) == "" {
			result.ImagesMissingAlt++
		}
	})

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href := strings.TrimSpace(s.AttrOr("href", ""))
		if href != "" {
			result.Links = append(result.Links, href)
		}
	})

	for _, sel := range []string{"img[src]", "script[src]", `link[rel="stylesheet"][href]`} {
		attr := "src"
		if strings.HasPrefix(sel, "link") {
			attr = "href"
		}
		doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
			if ref := strings.TrimSpace(s.AttrOr(attr, "")); ref != "" {
				result.ResourceRefs = append(result.ResourceRefs, ref)
			}
		})
	}
}

// countVisibleWords counts whitespace-separated words in the body text,
// excluding script, style, template, and noscript subtrees.
func countVisibleWords(doc *goquery.Document) int {
	body := doc.Clone().Find("body")
	body.Find("script, style, template, noscript").Remove()
	return len(strings.Fields(body.Text()))
}

func isRedirect(status int) bool {
	return status >= 300 && status < 400
}

func resolveLocation(base, location string) (string, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	locURL, err := url.Parse(location)
	if err != nil {
		return "", err
	}
	return baseURL.ResolveReference(locURL).String(), nil
}
