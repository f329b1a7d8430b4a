// Package search is the opaque web-search collaborator behind the Tool
// Bridge's search tool, grounded on the colly/goquery scraping mechanics the
// teacher used for financial news sites in internal/news/scraper.go, but
// generalized to an arbitrary configured search endpoint instead of a fixed
// list of Indian financial news sources.
package search

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"futures-trading-agent/internal/logger"
)

// Result is one search hit returned to the LLM.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// Provider is the contract the search tool delegates to.
type Provider interface {
	Search(ctx context.Context, query string) ([]Result, error)
}

// Selectors describes how to pull results out of a search result page;
// different providers (a self-hosted SearxNG instance, an internal news
// index) can be wired in by varying these without touching the tool bridge.
type Selectors struct {
	ResultContainer string
	Title           string
	Link            string
	Snippet         string
}

// WebProvider scrapes a configured HTML search-results endpoint using a
// colly.Collector, the same request/response shape as the teacher's
// NewsSource scraping, extended with goquery for snippet post-processing.
type WebProvider struct {
	baseURL    string // e.g. "https://searx.example.com/search?q={query}"
	selectors  Selectors
	timeout    time.Duration
	maxResults int
}

var _ Provider = (*WebProvider)(nil)

// New builds a WebProvider. baseURL must contain the literal "{query}"
// placeholder. A zero-value baseURL yields an Unconfigured provider.
func New(baseURL string, selectors Selectors, maxResults int) *WebProvider {
	if maxResults <= 0 {
		maxResults = 5
	}
	return &WebProvider{baseURL: baseURL, selectors: selectors, timeout: 15 * time.Second, maxResults: maxResults}
}

// DefaultSelectors targets a generic SearxNG-style results page.
func DefaultSelectors() Selectors {
	return Selectors{
		ResultContainer: "article.result",
		Title:           "h3 a",
		Link:            "h3 a",
		Snippet:         "p.content",
	}
}

// Configured reports whether a search endpoint has been set.
func (p *WebProvider) Configured() bool { return p != nil && p.baseURL != "" }

// Search issues a search query and scrapes the configured number of result
// rows, following the teacher's collector setup (timeout, user-agent, error
// hook) one-for-one.
func (p *WebProvider) Search(ctx context.Context, query string) ([]Result, error) {
	if !p.Configured() {
		return nil, fmt.Errorf("search provider not configured")
	}

	searchURL := strings.ReplaceAll(p.baseURL, "{query}", url.QueryEscape(query))
	parsed, err := url.Parse(searchURL)
	if err != nil {
		return nil, fmt.Errorf("invalid search URL: %w", err)
	}

	var results []Result
	c := colly.NewCollector(
		colly.AllowedDomains(parsed.Hostname()),
		colly.MaxDepth(1),
	)
	c.SetRequestTimeout(p.timeout)
	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36")
	})

	c.OnHTML(p.selectors.ResultContainer, func(e *colly.HTMLElement) {
		if len(results) >= p.maxResults {
			return
		}
		title := strings.TrimSpace(e.ChildText(p.selectors.Title))
		if title == "" {
			return
		}
		link := e.ChildAttr(p.selectors.Link, "href")
		snippet := cleanSnippet(e.DOM.Find(p.selectors.Snippet))
		results = append(results, Result{Title: title, URL: link, Snippet: snippet})
	})

	c.OnError(func(r *colly.Response, err error) {
		logger.ErrorWithErr(ctx, "Search scraping error", err, "url", r.Request.URL.String())
	})

	if err := c.Visit(searchURL); err != nil {
		return nil, fmt.Errorf("visit %s: %w", searchURL, err)
	}
	c.Wait()

	return results, nil
}

func cleanSnippet(sel *goquery.Selection) string {
	return strings.TrimSpace(strings.Join(strings.Fields(sel.First().Text()), " "))
}
