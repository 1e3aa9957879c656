package research

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	readability "github.com/go-shiori/go-readability"

	"github.com/onchainos/steward/config"
)

// Page is the readable content extracted from one URL.
type Page struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Byline  string `json:"byline,omitempty"`
	Text    string `json:"text"`
	FetchMS int    `json:"fetch_ms"`
}

// Fetcher renders a page in headless Chrome and extracts the readable article
// text. It is only used when live fetching is enabled in the config.
type Fetcher struct {
	timeout  time.Duration
	maxChars int
}

func NewFetcher(cfg config.ResearchConfig) *Fetcher {
	cfg = cfg.Normalize()
	return &Fetcher{timeout: cfg.FetchTimeout, maxChars: cfg.MaxChars}
}

// Fetch navigates to rawURL, waits for the body and runs readability over the
// rendered HTML.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (Page, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return Page{}, errors.New("fetch url is empty")
	}
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Scheme == "" {
		return Page{}, fmt.Errorf("invalid fetch url %q", rawURL)
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()
	t0 := time.Now()

	html, err := fetchHTML(ctx, rawURL)
	if err != nil {
		return Page{}, fmt.Errorf("rendering %s: %w", rawURL, err)
	}

	article, err := readability.FromReader(strings.NewReader(html), parsed)
	if err != nil {
		return Page{}, fmt.Errorf("extracting article from %s: %w", rawURL, err)
	}

	text := strings.TrimSpace(article.TextContent)
	if len(text) > f.maxChars {
		text = text[:f.maxChars]
	}
	return Page{
		URL:     rawURL,
		Title:   strings.TrimSpace(article.Title),
		Byline:  strings.TrimSpace(article.Byline),
		Text:    text,
		FetchMS: int(time.Since(t0) / time.Millisecond),
	}, nil
}

func fetchHTML(ctx context.Context, rawURL string) (string, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.UserAgent("steward-research/1.0"),
	)
	actx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	bctx, cancelBrowser := chromedp.NewContext(actx)
	defer cancelBrowser()

	var html string
	err := chromedp.Run(bctx,
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	return html, err
}
