// Package scraper runs the per-session poll-extract-persist loop against a
// live content page.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// ErrProviderUnavailable indicates the content provider could not serve the page.
var ErrProviderUnavailable = errors.New("content provider unavailable")

// Page is an open handle on a live content page. It is exclusively owned by
// one worker and must be closed on every worker exit path.
type Page interface {
	// QueryTextElements returns the visible text of every element matching
	// the CSS selector, in document order.
	QueryTextElements(ctx context.Context, selector string) ([]string, error)
	Close() error
}

// Provider opens live content pages. It is the worker's sole source of
// content; the worker never inspects the underlying transport.
type Provider interface {
	Open(ctx context.Context, url string) (Page, error)
}

// HTTPProvider serves pages over plain HTTP and extracts elements with
// goquery. Each query re-fetches the page, which approximates the live DOM
// for human-timescale chat updates.
type HTTPProvider struct {
	client    *http.Client
	userAgent string
}

// NewHTTPProvider creates a provider with the given per-request timeout.
func NewHTTPProvider(timeout time.Duration, userAgent string) *HTTPProvider {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if userAgent == "" {
		userAgent = "NumifyBot/1.0 (+https://github.com/odvcencio/numify)"
	}
	return &HTTPProvider{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
	}
}

// Open validates the URL and performs an initial fetch so that an unreachable
// or bogus page fails the session before it ever reaches running.
func (p *HTTPProvider) Open(ctx context.Context, rawURL string) (Page, error) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid live url %q", rawURL)
	}

	page := &httpPage{provider: p, url: parsed.String()}
	if _, err := page.fetch(ctx); err != nil {
		return nil, err
	}
	return page, nil
}

type httpPage struct {
	provider *HTTPProvider
	url      string
	closed   bool
}

func (p *httpPage) fetch(ctx context.Context) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", p.provider.userAgent)

	resp, err := p.provider.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: status %d from %s", ErrProviderUnavailable, resp.StatusCode, p.url)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}

func (p *httpPage) QueryTextElements(ctx context.Context, selector string) ([]string, error) {
	if p.closed {
		return nil, errors.New("page closed")
	}
	doc, err := p.fetch(ctx)
	if err != nil {
		return nil, err
	}

	var texts []string
	doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		text := strings.Join(strings.Fields(s.Text()), " ")
		if text != "" {
			texts = append(texts, text)
		}
	})
	return texts, nil
}

func (p *httpPage) Close() error {
	p.closed = true
	return nil
}
