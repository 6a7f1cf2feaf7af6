package feeds

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	readability "codeberg.org/readeck/go-readability/v2"
	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
)

const (
	extractTimeout   = 15 * time.Second
	extractBodyLimit = 2 * 1024 * 1024
	minBlockLength   = 140
)

// boilerplateSelectors are removed before the largest-block fallback runs.
var boilerplateSelectors = []string{
	"script", "style", "nav", "header", "footer", "aside", "form",
	"iframe", "noscript", ".ad", ".ads", ".advertisement", ".sidebar",
	".comments", ".related", ".share", ".social",
}

// Extractor pulls main-article text out of an item's web page. Readability
// parsing is the primary path; when it fails, the largest text block of the
// stripped document is used.
type Extractor struct {
	client *http.Client
	policy *bluemonday.Policy
}

func NewExtractor(client *http.Client) *Extractor {
	if client == nil {
		client = &http.Client{}
	}
	return &Extractor{
		client: client,
		policy: bluemonday.StrictPolicy(),
	}
}

// ExtractContent fetches a page and returns its main article text.
func (e *Extractor) ExtractContent(ctx context.Context, pageURL string) (string, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, extractTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("page returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, extractBodyLimit))
	if err != nil {
		return "", fmt.Errorf("read page: %w", err)
	}

	parsedURL, err := url.Parse(pageURL)
	if err != nil {
		return "", fmt.Errorf("parse page url: %w", err)
	}

	if text := e.readabilityText(body, parsedURL); text != "" {
		return text, nil
	}
	return e.largestBlockText(body)
}

// readabilityText runs the readability extraction; empty on any failure so
// the caller can fall back.
func (e *Extractor) readabilityText(body []byte, pageURL *url.URL) string {
	article, err := readability.FromReader(bytes.NewReader(body), pageURL)
	if err != nil {
		return ""
	}
	var rendered bytes.Buffer
	if err := article.RenderText(&rendered); err != nil {
		return ""
	}
	return e.clean(rendered.String())
}

// largestBlockText strips boilerplate elements and returns the text of the
// largest remaining block.
func (e *Extractor) largestBlockText(body []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}

	for _, sel := range boilerplateSelectors {
		doc.Find(sel).Remove()
	}

	best := ""
	doc.Find("article, main, section, div, td").Each(func(_ int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		if len(text) > len(best) {
			best = text
		}
	})
	if len(best) < minBlockLength {
		// No substantial block found; fall back to paragraph text
		var paragraphs []string
		doc.Find("p").Each(func(_ int, s *goquery.Selection) {
			paragraphs = append(paragraphs, s.Text())
		})
		best = strings.Join(paragraphs, " ")
	}

	text := e.clean(best)
	if text == "" {
		return "", fmt.Errorf("no article text found")
	}
	return text, nil
}

func (e *Extractor) clean(s string) string {
	s = e.policy.Sanitize(s)
	return strings.Join(strings.Fields(s), " ")
}
