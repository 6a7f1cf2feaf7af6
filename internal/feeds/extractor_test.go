package feeds

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const articleHTML = `<!DOCTYPE html>
<html>
<head><title>Test Page</title><script>var x = 1;</script></head>
<body>
  <nav>Home | News | Sports</nav>
  <div class="ad">Buy widgets now</div>
  <article>
    <h1>Acme acquires Beta</h1>
    <p>Acme Corporation announced on Monday that it has agreed to acquire
    Beta Holdings in a transaction valued at two billion dollars, the largest
    deal in the sector this year. The acquisition is expected to close in the
    fourth quarter pending regulatory approval from authorities in several
    jurisdictions, the companies said in a joint statement.</p>
    <p>Shares of both companies rose on the news, with analysts calling the
    combination a strategic fit for the enterprise market.</p>
  </article>
  <footer>Copyright 2026</footer>
</body>
</html>`

func TestExtractContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, articleHTML)
	}))
	defer srv.Close()

	e := NewExtractor(nil)
	text, err := e.ExtractContent(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("ExtractContent: %v", err)
	}
	if !strings.Contains(text, "agreed to acquire") {
		t.Errorf("article body missing from %q", text)
	}
	if strings.Contains(text, "var x = 1") {
		t.Error("script content leaked into extraction")
	}
	if strings.Contains(text, "Buy widgets now") {
		t.Error("ad content leaked into extraction")
	}
}

func TestExtractContentLargestBlockFallback(t *testing.T) {
	// No article element and barely any semantic structure; the largest
	// div must win.
	html := `<html><body>
	  <div>short</div>
	  <div>` + strings.Repeat("This sentence pads the main content block with readable words. ", 10) + `</div>
	  <script>ignored()</script>
	</body></html>`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, html)
	}))
	defer srv.Close()

	e := NewExtractor(nil)
	text, err := e.ExtractContent(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("ExtractContent: %v", err)
	}
	if !strings.Contains(text, "pads the main content block") {
		t.Errorf("largest block missing: %q", text)
	}
}

func TestExtractContentErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	e := NewExtractor(nil)
	if _, err := e.ExtractContent(context.Background(), srv.URL); err == nil {
		t.Fatal("expected error for 404 page")
	}
}

func TestExtractContentEmptyPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<html><body></body></html>")
	}))
	defer srv.Close()

	e := NewExtractor(nil)
	if _, err := e.ExtractContent(context.Background(), srv.URL); err == nil {
		t.Fatal("expected error for page without article text")
	}
}
