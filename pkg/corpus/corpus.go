// Package corpus loads the knowledge corpus from a text file, an HTML file,
// or one or more http(s) pages.
package corpus

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/xhad/shopmate/internal/logging"
	"github.com/xhad/shopmate/internal/models"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type LoaderConfig struct {
	RateLimit float64 // page fetches per second
	Timeout   time.Duration
	Client    *http.Client
	Logger    *zap.Logger
}

type Loader struct {
	config  LoaderConfig
	client  *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

func NewWithConfig(config LoaderConfig) *Loader {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.RateLimit == 0 {
		config.RateLimit = 2 // 2 requests per second by default
	}

	client := config.Client
	if client == nil {
		client = &http.Client{Timeout: config.Timeout}
	}

	return &Loader{
		config:  config,
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
		logger:  logging.OrNop(config.Logger),
	}
}

// Load reads every comma-separated source and returns one document per source,
// in the order given.
func (l *Loader) Load(ctx context.Context, sources string) ([]models.Document, error) {
	var docs []models.Document
	for _, src := range strings.Split(sources, ",") {
		src = strings.TrimSpace(src)
		if src == "" {
			continue
		}

		var (
			doc models.Document
			err error
		)
		if isURL(src) {
			doc, err = l.fetch(ctx, src)
		} else {
			doc, err = l.readFile(src)
		}
		if err != nil {
			return nil, fmt.Errorf("loading corpus source %s: %w", src, err)
		}

		l.logger.Debug("loaded corpus source",
			zap.String("source", src),
			zap.Int("bytes", len(doc.Content)),
		)
		docs = append(docs, doc)
	}
	return docs, nil
}

func isURL(src string) bool {
	u, err := url.Parse(src)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func (l *Loader) readFile(path string) (models.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return models.Document{}, err
	}
	defer f.Close()

	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".html" || ext == ".htm" {
		return l.parseHTML(path, f)
	}

	data, err := io.ReadAll(f)
	if err != nil {
		return models.Document{}, err
	}
	return models.Document{
		ID:      path,
		URL:     path,
		Title:   filepath.Base(path),
		Content: string(data),
		Metadata: map[string]interface{}{
			"source": "file",
		},
	}, nil
}

func (l *Loader) fetch(ctx context.Context, urlStr string) (models.Document, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return models.Document{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return models.Document{}, err
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return models.Document{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.Document{}, fmt.Errorf("received status code %d for URL: %s", resp.StatusCode, urlStr)
	}

	if !strings.Contains(resp.Header.Get("Content-Type"), "html") {
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return models.Document{}, err
		}
		return models.Document{ID: urlStr, URL: urlStr, Content: string(data)}, nil
	}

	doc, err := l.parseHTML(urlStr, resp.Body)
	if err != nil {
		return models.Document{}, err
	}
	doc.Metadata["contentType"] = resp.Header.Get("Content-Type")
	doc.Metadata["lastModified"] = resp.Header.Get("Last-Modified")
	return doc, nil
}

func (l *Loader) parseHTML(source string, r io.Reader) (models.Document, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return models.Document{}, err
	}

	return models.Document{
		ID:      source,
		URL:     source,
		Title:   strings.TrimSpace(doc.Find("title").Text()),
		Content: extractMainContent(doc),
		Metadata: map[string]interface{}{
			"source": "html",
			"time":   time.Now(),
		},
	}, nil
}

func extractMainContent(doc *goquery.Document) string {
	// Try to find main content area
	selectors := []string{
		"main",
		"article",
		".content",
		"#content",
		".products",
		"#products",
	}

	doc.Find("script, style, nav, footer").Remove()

	var content string
	for _, selector := range selectors {
		if selected := doc.Find(selector); selected.Length() > 0 {
			content = selected.Text()
			break
		}
	}

	// Fallback to body if no main content found
	if content == "" {
		content = doc.Find("body").Text()
	}

	return cleanContent(content)
}

func cleanContent(content string) string {
	// Remove extra whitespace
	content = strings.Join(strings.Fields(content), " ")

	noisePatterns := []string{
		"Cookie Policy",
		"Accept Cookies",
		"Privacy Policy",
		"Terms of Service",
	}
	for _, pattern := range noisePatterns {
		content = strings.ReplaceAll(content, pattern, "")
	}

	return strings.TrimSpace(content)
}

// Text concatenates the loaded documents into the single corpus text that is chunked.
func Text(docs []models.Document) string {
	parts := make([]string, 0, len(docs))
	for _, d := range docs {
		parts = append(parts, d.Content)
	}
	return strings.Join(parts, "\n\n")
}
