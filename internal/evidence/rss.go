package evidence

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed/rss"

	"github.com/alanyoungcy/polyoracle/internal/domain"
)

const googleNewsRSSURL = "https://news.google.com/rss/search"

// GoogleNewsRSSConfig configures the keyless Google News feed.
type GoogleNewsRSSConfig struct {
	BaseURL    string
	MaxResults int
	Timeout    time.Duration
}

// GoogleNewsRSS searches the Google News RSS feed. It has no date filter of
// its own, so the window is embedded as after:/before: query operators.
type GoogleNewsRSS struct {
	baseURL string
	max     int
	client  *http.Client
}

// NewGoogleNewsRSS creates a GoogleNewsRSS provider.
func NewGoogleNewsRSS(cfg GoogleNewsRSSConfig) *GoogleNewsRSS {
	if cfg.BaseURL == "" {
		cfg.BaseURL = googleNewsRSSURL
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = DefaultMaxResults
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &GoogleNewsRSS{baseURL: cfg.BaseURL, max: cfg.MaxResults, client: &http.Client{Timeout: cfg.Timeout}}
}

// Name implements Provider.
func (g *GoogleNewsRSS) Name() string { return "google_news_rss" }

// Search implements Provider.
func (g *GoogleNewsRSS) Search(ctx context.Context, query string, window domain.DateRange) ([]domain.EvidenceSource, error) {
	q := query
	if window.From != "" {
		q += " after:" + window.From
	}
	if window.To != "" {
		q += " before:" + window.To
	}
	params := url.Values{}
	params.Set("q", q)
	params.Set("hl", "en-US")
	params.Set("gl", "US")
	params.Set("ceid", "US:en")

	body, err := doGet(ctx, g.client, g.baseURL+"?"+params.Encode(), "application/rss+xml, application/xml")
	if err != nil {
		return nil, fmt.Errorf("google news rss: search %q: %w", query, err)
	}
	items, err := ParseRSS(body, g.max)
	if err != nil {
		return nil, fmt.Errorf("google news rss: %w", err)
	}
	for i := range items {
		items[i].Provider = g.Name()
	}
	return items, nil
}

// ParseRSS extracts up to max items from an RSS document. Items with
// neither a title nor a description are skipped.
func ParseRSS(body []byte, max int) ([]domain.EvidenceSource, error) {
	var fp rss.Parser
	feed, err := fp.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("decode rss: %w", err)
	}

	out := make([]domain.EvidenceSource, 0, max)
	for _, it := range feed.Items {
		if len(out) == max {
			break
		}
		var name, sourceURL string
		if it.Source != nil {
			name = strings.TrimSpace(it.Source.Title)
			sourceURL = strings.TrimSpace(it.Source.URL)
		}
		title := cleanTitle(strings.TrimSpace(it.Title), name)
		snippet := truncate(DescriptionText(it.Description), maxSnippet)
		if title == "" && snippet == "" {
			continue
		}
		link := strings.TrimSpace(it.Link)
		if !strings.HasPrefix(link, "http") && it.GUID != nil && strings.HasPrefix(strings.TrimSpace(it.GUID.Value), "http") {
			link = strings.TrimSpace(it.GUID.Value)
		}
		published := strings.TrimSpace(it.PubDate)
		if it.PubDateParsed != nil {
			published = it.PubDateParsed.UTC().Format(time.RFC3339)
		}
		out = append(out, domain.EvidenceSource{
			Title:         title,
			URL:           link,
			Snippet:       snippet,
			SourceType:    ClassifySource(name, sourceURL),
			PublishedDate: published,
			SourceName:    name,
		})
	}
	return out, nil
}

// cleanTitle drops the " - Publisher" suffix Google appends to headlines.
func cleanTitle(title, source string) string {
	if source != "" {
		title = strings.TrimSuffix(title, " - "+source)
	}
	return strings.TrimSpace(title)
}

// DescriptionText flattens description markup to plain text. Anchors become
// their text and <font> attributions become "(text)".
func DescriptionText(html string) string {
	html = strings.TrimSpace(html)
	if html == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return strings.Join(strings.Fields(html), " ")
	}
	doc.Find("font").Each(func(_ int, s *goquery.Selection) {
		s.SetText("(" + strings.TrimSpace(s.Text()) + ")")
	})
	doc.Find("li, p, br, div").Each(func(_ int, s *goquery.Selection) {
		s.AfterHtml(" ")
	})
	return strings.Join(strings.Fields(doc.Text()), " ")
}
