package evidence

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/polyoracle/internal/domain"
)

const gnewsBaseURL = "https://gnews.io/api/v4/search"

// GNewsConfig configures the GNews provider. When Quota is set, every search
// first takes a token from the shared limiter under QuotaKey.
type GNewsConfig struct {
	BaseURL     string
	APIKey      string
	MaxResults  int
	Timeout     time.Duration
	Quota       domain.RateLimiter
	QuotaKey    string
	QuotaLimit  int
	QuotaWindow time.Duration
}

// GNews is the keyed news aggregator. It filters by date natively.
type GNews struct {
	cfg    GNewsConfig
	client *http.Client
}

// NewGNews creates a GNews provider.
func NewGNews(cfg GNewsConfig) *GNews {
	if cfg.BaseURL == "" {
		cfg.BaseURL = gnewsBaseURL
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = DefaultMaxResults
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.QuotaKey == "" {
		cfg.QuotaKey = "quota:gnews"
	}
	return &GNews{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}
}

// Name implements Provider.
func (g *GNews) Name() string { return "gnews" }

type gnewsResponse struct {
	TotalArticles int `json:"totalArticles"`
	Articles      []struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		Content     string `json:"content"`
		URL         string `json:"url"`
		PublishedAt string `json:"publishedAt"`
		Source      struct {
			Name string `json:"name"`
			URL  string `json:"url"`
		} `json:"source"`
	} `json:"articles"`
	Errors []string `json:"errors"`
}

// Search implements Provider.
func (g *GNews) Search(ctx context.Context, query string, window domain.DateRange) ([]domain.EvidenceSource, error) {
	if g.cfg.APIKey == "" {
		return nil, fmt.Errorf("gnews: %w: api key not configured", domain.ErrProviderUnavailable)
	}
	if g.cfg.Quota != nil && g.cfg.QuotaLimit > 0 {
		ok, err := g.cfg.Quota.Allow(ctx, g.cfg.QuotaKey, g.cfg.QuotaLimit, g.cfg.QuotaWindow)
		if err != nil {
			return nil, fmt.Errorf("gnews: quota check: %w", err)
		}
		if !ok {
			return nil, fmt.Errorf("gnews: %w: %w", domain.ErrProviderUnavailable, domain.ErrRateLimited)
		}
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("lang", "en")
	params.Set("max", strconv.Itoa(g.cfg.MaxResults))
	if window.From != "" {
		params.Set("from", window.From+"T00:00:00Z")
	}
	if window.To != "" {
		params.Set("to", window.To+"T23:59:59Z")
	}
	params.Set("apikey", g.cfg.APIKey)

	body, err := doGet(ctx, g.client, g.cfg.BaseURL+"?"+params.Encode(), "application/json")
	if err != nil {
		return nil, fmt.Errorf("gnews: search %q: %w", query, err)
	}
	var resp gnewsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("gnews: decode response: %w", err)
	}
	if len(resp.Errors) > 0 {
		return nil, fmt.Errorf("gnews: %w: %s", domain.ErrProviderUnavailable, strings.Join(resp.Errors, "; "))
	}

	out := make([]domain.EvidenceSource, 0, len(resp.Articles))
	for _, a := range resp.Articles {
		snippet := strings.TrimSpace(a.Description)
		if snippet == "" {
			snippet = truncate(strings.TrimSpace(a.Content), maxSnippet)
		}
		published := a.PublishedAt
		if t, err := time.Parse(time.RFC3339, a.PublishedAt); err == nil {
			published = t.UTC().Format(time.RFC3339)
		}
		classifyURL := a.Source.URL
		if classifyURL == "" {
			classifyURL = a.URL
		}
		out = append(out, domain.EvidenceSource{
			Title:         strings.TrimSpace(a.Title),
			URL:           strings.TrimSpace(a.URL),
			Snippet:       snippet,
			SourceType:    ClassifySource(a.Source.Name, classifyURL),
			PublishedDate: published,
			SourceName:    a.Source.Name,
			Provider:      g.Name(),
		})
		if len(out) == g.cfg.MaxResults {
			break
		}
	}
	return out, nil
}
