package evidence

import (
	"net/url"
	"strings"

	"github.com/alanyoungcy/polyoracle/internal/domain"
)

// sourceTable lists name and domain fragments per source type, checked in
// order. Keys of three characters or fewer only match whole words.
var sourceTable = []struct {
	kind domain.SourceType
	keys []string
}{
	{domain.SourceWire, []string{"reuters", "associated press", "ap news", "apnews", "afp", "bloomberg"}},
	{domain.SourceOfficial, []string{"gov", "federal reserve", "federalreserve.gov", "sec.gov", "whitehouse", "treasury"}},
	{domain.SourceMainstream, []string{
		"nyt", "new york times", "nytimes", "washington post", "washingtonpost", "bbc", "cnn", "cnbc",
		"guardian", "ft", "financial times", "wall street journal", "wsj", "abc news", "nbc", "cbs",
		"fox news", "usa today", "politico", "the hill", "axios",
	}},
	{domain.SourceTrade, []string{
		"coindesk", "the block", "theblock", "techcrunch", "arstechnica", "wired", "the verge",
		"theverge", "decrypt", "cointelegraph",
	}},
}

// ClassifySource assigns a coarse trust tier from the publisher name and the
// publisher or article URL.
func ClassifySource(name, rawURL string) domain.SourceType {
	host := ""
	if u, err := url.Parse(strings.TrimSpace(rawURL)); err == nil {
		host = strings.ToLower(u.Hostname())
	}
	if host == "gov" || strings.HasSuffix(host, ".gov") || strings.Contains(host, ".gov.") {
		return domain.SourceOfficial
	}
	text := strings.ToLower(strings.TrimSpace(name)) + " " + host
	for _, row := range sourceTable {
		for _, k := range row.keys {
			if len(k) <= 3 {
				if containsWord(text, k) {
					return row.kind
				}
				continue
			}
			if strings.Contains(text, k) {
				return row.kind
			}
		}
	}
	return domain.SourceUnknown
}

// containsWord reports whether word occurs in s between non-alphanumerics.
func containsWord(s, word string) bool {
	for i := 0; i <= len(s)-len(word); {
		j := strings.Index(s[i:], word)
		if j < 0 {
			return false
		}
		start := i + j
		end := start + len(word)
		if (start == 0 || !isAlnum(s[start-1])) && (end == len(s) || !isAlnum(s[end])) {
			return true
		}
		i = start + 1
	}
	return false
}

func isAlnum(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= '0' && b <= '9')
}
