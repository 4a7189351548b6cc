package evidence

import (
	"strings"

	"github.com/alanyoungcy/polyoracle/internal/domain"
)

// Dedup keeps the first source per URL in input order. Sources without a URL
// are dropped.
func Dedup(sources []domain.EvidenceSource) []domain.EvidenceSource {
	seen := make(map[string]struct{}, len(sources))
	out := make([]domain.EvidenceSource, 0, len(sources))
	for _, s := range sources {
		key := strings.TrimSpace(s.URL)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, s)
	}
	return out
}
