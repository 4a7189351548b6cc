package fetcher

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed reference.yaml
var referenceYAML []byte

// Coordinates is a gazetteer entry.
type Coordinates struct {
	Lat float64 `yaml:"lat"`
	Lon float64 `yaml:"lon"`
}

// League maps a competition to its ESPN path and regulation period count.
type League struct {
	Sport   string `yaml:"sport"`
	League  string `yaml:"league"`
	Periods int    `yaml:"periods"`
}

type reference struct {
	Cities     map[string]Coordinates `yaml:"cities"`
	Leagues    map[string]League      `yaml:"leagues"`
	FredSeries map[string]string      `yaml:"fred_series"`
}

var (
	refOnce sync.Once
	ref     reference
	refErr  error
)

func loadReference() (reference, error) {
	refOnce.Do(func() {
		if err := yaml.Unmarshal(referenceYAML, &ref); err != nil {
			refErr = fmt.Errorf("fetcher: decode reference data: %w", err)
		}
	})
	return ref, refErr
}

// lookupKey finds the longest table key contained in name. Exact matches win.
func lookupKey[V any](table map[string]V, name string) (string, V, bool) {
	var zero V
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "" {
		return "", zero, false
	}
	if v, ok := table[n]; ok {
		return n, v, true
	}
	keys := make([]string, 0, len(table))
	for k := range table {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	for _, k := range keys {
		if containsWord(n, k) {
			return k, table[k], true
		}
	}
	return "", zero, false
}

// containsWord reports whether phrase occurs in s on word boundaries.
func containsWord(s, phrase string) bool {
	for i := 0; ; {
		j := strings.Index(s[i:], phrase)
		if j < 0 {
			return false
		}
		start := i + j
		end := start + len(phrase)
		if (start == 0 || !isAlnum(s[start-1])) && (end == len(s) || !isAlnum(s[end])) {
			return true
		}
		i = start + 1
	}
}

func isAlnum(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

// LookupCity resolves a free-text location against the gazetteer.
func LookupCity(location string) (string, Coordinates, bool) {
	r, err := loadReference()
	if err != nil {
		return "", Coordinates{}, false
	}
	return lookupKey(r.Cities, location)
}

// LookupLeague resolves a competition or sport name to an ESPN league.
func LookupLeague(names ...string) (League, bool) {
	r, err := loadReference()
	if err != nil {
		return League{}, false
	}
	for _, n := range names {
		if _, l, ok := lookupKey(r.Leagues, n); ok {
			return l, true
		}
	}
	return League{}, false
}

// LookupFredSeries resolves an indicator name to a FRED series id.
func LookupFredSeries(indicator string) (string, bool) {
	r, err := loadReference()
	if err != nil {
		return "", false
	}
	_, id, ok := lookupKey(r.FredSeries, indicator)
	return id, ok
}
