package domain

import (
	"encoding/json"
	"math"
	"strconv"
	"time"
)

// FetchResult is the normalised response of one provider call. A failed fetch
// carries Success=false and Error; it is never retried inside the pipeline.
type FetchResult struct {
	Success   bool           `json:"success"`
	Data      map[string]any `json:"data,omitempty"`
	Provider  string         `json:"provider"`
	FetchedAt time.Time      `json:"fetched_at"`
	Error     string         `json:"error,omitempty"`
}

// FetchOK builds a successful FetchResult.
func FetchOK(provider string, data map[string]any, at time.Time) FetchResult {
	return FetchResult{Success: true, Data: data, Provider: provider, FetchedAt: at.UTC()}
}

// FetchFailed builds a failed FetchResult. data may carry diagnostics.
func FetchFailed(provider, msg string, data map[string]any, at time.Time) FetchResult {
	return FetchResult{Success: false, Data: data, Provider: provider, FetchedAt: at.UTC(), Error: msg}
}

// Float reads a numeric field from Data. It accepts float64, ints, numeric
// strings and json.Number.
func (f FetchResult) Float(key string) (float64, bool) {
	v, ok := f.Data[key]
	if !ok || v == nil {
		return 0, false
	}
	var out float64
	switch n := v.(type) {
	case float64:
		out = n
	case float32:
		out = float64(n)
	case int:
		out = float64(n)
	case int64:
		out = float64(n)
	case uint64:
		out = float64(n)
	case json.Number:
		x, err := n.Float64()
		if err != nil {
			return 0, false
		}
		out = x
	case string:
		x, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, false
		}
		out = x
	default:
		return 0, false
	}
	if math.IsNaN(out) || math.IsInf(out, 0) {
		return 0, false
	}
	return out, true
}

// String reads a string field from Data.
func (f FetchResult) String(key string) string {
	s, _ := f.Data[key].(string)
	return s
}

// Bool reads a boolean field from Data. Missing fields report def.
func (f FetchResult) Bool(key string, def bool) bool {
	b, ok := f.Data[key].(bool)
	if !ok {
		return def
	}
	return b
}
