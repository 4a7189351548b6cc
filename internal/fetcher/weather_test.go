package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/polyoracle/internal/domain"
)

func weatherServer(t *testing.T, hits map[string]int, daily map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits[r.URL.Path]++
		q := r.URL.Query()
		assert.Equal(t, "temperature_2m_max,temperature_2m_min,precipitation_sum", q.Get("daily"))
		assert.Equal(t, q.Get("start_date"), q.Get("end_date"))
		writeJSON(t, w, map[string]any{"timezone": "America/New_York", "daily": daily})
	}))
}

func weatherSpec(measurement, unit, date string) domain.DeterministicSpec {
	return domain.DeterministicSpec{
		StrategyType: domain.StrategyWeather,
		Fields:       domain.SpecFields{Location: "New York", MeasurementType: measurement, Unit: unit, Date: date},
	}
}

func TestWeatherFutureDateUsesForecast(t *testing.T) {
	hits := map[string]int{}
	srv := weatherServer(t, hits, map[string]any{
		"time":               []string{"2026-03-12"},
		"temperature_2m_max": []any{61.2},
		"temperature_2m_min": []any{44.0},
		"precipitation_sum":  []any{0.0},
	})
	defer srv.Close()

	f := NewWeatherFetcher(WeatherConfig{ForecastURL: srv.URL + "/forecast", ArchiveURL: srv.URL + "/archive", Clock: fixedClock})
	res := f.Fetch(context.Background(), weatherSpec("max_temperature", "F", "2026-03-12"))

	require.True(t, res.Success, res.Error)
	assert.Equal(t, 1, hits["/forecast"])
	assert.Zero(t, hits["/archive"])
	assert.True(t, res.Bool("is_forecast", false))
	v, _ := res.Float("value")
	assert.InDelta(t, 61.2, v, 1e-9)
	assert.Equal(t, "F", res.String("unit"))
}

func TestWeatherPastDateUsesArchive(t *testing.T) {
	hits := map[string]int{}
	srv := weatherServer(t, hits, map[string]any{
		"time":               []string{"2026-01-15"},
		"temperature_2m_max": []any{4.0},
		"temperature_2m_min": []any{-2.0},
		"precipitation_sum":  []any{12.5},
	})
	defer srv.Close()

	f := NewWeatherFetcher(WeatherConfig{ForecastURL: srv.URL + "/forecast", ArchiveURL: srv.URL + "/archive", Clock: fixedClock})

	res := f.Fetch(context.Background(), weatherSpec("average", "", "2026-01-15"))
	require.True(t, res.Success, res.Error)
	assert.Equal(t, 1, hits["/archive"])
	assert.False(t, res.Bool("is_forecast", true))
	v, _ := res.Float("value")
	assert.InDelta(t, 1.0, v, 1e-9)
	assert.Equal(t, "C", res.String("unit"))

	res = f.Fetch(context.Background(), weatherSpec("rain", "mm", "2026-01-15"))
	require.True(t, res.Success, res.Error)
	v, _ = res.Float("value")
	assert.InDelta(t, 12.5, v, 1e-9)
	assert.Equal(t, "mm", res.String("unit"))
}

func TestWeatherMissingValueFails(t *testing.T) {
	hits := map[string]int{}
	srv := weatherServer(t, hits, map[string]any{
		"time":               []string{"2026-03-09"},
		"temperature_2m_max": []any{nil},
		"temperature_2m_min": []any{3.0},
		"precipitation_sum":  []any{nil},
	})
	defer srv.Close()

	f := NewWeatherFetcher(WeatherConfig{ForecastURL: srv.URL + "/forecast", ArchiveURL: srv.URL + "/archive", Clock: fixedClock})
	res := f.Fetch(context.Background(), weatherSpec("max", "C", "2026-03-09"))
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "missing")
}

func TestWeatherUnknownLocation(t *testing.T) {
	f := NewWeatherFetcher(WeatherConfig{Clock: fixedClock})
	spec := weatherSpec("max", "C", "2026-03-09")
	spec.Fields.Location = "Atlantis"
	res := f.Fetch(context.Background(), spec)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "Atlantis")
}

func TestMeasurementKind(t *testing.T) {
	assert.Equal(t, "max", measurementKind("temperature_max"))
	assert.Equal(t, "min", measurementKind("Low temperature"))
	assert.Equal(t, "average", measurementKind("mean"))
	assert.Equal(t, "precipitation", measurementKind("total rainfall"))
	assert.Equal(t, "", measurementKind("humidity"))
}
