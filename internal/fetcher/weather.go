package fetcher

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/polyoracle/internal/domain"
)

const (
	openMeteoForecastURL = "https://api.open-meteo.com/v1/forecast"
	openMeteoArchiveURL  = "https://archive-api.open-meteo.com/v1/archive"

	// archiveLagDays is how far behind today the archive reliably reaches.
	archiveLagDays = 5
)

// WeatherConfig configures the Open-Meteo weather fetcher.
type WeatherConfig struct {
	ForecastURL string
	ArchiveURL  string
	Timeout     time.Duration
	Clock       Clock
}

// WeatherFetcher serves WEATHER_API specs from Open-Meteo.
type WeatherFetcher struct {
	forecastURL string
	archiveURL  string
	http        jsonGetter
	clock       Clock
}

// NewWeatherFetcher creates a WeatherFetcher.
func NewWeatherFetcher(cfg WeatherConfig) *WeatherFetcher {
	f := &WeatherFetcher{
		forecastURL: cfg.ForecastURL,
		archiveURL:  cfg.ArchiveURL,
		http:        newJSONGetter(cfg.Timeout, 0),
		clock:       cfg.Clock,
	}
	if f.forecastURL == "" {
		f.forecastURL = openMeteoForecastURL
	}
	if f.archiveURL == "" {
		f.archiveURL = openMeteoArchiveURL
	}
	return f
}

type openMeteoDaily struct {
	Time             []string   `json:"time"`
	TemperatureMax   []*float64 `json:"temperature_2m_max"`
	TemperatureMin   []*float64 `json:"temperature_2m_min"`
	PrecipitationSum []*float64 `json:"precipitation_sum"`
}

type openMeteoResponse struct {
	Error      bool              `json:"error"`
	Reason     string            `json:"reason"`
	Timezone   string            `json:"timezone"`
	DailyUnits map[string]string `json:"daily_units"`
	Daily      openMeteoDaily    `json:"daily"`
}

// weatherUnits maps a requested unit to Open-Meteo query values and the unit
// label reported back.
func weatherUnits(unit string) (tempUnit, precipUnit, label string) {
	switch strings.ToLower(strings.TrimSpace(unit)) {
	case "f", "°f", "fahrenheit":
		return "fahrenheit", "mm", "F"
	case "in", "inch", "inches":
		return "celsius", "inch", "in"
	case "mm", "millimeter", "millimeters", "millimetre", "millimetres":
		return "celsius", "mm", "mm"
	default:
		return "celsius", "mm", "C"
	}
}

// measurementKind canonicalises measurement names.
func measurementKind(s string) string {
	switch m := strings.ToLower(strings.TrimSpace(s)); {
	case strings.Contains(m, "precip") || strings.Contains(m, "rain"):
		return "precipitation"
	case strings.Contains(m, "min") || strings.Contains(m, "low"):
		return "min"
	case strings.Contains(m, "avg") || strings.Contains(m, "average") || strings.Contains(m, "mean"):
		return "average"
	case strings.Contains(m, "max") || strings.Contains(m, "high"):
		return "max"
	default:
		return ""
	}
}

// Fetch implements Fetcher.
func (f *WeatherFetcher) Fetch(ctx context.Context, spec domain.DeterministicSpec) domain.FetchResult {
	const provider = "open_meteo"
	now := f.clock.now()
	fields := spec.Fields
	data := map[string]any{"location": fields.Location}

	city, coords, ok := LookupCity(fields.Location)
	if !ok {
		return domain.FetchFailed(provider, fmt.Sprintf("unknown location %q", fields.Location), data, now)
	}
	dateStr := fields.Date
	if dateStr == "" {
		dateStr = fields.ResolutionDate
	}
	day, ok := parseDate(dateStr)
	if !ok {
		return domain.FetchFailed(provider, fmt.Sprintf("unparseable date %q", dateStr), data, now)
	}
	kind := measurementKind(fields.MeasurementType)
	if kind == "" {
		kind = measurementKind(fields.Metric)
	}
	if kind == "" {
		return domain.FetchFailed(provider, fmt.Sprintf("unsupported measurement %q", fields.MeasurementType), data, now)
	}

	tempUnit, precipUnit, label := weatherUnits(fields.Unit)
	if kind == "precipitation" && label != "in" {
		label = "mm"
	}
	if kind != "precipitation" && label != "F" {
		label = "C"
	}

	t := today(now)
	endpoint, source := f.archiveURL, "archive"
	if !day.Before(t.AddDate(0, 0, -archiveLagDays)) {
		endpoint, source = f.forecastURL, "forecast"
	}
	date := day.Format(time.DateOnly)

	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(coords.Lat, 'f', 4, 64))
	q.Set("longitude", strconv.FormatFloat(coords.Lon, 'f', 4, 64))
	q.Set("daily", "temperature_2m_max,temperature_2m_min,precipitation_sum")
	q.Set("temperature_unit", tempUnit)
	q.Set("precipitation_unit", precipUnit)
	q.Set("start_date", date)
	q.Set("end_date", date)
	q.Set("timezone", "auto")

	data["city"] = city
	data["latitude"] = coords.Lat
	data["longitude"] = coords.Lon
	data["date"] = date
	data["measurement_type"] = kind
	data["unit"] = label
	data["endpoint"] = source
	data["is_forecast"] = !day.Before(t)

	var resp openMeteoResponse
	if err := f.http.getJSON(ctx, endpoint+"?"+q.Encode(), &resp); err != nil {
		return domain.FetchFailed(provider, fmt.Sprintf("%s %s: %v", source, date, err), data, now)
	}
	if resp.Error {
		return domain.FetchFailed(provider, resp.Reason, data, now)
	}

	idx := -1
	for i, d := range resp.Daily.Time {
		if d == date {
			idx = i
			break
		}
	}
	if idx < 0 {
		return domain.FetchFailed(provider, fmt.Sprintf("no daily record for %s", date), data, now)
	}

	at := func(s []*float64) (float64, bool) {
		if idx >= len(s) || s[idx] == nil {
			return 0, false
		}
		return *s[idx], true
	}
	hi, hiOK := at(resp.Daily.TemperatureMax)
	lo, loOK := at(resp.Daily.TemperatureMin)
	if hiOK {
		data["temperature_max"] = hi
	}
	if loOK {
		data["temperature_min"] = lo
	}

	var value float64
	switch kind {
	case "max":
		value, ok = hi, hiOK
	case "min":
		value, ok = lo, loOK
	case "average":
		value, ok = (hi+lo)/2, hiOK && loOK
	case "precipitation":
		value, ok = at(resp.Daily.PrecipitationSum)
	}
	if !ok {
		return domain.FetchFailed(provider, fmt.Sprintf("%s value missing for %s on %s", kind, city, date), data, now)
	}
	data["value"] = value
	return domain.FetchOK(provider, data, now)
}

var _ Fetcher = (*WeatherFetcher)(nil)
