package resolution

import (
	"strings"

	"github.com/shopspring/decimal"
)

// canonicalUnit folds unit spellings to one label. Unknown units come back
// upper-cased.
func canonicalUnit(u string) string {
	switch s := strings.ToLower(strings.TrimSpace(u)); s {
	case "":
		return ""
	case "c", "°c", "celsius", "degc":
		return "C"
	case "f", "°f", "fahrenheit", "degf":
		return "F"
	case "mm", "millimeter", "millimeters", "millimetre", "millimetres":
		return "mm"
	case "in", "inch", "inches", `"`:
		return "in"
	case "$", "usd", "us dollar", "dollars":
		return "USD"
	default:
		return strings.ToUpper(s)
	}
}

var (
	nine       = decimal.NewFromInt(9)
	five       = decimal.NewFromInt(5)
	thirtyTwo  = decimal.NewFromInt(32)
	mmPerInch  = decimal.RequireFromString("25.4")
	divPrecise = int32(12)
)

// convertUnit converts v between temperature scales or precipitation
// units. ok is false for any other pair.
func convertUnit(v decimal.Decimal, from, to string) (decimal.Decimal, bool) {
	from, to = canonicalUnit(from), canonicalUnit(to)
	if from == to {
		return v, true
	}
	switch {
	case from == "F" && to == "C":
		return v.Sub(thirtyTwo).Mul(five).DivRound(nine, divPrecise), true
	case from == "C" && to == "F":
		return v.Mul(nine).DivRound(five, divPrecise).Add(thirtyTwo), true
	case from == "mm" && to == "in":
		return v.DivRound(mmPerInch, divPrecise), true
	case from == "in" && to == "mm":
		return v.Mul(mmPerInch), true
	default:
		return v, false
	}
}
