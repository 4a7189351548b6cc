package resolution

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/polyoracle/internal/domain"
)

// equalTolerance is the relative tolerance for "=".
var equalTolerance = decimal.New(1, -9)

// Compare applies comparator literally: ">" and "<" are strict, ">=" and
// "<=" are inclusive and "=" allows only floating-point noise.
func Compare(value decimal.Decimal, comp domain.Comparator, threshold decimal.Decimal) (bool, error) {
	switch comp {
	case domain.CompGreater:
		return value.GreaterThan(threshold), nil
	case domain.CompLess:
		return value.LessThan(threshold), nil
	case domain.CompGreaterEqual:
		return value.GreaterThanOrEqual(threshold) || approxEqual(value, threshold), nil
	case domain.CompLessEqual:
		return value.LessThanOrEqual(threshold) || approxEqual(value, threshold), nil
	case domain.CompEqual:
		return approxEqual(value, threshold), nil
	default:
		return false, fmt.Errorf("resolution: unknown comparator %q", comp)
	}
}

func approxEqual(a, b decimal.Decimal) bool {
	scale := decimal.Max(a.Abs(), b.Abs())
	return a.Sub(b).Abs().LessThanOrEqual(scale.Mul(equalTolerance))
}
