package extract

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/listing-sync/internal/model"
)

var (
	amountPattern = regexp.MustCompile(`^(\d+(?:\.\d+)?)\s*(k|thousand|m|mm|mil|million|b|bn|billion)?$`)
	rangeSplit    = regexp.MustCompile(`\s*(?:-|–|—|\bto\b)\s*`)
	currencyNoise = strings.NewReplacer("$", "", "usd", "", ",", "", "+", "", "~", "", "approx.", "", "approx", "")
)

var multipliers = map[string]float64{
	"":         1,
	"k":        1e3,
	"thousand": 1e3,
	"m":        1e6,
	"mm":       1e6,
	"mil":      1e6,
	"million":  1e6,
	"b":        1e9,
	"bn":       1e9,
	"billion":  1e9,
}

// UnrecognizedError reports a string that is not a figure at all, such as
// "Contact Broker" or "Price on request". Decoders drop the field and warn
// instead of failing the listing.
type UnrecognizedError struct {
	Kind  string
	Value string
}

func (e *UnrecognizedError) Error() string {
	return fmt.Sprintf("extract: unrecognized %s %q", e.Kind, e.Value)
}

// ParseAmount converts a dollar figure such as "$1.2M", "500K" or
// "1,250,000" to whole dollars.
func ParseAmount(s string) (int64, error) {
	v, _, err := parseAmount(s)
	return v, err
}

func parseAmount(s string) (int64, string, error) {
	cleaned := strings.TrimSpace(currencyNoise.Replace(strings.ToLower(strings.TrimSpace(s))))
	m := amountPattern.FindStringSubmatch(cleaned)
	if m == nil {
		return 0, "", &UnrecognizedError{Kind: "amount", Value: s}
	}
	n, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, "", eris.Wrapf(err, "extract: parse amount %q", s)
	}
	v, err := fromNumber(n * multipliers[m[2]])
	if err != nil {
		return 0, "", err
	}
	return v, m[2], nil
}

// ParseAmountRange parses a single figure or a range such as "500K - 1M" or
// "$1-2M". A bare lower bound borrows the upper bound's unit suffix.
func ParseAmountRange(s string) (model.AmountRange, error) {
	parts := rangeSplit.Split(strings.TrimSpace(s), -1)
	switch len(parts) {
	case 1:
		v, err := ParseAmount(parts[0])
		if err != nil {
			return model.AmountRange{}, err
		}
		return model.AmountRange{Min: &v, Max: &v}, nil
	case 2:
		hi, unit, err := parseAmount(parts[1])
		if err != nil {
			return model.AmountRange{}, err
		}
		lo, loUnit, err := parseAmount(parts[0])
		if err != nil {
			return model.AmountRange{}, err
		}
		if loUnit == "" && unit != "" {
			lo, _, _ = parseAmount(parts[0] + unit)
		}
		return model.AmountRange{Min: &lo, Max: &hi}, nil
	default:
		return model.AmountRange{}, &UnrecognizedError{Kind: "amount range", Value: s}
	}
}

// ParseMultiple parses a valuation multiple such as "3.5x" or "3.5".
func ParseMultiple(s string) (float64, error) {
	cleaned := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(s)), "x")
	v, err := strconv.ParseFloat(strings.TrimSpace(cleaned), 64)
	if err != nil {
		return 0, &UnrecognizedError{Kind: "multiple", Value: s}
	}
	return v, nil
}

// maxAmount is 2^63, the first float64 outside the int64 range.
const maxAmount = float64(math.MaxInt64)

// fromNumber rounds a figure to whole dollars. Values that do not fit in an
// int64 are rejected rather than converted.
func fromNumber(f float64) (int64, error) {
	r := math.Round(f)
	if math.IsNaN(r) || r >= maxAmount || r < -maxAmount {
		return 0, eris.Errorf("extract: amount %g is out of range", f)
	}
	return int64(r), nil
}
