package dataset

import (
	"strconv"
	"strings"
	"time"
)

// NA is the token the dataframe layer reads as a missing value.
const NA = "NaN"

// ISODate is the layout dates are normalized to after loading.
const ISODate = "2006-01-02"

// converter normalizes a raw cell. ok is false when the cell was present
// but could not be parsed, in which case out is NA.
type converter func(raw string) (out string, ok bool)

func converterFor(c Column) converter {
	switch c.Type {
	case TypeDollar:
		return convertDollar
	case TypeFloat:
		return convertFloat
	case TypeInt:
		return convertInt
	case TypeBool:
		return convertBool
	case TypeDate:
		layout := c.Layout
		return func(raw string) (string, bool) {
			t, err := time.Parse(layout, raw)
			if err != nil {
				return NA, false
			}
			return t.Format(ISODate), true
		}
	}
	return func(raw string) (string, bool) { return raw, true }
}

// convertDollar accepts "$12.34"; anything without the leading '$' is missing.
func convertDollar(raw string) (string, bool) {
	if !strings.HasPrefix(raw, "$") {
		return NA, false
	}
	v, ok := parseNumeric(raw[1:])
	if !ok {
		return NA, false
	}
	return strconv.FormatFloat(v, 'f', -1, 64), true
}

func convertFloat(raw string) (string, bool) {
	v, ok := parseNumeric(raw)
	if !ok {
		return NA, false
	}
	return strconv.FormatFloat(v, 'f', -1, 64), true
}

func convertInt(raw string) (string, bool) {
	if i, err := strconv.Atoi(raw); err == nil {
		return strconv.Itoa(i), true
	}
	if v, ok := parseNumeric(raw); ok && v == float64(int(v)) {
		return strconv.Itoa(int(v)), true
	}
	return NA, false
}

func convertBool(raw string) (string, bool) {
	switch strings.ToLower(raw) {
	case "1", "t", "true", "yes", "y":
		return "true", true
	case "0", "f", "false", "no", "n":
		return "false", true
	}
	return NA, false
}

// parseNumeric parses numbers written with either decimal separator and
// optional thousands grouping ("1,234.5", "1.234,5", "12 000").
func parseNumeric(s string) (float64, bool) {
	raw := strings.TrimSpace(strings.ReplaceAll(s, "\u00A0", " "))
	if raw == "" {
		return 0, false
	}
	dec := '.'
	cpos := strings.LastIndex(raw, ",")
	dpos := strings.LastIndex(raw, ".")
	if cpos >= 0 && (dpos < 0 || cpos > dpos) {
		// "1,234" and "1,234,567" are grouping; "12,5" and "1.234,5" are decimal commas
		grouping := dpos < 0 && (strings.Count(raw, ",") > 1 || len(raw)-cpos-1 == 3)
		if !grouping {
			dec = ','
		}
	}
	for _, sep := range []rune{',', '.', ' '} {
		if sep != dec {
			raw = strings.ReplaceAll(raw, string(sep), "")
		}
	}
	if dec != '.' {
		raw = strings.ReplaceAll(raw, string(dec), ".")
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
