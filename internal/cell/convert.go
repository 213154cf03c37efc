// Package cell coerces raw table values into numbers, dates, booleans and text.
//
// Raw values arrive untyped from ingestion: strings straight out of a CSV,
// float64 from JSON bodies, or nil for an empty cell. These helpers handle the
// messy reality of user-provided data:
//   - Currency symbols, thousands separators and accounting negatives in numbers
//   - Multiple date layouts (US, EU, ISO, long month names)
//   - Several boolean spellings (true/false, yes/no, 1/0)
//   - Excel formula prefixes (="value")
//
// Every function is pure and safe for concurrent use.
package cell

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// numericRegex validates that a string is a valid numeric format after cleanup.
// Matches integers, decimals, and scientific notation.
var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// currencyGlyphs are the symbols that mark a numeric value as money.
var currencyGlyphs = []string{"$", "€", "£", "¥"}

// TwoDigitYearPivot defines how 2-digit years are interpreted.
// Years that would result in dates more than this many years in the future
// are assumed to be in the previous century.
var TwoDigitYearPivot = 20

// SerialEpoch is day zero of legacy spreadsheet serial dates. It sits two days
// before 1900-01-01: one day because serials are 1-based, one for the phantom
// 29 Feb 1900 the format has always counted.
var SerialEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

// Date layouts split by year format for proper 2-digit year handling
var (
	twoDigitYearLayouts = []string{
		"1/2/06", "01/02/06", "1-2-06", "1.2.06", "01.02.06",
	}
	fourDigitYearLayouts = []string{
		"1/2/2006", "01/02/2006", "1-2-2006", "01-02-2006", "1.2.2006", "01.02.2006",
		"2006-01-02", "2006/01/02", "2006.01.02",
		"2006-01-02T15:04:05Z07:00", "2006-01-02 15:04:05", "2006-01-02T15:04:05",
		"Jan 2, 2006", "Jan 02, 2006", "January 2, 2006",
		"2 Jan 2006", "02 Jan 2006", "2 January 2006",
		"Mon, 02 Jan 2006", "20060102",
	}
)

// String renders a raw value as plain text. nil becomes the empty string and
// floats use the shortest representation that round-trips.
func String(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case bool:
		if x {
			return "TRUE"
		}
		return "FALSE"
	case json.Number:
		return x.String()
	case time.Time:
		return x.Format("2006-01-02")
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

// IsBlank reports whether v is nil or a whitespace-only string.
func IsBlank(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}

// CleanCell removes common CSV artifacts from a cell value:
// - Trims whitespace
// - Removes Excel formula prefix (="...")
// - Removes surrounding quotes
func CleanCell(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") {
		s = s[1:]
	}

	return strings.Trim(s, `"'`)
}

// HasCurrencyGlyph reports whether the textual form of v carries $, €, £ or ¥.
func HasCurrencyGlyph(v any) bool {
	s, ok := v.(string)
	if !ok {
		return false
	}
	for _, g := range currencyGlyphs {
		if strings.Contains(s, g) {
			return true
		}
	}
	return false
}

// ParseNumber converts a raw value to float64.
// Handles currency symbols, thousands separators, and accounting format
// (parentheses for negative). Returns false for blanks and anything that is
// not a finite number after cleanup.
func ParseNumber(v any) (float64, bool) {
	switch x := v.(type) {
	case nil:
		return 0, false
	case float64:
		return x, !math.IsNaN(x) && !math.IsInf(x, 0)
	case float32:
		f := float64(x)
		return f, !math.IsNaN(f) && !math.IsInf(f, 0)
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case int32:
		return float64(x), true
	case json.Number:
		return ParseNumber(x.String())
	case string:
		return parseNumericString(x)
	default:
		return 0, false
	}
}

func parseNumericString(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}

	// Detect negative accounting format "(123.45)"
	isNegative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		isNegative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	for _, g := range currencyGlyphs {
		s = strings.ReplaceAll(s, g, "")
	}
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)

	// "-$5" leaves a sign glued to nothing once the glyph is gone
	if strings.HasPrefix(s, "- ") {
		s = "-" + strings.TrimSpace(s[2:])
	}

	if isNegative {
		if strings.HasPrefix(s, "-") {
			return 0, false
		}
		s = "-" + s
	}

	if !numericRegex.MatchString(s) {
		return 0, false
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// StripNonNumeric keeps only digits, the decimal point and a leading minus
// sign. Accounting parentheses are turned into a minus sign.
func StripNonNumeric(s string) string {
	s = strings.TrimSpace(s)
	negative := strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")")

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r == '.':
			b.WriteRune(r)
		case r == '-' && b.Len() == 0:
			negative = true
		}
	}
	if negative && b.Len() > 0 {
		return "-" + b.String()
	}
	return b.String()
}

// ParseDate converts a raw value to a calendar date.
// Supports multiple date formats and handles 2-digit years with pivot.
func ParseDate(v any) (time.Time, bool) {
	if t, ok := v.(time.Time); ok {
		return t, true
	}
	s, ok := v.(string)
	if !ok {
		return time.Time{}, false
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}

	// Try 4-digit year layouts first (unambiguous)
	for _, layout := range fourDigitYearLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, true
		}
	}

	// Try 2-digit year layouts with pivot year adjustment
	pivotYear := time.Now().Year() + TwoDigitYearPivot

	for _, layout := range twoDigitYearLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			if t.Year() > pivotYear {
				t = t.AddDate(-100, 0, 0)
			}
			return t, true
		}
	}

	return time.Time{}, false
}

// FromSerial converts a legacy spreadsheet serial day number to a UTC date.
func FromSerial(serial int) time.Time {
	return SerialEpoch.AddDate(0, 0, serial)
}

// ParseBool recognizes true/false, yes/no and 1/0, case-insensitively.
// The second return value is false for anything else.
func ParseBool(v any) (value bool, ok bool) {
	switch x := v.(type) {
	case bool:
		return x, true
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "true", "yes", "1":
			return true, true
		case "false", "no", "0":
			return false, true
		}
	case float64:
		if x == 1 {
			return true, true
		}
		if x == 0 {
			return false, true
		}
	case int:
		if x == 1 {
			return true, true
		}
		if x == 0 {
			return false, true
		}
	}
	return false, false
}
