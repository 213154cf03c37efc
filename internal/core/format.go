package core

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"github.com/wrkportal/sheetengine/internal/cell"
)

// Format tags understood by FormatValue. The empty tag selects the default
// rendering for each type.
const (
	FormatInteger  = "integer"
	FormatDecimal1 = "decimal1"
	FormatDecimal2 = "decimal2"
	FormatGrouped  = "thousands"

	FormatCurrencyInteger = "currency_integer"
	FormatCurrencyPlain   = "currency_plain"

	FormatDateUS      = "MM/DD/YYYY"
	FormatDateEU      = "DD/MM/YYYY"
	FormatDateISO     = "YYYY-MM-DD"
	FormatDateLong    = "MMM DD, YYYY"
	FormatDateDayLong = "DD MMM YYYY"
)

var dateLayouts = map[string]string{
	FormatDateUS:      "01/02/2006",
	FormatDateEU:      "02/01/2006",
	FormatDateISO:     "2006-01-02",
	FormatDateLong:    "Jan 02, 2006",
	FormatDateDayLong: "02 Jan 2006",
}

// FormatTags lists the valid tags per type, default first.
var FormatTags = map[DataType][]string{
	TypeNumber:   {"", FormatInteger, FormatDecimal1, FormatDecimal2, FormatGrouped},
	TypeCurrency: {"", FormatCurrencyInteger, FormatCurrencyPlain},
	TypeDate:     {FormatDateUS, FormatDateEU, FormatDateISO, FormatDateLong, FormatDateDayLong},
	TypeBoolean:  {""},
	TypeText:     {""},
}

// ValidFormat reports whether tag is a known variant for dt. The empty
// tag is always valid.
func ValidFormat(dt DataType, tag string) bool {
	if tag == "" {
		return true
	}
	for _, t := range FormatTags[dt] {
		if t == tag {
			return true
		}
	}
	return false
}

var serialDateRegex = regexp.MustCompile(`^\d{5}$`)

// FormatValue renders a raw cell for display. It never fails: a value that
// does not parse as its column type is returned in its plain string form.
func FormatValue(v any, dt DataType, tag string) string {
	if v == nil {
		return ""
	}
	switch dt {
	case TypeNumber:
		return formatNumber(v, tag)
	case TypeCurrency:
		return formatCurrency(v, tag)
	case TypeDate:
		return formatDate(v, tag)
	case TypeBoolean:
		return formatBoolean(v)
	default:
		return cell.String(v)
	}
}

func formatNumber(v any, tag string) string {
	n, ok := cell.ParseNumber(v)
	if !ok {
		return cell.String(v)
	}
	switch tag {
	case FormatInteger:
		return strconv.FormatFloat(math.Round(n), 'f', 0, 64)
	case FormatDecimal1:
		return strconv.FormatFloat(n, 'f', 1, 64)
	case FormatDecimal2:
		return strconv.FormatFloat(n, 'f', 2, 64)
	case FormatGrouped:
		return groupThousands(strconv.FormatFloat(math.Round(n), 'f', 0, 64))
	default:
		s := strconv.FormatFloat(n, 'f', 3, 64)
		s = strings.TrimRight(strings.TrimRight(s, "0"), ".")
		if s == "-0" {
			s = "0"
		}
		return groupThousands(s)
	}
}

func formatCurrency(v any, tag string) string {
	n, ok := currencyAmount(v)
	if !ok {
		return cell.String(v)
	}

	sign := ""
	if n < 0 {
		sign = "-"
		n = -n
	}

	var s string
	switch tag {
	case FormatCurrencyInteger:
		s = groupThousands(strconv.FormatFloat(math.Round(n), 'f', 0, 64))
	case FormatCurrencyPlain:
		s = strconv.FormatFloat(n, 'f', 2, 64)
	default:
		s = groupThousands(strconv.FormatFloat(n, 'f', 2, 64))
	}
	if s == "0" || s == "0.00" {
		sign = ""
	}
	return sign + "$" + s
}

// currencyAmount strips glyphs, codes and separators before parsing.
func currencyAmount(v any) (float64, bool) {
	if n, ok := cell.ParseNumber(v); ok {
		return n, true
	}
	s, ok := v.(string)
	if !ok {
		return 0, false
	}
	stripped := cell.StripNonNumeric(s)
	if stripped == "" || stripped == "-" {
		return 0, false
	}
	n, err := strconv.ParseFloat(stripped, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func formatDate(v any, tag string) string {
	layout, ok := dateLayouts[tag]
	if !ok {
		layout = dateLayouts[FormatDateUS]
	}

	raw := strings.TrimSpace(cell.String(v))
	if serialDateRegex.MatchString(raw) {
		serial, err := strconv.Atoi(raw)
		if err == nil {
			return cell.FromSerial(serial).Format(layout)
		}
	}

	t, ok := cell.ParseDate(v)
	if !ok {
		return cell.String(v)
	}
	return t.Format(layout)
}

func formatBoolean(v any) string {
	b, ok := cell.ParseBool(v)
	if !ok {
		return cell.String(v)
	}
	if b {
		return "Yes"
	}
	return "No"
}

var grouping = message.NewPrinter(language.English)

// groupThousands inserts commas into the integer part of a plain decimal
// string such as "-1234567.5". The fraction is left as rounded by the
// caller. Integer parts beyond uint64 are returned ungrouped.
func groupThousands(s string) string {
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	intPart, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart, frac = s[:i], s[i:]
	}
	whole, err := strconv.ParseUint(intPart, 10, 64)
	if err != nil {
		return sign + s
	}
	return sign + grouping.Sprintf("%d", whole) + frac
}
