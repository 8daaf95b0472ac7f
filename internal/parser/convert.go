package parser

// convert.go turns raw spreadsheet cells into typed values.
//
// It handles the messy reality of marketplace exports:
//   - Multiple date formats (ISO, US, dotted, with or without a time part)
//   - Excel serial day numbers leaking through as plain numbers
//   - Currency symbols, thousands separators and accounting negatives
//   - Excel formula prefixes (="value")

import (
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// numericRegex validates that a string is a plain number after cleanup.
var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// TwoDigitYearPivot defines how 2-digit years are interpreted. Years that
// would land more than this many years in the future go to the previous
// century.
var TwoDigitYearPivot = 20

var (
	errInvalidNumber = errors.New("invalid number")
	errInvalidDate   = errors.New("invalid date")
	errNotInteger    = errors.New("must be a whole number")
	errOutOfRange    = errors.New("is out of range")
)

// currencyMarks are stripped from numeric cells before parsing.
var currencyMarks = strings.NewReplacer(
	"$", "",
	"€", "", // euro
	"£", "", // pound
	"¥", "", // yen/yuan
	"￥", "", // fullwidth yuan
	"元", "", // 元
	"RMB", "",
	"CNY", "",
	"USD", "",
	",", "",
	"，", "", // fullwidth comma
	" ", "",
)

var (
	twoDigitYearLayouts = []string{
		"1/2/06", "01/02/06", "1-2-06", "1.2.06", "01.02.06",
	}
	fourDigitYearLayouts = []string{
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02 15:04",
		"2006/01/02 15:04:05",
		"2006/1/2 15:04:05",
		"2006/1/2 15:04",
		"2006-01-02", "2006/01/02", "2006/1/2", "2006.01.02",
		"1/2/2006", "01/02/2006", "1-2-2006", "01-02-2006", "1.2.2006", "01.02.2006",
		"1/2/2006 15:04", "1/2/2006 15:04:05",
		"Jan 2, 2006", "2 Jan 2006",
		"20060102",
		"2006年1月2日",
	}
)

// excelEpoch is day zero of the 1900 date system as Excel counts it.
var excelEpoch = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)

// ParseDecimal converts a cell to a decimal. Accounting format "(12.50)"
// yields a negative value.
func ParseDecimal(s string) (decimal.Decimal, error) {
	s = CleanCell(s)
	if s == "" {
		return decimal.Zero, errInvalidNumber
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	s = currencyMarks.Replace(s)
	if negative {
		s = "-" + s
	}

	if !numericRegex.MatchString(s) {
		return decimal.Zero, errInvalidNumber
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, errInvalidNumber
	}
	return d, nil
}

// ParseQuantity converts a cell to a whole number. "2.0" is accepted,
// "2.5" is not.
func ParseQuantity(s string) (int64, error) {
	d, err := ParseDecimal(s)
	if err != nil {
		return 0, err
	}
	if !d.Equal(d.Truncate(0)) {
		return 0, errNotInteger
	}
	if !d.BigInt().IsInt64() {
		return 0, errOutOfRange
	}
	return d.IntPart(), nil
}

// ParseDate converts a cell to a UTC timestamp.
func ParseDate(s string) (time.Time, error) {
	s = CleanCell(s)
	if s == "" {
		return time.Time{}, errInvalidDate
	}

	for _, layout := range fourDigitYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}

	currentYear := time.Now().Year()
	pivotYear := currentYear + TwoDigitYearPivot
	for _, layout := range twoDigitYearLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			if t.Year() > pivotYear {
				t = t.AddDate(-100, 0, 0)
			}
			return t, nil
		}
	}

	if t, ok := excelSerialDate(s); ok {
		return t, nil
	}

	return time.Time{}, errInvalidDate
}

// excelSerialDate accepts serial day numbers between 1954 and 2119, the
// range a spreadsheet date column realistically produces.
func excelSerialDate(s string) (time.Time, bool) {
	if !numericRegex.MatchString(s) {
		return time.Time{}, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil || d.LessThan(decimal.NewFromInt(20000)) || d.GreaterThan(decimal.NewFromInt(80000)) {
		return time.Time{}, false
	}
	days := d.IntPart()
	frac := d.Sub(decimal.NewFromInt(days))
	secs := frac.Mul(decimal.NewFromInt(86400)).Round(0).IntPart()
	return excelEpoch.AddDate(0, 0, int(days)).Add(time.Duration(secs) * time.Second), true
}

// CleanCell removes common spreadsheet artifacts from a cell value:
// surrounding whitespace, the Excel formula prefix (="...") and quotes.
func CleanCell(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") {
		s = s[1:]
	}

	s = strings.Trim(s, `"'`)
	s = strings.TrimPrefix(s, "\t")
	return strings.TrimSpace(s)
}
