package parser

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"
)

func TestParseDecimal(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantErr   bool
		wantValue string
	}{
		{name: "positive integer", input: "123", wantValue: "123"},
		{name: "zero", input: "0", wantValue: "0"},
		{name: "negative integer", input: "-456", wantValue: "-456"},
		{name: "decimal number", input: "123.45", wantValue: "123.45"},
		{name: "leading decimal point", input: ".99", wantValue: "0.99"},
		{name: "dollar sign", input: "$1,234.56", wantValue: "1234.56"},
		{name: "euro sign", input: "€1234.56", wantValue: "1234.56"},
		{name: "yuan sign", input: "¥88.00", wantValue: "88"},
		{name: "fullwidth yuan sign", input: "￥1,024.5", wantValue: "1024.5"},
		{name: "yuan suffix", input: "12.5元", wantValue: "12.5"},
		{name: "accounting negative", input: "(1,234.56)", wantValue: "-1234.56"},
		{name: "excel formula prefix", input: `="42.10"`, wantValue: "42.1"},
		{name: "whitespace", input: "  7.25 ", wantValue: "7.25"},
		{name: "empty", input: "", wantErr: true},
		{name: "letters", input: "abc", wantErr: true},
		{name: "two decimal points", input: "1.2.3", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDecimal(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseDecimal(%q) = %v, want error", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseDecimal(%q) error = %v", tt.input, err)
			}
			if got.String() != tt.wantValue {
				t.Errorf("ParseDecimal(%q) = %s, want %s", tt.input, got.String(), tt.wantValue)
			}
		})
	}
}

func TestParseQuantity(t *testing.T) {
	tests := []struct {
		input   string
		want    int64
		wantErr bool
	}{
		{"2", 2, false},
		{"2.0", 2, false},
		{"1,000", 1000, false},
		{"2.5", 0, true},
		{"", 0, true},
		{"-3", -3, false},
		{"9223372036854775807", 9223372036854775807, false},
		{"9223372036854775808", 0, true},
		{"18446744073709551617", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseQuantity(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseQuantity(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseQuantity(%q) = %d, want %d", tt.input, got, tt.want)
		}
	}
}

func TestParseDate(t *testing.T) {
	day := func(y int, m time.Month, d int) time.Time {
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	}

	tests := []struct {
		name    string
		input   string
		want    time.Time
		wantErr bool
	}{
		{name: "iso", input: "2024-03-15", want: day(2024, 3, 15)},
		{name: "iso datetime", input: "2024-03-15 13:45:00", want: time.Date(2024, 3, 15, 13, 45, 0, 0, time.UTC)},
		{name: "slashes ymd", input: "2024/3/5", want: day(2024, 3, 5)},
		{name: "us", input: "03/15/2024", want: day(2024, 3, 15)},
		{name: "dotted", input: "15.03.2024", wantErr: true},
		{name: "two digit year", input: "3/15/24", want: day(2024, 3, 15)},
		{name: "compact", input: "20240315", want: day(2024, 3, 15)},
		{name: "chinese", input: "2024年3月15日", want: day(2024, 3, 15)},
		{name: "excel serial", input: "45366", want: day(2024, 3, 15)},
		{name: "excel serial with time", input: "45366.5", want: time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)},
		{name: "small number is not a date", input: "42", wantErr: true},
		{name: "empty", input: "", wantErr: true},
		{name: "garbage", input: "next tuesday", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDate(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseDate(%q) = %v, want error", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseDate(%q) error = %v", tt.input, err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("ParseDate(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestCleanCell(t *testing.T) {
	tests := []struct {
		input, want string
	}{
		{`="00123"`, "00123"},
		{"=SUM", "SUM"},
		{` "quoted" `, "quoted"},
		{"\tSKU-1", "SKU-1"},
		{"plain", "plain"},
	}

	for _, tt := range tests {
		if got := CleanCell(tt.input); got != tt.want {
			t.Errorf("CleanCell(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestQuote_TruncatesByCharacter(t *testing.T) {
	long := strings.Repeat("订单", 30)
	got := quote(long)
	if !utf8.ValidString(got) {
		t.Fatalf("quote(%q) produced invalid UTF-8: %q", long, got)
	}
	want := "\"" + strings.Repeat("订单", 20) + "...\""
	if got != want {
		t.Errorf("quote() = %q, want %q", got, want)
	}
	if got := quote("short"); got != `"short"` {
		t.Errorf("quote(short) = %q", got)
	}
}
