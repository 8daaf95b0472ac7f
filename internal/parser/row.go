package parser

import (
	"time"

	"github.com/JonMunkholm/profitrecon/internal/core"
	"github.com/shopspring/decimal"
)

// Row is a single data row bound to its header. Accessors record a
// RowError when a cell cannot be converted, so a BuildFunc reads like a
// plain struct literal.
type Row struct {
	Number int
	cells  []string
	index  headerIndex
	fields map[string]FieldSpec
	errs   []core.RowError
}

// Cell returns the cleaned text of a column, or "" if the column is absent.
func (r *Row) Cell(field string) string {
	i, ok := r.index[field]
	if !ok || i >= len(r.cells) {
		return ""
	}
	return CleanCell(r.cells[i])
}

// Text returns the first non-empty value among fields.
func (r *Row) Text(fields ...string) string {
	for _, f := range fields {
		if v := r.Cell(f); v != "" {
			return v
		}
	}
	if len(fields) > 0 {
		r.checkRequired(fields[0], "")
	}
	return ""
}

// Decimal parses a numeric column. Empty optional cells are zero.
func (r *Row) Decimal(field string) decimal.Decimal {
	raw := r.Cell(field)
	if raw == "" {
		r.checkRequired(field, raw)
		return decimal.Zero
	}
	d, err := ParseDecimal(raw)
	if err != nil {
		r.fail(field, err.Error()+": "+quote(raw))
		return decimal.Zero
	}
	return d
}

// FirstDecimal parses the first non-empty column among fields.
func (r *Row) FirstDecimal(fields ...string) decimal.Decimal {
	for _, f := range fields {
		if r.Cell(f) != "" {
			return r.Decimal(f)
		}
	}
	return r.Decimal(fields[0])
}

// Quantity parses a whole-number column.
func (r *Row) Quantity(field string) int64 {
	raw := r.Cell(field)
	if raw == "" {
		r.checkRequired(field, raw)
		return 0
	}
	q, err := ParseQuantity(raw)
	if err != nil {
		r.fail(field, err.Error()+": "+quote(raw))
		return 0
	}
	return q
}

// Date parses a date column.
func (r *Row) Date(field string) time.Time {
	raw := r.Cell(field)
	if raw == "" {
		r.checkRequired(field, raw)
		return time.Time{}
	}
	t, err := ParseDate(raw)
	if err != nil {
		r.fail(field, err.Error()+": "+quote(raw))
		return time.Time{}
	}
	return t
}

// Errors returns the problems recorded so far.
func (r *Row) Errors() []core.RowError {
	return r.errs
}

func (r *Row) checkRequired(field, raw string) {
	if spec, ok := r.fields[field]; ok && spec.Required && raw == "" {
		r.fail(field, "is required")
	}
}

func (r *Row) fail(field, reason string) {
	for _, e := range r.errs {
		if e.Field == field {
			return
		}
	}
	r.errs = append(r.errs, core.RowError{Row: r.Number, Field: field, Reason: reason})
}

func (r *Row) hasError(field string) bool {
	for _, e := range r.errs {
		if e.Field == field {
			return true
		}
	}
	return false
}

// quote keeps at most 40 characters of a cell for error text.
func quote(s string) string {
	if r := []rune(s); len(r) > 40 {
		s = string(r[:40]) + "..."
	}
	return "\"" + s + "\""
}
