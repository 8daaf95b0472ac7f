package parser

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/JonMunkholm/profitrecon/internal/core"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// recordValidator checks the business rules expressed as struct tags on the
// core record types (quantity > 0, amounts >= 0, required identifiers).
type recordValidator struct {
	v *validator.Validate
}

func newRecordValidator() *recordValidator {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report json names so errors line up with the header-derived field names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})

	return &recordValidator{v: v}
}

// check validates rec and appends any failures to row, skipping fields
// that already carry a conversion error.
func (rv *recordValidator) check(row *Row, rec core.Record) {
	err := rv.v.Struct(rec)
	if err == nil {
		return
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		row.fail("record", err.Error())
		return
	}

	for _, fe := range verrs {
		field := fe.Field()
		if row.hasError(field) {
			continue
		}
		row.fail(field, reason(fe))
	}
}

func reason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	}
	return fmt.Sprintf("failed %s check", fe.Tag())
}
