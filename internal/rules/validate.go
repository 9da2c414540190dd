// internal/rules/validate.go
package rules

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/solatis/ratekeeper/internal/types"
)

// contextValidator is built once; validator.Validate caches struct metadata
// and is safe for concurrent use.
var contextValidator = sync.OnceValue(func() *validator.Validate {
	v := validator.New()
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			return d.InexactFloat64()
		}
		return nil
	}, decimal.Decimal{})
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
})

// ValidateContext rejects an evaluation context before any rule is walked.
// Returned errors wrap types.ErrInvalidContext.
func ValidateContext(ctx types.EvaluationContext) error {
	if err := contextValidator().Struct(ctx); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) {
			fields := make([]string, 0, len(ve))
			for _, fe := range ve {
				fields = append(fields, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", types.ErrInvalidContext, strings.Join(fields, "; "))
		}
		return fmt.Errorf("%w: %v", types.ErrInvalidContext, err)
	}

	// NullDecimal fields carry no tags; validator cannot see through Valid.
	positive := map[string]decimal.NullDecimal{
		"custom_idv":           ctx.CustomIDV,
		"invoice_base":         ctx.InvoiceBase,
		"kw_rating":            ctx.KWRating,
		"seating_capacity":     ctx.SeatingCapacity,
		"gross_vehicle_weight": ctx.GrossVehicleWeight,
	}
	for name, v := range positive {
		if v.Valid && !v.Decimal.IsPositive() {
			return fmt.Errorf("%w: %s must be positive", types.ErrInvalidContext, name)
		}
	}
	if ctx.NCBPercentage.Valid {
		ncb := ctx.NCBPercentage.Decimal
		if ncb.IsNegative() || ncb.GreaterThan(hundred) {
			return fmt.Errorf("%w: ncb_percentage %s outside [0, 100]", types.ErrInvalidContext, ncb)
		}
	}
	if ctx.Discount != nil {
		if err := checkDiscount(ctx.Discount); err != nil {
			return fmt.Errorf("%w: %v", types.ErrInvalidContext, err)
		}
	}
	return nil
}
