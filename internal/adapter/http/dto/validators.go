package dto

import (
	"html"
	"reflect"
	"regexp"
	"strings"

	"pixwallet/internal/core/domain"
	"pixwallet/pkg/apperror"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// Plain positional notation only: no sign, exponent or thousands separator.
var amountRe = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?$`)

func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("decimal_amount", validateDecimalAmount)
		_ = v.RegisterValidation("currency", validateCurrency)
	}
}

// validateDecimalAmount accepts a strictly positive decimal string.
func validateDecimalAmount(fl validator.FieldLevel) bool {
	_, err := ParseAmount(fl.Field().String())
	return err == nil
}

func validateCurrency(fl validator.FieldLevel) bool {
	_, ok := domain.ParseCurrency(fl.Field().String())
	return ok
}

// ParseAmount converts a client amount string. Amounts travel as strings so
// they never pass through float64.
func ParseAmount(raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	if !amountRe.MatchString(s) {
		return decimal.Zero, apperror.ErrInvalidAmount()
	}
	d, err := decimal.NewFromString(s)
	if err != nil || !d.IsPositive() {
		return decimal.Zero, apperror.ErrInvalidAmount()
	}
	return d, nil
}

// ParseCurrency converts a currency code or returns a validation error.
func ParseCurrency(raw string) (domain.Currency, error) {
	c, ok := domain.ParseCurrency(raw)
	if !ok {
		return "", apperror.ErrUnsupportedCurrency(raw)
	}
	return c, nil
}

// SanitizeStruct trims whitespace and HTML-escapes every exported string
// field (including *string) of a struct pointer.
func SanitizeStruct(v interface{}) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr || rv.Elem().Kind() != reflect.Struct {
		return
	}
	sanitizeFields(rv.Elem())
}

func sanitizeFields(rv reflect.Value) {
	for i := 0; i < rv.NumField(); i++ {
		f := rv.Field(i)
		if !f.CanSet() {
			continue
		}
		switch f.Kind() {
		case reflect.String:
			f.SetString(sanitize(f.String()))
		case reflect.Ptr:
			if f.IsNil() {
				continue
			}
			elem := f.Elem()
			if elem.Kind() == reflect.String {
				elem.SetString(sanitize(elem.String()))
			}
		}
	}
}

func sanitize(s string) string {
	return html.EscapeString(strings.TrimSpace(s))
}
