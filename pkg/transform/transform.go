// Package transform implements the transformation engine: an ordered chain
// of named string transforms plus coercion to a target scalar type. It is
// pure and stateless — no field in this package carries per-call state.
package transform

import (
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	xgerrors "github.com/b2bgate/xmlgate/internal/errors"
)

// TargetType is the destination scalar type for transform_and_convert.
type TargetType string

const (
	TypeString     TargetType = "String"
	TypeInteger    TargetType = "Integer"
	TypeLong       TargetType = "Long"
	TypeDouble     TargetType = "Double"
	TypeBigDecimal TargetType = "BigDecimal"
	TypeDate       TargetType = "Date"
	TypeBoolean    TargetType = "Boolean"
)

var numericStrip = regexp.MustCompile(`[^0-9.\-]`)

// ApplyChain splits chain on "|", lowercases and trims each step, and
// applies them to value in order. Unknown steps are logged and passed
// through unchanged, never raise an error.
func ApplyChain(value, chain string) string {
	if strings.TrimSpace(value) == "" {
		return value
	}
	if strings.TrimSpace(chain) == "" {
		return value
	}

	steps := strings.Split(chain, "|")
	result := value
	for _, raw := range steps {
		step := strings.ToLower(strings.TrimSpace(raw))
		if step == "" {
			continue
		}
		next, ok := applyStep(result, step)
		if !ok {
			// Unknown step: pass through, matching the spec's "log and
			// pass through" rule for unrecognized transforms.
			slog.Default().Warn("transform.step.unknown", "step", step)
			continue
		}
		result = next
	}
	return result
}

func applyStep(value, step string) (string, bool) {
	switch step {
	case "uppercase":
		return strings.ToUpper(value), true
	case "lowercase":
		return strings.ToLower(value), true
	case "trim":
		return strings.TrimSpace(value), true
	case "remove_leading_zeros":
		return removeLeadingZeros(value), true
	case "date_format":
		return formatDate(value), true
	case "time_format":
		return formatTime(value), true
	case "datetime_format":
		return formatDateTime(value), true
	case "decimal_format":
		return formatDecimal(value, 3), true
	case "integer_format":
		return formatDecimal(value, 0), true
	case "currency_format":
		return formatDecimal(value, 2), true
	default:
		return value, false
	}
}

func removeLeadingZeros(value string) string {
	trimmed := strings.TrimLeft(value, "0")
	if trimmed == "" {
		return "0"
	}
	return trimmed
}

// formatDecimal normalizes value to a fixed-scale decimal string using
// HALF_UP rounding, without US grouping separators.
func formatDecimal(value string, scale int32) string {
	cleaned := strings.ReplaceAll(value, ",", ".")
	cleaned = numericStrip.ReplaceAllString(cleaned, "")
	if cleaned == "" {
		return value
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return value
	}
	return d.RoundHalfUp(scale).StringFixed(scale)
}

var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"02-01-2006",
	time.RFC3339,
}

func formatDate(value string) string {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return value
}

var timeLayouts = []string{
	"15:04:05",
	"15:04",
	"3:04:05 PM",
}

func formatTime(value string) string {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.Format("15:04:05")
		}
	}
	return value
}

var dateTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

func formatDateTime(value string) string {
	for _, layout := range dateTimeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.Format("2006-01-02T15:04:05")
		}
	}
	return value
}

// TransformAndConvert runs ApplyChain, then coerces the result to
// targetType. Null or whitespace-only input yields a nil result regardless
// of chain, per spec. Coercion failures raise a TransformError.
func TransformAndConvert(value, chain string, targetType TargetType) (any, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}

	transformed := ApplyChain(value, chain)
	if strings.TrimSpace(transformed) == "" {
		return nil, nil
	}

	switch targetType {
	case "", TypeString:
		return transformed, nil
	case TypeInteger, TypeLong:
		return coerceInteger(transformed)
	case TypeDouble:
		return coerceDouble(transformed)
	case TypeBigDecimal:
		return coerceBigDecimal(transformed)
	case TypeDate:
		return coerceDate(transformed)
	case TypeBoolean:
		return coerceBoolean(transformed)
	default:
		return nil, xgerrors.NewTransformError(fmt.Sprintf("unknown target type %q", targetType), nil)
	}
}

func cleanNumeric(value string) string {
	cleaned := strings.ReplaceAll(value, ",", ".")
	return numericStrip.ReplaceAllString(cleaned, "")
}

func coerceInteger(value string) (any, error) {
	cleaned := cleanNumeric(value)
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return nil, xgerrors.NewTransformError(fmt.Sprintf("cannot coerce %q to Integer", value), err)
	}
	return d.RoundHalfUp(0).IntPart(), nil
}

func coerceDouble(value string) (any, error) {
	cleaned := cleanNumeric(value)
	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return nil, xgerrors.NewTransformError(fmt.Sprintf("cannot coerce %q to Double", value), err)
	}
	return f, nil
}

func coerceBigDecimal(value string) (any, error) {
	cleaned := cleanNumeric(value)
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return nil, xgerrors.NewTransformError(fmt.Sprintf("cannot coerce %q to BigDecimal", value), err)
	}
	return d, nil
}

func coerceDate(value string) (any, error) {
	for _, layout := range []string{"2006-01-02", time.RFC3339, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return nil, xgerrors.NewTransformError(fmt.Sprintf("cannot coerce %q to Date (expected ISO-8601)", value), nil)
}

func coerceBoolean(value string) (any, error) {
	switch value {
	case "true":
		return true, nil
	case "false":
		return false, nil
	default:
		return nil, xgerrors.NewTransformError(fmt.Sprintf("cannot coerce %q to Boolean (expected \"true\"/\"false\")", value), nil)
	}
}
