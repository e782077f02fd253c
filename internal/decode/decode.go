// Package decode turns raw wire values from the vendor cloud (hex-packed
// integers, truncated numeric strings) into typed values. Functions here are
// pure; callers decide what to do with a failed field.
package decode

import (
	"errors"
	"fmt"
	"math"
	"strconv"
)

// gasMaxDigits is how many trailing hex digits of the gas-consumption field
// carry real data. The vendor pads the value with spurious leading digits.
const gasMaxDigits = 8

var errEmptyValue = errors.New("empty value")

// HexUint parses an unprefixed hexadecimal string as an unsigned integer.
func HexUint(s string) (uint64, error) {
	if s == "" {
		return 0, errEmptyValue
	}
	n, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("parse hex %q: %w", s, err)
	}
	return n, nil
}

// HexInt is HexUint narrowed to int, for fields known to fit.
func HexInt(s string) (int, error) {
	n, err := HexUint(s)
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// EncodeTemp renders a temperature as the uppercase hex string the wire
// expects, with no zero padding beyond the natural digits.
func EncodeTemp(celsius int) string {
	return fmt.Sprintf("%X", celsius)
}

// GasCubicMeters decodes the cumulative gas consumption field. Over-long
// values keep only the last gasMaxDigits hex digits; the integer is scaled
// by 1/1000 into cubic meters and rounded to 3 decimal places.
func GasCubicMeters(s string) (float64, error) {
	if s == "" {
		return 0, errEmptyValue
	}
	if len(s) > gasMaxDigits {
		s = s[len(s)-gasMaxDigits:]
	}
	n, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("parse gas value %q: %w", s, err)
	}
	return math.Round(float64(n)) / 1000, nil
}
