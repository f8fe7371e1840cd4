package numalloc

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Number identifies one item of the pool. Numbers are compared in their
// canonical form: surrounding whitespace is not significant, so " 42" and
// "42" name the same item.
type Number string

// ParseNumber returns the canonical form of s.
func ParseNumber(s string) (Number, error) {
	canonical := strings.TrimSpace(s)
	if canonical == "" {
		return "", newError(CodeInvalidInput, "ParseNumber", "number cannot be empty", nil)
	}
	return Number(canonical), nil
}

// NumberFromInt returns the canonical form of an integer identifier.
func NumberFromInt(n int64) Number {
	return Number(strconv.FormatInt(n, 10))
}

func (n Number) String() string {
	return string(n)
}

// canonicalNumbers validates numbers and returns their canonical forms sorted
// and without duplicates.
func canonicalNumbers(op string, numbers []Number) ([]string, error) {
	if len(numbers) == 0 {
		return nil, newError(CodeInvalidInput, op, "at least one number is required", nil)
	}
	result := make([]string, 0, len(numbers))
	for i, n := range numbers {
		canonical := strings.TrimSpace(string(n))
		if canonical == "" {
			return nil, newError(CodeInvalidInput, op, fmt.Sprintf("number at position %d is empty", i), nil)
		}
		result = append(result, canonical)
	}
	slices.Sort(result)
	return slices.Compact(result), nil
}

// toNumbers converts stored identifiers into sorted Numbers.
func toNumbers(values []string) []Number {
	result := make([]Number, len(values))
	for i, v := range values {
		result[i] = Number(v)
	}
	slices.Sort(result)
	return result
}
