// Package isbn validates ISBN-13 identifiers.
package isbn

import "strings"

// Result describes the outcome of validating a candidate ISBN.
type Result struct {
	Valid      bool
	Normalized string
	Reason     string
}

func invalid(reason string) Result {
	return Result{Reason: reason}
}

// Validate checks an ISBN-13 string. Spaces and hyphens are stripped before
// validation; the normalized digits are returned on success.
func Validate(raw string) Result {
	normalized := strings.Map(func(r rune) rune {
		if r == '-' || r == ' ' {
			return -1
		}
		return r
	}, raw)

	if normalized == "" {
		return invalid("isbn is required")
	}
	for _, r := range normalized {
		if r < '0' || r > '9' {
			return invalid("isbn must contain only digits")
		}
	}
	if len(normalized) != 13 {
		return invalid("isbn must be exactly 13 digits")
	}

	// Weighted checksum: alternating x1/x3 over the first 12 digits.
	sum := 0
	for i := 0; i < 12; i++ {
		digit := int(normalized[i] - '0')
		if i%2 == 1 {
			digit *= 3
		}
		sum += digit
	}
	check := (10 - sum%10) % 10
	if check != int(normalized[12]-'0') {
		return invalid("invalid isbn-13 check digit")
	}

	return Result{Valid: true, Normalized: normalized}
}
