// Package phone decides whether a raw phone number is acceptable input.
package phone

import "strings"

const (
	minDigits = 3
	maxDigits = 12
)

// formatting characters that never affect validity.
var stripper = strings.NewReplacer("(", "", ")", "", "-", "", " ", "", "+", "")

// Normalize strips parentheses, dashes, spaces and '+' from raw. The result is
// the comparison key for uniqueness; it is not guaranteed to be digits only.
func Normalize(raw string) string {
	return stripper.Replace(raw)
}

// IsValid reports whether raw normalizes to 3 to 12 ASCII digits.
func IsValid(raw string) bool {
	cleaned := Normalize(raw)
	if len(cleaned) < minDigits || len(cleaned) > maxDigits {
		return false
	}
	for i := 0; i < len(cleaned); i++ {
		if cleaned[i] < '0' || cleaned[i] > '9' {
			return false
		}
	}
	return true
}
