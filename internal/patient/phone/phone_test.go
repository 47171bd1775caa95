package phone

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"(611)67-890", "61167890"},
		{"+38 (050) 123-45-67", "380501234567"},
		{"000", "000"},
		{"", ""},
		{"()- +", ""},
		{"12_34", "12_34"},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.raw))
		})
	}
}

func TestIsValid_LengthBoundaries(t *testing.T) {
	for n := 0; n <= 20; n++ {
		digits := strings.Repeat("7", n)
		want := n >= 3 && n <= 12
		assert.Equal(t, want, IsValid(digits), "length %d", n)
	}
}

func TestIsValid_FormattingInsensitive(t *testing.T) {
	variants := [][]string{
		{"61167890", "(611)67-890", "+611 67 890", "6-1-1-6-7-8-9-0", "(((611)))67890"},
		{"12", "(1)2", "+1 2", "1-2"},
		{"1234567890123", "+1 (234) 567-890-123", "1234 5678 90123"},
	}
	for _, group := range variants {
		want := IsValid(group[0])
		for _, v := range group[1:] {
			assert.Equal(t, want, IsValid(v), "%q should match %q", v, group[0])
		}
	}
}

func TestIsValid_RejectsNonDigits(t *testing.T) {
	invalid := []string{
		"abc",
		"123a",
		"{123}",
		"[123]",
		"123_456",
		"123.456",
		"12/34",
		"１２３",
		"123\n",
		"0",
		"",
	}
	for _, raw := range invalid {
		assert.False(t, IsValid(raw), "%q should be invalid", raw)
	}
}

func TestIsValid_Accepts(t *testing.T) {
	valid := []string{"000", "911", "(611)67-890", "+380501234567", "380 50 123 45 67"}
	for _, raw := range valid {
		assert.True(t, IsValid(raw), "%q should be valid", raw)
	}
}
