package isbn

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateAcceptsCorrectChecksum(t *testing.T) {
	for _, input := range []string{
		"9780306406157",
		"978-0-306-40615-7",
		"978 0 306 40615 7",
		"4881234567899",
		"9780000000002",
	} {
		res := Validate(input)
		assert.True(t, res.Valid, "expected %q to be valid", input)
		assert.Len(t, res.Normalized, 13)
		assert.Empty(t, res.Reason)
	}
}

func TestValidateRejectsBadChecksum(t *testing.T) {
	res := Validate("9780306406158")
	assert.False(t, res.Valid)
	assert.Equal(t, "invalid isbn-13 check digit", res.Reason)
}

func TestValidateRejectsEmpty(t *testing.T) {
	res := Validate("")
	assert.False(t, res.Valid)
	assert.Equal(t, "isbn is required", res.Reason)

	res = Validate(" - ")
	assert.False(t, res.Valid)
	assert.Equal(t, "isbn is required", res.Reason)
}

func TestValidateRejectsLetters(t *testing.T) {
	res := Validate("97803064061X7")
	assert.False(t, res.Valid)
	assert.Equal(t, "isbn must contain only digits", res.Reason)
}

func TestValidateRejectsWrongLength(t *testing.T) {
	res := Validate("978030640615")
	assert.False(t, res.Valid)
	assert.Equal(t, "isbn must be exactly 13 digits", res.Reason)

	res = Validate("97803064061579")
	assert.False(t, res.Valid)
	assert.Equal(t, "isbn must be exactly 13 digits", res.Reason)
}

func TestValidateChecksumFormula(t *testing.T) {
	// First twelve digits of 488123456789x: weighted sum 131,
	// so the only valid check digit is (10 - 131%10) % 10 = 9.
	res := Validate("4881234567899")
	assert.True(t, res.Valid)

	for d := byte('0'); d <= '8'; d++ {
		res = Validate("488123456789" + string(d))
		assert.False(t, res.Valid)
		assert.Equal(t, "invalid isbn-13 check digit", res.Reason)
	}
}
