package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateUsername(t *testing.T) {
	testCases := []struct {
		name     string
		username string
		valid    bool
	}{
		{name: "simple lowercase", username: "alice", valid: true},
		{name: "digits and underscore", username: "student_042", valid: true},
		{name: "hyphenated", username: "jo-anne", valid: true},
		{name: "minimum three characters", username: "abc", valid: true},
		{name: "maximum thirty characters", username: strings.Repeat("a", 30), valid: true},
		{name: "too short", username: "ab", valid: false},
		{name: "too long", username: strings.Repeat("a", 31), valid: false},
		{name: "empty", username: "", valid: false},
		{name: "contains space", username: "alice smith", valid: false},
		{name: "contains dot", username: "alice.smith", valid: false},
		{name: "contains at sign", username: "alice@school", valid: false},
		{name: "non-ascii letters", username: "алиса", valid: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			valid, msg := ValidateUsername(tc.username)
			assert.Equal(t, tc.valid, valid)
			if !tc.valid {
				assert.NotEmpty(t, msg)
			}
		})
	}
}

func TestValidateEmail(t *testing.T) {
	testCases := []struct {
		name  string
		email string
		valid bool
	}{
		{name: "plain address", email: "alice@example.com", valid: true},
		{name: "subdomain and plus tag", email: "a.b+tag@mail.school.edu", valid: true},
		{name: "missing at sign", email: "alice.example.com", valid: false},
		{name: "missing tld", email: "alice@example", valid: false},
		{name: "empty", email: "", valid: false},
		{name: "over max length", email: strings.Repeat("a", 250) + "@x.com", valid: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.valid, ValidateEmail(tc.email))
		})
	}
}

func TestValidatePassword(t *testing.T) {
	valid, errs := ValidatePassword("longenough1")
	assert.True(t, valid)
	assert.Empty(t, errs)

	valid, errs = ValidatePassword("short")
	assert.False(t, valid)
	assert.Len(t, errs, 1)

	// Too short and no letters trips both rules
	valid, errs = ValidatePassword("1234")
	assert.False(t, valid)
	assert.Len(t, errs, 2)
}

func TestValidatePasswordStrength(t *testing.T) {
	valid, errs := ValidatePasswordStrength("Sufficient1!")
	assert.True(t, valid)
	assert.Empty(t, errs)

	valid, errs = ValidatePasswordStrength("alllowercase")
	assert.False(t, valid)
	assert.NotEmpty(t, errs)
}

func TestSanitizeString(t *testing.T) {
	assert.Equal(t, "hello", SanitizeString("  hello \x00"))
	assert.Equal(t, "", SanitizeString("\x00"))
}
