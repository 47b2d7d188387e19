package service

import (
	"net/mail"
	"regexp"
	"strings"

	"github.com/dujiao-next/bookshop/internal/models"
)

var phoneAllowedPattern = regexp.MustCompile(`^\+?[0-9\s\-().]+$`)

const (
	phoneMinDigits = 7
	phoneMaxDigits = 15
)

// ValidateAddress 校验并规范化地址，失败返回 *AddressValidationError
func ValidateAddress(input models.Address) (models.Address, error) {
	addr := input.Normalize()
	fields := map[string]string{}

	required := []struct {
		name  string
		value string
	}{
		{"name", addr.Name},
		{"email", addr.Email},
		{"phone", addr.Phone},
		{"line1", addr.Line1},
		{"city", addr.City},
		{"state", addr.State},
		{"postal_code", addr.PostalCode},
		{"country", addr.Country},
	}
	for _, field := range required {
		if field.value == "" {
			fields[field.name] = "is required"
		}
	}

	if addr.Email != "" && !isValidEmail(addr.Email) {
		fields["email"] = "must be a valid email address"
	}
	if addr.Phone != "" {
		if digits := countDigits(addr.Phone); !phoneAllowedPattern.MatchString(addr.Phone) || digits < phoneMinDigits || digits > phoneMaxDigits {
			fields["phone"] = "must contain 7 to 15 digits"
		}
	}

	if len(fields) > 0 {
		return models.Address{}, &AddressValidationError{Fields: fields}
	}
	return addr, nil
}

func isValidEmail(email string) bool {
	parsed, err := mail.ParseAddress(email)
	if err != nil || parsed.Address != email {
		return false
	}
	at := strings.LastIndex(email, "@")
	return at > 0 && strings.Contains(email[at+1:], ".")
}

func countDigits(value string) int {
	count := 0
	for _, r := range value {
		if r >= '0' && r <= '9' {
			count++
		}
	}
	return count
}
