package service

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateAddressNormalizes(t *testing.T) {
	addr, err := ValidateAddress(validAddress())
	require.NoError(t, err)
	assert.Equal(t, "asha@example.com", addr.Email)
}

func TestValidateAddressReportsFields(t *testing.T) {
	input := validAddress()
	input.City = "  "
	input.Email = "not-an-email"
	input.Phone = "12345"

	_, err := ValidateAddress(input)
	var verr *AddressValidationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Fields, "city")
	assert.Contains(t, verr.Fields, "email")
	assert.Contains(t, verr.Fields, "phone")
	assert.NotContains(t, verr.Fields, "name")
}

func TestValidateAddressPhoneDigitBounds(t *testing.T) {
	cases := map[string]bool{
		"1234567":           true,
		"123456":            false,
		"+1 (555) 010-9999": true,
		"1234567890123456":  false,
		"98450-abc-12345":   false,
	}
	for phone, ok := range cases {
		input := validAddress()
		input.Phone = phone
		_, err := ValidateAddress(input)
		assert.Equal(t, ok, err == nil, "phone %q", phone)
	}
}

func TestParsePaymentMethod(t *testing.T) {
	method, err := ParsePaymentMethod(" UPI ")
	require.NoError(t, err)
	assert.Equal(t, UpiGateway{}, method)

	provider, err := paymentProviderFor(CardGateway{})
	require.NoError(t, err)
	assert.Equal(t, "stripe", provider)

	_, err = ParsePaymentMethod("wallet")
	assert.ErrorIs(t, err, ErrUnsupportedPaymentMethod)
}
