package auth

import (
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// ValidateTOTP validates a TOTP code against a secret
func ValidateTOTP(secret, token string) bool {
	return totp.Validate(token, secret)
}

// GenerateMFASecret generates a TOTP secret for a user
func GenerateMFASecret(userEmail string) (*otp.Key, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      "BillingApp",
		AccountName: userEmail,
		SecretSize:  32,
	})
	return key, err
}
