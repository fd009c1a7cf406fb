package common

import "errors"

var (

	// repository specific errors
	ErrorNotFound      = errors.New("not found")
	ErrorAlreadyExists = errors.New("already exists")

	// service specific errors
	ErrorInternal           = errors.New("internal error")
	ErrorUnauthorized       = errors.New("unauthorized")
	ErrorPaymentRequired    = errors.New("payment required")
	ErrorInvalidCSRF        = errors.New("invalid csrf token")
	ErrorEncryptionDisabled = errors.New("encryption disabled")

	// credential errors
	ErrorInvalidLicense    = errors.New("invalid license")
	ErrorMalformedLicense  = errors.New("malformed license")
	ErrorPaymentIncomplete = errors.New("payment incomplete")
	ErrorNameMismatch      = errors.New("name mismatch")
	ErrorLicenseExhausted  = errors.New("could not allocate a unique license")

	// crypto errors
	ErrorDecryption = errors.New("decryption failed")

	// referral ledger errors
	ErrorInvalidReferralCode = errors.New("invalid referral code")
	ErrorAlreadyRedeemed     = errors.New("referral already redeemed")
	ErrorSelfReferral        = errors.New("self referral")

	// service token errors
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// IsCredentialRejection reports whether err is one of the outcomes that must
// be shown to callers as a generic "invalid credentials" message.
func IsCredentialRejection(err error) bool {
	return errors.Is(err, ErrorNotFound) ||
		errors.Is(err, ErrorInvalidLicense) ||
		errors.Is(err, ErrorPaymentIncomplete) ||
		errors.Is(err, ErrorNameMismatch)
}
