package steamguard

import "fmt"

// TransportError wraps any failure from the HTTP transport layer: non-2xx
// status, socket errors, TLS errors.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("steamguard: transport error during %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// InvalidEnrollResponse means Steam returned a parseable but semantically
// wrong response: missing success, missing RSA key, missing revocation_code.
type InvalidEnrollResponse struct {
	Msg string
	Err error
}

func (e *InvalidEnrollResponse) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("steamguard: invalid enroll response: %s: %v", e.Msg, e.Err)
	}
	return fmt.Sprintf("steamguard: invalid enroll response: %s", e.Msg)
}

func (e *InvalidEnrollResponse) Unwrap() error { return e.Err }

// ErrEncryptedSecretData reports that an authenticator's secret data is still
// encrypted and unavailable. Nothing in this package returns it:
// Authenticator.GenerateCode reports a missing secret as ErrNotEnrolled, and
// Authenticator.Sync does not inspect the secret.
var ErrEncryptedSecretData = fmt.Errorf("steamguard: secret data is encrypted/unavailable")

// ErrNotEnrolled is returned when a code is requested but no secret_key is present.
var ErrNotEnrolled = fmt.Errorf("steamguard: authenticator has no secret key, not enrolled")

// CryptoError wraps RSA/HMAC/RNG failures.
type CryptoError struct {
	Op  string
	Err error
}

func (e *CryptoError) Error() string {
	return fmt.Sprintf("steamguard: crypto error during %s: %v", e.Op, e.Err)
}

func (e *CryptoError) Unwrap() error { return e.Err }
