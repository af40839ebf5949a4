package steamguard

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"math/big"

	"github.com/google/uuid"
)

// encryptPasswordRSA encrypts plaintext with a PKCS#1 v1.5 RSA public key
// described by hex-encoded modulus and exponent, as returned by Steam's
// getrsakey endpoint. Both the modulus and the exponent are taken as hex
// strings, because getrsakey returns both in that form.
func encryptPasswordRSA(password, modulusHex, exponentHex string) (string, error) {
	var n big.Int
	if _, ok := n.SetString(modulusHex, 16); !ok {
		return "", &CryptoError{Op: "parse rsa modulus", Err: fmt.Errorf("malformed modulus hex")}
	}

	var e big.Int
	if _, ok := e.SetString(exponentHex, 16); !ok {
		return "", &CryptoError{Op: "parse rsa exponent", Err: fmt.Errorf("malformed exponent hex")}
	}

	pubKey := rsa.PublicKey{N: &n, E: int(e.Int64())}

	encrypted, err := rsa.EncryptPKCS1v15(rand.Reader, &pubKey, []byte(password))
	if err != nil {
		return "", &CryptoError{Op: "rsa encrypt", Err: err}
	}

	return base64.StdEncoding.EncodeToString(encrypted), nil
}

// buildDeviceID derives a Steam mobile device identifier of the form
// "android:" + lowercase-hex(sha1(random UUID)), per §3/§4.1 of the
// authenticator's data model. Unlike steamtotp.GetDeviceID (which hashes a
// SteamID64 so the same account always gets the same confirmation device
// ID), an *enrollment* device ID must be a fresh per-install random value;
// uuid.NewRandom supplies that randomness, and its 16 bytes are what is hashed.
func buildDeviceID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", &CryptoError{Op: "generate random device id", Err: err}
	}

	sum := sha1.Sum(id[:])
	return fmt.Sprintf("android:%x", sum[:]), nil
}
