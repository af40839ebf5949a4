package steamguard

import (
	"encoding/hex"
	"strings"
)

// Serialize renders the record as Steam-authenticator tooling traditionally
// persists it: "<base_secret>|<hex(serial)>|<hex(device_id)>|<hex(revocation_code)>".
// baseSecret is supplied by the caller (the surrounding "Authenticator"
// abstraction this core plugs into decides its own encoding — at minimum
// hex-encoded SecretKey, per §4.6) rather than computed here, since this
// core has no opinion on how a parent format names its secret field.
func (a *Authenticator) Serialize(baseSecret string) string {
	return strings.Join([]string{
		baseSecret,
		hex.EncodeToString([]byte(a.Serial)),
		hex.EncodeToString([]byte(a.DeviceID)),
		hex.EncodeToString([]byte(a.RevocationCode)),
	}, "|")
}

// Deserialize parses the §4.6 persisted form into an Authenticator. The
// caller is responsible for turning baseSecret into SecretKey (e.g.
// hex-decoding it) since its encoding is defined by the parent format, not
// this core. An empty string clears all fields of the returned record.
func Deserialize(serialized string) (baseSecret string, a *Authenticator) {
	a = NewAuthenticator(nil)
	if serialized == "" {
		return "", a
	}

	parts := strings.Split(serialized, "|")
	get := func(i int) string {
		if i < len(parts) {
			return parts[i]
		}
		return ""
	}

	baseSecret = get(0)
	if decoded, err := hex.DecodeString(get(1)); err == nil {
		a.Serial = string(decoded)
	}
	if decoded, err := hex.DecodeString(get(2)); err == nil {
		a.DeviceID = string(decoded)
	}
	if decoded, err := hex.DecodeString(get(3)); err == nil {
		a.RevocationCode = string(decoded)
	}

	return baseSecret, a
}
