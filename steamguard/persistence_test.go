package steamguard

import "testing"

func TestSerializeDeserializeRoundTrip(t *testing.T) {
	a := &Authenticator{
		Serial:         "1234567890",
		DeviceID:       "android:deadbeefdeadbeefdeadbeefdeadbeefdeadbeef",
		RevocationCode: "R12345",
	}

	serialized := a.Serialize("deadbeefcafebabe")

	baseSecret, got := Deserialize(serialized)
	if baseSecret != "deadbeefcafebabe" {
		t.Errorf("baseSecret = %q, want %q", baseSecret, "deadbeefcafebabe")
	}
	if got.Serial != a.Serial {
		t.Errorf("Serial = %q, want %q", got.Serial, a.Serial)
	}
	if got.DeviceID != a.DeviceID {
		t.Errorf("DeviceID = %q, want %q", got.DeviceID, a.DeviceID)
	}
	if got.RevocationCode != a.RevocationCode {
		t.Errorf("RevocationCode = %q, want %q", got.RevocationCode, a.RevocationCode)
	}
}

func TestDeserializeEmptyString(t *testing.T) {
	baseSecret, a := Deserialize("")
	if baseSecret != "" {
		t.Errorf("baseSecret = %q, want empty", baseSecret)
	}
	if a.Serial != "" || a.DeviceID != "" || a.RevocationCode != "" {
		t.Errorf("expected all-empty record, got %+v", a)
	}
}

func TestDeserializeMissingTrailingFields(t *testing.T) {
	baseSecret, a := Deserialize("abc123")
	if baseSecret != "abc123" {
		t.Errorf("baseSecret = %q, want %q", baseSecret, "abc123")
	}
	if a.Serial != "" || a.DeviceID != "" || a.RevocationCode != "" {
		t.Errorf("expected empty trailing fields, got %+v", a)
	}
}

func TestSerializeFormat(t *testing.T) {
	a := &Authenticator{Serial: "S", DeviceID: "D", RevocationCode: "R"}
	got := a.Serialize("base")
	want := "base|53|44|52" // hex of "S", "D", "R"
	if got != want {
		t.Errorf("Serialize() = %q, want %q", got, want)
	}
}
