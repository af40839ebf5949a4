package steamguard

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
)

// fakeTransporter is a scripted Transporter: each call is routed to the
// first handler whose key is a substring of the request URL, and handlers
// are popped from a FIFO queue so a test can script a sequence of responses
// for the same endpoint (used by the finalize retry-loop fixtures).
type fakeTransporter struct {
	queues map[string][]func(form url.Values) (string, error)
	calls  map[string]*atomic.Int32
}

func newFakeTransporter() *fakeTransporter {
	return &fakeTransporter{
		queues: make(map[string][]func(form url.Values) (string, error)),
		calls:  make(map[string]*atomic.Int32),
	}
}

func (f *fakeTransporter) on(urlSubstring string, resp func(form url.Values) (string, error)) {
	f.queues[urlSubstring] = append(f.queues[urlSubstring], resp)
}

func (f *fakeTransporter) callCount(urlSubstring string) int32 {
	if c, ok := f.calls[urlSubstring]; ok {
		return c.Load()
	}
	return 0
}

func (f *fakeTransporter) Request(ctx context.Context, method, rawURL string, form url.Values, cookies http.CookieJar) (string, error) {
	for key, queue := range f.queues {
		if !strings.Contains(rawURL, key) {
			continue
		}
		if _, ok := f.calls[key]; !ok {
			f.calls[key] = &atomic.Int32{}
		}
		f.calls[key].Add(1)

		if len(queue) == 0 {
			return "{}", nil
		}
		next := queue[0]
		f.queues[key] = queue[1:]
		return next(form)
	}
	return "{}", nil
}

func testRSAKeyHex(t *testing.T) (modHex, expHex string) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 1024)
	if err != nil {
		t.Fatalf("generate rsa key: %v", err)
	}
	return fmt.Sprintf("%x", key.N), fmt.Sprintf("%x", key.E)
}

func newTestEnrollState(t *testing.T) *EnrollState {
	t.Helper()
	state, err := NewEnrollState("testuser", "hunter2")
	if err != nil {
		t.Fatalf("NewEnrollState() error: %v", err)
	}
	return state
}

// Fixture 5: CAPTCHA prompt.
func TestEnroll_CaptchaPrompt(t *testing.T) {
	modHex, expHex := testRSAKeyHex(t)

	ft := newFakeTransporter()
	ft.on("login/home", func(url.Values) (string, error) { return "", nil })
	ft.on("login/getrsakey", func(url.Values) (string, error) {
		return fmt.Sprintf(`{"success":true,"steamid":"76561198000000000","publickey_mod":"%s","publickey_exp":"%s","timestamp":"123"}`, modHex, expHex), nil
	})
	ft.on("mobilelogin/dologin", func(url.Values) (string, error) {
		return `{"success":false,"captcha_needed":true,"captcha_gid":"ABC"}`, nil
	})

	enroller := NewEnroller(WithTransporter(ft))
	state := newTestEnrollState(t)

	ok, err := enroller.Enroll(context.Background(), state)
	if err != nil {
		t.Fatalf("Enroll() error: %v", err)
	}
	if ok {
		t.Fatal("Enroll() = true, want false (captcha required)")
	}
	if !state.RequiresCaptcha {
		t.Error("RequiresCaptcha = false, want true")
	}
	if state.CaptchaID != "ABC" {
		t.Errorf("CaptchaID = %q, want %q", state.CaptchaID, "ABC")
	}
	want := "https://steamcommunity.com/public/captcha.php?gid=ABC"
	if state.CaptchaURL != want {
		t.Errorf("CaptchaURL = %q, want %q", state.CaptchaURL, want)
	}
}

// Fixture 4: status 89 short-circuit.
func TestEnroll_FinalizeStatus89(t *testing.T) {
	ft := newFakeTransporter()
	ft.on("FinalizeAddAuthenticator", func(url.Values) (string, error) {
		return `{"response":{"status":89}}`, nil
	})

	enroller := NewEnroller(WithTransporter(ft))
	state := newTestEnrollState(t)
	state.OAuthToken = "token"
	state.RequiresActivation = true
	state.ActivationCode = "ZZZZZ"
	state.secretKey = []byte("12345678901234567890")

	ok, err := enroller.Enroll(context.Background(), state)
	if err != nil {
		t.Fatalf("Enroll() error: %v", err)
	}
	if ok || state.Success {
		t.Fatal("Enroll() succeeded, want false")
	}
	if state.Error != "Invalid activation code" {
		t.Errorf("Error = %q, want %q", state.Error, "Invalid activation code")
	}
	if got := ft.callCount("FinalizeAddAuthenticator"); got != 1 {
		t.Errorf("FinalizeAddAuthenticator calls = %d, want 1", got)
	}
}

// Fixture 3: finalize retry loop with drift.
func TestEnroll_FinalizeRetryWithDrift(t *testing.T) {
	ft := newFakeTransporter()
	ft.on("FinalizeAddAuthenticator", func(url.Values) (string, error) {
		return `{"response":{"success":false}}`, nil
	})
	ft.on("FinalizeAddAuthenticator", func(url.Values) (string, error) {
		return `{"response":{"success":false}}`, nil
	})
	ft.on("FinalizeAddAuthenticator", func(url.Values) (string, error) {
		return `{"response":{"success":true,"want_more":true,"server_time":"2000000000"}}`, nil
	})
	ft.on("FinalizeAddAuthenticator", func(url.Values) (string, error) {
		return `{"response":{"success":true}}`, nil
	})
	ft.on("SendEmail", func(url.Values) (string, error) { return "{}", nil })

	enroller := NewEnroller(WithTransporter(ft))
	state := newTestEnrollState(t)
	state.OAuthToken = "token"
	state.RequiresActivation = true
	state.ActivationCode = "AAAAA"
	state.secretKey = []byte("12345678901234567890")

	ok, err := enroller.Enroll(context.Background(), state)
	if err != nil {
		t.Fatalf("Enroll() error: %v", err)
	}
	if !ok || !state.Success {
		t.Fatalf("Enroll() = (%v, %v), want (true, success=true); state.Error=%q", ok, state.Success, state.Error)
	}
	if state.RequiresActivation {
		t.Error("RequiresActivation still true after successful finalize")
	}
	if got := ft.callCount("FinalizeAddAuthenticator"); got != 4 {
		t.Errorf("FinalizeAddAuthenticator calls = %d, want 4", got)
	}
	if state.SecretKeyHex == "" {
		t.Error("SecretKeyHex not populated on success")
	}
}

// Re-entrancy: an activation code is not consumed until the caller sets it.
func TestEnroll_AwaitingActivationCodeIsNoOp(t *testing.T) {
	ft := newFakeTransporter()
	enroller := NewEnroller(WithTransporter(ft))

	state := newTestEnrollState(t)
	state.OAuthToken = "token"
	state.RequiresActivation = true
	state.secretKey = []byte("12345678901234567890")

	ok, err := enroller.Enroll(context.Background(), state)
	if err != nil {
		t.Fatalf("Enroll() error: %v", err)
	}
	if ok {
		t.Fatal("Enroll() = true without an activation code")
	}
	if got := ft.callCount("FinalizeAddAuthenticator"); got != 0 {
		t.Errorf("FinalizeAddAuthenticator calls = %d, want 0 (no activation code supplied)", got)
	}
}

func TestEnrollState_Drop(t *testing.T) {
	state := newTestEnrollState(t)
	state.OAuthToken = "secret-token"
	state.SecretKeyHex = "deadbeef"
	key := []byte{1, 2, 3}
	state.secretKey = key

	state.Drop()

	if state.Password != "" || state.OAuthToken != "" || state.SecretKeyHex != "" {
		t.Error("Drop() did not clear sensitive fields")
	}
	for _, b := range key {
		if b != 0 {
			t.Error("Drop() did not zero secretKey bytes")
		}
	}
}

func TestEnrollOutcome_Done(t *testing.T) {
	state := newTestEnrollState(t)
	state.Success = true
	state.secretKey = []byte("12345678901234567890")
	state.serial = "99"
	state.RevocationCode = "R1"

	outcome := state.Outcome()
	if outcome.Kind != OutcomeDone {
		t.Fatalf("Outcome().Kind = %v, want OutcomeDone", outcome.Kind)
	}
	if outcome.Record == nil || outcome.Record.Serial != "99" {
		t.Errorf("Outcome().Record = %+v", outcome.Record)
	}
}
