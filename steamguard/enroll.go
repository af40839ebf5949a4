package steamguard

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"time"

	"github.com/k64z/steamstacks/steamid"
	"github.com/k64z/steamstacks/steamtotp"
)

const (
	communityBase = "https://steamcommunity.com"
	apiBase       = "https://api.steampowered.com"

	oauthClientID = "DE45CD61"
	oauthScope    = "read_profile write_profile read_client write_client"

	maxFinalizeRetries = 30
)

// EnrollState is the mutable, caller-owned conversation state for one
// enrollment attempt. The caller fills in Username/Password (and later
// CaptchaText/EmailAuthText/ActivationCode as the driver asks for them) and
// repeatedly calls Enroller.Enroll(ctx, state) until Success or the caller
// gives up. All calls for one EnrollState must be serialized by the caller:
// nothing here is safe for concurrent use.
type EnrollState struct {
	// Inputs, written by the caller.
	Username       string
	Password       string
	CaptchaText    string
	EmailAuthText  string
	ActivationCode string

	// Outputs / challenges, written by the driver.
	CaptchaID      string
	CaptchaURL     string
	EmailDomain    string
	SteamID        steamid.SteamID
	OAuthToken     string
	RevocationCode string
	SecretKeyHex   string
	Error          string

	// Flags.
	RequiresLogin      bool
	RequiresCaptcha    bool
	RequiresTwoFactor  bool
	RequiresEmailAuth  bool
	RequiresActivation bool
	Success            bool

	Cookies *cookiejar.Jar

	rsaTimestamp         uint64
	deviceID             string
	secretKey            []byte
	serial               string
	serverTimeDiffMillis int64
}

// NewEnrollState prepares a fresh enrollment conversation for the given
// credentials, with its own cookie jar.
func NewEnrollState(username, password string) (*EnrollState, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("steamguard: create cookie jar: %w", err)
	}
	return &EnrollState{
		Username:      username,
		Password:      password,
		RequiresLogin: true,
		Cookies:       jar,
	}, nil
}

// Drop zeroes out the sensitive fields of state. Call it once the caller is
// done with the EnrollState, whether enrollment succeeded or was abandoned.
func (s *EnrollState) Drop() {
	s.Password = ""
	s.OAuthToken = ""
	s.SecretKeyHex = ""
	for i := range s.secretKey {
		s.secretKey[i] = 0
	}
	s.secretKey = nil
}

// EnrollOutcome is a tagged-union view over EnrollState for callers who
// prefer to switch on a sum type instead of reading the requires_* flags
// directly. It does not replace EnrollState: the re-entrant flag-based API
// is still how Enroll communicates with the caller between calls.
type EnrollOutcome struct {
	Kind           EnrollOutcomeKind
	CaptchaID      string
	CaptchaURL     string
	EmailDomain    string
	Record         *Authenticator
	RevocationCode string
	Reason         string
}

type EnrollOutcomeKind int

const (
	OutcomeAwaitingLogin EnrollOutcomeKind = iota
	OutcomeAwaitingCaptcha
	OutcomeAwaitingEmailCode
	OutcomeAwaitingTwoFactor
	OutcomeAwaitingActivationCode
	OutcomeDone
	OutcomeFailed
)

// Outcome projects the current state into a single tagged variant.
func (s *EnrollState) Outcome() EnrollOutcome {
	switch {
	case s.Success:
		rec := NewAuthenticator(s.secretKey)
		rec.Serial = s.serial
		rec.DeviceID = s.deviceID
		rec.RevocationCode = s.RevocationCode
		rec.AccountName = s.Username
		return EnrollOutcome{Kind: OutcomeDone, Record: rec, RevocationCode: s.RevocationCode}
	case s.Error != "" && !s.RequiresActivation && !s.RequiresCaptcha && !s.RequiresEmailAuth && !s.RequiresTwoFactor:
		return EnrollOutcome{Kind: OutcomeFailed, Reason: s.Error}
	case s.RequiresCaptcha:
		return EnrollOutcome{Kind: OutcomeAwaitingCaptcha, CaptchaID: s.CaptchaID, CaptchaURL: s.CaptchaURL}
	case s.RequiresEmailAuth:
		return EnrollOutcome{Kind: OutcomeAwaitingEmailCode, EmailDomain: s.EmailDomain}
	case s.RequiresTwoFactor:
		return EnrollOutcome{Kind: OutcomeAwaitingTwoFactor}
	case s.RequiresActivation:
		return EnrollOutcome{Kind: OutcomeAwaitingActivationCode}
	default:
		return EnrollOutcome{Kind: OutcomeAwaitingLogin}
	}
}

// Enroller drives the enrollment state machine over a Transporter.
type Enroller struct {
	transport Transporter
	logger    *slog.Logger
}

// DriverOption configures an Enroller.
type DriverOption func(*enrollerConfig)

type enrollerConfig struct {
	transport Transporter
	logger    *slog.Logger
}

// WithTransporter overrides the HTTP transport, e.g. with a fake in tests.
func WithTransporter(t Transporter) DriverOption {
	return func(c *enrollerConfig) { c.transport = t }
}

// WithEnrollerLogger sets the structured logger.
func WithEnrollerLogger(l *slog.Logger) DriverOption {
	return func(c *enrollerConfig) { c.logger = l }
}

// NewEnroller builds an Enroller. With no options it talks to real Steam
// endpoints over net/http.
func NewEnroller(opts ...DriverOption) *Enroller {
	cfg := enrollerConfig{
		transport: NewTransporter(nil),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Enroller{transport: cfg.transport, logger: cfg.logger}
}

// Enroll attempts maximum forward progress on state and reports whether
// enrollment is now fully complete. Inspect state.RequiresCaptcha /
// RequiresEmailAuth / RequiresTwoFactor / RequiresActivation / Error between
// calls to know what the caller must supply before calling again.
//
// The returned error is non-nil for transport or cryptographic failures, for
// Steam responses that cannot be parsed, and when getrsakey reports no
// success; it is always an *InvalidEnrollResponse. Recoverable protocol
// states (bad captcha, bad activation code, pending retries) are reported via
// state.Error instead.
func (e *Enroller) Enroll(ctx context.Context, state *EnrollState) (bool, error) {
	var (
		ok  bool
		err error
	)

	switch {
	case state.OAuthToken == "":
		ok, err = e.login(ctx, state)
		if err == nil && state.OAuthToken != "" && !state.RequiresActivation {
			ok, err = e.add(ctx, state)
		}
	case state.RequiresActivation && state.ActivationCode != "":
		ok, err = e.finalize(ctx, state)
	case !state.RequiresActivation:
		ok, err = e.add(ctx, state)
	default:
		// Awaiting an activation code the caller hasn't supplied yet.
		return false, nil
	}

	if err == nil {
		return ok, nil
	}

	// Every error surfaced by Enroll is an InvalidEnrollResponse; sub-steps
	// that already produced a specifically-worded one (e.g. the literal
	// getrsakey failure message) are passed through unchanged, anything else
	// (such as a CryptoError) is wrapped.
	var alreadyWrapped *InvalidEnrollResponse
	if errors.As(err, &alreadyWrapped) {
		return ok, err
	}
	return ok, &InvalidEnrollResponse{Msg: "enroll", Err: err}
}

type getRSAKeyResponse struct {
	Success      bool   `json:"success"`
	PublicKeyMod string `json:"publickey_mod"`
	PublicKeyExp string `json:"publickey_exp"`
	Timestamp    string `json:"timestamp"`
	SteamID      string `json:"steamid"`
}

type doLoginResponse struct {
	Success           bool   `json:"success"`
	LoginComplete     bool   `json:"login_complete"`
	CaptchaNeeded     bool   `json:"captcha_needed"`
	CaptchaGID        string `json:"captcha_gid"`
	EmailAuthNeeded   bool   `json:"emailauth_needed"`
	EmailDomain       string `json:"emaildomain"`
	RequiresTwoFactor bool   `json:"requires_twofactor"`
	Message           string `json:"message"`
	OAuth             string `json:"oauth"`
}

type oauthPayload struct {
	OAuthToken string `json:"oauth_token"`
	SteamID    string `json:"steamid"`
}

func (e *Enroller) login(ctx context.Context, state *EnrollState) (bool, error) {
	e.logger.DebugContext(ctx, "steamguard: starting login sub-protocol")

	if _, err := e.transport.Request(ctx, "GET", communityBase+"/login/home", url.Values{"goto": {"0"}}, state.Cookies); err != nil {
		return false, &InvalidEnrollResponse{Msg: "establishing session", Err: err}
	}

	rsaBody, err := e.transport.Request(ctx, "POST", communityBase+"/login/getrsakey", url.Values{"username": {state.Username}}, state.Cookies)
	if err != nil {
		return false, &InvalidEnrollResponse{Msg: "fetching RSA key", Err: err}
	}

	var rsaResp getRSAKeyResponse
	if err := json.Unmarshal([]byte(rsaBody), &rsaResp); err != nil {
		return false, &InvalidEnrollResponse{Msg: "parsing RSA key response", Err: err}
	}
	if !rsaResp.Success {
		return false, &InvalidEnrollResponse{Msg: fmt.Sprintf("Cannot get steam information for user: %s", state.Username)}
	}

	if sid, err := steamid.FromString(rsaResp.SteamID); err == nil {
		state.SteamID = sid
	}

	timestamp, err := strconv.ParseUint(rsaResp.Timestamp, 10, 64)
	if err != nil {
		return false, &InvalidEnrollResponse{Msg: "parsing RSA timestamp", Err: err}
	}
	state.rsaTimestamp = timestamp

	encryptedPassword, err := encryptPasswordRSA(state.Password, rsaResp.PublicKeyMod, rsaResp.PublicKeyExp)
	if err != nil {
		return false, err
	}

	emailAuth := state.EmailAuthText
	emailSteamID := ""
	if emailAuth != "" {
		emailSteamID = strconv.FormatUint(state.SteamID.ToSteamID64(), 10)
	}

	captchaGID := state.CaptchaID
	if captchaGID == "" {
		captchaGID = "-1"
	}
	captchaText := state.CaptchaText
	if captchaText == "" {
		captchaText = "enter above characters"
	}

	form := url.Values{
		"password":           {encryptedPassword},
		"username":           {state.Username},
		"twofactorcode":      {""},
		"emailauth":          {emailAuth},
		"loginfriendlyname":  {"#login_emailauth_friendlyname_mobile"},
		"captchagid":         {captchaGID},
		"captcha_text":       {captchaText},
		"emailsteamid":       {emailSteamID},
		"rsatimestamp":       {strconv.FormatUint(state.rsaTimestamp, 10)},
		"remember_login":     {"false"},
		"oauth_client_id":    {oauthClientID},
		"oauth_scope":        {oauthScope},
		"donotache":          {strconv.FormatInt(time.Now().UnixMilli(), 10)},
	}

	loginBody, err := e.transport.Request(ctx, "POST", communityBase+"/mobilelogin/dologin/", form, state.Cookies)
	if err != nil {
		return false, &InvalidEnrollResponse{Msg: "dologin request", Err: err}
	}

	var loginResp doLoginResponse
	if err := json.Unmarshal([]byte(loginBody), &loginResp); err != nil {
		return false, &InvalidEnrollResponse{Msg: "parsing dologin response", Err: err}
	}

	if loginResp.CaptchaNeeded {
		state.RequiresCaptcha = true
		state.CaptchaID = loginResp.CaptchaGID
		state.CaptchaURL = "https://steamcommunity.com/public/captcha.php?gid=" + loginResp.CaptchaGID
	} else {
		state.RequiresCaptcha = false
		state.CaptchaID = ""
		state.CaptchaURL = ""
	}

	if loginResp.EmailAuthNeeded {
		state.RequiresEmailAuth = true
		state.EmailDomain = loginResp.EmailDomain
	} else {
		state.RequiresEmailAuth = false
		state.EmailDomain = ""
	}

	state.RequiresTwoFactor = loginResp.RequiresTwoFactor

	if !loginResp.LoginComplete || loginResp.OAuth == "" {
		if loginResp.Message != "" {
			state.Error = loginResp.Message
		} else {
			state.Error = "No OAuth token in response"
		}
		return false, nil
	}

	var oauth oauthPayload
	if err := json.Unmarshal([]byte(loginResp.OAuth), &oauth); err != nil {
		return false, &InvalidEnrollResponse{Msg: "parsing embedded oauth JSON", Err: err}
	}

	state.Error = ""
	state.RequiresLogin = false
	state.OAuthToken = oauth.OAuthToken
	return false, nil
}

type addAuthenticatorResponse struct {
	Response struct {
		Status         int    `json:"status"`
		SharedSecret   string `json:"shared_secret"`
		SerialNumber   string `json:"serial_number"`
		RevocationCode string `json:"revocation_code"`
		ServerTime     string `json:"server_time"`
	} `json:"response"`
}

func (e *Enroller) add(ctx context.Context, state *EnrollState) (bool, error) {
	e.logger.DebugContext(ctx, "steamguard: requesting new authenticator")

	_, _ = e.transport.Request(ctx, "POST", apiBase+"/ISteamWebUserPresenceOAuth/Logon/v0001",
		url.Values{"access_token": {state.OAuthToken}}, state.Cookies)

	deviceID, err := buildDeviceID()
	if err != nil {
		return false, err
	}
	state.deviceID = deviceID

	form := url.Values{
		"access_token":       {state.OAuthToken},
		"steamid":            {strconv.FormatUint(state.SteamID.ToSteamID64(), 10)},
		"authenticator_type": {"1"},
		"device_identifier":  {deviceID},
	}

	body, err := e.transport.Request(ctx, "POST", apiBase+"/ITwoFactorService/AddAuthenticator/v0001", form, state.Cookies)
	if err != nil {
		return false, &InvalidEnrollResponse{Msg: "AddAuthenticator request", Err: err}
	}

	var resp addAuthenticatorResponse
	if jsonErr := json.Unmarshal([]byte(body), &resp); jsonErr != nil || resp.Response.RevocationCode == "" {
		state.OAuthToken = ""
		state.RequiresLogin = true
		if jar, jarErr := cookiejar.New(nil); jarErr == nil {
			state.Cookies = jar
		}
		state.Error = fmt.Sprintf("Invalid response from Steam: %s", body)
		return false, nil
	}

	secretKey, err := base64.StdEncoding.DecodeString(resp.Response.SharedSecret)
	if err != nil {
		return false, &InvalidEnrollResponse{Msg: "decoding shared_secret", Err: err}
	}

	state.secretKey = secretKey
	state.serial = resp.Response.SerialNumber
	state.RevocationCode = resp.Response.RevocationCode
	e.logger.DebugContext(ctx, "steamguard: authenticator provisioned, awaiting activation", "serial", state.serial)

	if serverTimeSec, err := strconv.ParseInt(resp.Response.ServerTime, 10, 64); err == nil {
		state.serverTimeDiffMillis = serverTimeSec*1000 - time.Now().UnixMilli()
	}

	_, _ = e.transport.Request(ctx, "POST", apiBase+"/ITwoFactorService/SendEmail/v0001", url.Values{
		"access_token":       {state.OAuthToken},
		"steamid":            {strconv.FormatUint(state.SteamID.ToSteamID64(), 10)},
		"email_type":         {"1"},
		"include_activation": {"1"},
	}, state.Cookies)

	state.RequiresActivation = true
	return false, nil
}

type finalizeResponse struct {
	Response struct {
		Status     int    `json:"status"`
		ServerTime string `json:"server_time"`
		Success    bool   `json:"success"`
		WantMore   bool   `json:"want_more"`
	} `json:"response"`
}

func (e *Enroller) finalize(ctx context.Context, state *EnrollState) (bool, error) {
	e.logger.DebugContext(ctx, "steamguard: starting finalize-activation retry loop")
	state.serverTimeDiffMillis -= 40_000

	retries := 0
	for state.RequiresActivation && retries < maxFinalizeRetries {
		serverTimeMillis := time.Now().UnixMilli() + state.serverTimeDiffMillis
		code, err := steamtotp.GenerateAuthCodeAtMillis(state.secretKey, serverTimeMillis)
		if err != nil {
			return false, &CryptoError{Op: "generate finalize auth code", Err: err}
		}

		form := url.Values{
			"access_token":       {state.OAuthToken},
			"steamid":            {strconv.FormatUint(state.SteamID.ToSteamID64(), 10)},
			"activation_code":    {state.ActivationCode},
			"authenticator_code": {code},
			"authenticator_time": {strconv.FormatInt(serverTimeMillis/1000, 10)},
		}

		body, err := e.transport.Request(ctx, "POST", apiBase+"/ITwoFactorService/FinalizeAddAuthenticator/v0001", form, state.Cookies)
		if err != nil {
			return false, &InvalidEnrollResponse{Msg: "FinalizeAddAuthenticator request", Err: err}
		}

		var resp finalizeResponse
		if err := json.Unmarshal([]byte(body), &resp); err != nil {
			return false, &InvalidEnrollResponse{Msg: "parsing FinalizeAddAuthenticator response", Err: err}
		}

		if resp.Response.Status == 89 {
			state.Error = "Invalid activation code"
			return false, nil
		}

		if resp.Response.ServerTime != "" {
			if serverTimeSec, err := strconv.ParseInt(resp.Response.ServerTime, 10, 64); err == nil {
				state.serverTimeDiffMillis = serverTimeSec*1000 - time.Now().UnixMilli()
			}
		}

		if resp.Response.Success {
			if resp.Response.WantMore {
				state.serverTimeDiffMillis += 30_000
				retries++
				continue
			}
			state.RequiresActivation = false
			break
		}

		state.serverTimeDiffMillis += 30_000
		retries++
	}

	if state.RequiresActivation {
		state.Error = "There was a problem activating. There might be an issue with the Steam servers. Please try again later."
		return false, nil
	}

	state.Error = ""
	state.Success = true
	state.SecretKeyHex = hex.EncodeToString(state.secretKey)

	_, _ = e.transport.Request(ctx, "POST", apiBase+"/ITwoFactorService/SendEmail/v0001", url.Values{
		"access_token":       {state.OAuthToken},
		"steamid":            {strconv.FormatUint(state.SteamID.ToSteamID64(), 10)},
		"email_type":         {"2"},
		"include_activation": {"0"},
	}, state.Cookies)

	return true, nil
}
