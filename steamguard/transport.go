package steamguard

import (
	"compress/gzip"
	"compress/zlib"
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// mobileUserAgent is the mobile-browser UA string Steam requires on the
// legacy mobile login endpoints; without it Steam serves the desktop flow
// instead and the enrollment protocol below does not apply.
const mobileUserAgent = "Mozilla/5.0 (Linux; Android 4.4.4; en-us; Nexus 4 Build/JOP40D) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/42.0.2307.2 Mobile Safari/537.36"

const mobileReferer = "https://steamcommunity.com/mobilelogin"
const mobileAccept = "application/json, text/javascript, text/html, application/xml, text/xml, */*"

// Transporter is the HTTP transport the enrollment driver depends on. It
// hides form-encoding, header, and cookie-jar bookkeeping behind a single
// request call so the driver can be exercised with a fake in tests.
type Transporter interface {
	Request(ctx context.Context, method, rawURL string, form url.Values, cookies http.CookieJar) (string, error)
}

// httpTransporter is the production Transporter, built on net/http.
// Cookies are threaded through explicitly (rather than via client.Jar) so a
// single instance can serve many independent EnrollState cookie jars.
type httpTransporter struct {
	client *http.Client
}

// NewTransporter returns the default Transporter. A nil client uses
// http.DefaultClient.
func NewTransporter(client *http.Client) Transporter {
	if client == nil {
		client = http.DefaultClient
	}
	return &httpTransporter{client: client}
}

func (t *httpTransporter) Request(ctx context.Context, method, rawURL string, form url.Values, cookies http.CookieJar) (string, error) {
	if form == nil {
		form = url.Values{}
	}

	reqURL := rawURL
	var body io.Reader
	if method == http.MethodGet {
		if len(form) > 0 {
			sep := "?"
			if strings.Contains(rawURL, "?") {
				sep = "&"
			}
			reqURL = rawURL + sep + form.Encode()
		}
	} else {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return "", &TransportError{Op: "build request", Err: err}
	}

	if method != http.MethodGet {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")
	}
	req.Header.Set("User-Agent", mobileUserAgent)
	req.Header.Set("Referer", mobileReferer)
	req.Header.Set("Accept", mobileAccept)
	req.Header.Set("Accept-Encoding", "gzip, deflate")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Pragma", "no-cache")

	if cookies != nil {
		u, _ := url.Parse(reqURL)
		for _, c := range cookies.Cookies(u) {
			req.AddCookie(c)
		}
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return "", &TransportError{Op: method + " " + rawURL, Err: err}
	}
	defer resp.Body.Close()

	if cookies != nil && len(resp.Cookies()) > 0 {
		u, _ := url.Parse(reqURL)
		cookies.SetCookies(u, resp.Cookies())
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &TransportError{Op: method + " " + rawURL, Err: &httpStatusError{resp.StatusCode}}
	}

	reader := io.Reader(resp.Body)
	if strings.EqualFold(resp.Header.Get("Content-Encoding"), "gzip") {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return "", &TransportError{Op: "gunzip response", Err: err}
		}
		defer gz.Close()
		reader = gz
	} else if strings.EqualFold(resp.Header.Get("Content-Encoding"), "deflate") {
		zr, err := zlib.NewReader(resp.Body)
		if err != nil {
			return "", &TransportError{Op: "inflate response", Err: err}
		}
		defer zr.Close()
		reader = zr
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return "", &TransportError{Op: "read body", Err: err}
	}

	return string(data), nil
}

type httpStatusError struct{ code int }

func (e *httpStatusError) Error() string {
	return "unexpected HTTP status " + http.StatusText(e.code)
}
