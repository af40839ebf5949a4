package steamguard

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/k64z/steamstacks/steamtotp"
)

// Authenticator is the persistent result of a successful enrollment: the
// shared secret plus the bookkeeping needed to keep code generation aligned
// with Steam's clock. It is read-mostly and safe to share across goroutines
// provided ServerTimeDiffMillis updates go through Sync/GenerateCode, which
// serialize on mu as required by the concurrency model.
type Authenticator struct {
	SecretKey      []byte // 20 bytes, HMAC-SHA1 key
	Serial         string
	DeviceID       string
	RevocationCode string

	// AccountName is carried for the caller's convenience; it is not part of
	// the §4.6 persisted string.
	AccountName string

	mu                   sync.Mutex
	serverTimeDiffMillis int64
	lastServerTimeTick   int64
	syncCooldownUntil    time.Time

	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures an Authenticator.
type Option func(*Authenticator)

// WithHTTPClient sets the HTTP client used for time synchronization.
func WithHTTPClient(client *http.Client) Option {
	return func(a *Authenticator) {
		if client != nil {
			a.httpClient = client
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Authenticator) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// NewAuthenticator builds an Authenticator around an already-enrolled
// secret. Most callers construct one via Deserialize instead.
func NewAuthenticator(secretKey []byte, opts ...Option) *Authenticator {
	a := &Authenticator{
		SecretKey:  secretKey,
		httpClient: http.DefaultClient,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ServerTimeDiffMillis returns the currently known offset (server - local),
// in milliseconds.
func (a *Authenticator) ServerTimeDiffMillis() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.serverTimeDiffMillis
}

// serverTimeMillisLocked computes the current server-aligned time. Caller
// must hold a.mu.
func (a *Authenticator) serverTimeMillisLocked() int64 {
	return time.Now().UnixMilli() + a.serverTimeDiffMillis
}

// Sync forces a time synchronization against Steam's QueryTime endpoint,
// subject to the 5-minute failure cooldown: a call made while a previous
// failure's cooldown is still active is a silent no-op.
func (a *Authenticator) Sync(ctx context.Context) error {
	a.mu.Lock()
	if time.Now().Before(a.syncCooldownUntil) {
		a.mu.Unlock()
		return nil
	}
	client := a.httpClient
	logger := a.logger
	a.mu.Unlock()

	diff, tick, cooldownUntil, err := syncServerTime(ctx, client, logger)

	a.mu.Lock()
	defer a.mu.Unlock()
	if err != nil {
		a.serverTimeDiffMillis = 0
		a.syncCooldownUntil = cooldownUntil
		return err
	}
	a.serverTimeDiffMillis = diff
	a.lastServerTimeTick = tick
	a.syncCooldownUntil = time.Time{}
	return nil
}

// GenerateCode returns the current 5-character Steam Guard code. If resync
// is true and no sync has ever succeeded (ServerTimeDiffMillis == 0), it
// forces one synchronously before deriving the code; errors from that
// best-effort sync are ignored (local time is used as a fallback) since the
// synchronizer self-heals on the next ongoing use per §4.2.
func (a *Authenticator) GenerateCode(ctx context.Context, resync bool) (string, error) {
	if len(a.SecretKey) == 0 {
		return "", ErrNotEnrolled
	}

	a.mu.Lock()
	needsSync := resync && a.serverTimeDiffMillis == 0
	a.mu.Unlock()

	if needsSync {
		_ = a.Sync(ctx)
	}

	a.mu.Lock()
	serverTimeMillis := a.serverTimeMillisLocked()
	a.mu.Unlock()

	code, err := steamtotp.GenerateAuthCodeAtMillis(a.SecretKey, serverTimeMillis)
	if err != nil {
		return "", &CryptoError{Op: "generate auth code", Err: err}
	}
	return code, nil
}
