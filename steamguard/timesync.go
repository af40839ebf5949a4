package steamguard

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/k64z/steamstacks/steamapi"
)

// syncCooldown is how long a failed time sync suppresses further attempts.
const syncCooldown = 5 * time.Minute

// syncServerTime performs one time-synchronization attempt against Steam's
// QueryTime endpoint, honoring a(n already-elapsed) cooldown. It reuses
// steamapi.GetSteamTimeWithClient rather than re-issuing the QueryTime POST
// by hand. Its only caller is Authenticator.Sync (and, through it,
// GenerateCode's resync); enrollment takes server time from Steam's
// AddAuthenticator and FinalizeAddAuthenticator responses instead.
//
// On success it returns the new diff in milliseconds and the local
// monotonic-ish tick (Unix millis) at which it was established, with
// cooldownUntil zeroed. On failure it returns a zero diff and a
// cooldownUntil set syncCooldown in the future.
func syncServerTime(ctx context.Context, client *http.Client, logger *slog.Logger) (diffMillis int64, tickMillis int64, cooldownUntil time.Time, err error) {
	localNow := time.Now()

	serverTimeSec, _, err := steamapi.GetSteamTimeWithClient(ctx, client)
	if err != nil {
		logger.DebugContext(ctx, "steam time sync failed, arming cooldown", "error", err)
		return 0, localNow.UnixMilli(), localNow.Add(syncCooldown), err
	}

	serverTimeMillis := serverTimeSec * 1000
	diffMillis = serverTimeMillis - localNow.UnixMilli()

	return diffMillis, localNow.UnixMilli(), time.Time{}, nil
}
