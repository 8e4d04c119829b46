package raop

import (
	"time"

	"github.com/beevik/ntp"

	"github.com/atvkit/atvkit/internal/atvlog"
)

// clockSyncReferenceServer is a public NTP server used only to sanity-check
// the local clock at session bring-up. RAOP's own timing port (timing.go)
// is self-contained and does not depend on this; this is diagnostic only.
const clockSyncReferenceServer = "time.apple.com"

// checkClockSkew queries a public NTP server once, best-effort, and logs
// the measured offset against the local clock. A large skew here doesn't
// block streaming but explains audio sync complaints traceable to a
// wrong system clock rather than a receiver-side timing bug.
func checkClockSkew(logger *atvlog.Logger) {
	resp, err := ntp.Query(clockSyncReferenceServer)
	if err != nil {
		logger.Debug("raop: clock skew check unavailable", "error", err)
		return
	}
	if resp.Validate() != nil {
		return
	}
	if abs(resp.ClockOffset) > 2*time.Second {
		logger.Warn("raop: local clock drifted from reference time",
			"offset", resp.ClockOffset, "server", clockSyncReferenceServer)
	}
}

func abs(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
