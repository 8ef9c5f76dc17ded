package ratelimit

import "time"

// Named limit profiles. Callers pick a profile instead of passing raw numbers.
const (
	ProfileLogin      = "auth_login"
	ProfileRegister   = "auth_register"
	ProfileAPIGeneral = "api_general"
	ProfileWatchlist  = "api_watchlist"
)

// Profile is a (limit, window) pair.
type Profile struct {
	Limit  int
	Window time.Duration
}

// DefaultProfiles returns the built-in profile table.
func DefaultProfiles() map[string]Profile {
	return map[string]Profile{
		ProfileLogin:      {Limit: 5, Window: 5 * time.Minute},
		ProfileRegister:   {Limit: 3, Window: time.Hour},
		ProfileAPIGeneral: {Limit: 100, Window: time.Minute},
		ProfileWatchlist:  {Limit: 50, Window: time.Minute},
	}
}

// MergeProfiles overlays overrides onto the defaults. Entries with a
// non-positive limit or window are ignored.
func MergeProfiles(overrides map[string]Profile) map[string]Profile {
	out := DefaultProfiles()
	for name, p := range overrides {
		if p.Limit <= 0 || p.Window <= 0 {
			continue
		}
		out[name] = p
	}
	return out
}
