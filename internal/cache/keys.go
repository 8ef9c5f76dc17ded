package cache

import "strconv"

// UserProfileKey is the cache key for a user's profile.
func UserProfileKey(userID int64) string {
	return "user:profile:" + strconv.FormatInt(userID, 10)
}

// WatchlistKey is the cache key for a user's watchlist, optionally narrowed
// to one status.
func WatchlistKey(userID int64, status string) string {
	k := "user:watchlist:" + strconv.FormatInt(userID, 10)
	if status != "" {
		k += ":status:" + status
	}
	return k
}

// WatchlistStatsKey is the cache key for a user's watchlist status counts.
func WatchlistStatsKey(userID int64) string {
	return "user:watchlist:stats:" + strconv.FormatInt(userID, 10)
}
