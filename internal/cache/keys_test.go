package cache

import "testing"

func TestKeys(t *testing.T) {
	t.Parallel()
	tests := []struct {
		got, want string
	}{
		{UserProfileKey(42), "user:profile:42"},
		{WatchlistKey(7, ""), "user:watchlist:7"},
		{WatchlistKey(7, "watching"), "user:watchlist:7:status:watching"},
		{WatchlistStatsKey(7), "user:watchlist:stats:7"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("key = %q, want %q", tt.got, tt.want)
		}
	}

	if UserProfileKey(1) != UserProfileKey(1) || WatchlistKey(1, "x") != WatchlistKey(1, "x") {
		t.Error("key helpers must be deterministic")
	}
}
