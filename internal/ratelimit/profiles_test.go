package ratelimit

import (
	"testing"
	"time"
)

func TestDefaultProfiles(t *testing.T) {
	t.Parallel()
	p := DefaultProfiles()
	tests := []struct {
		name   string
		limit  int
		window time.Duration
	}{
		{ProfileLogin, 5, 300 * time.Second},
		{ProfileRegister, 3, 3600 * time.Second},
		{ProfileAPIGeneral, 100, 60 * time.Second},
		{ProfileWatchlist, 50, 60 * time.Second},
	}
	for _, tt := range tests {
		got, ok := p[tt.name]
		if !ok {
			t.Errorf("missing profile %q", tt.name)
			continue
		}
		if got.Limit != tt.limit || got.Window != tt.window {
			t.Errorf("%s = %+v, want {%d %v}", tt.name, got, tt.limit, tt.window)
		}
	}
}

func TestMergeProfiles(t *testing.T) {
	t.Parallel()
	p := MergeProfiles(map[string]Profile{
		ProfileLogin: {Limit: 10, Window: time.Minute},
		"custom":     {Limit: 1, Window: time.Second},
		"broken":     {Limit: 0, Window: time.Second},
	})
	if p[ProfileLogin].Limit != 10 {
		t.Errorf("login limit = %d, want 10", p[ProfileLogin].Limit)
	}
	if _, ok := p["custom"]; !ok {
		t.Error("custom profile should be added")
	}
	if _, ok := p["broken"]; ok {
		t.Error("invalid override should be ignored")
	}
	if p[ProfileWatchlist].Limit != 50 {
		t.Error("untouched defaults should survive")
	}
}
