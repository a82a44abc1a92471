package cache

import (
	"testing"
	"time"
)

func TestCacheEntry_IsExpired(t *testing.T) {
	tests := []struct {
		name    string
		expires time.Time
		want    bool
	}{
		{"expired entry", time.Now().Add(-1 * time.Hour), true},
		{"valid entry", time.Now().Add(1 * time.Hour), false},
		{"just expired", time.Now().Add(-1 * time.Second), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := &CacheEntry{Expires: tt.expires}
			if got := entry.IsExpired(); got != tt.want {
				t.Errorf("IsExpired() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewEntry(t *testing.T) {
	entry := NewEntry([]byte("data"), 10*time.Minute)

	if string(entry.Data) != "data" {
		t.Errorf("Data = %s, want data", entry.Data)
	}
	if ttl := entry.TTL(); ttl < 9*time.Minute || ttl > 10*time.Minute {
		t.Errorf("TTL() = %v, want about 10m", ttl)
	}
	if entry.CachedAt.After(time.Now()) {
		t.Error("CachedAt should not be in the future")
	}
}

func TestCacheEntry_TTL_Expired(t *testing.T) {
	entry := &CacheEntry{Expires: time.Now().Add(-1 * time.Hour)}
	if ttl := entry.TTL(); ttl != 0 {
		t.Errorf("TTL() = %v, want 0", ttl)
	}
}
