package utils

import (
	"context"
	"sync"
	"time"
)

var (
	blacklist   = map[string]time.Time{}
	blacklistMu sync.RWMutex
)

// BlacklistToken revokes a session token until its natural expiration.
func BlacklistToken(token string, expiresAt time.Time) {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return
	}
	if rc := GetRedis(); rc != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := rc.Set(ctx, "jwt:blacklist:"+token, "1", ttl).Err(); err == nil {
			return
		}
	}
	blacklistMu.Lock()
	blacklist[token] = expiresAt
	pruneBlacklistLocked(time.Now())
	blacklistMu.Unlock()
}

// IsTokenBlacklisted checks if a token was revoked before natural expiration.
func IsTokenBlacklisted(token string) bool {
	if rc := GetRedis(); rc != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		n, err := rc.Exists(ctx, "jwt:blacklist:"+token).Result()
		if err == nil && n > 0 {
			return true
		}
	}
	blacklistMu.RLock()
	exp, ok := blacklist[token]
	blacklistMu.RUnlock()
	return ok && time.Now().Before(exp)
}

func pruneBlacklistLocked(now time.Time) {
	for k, exp := range blacklist {
		if now.After(exp) {
			delete(blacklist, k)
		}
	}
}
