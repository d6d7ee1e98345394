package utils

import (
	"context"
	"sync"
	"time"
)

var (
	stateStore   = map[string]time.Time{}
	stateStoreMu sync.Mutex
)

// SaveState stores an OAuth state token with TTL to mitigate CSRF.
func SaveState(state string, ttl time.Duration) {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if rc := GetRedis(); rc != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := rc.Set(ctx, "oauth:state:"+state, "1", ttl).Err(); err == nil {
			return
		}
	}
	// single-instance fallback
	stateStoreMu.Lock()
	stateStore[state] = time.Now().Add(ttl)
	stateStoreMu.Unlock()
}

// ConsumeState validates and removes a state token. A state is usable once.
func ConsumeState(state string) bool {
	if state == "" {
		return false
	}
	if rc := GetRedis(); rc != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if v, err := rc.GetDel(ctx, "oauth:state:"+state).Result(); err == nil && v != "" {
			return true
		}
	}
	stateStoreMu.Lock()
	exp, ok := stateStore[state]
	delete(stateStore, state)
	stateStoreMu.Unlock()
	return ok && time.Now().Before(exp)
}
