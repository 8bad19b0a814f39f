package api

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"

	"github.com/oggyb/soulmate-hub/internal/db"
)

func TestRateLimiter_RoleChangeReusesBucket(t *testing.T) {
	rl := NewRateLimiter(1, 20, 50, 2)

	first := rl.getLimiter("user-1", db.RoleRegistered)
	assert.Equal(t, rate.Limit(1), first.Limit())

	upgraded := rl.getLimiter("user-1", db.RoleGold)
	assert.Same(t, first, upgraded)
	assert.Equal(t, rate.Limit(20), upgraded.Limit())

	rl.getLimiter("user-1", db.RoleAdmin)
	assert.Equal(t, rate.Limit(50), first.Limit())
	assert.Equal(t, 1, rl.size())
}

func TestRateLimiter_EvictsIdleBuckets(t *testing.T) {
	rl := NewRateLimiter(1, 20, 50, 2)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	rl.lastSweep = now

	rl.getLimiter("idle", db.RoleRegistered)
	now = now.Add(rl.idleTTL / 2)
	active := rl.getLimiter("active", db.RoleRegistered)
	assert.Equal(t, 2, rl.size())

	// next call after idleTTL sweeps "idle"; "active" was seen recently
	now = now.Add(rl.idleTTL/2 + time.Second)
	assert.Same(t, active, rl.getLimiter("active", db.RoleRegistered))
	assert.Equal(t, 1, rl.size())
}
